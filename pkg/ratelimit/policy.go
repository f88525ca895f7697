// Package ratelimit implements the per-plan request limiting policies:
// fixed window, token bucket and sliding window.
package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ulule/limiter/v3"
)

type Kind string

const (
	KindFixed   Kind = "fixed"
	KindToken   Kind = "token"
	KindSliding Kind = "sliding"
)

// Policy describes one limit. Fixed and sliding windows use Limit per
// Period; token buckets use Rate tokens per second with Burst capacity.
type Policy struct {
	Kind   Kind
	Limit  int64
	Period time.Duration
	Rate   float64
	Burst  int
}

func (p Policy) String() string {
	if p.Kind == KindToken {
		return fmt.Sprintf("%s:%g/%d", p.Kind, p.Rate, p.Burst)
	}
	return fmt.Sprintf("%s:%d/%s", p.Kind, p.Limit, p.Period)
}

// ParsePolicy reads "fixed:60-M", "sliding:600-M" or "token:20/40". The
// window format is the one ulule/limiter uses (S, M, H, D).
func ParsePolicy(raw string) (Policy, error) {
	kind, def, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return Policy{}, fmt.Errorf("rate limit policy %q: missing kind", raw)
	}
	switch Kind(kind) {
	case KindFixed, KindSliding:
		rate, err := limiter.NewRateFromFormatted(def)
		if err != nil {
			return Policy{}, fmt.Errorf("rate limit policy %q: %w", raw, err)
		}
		if rate.Limit <= 0 {
			return Policy{}, fmt.Errorf("rate limit policy %q: limit must be positive", raw)
		}
		return Policy{Kind: Kind(kind), Limit: rate.Limit, Period: rate.Period}, nil
	case KindToken:
		rateRaw, burstRaw, ok := strings.Cut(def, "/")
		if !ok {
			return Policy{}, fmt.Errorf("rate limit policy %q: want token:<rate>/<burst>", raw)
		}
		r, err := strconv.ParseFloat(rateRaw, 64)
		if err != nil || r <= 0 {
			return Policy{}, fmt.Errorf("rate limit policy %q: invalid rate", raw)
		}
		burst, err := strconv.Atoi(burstRaw)
		if err != nil || burst <= 0 {
			return Policy{}, fmt.Errorf("rate limit policy %q: invalid burst", raw)
		}
		return Policy{Kind: KindToken, Rate: r, Burst: burst, Limit: int64(burst), Period: time.Second}, nil
	default:
		return Policy{}, fmt.Errorf("rate limit policy %q: unknown kind %q", raw, kind)
	}
}

// ParsePlans reads a comma separated "plan:policy" list, e.g.
// "free:fixed:60-M,pro:token:20/40".
func ParsePlans(raw string) (map[string]Policy, error) {
	plans := make(map[string]Policy)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		plan, def, ok := strings.Cut(item, ":")
		if !ok || plan == "" {
			return nil, fmt.Errorf("rate limit plan %q: want <plan>:<policy>", item)
		}
		p, err := ParsePolicy(def)
		if err != nil {
			return nil, err
		}
		plans[plan] = p
	}
	return plans, nil
}
