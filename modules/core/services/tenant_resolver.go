package services

import (
	"context"
	"net"
	"net/http"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/tenantgate/modules/core/domain/entities/tenant"
	"github.com/iota-uz/tenantgate/pkg/composables"
	"github.com/iota-uz/tenantgate/pkg/constants"
)

type Outcome int

const (
	// OutcomeMissing means no tenant identifier was present on the request.
	OutcomeMissing Outcome = iota
	OutcomeNotFound
	OutcomeMatched
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMatched:
		return "matched"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "missing"
	}
}

type Source string

const (
	SourceHeader Source = "header"
	SourceClaim  Source = "claim"
	SourceQuery  Source = "query"
	SourceHost   Source = "host"
)

type Resolution struct {
	Outcome Outcome
	Tenant  *tenant.Tenant
	Key     string
	Source  Source
}

type TenantResolverConfig struct {
	HeaderName         string
	QueryParamEnabled  bool
	ReservedSubdomains []string
	TrustProxy         bool
}

type TenantResolver struct {
	repo  tenant.Repository
	cache *TenantCache
	cfg   TenantResolverConfig
}

func NewTenantResolver(repo tenant.Repository, cache *TenantCache, cfg TenantResolverConfig) *TenantResolver {
	if cfg.HeaderName == "" {
		cfg.HeaderName = constants.TenantHeader
	}
	return &TenantResolver{
		repo:  repo,
		cache: cache,
		cfg:   cfg,
	}
}

func (r *TenantResolver) Cache() *TenantCache {
	return r.cache
}

// Resolve extracts a tenant identifier from the request and looks it up.
// A returned error is a registry fault, never a plain miss.
func (r *TenantResolver) Resolve(req *http.Request) (Resolution, error) {
	key, source := r.ExtractKey(req)
	if key == "" {
		return Resolution{Outcome: OutcomeMissing}, nil
	}
	res := Resolution{Key: key, Source: source}
	t, err := r.Lookup(req.Context(), key)
	if errors.Is(err, tenant.ErrNotFound) {
		res.Outcome = OutcomeNotFound
		return res, nil
	}
	if err != nil {
		return res, err
	}
	res.Outcome = OutcomeMatched
	res.Tenant = t
	return res, nil
}

// ExtractKey applies the extraction order: header, token claim, query
// parameter (when enabled), then the leftmost host label.
func (r *TenantResolver) ExtractKey(req *http.Request) (string, Source) {
	if v := tenant.NormalizeKey(req.Header.Get(r.cfg.HeaderName)); v != "" {
		return v, SourceHeader
	}
	if identity, err := composables.UseIdentity(req.Context()); err == nil && identity.TenantID != uuid.Nil {
		return identity.TenantID.String(), SourceClaim
	}
	if r.cfg.QueryParamEnabled {
		if v := tenant.NormalizeKey(req.URL.Query().Get(constants.TenantQueryParam)); v != "" {
			return v, SourceQuery
		}
	}
	if v := r.subdomain(req); v != "" {
		return v, SourceHost
	}
	return "", ""
}

// Lookup consults the cache, then the registry. Matches are cached; misses
// are not, so a newly registered tenant is visible immediately.
func (r *TenantResolver) Lookup(ctx context.Context, key string) (*tenant.Tenant, error) {
	key = tenant.NormalizeKey(key)
	if key == "" {
		return nil, tenant.ErrNotFound
	}
	if r.cache != nil {
		if t, ok := r.cache.Get(key); ok {
			return t, nil
		}
	}
	t, err := r.repo.FindByRoutingKey(ctx, key)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(err, "tenant registry lookup")
	}
	if r.cache != nil {
		r.cache.Set(key, t)
	}
	return t, nil
}

func (r *TenantResolver) subdomain(req *http.Request) string {
	host := effectiveHost(req, r.cfg.TrustProxy)
	if host == "" || net.ParseIP(host) != nil {
		return ""
	}
	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return ""
	}
	label := labels[0]
	if label == "" || slices.Contains(r.cfg.ReservedSubdomains, label) {
		return ""
	}
	return label
}

func effectiveHost(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if h := forwardedHost(r); h != "" {
			return normalizeHostname(h)
		}
	}
	return normalizeHostname(r.Host)
}

func forwardedHost(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("X-Forwarded-Host"))
	if raw == "" {
		return ""
	}
	if first, _, ok := strings.Cut(raw, ","); ok {
		raw = first
	}
	return strings.TrimSpace(raw)
}

func normalizeHostname(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	return strings.ToLower(strings.TrimSuffix(host, "."))
}
