package middleware

import (
	"crypto/subtle"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/gorilla/mux"

	"github.com/iota-uz/tenantgate/pkg/configuration"
	"github.com/iota-uz/tenantgate/pkg/routing"
)

// OpsGuard hides ops endpoints (/health, /metrics) in production unless the
// caller is inside OPS_GUARD_CIDRS or presents OPS_GUARD_TOKEN. Hidden
// routes answer a plain 404 so their existence is not disclosed.
func OpsGuard(conf *configuration.Configuration, classifier *routing.Classifier) mux.MiddlewareFunc {
	if conf == nil {
		conf = configuration.Use()
	}
	if classifier == nil {
		classifier = routing.NewClassifier(routing.LoadAllowlistOrDefault(conf.AllowlistPath, "server"))
	}
	networks := parseCIDRs(conf.OpsGuardCIDRs)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			guarded := conf.IsProduction() && conf.OpsGuardEnabled &&
				classifier.ClassifyPath(r.URL.Path) == routing.RouteClassOps
			if !guarded || inNetworks(r, conf, networks) || hasOpsToken(r, conf.OpsGuardToken) {
				next.ServeHTTP(w, r)
				return
			}
			http.NotFound(w, r)
		})
	}
}

func inNetworks(r *http.Request, conf *configuration.Configuration, networks []netip.Prefix) bool {
	if len(networks) == 0 {
		return false
	}
	ip, ok := clientIP(r, conf.RealIPHeader, conf.Tenancy.TrustProxy)
	if !ok {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, n := range networks {
		if n.Contains(addr) {
			return true
		}
	}
	return false
}

func hasOpsToken(r *http.Request, expected string) bool {
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return false
	}
	presented := strings.TrimSpace(r.Header.Get("X-Ops-Token"))
	if presented == "" {
		presented = bearerToken(r)
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) == 1
}

// parseCIDRs accepts comma, semicolon or whitespace separated prefixes and
// drops the ones that do not parse.
func parseCIDRs(raw string) []netip.Prefix {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t'
	})
	var out []netip.Prefix
	for _, f := range fields {
		if p, err := netip.ParsePrefix(f); err == nil {
			out = append(out, p.Masked())
		}
	}
	return out
}

func bearerToken(r *http.Request) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// clientIP returns the peer address. The proxy header is read only when the
// deployment sits behind a trusted proxy; clients can set it to anything.
func clientIP(r *http.Request, header string, trustProxy bool) (string, bool) {
	if r == nil {
		return "", false
	}
	if trustProxy && header != "" {
		if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
			// X-Forwarded-For style: the first hop is the client.
			if first, _, found := strings.Cut(v, ","); found {
				v = strings.TrimSpace(first)
			}
			return stripPort(v)
		}
	}
	return stripPort(r.RemoteAddr)
}

func stripPort(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return host, true
	}
	return strings.Trim(s, "[]"), true
}
