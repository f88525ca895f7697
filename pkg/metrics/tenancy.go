package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenantgate",
		Subsystem: "gate",
		Name:      "decisions_total",
		Help:      "Access gate outcomes by tenant status or resolution result.",
	}, []string{"outcome"})

	TenantCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenantgate",
		Subsystem: "tenant_cache",
		Name:      "lookups_total",
		Help:      "Tenant cache lookups by result (hit, miss, expired).",
	}, []string{"result"})

	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenantgate",
		Subsystem: "auth",
		Name:      "attempts_total",
		Help:      "Authentication operations by operation and result code.",
	}, []string{"operation", "result"})

	RefreshScanTenants = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "tenantgate",
		Subsystem: "auth",
		Name:      "refresh_scan_tenants",
		Help:      "Number of tenant stores visited per refresh-token lookup.",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	StoreFaults = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tenantgate",
		Subsystem: "store",
		Name:      "faults_total",
		Help:      "Tenant store access faults skipped during cross-store scans.",
	})

	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tenantgate",
		Subsystem: "ratelimit",
		Name:      "rejections_total",
		Help:      "Requests rejected by the rate limiter, by policy kind.",
	}, []string{"policy"})
)
