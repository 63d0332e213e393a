package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// PlanComputations counts finished plan computations by challenge and the
	// engine that produced the result.
	PlanComputations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "plan_computations_total", Help: "Plan computations by challenge and engine."},
		[]string{"challenge", "engine"},
	)
	// PlanComputeDuration tracks how long one plan computation took.
	PlanComputeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "plan_compute_duration_seconds", Help: "Plan computation duration in seconds.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30}},
		[]string{"challenge", "engine"},
	)
	// SearchExtensions counts label or state extensions per engine run.
	SearchExtensions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "search_extensions_total", Help: "Search label/state extensions by challenge and engine."},
		[]string{"challenge", "engine"},
	)
	// SearchLimitHits counts runs cut short by a resource budget.
	SearchLimitHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "search_limit_hits_total", Help: "Search runs that exhausted a resource budget."},
		[]string{"challenge", "engine"},
	)
	// PlanCacheHits counts plan cache hits and misses.
	PlanCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "plan_cache_requests_total", Help: "Plan cache lookups by outcome."},
		[]string{"outcome"},
	)
	// NetworkReloads counts snapshot reload outcomes.
	NetworkReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "network_reloads_total", Help: "Network snapshot reloads by outcome."},
		[]string{"outcome"},
	)
	// RealtimeFetches counts realtime feed poll outcomes.
	RealtimeFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "realtime_fetches_total", Help: "Realtime feed polls by outcome."},
		[]string{"outcome"},
	)
)

// RegisterDefault registers collectors to the package registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(PlanComputations)
		Registry.MustRegister(PlanComputeDuration)
		Registry.MustRegister(SearchExtensions)
		Registry.MustRegister(SearchLimitHits)
		Registry.MustRegister(PlanCacheHits)
		Registry.MustRegister(NetworkReloads)
		Registry.MustRegister(RealtimeFetches)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
