package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report recommendation-run
// activity: request durations, outbound API calls, classified errors,
// cache effectiveness and loop iterations.
type Metrics struct {
	requestDuration *prometheus.HistogramVec
	apiCalls        *prometheus.CounterVec
	apiDuration     *prometheus.HistogramVec
	errorsTotal     *prometheus.CounterVec
	cacheEvents     *prometheus.CounterVec
	activeRequests  prometheus.Gauge
	iterations      prometheus.Histogram
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// Default returns the package-level metrics instance registered with the
// global Prometheus registry. The collectors are created only once to avoid
// duplicate registration panics when several orchestrators are constructed
// in one process.
func Default() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNew(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNew constructs a Metrics instance using the provided registerer.
// Callers needing isolated collectors (tests, multi-tenant setups) should
// pass a fresh registry. Registration errors other than
// AlreadyRegisteredError panic, mirroring promauto semantics.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "outing",
			Subsystem: "orchestrator",
			Name:      "request_duration_seconds",
			Help:      "Duration of full recommendation runs.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	apiCalls := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outing",
			Subsystem: "clients",
			Name:      "api_calls_total",
			Help:      "Outbound API calls by upstream and HTTP status.",
		},
		[]string{"api", "status"},
	)
	apiDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "outing",
			Subsystem: "clients",
			Name:      "api_call_duration_seconds",
			Help:      "Duration of outbound API calls by upstream.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"api"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outing",
			Subsystem: "orchestrator",
			Name:      "errors_total",
			Help:      "Classified errors by error code.",
		},
		[]string{"code"},
	)
	cacheEvents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "outing",
			Subsystem: "cache",
			Name:      "events_total",
			Help:      "Cache hits and misses by cache name.",
		},
		[]string{"cache", "event"},
	)
	activeRequests := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "outing",
			Subsystem: "orchestrator",
			Name:      "active_requests",
			Help:      "Recommendation runs currently in flight.",
		},
	)
	iterations := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "outing",
			Subsystem: "orchestrator",
			Name:      "iterations_per_run",
			Help:      "Plan/execute/evaluate iterations consumed per run.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
	)

	requestDuration = registerOrExisting(reg, requestDuration)
	apiCalls = registerOrExisting(reg, apiCalls)
	apiDuration = registerOrExisting(reg, apiDuration)
	errorsTotal = registerOrExisting(reg, errorsTotal)
	cacheEvents = registerOrExisting(reg, cacheEvents)
	activeRequests = registerOrExisting(reg, activeRequests)
	iterations = registerOrExisting(reg, iterations)

	return &Metrics{
		requestDuration: requestDuration,
		apiCalls:        apiCalls,
		apiDuration:     apiDuration,
		errorsTotal:     errorsTotal,
		cacheEvents:     cacheEvents,
		activeRequests:  activeRequests,
		iterations:      iterations,
	}
}

// registerOrExisting registers a collector, reusing the already registered
// instance when the registry has seen an identical one before.
func registerOrExisting[C prometheus.Collector](reg prometheus.Registerer, collector C) C {
	if err := reg.Register(collector); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

// ObserveRequest records a completed run with its ok/error status.
func (m *Metrics) ObserveRequest(status string, duration time.Duration) {
	if m == nil || m.requestDuration == nil {
		return
	}
	m.requestDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordAPICall records one outbound call to an upstream API, counting it
// by HTTP status and observing how long it took.
func (m *Metrics) RecordAPICall(api string, httpStatus int, duration time.Duration) {
	if m == nil || m.apiCalls == nil {
		return
	}
	m.apiCalls.WithLabelValues(api, strconv.Itoa(httpStatus)).Inc()
	m.apiDuration.WithLabelValues(api).Observe(duration.Seconds())
}

// RecordError increments the classified-error counter.
func (m *Metrics) RecordError(code string) {
	if m == nil || m.errorsTotal == nil {
		return
	}
	m.errorsTotal.WithLabelValues(code).Inc()
}

// RecordCacheHit records a cache hit for the named cache.
func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil || m.cacheEvents == nil {
		return
	}
	m.cacheEvents.WithLabelValues(cache, "hit").Inc()
}

// RecordCacheMiss records a cache miss for the named cache.
func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil || m.cacheEvents == nil {
		return
	}
	m.cacheEvents.WithLabelValues(cache, "miss").Inc()
}

// IncActiveRequests marks a run as in flight.
func (m *Metrics) IncActiveRequests() {
	if m == nil || m.activeRequests == nil {
		return
	}
	m.activeRequests.Inc()
}

// DecActiveRequests marks a run as finished.
func (m *Metrics) DecActiveRequests() {
	if m == nil || m.activeRequests == nil {
		return
	}
	m.activeRequests.Dec()
}

// ObserveIterations records how many loop iterations a run consumed.
func (m *Metrics) ObserveIterations(n int) {
	if m == nil || m.iterations == nil {
		return
	}
	m.iterations.Observe(float64(n))
}
