package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	io_prometheus_client "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"

	"github.com/stockrun/stockrun/internal/models"
)

// Cache type labels used by the instrumented cache tier.
const (
	CacheTypeReport = "report"
	CacheTypeOHLCV  = "ohlcv"
	CacheTypeModel  = "model"
)

// MetricsRegistry holds all Prometheus metrics for the service.
type MetricsRegistry struct {
	// Request metrics
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  prometheus.Gauge
	TotalRequests   prometheus.Counter

	// Step duration metrics for analysis pipeline stages
	StepDuration *prometheus.HistogramVec

	// Module fan-in failures by module name
	ModuleFailures *prometheus.CounterVec

	// Cache performance metrics
	CacheHitRatio prometheus.Gauge
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec

	// Model cache metrics
	ModelLoads     *prometheus.CounterVec
	ModelsResident *prometheus.GaugeVec

	// Warm-up state (0 = cold, 1 = warm)
	PreloadState prometheus.Gauge

	// Backtest context population by lifecycle state
	BacktestContexts *prometheus.GaugeVec

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer
}

// NewMetricsRegistry creates a metrics registry on the default Prometheus
// registry.
func NewMetricsRegistry() *MetricsRegistry {
	return newMetricsRegistryOn(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewIsolatedMetricsRegistry creates a registry with its own backing store,
// for tests and embedded use.
func NewIsolatedMetricsRegistry() *MetricsRegistry {
	reg := prometheus.NewRegistry()
	return newMetricsRegistryOn(reg, reg)
}

func newMetricsRegistryOn(reg prometheus.Registerer, gat prometheus.Gatherer) *MetricsRegistry {
	registry := &MetricsRegistry{
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockrun_request_duration_seconds",
				Help:    "HTTP request duration in seconds by route",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"route", "method", "status"},
		),

		ActiveRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stockrun_active_requests",
				Help: "Number of requests currently in flight",
			},
		),

		TotalRequests: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stockrun_requests_total",
				Help: "Total number of HTTP requests served",
			},
		),

		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stockrun_step_duration_seconds",
				Help:    "Duration of each analysis step in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"step", "result"},
		),

		ModuleFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockrun_module_failures_total",
				Help: "Total analysis module failures by module",
			},
			[]string{"module"},
		),

		CacheHitRatio: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stockrun_cache_hit_ratio",
				Help: "Current cache hit ratio (0.0 to 1.0)",
			},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockrun_cache_hits_total",
				Help: "Total number of cache hits by cache type",
			},
			[]string{"cache_type"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockrun_cache_misses_total",
				Help: "Total number of cache misses by cache type",
			},
			[]string{"cache_type"},
		),

		ModelLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stockrun_model_loads_total",
				Help: "Model cache outcomes: hit, loaded, shared, failed",
			},
			[]string{"kind", "result"},
		),

		ModelsResident: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stockrun_models_resident",
				Help: "Resident model cache entries by kind",
			},
			[]string{"kind"},
		),

		PreloadState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stockrun_preload_state",
				Help: "Warm-up state: 0 until preload completes, then 1",
			},
		),

		BacktestContexts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "stockrun_backtest_contexts",
				Help: "Backtest contexts by lifecycle state",
			},
			[]string{"state"},
		),

		registerer: reg,
		gatherer:   gat,
	}

	reg.MustRegister(
		registry.RequestDuration,
		registry.ActiveRequests,
		registry.TotalRequests,
		registry.StepDuration,
		registry.ModuleFailures,
		registry.CacheHitRatio,
		registry.CacheHits,
		registry.CacheMisses,
		registry.ModelLoads,
		registry.ModelsResident,
		registry.PreloadState,
		registry.BacktestContexts,
	)

	return registry
}

// ObserveRequest records one finished HTTP request.
func (m *MetricsRegistry) ObserveRequest(route, method string, status int, duration time.Duration) {
	m.RequestDuration.WithLabelValues(route, method, strconv.Itoa(status)).Observe(duration.Seconds())
	m.TotalRequests.Inc()
}

// StepTimer tracks execution time for analysis steps.
type StepTimer struct {
	metrics *MetricsRegistry
	step    string
	start   time.Time
}

// StartStepTimer begins timing an analysis step.
func (m *MetricsRegistry) StartStepTimer(step string) *StepTimer {
	return &StepTimer{
		metrics: m,
		step:    step,
		start:   time.Now(),
	}
}

// Stop completes the step timing and records the metric.
func (st *StepTimer) Stop(result string) {
	duration := time.Since(st.start)
	st.metrics.StepDuration.WithLabelValues(st.step, result).Observe(duration.Seconds())

	log.Debug().
		Str("step", st.step).
		Str("result", result).
		Dur("duration", duration).
		Msg("Analysis step completed")
}

// RecordModuleFailure counts one fan-in branch failure.
func (m *MetricsRegistry) RecordModuleFailure(module string) {
	m.ModuleFailures.WithLabelValues(module).Inc()
}

// RecordCacheHit records a cache hit for the specified cache type.
func (m *MetricsRegistry) RecordCacheHit(cacheType string) {
	m.CacheHits.WithLabelValues(cacheType).Inc()
	m.updateCacheHitRatio()
}

// RecordCacheMiss records a cache miss for the specified cache type.
func (m *MetricsRegistry) RecordCacheMiss(cacheType string) {
	m.CacheMisses.WithLabelValues(cacheType).Inc()
	m.updateCacheHitRatio()
}

// updateCacheHitRatio recomputes the global hit ratio from the counters.
func (m *MetricsRegistry) updateCacheHitRatio() {
	hitMetric := &io_prometheus_client.Metric{}
	missMetric := &io_prometheus_client.Metric{}

	totalHits := 0.0
	totalMisses := 0.0

	for _, cacheType := range []string{CacheTypeReport, CacheTypeOHLCV, CacheTypeModel} {
		if hitCounter, err := m.CacheHits.GetMetricWithLabelValues(cacheType); err == nil {
			if err := hitCounter.Write(hitMetric); err == nil {
				totalHits += hitMetric.GetCounter().GetValue()
			}
		}
		if missCounter, err := m.CacheMisses.GetMetricWithLabelValues(cacheType); err == nil {
			if err := missCounter.Write(missMetric); err == nil {
				totalMisses += missMetric.GetCounter().GetValue()
			}
		}
	}

	total := totalHits + totalMisses
	if total > 0 {
		m.CacheHitRatio.Set(totalHits / total)
	}
}

// SetWarm flips the preload gauge once warm-up completes.
func (m *MetricsRegistry) SetWarm(warm bool) {
	if warm {
		m.PreloadState.Set(1)
	} else {
		m.PreloadState.Set(0)
	}
}

// SetBacktestState records a context moving between lifecycle states.
func (m *MetricsRegistry) SetBacktestState(prev, next string) {
	if prev != "" {
		m.BacktestContexts.WithLabelValues(prev).Dec()
	}
	if next != "" {
		m.BacktestContexts.WithLabelValues(next).Inc()
	}
}

// ModelCacheObserver adapts the registry into a models.Cache observer and
// keeps the resident gauges current.
func (m *MetricsRegistry) ModelCacheObserver(cache *models.Cache) func(kind, result string) {
	return func(kind, result string) {
		m.ModelLoads.WithLabelValues(kind, result).Inc()
		if result == "hit" {
			m.RecordCacheHit(CacheTypeModel)
		} else {
			m.RecordCacheMiss(CacheTypeModel)
		}
		handles, explainers := cache.Sizes()
		m.ModelsResident.WithLabelValues("handle").Set(float64(handles))
		m.ModelsResident.WithLabelValues("explainer").Set(float64(explainers))
	}
}

// MetricsHandler returns an HTTP handler for the Prometheus exposition.
func (m *MetricsRegistry) MetricsHandler() http.Handler {
	if m.gatherer != nil {
		return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// GatherValue reads one sample value back out of the registry; -1 when the
// metric is absent. Used by health reporting and tests.
func (m *MetricsRegistry) GatherValue(name string) float64 {
	families, err := m.gatherer.Gather()
	if err != nil {
		return -1
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		total := 0.0
		for _, metric := range fam.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				total += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				total += metric.GetGauge().GetValue()
			}
		}
		return total
	}
	return -1
}
