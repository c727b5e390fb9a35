package metrics

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forest-dashboard/backend/pkg/circuitbreaker"
)

var (
	BackendCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forest_dash_backend_call_duration_seconds",
			Help:    "Duration of warehouse and geo-engine calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"backend", "operation", "status"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forest_dash_http_requests_total",
			Help: "Total API requests by endpoint and response status",
		},
		[]string{"endpoint", "status"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forest_dash_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forest_dash_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	CacheErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forest_dash_cache_errors_total",
			Help: "Cache reads or writes that failed and were skipped",
		},
		[]string{"operation"},
	)

	SessionInitAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forest_dash_session_init_attempts_total",
			Help: "Backend session initialization attempts",
		},
		[]string{"backend", "status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "forest_dash_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	CoverFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "forest_dash_forest_cover_fallbacks_total",
			Help: "Forest-loss responses returned with forest_cover null after a cover lookup failed",
		},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(BackendCallDuration)
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(CacheErrors)
		prometheus.MustRegister(SessionInitAttempts)
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CoverFallbacks)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// Middleware counts requests by route pattern and response status.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		HTTPRequestsTotal.WithLabelValues(c.Route().Path, strconv.Itoa(status)).Inc()

		return err
	}
}

// ObserveBackendCall records the duration of a backend call started at start.
func ObserveBackendCall(backend, operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	BackendCallDuration.WithLabelValues(backend, operation, status).Observe(time.Since(start).Seconds())
}

func ObserveSessionInit(backend string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	SessionInitAttempts.WithLabelValues(backend, status).Inc()
}

// BreakerStateChanged is suitable as circuitbreaker.Config.OnStateChange.
func BreakerStateChanged(name string, from, to circuitbreaker.State) {
	var v float64
	switch to {
	case circuitbreaker.StateHalfOpen:
		v = 1
	case circuitbreaker.StateOpen:
		v = 2
	}
	CircuitBreakerState.WithLabelValues(name).Set(v)
}
