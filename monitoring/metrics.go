package monitoring

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

var (
	pendingPayments = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pending_payments_total",
			Help: "Current number of payment sessions held in Redis",
		},
	)

	paymentOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_operations_total",
			Help: "Total payment operations by outcome",
		},
		[]string{"operation", "status"},
	)

	qrGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qr_generation_duration_seconds",
			Help:    "Time spent building the payload and rendering the QR image",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		},
	)
)

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	// Start metrics collection
	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()

		keys, _ := m.redis.Keys(ctx, "payment:*").Result()
		pendingPayments.Set(float64(len(keys)))
	}
}

// TrackPaymentOperation records one payment operation outcome.
func (m *Monitor) TrackPaymentOperation(operation, status string) {
	paymentOperations.WithLabelValues(operation, status).Inc()
}

// TrackQRGeneration records how long one QR generation took.
func (m *Monitor) TrackQRGeneration(duration time.Duration) {
	qrGenerationDuration.Observe(duration.Seconds())
}

// Serve exposes /metrics and /healthz on its own port, away from the
// public API surface.
func (m *Monitor) Serve(port string) error {
	e := echo.New()

	metricsHandler := promhttp.Handler()
	e.GET("/metrics", func(c echo.Context) error {
		metricsHandler.ServeHTTP(c.Response(), c.Request())
		return nil
	})
	e.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		if err := m.redis.Ping(ctx).Err(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: e,
	}
	return srv.ListenAndServe()
}
