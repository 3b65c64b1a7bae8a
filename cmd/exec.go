package cmd

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"goodsale-pos/config"
	"goodsale-pos/internal/handlers"
	"goodsale-pos/internal/services"
	_ "goodsale-pos/migrations"
	"goodsale-pos/monitoring"
	"goodsale-pos/security"
	"goodsale-pos/utils"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	pubnub "github.com/pubnub/go/v7"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub
	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUUID))
	pnConfig.PublishKey = cfg.PubNubPublishKey
	pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
	pnConfig.SecretKey = cfg.PubNubSecretKey

	pn := pubnub.NewPubNub(pnConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize monitoring
	var monitor *monitoring.Monitor
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor(redisClient)
		go func() {
			if err := monitor.Serve(cfg.MetricsPort); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	// Initialize services and handlers
	paymentService := services.NewPaymentService(redisClient, pn, app, monitor, cfg)
	paymentHandler := handlers.NewPaymentHandler(app, paymentService)
	rateLimiter := security.NewRateLimiter(redisClient)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Start background tasks
	go paymentService.CleanupExpiredPayments(ctx)

	// Setup graceful shutdown
	go handleShutdown(cancel)

	// Register routes
	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Payment endpoints
		e.Router.POST("/api/payment/generate-qr", paymentHandler.GenerateQR).
			BindFunc(rateLimiter.PaymentRateLimit())
		e.Router.POST("/api/payment/verify", paymentHandler.VerifyPayment).
			BindFunc(rateLimiter.PaymentRateLimit())
		e.Router.GET("/api/payment/summary", paymentHandler.GetPaymentSummary)
		e.Router.GET("/api/payment/{paymentId}", paymentHandler.GetPaymentDetails)
		e.Router.GET("/api/payment/{paymentId}/status", paymentHandler.CheckPaymentStatus)
		e.Router.POST("/api/payment/{paymentId}/cancel", paymentHandler.CancelPayment)

		// Test endpoint for payment simulation
		if cfg.Environment == "development" {
			e.Router.POST("/api/test/simulate-payment", paymentHandler.SimulatePayment)
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	return app.Start()
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
