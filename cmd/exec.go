package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"

	"ticket-gate/config"
	"ticket-gate/internal/clock"
	"ticket-gate/internal/credential"
	"ticket-gate/internal/handlers"
	"ticket-gate/internal/notify"
	"ticket-gate/internal/services"
	"ticket-gate/internal/services/bank"
	"ticket-gate/internal/services/bank/gateway"
	"ticket-gate/internal/store/sqlstore"
	"ticket-gate/monitoring"
	"ticket-gate/security"
	"ticket-gate/utils"
)

func Start() error {
	app := pocketbase.New()

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Serve on the configured port when started without a subcommand.
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve", "--http", "0.0.0.0:"+cfg.Port)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := sqlstore.Open(ctx, cfg.DBPath, sqlstore.Options{MaxOpenConns: 16, MaxIdleConns: 4})
	if err != nil {
		return err
	}
	defer st.Close()

	codec, err := credential.NewCodec([]byte(cfg.CredentialSecret))
	if err != nil {
		return err
	}

	// Redis only backs the verify rate limiter; run without it if unreachable.
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = utils.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			slog.Warn("redis unavailable, verify rate limiting disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	pn, publisher, closePublishers := setupPublishers(cfg)
	defer closePublishers()

	oracles, err := setupOracles(ctx, cfg)
	if err != nil {
		return err
	}

	mon := monitoring.NewMonitor(st)
	if cfg.EnableMetrics {
		go mon.Run(ctx, cfg.InventoryInterval)
		go serveMetrics(ctx, cfg.MetricsPort)
	}

	clk := clock.Real()

	// Initialize services
	eventService := services.NewEventService(st, clk)
	officerService := services.NewOfficerService(st, clk)
	issuanceService := services.NewIssuanceService(st, codec, publisher, mon, clk)
	verificationService := services.NewVerificationService(st, officerService, codec, publisher, mon, clk, cfg.CredentialMaxAge)
	orderService := services.NewOrderService(st, oracles, issuanceService, mon, clk, services.OrderOptions{
		MaxRetries: cfg.PaymentMaxRetries,
	})

	// Initialize handlers
	eventHandler := handlers.NewEventHandler(eventService)
	officerHandler := handlers.NewOfficerHandler(officerService)
	orderHandler := handlers.NewOrderHandler(orderService)
	ticketHandler := handlers.NewTicketHandler(st)
	verifyHandler := handlers.NewVerifyHandler(verificationService)

	limiter := security.NewRateLimiter(redisClient, cfg.VerifyRateLimit, mon)

	if pn != nil && cfg.PaymentNotifyChannel != "" {
		go notify.Subscribe(ctx, pn, cfg.PaymentNotifyChannel, orderService.HandleNotification)
	}

	registerCredentialCommand(app, cfg)

	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		// Organizer setup
		e.Router.POST("/api/v1/events", eventHandler.CreateEvent)
		e.Router.GET("/api/v1/events/{eventId}", eventHandler.GetEvent)
		e.Router.POST("/api/v1/events/{eventId}/ticket-types", eventHandler.AddTicketType)
		e.Router.GET("/api/v1/events/{eventId}/ticket-types", eventHandler.ListTicketTypes)

		// Officers
		e.Router.POST("/api/v1/events/{eventId}/officers", officerHandler.RegisterOfficer)
		e.Router.GET("/api/v1/events/{eventId}/officers", officerHandler.ListOfficers)
		e.Router.PATCH("/api/v1/officers/{officerId}", officerHandler.UpdateOfficer)

		// Orders
		e.Router.POST("/api/v1/orders", orderHandler.CreateOrder).BindFunc(limiter.AntiBotMiddleware())
		e.Router.POST("/api/v1/orders/{orderId}/confirm", orderHandler.ConfirmPayment).BindFunc(limiter.AntiBotMiddleware())
		e.Router.POST("/api/v1/orders/{orderId}/cancel", orderHandler.CancelOrder)
		e.Router.GET("/api/v1/orders/{orderId}/tickets", orderHandler.ListTickets)

		e.Router.GET("/api/v1/tickets/{ticketId}/qr", ticketHandler.TicketQR)

		// Gate
		e.Router.POST("/api/v1/events/{eventId}/verify", verifyHandler.Verify).BindFunc(limiter.VerifyRateLimit())
		e.Router.GET("/api/v1/events/{eventId}/verifications", verifyHandler.Verifications)

		e.Router.GET("/health", func(e *core.RequestEvent) error {
			ctx := e.Request.Context()
			if err := st.Ping(ctx); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			if redisClient != nil {
				if err := utils.RedisHealthCheck(ctx, redisClient); err != nil {
					return e.JSON(http.StatusServiceUnavailable, map[string]string{
						"status": "degraded",
						"error":  err.Error(),
					})
				}
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		slog.Info("server routes registered", "environment", cfg.Environment)

		return e.Next()
	})

	return app.Start()
}

// setupPublishers builds the notification fan-out. The returned pubnub client
// is nil when pubnub is not configured.
func setupPublishers(cfg *config.Config) (*pubnub.PubNub, notify.Publisher, func()) {
	var (
		pn      *pubnub.PubNub
		multi   notify.Multi
		closers []func() error
	)

	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pn = notify.NewPubNubClient(notify.PubNubConfig{
			PublishKey:   cfg.PubNubPublishKey,
			SubscribeKey: cfg.PubNubSubscribeKey,
			SecretKey:    cfg.PubNubSecretKey,
			UserID:       cfg.PubNubUserID,
		})
		multi = append(multi, notify.NewPubNubPublisher(pn))
	}

	if cfg.AMQPURL != "" {
		amqpPub, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			slog.Warn("amqp unavailable, skipping broker notifications", "error", err)
		} else {
			multi = append(multi, amqpPub)
			closers = append(closers, amqpPub.Close)
		}
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				slog.Warn("close publisher", "error", err)
			}
		}
	}

	if len(multi) == 0 {
		return pn, notify.Nop{}, closeAll
	}
	return pn, multi, closeAll
}

func setupOracles(ctx context.Context, cfg *config.Config) (*bank.Registry, error) {
	registry := bank.NewRegistry()

	if cfg.PaymentGatewayURL != "" {
		client := gateway.New(&gateway.Config{
			BaseURL:   cfg.PaymentGatewayURL,
			PartnerID: cfg.PaymentPartnerID,
			ClientID:  cfg.PaymentClientID,
			ClientKey: cfg.PaymentClientKey,
			HMACKey:   cfg.PaymentHMACKey,
			Timeout:   cfg.PaymentTimeout,
		})
		if err := client.Connect(ctx); err != nil {
			// Requests retry authentication on their own; keep serving.
			slog.Error("payment gateway connect", "error", err)
		}
		go client.RefreshLoop(ctx, 50*time.Minute)
		registry.Register(client)
	}

	if cfg.PaymentStaticApprove {
		slog.Warn("PAYMENT_STATIC_APPROVE is set, every payment reference is approved")
		registry.Register(bank.NewStatic(true))
	}

	if len(registry.Providers()) == 0 {
		return nil, errors.New("no payment oracle configured")
	}
	return registry, nil
}

func serveMetrics(ctx context.Context, port string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("metrics server listening", "port", port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server", "error", err)
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("shutdown signal received, cleaning up")
	cancel()
}
