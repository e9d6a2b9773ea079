package main

import (
	"context"
	"errors"
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	"github.com/ariefcatur/salon-booking-core/internal/config"
	"github.com/ariefcatur/salon-booking-core/internal/events"
	"github.com/ariefcatur/salon-booking-core/internal/httpx"
	kafkax "github.com/ariefcatur/salon-booking-core/internal/kafka"
	"github.com/ariefcatur/salon-booking-core/internal/logging"
	"github.com/ariefcatur/salon-booking-core/internal/payments"
	"github.com/ariefcatur/salon-booking-core/internal/postgres"
	"github.com/ariefcatur/salon-booking-core/internal/rabbitmq"
	"github.com/ariefcatur/salon-booking-core/internal/redisx"
	"go.uber.org/zap"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}
	if cfg.JWTSecret == "" || cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" {
		logger.Fatal("JWT_SECRET, STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rdb.Close()

	// Events
	var (
		dispatcher booking.Dispatcher
		shutdownEv = func() {}
	)
	switch cfg.EventsBackend {
	case "kafka":
		prod := kafkax.NewProducer(cfg.Brokers(), events.TopicReservationCreated, 1024, logger)
		prod.Start(ctx)
		dispatcher = &events.KafkaDispatcher{P: prod, Service: cfg.ServiceName}
		shutdownEv = func() {
			prod.Close()      // close inbox, flush writer
			prod.WaitClosed() // drain
		}
	case "rabbitmq":
		pub := rabbitmq.NewPublisher(cfg.RabbitMQURL, logger)
		dispatcher = &events.RabbitDispatcher{P: pub, Service: cfg.ServiceName}
		shutdownEv = func() { _ = pub.Close() }
	}

	dir := &postgres.Directory{DB: db}
	deps := booking.Deps{
		Store:     postgres.NewStore(db),
		Payments:  payments.NewStripe(cfg.StripeSecretKey, logger),
		Directory: dir,
		Calendar:  dir,
		Events:    dispatcher,
		Log:       logger,
		Settings:  cfg.BookingSettings(),
	}

	router := httpx.NewRouter(logger)
	httpx.Mount(router,
		&httpx.Authenticator{Secret: []byte(cfg.JWTSecret)},
		&httpx.CheckoutHandler{Checkout: booking.NewCheckout(deps), Confirmer: booking.NewConfirmer(deps), Log: logger},
		&httpx.ReservationsHandler{
			Modifier: booking.NewModifier(deps),
			Sweeper:  booking.NewSweeper(deps),
			Cache:    &redisx.StatusCache{RDB: rdb},
			Log:      logger,
		},
		&httpx.WebhookHandler{
			Parser:     payments.NewVerifier(cfg.StripeWebhookSecret),
			Reconciler: booking.NewReconciler(deps),
			Dedup:      &redisx.Dedup{RDB: rdb, Service: cfg.ServiceName + "-webhooks", TTL: cfg.WebhookDedupTTL},
			Log:        logger,
		},
	)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	// graceful shutdown
	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("events", cfg.EventsBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	shutdownEv()
	cancel()
}
