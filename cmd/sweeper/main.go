package main

import (
	"context"
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	"github.com/ariefcatur/salon-booking-core/internal/config"
	"github.com/ariefcatur/salon-booking-core/internal/logging"
	"github.com/ariefcatur/salon-booking-core/internal/payments"
	"github.com/ariefcatur/salon-booking-core/internal/postgres"
	"github.com/ariefcatur/salon-booking-core/internal/scheduler"
	"go.uber.org/zap"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// Several instances may run side by side; rows are claimed with SKIP LOCKED.
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
	if cfg.StripeSecretKey == "" {
		logger.Fatal("STRIPE_SECRET_KEY is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	dir := &postgres.Directory{DB: db}
	sw := booking.NewSweeper(booking.Deps{
		Store:     postgres.NewStore(db),
		Payments:  payments.NewStripe(cfg.StripeSecretKey, logger),
		Directory: dir,
		Calendar:  dir,
		Log:       logger.Named("sweeper"),
		Settings:  cfg.BookingSettings(),
	})

	sweep := func(ctx context.Context) error {
		res, err := sw.Sweep(ctx)
		if res.Cancelled > 0 || res.Failed > 0 {
			logger.Info("sweep pass", zap.Int("cancelled", res.Cancelled), zap.Int("failed", res.Failed))
		}
		return err
	}
	complete := func(ctx context.Context) error {
		n, err := sw.CompletePast(ctx)
		if n > 0 {
			logger.Info("completed past reservations", zap.Int64("count", n))
		}
		return err
	}

	s := scheduler.New(ctx, logger)
	if err := s.Every("sweep-expired", cfg.SweepInterval, sweep); err != nil {
		logger.Fatal("schedule sweep", zap.Error(err))
	}
	if err := s.Every("complete-past", cfg.CompleteInterval, complete); err != nil {
		logger.Fatal("schedule completion", zap.Error(err))
	}
	s.RunNow("sweep-expired", sweep)
	s.Start()
	logger.Info("sweeper started", zap.Duration("sweep_interval", cfg.SweepInterval), zap.Duration("complete_interval", cfg.CompleteInterval))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down sweeper")
	cancel()
	s.Stop()
}
