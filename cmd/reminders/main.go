package main

import (
	"context"
	"github.com/ariefcatur/salon-booking-core/internal/config"
	"github.com/ariefcatur/salon-booking-core/internal/events"
	kafkax "github.com/ariefcatur/salon-booking-core/internal/kafka"
	"github.com/ariefcatur/salon-booking-core/internal/logging"
	"github.com/ariefcatur/salon-booking-core/internal/rabbitmq"
	"github.com/ariefcatur/salon-booking-core/internal/redisx"
	"github.com/ariefcatur/salon-booking-core/internal/reminders"
	"github.com/hibiken/asynq"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"log"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis (dedup + asynq)
	rdb := redisx.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rdb.Close()
	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	queue := asynq.NewClient(redisOpt)
	defer queue.Close()

	svc := &reminders.Service{
		Dedup: &redisx.Dedup{RDB: rdb, Service: cfg.ReminderGroup},
		Queue: queue,
		Lead:  cfg.ReminderLead,
		Log:   logger.Named("reminders"),
	}

	// Worker
	srv := reminders.NewServer(redisOpt, cfg.ReminderWorkers, logger.Named("asynq"))
	if err := srv.Start(reminders.NewMux(logger)); err != nil {
		logger.Fatal("asynq server", zap.Error(err))
	}

	// Consumer
	go func() {
		var err error
		switch cfg.EventsBackend {
		case "kafka":
			cons := kafkax.NewConsumer(cfg.Brokers(), cfg.ReminderGroup, events.TopicReservationCreated, cfg.ReminderWorkers, logger)
			logger.Info("reminder consumer started", zap.String("backend", "kafka"), zap.String("group", cfg.ReminderGroup))
			err = cons.Start(ctx, func(ctx context.Context, m kafkago.Message) error {
				return svc.HandleMessage(ctx, m.Value)
			})
		case "rabbitmq":
			logger.Info("reminder consumer started", zap.String("backend", "rabbitmq"))
			err = rabbitmq.Consume(ctx, cfg.RabbitMQURL, events.TopicReservationCreated, cfg.ReminderWorkers, logger, svc.HandleMessage)
		default:
			logger.Warn("EVENTS_BACKEND is none; only the task worker runs")
			return
		}
		if err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	logger.Info("shutting down reminders")
	cancel()
	time.Sleep(500 * time.Millisecond)
	srv.Shutdown()
}
