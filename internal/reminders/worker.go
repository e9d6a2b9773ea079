package reminders

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// NewMux routes reminder tasks. Rendering and delivery belong to the
// notification service; the handler logs the due reminder for it to pick up.
func NewMux(log *zap.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeReminderSend, handleReminder(log))
	return mux
}

func handleReminder(log *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p ReminderPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		log.Info("reminder due",
			zap.String("reservation_id", p.ReservationID),
			zap.String("user_id", p.UserID),
			zap.Time("start_time", p.StartTime),
		)
		return nil
	}
}

// NewServer builds the asynq worker server with zap-backed logging.
func NewServer(opt asynq.RedisClientOpt, concurrency int, log *zap.Logger) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 10
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"default": 1},
		Logger:      log.Sugar(),
	})
}
