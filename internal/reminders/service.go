// Package reminders turns reservation.created events into scheduled
// reminder tasks.
package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/salon-booking-core/internal/events"
	kafkax "github.com/ariefcatur/salon-booking-core/internal/kafka"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"time"
)

const TypeReminderSend = "reminder:send"

type ReminderPayload struct {
	ReservationID string    `json:"reservation_id"`
	UserID        string    `json:"user_id"`
	SalonID       string    `json:"salon_id"`
	ServiceID     string    `json:"service_id"`
	StartTime     time.Time `json:"start_time"`
}

type deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Service struct {
	Dedup deduper
	Queue enqueuer
	// Lead is how long before the appointment the reminder fires.
	Lead time.Duration
	Log  *zap.Logger
	Now  func() time.Time
}

// HandleMessage consumes one reservation.created envelope. Redeliveries are
// dropped by event id; the task id makes scheduling idempotent per reservation.
func (s *Service) HandleMessage(ctx context.Context, body []byte) (err error) {
	var env events.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		s.Log.Warn("drop undecodable message", zap.Error(err))
		return nil
	}
	if env.EventType != events.EventReservationCreated {
		return nil
	}

	fresh, err := s.Dedup.Claim(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("dedup claim: %w", err)
	}
	if !fresh {
		return nil
	}
	defer func() {
		if err != nil {
			_ = s.Dedup.Release(ctx, env.EventID)
		}
	}()

	p, err := kafkax.UnwrapPayload[events.ReservationCreatedPayload](env.Payload)
	if err != nil {
		return err
	}
	return s.schedule(ctx, p)
}

func (s *Service) schedule(ctx context.Context, p events.ReservationCreatedPayload) error {
	log := s.Log.With(zap.String("reservation_id", p.ReservationID))
	now := s.now()
	if !p.StartTime.After(now) {
		log.Debug("appointment already started; no reminder")
		return nil
	}
	at := p.StartTime.Add(-s.Lead)
	if at.Before(now) {
		at = now
	}

	payload, err := json.Marshal(ReminderPayload{
		ReservationID: p.ReservationID,
		UserID:        p.UserID,
		SalonID:       p.SalonID,
		ServiceID:     p.ServiceID,
		StartTime:     p.StartTime,
	})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeReminderSend, payload)
	_, err = s.Queue.EnqueueContext(ctx, task,
		asynq.TaskID("reminder:"+p.ReservationID),
		asynq.ProcessAt(at),
		asynq.MaxRetry(5),
	)
	switch {
	case errors.Is(err, asynq.ErrTaskIDConflict):
		log.Debug("reminder already scheduled")
		return nil
	case err != nil:
		return fmt.Errorf("enqueue reminder: %w", err)
	}
	log.Info("reminder scheduled", zap.Time("process_at", at))
	return nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
