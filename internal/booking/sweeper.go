package booking

import (
	"context"
	"errors"
	"fmt"
	"go.uber.org/zap"
	"math"
	"time"
)

type Sweeper struct {
	d     Deps
	guard guard
}

func NewSweeper(d Deps) *Sweeper {
	d = d.normalized()
	return &Sweeper{d: d, guard: guard{dir: d.Directory}}
}

type SweepResult struct {
	Cancelled int
	Failed    int
}

// rowError marks a per-reservation failure that must not abort the pass.
type rowError struct {
	id  string
	err error
}

func (e *rowError) Error() string { return fmt.Sprintf("reservation %s: %v", e.id, e.err) }
func (e *rowError) Unwrap() error { return e.err }

// Sweep leaves a row pending for the next pass when its refund fails.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	var skip []string
	for res.Cancelled+res.Failed < s.d.Settings.SweepBatchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		done := false
		err := s.d.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			r, err := tx.ClaimExpiredPending(ctx, s.d.Now(), skip)
			if errors.Is(err, ErrNotFound) {
				done = true
				return nil
			}
			if err != nil {
				return err
			}
			return s.expire(ctx, tx, r)
		})
		var rerr *rowError
		switch {
		case done:
			return res, nil
		case errors.As(err, &rerr):
			s.d.Log.Warn("sweep: reservation left pending", zap.String("reservation_id", rerr.id), zap.Error(rerr.err))
			skip = append(skip, rerr.id)
			res.Failed++
		case err != nil:
			return res, fmt.Errorf("sweep: %w", err)
		default:
			res.Cancelled++
		}
	}
	return res, nil
}

func (s *Sweeper) expire(ctx context.Context, tx Tx, r *Reservation) error {
	refunded := r.PaymentStatus == PaymentSucceeded
	if r.PaymentIntentID != "" {
		rf, err := s.d.Payments.Refund(ctx, r.PaymentIntentID, RefundReasonDeadline)
		if err != nil {
			return &rowError{id: r.ID, err: fmt.Errorf("%w: %w", ErrRefundFailed, err)}
		}
		refunded = refunded || rf.Status != string(AuthorizationCanceled)
	}
	now := s.d.Now()
	r.Status = StatusCancelled
	r.AutoCancelled = true
	r.AutoCancelReason = RefundReasonDeadline
	r.CancellationReason = RefundReasonDeadline
	r.CancelledAt = &now
	r.UpdatedAt = now
	if refunded {
		r.PaymentStatus = PaymentRefunded
	}
	if err := tx.UpdateReservation(ctx, r); err != nil {
		return &rowError{id: r.ID, err: err}
	}
	s.d.Log.Info("sweep: reservation auto-cancelled",
		zap.String("reservation_id", r.ID),
		zap.String("payment_intent_id", r.PaymentIntentID),
	)
	return nil
}

func (s *Sweeper) CompletePast(ctx context.Context) (int64, error) {
	var n int64
	err := s.d.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		n, err = tx.CompletePast(ctx, s.d.Now())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("complete past reservations: %w", err)
	}
	if n > 0 {
		s.d.Log.Info("reservations completed", zap.Int64("count", n))
	}
	return n, nil
}

// Non-positive hours use the configured default.
func (s *Sweeper) SetConfirmationDeadline(ctx context.Context, reservationID string, hours int) (time.Time, error) {
	if hours <= 0 {
		hours = s.d.Settings.ConfirmationHours
	}
	var deadline time.Time
	err := s.d.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		deadline, err = setConfirmationDeadline(ctx, tx, reservationID, s.d.Now(), hours)
		return err
	})
	return deadline, err
}

func setConfirmationDeadline(ctx context.Context, tx Tx, id string, now time.Time, hours int) (time.Time, error) {
	if hours <= 0 {
		hours = DefaultConfirmationHours
	}
	deadline := now.Add(time.Duration(hours) * time.Hour)
	if err := tx.SetConfirmationDeadline(ctx, id, deadline); err != nil {
		return time.Time{}, err
	}
	return deadline, nil
}

// CheckTimeoutStatus reports how long a pending reservation has left to be confirmed.
func (s *Sweeper) CheckTimeoutStatus(ctx context.Context, actor Actor, reservationID string) (*TimeoutStatus, error) {
	r, err := s.d.Store.Reservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.allow(ctx, actor, r); err != nil {
		return nil, err
	}
	return TimeoutStatusAt(r, s.d.Now()), nil
}

func TimeoutStatusAt(r *Reservation, now time.Time) *TimeoutStatus {
	ts := &TimeoutStatus{
		ReservationID: r.ID,
		Status:        r.Status,
		Deadline:      r.ConfirmationDeadline,
		AutoCancelled: r.AutoCancelled,
		Expired:       r.AutoCancelled,
	}
	if r.Status != StatusPending || r.ConfirmationDeadline == nil {
		return ts
	}
	left := r.ConfirmationDeadline.Sub(now)
	if left <= 0 {
		ts.Expired = true
		return ts
	}
	ts.MinutesRemaining = int(math.Ceil(left.Minutes()))
	return ts
}
