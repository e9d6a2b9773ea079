package booking

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"time"
)

const (
	SourceClient  = "client"
	SourceWebhook = "webhook"
)

// Confirmer turns a captured payment into a confirmed reservation.
type Confirmer struct {
	d Deps
}

func NewConfirmer(d Deps) *Confirmer { return &Confirmer{d: d.normalized()} }

// Confirm refunds and returns a *SlotTakenError when the slot race is lost.
func (c *Confirmer) Confirm(ctx context.Context, actor Actor, paymentIntentID string) (*Detail, error) {
	if paymentIntentID == "" {
		return nil, withMessage(ErrValidation, "payment_intent_id is required")
	}
	log := c.d.Log.With(zap.String("payment_intent_id", paymentIntentID))

	auth, err := c.d.Payments.RetrieveAuthorization(ctx, paymentIntentID)
	if err != nil {
		return nil, fmt.Errorf("retrieve authorization: %w", err)
	}
	if auth.Status != AuthorizationSucceeded {
		return nil, withMessage(ErrPaymentNotCaptured, "payment status is %s", auth.Status)
	}
	md, err := ParseIntentMetadata(auth.Metadata)
	if err != nil {
		log.Error("corrupt payment intent", zap.Error(err))
		return nil, err
	}
	if actor.Role != RoleAdmin && actor.UserID != md.UserID {
		return nil, ErrForbidden
	}

	r, err := admit(ctx, c.d, paymentIntentID, md, SourceClient)
	if err != nil {
		return nil, err
	}
	return c.d.Store.Detail(ctx, r.ID)
}

// errSlotLost rolls back an admission whose slot was taken meanwhile.
var errSlotLost = errors.New("slot lost")

// admit is the lock, recheck, create-or-refund sequence shared by client
// confirmation and webhook reconciliation.
func admit(ctx context.Context, d Deps, intentID string, md IntentMetadata, source string) (*Reservation, error) {
	key := md.SlotKey()
	log := d.Log.With(
		zap.String("payment_intent_id", intentID),
		zap.String("salon_id", md.SalonID),
		zap.Int64("lock_key", key.LockID()),
		zap.String("source", source),
	)

	var out *Reservation
	created := false
	err := d.Store.WithSlotLock(ctx, key, func(ctx context.Context, tx Tx) error {
		out, created = nil, false
		now := d.Now()

		existing, err := tx.ReservationByPaymentIntent(ctx, intentID)
		switch {
		case err == nil:
			out, created, err = settleExisting(ctx, tx, existing, now)
			return err
		case !errors.Is(err, ErrNotFound):
			return err
		}

		taken, err := tx.HasOverlap(ctx, key.SalonID, key.Start, key.End, "")
		if err != nil {
			return err
		}
		if taken {
			return errSlotLost
		}
		r := md.newReservation(uuid.NewString(), intentID, now)
		if err := tx.InsertReservation(ctx, r); err != nil {
			if errors.Is(err, ErrSlotUnavailable) {
				return errSlotLost
			}
			return err
		}
		out, created = r, true
		return nil
	})

	switch {
	case errors.Is(err, errSlotLost):
		return nil, refundLoser(ctx, d, intentID, log)
	case errors.Is(err, ErrDuplicatePaymentIntent):
		// another admission of this intent committed first
		log.Info("payment intent admitted concurrently")
		err = d.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
			existing, err := tx.ReservationByPaymentIntent(ctx, intentID)
			if err != nil {
				return err
			}
			out, created, err = settleExisting(ctx, tx, existing, d.Now())
			return err
		})
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	if !created {
		log.Info("payment already admitted", zap.String("reservation_id", out.ID))
		return out, nil
	}
	log.Info("reservation confirmed", zap.String("reservation_id", out.ID))
	afterCreate(ctx, d, out, md, source, log)
	return out, nil
}

// settleExisting resolves an admission whose payment intent already has a
// reservation: a pending hold is promoted, a cancelled one has expired and
// anything else is returned unchanged.
func settleExisting(ctx context.Context, tx Tx, existing *Reservation, now time.Time) (*Reservation, bool, error) {
	switch existing.Status {
	case StatusPending:
		existing.Status = StatusConfirmed
		existing.PaymentStatus = PaymentSucceeded
		existing.ConfirmedAt = &now
		existing.UpdatedAt = now
		if err := tx.UpdateReservation(ctx, existing); err != nil {
			return nil, false, err
		}
		return existing, true, nil
	case StatusCancelled:
		return nil, false, withMessage(ErrConfirmationExpired, "reservation %s was cancelled", existing.ID)
	default:
		return existing, false, nil
	}
}

func refundLoser(ctx context.Context, d Deps, intentID string, log *zap.Logger) error {
	rf, err := d.Payments.Refund(ctx, intentID, RefundReasonSlotTaken)
	if err != nil {
		log.Error("refund after lost slot failed", zap.Error(err))
		return fmt.Errorf("%w: payment %s lost its slot: %w", ErrRefundFailed, intentID, err)
	}
	log.Warn("slot taken, payment refunded", zap.String("refund_id", rf.ID), zap.Int64("amount", rf.Amount))
	return &SlotTakenError{PaymentIntentID: intentID, RefundID: rf.ID}
}

// afterCreate only logs failures.
func afterCreate(ctx context.Context, d Deps, r *Reservation, md IntentMetadata, source string, log *zap.Logger) {
	md.ReservationID = r.ID
	if err := d.Payments.UpdateMetadata(ctx, r.PaymentIntentID, md.Encode()); err != nil {
		log.Warn("link reservation to payment intent", zap.Error(err))
	}
	if d.Events == nil {
		return
	}
	ev := ReservationCreated{
		ReservationID: r.ID,
		UserID:        r.UserID,
		SalonID:       r.SalonID,
		ServiceID:     r.ServiceID,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
		TotalPrice:    r.TotalPrice,
		Source:        source,
	}
	if err := d.Events.ReservationCreated(ctx, ev); err != nil {
		log.Warn("dispatch reservation.created", zap.Error(err))
	}
}
