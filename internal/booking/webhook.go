package booking

import (
	"context"
	"errors"
	"fmt"
	"go.uber.org/zap"
)

const ReasonPaymentReversed = "payment reversed"

// Reconciler applies verified provider events. Every handler is conditioned
// on current state so redelivered events are no-ops.
type Reconciler struct {
	d Deps
}

func NewReconciler(d Deps) *Reconciler { return &Reconciler{d: d.normalized()} }

// Handle returns an error only when the provider should redeliver the event.
func (r *Reconciler) Handle(ctx context.Context, ev ProviderEvent) error {
	log := r.d.Log.With(
		zap.String("event_id", ev.ID),
		zap.String("event_type", string(ev.Type)),
		zap.String("payment_intent_id", ev.PaymentIntentID),
	)
	switch ev.Type {
	case EventFundsCaptured:
		return r.fundsCaptured(ctx, ev, log)
	case EventAuthorizationFailed:
		log.Warn("payment authorization failed", zap.String("reason", ev.Reason))
		return nil
	case EventFundsReversed:
		return r.fundsReversed(ctx, ev, log)
	default:
		log.Debug("ignored provider event")
		return nil
	}
}

func (r *Reconciler) fundsCaptured(ctx context.Context, ev ProviderEvent, log *zap.Logger) error {
	md, err := ParseIntentMetadata(ev.Metadata)
	if err != nil {
		// not retryable
		log.Error("corrupt payment intent", zap.Error(err))
		return nil
	}
	if md.ReservationID != "" && !md.Hold {
		log.Debug("already confirmed by client", zap.String("reservation_id", md.ReservationID))
		return nil
	}

	_, err = admit(ctx, r.d, ev.PaymentIntentID, md, SourceWebhook)
	var taken *SlotTakenError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &taken):
		log.Info("reconciliation lost slot", zap.String("refund_id", taken.RefundID))
		return nil
	case errors.Is(err, ErrConfirmationExpired):
		log.Warn("capture for expired reservation", zap.Error(err))
		return nil
	default:
		return fmt.Errorf("reconcile %s: %w", ev.PaymentIntentID, err)
	}
}

func (r *Reconciler) fundsReversed(ctx context.Context, ev ProviderEvent, log *zap.Logger) error {
	if ev.PaymentIntentID == "" {
		log.Warn("reversal without payment intent")
		return nil
	}
	reason := ev.Reason
	if reason == "" {
		reason = ReasonPaymentReversed
	}
	err := r.d.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		res, err := tx.ReservationByPaymentIntent(ctx, ev.PaymentIntentID)
		if err != nil {
			return err
		}
		if res.Status == StatusCancelled {
			return nil
		}
		now := r.d.Now()
		res.Status = StatusCancelled
		res.PaymentStatus = PaymentRefunded
		res.CancelledAt = &now
		if res.CancellationReason == "" {
			res.CancellationReason = reason
		}
		res.UpdatedAt = now
		if err := tx.UpdateReservation(ctx, res); err != nil {
			return err
		}
		log.Info("reservation cancelled after reversal", zap.String("reservation_id", res.ID))
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		log.Info("reversal for unknown reservation")
		return nil
	}
	return err
}
