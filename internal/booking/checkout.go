package booking

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"strings"
	"time"
)

type Checkout struct {
	d     Deps
	guard guard
}

func NewCheckout(d Deps) *Checkout {
	d = d.normalized()
	return &Checkout{d: d, guard: guard{dir: d.Directory}}
}

type Quote struct {
	ServiceID       string  `json:"service_id"`
	ServiceName     string  `json:"service_name"`
	DurationMinutes int     `json:"duration_minutes"`
	Currency        string  `json:"currency"`
	Pricing         Pricing `json:"pricing"`
}

func (c *Checkout) Calculate(ctx context.Context, serviceID string) (*Quote, error) {
	if strings.TrimSpace(serviceID) == "" {
		return nil, withMessage(ErrValidation, "service_id is required")
	}
	svc, err := c.d.Directory.Service(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	return &Quote{
		ServiceID:       svc.ID,
		ServiceName:     svc.Name,
		DurationMinutes: svc.DurationMinutes,
		Currency:        c.d.Settings.Currency,
		Pricing:         ComputePricing(svc.PriceCents, c.d.Settings.CommissionPercentage),
	}, nil
}

type AuthorizeInput struct {
	ServiceID string
	Start     time.Time
	// End defaults to Start plus the service duration.
	End          time.Time
	Notes        string
	ContactPhone string
}

type AuthorizeResult struct {
	PaymentIntentID string  `json:"payment_intent_id"`
	ClientSecret    string  `json:"client_secret"`
	Pricing         Pricing `json:"pricing"`
	Currency        string  `json:"currency"`

	// set in hold mode only
	ReservationID        string     `json:"reservation_id,omitempty"`
	ConfirmationDeadline *time.Time `json:"confirmation_deadline,omitempty"`
}

// Authorize writes no reservation row unless hold mode is on.
func (c *Checkout) Authorize(ctx context.Context, payer Actor, in AuthorizeInput) (*AuthorizeResult, error) {
	if payer.UserID == "" {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(in.ServiceID) == "" {
		return nil, withMessage(ErrValidation, "service_id is required")
	}
	svc, err := c.d.Directory.Service(ctx, in.ServiceID)
	if err != nil {
		return nil, err
	}
	start := in.Start.UTC()
	end := in.End.UTC()
	if in.End.IsZero() && !in.Start.IsZero() {
		end = start.Add(svc.Duration())
	}
	if err := validInterval(start, end); err != nil {
		return nil, err
	}
	if !start.After(c.d.Now()) {
		return nil, withMessage(ErrInvalidInterval, "start time must be in the future")
	}

	salon, err := c.d.Directory.Salon(ctx, svc.SalonID)
	if err != nil {
		return nil, err
	}
	if !salon.PaymentsEnabled || salon.PayoutAccountID == "" {
		return nil, ErrPaymentsDisabled
	}
	if c.d.Calendar != nil {
		blocked, err := c.d.Calendar.IsSlotBlocked(ctx, salon.ID, start, end)
		if err != nil {
			return nil, fmt.Errorf("blocked-time lookup: %w", err)
		}
		if blocked {
			return nil, withMessage(ErrSlotUnavailable, "salon is closed during the requested time")
		}
	}

	md := IntentMetadata{
		UserID:       payer.UserID,
		SalonID:      salon.ID,
		ServiceID:    svc.ID,
		Start:        start,
		End:          end,
		Pricing:      ComputePricing(svc.PriceCents, c.d.Settings.CommissionPercentage),
		Notes:        in.Notes,
		ContactPhone: in.ContactPhone,
		Hold:         c.d.Settings.HoldSlot,
	}
	req := AuthorizationRequest{
		Amount:             md.Pricing.TotalPrice,
		ApplicationFee:     md.Pricing.CommissionAmount,
		Currency:           c.d.Settings.Currency,
		DestinationAccount: salon.PayoutAccountID,
		Description:        fmt.Sprintf("%s at %s", svc.Name, salon.Name),
	}
	key := md.SlotKey()
	log := c.d.Log.With(zap.String("salon_id", salon.ID), zap.Int64("lock_key", key.LockID()))

	if md.Hold {
		return c.authorizeHold(ctx, key, md, req, log)
	}

	err = c.d.Store.WithSlotLock(ctx, key, func(ctx context.Context, tx Tx) error {
		taken, err := tx.HasOverlap(ctx, key.SalonID, key.Start, key.End, "")
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotUnavailable
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	req.Metadata = md.Encode()
	auth, err := c.d.Payments.Authorize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("authorize payment: %w", err)
	}
	log.Info("payment authorized", zap.String("payment_intent_id", auth.ID))
	return &AuthorizeResult{
		PaymentIntentID: auth.ID,
		ClientSecret:    auth.ClientSecret,
		Pricing:         md.Pricing,
		Currency:        req.Currency,
	}, nil
}

// authorizeHold keeps the slot lock across the provider call and inserts a
// pending reservation owning the slot until it is confirmed or swept.
func (c *Checkout) authorizeHold(ctx context.Context, key SlotKey, md IntentMetadata, req AuthorizationRequest, log *zap.Logger) (*AuthorizeResult, error) {
	md.ReservationID = uuid.NewString()
	req.Metadata = md.Encode()

	var auth *Authorization
	var deadline time.Time
	err := c.d.Store.WithSlotLock(ctx, key, func(ctx context.Context, tx Tx) error {
		taken, err := tx.HasOverlap(ctx, key.SalonID, key.Start, key.End, "")
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotUnavailable
		}
		if auth, err = c.d.Payments.Authorize(ctx, req); err != nil {
			return fmt.Errorf("authorize payment: %w", err)
		}
		now := c.d.Now()
		r := md.newReservation(md.ReservationID, auth.ID, now)
		r.Status = StatusPending
		r.PaymentStatus = PaymentPending
		r.ConfirmedAt = nil
		if err := tx.InsertReservation(ctx, r); err != nil {
			return err
		}
		deadline, err = setConfirmationDeadline(ctx, tx, r.ID, now, c.d.Settings.ConfirmationHours)
		return err
	})
	if err != nil {
		if auth != nil {
			// the row was rolled back; void the orphaned authorization
			if _, rerr := c.d.Payments.Refund(ctx, auth.ID, RefundReasonSlotTaken); rerr != nil {
				log.Error("void orphaned authorization", zap.String("payment_intent_id", auth.ID), zap.Error(rerr))
			}
		}
		return nil, err
	}
	log.Info("slot held", zap.String("reservation_id", md.ReservationID), zap.String("payment_intent_id", auth.ID), zap.Time("deadline", deadline))
	return &AuthorizeResult{
		PaymentIntentID:      auth.ID,
		ClientSecret:         auth.ClientSecret,
		Pricing:              md.Pricing,
		Currency:             req.Currency,
		ReservationID:        md.ReservationID,
		ConfirmationDeadline: &deadline,
	}, nil
}

// A failed refund leaves the reservation untouched.
func (c *Checkout) Cancel(ctx context.Context, actor Actor, reservationID, reason string) (*Reservation, error) {
	r, err := c.d.Store.Reservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := c.guard.allow(ctx, actor, r); err != nil {
		return nil, err
	}
	if r.Status == StatusCancelled || !CanTransition(r.Status, StatusCancelled) {
		return nil, withMessage(ErrInvalidState, "reservation is %s", r.Status)
	}
	if strings.TrimSpace(reason) == "" {
		reason = RefundReasonCancelled
	}
	log := c.d.Log.With(zap.String("reservation_id", r.ID), zap.String("payment_intent_id", r.PaymentIntentID))

	refunded := false
	if r.PaymentIntentID != "" && r.PaymentStatus != PaymentRefunded {
		rf, err := c.d.Payments.Refund(ctx, r.PaymentIntentID, reason)
		if err != nil {
			log.Error("checkout cancel refund failed", zap.Error(err))
			return nil, fmt.Errorf("%w: %w", ErrRefundFailed, err)
		}
		refunded = r.PaymentStatus == PaymentSucceeded || rf.Status != string(AuthorizationCanceled)
		log.Info("refund issued", zap.String("refund_id", rf.ID), zap.Int64("amount", rf.Amount))
	}

	var out *Reservation
	err = c.d.Store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.ReservationByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if cur.Status == StatusCancelled {
			out = cur
			return nil
		}
		now := c.d.Now()
		cur.Status = StatusCancelled
		cur.CancelledAt = &now
		cur.CancellationReason = reason
		if refunded {
			cur.PaymentStatus = PaymentRefunded
		}
		cur.UpdatedAt = now
		out = cur
		return tx.UpdateReservation(ctx, cur)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("cancel reservation: %w", err)
	}
	return out, nil
}
