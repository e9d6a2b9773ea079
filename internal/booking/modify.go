package booking

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"time"
)

// Modifier writes every effective change with one audit entry in the same transaction.
type Modifier struct {
	d     Deps
	guard guard
}

func NewModifier(d Deps) *Modifier {
	d = d.normalized()
	return &Modifier{d: d, guard: guard{dir: d.Directory}}
}

// ModifyInput holds the requested changes; nil fields are left as they are.
type ModifyInput struct {
	ServiceID *string
	Start     *time.Time
	End       *time.Time
	Notes     *string
}

// Audited fields.
const (
	FieldServiceID        = "service_id"
	FieldStartTime        = "start_time"
	FieldEndTime          = "end_time"
	FieldNotes            = "notes"
	FieldTotalPrice       = "total_price"
	FieldCommissionAmount = "commission_amount"
	FieldAmountToMerchant = "amount_to_merchant"
)

const maxModifyAttempts = 3

// errStaleSnapshot aborts a transaction planned from an outdated read.
var errStaleSnapshot = errors.New("reservation changed since it was read")

func (m *Modifier) Modify(ctx context.Context, actor Actor, reservationID string, in ModifyInput) (*Detail, error) {
	for attempt := 1; ; attempt++ {
		entry, err := m.modifyOnce(ctx, actor, reservationID, in)
		if errors.Is(err, errStaleSnapshot) {
			if attempt < maxModifyAttempts {
				continue
			}
			return nil, withMessage(ErrInvalidState, "reservation changed concurrently, try again")
		}
		if err != nil {
			return nil, err
		}
		if entry != nil {
			m.d.Log.Info("reservation modified",
				zap.String("reservation_id", reservationID),
				zap.String("actor", actor.UserID),
				zap.Int("changed_fields", len(entry.Changes)),
			)
		}
		return m.d.Store.Detail(ctx, reservationID)
	}
}

// modifyOnce aborts with errStaleSnapshot when the locked row no longer matches its read.
func (m *Modifier) modifyOnce(ctx context.Context, actor Actor, reservationID string, in ModifyInput) (*AuditEntry, error) {
	r, err := m.d.Store.Reservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := m.guard.allow(ctx, actor, r); err != nil {
		return nil, err
	}
	if !r.Status.Modifiable() {
		return nil, withMessage(ErrInvalidState, "a %s reservation cannot be modified", r.Status)
	}

	var svc *Service
	if in.ServiceID != nil && *in.ServiceID != r.ServiceID {
		if svc, err = m.d.Directory.Service(ctx, *in.ServiceID); err != nil {
			return nil, err
		}
		if svc.SalonID != r.SalonID {
			return nil, withMessage(ErrValidation, "service belongs to a different salon")
		}
	}

	start, end := r.StartTime, r.EndTime
	if in.Start != nil {
		start = in.Start.UTC()
	}
	switch {
	case in.End != nil:
		end = in.End.UTC()
	case svc != nil:
		end = start.Add(svc.Duration())
	case in.Start != nil:
		end = start.Add(r.EndTime.Sub(r.StartTime))
	}
	moved := !start.Equal(r.StartTime) || !end.Equal(r.EndTime)
	if moved {
		if err := validInterval(start, end); err != nil {
			return nil, err
		}
		if m.d.Calendar != nil {
			blocked, err := m.d.Calendar.IsSlotBlocked(ctx, r.SalonID, start, end)
			if err != nil {
				return nil, fmt.Errorf("blocked-time lookup: %w", err)
			}
			if blocked {
				return nil, withMessage(ErrSlotUnavailable, "salon is closed during the requested time")
			}
		}
	}

	var entry *AuditEntry
	apply := func(ctx context.Context, tx Tx) error {
		entry = nil
		cur, err := tx.ReservationByID(ctx, reservationID)
		if err != nil {
			return err
		}
		if !cur.Status.Modifiable() {
			return withMessage(ErrInvalidState, "a %s reservation cannot be modified", cur.Status)
		}
		// start, end and the lock were derived from r
		if !cur.StartTime.Equal(r.StartTime) || !cur.EndTime.Equal(r.EndTime) || cur.ServiceID != r.ServiceID {
			return errStaleSnapshot
		}
		if moved {
			taken, err := tx.HasOverlap(ctx, cur.SalonID, start, end, cur.ID)
			if err != nil {
				return err
			}
			if taken {
				return ErrSlotUnavailable
			}
		}

		next := *cur
		next.StartTime, next.EndTime = start, end
		if svc != nil {
			next.ServiceID = svc.ID
			next.applyPricing(ComputePricing(svc.PriceCents, cur.CommissionPercentage))
		}
		if in.Notes != nil {
			next.Notes = *in.Notes
		}
		changes := diffReservation(cur, &next)
		if len(changes) == 0 {
			return nil
		}
		now := m.d.Now()
		next.UpdatedAt = now
		if err := tx.UpdateReservation(ctx, &next); err != nil {
			return err
		}
		entry = &AuditEntry{
			ID:            uuid.NewString(),
			ReservationID: cur.ID,
			ActorUserID:   actor.UserID,
			Action:        AuditActionModified,
			Changes:       changes,
			CreatedAt:     now,
		}
		return tx.InsertAudit(ctx, entry)
	}

	if moved {
		err = m.d.Store.WithSlotLock(ctx, NewSlotKey(r.SalonID, start, end), apply)
	} else {
		err = m.d.Store.WithinTx(ctx, apply)
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func diffReservation(old, next *Reservation) map[string]Change {
	out := map[string]Change{}
	if old.ServiceID != next.ServiceID {
		out[FieldServiceID] = Change{Old: old.ServiceID, New: next.ServiceID}
	}
	if !old.StartTime.Equal(next.StartTime) {
		out[FieldStartTime] = Change{Old: old.StartTime.UTC().Format(time.RFC3339), New: next.StartTime.UTC().Format(time.RFC3339)}
	}
	if !old.EndTime.Equal(next.EndTime) {
		out[FieldEndTime] = Change{Old: old.EndTime.UTC().Format(time.RFC3339), New: next.EndTime.UTC().Format(time.RFC3339)}
	}
	if old.Notes != next.Notes {
		out[FieldNotes] = Change{Old: old.Notes, New: next.Notes}
	}
	if old.TotalPrice != next.TotalPrice {
		out[FieldTotalPrice] = Change{Old: old.TotalPrice, New: next.TotalPrice}
	}
	if old.CommissionAmount != next.CommissionAmount {
		out[FieldCommissionAmount] = Change{Old: old.CommissionAmount, New: next.CommissionAmount}
	}
	if old.AmountToMerchant != next.AmountToMerchant {
		out[FieldAmountToMerchant] = Change{Old: old.AmountToMerchant, New: next.AmountToMerchant}
	}
	return out
}

func (m *Modifier) Get(ctx context.Context, actor Actor, reservationID string) (*Detail, error) {
	d, err := m.d.Store.Detail(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := m.guard.allow(ctx, actor, &d.Reservation); err != nil {
		return nil, err
	}
	return d, nil
}

// History returns the audit entries of a reservation, oldest first.
func (m *Modifier) History(ctx context.Context, actor Actor, reservationID string) ([]AuditEntry, error) {
	r, err := m.d.Store.Reservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := m.guard.allow(ctx, actor, r); err != nil {
		return nil, err
	}
	return m.d.Store.AuditLog(ctx, reservationID)
}
