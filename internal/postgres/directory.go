package postgres

import (
	"context"
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	"github.com/jackc/pgx/v5/pgxpool"
	"time"
)

// Directory reads salon and service data owned by the catalogue service.
type Directory struct{ DB *pgxpool.Pool }

func (d *Directory) Service(ctx context.Context, id string) (*booking.Service, error) {
	var s booking.Service
	err := d.DB.QueryRow(ctx, `
		SELECT id, salon_id, name, price_cents, duration_minutes
		FROM services WHERE id=$1`, id).Scan(&s.ID, &s.SalonID, &s.Name, &s.PriceCents, &s.DurationMinutes)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (d *Directory) Salon(ctx context.Context, id string) (*booking.Salon, error) {
	var s booking.Salon
	err := d.DB.QueryRow(ctx, `
		SELECT id, name, COALESCE(stripe_account_id, ''), payments_enabled
		FROM salons WHERE id=$1`, id).Scan(&s.ID, &s.Name, &s.PayoutAccountID, &s.PaymentsEnabled)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (d *Directory) IsSalonStaff(ctx context.Context, salonID, userID string) (bool, error) {
	var ok bool
	err := d.DB.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM salon_staff WHERE salon_id=$1 AND user_id=$2)`,
		salonID, userID).Scan(&ok)
	return ok, err
}

// IsSlotBlocked reports whether [start,end) touches any blocked period of the salon.
func (d *Directory) IsSlotBlocked(ctx context.Context, salonID string, start, end time.Time) (bool, error) {
	var blocked bool
	err := d.DB.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM salon_blocked_times
			WHERE salon_id=$1 AND start_time < $3 AND end_time > $2
		)`, salonID, start, end).Scan(&blocked)
	return blocked, err
}

var (
	_ booking.Directory     = (*Directory)(nil)
	_ booking.BlockCalendar = (*Directory)(nil)
)
