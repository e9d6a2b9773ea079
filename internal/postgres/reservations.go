package postgres

import (
	"context"
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	"github.com/jackc/pgx/v5"
	"strings"
	"time"
)

// Tx is the transactional reservation repository handed to booking.TxFunc.
type Tx struct{ tx pgx.Tx }

var reservationColumns = []string{
	"id", "user_id", "salon_id", "service_id", "start_time", "end_time", "notes",
	"total_price", "commission_percentage", "commission_amount", "amount_to_merchant",
	"status", "COALESCE(payment_intent_id, '')", "payment_status",
	"confirmed_at", "cancelled_at", "confirmation_deadline",
	"cancellation_reason", "auto_cancelled", "auto_cancel_reason",
	"created_at", "updated_at",
}

var reservationCols = strings.Join(reservationColumns, ", ")

func prefixed(alias string) string {
	cols := make([]string, len(reservationColumns))
	for i, c := range reservationColumns {
		if strings.HasPrefix(c, "COALESCE(") {
			cols[i] = "COALESCE(" + alias + strings.TrimPrefix(c, "COALESCE(")
			continue
		}
		cols[i] = alias + c
	}
	return strings.Join(cols, ", ")
}

func reservationDest(r *booking.Reservation) []any {
	return []any{
		&r.ID, &r.UserID, &r.SalonID, &r.ServiceID, &r.StartTime, &r.EndTime, &r.Notes,
		&r.TotalPrice, &r.CommissionPercentage, &r.CommissionAmount, &r.AmountToMerchant,
		&r.Status, &r.PaymentIntentID, &r.PaymentStatus,
		&r.ConfirmedAt, &r.CancelledAt, &r.ConfirmationDeadline,
		&r.CancellationReason, &r.AutoCancelled, &r.AutoCancelReason,
		&r.CreatedAt, &r.UpdatedAt,
	}
}

func scanReservation(row pgx.Row) (*booking.Reservation, error) {
	var r booking.Reservation
	if err := row.Scan(reservationDest(&r)...); err != nil {
		return nil, mapErr(err)
	}
	return &r, nil
}

// HasOverlap must run after the slot lock of the same transaction.
func (t *Tx) HasOverlap(ctx context.Context, salonID string, start, end time.Time, excludeID string) (bool, error) {
	var taken bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reservations
			WHERE salon_id = $1
			  AND status NOT IN ('cancelled', 'no_show')
			  AND start_time < $3 AND end_time > $2
			  AND id <> $4
		)`, salonID, start, end, excludeID).Scan(&taken)
	return taken, err
}

func (t *Tx) ReservationByID(ctx context.Context, id string) (*booking.Reservation, error) {
	return scanReservation(t.tx.QueryRow(ctx, `SELECT `+reservationCols+` FROM reservations WHERE id=$1 FOR UPDATE`, id))
}

func (t *Tx) ReservationByPaymentIntent(ctx context.Context, intentID string) (*booking.Reservation, error) {
	return scanReservation(t.tx.QueryRow(ctx, `SELECT `+reservationCols+` FROM reservations WHERE payment_intent_id=$1 FOR UPDATE`, intentID))
}

func (t *Tx) InsertReservation(ctx context.Context, r *booking.Reservation) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO reservations (
			id, user_id, salon_id, service_id, start_time, end_time, notes,
			total_price, commission_percentage, commission_amount, amount_to_merchant,
			status, payment_intent_id, payment_status,
			confirmed_at, cancelled_at, confirmation_deadline,
			cancellation_reason, auto_cancelled, auto_cancel_reason,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NULLIF($13,''),$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		r.ID, r.UserID, r.SalonID, r.ServiceID, r.StartTime, r.EndTime, r.Notes,
		r.TotalPrice, r.CommissionPercentage, r.CommissionAmount, r.AmountToMerchant,
		r.Status, r.PaymentIntentID, r.PaymentStatus,
		r.ConfirmedAt, r.CancelledAt, r.ConfirmationDeadline,
		r.CancellationReason, r.AutoCancelled, r.AutoCancelReason,
		r.CreatedAt, r.UpdatedAt,
	)
	return mapErr(err)
}

func (t *Tx) UpdateReservation(ctx context.Context, r *booking.Reservation) error {
	ct, err := t.tx.Exec(ctx, `
		UPDATE reservations SET
			service_id=$2, start_time=$3, end_time=$4, notes=$5,
			total_price=$6, commission_percentage=$7, commission_amount=$8, amount_to_merchant=$9,
			status=$10, payment_intent_id=NULLIF($11,''), payment_status=$12,
			confirmed_at=$13, cancelled_at=$14, confirmation_deadline=$15,
			cancellation_reason=$16, auto_cancelled=$17, auto_cancel_reason=$18,
			updated_at=$19
		WHERE id=$1`,
		r.ID, r.ServiceID, r.StartTime, r.EndTime, r.Notes,
		r.TotalPrice, r.CommissionPercentage, r.CommissionAmount, r.AmountToMerchant,
		r.Status, r.PaymentIntentID, r.PaymentStatus,
		r.ConfirmedAt, r.CancelledAt, r.ConfirmationDeadline,
		r.CancellationReason, r.AutoCancelled, r.AutoCancelReason,
		r.UpdatedAt,
	)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() != 1 {
		return booking.ErrNotFound
	}
	return nil
}

func (t *Tx) SetConfirmationDeadline(ctx context.Context, id string, deadline time.Time) error {
	ct, err := t.tx.Exec(ctx, `UPDATE reservations SET confirmation_deadline=$2, updated_at=now() WHERE id=$1`, id, deadline)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return booking.ErrNotFound
	}
	return nil
}

func (t *Tx) InsertAudit(ctx context.Context, e *booking.AuditEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO reservation_audit_log (id, reservation_id, actor_user_id, action, changes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.ReservationID, e.ActorUserID, e.Action, e.Changes, e.CreatedAt)
	return err
}

// ClaimExpiredPending locks one expired pending row. SKIP LOCKED lets several
// sweepers run side by side without claiming the same row.
func (t *Tx) ClaimExpiredPending(ctx context.Context, now time.Time, skip []string) (*booking.Reservation, error) {
	if skip == nil {
		skip = []string{}
	}
	return scanReservation(t.tx.QueryRow(ctx, `
		SELECT `+reservationCols+`
		FROM reservations
		WHERE status = 'pending'
		  AND NOT auto_cancelled
		  AND confirmation_deadline < $1
		  AND NOT (id = ANY($2))
		ORDER BY confirmation_deadline
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, now, skip))
}

func (t *Tx) CompletePast(ctx context.Context, now time.Time) (int64, error) {
	ct, err := t.tx.Exec(ctx, `
		UPDATE reservations SET status='completed', updated_at=$1
		WHERE status='confirmed' AND end_time <= $1`, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

var _ booking.Tx = (*Tx)(nil)
