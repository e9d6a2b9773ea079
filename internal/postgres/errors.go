package postgres

import (
	"errors"
	"fmt"
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation    = "23505"
	codeExclusionViolation = "23P01"

	constraintPaymentIntent = "reservations_payment_intent_id_key"
)

// mapErr translates driver errors into booking errors.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return booking.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeExclusionViolation:
			return fmt.Errorf("%w: %s", booking.ErrSlotUnavailable, pgErr.ConstraintName)
		case pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == constraintPaymentIntent:
			return booking.ErrDuplicatePaymentIntent
		}
	}
	return err
}
