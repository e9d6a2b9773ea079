package postgres

import (
	"context"
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements booking.Store on Postgres.
type Store struct{ DB *pgxpool.Pool }

func NewStore(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// WithinTx: BeginTx -> fn -> Commit. Rollback on any error (no-op after commit).
func (s *Store) WithinTx(ctx context.Context, fn booking.TxFunc) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &Tx{tx: tx}); err != nil {
		return err
	}
	return mapErr(tx.Commit(ctx))
}

// WithSlotLock takes a transaction-scoped advisory lock on the slot's hash
// before running fn. Postgres releases it at commit or rollback.
func (s *Store) WithSlotLock(ctx context.Context, key booking.SlotKey, fn booking.TxFunc) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx booking.Tx) error {
		if _, err := tx.(*Tx).tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key.LockID()); err != nil {
			return err
		}
		return fn(ctx, tx)
	})
}

func (s *Store) Reservation(ctx context.Context, id string) (*booking.Reservation, error) {
	return scanReservation(s.DB.QueryRow(ctx, `SELECT `+reservationCols+` FROM reservations WHERE id=$1`, id))
}

func (s *Store) Detail(ctx context.Context, id string) (*booking.Detail, error) {
	var d booking.Detail
	r := &d.Reservation
	err := s.DB.QueryRow(ctx, `
		SELECT `+prefixed("r.")+`,
		       COALESCE(sa.name, ''), COALESCE(sv.name, ''),
		       (EXTRACT(EPOCH FROM (r.end_time - r.start_time)) / 60)::int
		FROM reservations r
		LEFT JOIN salons sa ON sa.id = r.salon_id
		LEFT JOIN services sv ON sv.id = r.service_id
		WHERE r.id=$1`, id).Scan(append(reservationDest(r), &d.SalonName, &d.ServiceName, &d.DurationMinutes)...)
	if err != nil {
		return nil, mapErr(err)
	}
	return &d, nil
}

func (s *Store) AuditLog(ctx context.Context, reservationID string) ([]booking.AuditEntry, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, reservation_id, actor_user_id, action, changes, created_at
		FROM reservation_audit_log
		WHERE reservation_id=$1
		ORDER BY created_at, id`, reservationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []booking.AuditEntry
	for rows.Next() {
		var e booking.AuditEntry
		if err := rows.Scan(&e.ID, &e.ReservationID, &e.ActorUserID, &e.Action, &e.Changes, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ booking.Store = (*Store)(nil)
