// Package bookingtest provides in-memory doubles for the booking ports.
package bookingtest

import (
	"context"
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	"sort"
	"sync"
	"time"
)

// Store is an in-memory booking.Store. Slot locks and row locks are held
// until the transaction ends; writes become visible on commit only.
type Store struct {
	mu    sync.Mutex
	rows  map[string]booking.Reservation
	audit []booking.AuditEntry
	slots map[int64]chan struct{}
	locks map[string]chan struct{}

	// Names used to populate Detail.
	SalonNames   map[string]string
	ServiceNames map[string]string

	// BeforeTx, when set, runs at the start of every transaction before any
	// lock is taken. Tests use it to interleave a concurrent writer.
	BeforeTx func()
}

func NewStore() *Store {
	return &Store{
		rows:         map[string]booking.Reservation{},
		slots:        map[int64]chan struct{}{},
		locks:        map[string]chan struct{}{},
		SalonNames:   map[string]string{},
		ServiceNames: map[string]string{},
	}
}

// Put stores r as committed state.
func (s *Store) Put(r booking.Reservation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[r.ID] = r
}

// All returns committed reservations ordered by start time.
func (s *Store) All() []booking.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]booking.Reservation, 0, len(s.rows))
	for _, r := range s.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (s *Store) Get(id string) (booking.Reservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	return r, ok
}

func (s *Store) Audit() []booking.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]booking.AuditEntry(nil), s.audit...)
}

func lock(ctx context.Context, ch chan struct{}) error {
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) slot(id int64) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.slots[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.slots[id] = ch
	}
	return ch
}

func (s *Store) row(id string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[id] = ch
	}
	return ch
}

func (s *Store) WithSlotLock(ctx context.Context, key booking.SlotKey, fn booking.TxFunc) error {
	return s.WithinTx(ctx, func(ctx context.Context, tx booking.Tx) error {
		t := tx.(*memTx)
		ch := s.slot(key.LockID())
		if err := lock(ctx, ch); err != nil {
			return err
		}
		t.held = append(t.held, ch)
		return fn(ctx, tx)
	})
}

func (s *Store) WithinTx(ctx context.Context, fn booking.TxFunc) error {
	if s.BeforeTx != nil {
		s.BeforeTx()
	}
	t := &memTx{s: s, rows: map[string]booking.Reservation{}, rowHeld: map[string]bool{}}
	defer t.release()
	if err := fn(ctx, t); err != nil {
		return err
	}
	t.commit()
	return nil
}

func (s *Store) Reservation(_ context.Context, id string) (*booking.Reservation, error) {
	r, ok := s.Get(id)
	if !ok {
		return nil, booking.ErrNotFound
	}
	return &r, nil
}

func (s *Store) Detail(ctx context.Context, id string) (*booking.Detail, error) {
	r, err := s.Reservation(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return &booking.Detail{
		Reservation:     *r,
		SalonName:       s.SalonNames[r.SalonID],
		ServiceName:     s.ServiceNames[r.ServiceID],
		DurationMinutes: int(r.EndTime.Sub(r.StartTime) / time.Minute),
	}, nil
}

func (s *Store) AuditLog(_ context.Context, reservationID string) ([]booking.AuditEntry, error) {
	var out []booking.AuditEntry
	for _, e := range s.Audit() {
		if e.ReservationID == reservationID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memTx struct {
	s       *Store
	rows    map[string]booking.Reservation
	audit   []booking.AuditEntry
	held    []chan struct{}
	rowHeld map[string]bool
}

func (t *memTx) commit() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for id, r := range t.rows {
		t.s.rows[id] = r
	}
	t.s.audit = append(t.s.audit, t.audit...)
}

func (t *memTx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		<-t.held[i]
	}
	t.held = nil
}

// view is committed state overlaid with this transaction's writes.
func (t *memTx) view() map[string]booking.Reservation {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	out := make(map[string]booking.Reservation, len(t.s.rows)+len(t.rows))
	for id, r := range t.s.rows {
		out[id] = r
	}
	for id, r := range t.rows {
		out[id] = r
	}
	return out
}

func (t *memTx) lockRow(ctx context.Context, id string) error {
	if t.rowHeld[id] {
		return nil
	}
	ch := t.s.row(id)
	if err := lock(ctx, ch); err != nil {
		return err
	}
	t.rowHeld[id] = true
	t.held = append(t.held, ch)
	return nil
}

func (t *memTx) tryLockRow(id string) bool {
	if t.rowHeld[id] {
		return true
	}
	ch := t.s.row(id)
	select {
	case ch <- struct{}{}:
		t.rowHeld[id] = true
		t.held = append(t.held, ch)
		return true
	default:
		return false
	}
}

func (t *memTx) HasOverlap(_ context.Context, salonID string, start, end time.Time, excludeID string) (bool, error) {
	var rs []booking.Reservation
	for _, r := range t.view() {
		rs = append(rs, r)
	}
	return booking.FindOverlap(rs, salonID, start, end, excludeID) != nil, nil
}

func (t *memTx) ReservationByID(ctx context.Context, id string) (*booking.Reservation, error) {
	if err := t.lockRow(ctx, id); err != nil {
		return nil, err
	}
	r, ok := t.view()[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return &r, nil
}

func (t *memTx) ReservationByPaymentIntent(ctx context.Context, intentID string) (*booking.Reservation, error) {
	for id, r := range t.view() {
		if r.PaymentIntentID == intentID {
			return t.ReservationByID(ctx, id)
		}
	}
	return nil, booking.ErrNotFound
}

func (t *memTx) InsertReservation(_ context.Context, r *booking.Reservation) error {
	view := t.view()
	if _, ok := view[r.ID]; ok {
		return booking.ErrInvalidState
	}
	var rs []booking.Reservation
	for _, v := range view {
		if r.PaymentIntentID != "" && v.PaymentIntentID == r.PaymentIntentID {
			return booking.ErrDuplicatePaymentIntent
		}
		rs = append(rs, v)
	}
	if r.Status.Occupies() && booking.FindOverlap(rs, r.SalonID, r.StartTime, r.EndTime, r.ID) != nil {
		return booking.ErrSlotUnavailable
	}
	t.rows[r.ID] = *r
	return nil
}

func (t *memTx) UpdateReservation(_ context.Context, r *booking.Reservation) error {
	if _, ok := t.view()[r.ID]; !ok {
		return booking.ErrNotFound
	}
	t.rows[r.ID] = *r
	return nil
}

func (t *memTx) SetConfirmationDeadline(_ context.Context, id string, deadline time.Time) error {
	r, ok := t.view()[id]
	if !ok {
		return booking.ErrNotFound
	}
	r.ConfirmationDeadline = &deadline
	t.rows[id] = r
	return nil
}

func (t *memTx) InsertAudit(_ context.Context, e *booking.AuditEntry) error {
	t.audit = append(t.audit, *e)
	return nil
}

func (t *memTx) ClaimExpiredPending(_ context.Context, now time.Time, skip []string) (*booking.Reservation, error) {
	skipped := map[string]bool{}
	for _, id := range skip {
		skipped[id] = true
	}
	var cands []booking.Reservation
	for _, r := range t.view() {
		if r.Status != booking.StatusPending || r.AutoCancelled || skipped[r.ID] {
			continue
		}
		if r.ConfirmationDeadline == nil || !r.ConfirmationDeadline.Before(now) {
			continue
		}
		cands = append(cands, r)
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].ConfirmationDeadline.Before(*cands[j].ConfirmationDeadline) })
	for _, c := range cands {
		if !t.tryLockRow(c.ID) {
			continue
		}
		// re-read after locking; another sweeper may have committed meanwhile
		r := t.view()[c.ID]
		if r.Status != booking.StatusPending || r.AutoCancelled {
			continue
		}
		return &r, nil
	}
	return nil, booking.ErrNotFound
}

func (t *memTx) CompletePast(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, r := range t.view() {
		if r.Status == booking.StatusConfirmed && !r.EndTime.After(now) {
			r.Status = booking.StatusCompleted
			r.UpdatedAt = now
			t.rows[id] = r
			n++
		}
	}
	return n, nil
}
