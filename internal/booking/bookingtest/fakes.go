package bookingtest

import (
	"context"
	"fmt"
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	"sync"
	"time"
)

type RefundCall struct {
	AuthorizationID string
	Reason          string
}

// Provider is an in-memory payment provider.
type Provider struct {
	mu      sync.Mutex
	seq     int
	intents map[string]*booking.Authorization
	refunds []RefundCall

	AuthorizeErr error
	RefundErr    error
	MetadataErr  error
	// Requests records every authorization request.
	Requests []booking.AuthorizationRequest
}

func NewProvider() *Provider {
	return &Provider{intents: map[string]*booking.Authorization{}}
}

func (p *Provider) Authorize(_ context.Context, req booking.AuthorizationRequest) (*booking.Authorization, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.AuthorizeErr != nil {
		return nil, p.AuthorizeErr
	}
	p.Requests = append(p.Requests, req)
	p.seq++
	a := &booking.Authorization{
		ID:           fmt.Sprintf("pi_%d", p.seq),
		ClientSecret: fmt.Sprintf("pi_%d_secret", p.seq),
		Status:       "requires_payment_method",
		Amount:       req.Amount,
		Metadata:     copyMap(req.Metadata),
	}
	p.intents[a.ID] = a
	return clone(a), nil
}

// AddCaptured registers a captured authorization carrying md.
func (p *Provider) AddCaptured(id string, md booking.IntentMetadata) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intents[id] = &booking.Authorization{
		ID:       id,
		Status:   booking.AuthorizationSucceeded,
		Amount:   md.Pricing.TotalPrice,
		Metadata: md.Encode(),
	}
}

// Capture marks an existing authorization as captured.
func (p *Provider) Capture(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.intents[id]; ok {
		a.Status = booking.AuthorizationSucceeded
	}
}

func (p *Provider) Intent(id string) *booking.Authorization {
	p.mu.Lock()
	defer p.mu.Unlock()
	if a, ok := p.intents[id]; ok {
		return clone(a)
	}
	return nil
}

func (p *Provider) RetrieveAuthorization(_ context.Context, id string) (*booking.Authorization, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.intents[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return clone(a), nil
}

func (p *Provider) Refund(_ context.Context, id, reason string) (*booking.Refund, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RefundErr != nil {
		return nil, p.RefundErr
	}
	p.refunds = append(p.refunds, RefundCall{AuthorizationID: id, Reason: reason})
	rf := &booking.Refund{ID: fmt.Sprintf("re_%d", len(p.refunds)), Status: "succeeded"}
	if a, ok := p.intents[id]; ok {
		rf.Amount = a.Amount
		if a.Status != booking.AuthorizationSucceeded {
			a.Status = booking.AuthorizationCanceled
			rf.Status = string(booking.AuthorizationCanceled)
		}
	}
	return rf, nil
}

func (p *Provider) UpdateMetadata(_ context.Context, id string, md map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.MetadataErr != nil {
		return p.MetadataErr
	}
	a, ok := p.intents[id]
	if !ok {
		return booking.ErrNotFound
	}
	for k, v := range md {
		a.Metadata[k] = v
	}
	return nil
}

func (p *Provider) Refunds() []RefundCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]RefundCall(nil), p.refunds...)
}

func clone(a *booking.Authorization) *booking.Authorization {
	c := *a
	c.Metadata = copyMap(a.Metadata)
	return &c
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Directory is a static salon/service catalogue.
type Directory struct {
	Services map[string]booking.Service
	Salons   map[string]booking.Salon
	Staff    map[string][]string // salon id -> user ids
}

func NewDirectory() *Directory {
	return &Directory{
		Services: map[string]booking.Service{},
		Salons:   map[string]booking.Salon{},
		Staff:    map[string][]string{},
	}
}

func (d *Directory) Service(_ context.Context, id string) (*booking.Service, error) {
	s, ok := d.Services[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return &s, nil
}

func (d *Directory) Salon(_ context.Context, id string) (*booking.Salon, error) {
	s, ok := d.Salons[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return &s, nil
}

func (d *Directory) IsSalonStaff(_ context.Context, salonID, userID string) (bool, error) {
	for _, u := range d.Staff[salonID] {
		if u == userID {
			return true, nil
		}
	}
	return false, nil
}

type Block struct {
	SalonID    string
	Start, End time.Time
}

// Calendar reports a slot blocked when it overlaps any block.
type Calendar struct {
	Blocks []Block
}

func (c *Calendar) IsSlotBlocked(_ context.Context, salonID string, start, end time.Time) (bool, error) {
	for _, b := range c.Blocks {
		if b.SalonID == salonID && booking.Overlaps(b.Start, b.End, start, end) {
			return true, nil
		}
	}
	return false, nil
}

// Recorder is a Dispatcher that keeps every event.
type Recorder struct {
	mu     sync.Mutex
	events []booking.ReservationCreated
	Err    error
}

func (r *Recorder) ReservationCreated(_ context.Context, ev booking.ReservationCreated) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.Err
}

func (r *Recorder) Events() []booking.ReservationCreated {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]booking.ReservationCreated(nil), r.events...)
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{now: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
