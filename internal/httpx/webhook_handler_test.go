package httpx

import (
	"bytes"
	"context"
	"errors"
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	bt "github.com/ariefcatur/salon-booking-core/internal/booking/bookingtest"
	"go.uber.org/zap/zaptest"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// stubParser accepts payloads whose signature header is "good" and whose
// body is a provider event id; the event type comes from events[id].
type stubParser struct {
	events map[string]booking.ProviderEvent
}

func (p *stubParser) Parse(payload []byte, sig string) (booking.ProviderEvent, bool, error) {
	if sig != "good" {
		return booking.ProviderEvent{}, false, errors.New("bad signature")
	}
	ev, ok := p.events[string(payload)]
	return ev, ok, nil
}

type countingHandler struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (h *countingHandler) Handle(context.Context, booking.ProviderEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return h.err
}

type memDedup struct {
	mu       sync.Mutex
	seen     map[string]bool
	released []string
}

func (d *memDedup) Claim(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memDedup) Release(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	d.released = append(d.released, id)
	return nil
}

func post(h http.Handler, sig, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewBufferString(body))
	req.Header.Set("Stripe-Signature", sig)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func webhookRouter(t *testing.T, p EventParser, h EventHandler, d Deduper) http.Handler {
	r := NewRouter(zaptest.NewLogger(t))
	(&WebhookHandler{Parser: p, Reconciler: h, Dedup: d, Log: zaptest.NewLogger(t)}).Register(r)
	return r
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := &countingHandler{}
	r := webhookRouter(t, &stubParser{}, h, nil)
	if rec := post(r, "forged", "evt_1"); rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rec.Code)
	}
	if h.calls != 0 {
		t.Fatal("handler ran for unverified payload")
	}
}

func TestWebhookIgnoresUnhandledTypes(t *testing.T) {
	h := &countingHandler{}
	r := webhookRouter(t, &stubParser{}, h, nil)
	if rec := post(r, "good", "evt_unknown"); rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if h.calls != 0 {
		t.Fatal("handler ran for unhandled type")
	}
}

func TestWebhookDedupAndRetry(t *testing.T) {
	p := &stubParser{events: map[string]booking.ProviderEvent{
		"evt_1": {ID: "evt_1", Type: booking.EventFundsCaptured, PaymentIntentID: "pi_1"},
	}}
	h := &countingHandler{err: errors.New("db down")}
	d := &memDedup{seen: map[string]bool{}}
	r := webhookRouter(t, p, h, d)

	if rec := post(r, "good", "evt_1"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("failing delivery status=%d", rec.Code)
	}
	if len(d.released) != 1 {
		t.Fatalf("claim not released: %v", d.released)
	}

	h.err = nil
	if rec := post(r, "good", "evt_1"); rec.Code != http.StatusOK {
		t.Fatalf("retry status=%d", rec.Code)
	}
	if rec := post(r, "good", "evt_1"); rec.Code != http.StatusOK {
		t.Fatalf("duplicate status=%d", rec.Code)
	}
	if h.calls != 2 {
		t.Fatalf("handler calls=%d want 2", h.calls)
	}
}

func TestWebhookCreatesReservation(t *testing.T) {
	env := bt.NewEnv(t)
	md := bt.Meta(alice.UserID, bt.At(10, 0), bt.At(11, 0))
	env.Provider.AddCaptured("pi_w", md)
	p := &stubParser{events: map[string]booking.ProviderEvent{
		"evt_w": {ID: "evt_w", Type: booking.EventFundsCaptured, PaymentIntentID: "pi_w", Metadata: md.Encode()},
	}}
	r := webhookRouter(t, p, booking.NewReconciler(env.Deps), &memDedup{seen: map[string]bool{}})

	if rec := post(r, "good", "evt_w"); rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	all := env.Store.All()
	if len(all) != 1 || all[0].PaymentIntentID != "pi_w" || all[0].Status != booking.StatusConfirmed {
		t.Fatalf("reservations=%+v", all)
	}
}

type deadlineHandler struct {
	deadline time.Time
	ok       bool
}

func (h *deadlineHandler) Handle(ctx context.Context, _ booking.ProviderEvent) error {
	h.deadline, h.ok = ctx.Deadline()
	return nil
}

func TestWebhookBudgetFitsRequestTimeout(t *testing.T) {
	if webhookTimeout >= requestTimeout {
		t.Fatalf("webhook budget %s not below request timeout %s", webhookTimeout, requestTimeout)
	}
	p := &stubParser{events: map[string]booking.ProviderEvent{
		"evt_d": {ID: "evt_d", Type: booking.EventFundsCaptured, PaymentIntentID: "pi_d"},
	}}
	h := &deadlineHandler{}
	start := time.Now()
	if rec := post(webhookRouter(t, p, h, nil), "good", "evt_d"); rec.Code != http.StatusOK {
		t.Fatalf("status=%d", rec.Code)
	}
	if !h.ok {
		t.Fatal("reconciler ran without a deadline")
	}
	if h.deadline.After(start.Add(webhookTimeout + time.Second)) {
		t.Fatalf("deadline %s exceeds webhook budget", h.deadline.Sub(start))
	}
}
