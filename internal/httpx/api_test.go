package httpx

import (
	"bytes"
	"context"
	"encoding/json"
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

var (
	alice = booking.Actor{UserID: "user-alice", Role: booking.RoleCustomer}
	bob   = booking.Actor{UserID: "user-bob", Role: booking.RoleCustomer}
	staff = booking.Actor{UserID: bt.StaffUserID, Role: booking.RoleStaff}
)

type memCache struct {
	mu   sync.Mutex
	m    map[string]booking.TimeoutStatus
	hits int
}

func (c *memCache) Get(_ context.Context, id, user string) (*booking.TimeoutStatus, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts, ok := c.m[id+"|"+user]
	if !ok {
		return nil, false, nil
	}
	c.hits++
	return &ts, true, nil
}

func (c *memCache) Set(_ context.Context, user string, ts *booking.TimeoutStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[ts.ReservationID+"|"+user] = *ts
	return nil
}

type testAPI struct {
	env   *bt.Env
	auth  *Authenticator
	cache *memCache
	h     http.Handler
}

func newAPI(t *testing.T) *testAPI {
	t.Helper()
	env := bt.NewEnv(t)
	log := zaptest.NewLogger(t)
	a := &testAPI{
		env:   env,
		auth:  &Authenticator{Secret: []byte("test-secret")},
		cache: &memCache{m: map[string]booking.TimeoutStatus{}},
	}
	r := NewRouter(log)
	Mount(r, a.auth,
		&CheckoutHandler{Checkout: booking.NewCheckout(env.Deps), Confirmer: booking.NewConfirmer(env.Deps), Log: log},
		&ReservationsHandler{Modifier: booking.NewModifier(env.Deps), Sweeper: booking.NewSweeper(env.Deps), Cache: a.cache, Log: log},
		&WebhookHandler{Parser: &stubParser{}, Reconciler: booking.NewReconciler(env.Deps), Log: log},
	)
	a.h = r
	return a
}

func (a *testAPI) do(t *testing.T, as *booking.Actor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body == nil {
		req.ContentLength = 0
	}
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		tok, err := a.auth.Sign(*as, time.Hour)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	a.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorBody](t, rec).Error.Code
}

func TestHealthz(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, nil, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body.String())
	}
}

func TestRequiresBearerToken(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, nil, http.MethodPost, "/v1/checkout/calculate", CalculateReq{ServiceID: bt.ServiceCut})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d", rec.Code)
	}

	other := &Authenticator{Secret: []byte("other")}
	tok, _ := other.Sign(alice, time.Hour)
	req := httptest.NewRequest(http.MethodPost, "/v1/checkout/calculate", bytes.NewBufferString(`{"service_id":"svc-cut"}`))
	req.Header.Set("Authorization", "Bearer "+tok)
	rr := httptest.NewRecorder()
	a.h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("foreign token status=%d", rr.Code)
	}
}

func TestAuthenticatorRoles(t *testing.T) {
	a := &Authenticator{Secret: []byte("s")}
	tok, err := a.Sign(booking.Actor{UserID: "u1", Role: "admin"}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := a.Parse(tok)
	if err != nil || got.Role != booking.RoleAdmin || got.UserID != "u1" {
		t.Fatalf("parse: %+v %v", got, err)
	}
	tok, _ = a.Sign(booking.Actor{UserID: "u1", Role: "ROOT"}, time.Hour)
	if _, err := a.Parse(tok); err == nil {
		t.Fatal("unknown role accepted")
	}
	tok, _ = a.Sign(booking.Actor{UserID: "u1", Role: booking.RoleCustomer}, -time.Minute)
	if _, err := a.Parse(tok); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestCalculate(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, &alice, http.MethodPost, "/v1/checkout/calculate", CalculateReq{ServiceID: bt.ServiceCut})
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	q := decode[booking.Quote](t, rec)
	if q.Pricing.TotalPrice != 4500 || q.Pricing.CommissionAmount != 135 || q.Pricing.AmountToMerchant != 4365 {
		t.Fatalf("quote=%+v", q)
	}

	rec = a.do(t, &alice, http.MethodPost, "/v1/checkout/calculate", CalculateReq{})
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "VALIDATION_FAILED" {
		t.Fatalf("missing service: %d %s", rec.Code, rec.Body)
	}
	rec = a.do(t, &alice, http.MethodPost, "/v1/checkout/calculate", CalculateReq{ServiceID: "nope"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown service: %d", rec.Code)
	}
}

func TestProcessConfirmFlow(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, &alice, http.MethodPost, "/v1/checkout/process", ProcessReq{
		ServiceID:    bt.ServiceCut,
		StartTime:    bt.At(10, 0),
		ContactPhone: "+4915112345678",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("process: %d %s", rec.Code, rec.Body)
	}
	res := decode[booking.AuthorizeResult](t, rec)
	if res.PaymentIntentID == "" || res.ClientSecret == "" || res.Pricing.TotalPrice != 4500 {
		t.Fatalf("result=%+v", res)
	}

	rec = a.do(t, &alice, http.MethodPost, "/v1/checkout/confirm", ConfirmReq{PaymentIntentID: res.PaymentIntentID})
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "PAYMENT_NOT_CAPTURED" {
		t.Fatalf("uncaptured confirm: %d %s", rec.Code, rec.Body)
	}

	a.env.Provider.Capture(res.PaymentIntentID)
	rec = a.do(t, &bob, http.MethodPost, "/v1/checkout/confirm", ConfirmReq{PaymentIntentID: res.PaymentIntentID})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign confirm: %d %s", rec.Code, rec.Body)
	}
	rec = a.do(t, &alice, http.MethodPost, "/v1/checkout/confirm", ConfirmReq{PaymentIntentID: res.PaymentIntentID})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: %d %s", rec.Code, rec.Body)
	}
	v := decode[reservationView](t, rec)
	if v.Status != booking.StatusConfirmed || v.SalonName != "Studio Uno" || v.ServiceName != "Haircut" {
		t.Fatalf("view=%+v", v)
	}
}

func TestProcessValidation(t *testing.T) {
	a := newAPI(t)
	rec := a.do(t, &alice, http.MethodPost, "/v1/checkout/process", ProcessReq{ServiceID: bt.ServiceCut})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing start: %d", rec.Code)
	}
	if d := decode[errorBody](t, rec).Error.Details; d["StartTime"] != "required" {
		t.Fatalf("details=%v", d)
	}

	end := bt.At(9, 0)
	rec = a.do(t, &alice, http.MethodPost, "/v1/checkout/process", ProcessReq{ServiceID: bt.ServiceCut, StartTime: bt.At(10, 0), EndTime: &end})
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "INVALID_INTERVAL" {
		t.Fatalf("inverted interval: %d %s", rec.Code, rec.Body)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/checkout/process", bytes.NewBufferString(`{"service_id":"svc-cut","bogus":1}`))
	tok, _ := a.auth.Sign(alice, time.Hour)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr := httptest.NewRecorder()
	a.h.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: %d", rr.Code)
	}
}

func TestConfirmLoserIsRefunded(t *testing.T) {
	a := newAPI(t)
	a.env.Provider.AddCaptured("pi_a", bt.Meta(alice.UserID, bt.At(10, 0), bt.At(11, 0)))
	a.env.Provider.AddCaptured("pi_b", bt.Meta(bob.UserID, bt.At(10, 30), bt.At(11, 30)))

	if rec := a.do(t, &alice, http.MethodPost, "/v1/checkout/confirm", ConfirmReq{PaymentIntentID: "pi_a"}); rec.Code != http.StatusOK {
		t.Fatalf("winner: %d %s", rec.Code, rec.Body)
	}
	rec := a.do(t, &bob, http.MethodPost, "/v1/checkout/confirm", ConfirmReq{PaymentIntentID: "pi_b"})
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "SLOT_UNAVAILABLE" {
		t.Fatalf("loser: %d %s", rec.Code, rec.Body)
	}
	refunds := a.env.Provider.Refunds()
	if len(refunds) != 1 || refunds[0].AuthorizationID != "pi_b" {
		t.Fatalf("refunds=%+v", refunds)
	}
}

func TestRefundFailureIsBadGateway(t *testing.T) {
	a := newAPI(t)
	a.env.Store.Put(bt.Confirmed("r1", alice.UserID, bt.At(10, 0), bt.At(11, 0)))
	a.env.Provider.RefundErr = errors.New("card_declined: secret provider text")

	rec := a.do(t, &alice, http.MethodDelete, "/v1/checkout/r1/cancel", nil)
	if rec.Code != http.StatusBadGateway || errorCode(t, rec) != "REFUND_FAILED" {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("secret provider text")) {
		t.Fatalf("provider error leaked: %s", rec.Body)
	}
	if r, _ := a.env.Store.Get("r1"); r.Status != booking.StatusConfirmed {
		t.Fatalf("status changed to %s", r.Status)
	}
}

func TestCancel(t *testing.T) {
	a := newAPI(t)
	a.env.Store.Put(bt.Confirmed("r1", alice.UserID, bt.At(10, 0), bt.At(11, 0)))

	if rec := a.do(t, &bob, http.MethodDelete, "/v1/checkout/r1/cancel", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign cancel: %d", rec.Code)
	}
	rec := a.do(t, &alice, http.MethodDelete, "/v1/checkout/r1/cancel", CancelReq{Reason: "sick"})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", rec.Code, rec.Body)
	}
	v := decode[reservationView](t, rec)
	if v.Status != booking.StatusCancelled || v.PaymentStatus != booking.PaymentRefunded || v.CancellationReason != "sick" {
		t.Fatalf("view=%+v", v)
	}
	if rec := a.do(t, &alice, http.MethodDelete, "/v1/checkout/r1/cancel", nil); rec.Code != http.StatusConflict {
		t.Fatalf("second cancel: %d", rec.Code)
	}
}

func TestModifyAndHistory(t *testing.T) {
	a := newAPI(t)
	a.env.Store.Put(bt.Confirmed("r1", alice.UserID, bt.At(10, 0), bt.At(11, 0)))
	a.env.Store.Put(bt.Confirmed("r2", bob.UserID, bt.At(12, 0), bt.At(13, 0)))

	notes := "fringe only"
	rec := a.do(t, &staff, http.MethodPut, "/v1/reservations/r1", ModifyReq{Notes: &notes})
	if rec.Code != http.StatusOK {
		t.Fatalf("modify: %d %s", rec.Code, rec.Body)
	}
	if v := decode[reservationView](t, rec); v.Notes != notes {
		t.Fatalf("notes=%q", v.Notes)
	}

	start := bt.At(12, 30)
	rec = a.do(t, &alice, http.MethodPut, "/v1/reservations/r1", ModifyReq{StartTime: &start})
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "SLOT_UNAVAILABLE" {
		t.Fatalf("overlapping move: %d %s", rec.Code, rec.Body)
	}

	rec = a.do(t, &alice, http.MethodGet, "/v1/reservations/r1/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d", rec.Code)
	}
	entries := decode[[]auditView](t, rec)
	if len(entries) != 1 || entries[0].ActorUserID != bt.StaffUserID {
		t.Fatalf("entries=%+v", entries)
	}
	if _, ok := entries[0].Changes[booking.FieldNotes]; !ok {
		t.Fatalf("notes change missing: %+v", entries[0].Changes)
	}

	if rec := a.do(t, &bob, http.MethodGet, "/v1/reservations/r1", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("foreign read: %d", rec.Code)
	}
	if rec := a.do(t, &alice, http.MethodGet, "/v1/reservations/missing", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing read: %d", rec.Code)
	}
}

func TestTimeoutStatusIsCachedPerViewer(t *testing.T) {
	a := newAPI(t)
	r := bt.Confirmed("r1", alice.UserID, bt.At(10, 0), bt.At(11, 0))
	deadline := bt.Epoch.Add(90 * time.Minute)
	r.Status, r.PaymentStatus, r.ConfirmationDeadline = booking.StatusPending, booking.PaymentPending, &deadline
	a.env.Store.Put(r)

	for i := 0; i < 2; i++ {
		rec := a.do(t, &alice, http.MethodGet, "/v1/reservations/r1/timeout-status", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status: %d %s", rec.Code, rec.Body)
		}
		ts := decode[booking.TimeoutStatus](t, rec)
		if ts.MinutesRemaining != 90 || ts.Expired {
			t.Fatalf("ts=%+v", ts)
		}
	}
	if a.cache.hits != 1 {
		t.Fatalf("cache hits=%d want 1", a.cache.hits)
	}
	if rec := a.do(t, &bob, http.MethodGet, "/v1/reservations/r1/timeout-status", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("other viewer served from cache: %d", rec.Code)
	}
}

func TestWriteErrorHidesUnclassified(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, zaptest.NewLogger(t), errors.New("pq: connection refused"))
	if rec.Code != http.StatusInternalServerError || errorCode(t, rec) != "INTERNAL" {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("connection refused")) {
		t.Fatal("internal error text leaked")
	}
}
