package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	"testing"
	"time"
)

const testSecret = "whsec_test"

func sign(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func TestParseFundsCaptured(t *testing.T) {
	payload := []byte(`{
		"id": "evt_1",
		"object": "event",
		"type": "payment_intent.succeeded",
		"data": {"object": {
			"id": "pi_123",
			"object": "payment_intent",
			"status": "succeeded",
			"metadata": {"user_id": "u1", "salon_id": "s1"}
		}}
	}`)
	ev, ok, err := NewVerifier(testSecret).Parse(payload, sign(payload, testSecret, time.Now()))
	if err != nil || !ok {
		t.Fatalf("parse: ok=%v err=%v", ok, err)
	}
	if ev.ID != "evt_1" || ev.Type != booking.EventFundsCaptured || ev.PaymentIntentID != "pi_123" {
		t.Fatalf("event=%+v", ev)
	}
	if ev.Metadata["salon_id"] != "s1" {
		t.Fatalf("metadata=%v", ev.Metadata)
	}
}

func TestParseRejectsBadSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)
	cases := map[string]string{
		"wrong secret": sign(payload, "whsec_other", time.Now()),
		"stale":        sign(payload, testSecret, time.Now().Add(-time.Hour)),
		"garbage":      "t=1,v1=deadbeef",
		"empty":        "",
	}
	for name, header := range cases {
		if _, _, err := NewVerifier(testSecret).Parse(payload, header); !errors.Is(err, ErrBadSignature) {
			t.Fatalf("%s: want ErrBadSignature, got %v", name, err)
		}
	}
}

func TestParseEventMapping(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		ok     bool
		typ    booking.EventType
		intent string
		reason string
	}{
		{
			name:   "payment failed",
			body:   `{"id":"evt_2","object":"event","type":"payment_intent.payment_failed","data":{"object":{"id":"pi_2","last_payment_error":{"message":"card declined"}}}}`,
			ok:     true,
			typ:    booking.EventAuthorizationFailed,
			intent: "pi_2",
			reason: "card declined",
		},
		{
			name:   "full refund",
			body:   `{"id":"evt_3","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_3","refunded":true,"payment_intent":"pi_3"}}}`,
			ok:     true,
			typ:    booking.EventFundsReversed,
			intent: "pi_3",
		},
		{
			name: "partial refund",
			body: `{"id":"evt_4","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_4","refunded":false,"payment_intent":"pi_4"}}}`,
		},
		{
			name:   "dispute",
			body:   `{"id":"evt_5","object":"event","type":"charge.dispute.funds_withdrawn","data":{"object":{"id":"dp_5","payment_intent":"pi_5"}}}`,
			ok:     true,
			typ:    booking.EventFundsReversed,
			intent: "pi_5",
			reason: reasonDisputed,
		},
		{
			name: "unrelated",
			body: `{"id":"evt_6","object":"event","type":"customer.created","data":{"object":{"id":"cus_6"}}}`,
		},
	}
	for _, tc := range cases {
		payload := []byte(tc.body)
		ev, ok, err := NewVerifier(testSecret).Parse(payload, sign(payload, testSecret, time.Now()))
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if ok != tc.ok {
			t.Fatalf("%s: ok=%v want %v", tc.name, ok, tc.ok)
		}
		if !ok {
			continue
		}
		if ev.Type != tc.typ || ev.PaymentIntentID != tc.intent || ev.Reason != tc.reason {
			t.Fatalf("%s: event=%+v", tc.name, ev)
		}
	}
}
