package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

var ErrBadSignature = errors.New("webhook signature verification failed")

const reasonDisputed = "payment disputed"

// Verifier checks Stripe-Signature headers and translates events.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier { return &Verifier{secret: secret} }

// Parse verifies payload and maps it to a provider event. ok is false for
// event types the booking core does not handle.
func (v *Verifier) Parse(payload []byte, sigHeader string) (ev booking.ProviderEvent, ok bool, err error) {
	se, err := webhook.ConstructEventWithOptions(payload, sigHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return ev, false, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return Translate(se)
}

// Translate maps a verified Stripe event.
func Translate(se stripe.Event) (booking.ProviderEvent, bool, error) {
	ev := booking.ProviderEvent{ID: se.ID}
	if se.Data == nil {
		return ev, false, nil
	}
	switch string(se.Type) {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(se.Data.Raw, &pi); err != nil {
			return ev, false, fmt.Errorf("decode payment intent: %w", err)
		}
		ev.PaymentIntentID = pi.ID
		ev.Metadata = pi.Metadata
		ev.Type = booking.EventFundsCaptured
		if string(se.Type) == "payment_intent.payment_failed" {
			ev.Type = booking.EventAuthorizationFailed
			if pi.LastPaymentError != nil {
				ev.Reason = pi.LastPaymentError.Msg
			}
		}
		return ev, true, nil

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(se.Data.Raw, &ch); err != nil {
			return ev, false, fmt.Errorf("decode charge: %w", err)
		}
		// partial refunds keep the booking
		if !ch.Refunded || ch.PaymentIntent == nil {
			return ev, false, nil
		}
		ev.Type = booking.EventFundsReversed
		ev.PaymentIntentID = ch.PaymentIntent.ID
		return ev, true, nil

	case "charge.dispute.funds_withdrawn":
		var d stripe.Dispute
		if err := json.Unmarshal(se.Data.Raw, &d); err != nil {
			return ev, false, fmt.Errorf("decode dispute: %w", err)
		}
		if d.PaymentIntent == nil {
			return ev, false, nil
		}
		ev.Type = booking.EventFundsReversed
		ev.PaymentIntentID = d.PaymentIntent.ID
		ev.Reason = reasonDisputed
		return ev, true, nil
	}
	return ev, false, nil
}
