// Package payments adapts Stripe Connect to booking.PaymentProvider.
package payments

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

const metaRefundReason = "refund_reason"

// Stripe creates destination-charge PaymentIntents: the commission stays on
// the platform as application fee, the rest is transferred to the salon's
// connected account.
type Stripe struct {
	api *client.API
	log *zap.Logger
}

func NewStripe(secretKey string, log *zap.Logger) *Stripe {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Stripe{api: api, log: log}
}

func (s *Stripe) Authorize(ctx context.Context, req booking.AuthorizationRequest) (*booking.Authorization, error) {
	params := &stripe.PaymentIntentParams{
		Amount:               stripe.Int64(req.Amount),
		Currency:             stripe.String(req.Currency),
		ApplicationFeeAmount: stripe.Int64(req.ApplicationFee),
		TransferData: &stripe.PaymentIntentTransferDataParams{
			Destination: stripe.String(req.DestinationAccount),
		},
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	return toAuthorization(pi), nil
}

func (s *Stripe) RetrieveAuthorization(ctx context.Context, id string) (*booking.Authorization, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.Get(id, params)
	if err != nil {
		if isMissing(err) {
			return nil, booking.ErrNotFound
		}
		return nil, fmt.Errorf("stripe: retrieve payment intent: %w", err)
	}
	return toAuthorization(pi), nil
}

// Refund refunds a captured intent in full. Uncaptured intents are cancelled
// so the hold on the payer's card is released.
func (s *Stripe) Refund(ctx context.Context, id, reason string) (*booking.Refund, error) {
	auth, err := s.RetrieveAuthorization(ctx, id)
	if err != nil {
		return nil, err
	}
	switch auth.Status {
	case booking.AuthorizationSucceeded:
	case booking.AuthorizationCanceled:
		return &booking.Refund{ID: id, Status: string(booking.AuthorizationCanceled)}, nil
	default:
		cp := &stripe.PaymentIntentCancelParams{CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned))}
		cp.Context = ctx
		if _, err := s.api.PaymentIntents.Cancel(id, cp); err != nil {
			return nil, fmt.Errorf("stripe: cancel payment intent: %w", err)
		}
		s.log.Info("payment intent cancelled", zap.String("payment_intent_id", id), zap.String("reason", reason))
		return &booking.Refund{ID: id, Status: string(booking.AuthorizationCanceled)}, nil
	}

	rp := &stripe.RefundParams{
		PaymentIntent:        stripe.String(id),
		Reason:               stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
		ReverseTransfer:      stripe.Bool(true),
		RefundApplicationFee: stripe.Bool(true),
	}
	rp.AddMetadata(metaRefundReason, reason)
	rp.Context = ctx
	rf, err := s.api.Refunds.New(rp)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Code == stripe.ErrorCodeChargeAlreadyRefunded {
			return &booking.Refund{ID: id, Amount: auth.Amount, Status: string(stripe.RefundStatusSucceeded)}, nil
		}
		return nil, fmt.Errorf("stripe: refund: %w", err)
	}
	return &booking.Refund{ID: rf.ID, Amount: rf.Amount, Status: string(rf.Status)}, nil
}

func (s *Stripe) UpdateMetadata(ctx context.Context, id string, md map[string]string) error {
	params := &stripe.PaymentIntentParams{}
	for k, v := range md {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if _, err := s.api.PaymentIntents.Update(id, params); err != nil {
		return fmt.Errorf("stripe: update metadata: %w", err)
	}
	return nil
}

func toAuthorization(pi *stripe.PaymentIntent) *booking.Authorization {
	return &booking.Authorization{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       booking.AuthorizationStatus(pi.Status),
		Amount:       pi.Amount,
		Metadata:     pi.Metadata,
	}
}

func isMissing(err error) bool {
	var se *stripe.Error
	return errors.As(err, &se) && se.Code == stripe.ErrorCodeResourceMissing
}

var _ booking.PaymentProvider = (*Stripe)(nil)
