package httpx

import (
	"context"
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"io"
	"net/http"
	"time"
)

const (
	maxWebhookBody = 65536
	// leaves room under requestTimeout to release the dedup claim and reply
	webhookTimeout = 10 * time.Second
)

// EventParser verifies a signed delivery; payments.Verifier in production.
type EventParser interface {
	Parse(payload []byte, sigHeader string) (booking.ProviderEvent, bool, error)
}

type EventHandler interface {
	Handle(ctx context.Context, ev booking.ProviderEvent) error
}

// Deduper claims provider event ids; redisx.Dedup in production.
type Deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

type WebhookHandler struct {
	Parser     EventParser
	Reconciler EventHandler
	Dedup      Deduper // optional
	Log        *zap.Logger
}

func (h *WebhookHandler) Register(r chi.Router) {
	r.Post("/webhooks/payments", h.receive)
}

func (h *WebhookHandler) receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, booking.ErrValidation.Code, "unreadable body", nil)
		return
	}
	ev, ok, err := h.Parser.Parse(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.Log.Warn("webhook rejected", zap.Error(err))
		writeProblem(w, http.StatusBadRequest, "BAD_SIGNATURE", "invalid webhook payload", nil)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}
	log := h.Log.With(zap.String("event_id", ev.ID), zap.String("event_type", string(ev.Type)),
		zap.String("payment_intent_id", ev.PaymentIntentID))

	ctx, cancel := context.WithTimeout(r.Context(), webhookTimeout)
	defer cancel()

	claimed := false
	if h.Dedup != nil && ev.ID != "" {
		fresh, err := h.Dedup.Claim(ctx, ev.ID)
		switch {
		case err != nil:
			// redis is only a fast path; the state checks still hold
			log.Warn("webhook dedup unavailable", zap.Error(err))
		case !fresh:
			log.Info("webhook duplicate skipped")
			writeJSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": true})
			return
		default:
			claimed = true
		}
	}

	if err := h.Reconciler.Handle(ctx, ev); err != nil {
		log.Error("webhook processing failed", zap.Error(err))
		if claimed {
			if rerr := h.Dedup.Release(context.WithoutCancel(ctx), ev.ID); rerr != nil {
				log.Warn("webhook dedup release failed", zap.Error(rerr))
			}
		}
		writeProblem(w, http.StatusInternalServerError, "WEBHOOK_FAILED", "webhook processing failed", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}
