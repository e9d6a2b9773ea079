package httpx

import (
	"context"
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"net/http"
	"time"
)

type CheckoutHandler struct {
	Checkout  *booking.Checkout
	Confirmer *booking.Confirmer
	Log       *zap.Logger
}

type CalculateReq struct {
	ServiceID string `json:"service_id" validate:"required"`
}

type ProcessReq struct {
	ServiceID    string     `json:"service_id" validate:"required"`
	StartTime    time.Time  `json:"start_time" validate:"required"`
	EndTime      *time.Time `json:"end_time"`
	Notes        string     `json:"notes" validate:"max=1000"`
	ContactPhone string     `json:"contact_phone" validate:"omitempty,e164"`
}

type ConfirmReq struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required"`
}

type CancelReq struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Post("/checkout/calculate", h.calculate)
	r.Post("/checkout/process", h.process)
	r.Post("/checkout/confirm", h.confirm)
	r.Delete("/checkout/{id}/cancel", h.cancel)
}

func (h *CheckoutHandler) calculate(w http.ResponseWriter, r *http.Request) {
	var req CalculateReq
	if !bind(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	q, err := h.Checkout.Calculate(ctx, req.ServiceID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *CheckoutHandler) process(w http.ResponseWriter, r *http.Request) {
	var req ProcessReq
	if !bind(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	in := booking.AuthorizeInput{
		ServiceID:    req.ServiceID,
		Start:        req.StartTime,
		Notes:        req.Notes,
		ContactPhone: req.ContactPhone,
	}
	if req.EndTime != nil {
		in.End = *req.EndTime
	}
	res, err := h.Checkout.Authorize(ctx, ActorFrom(r.Context()), in)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *CheckoutHandler) confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmReq
	if !bind(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	d, err := h.Confirmer.Confirm(ctx, ActorFrom(r.Context()), req.PaymentIntentID)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetailView(d))
}

func (h *CheckoutHandler) cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelReq
	// the body is optional
	if r.ContentLength != 0 && !bind(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Checkout.Cancel(ctx, ActorFrom(r.Context()), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationView(res))
}
