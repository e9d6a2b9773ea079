package httpx

import (
	"context"
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"net/http"
	"time"
)

// StatusCache is the short-lived timeout-status cache; redisx.StatusCache in production.
type StatusCache interface {
	Get(ctx context.Context, reservationID, userID string) (*booking.TimeoutStatus, bool, error)
	Set(ctx context.Context, userID string, ts *booking.TimeoutStatus) error
}

type ReservationsHandler struct {
	Modifier *booking.Modifier
	Sweeper  *booking.Sweeper
	Cache    StatusCache // optional
	Log      *zap.Logger
}

type ModifyReq struct {
	ServiceID *string    `json:"service_id" validate:"omitempty,min=1"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Notes     *string    `json:"notes" validate:"omitempty,max=1000"`
}

func (h *ReservationsHandler) Register(r chi.Router) {
	r.Get("/reservations/{id}", h.get)
	r.Put("/reservations/{id}", h.modify)
	r.Get("/reservations/{id}/history", h.history)
	r.Get("/reservations/{id}/timeout-status", h.timeoutStatus)
}

func (h *ReservationsHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	d, err := h.Modifier.Get(ctx, ActorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetailView(d))
}

func (h *ReservationsHandler) modify(w http.ResponseWriter, r *http.Request) {
	var req ModifyReq
	if !bind(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	d, err := h.Modifier.Modify(ctx, ActorFrom(r.Context()), chi.URLParam(r, "id"), booking.ModifyInput{
		ServiceID: req.ServiceID,
		Start:     req.StartTime,
		End:       req.EndTime,
		Notes:     req.Notes,
	})
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetailView(d))
}

func (h *ReservationsHandler) history(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	entries, err := h.Modifier.History(ctx, ActorFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditViews(entries))
}

func (h *ReservationsHandler) timeoutStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	actor := ActorFrom(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	if h.Cache != nil {
		if ts, ok, err := h.Cache.Get(ctx, id, actor.UserID); err == nil && ok {
			writeJSON(w, http.StatusOK, ts)
			return
		} else if err != nil {
			h.Log.Warn("timeout status cache read failed", zap.String("reservation_id", id), zap.Error(err))
		}
	}

	// 2) fallback DB
	ts, err := h.Sweeper.CheckTimeoutStatus(ctx, actor, id)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if h.Cache != nil {
		if err := h.Cache.Set(ctx, actor.UserID, ts); err != nil {
			h.Log.Warn("timeout status cache write failed", zap.String("reservation_id", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, ts)
}
