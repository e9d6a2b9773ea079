package httpx

import (
	"encoding/json"
	"errors"
	"github.com/ariefcatur/salon-booking-core/internal/booking"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"io"
	"net/http"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, code, msg string, details map[string]string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg, Details: details}})
}

var statusByCode = map[string]int{
	booking.ErrSlotUnavailable.Code:     http.StatusConflict,
	booking.ErrCorruptIntent.Code:       http.StatusUnprocessableEntity,
	booking.ErrPaymentNotCaptured.Code:  http.StatusConflict,
	booking.ErrRefundFailed.Code:        http.StatusBadGateway,
	booking.ErrForbidden.Code:           http.StatusForbidden,
	booking.ErrNotFound.Code:            http.StatusNotFound,
	booking.ErrInvalidInterval.Code:     http.StatusBadRequest,
	booking.ErrValidation.Code:          http.StatusBadRequest,
	booking.ErrPaymentsDisabled.Code:    http.StatusUnprocessableEntity,
	booking.ErrInvalidState.Code:        http.StatusConflict,
	booking.ErrConfirmationExpired.Code: http.StatusGone,
}

// writeError maps classified booking errors to their status. Anything else
// is logged and answered with a generic 500 so provider text never leaks.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var taken *booking.SlotTakenError
	if errors.As(err, &taken) {
		writeProblem(w, http.StatusConflict, booking.ErrSlotUnavailable.Code,
			"the time slot was taken by another booking; your payment has been refunded", nil)
		return
	}
	if code, msg := booking.CodeOf(err); code != "" {
		status, ok := statusByCode[code]
		if !ok {
			status = http.StatusInternalServerError
		}
		if status >= http.StatusInternalServerError {
			log.Error("request failed", zap.String("code", code), zap.Error(err))
		}
		writeProblem(w, status, code, msg, nil)
		return
	}
	log.Error("request failed", zap.Error(err))
	writeProblem(w, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}

// decodeJSON reads a single JSON object, rejecting unknown fields.
func decodeJSON(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("body must contain a single JSON object")
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// bind decodes and validates a request body, answering 400 itself on failure.
func bind(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decodeJSON(r.Body, v); err != nil {
		writeProblem(w, http.StatusBadRequest, booking.ErrValidation.Code, "invalid json", nil)
		return false
	}
	if err := validate.Struct(v); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			writeProblem(w, http.StatusBadRequest, booking.ErrValidation.Code, "invalid request", validationDetails(ve))
			return false
		}
		writeProblem(w, http.StatusBadRequest, booking.ErrValidation.Code, "invalid request", nil)
		return false
	}
	return true
}

func validationDetails(errs validator.ValidationErrors) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	details := make(map[string]string, len(errs))
	for _, err := range errs {
		details[err.Field()] = err.Tag()
	}
	return details
}
