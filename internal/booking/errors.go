package booking

import (
	"errors"
	"fmt"
)

// Error is a classified failure surfaced to callers as code + message.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

// Is matches on code so wrapped or re-messaged errors still classify.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrSlotUnavailable     = &Error{Code: "SLOT_UNAVAILABLE", Message: "the requested time slot is not available"}
	ErrCorruptIntent       = &Error{Code: "CORRUPT_INTENT", Message: "payment authorization is missing booking details"}
	ErrPaymentNotCaptured  = &Error{Code: "PAYMENT_NOT_CAPTURED", Message: "payment has not been captured"}
	ErrRefundFailed        = &Error{Code: "REFUND_FAILED", Message: "refund could not be issued; manual follow-up required"}
	ErrForbidden           = &Error{Code: "FORBIDDEN", Message: "not allowed to act on this reservation"}
	ErrNotFound            = &Error{Code: "NOT_FOUND", Message: "resource not found"}
	ErrInvalidInterval     = &Error{Code: "INVALID_INTERVAL", Message: "end time must be after start time"}
	ErrValidation          = &Error{Code: "VALIDATION_FAILED", Message: "invalid request"}
	ErrPaymentsDisabled    = &Error{Code: "PAYMENTS_DISABLED", Message: "salon does not accept online payments"}
	ErrInvalidState        = &Error{Code: "INVALID_STATE", Message: "reservation cannot be changed in its current status"}
	ErrConfirmationExpired = &Error{Code: "CONFIRMATION_EXPIRED", Message: "reservation was not confirmed before its deadline"}
)

// ErrDuplicatePaymentIntent is returned by Tx.InsertReservation when a row
// for the same payment intent already exists.
var ErrDuplicatePaymentIntent = errors.New("reservation for payment intent already exists")

// withMessage keeps the code of base and replaces the message.
func withMessage(base *Error, format string, args ...any) error {
	return &Error{Code: base.Code, Message: fmt.Sprintf(format, args...)}
}

// SlotTakenError is returned by confirmation paths that lost the race and refunded.
type SlotTakenError struct {
	PaymentIntentID string
	RefundID        string
}

func (e *SlotTakenError) Error() string {
	return fmt.Sprintf("slot no longer available; payment %s refunded (%s)", e.PaymentIntentID, e.RefundID)
}

func (e *SlotTakenError) Unwrap() error { return ErrSlotUnavailable }

// CodeOf returns the taxonomy code carried by err, or "" when unclassified.
func CodeOf(err error) (string, string) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, e.Message
	}
	return "", ""
}
