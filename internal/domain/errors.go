package domain

import (
	"errors"
	"fmt"
)

// ValidationError is bad input rejected before anything reaches the provider.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// AuthError means the provider rejected the tenant credentials or session.
type AuthError struct {
	Location Location
	Message  string
	Err      error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("billing auth failed for %s: %s", e.Location, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// GatewayError is a terminal rejection by the provider (decline, invalid
// request). It is never retried automatically.
type GatewayError struct {
	Code    string
	Message string
	Status  int
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("billing gateway error %s: %s", e.Code, e.Message)
}

// UnavailableError is a network failure or timeout. The outcome of the
// request is unknown.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("billing %s: provider unavailable", e.Op)
	}
	return fmt.Sprintf("billing %s: provider unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsAuth(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

func IsGateway(err error) bool {
	var target *GatewayError
	return errors.As(err, &target)
}

func IsUnavailable(err error) bool {
	var target *UnavailableError
	return errors.As(err, &target)
}

// DuplicateWarning is advisory. It lists documents that already exist for a
// booking and does not block issuance once the caller acknowledged them.
type DuplicateWarning struct {
	BookingID int64               `json:"booking_id"`
	Types     []DocumentType      `json:"types"`
	Existing  []FinancialDocument `json:"existing"`
}

func (w *DuplicateWarning) Numbers() []string {
	out := make([]string, 0, len(w.Existing))
	for _, d := range w.Existing {
		out = append(out, d.DocumentNumber)
	}
	return out
}

func (w *DuplicateWarning) Message() string {
	return fmt.Sprintf("%d matching document(s) already issued for booking %d; confirm to issue another", len(w.Existing), w.BookingID)
}
