package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrSequenceConflict = errors.New("id not in sequence")
	ErrNotFound         = errors.New("not found")
	ErrNoData           = errors.New("no data")
	ErrRateLimited      = errors.New("rate limited")
)

// FieldError is a client input problem. Its message is safe to show to the
// caller verbatim.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string { return e.Message }

func (e *FieldError) Unwrap() error { return ErrInvalidRequest }

func Missing(field string) *FieldError {
	return &FieldError{Field: field, Message: "missing " + field}
}

func BadFormat(field string) *FieldError {
	return &FieldError{Field: field, Message: fmt.Sprintf("bad %s format", field)}
}

func Invalid(field, message string) *FieldError {
	return &FieldError{Field: field, Message: message}
}
