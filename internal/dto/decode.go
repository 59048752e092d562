package dto

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"vault/internal/domain"
)

// Decode reads a JSON body into v. An empty body leaves v untouched. Type
// mismatches are reported against the offending field.
func Decode(r io.Reader, v any) error {
	err := json.NewDecoder(r).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}

	var fe *domain.FieldError
	if errors.As(err, &fe) {
		return fe
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return domain.BadFormat(typeErr.Field)
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domain.Invalid("body", "request body too large")
	}
	return domain.BadFormat("body")
}
