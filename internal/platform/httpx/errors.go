package httpx

import "errors"

// Sentinels services wrap with fmt.Errorf("...: %w", ...) to pick the
// response status. RespondError does the mapping.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)
