package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")

	// ErrUnauthorized is returned for every credential failure except expiry.
	// Callers must not learn which part of the check failed.
	ErrUnauthorized = errors.New("Not authorized.")

	// ErrTokenExpired is returned when an API token matched but its expiry passed.
	ErrTokenExpired = errors.New("API token expired.")
)
