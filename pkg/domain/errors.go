package domain

import "errors"

var (
	// ErrInvalidEncoding rejects header text that is not valid UTF-8.
	ErrInvalidEncoding = errors.New("input is not valid UTF-8")
	// ErrUnknownField rejects a field key outside the supported set.
	ErrUnknownField = errors.New("unknown field")
	// ErrSessionNotFound is returned by session stores for missing ids.
	ErrSessionNotFound = errors.New("session not found")
)
