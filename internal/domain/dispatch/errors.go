package dispatch

import "errors"

// Sentinel kinds for dispatch errors.
var (
	ErrDuplicateEntry = errors.New("entry already registered")
	ErrUnknownEntry   = errors.New("entry not registered")
	ErrInvalidEntry   = errors.New("entry id is empty")
)
