package service

import "errors"

// Sentinel error kinds for this package.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrUnknownPlayer  = errors.New("unknown player")
	ErrDuplicateEntry = errors.New("player already registered")
)
