package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound    = errors.New("slot not found")
	ErrInvalidSlot = errors.New("invalid slot")
	ErrClosed      = errors.New("store closed")
	ErrCorrupt     = errors.New("corrupt slot record")
	ErrNoPath      = errors.New("path is required for an on-disk store")
)
