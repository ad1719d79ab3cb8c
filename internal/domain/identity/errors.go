package identity

import "errors"

// Sentinel kinds for identity errors.
var (
	ErrUnknownPlatform = errors.New("unknown platform")
)
