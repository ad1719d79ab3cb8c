package simulator

import "errors"

var (
	ErrNoPlayers   = errors.New("no players to simulate")
	ErrUnknownMode = errors.New("unknown delivery mode")
	ErrUnhealthy   = errors.New("service is not healthy")
	ErrStatus      = errors.New("unexpected status")
	ErrMismatch    = errors.New("view does not match last document")
)
