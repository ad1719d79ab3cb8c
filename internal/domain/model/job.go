package model

import "time"

// PersistJob asks storage to write doc into slot. Version increases with
// every accepted document of the same slot so late writes can be discarded.
type PersistJob struct {
	Slot       string
	Version    uint64
	Document   Document
	AcceptedAt time.Time
}
