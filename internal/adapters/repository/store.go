// Package repository persists the last accepted telemetry document per
// player configuration record.
package repository

import (
	"context"
	"time"

	"github.com/okian/rocketstat/internal/domain/model"
)

// Record is what a slot holds. A Deleted record is a tombstone: it carries
// the version the slot was purged at and no document.
type Record struct {
	Version  uint64         `json:"version"`
	SavedAt  time.Time      `json:"saved_at"`
	Document model.Document `json:"document"`
	Deleted  bool           `json:"deleted,omitempty"`
}

// Store provides durable slots keyed by configuration record id.
type Store interface {
	// Restore returns the record held in slot, or ErrNotFound.
	Restore(ctx context.Context, slot string) (Record, error)

	// Persist writes doc into slot unless the slot already holds a version
	// >= version. It reports whether the write happened.
	Persist(ctx context.Context, slot string, version uint64, doc model.Document) (bool, error)

	// Purge replaces the slot with a tombstone at max(stored, version) so
	// writes still queued at or below that version are dropped as stale.
	Purge(ctx context.Context, slot string, version uint64) error

	// Delete drops the slot, tombstone included. Deleting a missing slot is
	// not an error. Only safe when no writes for slot are in flight.
	Delete(ctx context.Context, slot string) error

	// Slots lists every slot currently stored.
	Slots(ctx context.Context) ([]string, error)

	Close() error
}
