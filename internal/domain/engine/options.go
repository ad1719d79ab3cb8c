package engine

import (
	"time"

	"github.com/okian/rocketstat/internal/domain/model"
	"github.com/okian/rocketstat/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithPersister sets where accepted documents are sent for storage.
func WithPersister(p Persister) Option {
	return func(e *Engine) {
		e.persister = p
	}
}

// WithRestored seeds the engine with a previously persisted document. Later
// accepts continue numbering after version. An empty document is ignored.
func WithRestored(doc model.Document, version uint64, savedAt time.Time) Option {
	return func(e *Engine) {
		e.version = version
		if doc.IsEmpty() {
			return
		}
		e.current.Store(&snapshot{doc: doc, version: version, acceptedAt: savedAt})
	}
}

// WithLogger sets a custom logger for the engine.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
