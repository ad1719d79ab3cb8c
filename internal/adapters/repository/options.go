package repository

import (
	"time"

	"github.com/okian/rocketstat/pkg/logger"
)

// Option applies a configuration option to the BadgerStore.
type Option func(*BadgerStore)

// WithPath sets the database directory. Ignored in memory mode.
func WithPath(path string) Option {
	return func(s *BadgerStore) {
		s.path = path
	}
}

// WithInMemory keeps every slot in RAM. Useful for tests.
func WithInMemory(inMemory bool) Option {
	return func(s *BadgerStore) {
		s.inMemory = inMemory
	}
}

// WithSyncWrites fsyncs every write.
func WithSyncWrites(sync bool) Option {
	return func(s *BadgerStore) {
		s.syncWrites = sync
	}
}

// WithGCInterval sets how often value log GC runs; zero disables it.
func WithGCInterval(interval time.Duration) Option {
	return func(s *BadgerStore) {
		if interval >= 0 {
			s.gcInterval = interval
		}
	}
}

// WithGCDiscardRatio sets the garbage ratio that triggers a rewrite.
func WithGCDiscardRatio(ratio float64) Option {
	return func(s *BadgerStore) {
		if ratio > 0 && ratio < 1 {
			s.gcDiscardRatio = ratio
		}
	}
}

// WithLogger sets the store logger; badger's own output is routed through it.
func WithLogger(l logger.Logger) Option {
	return func(s *BadgerStore) {
		if l != nil {
			s.logger = l
		}
	}
}
