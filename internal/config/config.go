// Package config defines service configuration structures and loading hooks.
//
// Configuration is layered: defaults from New, then an optional YAML file
// named by ROCKETSTAT_CONFIG, then ROCKETSTAT_* environment variables.
// Players are only read from the file.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"oneof=debug info warn warning error"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format" validate:"oneof=text json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// Storage configures the persisted player slots.
	Storage StorageConfig `koanf:"storage"`

	// QueueSize bounds the persistence queue.
	QueueSize int `koanf:"queue_size" validate:"gt=0"`

	// WorkerCount sets the number of persistence workers. Zero means one per CPU.
	WorkerCount int `koanf:"worker_count" validate:"gte=0"`

	// PersistTimeout bounds a single store write.
	PersistTimeout time.Duration `koanf:"persist_timeout" validate:"gt=0"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// StreamBuffer is the number of pending view updates kept per stream client.
	StreamBuffer int `koanf:"stream_buffer" validate:"gt=0"`

	// StreamOrigins lists the browser origins allowed to open a stream.
	// Empty means same host only.
	StreamOrigins []string `koanf:"stream_origins" validate:"dive,url"`

	// Players lists the configured players. One engine is built per entry.
	Players []PlayerConfig `koanf:"players" validate:"dive"`
}

// StorageConfig configures the Badger store.
type StorageConfig struct {
	Path           string        `koanf:"path" validate:"required_unless=InMemory true"`
	InMemory       bool          `koanf:"in_memory"`
	SyncWrites     bool          `koanf:"sync_writes"`
	GCInterval     time.Duration `koanf:"gc_interval" validate:"gte=0"`
	GCDiscardRatio float64       `koanf:"gc_discard_ratio" validate:"gt=0,lt=1"`
}

// PlayerConfig is a configured player as written in the config file.
type PlayerConfig struct {
	EntryID  string `koanf:"entry_id" validate:"omitempty,uuid"`
	Name     string `koanf:"name"`
	Username string `koanf:"username" validate:"required"`
	Platform string `koanf:"platform" validate:"required,oneof=steam epic"`
	UUID     string `koanf:"uuid" validate:"required,excludesall=|"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Addr:      ":9080",
		Storage: StorageConfig{
			Path:           "data/rocketstat",
			SyncWrites:     true,
			GCInterval:     5 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		QueueSize:       1024,
		WorkerCount:     runtime.NumCPU(),
		PersistTimeout:  5 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		StreamBuffer:    64,
	}
}
