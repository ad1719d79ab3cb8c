// Package simulator generates plausible Rocket League telemetry for
// configured players and pushes it to a running service.
package simulator

import (
	"time"

	"github.com/okian/rocketstat/internal/domain/model"
)

// Delivery modes.
const (
	ModeBroadcast = "broadcast"
	ModeWebhook   = "webhook"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL  string               // Base URL of the service
	Players  []model.PlayerRecord // Players to simulate
	Matches  int                  // Matches per player
	Interval time.Duration        // Pause between rounds
	Timeout  time.Duration        // HTTP request timeout
	Mode     string               // broadcast or webhook
	Seed     uint64               // Generator seed, 0 picks one
	Strays   bool                 // Also send documents for unknown players
	Verify   bool                 // Check views after the run
}

// Stats holds run statistics.
type Stats struct {
	Sent      int
	Accepted  int
	Rejected  int
	Failed    int
	Verified  int
	Mismatch  int
	StartTime time.Time
	Duration  time.Duration
}
