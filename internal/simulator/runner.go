package simulator

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/rocketstat/internal/domain/model"
	"github.com/okian/rocketstat/pkg/logger"
)

type counters struct {
	sent, accepted, rejected, failed atomic.Int64
}

type updateReply struct {
	Accepted int `json:"accepted"`
}

type webhookReply struct {
	Accepted bool `json:"accepted"`
}

// Run pushes cfg.Matches rounds of telemetry for every player. Players within
// a round are sent concurrently; rounds are sequential so each player's
// documents arrive in order.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if len(cfg.Players) == 0 {
		return nil, ErrNoPlayers
	}
	if cfg.Mode != ModeBroadcast && cfg.Mode != ModeWebhook {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}

	log := logger.Get().Named("simulator")
	stats := &Stats{StartTime: time.Now()}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(stats.StartTime.UnixNano())
	}

	log.Info(ctx, "starting telemetry simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("players", len(cfg.Players)),
		logger.Int("matches", cfg.Matches),
		logger.String("mode", cfg.Mode),
		logger.Uint64("seed", seed))

	client := newHTTPClient(cfg.Timeout)
	if err := checkServiceHealth(ctx, client, cfg.BaseURL); err != nil {
		return nil, err
	}

	gen := NewGenerator(seed, cfg.Players)
	last := make([]model.Document, len(cfg.Players))
	var c counters

	for round := 0; round < cfg.Matches; round++ {
		g, gctx := errgroup.WithContext(ctx)
		for i, rec := range cfg.Players {
			doc := gen.Next(i)
			g.Go(func() error {
				ok, err := send(gctx, client, cfg, rec, doc)
				c.record(ok, err)
				if err != nil {
					log.Warn(gctx, "send failed", logger.String("entry_id", rec.EntryID), logger.Error(err))
					return nil
				}
				if ok {
					last[i] = doc
				}
				return nil
			})
		}
		if cfg.Strays {
			doc := gen.Stray()
			g.Go(func() error {
				ok, err := send(gctx, client, cfg, cfg.Players[0], doc)
				if ok {
					log.Warn(gctx, "stray document was accepted")
				}
				c.record(ok, err)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if round < cfg.Matches-1 && cfg.Interval > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.Interval):
			}
		}
	}

	stats.Sent = int(c.sent.Load())
	stats.Accepted = int(c.accepted.Load())
	stats.Rejected = int(c.rejected.Load())
	stats.Failed = int(c.failed.Load())

	if cfg.Verify {
		verify(ctx, client, cfg.BaseURL, cfg.Players, last, stats)
	}

	stats.Duration = time.Since(stats.StartTime)
	displayFinalStats(ctx, log, stats)

	if stats.Mismatch > 0 {
		return stats, fmt.Errorf("%w: %d views", ErrMismatch, stats.Mismatch)
	}
	return stats, nil
}

func (c *counters) record(accepted bool, err error) {
	c.sent.Add(1)
	switch {
	case err != nil:
		c.failed.Add(1)
	case accepted:
		c.accepted.Add(1)
	default:
		c.rejected.Add(1)
	}
}

// send delivers doc in the configured mode and reports whether the target
// player accepted it.
func send(ctx context.Context, client *HTTPClient, cfg *Config, rec model.PlayerRecord, doc model.Document) (bool, error) {
	if cfg.Mode == ModeWebhook {
		var reply webhookReply
		status, err := client.PostJSON(ctx, cfg.BaseURL+"/webhook/"+rec.EntryID, doc, &reply)
		if err != nil {
			return false, err
		}
		if status != http.StatusOK {
			return false, fmt.Errorf("%w: %d", ErrStatus, status)
		}
		return reply.Accepted, nil
	}

	var reply updateReply
	body := map[string]any{"json_data": doc}
	status, err := client.PostJSON(ctx, cfg.BaseURL+"/services/update_match_data", body, &reply)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("%w: %d", ErrStatus, status)
	}
	return reply.Accepted > 0, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient, baseURL string) error {
	resp, err := client.Get(ctx, baseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer resp.Body.Close()

	// Any 200 is healthy; the body is Prometheus metrics.
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.Sent) / stats.Duration.Seconds()
	}
	log.Info(ctx, "final statistics",
		logger.Int("sent", stats.Sent),
		logger.Int("accepted", stats.Accepted),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Int("verified", stats.Verified),
		logger.Int("mismatch", stats.Mismatch),
		logger.Duration("duration", stats.Duration),
		logger.Any("documentsPerSecond", perSecond))
}
