// Package service composes the engines, their views and the persistence
// pipeline, and implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	eventqueue "github.com/okian/rocketstat/internal/adapters/mq/queue"
	workerpool "github.com/okian/rocketstat/internal/adapters/mq/worker"
	repository "github.com/okian/rocketstat/internal/adapters/repository"
	"github.com/okian/rocketstat/internal/domain/dispatch"
	"github.com/okian/rocketstat/internal/domain/engine"
	"github.com/okian/rocketstat/internal/domain/model"
	"github.com/okian/rocketstat/internal/domain/views"
	"github.com/okian/rocketstat/pkg/logger"
	"github.com/okian/rocketstat/pkg/metrics"
)

// Restore results.
const (
	restoreHit   = "hit"
	restoreMiss  = "miss"
	restoreError = "error"
)

// Player is one registered engine and the hub of its views.
type Player struct {
	Engine *engine.Engine
	Hub    *views.Hub
}

// Service owns every engine and the infrastructure they share.
type Service struct {
	mu sync.RWMutex

	// Core components
	store    repository.Store
	queue    *eventqueue.InMemoryQueue
	pool     *workerpool.Pool
	registry *dispatch.Registry
	router   *dispatch.Router
	players  map[string]*Player

	// retired holds the last state of engines removed while the service runs.
	// Their queued writes may not have landed yet, so a rebuild seeds from
	// whichever of this and the stored slot is newer.
	retired map[string]repository.Record

	// Configuration
	workerCount    int
	queueSize      int
	persistTimeout time.Duration
	storageOpts    []repository.Option
	initial        []model.PlayerRecord

	// State
	started   bool
	startedAt time.Time
	cancel    context.CancelFunc

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:    runtime.NumCPU(),
		queueSize:      1024,
		persistTimeout: 5 * time.Second,
		registry:       dispatch.NewRegistry(),
		players:        make(map[string]*Player),
		retired:        make(map[string]repository.Record),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = dispatch.NewRouter(s.registry)
	return s
}

// Start opens the store, starts the persistence workers and registers the
// configured players.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting rocketstat service...")

	// Workers and store GC outlive the Start context; Stop cancels them.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if s.store == nil {
		store, err := repository.NewBadgerStore(runCtx, s.storageOpts...)
		if err != nil {
			cancel()
			s.mu.Unlock()
			return fmt.Errorf("open store: %w", err)
		}
		s.store = store
	}
	s.cancel = cancel

	// Nothing is queued yet, so slots of players dropped from the
	// configuration while the service was down can be removed outright.
	if err := s.sweepLocked(ctx); err != nil {
		s.logger.Warn(ctx, "sweeping orphaned slots failed", logger.Error(err))
	}

	s.queue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithBufferSize(s.queueSize),
	)
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.store,
		workerpool.WithPersistTimeout(s.persistTimeout),
	)
	s.pool.Start(runCtx)

	s.started = true
	s.startedAt = time.Now()
	initial := slices.Clone(s.initial)
	s.mu.Unlock()

	var errs []error
	for _, rec := range initial {
		if err := s.AddPlayer(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}

	s.logger.Info(ctx, "rocketstat service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("players", s.registry.Len()),
	)
	return errors.Join(errs...)
}

// Stop unregisters every player, drains the persistence queue and closes
// the store. Persisted slots are kept.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping rocketstat service...")

	for id := range s.players {
		s.removeLocked(ctx, id)
	}

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.cancel()
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	s.store = nil
	clear(s.retired)

	s.started = false
	s.logger.Info(ctx, "rocketstat service stopped")
	return errors.Join(errs...)
}

// AddPlayer builds the engine for rec, restores its persisted document and
// registers it for dispatch.
func (s *Service) AddPlayer(ctx context.Context, rec model.PlayerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(ctx, rec)
}

func (s *Service) addLocked(ctx context.Context, rec model.PlayerRecord) error {
	if !s.started {
		return ErrNotStarted
	}
	if _, ok := s.players[rec.EntryID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, rec.EntryID)
	}

	opts := []engine.Option{engine.WithPersister(s.queue)}
	seed, err := s.store.Restore(ctx, rec.EntryID)
	switch {
	case err == nil && !seed.Deleted:
		metrics.RecordRestore(restoreHit)
	case err == nil, errors.Is(err, repository.ErrNotFound):
		metrics.RecordRestore(restoreMiss)
	default:
		// A broken slot must not keep the player offline; it starts empty and
		// the next accepted document overwrites the slot.
		metrics.RecordRestore(restoreError)
		s.logger.Warn(ctx, "restoring player failed, starting empty",
			logger.String("entry_id", rec.EntryID),
			logger.Error(err),
		)
		seed = repository.Record{}
	}
	if prev, ok := s.retired[rec.EntryID]; ok {
		delete(s.retired, rec.EntryID)
		if prev.Version > seed.Version {
			seed = prev
		}
	}
	if seed.Version > 0 {
		// A tombstone seeds only the version; its document is empty.
		opts = append(opts, engine.WithRestored(seed.Document, seed.Version, seed.SavedAt))
	}

	e := engine.New(rec, opts...)
	if err := s.registry.Add(e); err != nil {
		return err
	}
	hub := views.NewHub(e)
	e.Subscribe(engine.SubscriberFunc(func(context.Context) { s.updatePopulated() }))
	s.players[rec.EntryID] = &Player{Engine: e, Hub: hub}

	s.updateGaugesLocked()
	s.logger.Info(ctx, "player registered",
		logger.String("entry_id", rec.EntryID),
		logger.String("identity", rec.UniqueID()),
		logger.String("username", rec.Username),
		logger.String("state", e.State().String()),
	)
	return nil
}

// RemovePlayer unregisters the player. With purge the persisted slot is
// deleted as well.
func (s *Service) RemovePlayer(ctx context.Context, entryID string, purge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return ErrNotStarted
	}
	if !s.removeLocked(ctx, entryID) {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, entryID)
	}
	if purge {
		return s.purgeLocked(ctx, entryID)
	}
	return nil
}

// purgeLocked tombstones the slot of a removed player above every version
// its engine handed to the queue.
func (s *Service) purgeLocked(ctx context.Context, entryID string) error {
	prev := s.retired[entryID]
	delete(s.retired, entryID)
	if err := s.store.Purge(ctx, entryID, prev.Version); err != nil {
		return fmt.Errorf("purge %s: %w", entryID, err)
	}
	return nil
}

// sweepLocked deletes every stored slot that no configured player owns.
func (s *Service) sweepLocked(ctx context.Context) error {
	slots, err := s.store.Slots(ctx)
	if err != nil {
		return err
	}
	owned := make(map[string]struct{}, len(s.initial))
	for _, rec := range s.initial {
		owned[rec.EntryID] = struct{}{}
	}
	var errs []error
	for _, slot := range slots {
		if _, ok := owned[slot]; ok {
			continue
		}
		if err := s.store.Delete(ctx, slot); err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Info(ctx, "orphaned slot removed", logger.String("entry_id", slot))
	}
	return errors.Join(errs...)
}

func (s *Service) removeLocked(ctx context.Context, entryID string) bool {
	p, ok := s.players[entryID]
	if !ok {
		return false
	}
	s.registry.Remove(entryID)
	if v := p.Engine.Version(); v > 0 {
		s.retired[entryID] = repository.Record{
			Version:  v,
			SavedAt:  p.Engine.UpdatedAt(),
			Document: p.Engine.Snapshot(),
		}
	}
	p.Hub.Close()
	delete(s.players, entryID)
	s.updateGaugesLocked()
	s.logger.Info(ctx, "player removed", logger.String("entry_id", entryID))
	return true
}

// Reconcile makes the registered players match records. Players no longer
// listed are removed and their slots purged. Changed records are rebuilt
// from the newer of their persisted slot and the replaced engine.
func (s *Service) Reconcile(ctx context.Context, records []model.PlayerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return ErrNotStarted
	}

	s.initial = slices.Clone(records)

	want := make(map[string]model.PlayerRecord, len(records))
	for _, rec := range records {
		want[rec.EntryID] = rec
	}

	var errs []error
	for id, p := range s.players {
		rec, keep := want[id]
		switch {
		case !keep:
			s.removeLocked(ctx, id)
			if err := s.purgeLocked(ctx, id); err != nil {
				errs = append(errs, err)
			}
		case rec != p.Engine.Record():
			s.removeLocked(ctx, id)
		}
	}
	for _, rec := range records {
		if _, ok := s.players[rec.EntryID]; ok {
			continue
		}
		if err := s.addLocked(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Broadcast offers an inbound call to every registered engine.
func (s *Service) Broadcast(ctx context.Context, call model.InboundCall) int {
	return s.router.Broadcast(ctx, call)
}

// Submit offers doc to a single player.
func (s *Service) Submit(ctx context.Context, entryID string, doc model.Document) (bool, error) {
	ok, err := s.router.Submit(ctx, entryID, doc)
	if errors.Is(err, dispatch.ErrUnknownEntry) {
		return false, fmt.Errorf("%w: %s", ErrUnknownPlayer, entryID)
	}
	return ok, err
}

// EngineCount returns the number of registered engines.
func (s *Service) EngineCount() int {
	return s.registry.Len()
}

// Player returns the registered player with entryID.
func (s *Service) Player(entryID string) (*Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[entryID]
	return p, ok
}

// Players returns the registered players in registration order.
func (s *Service) Players() []*Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.registry.List()
	out := make([]*Player, 0, len(list))
	for _, sub := range list {
		if p, ok := s.players[sub.EntryID()]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Lookup returns the engine and view hub registered under entryID.
func (s *Service) Lookup(entryID string) (*engine.Engine, *views.Hub, bool) {
	p, ok := s.Player(entryID)
	if !ok {
		return nil, nil, false
	}
	return p.Engine, p.Hub, true
}

// Engines lists the registered engines in registration order.
func (s *Service) Engines() []*engine.Engine {
	players := s.Players()
	out := make([]*engine.Engine, len(players))
	for i, p := range players {
		out[i] = p.Engine
	}
	return out
}

func (s *Service) updatePopulated() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metrics.UpdatePopulatedCount(s.populatedLocked())
}

func (s *Service) populatedLocked() int {
	n := 0
	for _, p := range s.players {
		if p.Engine.State() == engine.Populated {
			n++
		}
	}
	return n
}

func (s *Service) updateGaugesLocked() {
	viewCount := 0
	for _, p := range s.players {
		viewCount += len(p.Hub.Views())
	}
	metrics.UpdateViewCount(viewCount)
	metrics.UpdatePopulatedCount(s.populatedLocked())
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"engines":     s.registry.Len(),
	}
	if s.started {
		queueLen := s.queue.Len(context.Background())
		stats["queueLength"] = queueLen
		stats["populated"] = s.populatedLocked()
		stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}
