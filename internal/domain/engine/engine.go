// Package engine reconciles inbound telemetry with one configured player.
//
// An Engine owns the last accepted document for its player. Submit accepts a
// document only when its identity token names that player; accepted
// documents replace the previous one wholesale, are handed to the persister,
// and are announced to subscribers in registration order.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/rocketstat/internal/domain/identity"
	"github.com/okian/rocketstat/internal/domain/model"
	"github.com/okian/rocketstat/pkg/logger"
	"github.com/okian/rocketstat/pkg/metrics"
)

// State is the lifecycle state of an engine's document.
type State int

// Engine states.
const (
	Empty State = iota
	Populated
)

func (s State) String() string {
	if s == Populated {
		return "populated"
	}
	return "empty"
}

// Subscriber is told that the document changed. It reads the new document
// from the engine itself.
type Subscriber interface {
	Notify(ctx context.Context)
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(ctx context.Context)

// Notify calls f(ctx).
func (f SubscriberFunc) Notify(ctx context.Context) { f(ctx) }

// Persister takes a versioned document for durable storage. It must not block.
type Persister interface {
	Enqueue(ctx context.Context, job model.PersistJob) error
}

// snapshot is what readers see. It is never mutated after publication.
type snapshot struct {
	doc        model.Document
	version    uint64
	acceptedAt time.Time
}

type subscription struct {
	id  uint64
	sub Subscriber
}

// Engine holds the document of one player.
type Engine struct {
	record    model.PlayerRecord
	ident     identity.Identity
	persister Persister
	logger    logger.Logger

	mu      sync.Mutex // serialises Submit
	version uint64
	current atomic.Pointer[snapshot]

	subMu  sync.RWMutex
	subs   []subscription
	nextID uint64
}

// New builds an engine for record.
func New(record model.PlayerRecord, opts ...Option) *Engine {
	e := &Engine{
		record: record,
		ident:  record.Identity(),
		logger: logger.Get().Named("engine").With(logger.String("entry_id", record.EntryID)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit offers doc to the engine and reports whether it was accepted.
// Rejection is the normal outcome for documents meant for other players.
func (e *Engine) Submit(ctx context.Context, doc model.Document) bool {
	token := doc.IdentityToken()
	if !e.ident.Matches(token) {
		metrics.RecordSubmit(metrics.OutcomeRejected)
		e.logger.Debug(ctx, "document rejected", logger.String("identity", e.ident.String()))
		return false
	}

	stored := doc.Clone()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.version++
	snap := &snapshot{doc: stored, version: e.version, acceptedAt: time.Now()}
	e.current.Store(snap)
	metrics.RecordSubmit(metrics.OutcomeAccepted)

	e.persist(ctx, snap)
	e.notify(ctx)
	return true
}

func (e *Engine) persist(ctx context.Context, snap *snapshot) {
	if e.persister == nil {
		return
	}
	err := e.persister.Enqueue(ctx, model.PersistJob{
		Slot:       e.record.EntryID,
		Version:    snap.version,
		Document:   snap.doc,
		AcceptedAt: snap.acceptedAt,
	})
	if err != nil {
		e.logger.Warn(ctx, "document not persisted",
			logger.Uint64("version", snap.version),
			logger.Error(err),
		)
	}
}

func (e *Engine) notify(ctx context.Context) {
	e.subMu.RLock()
	subs := make([]Subscriber, len(e.subs))
	for i, s := range e.subs {
		subs[i] = s.sub
	}
	e.subMu.RUnlock()

	for _, s := range subs {
		s.Notify(ctx)
		metrics.RecordNotification()
	}
}

// Subscribe registers s for change notifications. The returned func removes
// it again and is safe to call more than once.
func (e *Engine) Subscribe(s Subscriber) (unsubscribe func()) {
	e.subMu.Lock()
	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, subscription{id: id, sub: s})
	e.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.subMu.Lock()
			defer e.subMu.Unlock()
			for i, sub := range e.subs {
				if sub.id == id {
					e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Subscribers returns the number of registered subscribers.
func (e *Engine) Subscribers() int {
	e.subMu.RLock()
	defer e.subMu.RUnlock()
	return len(e.subs)
}

// Snapshot returns the current document, or nil when empty. Callers must
// treat it as read-only.
func (e *Engine) Snapshot() model.Document {
	if s := e.current.Load(); s != nil {
		return s.doc
	}
	return nil
}

// Version is the number of the last accepted document, counting restored ones.
func (e *Engine) Version() uint64 {
	if s := e.current.Load(); s != nil {
		return s.version
	}
	return 0
}

// UpdatedAt is when the current document was accepted or restored.
func (e *Engine) UpdatedAt() time.Time {
	if s := e.current.Load(); s != nil {
		return s.acceptedAt
	}
	return time.Time{}
}

// State reports whether the engine holds a document.
func (e *Engine) State() State {
	if e.current.Load() == nil {
		return Empty
	}
	return Populated
}

// Record returns the configuration record the engine was built from.
func (e *Engine) Record() model.PlayerRecord { return e.record }

// Identity returns the identity the engine accepts.
func (e *Engine) Identity() identity.Identity { return e.ident }

// EntryID returns the record's entry id.
func (e *Engine) EntryID() string { return e.record.EntryID }

// PlayerData returns MMRData.player_data of the current document.
func (e *Engine) PlayerData() map[string]any { return e.Snapshot().PlayerData() }

// RankData returns the MMRData section of the current document.
func (e *Engine) RankData() map[string]any { return e.Snapshot().RankData() }

// CurrentPlaylist returns MMRData.current_playlist of the current document.
func (e *Engine) CurrentPlaylist() map[string]any { return e.Snapshot().CurrentPlaylist() }

// Ranks returns MMRData.ranks of the current document.
func (e *Engine) Ranks() map[string]any { return e.Snapshot().Ranks() }

// TeamOutcome returns the TeamData section of the current document.
func (e *Engine) TeamOutcome() map[string]any { return e.Snapshot().TeamOutcome() }
