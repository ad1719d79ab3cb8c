package views

import (
	"context"
	"reflect"
	"sync"

	"github.com/okian/rocketstat/internal/domain/engine"
	"github.com/okian/rocketstat/internal/domain/model"
	"github.com/okian/rocketstat/pkg/logger"
)

// Source is the engine a hub reads from.
type Source interface {
	Record() model.PlayerRecord
	Snapshot() model.Document
	Subscribe(s engine.Subscriber) (unsubscribe func())
}

// Listener receives the states that changed after a notification. It runs
// on the submit path and must not block.
type Listener func(ctx context.Context, changed []State)

// Hub owns the views of one engine. It subscribes once and re-evaluates all
// views on every notification.
type Hub struct {
	source Source
	views  []*View
	index  map[string]*View
	logger logger.Logger

	mu   sync.Mutex
	last map[string]State

	lmu       sync.RWMutex
	listeners map[uint64]Listener
	order     []uint64
	nextID    uint64

	unsubscribe func()
	closeOnce   sync.Once
}

// NewHub builds the views for src's record and subscribes to it.
func NewHub(src Source) *Hub {
	rec := src.Record()
	h := &Hub{
		source:    src,
		views:     Build(rec),
		last:      make(map[string]State),
		listeners: make(map[uint64]Listener),
		logger:    logger.Get().Named("views").With(logger.String("entry_id", rec.EntryID)),
	}
	h.index = make(map[string]*View, len(h.views))

	doc := src.Snapshot()
	for _, v := range h.views {
		h.index[v.UniqueID] = v
		h.last[v.UniqueID] = v.Evaluate(doc)
	}
	h.unsubscribe = src.Subscribe(h)
	return h
}

// Notify implements engine.Subscriber.
func (h *Hub) Notify(ctx context.Context) {
	doc := h.source.Snapshot()

	h.mu.Lock()
	var changed []State
	for _, v := range h.views {
		s := v.Evaluate(doc)
		if prev, ok := h.last[v.UniqueID]; ok && reflect.DeepEqual(prev, s) {
			continue
		}
		h.last[v.UniqueID] = s
		changed = append(changed, s)
	}
	h.mu.Unlock()

	if len(changed) == 0 {
		return
	}
	h.logger.Debug(ctx, "views changed", logger.Int("count", len(changed)))

	h.lmu.RLock()
	ls := make([]Listener, 0, len(h.order))
	for _, id := range h.order {
		ls = append(ls, h.listeners[id])
	}
	h.lmu.RUnlock()

	for _, l := range ls {
		l(ctx, changed)
	}
}

// Listen registers l and returns a func removing it.
func (h *Hub) Listen(l Listener) (stop func()) {
	h.lmu.Lock()
	h.nextID++
	id := h.nextID
	h.listeners[id] = l
	h.order = append(h.order, id)
	h.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.lmu.Lock()
			defer h.lmu.Unlock()
			delete(h.listeners, id)
			for i, o := range h.order {
				if o == id {
					h.order = append(h.order[:i:i], h.order[i+1:]...)
					break
				}
			}
		})
	}
}

// Views returns the hub's views in display order.
func (h *Hub) Views() []*View {
	out := make([]*View, len(h.views))
	copy(out, h.views)
	return out
}

// States evaluates every view against the engine's current document.
func (h *Hub) States() []State {
	doc := h.source.Snapshot()
	out := make([]State, len(h.views))
	for i, v := range h.views {
		out[i] = v.Evaluate(doc)
	}
	return out
}

// State evaluates a single view by unique id.
func (h *Hub) State(uniqueID string) (State, bool) {
	v, ok := h.index[uniqueID]
	if !ok {
		return State{}, false
	}
	return v.Evaluate(h.source.Snapshot()), true
}

// Close unsubscribes from the engine and drops all listeners.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.unsubscribe()
		h.lmu.Lock()
		h.listeners = make(map[uint64]Listener)
		h.order = nil
		h.lmu.Unlock()
	})
}
