package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/okian/rocketstat/internal/domain/views"
	"github.com/okian/rocketstat/pkg/logger"
	"github.com/okian/rocketstat/pkg/metrics"
)

const (
	writeWait           = 10 * time.Second
	pongWait            = 60 * time.Second
	pingPeriod          = (pongWait * 9) / 10
	maxClientMessage    = 512
	defaultStreamBuffer = 64
)

// Stream message types.
const (
	messageSnapshot = "snapshot"
	messageUpdate   = "update"
)

type streamMessage struct {
	Type    string        `json:"type"`
	Session string        `json:"session"`
	EntryID string        `json:"entry_id"`
	States  []views.State `json:"states"`
}

// StreamHandler pushes view changes to websocket clients.
type StreamHandler struct {
	deps     Dependencies
	upgrader websocket.Upgrader
	buffer   int
	logger   logger.Logger
}

// StreamOption configures the StreamHandler.
type StreamOption func(*StreamHandler)

// WithStreamBuffer sets how many pending updates a slow client may lag behind
// before it is resynchronised with a full snapshot.
func WithStreamBuffer(n int) StreamOption {
	return func(h *StreamHandler) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithAllowedOrigins restricts browser clients to the listed origins,
// compared case-insensitively. Requests without an Origin header, such as
// native overlays, are always accepted. An empty list keeps gorilla's
// same-host check.
func WithAllowedOrigins(origins ...string) StreamOption {
	return func(h *StreamHandler) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := allowed[strings.ToLower(origin)]
			return ok
		}
	}
}

// outbox buffers view changes for one client. When the client falls behind
// the pending batches are discarded and replaced by a single snapshot.
type outbox struct {
	ch     chan []views.State
	resync atomic.Bool
	full   func() []views.State
}

func newOutbox(size int, full func() []views.State) *outbox {
	return &outbox{ch: make(chan []views.State, size), full: full}
}

// offer queues changed without blocking the publisher.
func (o *outbox) offer(changed []views.State) {
	select {
	case o.ch <- changed:
	default:
		o.resync.Store(true)
	}
}

// next turns a received batch into the message to send. After an overflow
// every older batch still buffered is dropped before the snapshot is taken,
// so nothing sent afterwards predates it.
func (o *outbox) next(changed []views.State) (string, []views.State) {
	if !o.resync.Swap(false) {
		return messageUpdate, changed
	}
	for {
		select {
		case <-o.ch:
		default:
			return messageSnapshot, o.full()
		}
	}
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(deps Dependencies, opts ...StreamOption) *StreamHandler {
	h := &StreamHandler{
		deps: deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
		},
		buffer: defaultStreamBuffer,
		logger: logger.Get().Named("stream"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleStream handles GET /players/{entry_id}/stream. The client first
// receives every view state, then each batch of changed states.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	const op = "api.stream"
	id := r.PathValue("entry_id")
	_, hub, ok := h.deps.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, errors.New(id)))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	session := uuid.NewString()
	log := h.logger.With(logger.String("session", session), logger.String("entry_id", id))
	ctx := r.Context()
	log.Info(ctx, "stream client connected")
	metrics.AddStreamClients(1)
	defer metrics.AddStreamClients(-1)

	box := newOutbox(h.buffer, hub.States)
	stop := hub.Listen(func(_ context.Context, changed []views.State) { box.offer(changed) })
	defer stop()

	send := func(kind string, states []views.State) error {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return err
		}
		return conn.WriteJSON(streamMessage{Type: kind, Session: session, EntryID: id, States: states})
	}
	if err := send(messageSnapshot, hub.States()); err != nil {
		log.Warn(ctx, "stream write failed", logger.Error(err))
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(maxClientMessage)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			log.Info(ctx, "stream client disconnected")
			return
		case <-ctx.Done():
			return
		case changed := <-box.ch:
			if err := send(box.next(changed)); err != nil {
				log.Warn(ctx, "stream write failed", logger.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
