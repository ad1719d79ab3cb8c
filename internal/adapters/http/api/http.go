// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/rocketstat/internal/domain/engine"
	"github.com/okian/rocketstat/internal/domain/model"
	"github.com/okian/rocketstat/internal/domain/views"
)

// maxBodyBytes caps inbound telemetry bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Broadcast offers a call to every engine and returns the accept count.
	Broadcast(ctx context.Context, call model.InboundCall) int

	// Submit offers a document to one engine.
	Submit(ctx context.Context, entryID string, doc model.Document) (bool, error)

	// EngineCount returns how many engines are registered.
	EngineCount() int

	// Lookup returns the engine and view hub registered under entryID.
	Lookup(entryID string) (*engine.Engine, *views.Hub, bool)

	// Engines lists the registered engines in registration order.
	Engines() []*engine.Engine
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	ingestHandler  *IngestHandler
	playersHandler *PlayersHandler
	streamHandler  *StreamHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...StreamOption) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		ingestHandler:  NewIngestHandler(deps),
		playersHandler: NewPlayersHandler(deps),
		streamHandler:  NewStreamHandler(deps, opts...),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /services/update_match_data", MetricsMiddleware(s.ingestHandler.HandleUpdateMatchData, "update_match_data"))
	mux.HandleFunc("POST /webhook/{entry_id}", MetricsMiddleware(s.ingestHandler.HandleWebhook, "webhook"))

	mux.HandleFunc("GET /players", MetricsMiddleware(s.playersHandler.HandleList, "players"))
	mux.HandleFunc("GET /players/{entry_id}", MetricsMiddleware(s.playersHandler.HandleGet, "player"))
	mux.HandleFunc("GET /players/{entry_id}/sensors", MetricsMiddleware(s.playersHandler.HandleSensors, "sensors"))
	mux.HandleFunc("GET /players/{entry_id}/sensors/{unique_id}", MetricsMiddleware(s.playersHandler.HandleSensor, "sensor"))
	mux.HandleFunc("GET /players/{entry_id}/stream", MetricsMiddleware(s.streamHandler.HandleStream, "stream"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
