package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/okian/rocketstat/internal/domain/engine"
	"github.com/okian/rocketstat/internal/domain/model"
)

// PlayersHandler serves read-only player state.
type PlayersHandler struct {
	deps Dependencies
}

// NewPlayersHandler creates a new players handler.
func NewPlayersHandler(deps Dependencies) *PlayersHandler {
	return &PlayersHandler{deps: deps}
}

type playerSummary struct {
	model.PlayerRecord
	UniqueID  string     `json:"unique_id"`
	Device    string     `json:"device"`
	State     string     `json:"state"`
	Version   uint64     `json:"version"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type playerDetail struct {
	playerSummary
	Document model.Document `json:"document"`
}

func summarize(e *engine.Engine) playerSummary {
	rec := e.Record()
	s := playerSummary{
		PlayerRecord: rec,
		UniqueID:     rec.UniqueID(),
		Device:       rec.DeviceName(),
		State:        e.State().String(),
		Version:      e.Version(),
	}
	if t := e.UpdatedAt(); !t.IsZero() {
		s.UpdatedAt = &t
	}
	return s
}

// HandleList handles GET /players.
func (h *PlayersHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	engines := h.deps.Engines()
	out := make([]playerSummary, len(engines))
	for i, e := range engines {
		out[i] = summarize(e)
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGet handles GET /players/{entry_id}.
func (h *PlayersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_player"
	id := r.PathValue("entry_id")
	e, _, ok := h.deps.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, errors.New(id)))
		return
	}
	doc := e.Snapshot()
	if doc == nil {
		doc = model.Document{}
	}
	writeJSON(w, http.StatusOK, playerDetail{playerSummary: summarize(e), Document: doc})
}

// HandleSensors handles GET /players/{entry_id}/sensors.
func (h *PlayersHandler) HandleSensors(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_sensors"
	id := r.PathValue("entry_id")
	_, hub, ok := h.deps.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, errors.New(id)))
		return
	}
	writeJSON(w, http.StatusOK, hub.States())
}

// HandleSensor handles GET /players/{entry_id}/sensors/{unique_id}.
func (h *PlayersHandler) HandleSensor(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_sensor"
	id := r.PathValue("entry_id")
	_, hub, ok := h.deps.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, errors.New(id)))
		return
	}
	sensorID := r.PathValue("unique_id")
	state, ok := hub.State(sensorID)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, errors.New(sensorID)))
		return
	}
	writeJSON(w, http.StatusOK, state)
}
