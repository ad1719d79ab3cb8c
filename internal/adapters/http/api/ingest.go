package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/okian/rocketstat/internal/domain/model"
	"github.com/okian/rocketstat/pkg/logger"
)

var errNotObject = errors.New("body must be a JSON object")

// IngestHandler accepts telemetry pushed by the game-side plugin.
type IngestHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(deps Dependencies) *IngestHandler {
	return &IngestHandler{deps: deps, logger: logger.Get().Named("api")}
}

type updateResponse struct {
	Status   string `json:"status"`
	Accepted int    `json:"accepted"`
	Engines  int    `json:"engines"`
}

type webhookResponse struct {
	Accepted bool `json:"accepted"`
}

// HandleUpdateMatchData handles POST /services/update_match_data. The body
// carries either json_data or the flattened data/TeamData/MMRData fields.
func (h *IngestHandler) HandleUpdateMatchData(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_match_data"

	engines := h.deps.EngineCount()
	if engines == 0 {
		writeError(w, http.StatusServiceUnavailable, "no_engines", NewKind(op, ErrNoEngines))
		return
	}

	var call model.InboundCall
	if err := decodeObject(w, r, &call); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	accepted := h.deps.Broadcast(r.Context(), call)
	writeJSON(w, http.StatusOK, updateResponse{Status: "ok", Accepted: accepted, Engines: engines})
}

// HandleWebhook handles POST /webhook/{entry_id}. The body is the telemetry
// document itself and is offered to that player only.
func (h *IngestHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	const op = "api.webhook"
	id := r.PathValue("entry_id")

	if _, _, ok := h.deps.Lookup(id); !ok {
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, errors.New(id)))
		return
	}

	var doc model.Document
	if err := decodeObject(w, r, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	accepted, err := h.deps.Submit(r.Context(), id, doc)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
		return
	}
	if !accepted {
		h.logger.Debug(r.Context(), "webhook document rejected", logger.String("entry_id", id))
	}
	writeJSON(w, http.StatusOK, webhookResponse{Accepted: accepted})
}

// decodeObject reads a size-limited body that must be a single JSON object.
func decodeObject(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return errNotObject
	}
	return json.Unmarshal(body, v)
}
