package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/samber/mo"

	"guildcloner/core"
	"guildcloner/models"
	"guildcloner/usecases/clone"
)

// CloneService is the engine surface exposed over HTTP.
type CloneService interface {
	Verify(ctx context.Context, credential string) (*models.VerifyResult, error)
	CreateGuild(ctx context.Context, credential, name string) (*models.GuildDescriptor, error)
	Start(req models.RunRequest, sink clone.Sink) (string, error)
	Cancel() bool
	Status() (models.RunStatus, bool)
}

// RunHistory reads persisted run summaries.
type RunHistory interface {
	GetRun(ctx context.Context, id string) (mo.Option[*models.RunRecord], error)
	ListRecent(ctx context.Context, limit int) ([]*models.RunRecord, error)
}

type CloneHTTPHandler struct {
	service CloneService
	history RunHistory
	sink    clone.Sink
	logger  zerolog.Logger
}

// NewCloneHTTPHandler wires the control routes. history may be nil when persistence is disabled;
// sink receives events of runs started over HTTP.
func NewCloneHTTPHandler(service CloneService, history RunHistory, sink clone.Sink, logger zerolog.Logger) *CloneHTTPHandler {
	return &CloneHTTPHandler{
		service: service,
		history: history,
		sink:    sink,
		logger:  logger.With().Str("component", "clone_http").Logger(),
	}
}

type VerifyRequest struct {
	Token string `json:"token"`
}

type CreateGuildRequest struct {
	Token string `json:"token"`
	Name  string `json:"name"`
}

type StartRunRequest struct {
	Token         string               `json:"token"`
	SourceID      string               `json:"source_id"`
	DestinationID string               `json:"destination_id"`
	Options       *models.CloneOptions `json:"options,omitempty"`
}

type StartRunResponse struct {
	RunID string `json:"run_id"`
}

type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type CurrentRunResponse struct {
	RunID       string                 `json:"run_id"`
	State       models.RunState        `json:"state"`
	Progress    float64                `json:"progress"`
	Source      models.GuildDescriptor `json:"source"`
	Destination models.GuildDescriptor `json:"destination"`
	Stats       models.CloneStats      `json:"stats"`
	Error       *ErrorBody             `json:"error,omitempty"`
}

func (h *CloneHTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/verify", h.HandleVerify).Methods(http.MethodPost)
	api.HandleFunc("/guilds", h.HandleCreateGuild).Methods(http.MethodPost)
	api.HandleFunc("/runs", h.HandleStartRun).Methods(http.MethodPost)
	api.HandleFunc("/runs", h.HandleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/cancel", h.HandleCancelRun).Methods(http.MethodPost)
	api.HandleFunc("/runs/current", h.HandleCurrentRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", h.HandleGetRun).Methods(http.MethodGet)
}

func (h *CloneHTTPHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *CloneHTTPHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to parse verify request body")
		h.writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}

	result, err := h.service.Verify(r.Context(), req.Token)
	if err != nil {
		h.writeServiceError(w, "verify credential", err)
		return
	}
	h.writeJSONResponse(w, http.StatusOK, result)
}

func (h *CloneHTTPHandler) HandleCreateGuild(w http.ResponseWriter, r *http.Request) {
	var req CreateGuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to parse create guild request body")
		h.writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}

	guild, err := h.service.CreateGuild(r.Context(), req.Token, req.Name)
	if err != nil {
		h.writeServiceError(w, "create guild", err)
		return
	}
	h.writeJSONResponse(w, http.StatusCreated, guild)
}

func (h *CloneHTTPHandler) HandleStartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to parse start run request body")
		h.writeError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}

	options := models.DefaultCloneOptions()
	if req.Options != nil {
		options = *req.Options
	}
	runID, err := h.service.Start(models.RunRequest{
		Credential:    req.Token,
		SourceID:      req.SourceID,
		DestinationID: req.DestinationID,
		Options:       options,
	}, h.sink)
	if err != nil {
		h.writeServiceError(w, "start run", err)
		return
	}

	h.logger.Info().Str("run_id", runID).Msg("Clone run accepted")
	h.writeJSONResponse(w, http.StatusAccepted, StartRunResponse{RunID: runID})
}

func (h *CloneHTTPHandler) HandleCancelRun(w http.ResponseWriter, r *http.Request) {
	if !h.service.Cancel() {
		h.writeError(w, http.StatusConflict, "", "no clone run is active")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *CloneHTTPHandler) HandleCurrentRun(w http.ResponseWriter, r *http.Request) {
	status, ok := h.service.Status()
	if !ok {
		h.writeJSONResponse(w, http.StatusOK, CurrentRunResponse{State: models.RunStateIdle})
		return
	}

	resp := CurrentRunResponse{
		RunID:       status.RunID,
		State:       status.State,
		Progress:    status.Progress,
		Source:      status.Source,
		Destination: status.Destination,
		Stats:       status.Stats,
	}
	if status.ErrorKind != "" {
		resp.Error = &ErrorBody{Kind: status.ErrorKind, Message: status.ErrorMessage}
	}
	h.writeJSONResponse(w, http.StatusOK, resp)
}

func (h *CloneHTTPHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusNotFound, "", "run history is disabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "", "limit must be an integer")
			return
		}
		limit = parsed
	}

	records, err := h.history.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list run history")
		h.writeError(w, http.StatusInternalServerError, core.KindInternal, "failed to list runs")
		return
	}
	if records == nil {
		records = []*models.RunRecord{}
	}
	h.writeJSONResponse(w, http.StatusOK, records)
}

func (h *CloneHTTPHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusNotFound, "", "run history is disabled")
		return
	}

	runID := mux.Vars(r)["id"]
	if !core.IsValidRunID(runID) {
		h.writeError(w, http.StatusBadRequest, "", "run id must look like run_<ULID>")
		return
	}

	maybeRecord, err := h.history.GetRun(r.Context(), runID)
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", runID).Msg("Failed to get run")
		h.writeError(w, http.StatusInternalServerError, core.KindInternal, "failed to get run")
		return
	}
	record, ok := maybeRecord.Get()
	if !ok {
		h.writeError(w, http.StatusNotFound, "", "run not found")
		return
	}
	h.writeJSONResponse(w, http.StatusOK, record)
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func (h *CloneHTTPHandler) writeServiceError(w http.ResponseWriter, action string, err error) {
	kind := core.ErrorKind(err)
	status := http.StatusBadGateway

	switch {
	case errors.Is(err, core.ErrEmptyCredential), errors.Is(err, core.ErrInvalidOptions):
		status, kind = http.StatusBadRequest, ""
	case errors.Is(err, core.ErrRunInProgress):
		status, kind = http.StatusConflict, ""
	case kind == core.KindAuth:
		status = http.StatusUnauthorized
	case kind == core.KindPermission:
		status = http.StatusForbidden
	case kind == core.KindRateLimitExhausted:
		status = http.StatusTooManyRequests
	}

	h.logger.Warn().Err(err).Int("status", status).Msgf("Failed to %s", action)
	h.writeError(w, status, kind, err.Error())
}

func (h *CloneHTTPHandler) writeError(w http.ResponseWriter, status int, kind, message string) {
	h.writeJSONResponse(w, status, map[string]ErrorBody{"error": {Kind: kind, Message: message}})
}

func (h *CloneHTTPHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
