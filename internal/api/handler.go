package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"talent-match/internal/cv"
	"talent-match/internal/embeddings"
	"talent-match/internal/identity"
	"talent-match/internal/index"
	"talent-match/internal/ingest"
	"talent-match/internal/matching"
	"talent-match/internal/reindex"
	"talent-match/internal/storage"
)

// Services are the components the HTTP layer drives.
type Services struct {
	Store     storage.Store
	Index     *index.Index
	Pipeline  *ingest.Pipeline
	Engine    *matching.Engine
	Scheduler *reindex.Scheduler
}

type API struct {
	store          storage.Store
	index          *index.Index
	pipeline       *ingest.Pipeline
	engine         *matching.Engine
	scheduler      *reindex.Scheduler
	maxUploadBytes int64
	log            *zap.Logger
}

func NewAPI(s Services, maxFileSizeMB int64, log *zap.Logger) *API {
	if maxFileSizeMB <= 0 {
		maxFileSizeMB = 10
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &API{
		store:          s.Store,
		index:          s.Index,
		pipeline:       s.Pipeline,
		engine:         s.Engine,
		scheduler:      s.Scheduler,
		maxUploadBytes: maxFileSizeMB << 20,
		log:            log.Named("api"),
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, cv.ErrExtractionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, identity.ErrAmbiguousIdentity), errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, embeddings.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, matching.ErrEmptyQuery), errors.Is(err, ingest.ErrInvalidStatus):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the mapped status. Server side failures are logged.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeError(w, status, err.Error())
}

// RootHandler describes the service
// @Summary Service banner
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router / [get]
func (a *API) RootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    "talent-match",
		"version": "1.0.0",
		"status":  "running",
	})
}

// HealthHandler reports liveness
// @Summary Health check
// @Tags system
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
