package api

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

func NewRouter(a *API, swaggerURL string) http.Handler {
	mux := http.NewServeMux()

	// Swagger documentation
	mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL(swaggerURL),
	))

	mux.HandleFunc("GET /health", a.HealthHandler)
	mux.HandleFunc("GET /{$}", a.RootHandler)

	// Matching
	mux.HandleFunc("POST /api/match", a.MatchHandler)
	mux.HandleFunc("GET /api/search", a.SearchHandler)

	// Candidates
	mux.HandleFunc("POST /api/candidates/ingest", a.IngestHandler)
	mux.HandleFunc("GET /api/candidates", a.ListCandidatesHandler)
	mux.HandleFunc("GET /api/candidates/{id}", a.GetCandidateHandler)
	mux.HandleFunc("DELETE /api/candidates/{id}", a.DeleteCandidateHandler)
	mux.HandleFunc("PATCH /api/candidates/{id}/status", a.UpdateStatusHandler)
	mux.HandleFunc("GET /api/candidates/{id}/audit", a.AuditHandler)

	// Index & stats
	mux.HandleFunc("POST /api/reindex", a.ReindexHandler)
	mux.HandleFunc("GET /api/stats", a.StatsHandler)

	return mux
}
