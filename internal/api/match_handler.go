package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"talent-match/internal/matching"
)

type MatchResponse struct {
	Results []matching.Match `json:"results"`
	Total   int              `json:"total"`
	TookMS  int64            `json:"took_ms"`
}

type SearchResponse struct {
	Results []matching.SearchHit `json:"results"`
	Total   int                  `json:"total"`
	Query   string               `json:"query"`
}

// MatchHandler ranks candidates against a job description
// @Summary Match candidates to a job description
// @Description Embeds the job description, queries the embedding index with filters and optionally explains each match
// @Tags matching
// @Accept json
// @Produce json
// @Param request body matching.MatchRequest true "Job description, filters, top_k, explain"
// @Success 200 {object} MatchResponse
// @Failure 400 {object} errorResponse
// @Failure 503 {object} errorResponse
// @Router /match [post]
func (a *API) MatchHandler(w http.ResponseWriter, r *http.Request) {
	var req matching.MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	start := time.Now()
	results, err := a.engine.Match(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MatchResponse{
		Results: results,
		Total:   len(results),
		TookMS:  time.Since(start).Milliseconds(),
	})
}

// SearchHandler runs a keyword search
// @Summary Keyword search
// @Description Token overlap search over candidate profiles; does not use embeddings
// @Tags matching
// @Produce json
// @Param q query string true "Query"
// @Param top_k query int false "Number of results (default 20, max 100)"
// @Success 200 {object} SearchResponse
// @Failure 400 {object} errorResponse
// @Router /search [get]
func (a *API) SearchHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	topK := 0
	if v := r.URL.Query().Get("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "top_k must be an integer")
			return
		}
		topK = n
	}

	results, err := a.engine.Search(r.Context(), q, topK)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results, Total: len(results), Query: q})
}
