package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"talent-match/internal/reindex"
	"talent-match/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CandidateDetail is a candidate with the state of its embedding.
type CandidateDetail struct {
	*storage.CandidateRecord
	IndexUpdatedAt   *time.Time `json:"index_updated_at"`
	EmbeddingVersion string     `json:"embedding_version,omitempty"`
	Stale            bool       `json:"stale"`
}

type CandidateList struct {
	Candidates []*storage.CandidateRecord `json:"candidates"`
	Total      int                        `json:"total"`
	Skip       int                        `json:"skip"`
	Limit      int                        `json:"limit"`
}

type StatusRequest struct {
	Status storage.CandidateStatus `json:"status"`
}

type StatsResponse struct {
	storage.Stats
	IndexedCandidates int `json:"indexed_candidates"`
	StaleCandidates   int `json:"stale_candidates"`
	PendingReindex    int `json:"pending_reindex"`
}

type ReindexResponse struct {
	Success        bool              `json:"success"`
	Selected       int               `json:"selected"`
	ReindexedCount int               `json:"reindexed_count"`
	UnchangedCount int               `json:"unchanged_count"`
	FailedCount    int               `json:"failed_count"`
	Errors         []reindex.Failure `json:"errors"`
}

func queryInt(r *http.Request, key string, def int) (int, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ListCandidatesHandler lists candidates
// @Summary List candidates
// @Tags candidates
// @Produce json
// @Param skip query int false "Offset"
// @Param limit query int false "Page size (default 20, max 100)"
// @Param status query string false "active or archived"
// @Param updated_since query string false "RFC3339 timestamp"
// @Success 200 {object} CandidateList
// @Failure 400 {object} errorResponse
// @Router /candidates [get]
func (a *API) ListCandidatesHandler(w http.ResponseWriter, r *http.Request) {
	skip, ok := queryInt(r, "skip", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "skip must be a non-negative integer")
		return
	}
	limit, ok := queryInt(r, "limit", defaultPageSize)
	if !ok {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	f := storage.ListFilter{Status: storage.CandidateStatus(r.URL.Query().Get("status"))}
	if v := r.URL.Query().Get("updated_since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "updated_since must be RFC3339")
			return
		}
		f.UpdatedSince = &t
	}

	list, total, err := a.store.ListCandidates(r.Context(), f, storage.Pagination{Skip: skip, Limit: limit})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CandidateList{Candidates: list, Total: total, Skip: skip, Limit: limit})
}

// GetCandidateHandler returns one candidate
// @Summary Get candidate
// @Tags candidates
// @Produce json
// @Param id path string true "Candidate ID"
// @Success 200 {object} CandidateDetail
// @Failure 404 {object} errorResponse
// @Router /candidates/{id} [get]
func (a *API) GetCandidateHandler(w http.ResponseWriter, r *http.Request) {
	c, err := a.store.GetCandidate(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.detail(c))
}

func (a *API) detail(c *storage.CandidateRecord) CandidateDetail {
	d := CandidateDetail{CandidateRecord: c, Stale: a.index.IsStale(c.ID, c.UpdatedAt)}
	if st, ok := a.index.Get(c.ID); ok && len(st.Embedding) > 0 {
		t := st.UpdatedAt
		d.IndexUpdatedAt = &t
		d.EmbeddingVersion = st.EmbeddingVersion
	}
	return d
}

// DeleteCandidateHandler deletes a candidate
// @Summary Delete candidate
// @Description Removes the candidate with its resumes and entries. The audit trail is kept
// @Tags candidates
// @Produce json
// @Param id path string true "Candidate ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} errorResponse
// @Router /candidates/{id} [delete]
func (a *API) DeleteCandidateHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.pipeline.Delete(r.Context(), id, "api"); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "candidate " + id + " deleted"})
}

// UpdateStatusHandler archives or reactivates a candidate
// @Summary Update candidate status
// @Tags candidates
// @Accept json
// @Produce json
// @Param id path string true "Candidate ID"
// @Param request body StatusRequest true "New status"
// @Success 200 {object} CandidateDetail
// @Failure 400 {object} errorResponse
// @Failure 404 {object} errorResponse
// @Router /candidates/{id}/status [patch]
func (a *API) UpdateStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	c, err := a.pipeline.UpdateStatus(r.Context(), r.PathValue("id"), req.Status, "api")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.detail(c))
}

// AuditHandler lists the audit trail of a candidate
// @Summary Candidate audit trail
// @Tags candidates
// @Produce json
// @Param id path string true "Candidate ID"
// @Success 200 {array} storage.AuditEntry
// @Router /candidates/{id}/audit [get]
func (a *API) AuditHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := a.store.ListAudit(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []storage.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// StatsHandler reports store and index counters
// @Summary System statistics
// @Tags system
// @Produce json
// @Success 200 {object} StatsResponse
// @Router /stats [get]
func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	st, err := a.store.Stats(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	all, _, err := a.store.ListCandidates(r.Context(), storage.ListFilter{}, storage.Pagination{})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	stale := 0
	for _, c := range all {
		if a.index.IsStale(c.ID, c.UpdatedAt) {
			stale++
		}
	}
	resp := StatsResponse{Stats: st, IndexedCandidates: a.index.Count(), StaleCandidates: stale}
	if a.scheduler != nil {
		resp.PendingReindex = a.scheduler.Pending()
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReindexHandler re-embeds candidates
// @Summary Rebuild embeddings
// @Description Reindexes the given ids, or everything updated since a time, or every stale candidate
// @Tags index
// @Accept json
// @Produce json
// @Param request body reindex.Selection false "Selection"
// @Success 200 {object} ReindexResponse
// @Failure 400 {object} errorResponse
// @Router /reindex [post]
func (a *API) ReindexHandler(w http.ResponseWriter, r *http.Request) {
	var sel reindex.Selection
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	res, err := a.scheduler.ReindexAll(r.Context(), sel)
	if res == nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReindexResponse{
		Success:        err == nil && len(res.Failed) == 0,
		Selected:       res.Selected,
		ReindexedCount: res.Succeeded,
		UnchangedCount: res.Unchanged,
		FailedCount:    len(res.Failed),
		Errors:         res.Failed,
	})
}
