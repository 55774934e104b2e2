package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"talent-match/internal/config"
	"talent-match/internal/cv"
	"talent-match/internal/embeddings"
	"talent-match/internal/identity"
	"talent-match/internal/index"
	"talent-match/internal/ingest"
	"talent-match/internal/keyword"
	"talent-match/internal/locks"
	"talent-match/internal/matching"
	"talent-match/internal/reindex"
	"talent-match/internal/storage"
)

const resume = `Grace Hopper
grace@example.com | +1 202 555 0147 | Arlington

SKILLS
Go, Kafka, Kubernetes

EXPERIENCE
Principal Engineer | Navy Systems | 2015-01 - present
Compilers and Kafka pipelines in Go.
`

func newServer(t *testing.T, embedder embeddings.Embedder) *httptest.Server {
	t.Helper()
	log := zap.NewNop()
	store := storage.NewMemoryStore()
	idx := index.New(log)
	kw, err := keyword.Open("", log)
	require.NoError(t, err)
	keyed := locks.NewKeyed()

	scheduler := reindex.New(reindex.Deps{Store: store, Index: idx, Embedder: embedder, Locks: keyed},
		config.ReindexConfig{Concurrency: 2}, 10, log)
	pipeline := ingest.New(ingest.Deps{
		Store:    store,
		Index:    idx,
		Embedder: embedder,
		Locks:    keyed,
		Keyword:  kw,
		Queue:    scheduler,
	}, config.IngestConfig{IndexMode: ingest.ModeSync, IdentityAmbiguity: "new", MaxAttempts: 3}, log)

	a := NewAPI(Services{
		Store:     store,
		Index:     idx,
		Pipeline:  pipeline,
		Engine:    matching.NewEngine(store, idx, embedder, kw, log),
		Scheduler: scheduler,
	}, 1, log)
	srv := httptest.NewServer(NewRouter(a, "/swagger/doc.json"))
	t.Cleanup(func() {
		srv.Close()
		kw.Close()
	})
	return srv
}

func upload(t *testing.T, srv *httptest.Server, filename string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("source", "upload"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/candidates/ingest", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestCandidateLifecycle(t *testing.T) {
	srv := newServer(t, embeddings.NewHashEmbedder(128))

	resp := upload(t, srv, "grace.txt", []byte(resume))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[ingest.Result](t, resp)
	require.NotEmpty(t, res.CandidateID)
	assert.True(t, res.WasNewCandidate)
	assert.True(t, res.Indexed)

	resp = upload(t, srv, "grace-again.txt", []byte(resume))
	dup := decode[ingest.Result](t, resp)
	assert.True(t, dup.WasDuplicateResume)
	assert.Equal(t, res.CandidateID, dup.CandidateID)

	resp = do(t, http.MethodGet, srv.URL+"/api/candidates/"+res.CandidateID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decode[map[string]any](t, resp)
	assert.Equal(t, "Grace Hopper", detail["name"])
	assert.Equal(t, false, detail["stale"])
	assert.Equal(t, "hash-v1-128", detail["embedding_version"])
	assert.NotNil(t, detail["index_updated_at"])

	resp = do(t, http.MethodGet, srv.URL+"/api/candidates?limit=5&status=active", nil)
	list := decode[CandidateList](t, resp)
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, 5, list.Limit)

	resp = do(t, http.MethodPost, srv.URL+"/api/match", matching.MatchRequest{JD: "Go and Kafka engineer", Explain: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	matches := decode[MatchResponse](t, resp)
	require.Equal(t, 1, matches.Total)
	require.NotNil(t, matches.Results[0].Evidence)
	assert.Contains(t, matches.Results[0].Evidence.MatchedSkills, "kafka")

	resp = do(t, http.MethodGet, srv.URL+"/api/search?q=kubernetes&top_k=3", nil)
	search := decode[SearchResponse](t, resp)
	require.Equal(t, 1, search.Total)
	assert.Equal(t, res.CandidateID, search.Results[0].CandidateID)

	resp = do(t, http.MethodGet, srv.URL+"/api/search?q=the+and+of", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	search = decode[SearchResponse](t, resp)
	assert.Zero(t, search.Total)
	assert.NotNil(t, search.Results)

	resp = do(t, http.MethodPatch, srv.URL+"/api/candidates/"+res.CandidateID+"/status", StatusRequest{Status: storage.StatusArchived})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	archived := decode[map[string]any](t, resp)
	assert.Equal(t, "archived", archived["status"])

	resp = do(t, http.MethodGet, srv.URL+"/api/stats", nil)
	stats := decode[StatsResponse](t, resp)
	assert.Equal(t, 1, stats.TotalCandidates)
	assert.Equal(t, 1, stats.TotalResumes)
	assert.Equal(t, 0, stats.ActiveCandidates)
	assert.Equal(t, 1, stats.IndexedCandidates)
	assert.Equal(t, 0, stats.StaleCandidates)

	resp = do(t, http.MethodPost, srv.URL+"/api/reindex", reindex.Selection{IDs: []string{res.CandidateID, "nope"}})
	rr := decode[ReindexResponse](t, resp)
	assert.False(t, rr.Success)
	assert.Equal(t, 1, rr.UnchangedCount)
	assert.Equal(t, 1, rr.FailedCount)

	resp = do(t, http.MethodDelete, srv.URL+"/api/candidates/"+res.CandidateID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, http.MethodGet, srv.URL+"/api/candidates/"+res.CandidateID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, http.MethodGet, srv.URL+"/api/candidates/"+res.CandidateID+"/audit", nil)
	audit := decode[[]storage.AuditEntry](t, resp)
	actions := make([]string, 0, len(audit))
	for _, e := range audit {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{storage.ActionCreate, storage.ActionStatus, storage.ActionDelete}, actions)
}

func TestUploadValidation(t *testing.T) {
	srv := newServer(t, embeddings.NewHashEmbedder(64))

	resp := upload(t, srv, "grace.exe", []byte(resume))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = upload(t, srv, "broken.txt", []byte{0xff, 0xfe, 0xfd})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	resp = upload(t, srv, "big.txt", []byte(strings.Repeat("a", 2<<20)))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestMatchErrors(t *testing.T) {
	srv := newServer(t, embeddings.NewResilient(failing{}, embeddings.RetryConfig{}, 0, 0, zap.NewNop()))

	resp := do(t, http.MethodPost, srv.URL+"/api/match", matching.MatchRequest{JD: ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = do(t, http.MethodPost, srv.URL+"/api/match", matching.MatchRequest{JD: "Go"})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	e := decode[errorResponse](t, resp)
	assert.Contains(t, e.Error, "embedding unavailable")

	resp = upload(t, srv, "grace.txt", []byte(resume))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	resp.Body.Close()
}

type failing struct{}

func (failing) ModelVersion() string { return "failing" }
func (failing) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("provider down")
}

func TestHealthAndRoot(t *testing.T) {
	srv := newServer(t, embeddings.NewHashEmbedder(8))

	resp := do(t, http.MethodGet, srv.URL+"/health", nil)
	assert.Equal(t, map[string]string{"status": "healthy"}, decode[map[string]string](t, resp))

	resp = do(t, http.MethodGet, srv.URL+"/", nil)
	assert.Equal(t, "talent-match", decode[map[string]string](t, resp)["name"])
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&cv.ExtractionError{Filename: "a.pdf", Err: errors.New("bad")}, http.StatusUnprocessableEntity},
		{fmt.Errorf("x: %w", identity.ErrAmbiguousIdentity), http.StatusConflict},
		{fmt.Errorf("x: %w", storage.ErrConflict), http.StatusConflict},
		{fmt.Errorf("x: %w", embeddings.ErrEmbeddingUnavailable), http.StatusServiceUnavailable},
		{storage.ErrNotFound, http.StatusNotFound},
		{matching.ErrEmptyQuery, http.StatusBadRequest},
		{ingest.ErrInvalidStatus, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
