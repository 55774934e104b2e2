package matching

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"talent-match/internal/config"
	"talent-match/internal/embeddings"
	"talent-match/internal/index"
	"talent-match/internal/ingest"
	"talent-match/internal/keyword"
	"talent-match/internal/profile"
	"talent-match/internal/storage"
)

const goResume = `Ada Lovelace
ada@example.com | Hamburg

SKILLS
Go, Kafka, Kubernetes

EXPERIENCE
Senior Backend Engineer | Streamline GmbH | 2017-01 - present
Kafka streaming pipelines and Go microservices on Kubernetes.

EDUCATION
MSc Computer Science | TU Hamburg | 2012 - 2016
`

const pythonResume = `Alan Turing
alan@example.com | London

SKILLS
Python, Django, PostgreSQL

EXPERIENCE
Data Engineer | Bletchley Analytics | 2020-06 - present
Django reporting apps and PostgreSQL warehouses.

EDUCATION
BSc Mathematics | King's College | 2015 - 2019
`

type renamed struct {
	embeddings.Embedder
	version string
}

func (r renamed) ModelVersion() string { return r.version }

type failingEmbedder struct{}

func (failingEmbedder) ModelVersion() string { return "failing" }
func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("provider down")
}

type fixture struct {
	store    *storage.MemoryStore
	index    *index.Index
	keyword  *keyword.Index
	embedder embeddings.Embedder
	pipeline *ingest.Pipeline
	ids      map[string]string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kw, err := keyword.Open("", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { kw.Close() })

	f := &fixture{
		store:    storage.NewMemoryStore(),
		index:    index.New(zap.NewNop()),
		keyword:  kw,
		embedder: embeddings.NewHashEmbedder(256),
		ids:      map[string]string{},
	}
	f.pipeline = ingest.New(ingest.Deps{
		Store:    f.store,
		Index:    f.index,
		Embedder: f.embedder,
		Keyword:  kw,
	}, config.IngestConfig{IndexMode: ingest.ModeSync, IdentityAmbiguity: "new"}, zap.NewNop())

	for name, body := range map[string]string{"ada": goResume, "alan": pythonResume} {
		res, err := f.pipeline.Ingest(context.Background(), ingest.Document{Filename: name + ".txt", Data: []byte(body)})
		require.NoError(t, err)
		f.ids[name] = res.CandidateID
	}
	return f
}

func TestMatchRanksAndExplains(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := NewEngine(f.store, f.index, f.embedder, f.keyword, zap.NewNop())

	matches, err := e.Match(ctx, MatchRequest{
		JD:      "Backend engineer: Go, Kafka streaming, Kubernetes microservices",
		Explain: true,
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, f.ids["ada"], matches[0].CandidateID)
	assert.Greater(t, matches[0].Score, matches[1].Score)

	ev := matches[0].Evidence
	require.NotNil(t, ev)
	assert.Subset(t, ev.MatchedSkills, []string{"go", "kafka", "kubernetes"})
	require.NotNil(t, ev.BestEntry)
	assert.Equal(t, "experience", ev.BestEntry.Kind)
	assert.Equal(t, "Streamline GmbH", ev.BestEntry.Organization)
	assert.False(t, ev.Stale)
	assert.False(t, ev.VersionMismatch)
	assert.False(t, ev.IndexUpdatedAt.IsZero())

	plain, err := e.Match(ctx, MatchRequest{JD: "Go Kafka"})
	require.NoError(t, err)
	assert.Nil(t, plain[0].Evidence)
}

func TestMatchFilters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := NewEngine(f.store, f.index, f.embedder, nil, zap.NewNop())

	matches, err := e.Match(ctx, MatchRequest{
		JD:      "Go Kafka",
		Filters: index.Filters{RequiredSkills: []string{"Django"}},
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, f.ids["alan"], matches[0].CandidateID)

	matches, err = e.Match(ctx, MatchRequest{JD: "Go Kafka", Filters: index.Filters{Location: "hamburg"}, TopK: 1})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, f.ids["ada"], matches[0].CandidateID)

	_, err = f.pipeline.UpdateStatus(ctx, f.ids["ada"], storage.StatusArchived, "test")
	require.NoError(t, err)
	matches, err = e.Match(ctx, MatchRequest{JD: "Go Kafka", Filters: index.Filters{Status: storage.StatusActive}})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, f.ids["alan"], matches[0].CandidateID)

	master := storage.EducationMaster
	matches, err = e.Match(ctx, MatchRequest{JD: "engineer", Filters: index.Filters{MinEducationLevel: master, Status: storage.StatusActive}})
	require.NoError(t, err)
	assert.Empty(t, matches, "empty result is not an error")
}

func TestMatchVersionMismatch(t *testing.T) {
	f := newFixture(t)
	e := NewEngine(f.store, f.index, renamed{Embedder: f.embedder, version: "hash-v2-256"}, nil, zap.NewNop())

	matches, err := e.Match(context.Background(), MatchRequest{JD: "Go", Explain: true})
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.True(t, matches[0].Evidence.VersionMismatch)
}

func TestMatchErrors(t *testing.T) {
	f := newFixture(t)

	e := NewEngine(f.store, f.index, f.embedder, nil, zap.NewNop())
	_, err := e.Match(context.Background(), MatchRequest{JD: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	e = NewEngine(f.store, f.index, failingEmbedder{}, nil, zap.NewNop())
	_, err = e.Match(context.Background(), MatchRequest{JD: "Go"})
	assert.ErrorIs(t, err, embeddings.ErrEmbeddingUnavailable)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for name, kw := range map[string]*keyword.Index{"bleve": f.keyword, "scan": nil} {
		t.Run(name, func(t *testing.T) {
			e := NewEngine(f.store, f.index, failingEmbedder{}, kw, zap.NewNop())

			hits, err := e.Search(ctx, "kafka django", 10)
			require.NoError(t, err)
			require.Len(t, hits, 2)
			for _, h := range hits {
				assert.InDelta(t, 0.5, h.Score, 1e-9)
			}

			hits, err = e.Search(ctx, "Kafka", 10)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, f.ids["ada"], hits[0].CandidateID)
			assert.Equal(t, []string{"kafka"}, hits[0].MatchedTokens)

			hits, err = e.Search(ctx, "the and", 10)
			require.NoError(t, err)
			assert.NotNil(t, hits)
			assert.Empty(t, hits)

			_, err = e.Search(ctx, "  ", 10)
			assert.ErrorIs(t, err, ErrEmptyQuery)
		})
	}
}

func TestSearchUsesProfileTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	c, err := f.store.GetCandidate(ctx, f.ids["alan"])
	require.NoError(t, err)
	assert.Contains(t, profile.Tokens(c), "postgresql")

	e := NewEngine(f.store, f.index, f.embedder, f.keyword, zap.NewNop())
	hits, err := e.Search(ctx, "postgres", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, f.ids["alan"], hits[0].CandidateID)
}

func TestSearchDefaultTopK(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	for i := 0; i < DefaultSearchTopK+5; i++ {
		c := &storage.CandidateRecord{
			ID:       fmt.Sprintf("c%02d", i),
			Name:     fmt.Sprintf("Candidate %d", i),
			Status:   storage.StatusActive,
			Skills:   []string{"go"},
			Revision: 1,
		}
		require.NoError(t, store.InTx(ctx, func(tx storage.Tx) error { return tx.SaveCandidate(ctx, c) }))
	}

	e := NewEngine(store, index.New(zap.NewNop()), failingEmbedder{}, nil, zap.NewNop())
	hits, err := e.Search(ctx, "go", 0)
	require.NoError(t, err)
	assert.Len(t, hits, DefaultSearchTopK)

	hits, err = e.Search(ctx, "go", 3)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestClampTopK(t *testing.T) {
	for in, want := range map[int]int{-1: 10, 0: 10, 5: 5, 100: 100, 1000: 100} {
		assert.Equal(t, want, ClampTopK(in), "top_k %d", in)
	}
}
