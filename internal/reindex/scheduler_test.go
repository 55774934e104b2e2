package reindex

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"talent-match/internal/config"
	"talent-match/internal/embeddings"
	"talent-match/internal/events"
	"talent-match/internal/index"
	"talent-match/internal/ingest"
	"talent-match/internal/locks"
	"talent-match/internal/storage"
)

func resume(name, email, company string) []byte {
	return []byte(fmt.Sprintf(`%s
%s | Hamburg

SKILLS
Go, Kafka

EXPERIENCE
Backend Engineer | %s | 2019-01 - present
Streaming pipelines in Go.
`, name, email, company))
}

type failingEmbedder struct{}

func (failingEmbedder) ModelVersion() string { return "hash-v1-64" }
func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("provider down")
}

type fixture struct {
	store     *storage.MemoryStore
	index     *index.Index
	events    *events.Recorder
	scheduler *Scheduler
	ids       []string
}

// newFixture ingests people in async mode so that every candidate starts stale.
func newFixture(t *testing.T, embedder embeddings.Embedder, people ...string) *fixture {
	t.Helper()
	f := &fixture{
		store:  storage.NewMemoryStore(),
		index:  index.New(zap.NewNop()),
		events: &events.Recorder{},
	}
	keyed := locks.NewKeyed()
	f.scheduler = New(Deps{
		Store:    f.store,
		Index:    f.index,
		Embedder: embedder,
		Locks:    keyed,
		Events:   f.events,
	}, config.ReindexConfig{Concurrency: 2}, 10, zap.NewNop())

	p := ingest.New(ingest.Deps{
		Store:    f.store,
		Index:    f.index,
		Embedder: embedder,
		Locks:    keyed,
	}, config.IngestConfig{IndexMode: ingest.ModeAsync, IdentityAmbiguity: "new"}, zap.NewNop())
	for i, name := range people {
		res, err := p.Ingest(context.Background(), ingest.Document{
			Filename: fmt.Sprintf("p%d.txt", i),
			Data:     resume(name, fmt.Sprintf("person%d@example.com", i), fmt.Sprintf("Company %d", i)),
		})
		require.NoError(t, err)
		f.ids = append(f.ids, res.CandidateID)
	}
	return f
}

func TestReindexAllStaleThenUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, embeddings.NewHashEmbedder(64), "Ada Lovelace", "Alan Turing", "Grace Hopper")
	for _, id := range f.ids {
		c, _ := f.store.GetCandidate(ctx, id)
		assert.True(t, f.index.IsStale(id, c.UpdatedAt))
	}

	res, err := f.scheduler.ReindexAll(ctx, Selection{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Selected)
	assert.Equal(t, 3, res.Succeeded)
	assert.Empty(t, res.Failed)
	for _, id := range f.ids {
		c, _ := f.store.GetCandidate(ctx, id)
		assert.False(t, f.index.IsStale(id, c.UpdatedAt))
	}

	again, err := f.scheduler.ReindexAll(ctx, Selection{})
	require.NoError(t, err)
	assert.Zero(t, again.Selected, "nothing is stale anymore")

	explicit, err := f.scheduler.ReindexAll(ctx, Selection{IDs: f.ids})
	require.NoError(t, err)
	assert.Equal(t, 3, explicit.Selected)
	assert.Equal(t, 3, explicit.Unchanged)
	assert.Zero(t, explicit.Succeeded)

	audit, err := f.store.ListAudit(ctx, f.ids[0])
	require.NoError(t, err)
	var reindexed int
	for _, e := range audit {
		if e.Action == storage.ActionReindex {
			reindexed++
		}
	}
	assert.Equal(t, 1, reindexed, "only changed vectors are audited")
	assert.Len(t, f.events.Entries(), 3)
}

func TestReindexUpdatedSince(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, embeddings.NewHashEmbedder(64), "Ada Lovelace", "Alan Turing")

	future := time.Now().Add(time.Hour)
	res, err := f.scheduler.ReindexAll(ctx, Selection{UpdatedSince: &future})
	require.NoError(t, err)
	assert.Zero(t, res.Selected)

	past := time.Now().Add(-time.Hour)
	res, err = f.scheduler.ReindexAll(ctx, Selection{UpdatedSince: &past})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Selected)
	assert.Equal(t, 2, res.Succeeded)
}

func TestReindexFailuresDoNotAbortBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, embeddings.NewHashEmbedder(64), "Ada Lovelace", "Alan Turing")

	res, err := f.scheduler.ReindexAll(ctx, Selection{IDs: []string{f.ids[0], "missing", f.ids[1], "missing"}})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Selected)
	assert.Equal(t, 2, res.Succeeded)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "missing", res.Failed[0].ID)
	assert.Contains(t, res.Failed[0].Reason, "not found")
}

func TestReindexEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, failingEmbedder{}, "Ada Lovelace", "Alan Turing")

	res, err := f.scheduler.ReindexAll(ctx, Selection{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Selected)
	assert.Len(t, res.Failed, 2)
	assert.Contains(t, res.Failed[0].Reason, "provider down")
}

func TestReindexModelChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, embeddings.NewHashEmbedder(64), "Ada Lovelace")
	_, err := f.scheduler.ReindexAll(ctx, Selection{})
	require.NoError(t, err)

	f.scheduler.Embedder = embeddings.NewHashEmbedder(128)
	res, err := f.scheduler.ReindexAll(ctx, Selection{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Selected, "a new model version makes every vector outdated")
	assert.Equal(t, 1, res.Succeeded)

	st, ok := f.index.Get(f.ids[0])
	require.True(t, ok)
	assert.Equal(t, "hash-v1-128", st.EmbeddingVersion)
	assert.Len(t, st.Embedding, 128)
}

func TestReindexCancelled(t *testing.T) {
	f := newFixture(t, embeddings.NewHashEmbedder(64), "Ada Lovelace")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.scheduler.ReindexAll(ctx, Selection{})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Zero(t, res.Succeeded)
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	s := New(Deps{Store: storage.NewMemoryStore(), Index: index.New(nil), Embedder: embeddings.NewHashEmbedder(8)},
		config.ReindexConfig{}, 1, zap.NewNop())
	assert.True(t, s.Enqueue("a"))
	assert.False(t, s.Enqueue("b"))
	assert.Equal(t, 1, s.Pending())
}

func TestRunDrainsQueue(t *testing.T) {
	f := newFixture(t, embeddings.NewHashEmbedder(64), "Ada Lovelace")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.scheduler.Run(ctx)
		close(done)
	}()

	require.True(t, f.scheduler.Enqueue(f.ids[0]))
	c, err := f.store.GetCandidate(context.Background(), f.ids[0])
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return !f.index.IsStale(c.ID, c.UpdatedAt)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
