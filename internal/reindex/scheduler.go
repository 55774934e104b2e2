// Package reindex brings stale embeddings back in step with canonical records.
package reindex

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"talent-match/internal/config"
	"talent-match/internal/embeddings"
	"talent-match/internal/events"
	"talent-match/internal/index"
	"talent-match/internal/locks"
	"talent-match/internal/logger"
	"talent-match/internal/profile"
	"talent-match/internal/storage"
)

const maxAttempts = 3

var errRevisionMoved = errors.New("candidate kept changing during reindex")

// Selection picks the candidates to reindex: explicit ids, else everything
// updated since a time, else every stale candidate.
type Selection struct {
	IDs          []string   `json:"candidate_ids,omitempty"`
	UpdatedSince *time.Time `json:"updated_since,omitempty"`
}

type Failure struct {
	ID     string `json:"candidate_id"`
	Reason string `json:"reason"`
}

type Result struct {
	Selected  int       `json:"selected"`
	Succeeded int       `json:"succeeded"`
	Unchanged int       `json:"unchanged"`
	Failed    []Failure `json:"failed"`
}

type Deps struct {
	Store    storage.Store
	Index    *index.Index
	Embedder embeddings.Embedder
	Locks    *locks.Keyed
	Events   events.Publisher
	Now      func() time.Time
}

type Scheduler struct {
	Deps
	concurrency int
	queue       chan string
	log         *zap.Logger
}

func New(deps Deps, cfg config.ReindexConfig, queueSize int, log *zap.Logger) *Scheduler {
	if deps.Locks == nil {
		deps.Locks = locks.NewKeyed()
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if queueSize < 1 {
		queueSize = 100
	}
	return &Scheduler{
		Deps:        deps,
		concurrency: cfg.Concurrency,
		queue:       make(chan string, queueSize),
		log:         logger.WithFields(log).Named("reindex"),
	}
}

// ReindexAll reindexes the selection with bounded parallelism. Per candidate
// failures are reported in the result; only cancellation returns an error.
func (s *Scheduler) ReindexAll(ctx context.Context, sel Selection) (*Result, error) {
	ids, err := s.selectIDs(ctx, sel)
	if err != nil {
		return nil, err
	}
	res := &Result{Selected: len(ids), Failed: []Failure{}}
	s.log.Info("reindex started", zap.Int("selected", len(ids)), zap.Int("concurrency", s.concurrency))

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			changed, err := s.reindexOne(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				res.Failed = append(res.Failed, Failure{ID: id, Reason: err.Error()})
			case changed:
				res.Succeeded++
			default:
				res.Unchanged++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.log.Info("reindex finished",
		zap.Int("succeeded", res.Succeeded),
		zap.Int("unchanged", res.Unchanged),
		zap.Int("failed", len(res.Failed)))
	return res, ctx.Err()
}

func (s *Scheduler) selectIDs(ctx context.Context, sel Selection) ([]string, error) {
	if len(sel.IDs) > 0 {
		seen := make(map[string]bool, len(sel.IDs))
		ids := make([]string, 0, len(sel.IDs))
		for _, id := range sel.IDs {
			if id != "" && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		return ids, nil
	}

	f := storage.ListFilter{UpdatedSince: sel.UpdatedSince}
	candidates, _, err := s.Store.ListCandidates(ctx, f, storage.Pagination{})
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	version := s.Embedder.ModelVersion()
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if sel.UpdatedSince != nil || s.needsReindex(c, version) {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

// needsReindex is true for candidates with no vector, a lagging vector or
// one computed by another model.
func (s *Scheduler) needsReindex(c *storage.CandidateRecord, version string) bool {
	if s.Index.IsStale(c.ID, c.UpdatedAt) {
		return true
	}
	st, _ := s.Index.Get(c.ID)
	return st.EmbeddingVersion != version
}

// reindexOne embeds a snapshot outside the lock, then upserts under the
// candidate lock if the record has not moved on in the meantime.
func (s *Scheduler) reindexOne(ctx context.Context, id string) (bool, error) {
	log := s.log.With(logger.Candidate(id)...)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		snap, err := s.Store.GetCandidate(ctx, id)
		if err != nil {
			return false, err
		}
		vec, err := s.Embedder.Embed(ctx, profile.ProfileText(snap))
		if err != nil {
			return false, err
		}

		changed, moved, err := s.apply(context.WithoutCancel(ctx), snap, vec)
		if moved {
			log.Debug("candidate changed, retrying", zap.Int("attempt", attempt))
			continue
		}
		return changed, err
	}
	return false, fmt.Errorf("%w: %s", errRevisionMoved, id)
}

func (s *Scheduler) apply(ctx context.Context, snap *storage.CandidateRecord, vec []float32) (changed, moved bool, err error) {
	unlock := s.Locks.Lock(locks.CandidateKey(snap.ID))
	defer unlock()

	cur, err := s.Store.GetCandidate(ctx, snap.ID)
	if err != nil {
		return false, false, err
	}
	if cur.Revision != snap.Revision {
		return false, true, nil
	}

	prev, _ := s.Index.Get(cur.ID)
	version := s.Embedder.ModelVersion()
	changed, err = s.Index.Upsert(ctx, cur.ID, vec, version, index.MetadataFor(cur), cur.UpdatedAt)
	if err != nil || !changed {
		return false, false, err
	}

	entry := storage.AuditEntry{
		ID:         uuid.NewString(),
		EntityType: "candidate",
		EntityID:   cur.ID,
		Action:     storage.ActionReindex,
		Changes: map[string]any{
			"embedding_version":  version,
			"previous_version":   prev.EmbeddingVersion,
			"candidate_revision": cur.Revision,
		},
		Actor:     "reindex",
		CreatedAt: s.Now().UTC(),
	}
	if err := s.Store.InTx(ctx, func(tx storage.Tx) error { return tx.AppendAudit(ctx, entry) }); err != nil {
		return true, false, fmt.Errorf("audit reindex %s: %w", cur.ID, err)
	}
	if err := s.Events.Publish(ctx, entry); err != nil {
		s.log.Warn("audit event not published", zap.String(logger.FieldCandidate, cur.ID), zap.Error(err))
	}
	return true, false, nil
}

// Enqueue schedules a background reindex without blocking the caller.
func (s *Scheduler) Enqueue(id string) bool {
	select {
	case s.queue <- id:
		return true
	default:
		s.log.Warn("Queue full! Dropping reindex job", logger.Candidate(id)...)
		return false
	}
}

// Run drains the queue until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("reindex worker started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info("reindex worker stopped")
			return
		case id := <-s.queue:
			start := time.Now()
			changed, err := s.reindexOne(ctx, id)
			if err != nil {
				s.log.Error("background reindex failed", zap.String(logger.FieldCandidate, id), zap.Error(err))
				continue
			}
			s.log.Debug("background reindex done",
				zap.String(logger.FieldCandidate, id),
				zap.Bool("changed", changed),
				zap.Duration("took", time.Since(start)))
		}
	}
}

// Pending is the number of queued jobs.
func (s *Scheduler) Pending() int {
	return len(s.queue)
}
