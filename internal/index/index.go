// Package index keeps one embedding per candidate plus the filter metadata
// needed to answer match queries without touching the canonical store.
package index

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"talent-match/internal/embeddings"
	"talent-match/internal/storage"
)

// Metadata mirrors the filterable fields of the canonical record.
type Metadata struct {
	Status             storage.CandidateStatus `json:"status"`
	Location           string                  `json:"location,omitempty"`
	YearsExperience    float64                 `json:"years_experience"`
	Skills             []string                `json:"skills,omitempty"`
	EducationLevel     string                  `json:"education_level,omitempty"`
	CandidateUpdatedAt time.Time               `json:"candidate_updated_at"`
}

// MetadataFor derives index metadata from a candidate record.
func MetadataFor(c *storage.CandidateRecord) Metadata {
	return Metadata{
		Status:             c.Status,
		Location:           c.Location,
		YearsExperience:    c.YearsExperience,
		Skills:             append([]string(nil), c.Skills...),
		EducationLevel:     c.EducationLevel,
		CandidateUpdatedAt: c.UpdatedAt,
	}
}

func (m Metadata) equal(o Metadata) bool {
	return m.Status == o.Status &&
		m.Location == o.Location &&
		m.YearsExperience == o.YearsExperience &&
		slices.Equal(m.Skills, o.Skills) &&
		m.EducationLevel == o.EducationLevel &&
		m.CandidateUpdatedAt.Truncate(time.Microsecond).Equal(o.CandidateUpdatedAt.Truncate(time.Microsecond))
}

// State is the index entry of one candidate. An entry without an embedding
// only carries metadata and is never returned by Query.
type State struct {
	CandidateID      string
	Embedding        []float32
	EmbeddingVersion string
	UpdatedAt        time.Time
	SourceUpdatedAt  time.Time
	Metadata         Metadata
}

func (s *State) clone() *State {
	out := *s
	out.Embedding = append([]float32(nil), s.Embedding...)
	out.Metadata.Skills = append([]string(nil), s.Metadata.Skills...)
	return &out
}

// Filters restrict a query. Zero values match everything. Location is an
// exact match ignoring case and surrounding space.
type Filters struct {
	Status            storage.CandidateStatus `json:"status,omitempty"`
	Location          string                  `json:"location,omitempty"`
	MinYears          *float64                `json:"min_years,omitempty"`
	MaxYears          *float64                `json:"max_years,omitempty"`
	MinEducationLevel string                  `json:"min_education_level,omitempty"`
	RequiredSkills    []string                `json:"required_skills,omitempty"`
	IDs               []string                `json:"ids,omitempty"`
}

// Matches reports whether metadata satisfies every filter.
func (f Filters) Matches(id string, m Metadata) bool {
	if f.Status != "" && m.Status != f.Status {
		return false
	}
	if loc := strings.TrimSpace(f.Location); loc != "" && !strings.EqualFold(strings.TrimSpace(m.Location), loc) {
		return false
	}
	if f.MinYears != nil && m.YearsExperience < *f.MinYears {
		return false
	}
	if f.MaxYears != nil && m.YearsExperience > *f.MaxYears {
		return false
	}
	if f.MinEducationLevel != "" && storage.EducationRank(m.EducationLevel) < storage.EducationRank(f.MinEducationLevel) {
		return false
	}
	for _, s := range f.RequiredSkills {
		if !slices.Contains(m.Skills, s) {
			return false
		}
	}
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, id) {
		return false
	}
	return true
}

// Hit is one query result.
type Hit struct {
	CandidateID      string
	Score            float32
	EmbeddingVersion string
	UpdatedAt        time.Time
	Metadata         Metadata
}

// Persister stores index entries outside the process.
type Persister interface {
	Save(ctx context.Context, s State) error
	Delete(ctx context.Context, candidateID string) error
	LoadAll(ctx context.Context) ([]State, error)
}

// Index is the in-memory embedding index. All reads are served from memory;
// writes go through the persister first.
type Index struct {
	mu        sync.RWMutex
	entries   map[string]*State
	persister Persister
	now       func() time.Time
	log       *zap.Logger
}

type Option func(*Index)

// WithPersister makes writes durable.
func WithPersister(p Persister) Option {
	return func(i *Index) { i.persister = p }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(i *Index) { i.now = now }
}

func New(log *zap.Logger, opts ...Option) *Index {
	if log == nil {
		log = zap.NewNop()
	}
	idx := &Index{
		entries: make(map[string]*State),
		now:     time.Now,
		log:     log.Named("index"),
	}
	for _, o := range opts {
		o(idx)
	}
	return idx
}

// Load warms the index from the persister.
func (i *Index) Load(ctx context.Context) error {
	if i.persister == nil {
		return nil
	}
	states, err := i.persister.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, s := range states {
		s := s
		i.entries[s.CandidateID] = &s
	}
	i.log.Info("index loaded", zap.Int("entries", len(states)))
	return nil
}

// Upsert stores the embedding of a candidate computed from the record state
// at sourceUpdatedAt. An identical vector, version and metadata on an entry
// that is already fresh is a no-op and reports changed=false.
func (i *Index) Upsert(ctx context.Context, id string, vec []float32, version string, meta Metadata, sourceUpdatedAt time.Time) (bool, error) {
	if len(vec) == 0 {
		return false, fmt.Errorf("upsert %s: empty embedding", id)
	}
	meta.Skills = append([]string(nil), meta.Skills...)
	i.mu.Lock()
	defer i.mu.Unlock()

	if cur, ok := i.entries[id]; ok &&
		cur.EmbeddingVersion == version &&
		embeddings.Equal(cur.Embedding, vec) &&
		cur.Metadata.equal(meta) &&
		!cur.SourceUpdatedAt.Before(sourceUpdatedAt) {
		return false, nil
	}

	updated := i.now().UTC()
	if sourceUpdatedAt.After(updated) {
		updated = sourceUpdatedAt
	}
	next := &State{
		CandidateID:      id,
		Embedding:        append([]float32(nil), vec...),
		EmbeddingVersion: version,
		UpdatedAt:        updated,
		SourceUpdatedAt:  sourceUpdatedAt,
		Metadata:         meta,
	}
	if err := i.persist(ctx, next); err != nil {
		return false, err
	}
	i.entries[id] = next
	return true, nil
}

// UpdateMetadata replaces the filter metadata while leaving the vector as is.
// Unknown candidates get a metadata only entry.
func (i *Index) UpdateMetadata(ctx context.Context, id string, meta Metadata) error {
	meta.Skills = append([]string(nil), meta.Skills...)
	i.mu.Lock()
	defer i.mu.Unlock()

	next := &State{CandidateID: id, Metadata: meta}
	if cur, ok := i.entries[id]; ok {
		if cur.Metadata.equal(meta) {
			return nil
		}
		next = cur.clone()
		next.Metadata = meta
	}
	if err := i.persist(ctx, next); err != nil {
		return err
	}
	i.entries[id] = next
	return nil
}

func (i *Index) persist(ctx context.Context, s *State) error {
	if i.persister == nil {
		return nil
	}
	if err := i.persister.Save(ctx, *s); err != nil {
		return fmt.Errorf("persist index entry %s: %w", s.CandidateID, err)
	}
	return nil
}

// Remove drops a candidate. Removing an unknown id is not an error.
func (i *Index) Remove(ctx context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.persister != nil {
		if err := i.persister.Delete(ctx, id); err != nil {
			return fmt.Errorf("remove index entry %s: %w", id, err)
		}
	}
	delete(i.entries, id)
	return nil
}

// Get returns a copy of the entry.
func (i *Index) Get(id string) (State, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	s, ok := i.entries[id]
	if !ok {
		return State{}, false
	}
	return *s.clone(), true
}

// IsStale reports whether the embedding lags the candidate record. Only the
// record version the vector was computed from counts; the wall clock time of
// the write does not.
func (i *Index) IsStale(id string, candidateUpdatedAt time.Time) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	s, ok := i.entries[id]
	return !ok || len(s.Embedding) == 0 || s.SourceUpdatedAt.Before(candidateUpdatedAt)
}

// Count returns the number of entries with an embedding.
func (i *Index) Count() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	n := 0
	for _, s := range i.entries {
		if len(s.Embedding) > 0 {
			n++
		}
	}
	return n
}

// Query returns the topK most similar candidates that pass the filters.
// Ties are broken by candidate updated_at descending, then id ascending.
func (i *Index) Query(ctx context.Context, vec []float32, f Filters, topK int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	i.mu.RLock()
	hits := make([]Hit, 0, len(i.entries))
	mismatched := 0
	for id, s := range i.entries {
		if len(s.Embedding) == 0 {
			continue
		}
		if len(s.Embedding) != len(vec) {
			mismatched++
			continue
		}
		if !f.Matches(id, s.Metadata) {
			continue
		}
		hits = append(hits, Hit{
			CandidateID:      id,
			Score:            embeddings.CosineSimilarity(vec, s.Embedding),
			EmbeddingVersion: s.EmbeddingVersion,
			UpdatedAt:        s.UpdatedAt,
			Metadata:         s.Metadata,
		})
	}
	i.mu.RUnlock()

	if mismatched > 0 {
		i.log.Warn("skipped entries with a different embedding dimension, reindex to include them",
			zap.Int("skipped", mismatched),
			zap.Int("query_dimensions", len(vec)))
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		ua, ub := hits[a].Metadata.CandidateUpdatedAt, hits[b].Metadata.CandidateUpdatedAt
		if !ua.Equal(ub) {
			return ua.After(ub)
		}
		return hits[a].CandidateID < hits[b].CandidateID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}
