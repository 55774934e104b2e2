// Package matching ranks candidates against job descriptions and keyword queries.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"talent-match/internal/cv"
	"talent-match/internal/embeddings"
	"talent-match/internal/index"
	"talent-match/internal/keyword"
	"talent-match/internal/logger"
	"talent-match/internal/profile"
	"talent-match/internal/storage"
)

const (
	DefaultTopK       = 10
	DefaultSearchTopK = 20
	MaxTopK           = 100
)

var ErrEmptyQuery = errors.New("query is empty")

type MatchRequest struct {
	JD      string        `json:"jd"`
	Filters index.Filters `json:"filters"`
	TopK    int           `json:"top_k"`
	Explain bool          `json:"explain"`
}

// EntryEvidence is the experience or project entry closest to the job description.
type EntryEvidence struct {
	Kind         string  `json:"kind"`
	Organization string  `json:"organization"`
	Title        string  `json:"title,omitempty"`
	Similarity   float64 `json:"similarity"`
}

type Evidence struct {
	MatchedSkills   []string       `json:"matched_skills"`
	BestEntry       *EntryEvidence `json:"best_entry,omitempty"`
	VersionMismatch bool           `json:"version_mismatch"`
	Stale           bool           `json:"stale"`
	IndexUpdatedAt  time.Time      `json:"index_updated_at"`
}

type Match struct {
	CandidateID      string                  `json:"candidate_id"`
	Name             string                  `json:"name"`
	CurrentTitle     string                  `json:"current_title,omitempty"`
	CurrentCompany   string                  `json:"current_company,omitempty"`
	Location         string                  `json:"location,omitempty"`
	YearsExperience  float64                 `json:"years_experience"`
	Status           storage.CandidateStatus `json:"status"`
	Score            float32                 `json:"score"`
	EmbeddingVersion string                  `json:"embedding_version"`
	Evidence         *Evidence               `json:"evidence,omitempty"`
}

type SearchHit struct {
	CandidateID   string                  `json:"candidate_id"`
	Name          string                  `json:"name"`
	CurrentTitle  string                  `json:"current_title,omitempty"`
	Status        storage.CandidateStatus `json:"status"`
	Score         float64                 `json:"score"`
	MatchedTokens []string                `json:"matched_tokens"`
}

// Store is the read side the engine needs.
type Store interface {
	GetCandidate(ctx context.Context, id string) (*storage.CandidateRecord, error)
	ListCandidates(ctx context.Context, f storage.ListFilter, p storage.Pagination) ([]*storage.CandidateRecord, int, error)
}

type Engine struct {
	store    Store
	index    *index.Index
	embedder embeddings.Embedder
	keyword  *keyword.Index
	log      *zap.Logger
}

// NewEngine builds the engine. A nil keyword index makes Search scan the store.
func NewEngine(store Store, idx *index.Index, embedder embeddings.Embedder, kw *keyword.Index, log *zap.Logger) *Engine {
	return &Engine{
		store:    store,
		index:    idx,
		embedder: embedder,
		keyword:  kw,
		log:      logger.WithFields(log).Named("matching"),
	}
}

// ClampTopK applies the default and the upper bound.
func ClampTopK(k int) int {
	if k <= 0 {
		return DefaultTopK
	}
	if k > MaxTopK {
		return MaxTopK
	}
	return k
}

// Match ranks indexed candidates by similarity to the job description.
// The score is the index similarity; evidence never changes the order.
func (e *Engine) Match(ctx context.Context, req MatchRequest) ([]Match, error) {
	jd := strings.TrimSpace(req.JD)
	if jd == "" {
		return nil, ErrEmptyQuery
	}
	topK := ClampTopK(req.TopK)
	filters := req.Filters
	filters.RequiredSkills = cv.NormalizeSkills(filters.RequiredSkills)

	vec, err := e.embedder.Embed(ctx, cv.Normalize(jd))
	if err != nil {
		if !errors.Is(err, embeddings.ErrEmbeddingUnavailable) {
			err = fmt.Errorf("%w: %w", embeddings.ErrEmbeddingUnavailable, err)
		}
		return nil, err
	}
	queryVersion := e.embedder.ModelVersion()

	hits, err := e.index.Query(ctx, vec, filters, topK)
	if err != nil {
		return nil, err
	}

	var jdTokens map[string]bool
	var jdSkills []string
	if req.Explain {
		jdTokens = cv.TokenSet(jd)
		jdSkills = cv.SortedSet(cv.ExtractSkills(jd), cv.Tokens(jd))
	}

	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		c, err := e.store.GetCandidate(ctx, h.CandidateID)
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted after the index scan.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load candidate %s: %w", h.CandidateID, err)
		}
		m := Match{
			CandidateID:      c.ID,
			Name:             c.Name,
			CurrentTitle:     c.CurrentTitle,
			CurrentCompany:   c.CurrentCompany,
			Location:         c.Location,
			YearsExperience:  c.YearsExperience,
			Status:           c.Status,
			Score:            h.Score,
			EmbeddingVersion: h.EmbeddingVersion,
		}
		if req.Explain {
			m.Evidence = &Evidence{
				MatchedSkills:   intersect(c.Skills, jdSkills),
				BestEntry:       bestEntry(c, jdTokens),
				VersionMismatch: h.EmbeddingVersion != queryVersion,
				Stale:           e.index.IsStale(c.ID, c.UpdatedAt),
				IndexUpdatedAt:  h.UpdatedAt,
			}
		}
		out = append(out, m)
	}

	e.log.Debug("match",
		zap.String("jd", logger.Truncate(jd, 60)),
		zap.Int("top_k", topK),
		zap.Int("results", len(out)))
	return out, nil
}

// intersect returns the sorted values present in both lists.
func intersect(have, want []string) []string {
	set := make(map[string]bool, len(want))
	for _, w := range want {
		set[w] = true
	}
	out := []string{}
	for _, h := range have {
		if set[h] {
			out = append(out, h)
		}
	}
	sort.Strings(out)
	return out
}

func bestEntry(c *storage.CandidateRecord, jd map[string]bool) *EntryEvidence {
	var best *EntryEvidence
	consider := func(kind, org, title, description string, skills []string) {
		text := strings.Join(append([]string{org, title, description}, skills...), " ")
		sim := cv.Jaccard(jd, cv.TokenSet(text))
		if sim == 0 || (best != nil && sim <= best.Similarity) {
			return
		}
		best = &EntryEvidence{Kind: kind, Organization: org, Title: title, Similarity: sim}
	}
	for _, x := range c.Experience {
		consider("experience", x.Company, x.Title, x.Description, x.Skills)
	}
	for _, p := range c.Projects {
		consider("project", p.Name, p.Role, p.Description, p.Skills)
	}
	return best
}

// Search ranks candidates by keyword overlap. It never touches the embedding index.
// A query made only of stop words matches nothing.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	tokens := cv.SortedSet(cv.Tokens(query), cv.ExtractSkills(query))
	if len(tokens) == 0 {
		return []SearchHit{}, nil
	}
	if topK <= 0 {
		topK = DefaultSearchTopK
	}
	topK = ClampTopK(topK)

	candidates, err := e.recall(ctx, tokens, topK)
	if err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(candidates))
	updated := make(map[string]time.Time, len(candidates))
	for _, c := range candidates {
		matched := intersect(profile.Tokens(c), tokens)
		if len(matched) == 0 {
			continue
		}
		hits = append(hits, SearchHit{
			CandidateID:   c.ID,
			Name:          c.Name,
			CurrentTitle:  c.CurrentTitle,
			Status:        c.Status,
			Score:         float64(len(matched)) / float64(len(tokens)),
			MatchedTokens: matched,
		})
		updated[c.ID] = c.UpdatedAt
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		ua, ub := updated[hits[a].CandidateID], updated[hits[b].CandidateID]
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

// recall narrows the candidate set through the keyword index when there is one.
func (e *Engine) recall(ctx context.Context, tokens []string, topK int) ([]*storage.CandidateRecord, error) {
	if e.keyword == nil {
		all, _, err := e.store.ListCandidates(ctx, storage.ListFilter{}, storage.Pagination{})
		return all, err
	}

	kh, err := e.keyword.Search(ctx, tokens, topK*5)
	if err != nil {
		return nil, fmt.Errorf("keyword recall: %w", err)
	}
	out := make([]*storage.CandidateRecord, 0, len(kh))
	for _, h := range kh {
		c, err := e.store.GetCandidate(ctx, h.CandidateID)
		if errors.Is(err, storage.ErrNotFound) {
			e.log.Debug("keyword hit without candidate", logger.Candidate(h.CandidateID)...)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
