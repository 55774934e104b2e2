// Package keyword is the bleve index behind keyword search. Each candidate is
// one document holding its canonical tokens, so recall never depends on the
// embedding provider.
package keyword

import (
	"context"
	"errors"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"talent-match/internal/storage"
)

// Index wraps a Bleve index of candidate tokens.
type Index struct {
	index bleve.Index
	log   *zap.Logger
}

// Document is what gets indexed for one candidate.
type Document struct {
	Tokens []string `json:"tokens"`
	Status string   `json:"status"`
}

// Hit is one recalled candidate.
type Hit struct {
	CandidateID string
	Score       float64
}

// Open opens or creates a Bleve index at path. An empty path keeps it in memory.
func Open(path string, log *zap.Logger) (*Index, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("keyword")

	if path == "" {
		idx, err := bleve.NewMemOnly(buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		return &Index{index: idx, log: log}, nil
	}

	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return &Index{index: idx, log: log}, nil
}

// buildIndexMapping indexes tokens verbatim; they are normalized before indexing.
func buildIndexMapping() mapping.IndexMapping {
	tokenField := bleve.NewTextFieldMapping()
	tokenField.Analyzer = keyword.Name
	tokenField.Store = false

	statusField := bleve.NewTextFieldMapping()
	statusField.Analyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("tokens", tokenField)
	docMapping.AddFieldMappingsAt("status", statusField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

func (i *Index) Close() error {
	return i.index.Close()
}

// Upsert adds or replaces the document of a candidate.
func (i *Index) Upsert(id string, tokens []string, status storage.CandidateStatus) error {
	return i.index.Index(id, Document{Tokens: tokens, Status: string(status)})
}

func (i *Index) Delete(id string) error {
	return i.index.Delete(id)
}

// Count returns the number of indexed candidates.
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

// Search returns up to limit candidates sharing at least one token with the query.
func (i *Index) Search(ctx context.Context, tokens []string, limit int) ([]Hit, error) {
	if len(tokens) == 0 || limit <= 0 {
		return nil, nil
	}
	terms := make([]query.Query, 0, len(tokens))
	for _, t := range tokens {
		q := bleve.NewTermQuery(t)
		q.SetField("tokens")
		terms = append(terms, q)
	}
	q := bleve.NewDisjunctionQuery(terms...)
	q.SetMin(1)

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{CandidateID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// Lister is the part of the store a rebuild needs.
type Lister interface {
	ListCandidates(ctx context.Context, f storage.ListFilter, p storage.Pagination) ([]*storage.CandidateRecord, int, error)
}

// Rebuild indexes every stored candidate in one batch.
func (i *Index) Rebuild(ctx context.Context, store Lister, tokens func(*storage.CandidateRecord) []string) (int, error) {
	candidates, _, err := store.ListCandidates(ctx, storage.ListFilter{}, storage.Pagination{})
	if err != nil {
		return 0, fmt.Errorf("list candidates: %w", err)
	}

	batch := i.index.NewBatch()
	for _, c := range candidates {
		if err := batch.Index(c.ID, Document{Tokens: tokens(c), Status: string(c.Status)}); err != nil {
			return 0, fmt.Errorf("index %s: %w", c.ID, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("batch: %w", err)
	}
	i.log.Info("keyword index rebuilt", zap.Int("candidates", len(candidates)))
	return len(candidates), nil
}
