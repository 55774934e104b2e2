package storage

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("candidate not found")
	ErrConflict = errors.New("candidate revision conflict")
)

// Reader is the read side shared by stores and their transactions.
type Reader interface {
	GetCandidate(ctx context.Context, id string) (*CandidateRecord, error)
	// FindByFingerprint returns the owning candidate id, or "" when the fingerprint is unknown.
	FindByFingerprint(ctx context.Context, fingerprint string) (string, error)
	FindByIdentityKey(ctx context.Context, kind, value string) ([]string, error)
}

// Tx is a unit of work. Nothing is visible to other readers until InTx returns nil.
type Tx interface {
	Reader
	// SaveCandidate writes the record and all owned children. c.Revision must be
	// exactly one more than the stored revision (1 for a new candidate).
	SaveCandidate(ctx context.Context, c *CandidateRecord) error
	// DeleteCandidate removes the candidate, every owned child collection and its index row.
	DeleteCandidate(ctx context.Context, id string) error
	AppendAudit(ctx context.Context, e AuditEntry) error
}

type Store interface {
	Reader
	InTx(ctx context.Context, fn func(tx Tx) error) error
	ListCandidates(ctx context.Context, f ListFilter, p Pagination) ([]*CandidateRecord, int, error)
	ListAudit(ctx context.Context, entityID string) ([]AuditEntry, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

func paginate[T any](items []T, p Pagination) []T {
	if p.Skip >= len(items) {
		return []T{}
	}
	if p.Skip > 0 {
		items = items[p.Skip:]
	}
	if p.Limit > 0 && p.Limit < len(items) {
		items = items[:p.Limit]
	}
	return items
}
