package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCandidate(id string, rev int64, updated time.Time) *CandidateRecord {
	return &CandidateRecord{
		ID:           id,
		Name:         "Jane Doe",
		Status:       StatusActive,
		Revision:     rev,
		CreatedAt:    updated,
		UpdatedAt:    updated,
		IdentityKeys: []IdentityKey{{Kind: KeyEmail, Value: "jane@example.com"}},
		Resumes:      []ResumeRef{{ID: "r-" + id, Fingerprint: "fp-" + id, Source: "upload"}},
	}
}

func TestMemoryStoreSaveAndLookup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	err := s.InTx(ctx, func(tx Tx) error {
		if err := tx.SaveCandidate(ctx, newCandidate("c1", 1, now)); err != nil {
			return err
		}
		// Writes are visible inside the transaction before commit.
		id, err := tx.FindByFingerprint(ctx, "fp-c1")
		require.NoError(t, err)
		assert.Equal(t, "c1", id)

		outside, err := s.FindByFingerprint(ctx, "fp-c1")
		require.NoError(t, err)
		assert.Empty(t, outside)

		return tx.AppendAudit(ctx, AuditEntry{ID: "a1", EntityType: "candidate", EntityID: "c1", Action: ActionCreate})
	})
	require.NoError(t, err)

	got, err := s.GetCandidate(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", got.Name)

	ids, err := s.FindByIdentityKey(ctx, KeyEmail, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ids)

	audit, err := s.ListAudit(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, audit, 1)
}

func TestMemoryStoreRollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx Tx) error {
		require.NoError(t, tx.SaveCandidate(ctx, newCandidate("c1", 1, time.Now())))
		require.NoError(t, tx.AppendAudit(ctx, AuditEntry{ID: "a1", EntityID: "c1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetCandidate(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
	audit, _ := s.ListAudit(ctx, "")
	assert.Empty(t, audit)
}

func TestMemoryStoreRevisionConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		return tx.SaveCandidate(ctx, newCandidate("c1", 1, now))
	}))

	stale := newCandidate("c1", 1, now)
	err := s.InTx(ctx, func(tx Tx) error { return tx.SaveCandidate(ctx, stale) })
	assert.ErrorIs(t, err, ErrConflict)

	next := newCandidate("c1", 2, now.Add(time.Second))
	assert.NoError(t, s.InTx(ctx, func(tx Tx) error { return tx.SaveCandidate(ctx, next) }))
}

func TestMemoryStoreDeleteKeepsAudit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		return tx.SaveCandidate(ctx, newCandidate("c1", 1, time.Now()))
	}))
	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		if err := tx.AppendAudit(ctx, AuditEntry{ID: "a1", EntityID: "c1", Action: ActionDelete}); err != nil {
			return err
		}
		return tx.DeleteCandidate(ctx, "c1")
	}))

	_, err := s.GetCandidate(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)

	id, err := s.FindByFingerprint(ctx, "fp-c1")
	require.NoError(t, err)
	assert.Empty(t, id)

	ids, err := s.FindByIdentityKey(ctx, KeyEmail, "jane@example.com")
	require.NoError(t, err)
	assert.Empty(t, ids)

	audit, err := s.ListAudit(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, audit, 1)
	assert.Equal(t, ActionDelete, audit[0].Action)

	err = s.InTx(ctx, func(tx Tx) error { return tx.DeleteCandidate(ctx, "c1") })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreListAndStats(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		for i, id := range []string{"a", "b", "c"} {
			c := newCandidate(id, 1, base.Add(time.Duration(i)*time.Hour))
			if id == "b" {
				c.Status = StatusArchived
			}
			if err := tx.SaveCandidate(ctx, c); err != nil {
				return err
			}
		}
		return nil
	}))

	all, total, err := s.ListCandidates(ctx, ListFilter{}, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"c", "b", "a"}, ids(all))

	page, total, err := s.ListCandidates(ctx, ListFilter{}, Pagination{Skip: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"b"}, ids(page))

	since := base.Add(time.Hour)
	active, total, err := s.ListCandidates(ctx, ListFilter{Status: StatusActive, UpdatedSince: &since}, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{"c"}, ids(active))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{TotalCandidates: 3, TotalResumes: 3, ActiveCandidates: 2}, st)
}

func TestMemoryStoreConcurrentTransactions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			_ = s.InTx(ctx, func(tx Tx) error {
				return tx.SaveCandidate(ctx, newCandidate(id, 1, time.Now()))
			})
		}(i)
	}
	wg.Wait()

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, st.TotalCandidates)
}

func ids(cs []*CandidateRecord) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.ID)
	}
	return out
}
