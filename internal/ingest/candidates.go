package ingest

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"talent-match/internal/index"
	"talent-match/internal/locks"
	"talent-match/internal/logger"
	"talent-match/internal/profile"
	"talent-match/internal/storage"
)

var ErrInvalidStatus = errors.New("invalid candidate status")

// Delete removes a candidate with every owned collection. The audit entry is
// written in the same transaction and outlives the candidate.
func (p *Pipeline) Delete(ctx context.Context, id, actor string) error {
	unlock := p.Locks.Lock(locks.CandidateKey(id))
	defer unlock()

	c, err := p.Store.GetCandidate(ctx, id)
	if err != nil {
		return err
	}
	entry := newAudit(id, storage.ActionDelete, actor, p.Now(), map[string]any{
		"name":    c.Name,
		"resumes": len(c.Resumes),
	})
	err = p.Store.InTx(ctx, func(tx storage.Tx) error {
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return err
		}
		return tx.DeleteCandidate(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}

	if err := p.Index.Remove(ctx, id); err != nil {
		p.log.Error("index remove failed", zap.String(logger.FieldCandidate, id), zap.Error(err))
	}
	if p.Keyword != nil {
		if err := p.Keyword.Delete(id); err != nil {
			p.log.Warn("keyword delete failed", zap.String(logger.FieldCandidate, id), zap.Error(err))
		}
	}
	p.publish(ctx, entry)
	p.log.Info("candidate deleted", logger.Candidate(id)...)
	return nil
}

// UpdateStatus archives or reactivates a candidate. Setting the current status is a no-op.
func (p *Pipeline) UpdateStatus(ctx context.Context, id string, status storage.CandidateStatus, actor string) (*storage.CandidateRecord, error) {
	if status != storage.StatusActive && status != storage.StatusArchived {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	unlock := p.Locks.Lock(locks.CandidateKey(id))
	defer unlock()

	c, err := p.Store.GetCandidate(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == status {
		return c, nil
	}

	prev := c.Status
	next := c.Clone()
	next.Status = status
	profile.Touch(next, p.Now())
	entry := newAudit(id, storage.ActionStatus, actor, p.Now(), map[string]any{
		"from":     string(prev),
		"to":       string(status),
		"revision": next.Revision,
	})
	err = p.Store.InTx(ctx, func(tx storage.Tx) error {
		if err := tx.SaveCandidate(ctx, next); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("update status %s: %w", id, err)
	}

	// Status is not part of the profile text, so a fresh vector stays valid.
	meta := index.MetadataFor(next)
	st, ok := p.Index.Get(id)
	if ok && len(st.Embedding) > 0 && !p.Index.IsStale(id, c.UpdatedAt) {
		if _, err := p.Index.Upsert(ctx, id, st.Embedding, st.EmbeddingVersion, meta, next.UpdatedAt); err != nil {
			p.log.Error("index upsert failed", zap.String(logger.FieldCandidate, id), zap.Error(err))
			p.enqueue(id)
		}
	} else {
		if err := p.Index.UpdateMetadata(ctx, id, meta); err != nil {
			p.log.Error("index metadata update failed", zap.String(logger.FieldCandidate, id), zap.Error(err))
		}
		p.enqueue(id)
	}
	p.afterCommit(ctx, next, entry)
	return next, nil
}
