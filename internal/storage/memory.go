package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps canonical records in process. Transactions buffer their
// writes and apply them atomically at commit.
type MemoryStore struct {
	mu           sync.RWMutex
	candidates   map[string]*CandidateRecord
	fingerprints map[string]string
	keys         map[IdentityKey]map[string]struct{}
	audit        []AuditEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		candidates:   make(map[string]*CandidateRecord),
		fingerprints: make(map[string]string),
		keys:         make(map[IdentityKey]map[string]struct{}),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) GetCandidate(ctx context.Context, id string) (*CandidateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.candidates[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.Clone(), nil
}

func (s *MemoryStore) FindByFingerprint(ctx context.Context, fingerprint string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fingerprints[fingerprint], nil
}

func (s *MemoryStore) FindByIdentityKey(ctx context.Context, kind, value string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idsForKey(IdentityKey{Kind: kind, Value: value}), nil
}

func (s *MemoryStore) idsForKey(k IdentityKey) []string {
	set := s.keys[k]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *MemoryStore) ListCandidates(ctx context.Context, f ListFilter, p Pagination) ([]*CandidateRecord, int, error) {
	s.mu.RLock()
	var out []*CandidateRecord
	for _, c := range s.candidates {
		if f.Matches(c) {
			out = append(out, c.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, p), len(out), nil
}

func (s *MemoryStore) ListAudit(ctx context.Context, entityID string) ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AuditEntry
	for _, e := range s.audit {
		if entityID == "" || e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st Stats
	for _, c := range s.candidates {
		st.TotalCandidates++
		st.TotalResumes += len(c.Resumes)
		if c.Status == StatusActive {
			st.ActiveCandidates++
		}
	}
	return st, nil
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{
		store:   s,
		saved:   make(map[string]*CandidateRecord),
		deleted: make(map[string]bool),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range tx.saved {
		var current int64
		if stored, ok := s.candidates[id]; ok {
			current = stored.Revision
		}
		if c.Revision != current+1 {
			return fmt.Errorf("%w: %s at revision %d, got %d", ErrConflict, id, current, c.Revision)
		}
	}
	for id := range tx.deleted {
		if _, ok := s.candidates[id]; !ok {
			return ErrNotFound
		}
	}
	for _, id := range tx.order {
		if tx.deleted[id] {
			s.unindex(id)
			delete(s.candidates, id)
			continue
		}
		c := tx.saved[id]
		s.unindex(id)
		s.candidates[id] = c
		s.index(c)
	}
	s.audit = append(s.audit, tx.audit...)
	return nil
}

func (s *MemoryStore) index(c *CandidateRecord) {
	for _, r := range c.Resumes {
		s.fingerprints[r.Fingerprint] = c.ID
	}
	for _, k := range c.IdentityKeys {
		set, ok := s.keys[k]
		if !ok {
			set = make(map[string]struct{})
			s.keys[k] = set
		}
		set[c.ID] = struct{}{}
	}
}

func (s *MemoryStore) unindex(id string) {
	old, ok := s.candidates[id]
	if !ok {
		return
	}
	for _, r := range old.Resumes {
		if s.fingerprints[r.Fingerprint] == id {
			delete(s.fingerprints, r.Fingerprint)
		}
	}
	for _, k := range old.IdentityKeys {
		if set, ok := s.keys[k]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(s.keys, k)
			}
		}
	}
}

type memTx struct {
	store   *MemoryStore
	saved   map[string]*CandidateRecord
	deleted map[string]bool
	order   []string
	audit   []AuditEntry
}

func (tx *memTx) touch(id string) {
	for _, seen := range tx.order {
		if seen == id {
			return
		}
	}
	tx.order = append(tx.order, id)
}

func (tx *memTx) GetCandidate(ctx context.Context, id string) (*CandidateRecord, error) {
	if tx.deleted[id] {
		return nil, ErrNotFound
	}
	if c, ok := tx.saved[id]; ok {
		return c.Clone(), nil
	}
	return tx.store.GetCandidate(ctx, id)
}

func (tx *memTx) FindByFingerprint(ctx context.Context, fingerprint string) (string, error) {
	for id, c := range tx.saved {
		if c.HasFingerprint(fingerprint) {
			return id, nil
		}
	}
	id, err := tx.store.FindByFingerprint(ctx, fingerprint)
	if err != nil || id == "" {
		return "", err
	}
	if tx.deleted[id] {
		return "", nil
	}
	return id, nil
}

func (tx *memTx) FindByIdentityKey(ctx context.Context, kind, value string) ([]string, error) {
	ids, err := tx.store.FindByIdentityKey(ctx, kind, value)
	if err != nil {
		return nil, err
	}
	k := IdentityKey{Kind: kind, Value: value}
	seen := make(map[string]bool)
	var out []string
	for _, id := range ids {
		if tx.deleted[id] {
			continue
		}
		if c, ok := tx.saved[id]; ok && !hasKey(c, k) {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	for id, c := range tx.saved {
		if !seen[id] && hasKey(c, k) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func hasKey(c *CandidateRecord, k IdentityKey) bool {
	for _, have := range c.IdentityKeys {
		if have == k {
			return true
		}
	}
	return false
}

func (tx *memTx) SaveCandidate(ctx context.Context, c *CandidateRecord) error {
	if c.ID == "" {
		return fmt.Errorf("save candidate: empty id")
	}
	delete(tx.deleted, c.ID)
	tx.saved[c.ID] = c.Clone()
	tx.touch(c.ID)
	return nil
}

func (tx *memTx) DeleteCandidate(ctx context.Context, id string) error {
	if _, err := tx.GetCandidate(ctx, id); err != nil {
		return err
	}
	delete(tx.saved, id)
	tx.deleted[id] = true
	tx.touch(id)
	return nil
}

func (tx *memTx) AppendAudit(ctx context.Context, e AuditEntry) error {
	tx.audit = append(tx.audit, e)
	return nil
}
