// Package ingest turns uploaded resumes into canonical candidate records.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"talent-match/internal/blob"
	"talent-match/internal/config"
	"talent-match/internal/cv"
	"talent-match/internal/embeddings"
	"talent-match/internal/events"
	"talent-match/internal/identity"
	"talent-match/internal/index"
	"talent-match/internal/keyword"
	"talent-match/internal/locks"
	"talent-match/internal/logger"
	"talent-match/internal/profile"
	"talent-match/internal/storage"
)

// Resume sources.
const (
	SourceUpload = "upload"
	SourceImport = "import"
	SourceAPI    = "api"
)

// Index modes.
const (
	ModeSync  = "sync"
	ModeAsync = "async"
)

type Document struct {
	Filename string
	FileKind string
	Data     []byte
	Source   string
}

type Result struct {
	CandidateID        string              `json:"candidate_id"`
	ResumeID           string              `json:"resume_id"`
	WasNewCandidate    bool                `json:"was_new_candidate"`
	WasDuplicateResume bool                `json:"was_duplicate_resume"`
	Rule               identity.Rule       `json:"rule,omitempty"`
	Confidence         identity.Confidence `json:"confidence"`
	AmbiguousWith      []string            `json:"ambiguous_with,omitempty"`
	Indexed            bool                `json:"indexed"`
}

// Enqueuer schedules a background reindex of one candidate. It must not block.
type Enqueuer interface {
	Enqueue(id string) bool
}

// Deps are the collaborators of a Pipeline. Blobs, Keyword, Events and Queue are optional.
type Deps struct {
	Store     storage.Store
	Extractor *cv.Extractor
	Resolver  *identity.Resolver
	Index     *index.Index
	Embedder  embeddings.Embedder
	Locks     *locks.Keyed
	Blobs     blob.Store
	Keyword   *keyword.Index
	Events    events.Publisher
	Queue     Enqueuer
	Now       func() time.Time
}

type Pipeline struct {
	Deps
	asyncIndex      bool
	maxAttempts     int
	rejectAmbiguous bool
	log             *zap.Logger
}

func New(deps Deps, cfg config.IngestConfig, log *zap.Logger) *Pipeline {
	if deps.Extractor == nil {
		deps.Extractor = cv.NewExtractor(nil, nil, log)
	}
	if deps.Resolver == nil {
		deps.Resolver = identity.NewResolver(log)
	}
	if deps.Locks == nil {
		deps.Locks = locks.NewKeyed()
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 3
	}
	return &Pipeline{
		Deps:            deps,
		asyncIndex:      cfg.IndexMode == ModeAsync,
		maxAttempts:     attempts,
		rejectAmbiguous: cfg.IdentityAmbiguity == "reject",
		log:             logger.WithFields(log).Named("ingest"),
	}
}

// call carries the per document state shared by all attempts.
type call struct {
	doc   Document
	facts *cv.Facts
	uri   string
}

// plan is the outcome of one optimistic pass: what would be committed.
type plan struct {
	res          identity.Resolution
	baseRevision int64
	isNew        bool
	duplicate    bool
	resume       storage.ResumeRef
	merged       *storage.CandidateRecord
	vec          []float32
	version      string
}

var errMoved = errors.New("candidate changed during ingest")

// Ingest extracts, resolves, merges, embeds and commits one resume.
func (p *Pipeline) Ingest(ctx context.Context, doc Document) (*Result, error) {
	if doc.Source == "" {
		doc.Source = SourceUpload
	}
	if doc.FileKind == "" {
		doc.FileKind = cv.KindFromFilename(doc.Filename)
	}

	facts, err := p.Extractor.Extract(ctx, doc.Filename, doc.Data, doc.FileKind)
	if err != nil {
		return nil, err
	}
	c := &call{doc: doc, facts: facts}
	log := p.log.With(zap.String("filename", doc.Filename), zap.String("fingerprint", logger.Truncate(facts.Fingerprint, 12)))

	for attempt := 1; ; attempt++ {
		final := attempt >= p.maxAttempts

		var pl *plan
		var snapshot identity.Resolution
		if final {
			snapshot, err = p.resolve(ctx, c)
		} else {
			pl, err = p.prepare(ctx, c)
			if pl != nil {
				snapshot = pl.res
			}
		}
		if errors.Is(err, errMoved) && !final {
			log.Debug("retrying", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, err
		}
		if pl != nil && pl.duplicate {
			return p.duplicateResult(pl), nil
		}

		unlock := p.Locks.Lock(p.lockKeys(facts, snapshot)...)
		if final {
			pl, err = p.prepare(ctx, c)
		} else {
			err = p.validate(ctx, c, pl)
		}
		if errors.Is(err, errMoved) && !final {
			unlock()
			log.Debug("retrying", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if err != nil {
			unlock()
			return nil, err
		}
		if pl.duplicate {
			unlock()
			return p.duplicateResult(pl), nil
		}

		res, err := p.commit(ctx, c, pl)
		unlock()
		if err != nil {
			return nil, err
		}
		log.Info("ingested",
			zap.String(logger.FieldCandidate, res.CandidateID),
			zap.String(logger.FieldResume, res.ResumeID),
			zap.Bool("new", res.WasNewCandidate),
			zap.String("rule", string(res.Rule)),
			zap.Int("attempt", attempt))
		return res, nil
	}
}

func (p *Pipeline) resolve(ctx context.Context, c *call) (identity.Resolution, error) {
	res, err := p.Resolver.Resolve(ctx, p.Store, c.facts)
	if err != nil {
		return res, err
	}
	if len(res.Ambiguous) > 0 && p.rejectAmbiguous {
		return res, fmt.Errorf("%w: %s matches candidates %s by %s",
			identity.ErrAmbiguousIdentity, c.doc.Filename, strings.Join(res.Ambiguous, ", "), res.Rule)
	}
	return res, nil
}

// prepare resolves against the current store state and builds the merged record.
func (p *Pipeline) prepare(ctx context.Context, c *call) (*plan, error) {
	res, err := p.resolve(ctx, c)
	if err != nil {
		return nil, err
	}
	pl := &plan{res: res, isNew: !res.Matched()}

	var base *storage.CandidateRecord
	if res.Matched() {
		base, err = p.Store.GetCandidate(ctx, res.CandidateID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s was deleted", errMoved, res.CandidateID)
		}
		if err != nil {
			return nil, fmt.Errorf("load candidate %s: %w", res.CandidateID, err)
		}
		pl.baseRevision = base.Revision
		if ref, ok := base.ResumeByFingerprint(c.facts.Fingerprint); ok {
			pl.duplicate = true
			pl.resume = ref
			pl.merged = base
			return pl, nil
		}
	}

	uri, err := p.storeArtifact(ctx, c)
	if err != nil {
		return nil, err
	}
	now := p.Now()
	pl.resume = storage.ResumeRef{
		ID:          uuid.NewString(),
		Fingerprint: c.facts.Fingerprint,
		Source:      c.doc.Source,
		FileKind:    c.facts.FileKind,
		Filename:    c.facts.Filename,
		URI:         uri,
		SizeBytes:   c.facts.SizeBytes,
		Skills:      c.facts.Skills,
		CreatedAt:   now.UTC(),
	}
	pl.merged = profile.Merge(base, c.facts, pl.resume, now)

	if !p.asyncIndex {
		vec, err := p.Embedder.Embed(ctx, profile.ProfileText(pl.merged))
		if err != nil {
			return nil, fmt.Errorf("embed %s: %w", c.doc.Filename, err)
		}
		pl.vec = vec
		pl.version = p.Embedder.ModelVersion()
	}
	return pl, nil
}

// validate checks under lock that the optimistic plan still applies.
func (p *Pipeline) validate(ctx context.Context, c *call, pl *plan) error {
	cur, err := p.resolve(ctx, c)
	if err != nil {
		return err
	}
	if !cur.Same(pl.res) {
		return fmt.Errorf("%w: resolution moved from %q to %q", errMoved, pl.res.CandidateID, cur.CandidateID)
	}
	if !cur.Matched() {
		return nil
	}
	base, err := p.Store.GetCandidate(ctx, cur.CandidateID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s was deleted", errMoved, cur.CandidateID)
	}
	if err != nil {
		return err
	}
	if base.Revision != pl.baseRevision {
		return fmt.Errorf("%w: %s revision %d, planned on %d", errMoved, base.ID, base.Revision, pl.baseRevision)
	}
	return nil
}

// storeArtifact writes the original file once per ingest call. Keys are
// content addressed so a repeated write is harmless.
func (p *Pipeline) storeArtifact(ctx context.Context, c *call) (string, error) {
	if p.Blobs == nil || c.uri != "" {
		return c.uri, nil
	}
	key := blob.Key(c.facts.Fingerprint, c.facts.FileKind)
	uri, err := p.Blobs.Put(ctx, key, c.doc.Data, blob.ContentType(c.facts.FileKind))
	if err != nil {
		return "", fmt.Errorf("store artifact %s: %w", c.doc.Filename, err)
	}
	c.uri = uri
	return uri, nil
}

func (p *Pipeline) lockKeys(f *cv.Facts, res identity.Resolution) []string {
	keys := []string{locks.FingerprintKey(f.Fingerprint)}
	if res.Matched() {
		keys = append(keys, locks.CandidateKey(res.CandidateID))
	}
	for _, k := range identity.KeysFor(f) {
		keys = append(keys, locks.IdentityKey(k.Kind, k.Value))
	}
	return keys
}

func (p *Pipeline) duplicateResult(pl *plan) *Result {
	p.log.Info("duplicate resume",
		zap.String(logger.FieldCandidate, pl.res.CandidateID),
		zap.String(logger.FieldResume, pl.resume.ID))
	return &Result{
		CandidateID:        pl.res.CandidateID,
		ResumeID:           pl.resume.ID,
		WasDuplicateResume: true,
		Rule:               pl.res.Rule,
		Confidence:         pl.res.Confidence,
		Indexed:            !p.Index.IsStale(pl.res.CandidateID, pl.merged.UpdatedAt),
	}
}

// commit writes the candidate and its audit entry in one transaction, then
// brings the indexes up to date. Callers hold the candidate locks.
func (p *Pipeline) commit(ctx context.Context, c *call, pl *plan) (*Result, error) {
	m := pl.merged
	action := storage.ActionMerge
	if pl.isNew {
		action = storage.ActionCreate
	}
	entry := newAudit(m.ID, action, c.doc.Source, p.Now(), map[string]any{
		"resume_id":   pl.resume.ID,
		"fingerprint": pl.resume.Fingerprint,
		"filename":    pl.resume.Filename,
		"rule":        string(pl.res.Rule),
		"confidence":  string(pl.res.Confidence),
		"revision":    m.Revision,
	})

	err := p.Store.InTx(ctx, func(tx storage.Tx) error {
		if err := tx.SaveCandidate(ctx, m); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", m.ID, err)
	}

	res := &Result{
		CandidateID:     m.ID,
		ResumeID:        pl.resume.ID,
		WasNewCandidate: pl.isNew,
		Rule:            pl.res.Rule,
		Confidence:      pl.res.Confidence,
		AmbiguousWith:   pl.res.Ambiguous,
	}
	res.Indexed = p.syncIndex(ctx, m, pl)
	p.afterCommit(ctx, m, entry)
	return res, nil
}

// syncIndex updates the embedding index after a commit. The record is already
// durable; a failure here leaves the candidate stale for the reindex worker.
func (p *Pipeline) syncIndex(ctx context.Context, m *storage.CandidateRecord, pl *plan) bool {
	meta := index.MetadataFor(m)
	if len(pl.vec) > 0 {
		if _, err := p.Index.Upsert(ctx, m.ID, pl.vec, pl.version, meta, m.UpdatedAt); err != nil {
			p.log.Error("index upsert failed", zap.String(logger.FieldCandidate, m.ID), zap.Error(err))
			p.enqueue(m.ID)
			return false
		}
		return true
	}
	if err := p.Index.UpdateMetadata(ctx, m.ID, meta); err != nil {
		p.log.Error("index metadata update failed", zap.String(logger.FieldCandidate, m.ID), zap.Error(err))
	}
	p.enqueue(m.ID)
	return false
}

func (p *Pipeline) enqueue(id string) {
	if p.Queue == nil {
		return
	}
	p.Queue.Enqueue(id)
}

// afterCommit refreshes the keyword index and publishes the audit event.
func (p *Pipeline) afterCommit(ctx context.Context, m *storage.CandidateRecord, entry storage.AuditEntry) {
	if p.Keyword != nil {
		if err := p.Keyword.Upsert(m.ID, profile.Tokens(m), m.Status); err != nil {
			p.log.Warn("keyword index update failed", zap.String(logger.FieldCandidate, m.ID), zap.Error(err))
		}
	}
	p.publish(ctx, entry)
}

func (p *Pipeline) publish(ctx context.Context, entry storage.AuditEntry) {
	if err := p.Events.Publish(ctx, entry); err != nil {
		p.log.Warn("audit event not published",
			zap.String("action", entry.Action),
			zap.String(logger.FieldCandidate, entry.EntityID),
			zap.Error(err))
	}
}

func newAudit(candidateID, action, actor string, now time.Time, changes map[string]any) storage.AuditEntry {
	return storage.AuditEntry{
		ID:         uuid.NewString(),
		EntityType: "candidate",
		EntityID:   candidateID,
		Action:     action,
		Changes:    changes,
		Actor:      actor,
		CreatedAt:  now.UTC(),
	}
}
