// Package app wires the configured components together. The API server and
// talentctl share it.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"talent-match/internal/blob"
	"talent-match/internal/config"
	"talent-match/internal/cv"
	"talent-match/internal/embeddings"
	"talent-match/internal/events"
	"talent-match/internal/identity"
	"talent-match/internal/index"
	"talent-match/internal/ingest"
	"talent-match/internal/keyword"
	"talent-match/internal/llm"
	"talent-match/internal/locks"
	"talent-match/internal/matching"
	"talent-match/internal/profile"
	"talent-match/internal/reindex"
	"talent-match/internal/storage"
)

type App struct {
	Config    *config.Config
	Store     storage.Store
	Index     *index.Index
	Keyword   *keyword.Index
	Embedder  embeddings.Embedder
	Events    events.Publisher
	Pipeline  *ingest.Pipeline
	Engine    *matching.Engine
	Scheduler *reindex.Scheduler

	closers []func() error
	log     *zap.Logger
}

// Build opens every backend named by cfg. On error everything opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *App, err error) {
	a := &App{Config: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := identity.SetDefaultRegion(cfg.Identity.DefaultRegion); err != nil {
		return nil, fmt.Errorf("identity.default-region: %w", err)
	}

	var db *storage.DB
	if cfg.Database.URL != "" {
		log.Info("connecting to database")
		db, err = storage.NewDB(ctx, cfg.Database.URL, log)
		if err != nil {
			return nil, fmt.Errorf("db open: %w", err)
		}
		a.Store = db
	} else {
		log.Warn("database.url not set, candidates are kept in memory")
		a.Store = storage.NewMemoryStore()
	}
	a.closers = append(a.closers, a.Store.Close)

	var opts []index.Option
	switch cfg.Index.Backend {
	case "sqlite":
		p, err := index.OpenSQLite(cfg.Index.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open index: %w", err)
		}
		a.closers = append(a.closers, p.Close)
		opts = append(opts, index.WithPersister(p))
	case "postgres":
		if db == nil {
			return nil, errors.New("index.backend postgres requires database.url")
		}
		p, err := index.NewPostgresPersister(db)
		if err != nil {
			return nil, err
		}
		opts = append(opts, index.WithPersister(p))
	}
	a.Index = index.New(log, opts...)
	if err = a.Index.Load(ctx); err != nil {
		return nil, err
	}

	a.Keyword, err = keyword.Open(cfg.Index.KeywordPath, log)
	if err != nil {
		return nil, fmt.Errorf("open keyword index: %w", err)
	}
	a.closers = append(a.closers, a.Keyword.Close)
	n, err := a.Keyword.Rebuild(ctx, a.Store, profile.Tokens)
	if err != nil {
		return nil, fmt.Errorf("rebuild keyword index: %w", err)
	}
	log.Info("keyword index ready", zap.Int("candidates", n))

	embedder, err := embeddings.NewEmbedder(ctx, cfg.Embedding, log)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}
	a.Embedder = embedder

	var fx cv.FactExtractor
	svc, err := llm.NewService(ctx, cfg.LLM.Provider, cfg.LLM.APIKey, cfg.LLM.Model, log)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		log.Info("LLM extraction disabled, using rule based extraction")
	case err != nil:
		return nil, fmt.Errorf("llm: %w", err)
	default:
		log.Info("LLM extraction enabled", zap.String("provider", svc.Provider()), zap.String("model", svc.Model()))
		fx = svc
	}

	blobs, err := blob.New(ctx, cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}

	a.Events = events.Nop{}
	if cfg.Events.AMQPURL != "" {
		pub, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, log)
		if err != nil {
			return nil, fmt.Errorf("amqp: %w", err)
		}
		a.Events = pub
	}
	a.closers = append(a.closers, a.Events.Close)

	keyed := locks.NewKeyed()
	a.Scheduler = reindex.New(reindex.Deps{
		Store:    a.Store,
		Index:    a.Index,
		Embedder: a.Embedder,
		Locks:    keyed,
		Events:   a.Events,
	}, cfg.Reindex, cfg.Ingest.QueueSize, log)

	a.Pipeline = ingest.New(ingest.Deps{
		Store:     a.Store,
		Extractor: cv.NewExtractor(cv.NewParser(), fx, log),
		Resolver:  identity.NewResolver(log),
		Index:     a.Index,
		Embedder:  a.Embedder,
		Locks:     keyed,
		Blobs:     blobs,
		Keyword:   a.Keyword,
		Events:    a.Events,
		Queue:     a.Scheduler,
	}, cfg.Ingest, log)

	a.Engine = matching.NewEngine(a.Store, a.Index, a.Embedder, a.Keyword, log)
	return a, nil
}

// Close releases backends in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close", zap.Error(err))
		}
	}
	a.closers = nil
}
