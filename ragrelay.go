// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ragrelay wires the document store, the indexes, the RAG
// orchestrator, the message router and the stream listener into one Engine.
package ragrelay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/poiesic/ragrelay/ai"
	"github.com/poiesic/ragrelay/config"
	"github.com/poiesic/ragrelay/core"
	"github.com/poiesic/ragrelay/index"
	"github.com/poiesic/ragrelay/ingestion"
	"github.com/poiesic/ragrelay/rag"
	"github.com/poiesic/ragrelay/router"
	"github.com/poiesic/ragrelay/search"
	"github.com/poiesic/ragrelay/server"
	"github.com/poiesic/ragrelay/storage"
	"github.com/poiesic/ragrelay/storage/badger"
	"github.com/poiesic/ragrelay/stream"
	"github.com/poiesic/ragrelay/stream/redis"
)

// stopTimeout bounds how long Close waits for the listener.
const stopTimeout = 30 * time.Second

// Engine owns every long-lived component.
type Engine struct {
	cfg *config.Config

	provider   ai.AIProvider
	backend    *badger.Backend
	documents  *badger.DocumentRepository
	messageLog storage.MessageLog

	catalog      *index.Catalog
	pipeline     *ingestion.Pipeline
	searcher     *search.Searcher
	orchestrator *rag.Orchestrator
	router       *router.Router
	listener     *stream.Listener

	logger *slog.Logger

	// closers run in reverse order on Close.
	closers []func() error
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger     *slog.Logger
	provider   ai.AIProvider
	messageLog storage.MessageLog
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithProvider replaces the provider built from the AI configuration.
// The engine closes it on Close.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithMessageLog replaces the log selected by the stream configuration.
// The engine closes it on Close.
func WithMessageLog(log storage.MessageLog) Option {
	return func(o *options) {
		o.messageLog = log
	}
}

// Open validates cfg and builds the engine in dependency order: provider,
// store, indexes, writer, searcher, orchestrator, router, message log and
// listener. The indexes are rebuilt from the store before Open returns.
// Any failure closes what was already opened.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (_ *Engine, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	e := &Engine{cfg: cfg, logger: o.logger.With("component", "engine")}
	defer func() {
		if err != nil {
			if closeErr := e.closeAll(); closeErr != nil {
				e.logger.Error("cleanup after failed open", "err", closeErr)
			}
		}
	}()

	e.provider = o.provider
	if e.provider == nil {
		e.provider, err = NewProvider(ai.NewConfig(cfg.AIOptions()...))
		if err != nil {
			return nil, err
		}
	}
	e.closers = append(e.closers, e.provider.Close)

	e.backend, err = badger.OpenBackend(cfg.DataDir, cfg.DataDir == "")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	e.closers = append(e.closers, e.backend.Close)

	e.documents, err = badger.NewDocumentRepository(e.backend)
	if err != nil {
		return nil, fmt.Errorf("failed to open document repository: %w", err)
	}
	e.closers = append(e.closers, e.documents.Close)

	vectorOpts := []index.VectorOption{
		index.WithBatchSize(cfg.Index.BatchSize),
		index.WithLogger(o.logger),
	}
	if cfg.Index.PoolSize > 0 {
		vectorOpts = append(vectorOpts, index.WithPoolSize(cfg.Index.PoolSize))
	}
	vectors, err := index.NewVectorIndex(e.provider.Embedder(), vectorOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}
	e.catalog = index.NewCatalog(vectors)
	e.closers = append(e.closers, func() error {
		e.catalog.Close()
		return nil
	})

	e.pipeline, err = ingestion.NewPipeline(e.documents, e.catalog, ingestion.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	count, err := e.pipeline.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load indexes: %w", err)
	}

	e.searcher, err = search.NewSearcher(e.documents, e.catalog, search.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}

	e.orchestrator, err = rag.NewOrchestrator(e.searcher, e.provider.Completer(),
		rag.WithLogger(o.logger),
		rag.WithSystemPrompt(cfg.SystemPrompt("rag")),
		rag.WithGeneration(cfg.AI.Temperature, cfg.AI.MaxTokens),
		rag.WithRetrieval(cfg.RAG.Limit, cfg.RAG.MinScore, cfg.RAG.Weight),
	)
	if err != nil {
		return nil, err
	}

	e.router, err = router.New(e.pipeline, e.searcher, e.orchestrator, e.provider.Completer(),
		router.WithLogger(o.logger),
		router.WithSystemPrompt(cfg.SystemPrompt("default")),
		router.WithGeneration(cfg.AI.Temperature, cfg.AI.MaxTokens),
		router.WithComponents(map[string]string{
			"embedding_provider":  cfg.AI.EmbeddingProvider,
			"completion_provider": cfg.AI.CompletionProvider,
			"stream_backend":      cfg.Stream.Backend,
		}),
	)
	if err != nil {
		return nil, err
	}

	e.messageLog = o.messageLog
	if e.messageLog == nil && cfg.Stream.Enabled {
		e.messageLog, err = openMessageLog(ctx, cfg, e.backend)
		if err != nil {
			return nil, err
		}
	}
	if e.messageLog != nil {
		e.closers = append(e.closers, e.messageLog.Close)
	}

	if cfg.Stream.Enabled {
		e.listener, err = stream.NewListener(e.messageLog, e.router,
			stream.WithLogger(o.logger),
			stream.WithChannels(cfg.Stream.Channels...),
			stream.WithGroup(cfg.Stream.Group),
			stream.WithConsumer(cfg.Stream.Consumer),
			stream.WithRead(cfg.Stream.ReadCount, cfg.Stream.Block),
			stream.WithPollInterval(cfg.Stream.PollInterval),
		)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() error {
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			return e.listener.Stop(stopCtx)
		})
	}

	e.logger.Info("engine opened", "documents", count, "data_dir", cfg.DataDir, "stream", cfg.Stream.Enabled)
	return e, nil
}

func openMessageLog(ctx context.Context, cfg *config.Config, backend *badger.Backend) (storage.MessageLog, error) {
	switch cfg.Stream.Backend {
	case config.BackendRedis:
		log, err := redis.Open(ctx, cfg.Stream.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open redis message log: %w", err)
		}
		return log, nil
	default:
		return badger.NewMessageLog(backend), nil
	}
}

// Start launches the stream listener. It is a no-op when streaming is disabled.
func (e *Engine) Start(ctx context.Context) error {
	if e.listener == nil {
		return nil
	}
	return e.listener.Start(ctx)
}

// NewServer builds the HTTP server configured for this engine.
func (e *Engine) NewServer(opts ...server.Option) (*server.Server, error) {
	base := []server.Option{
		server.WithLogger(e.logger),
		server.WithAddr(e.cfg.Server.Addr),
		server.WithAPIKey(e.cfg.Server.APIKey),
		server.WithRateLimit(e.cfg.Server.RateLimit, e.cfg.Server.RateBurst),
		server.WithTimeouts(e.cfg.Server.ReadTimeout, e.cfg.Server.WriteTimeout),
	}
	if e.cfg.Stream.Enabled {
		base = append(base, server.WithChannels(e.cfg.Stream.Channels...))
	}
	return server.New(e.router, append(base, opts...)...)
}

// SaveSnapshot writes the vector index to path.
func (e *Engine) SaveSnapshot(path string) error {
	return e.catalog.View(func() error {
		return e.catalog.Vectors.Save(path)
	})
}

// SnapshotReport compares a vector snapshot with the document store.
type SnapshotReport struct {
	Vectors   int
	Dimension int
	Missing   []core.ID // stored documents absent from the snapshot
	Stale     []core.ID // snapshot entries no longer stored
}

// Consistent reports whether the snapshot covers exactly the stored documents.
func (r *SnapshotReport) Consistent() bool {
	return len(r.Missing) == 0 && len(r.Stale) == 0
}

// CheckSnapshot loads the snapshot at path into a detached vector index and
// compares its ids with the store. The live indexes are not touched.
func (e *Engine) CheckSnapshot(ctx context.Context, path string) (*SnapshotReport, error) {
	vectors, err := index.NewVectorIndex(e.provider.Embedder(), index.WithPoolSize(1), index.WithLogger(e.logger))
	if err != nil {
		return nil, err
	}
	defer vectors.Release()

	if err := vectors.Load(path); err != nil {
		return nil, err
	}
	docs, err := e.documents.AllDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	report := &SnapshotReport{Vectors: vectors.Count(), Dimension: vectors.Dimension()}
	stored := make(map[core.ID]struct{}, len(docs))
	for _, doc := range docs {
		stored[doc.ID] = struct{}{}
		if !vectors.Contains(doc.ID) {
			report.Missing = append(report.Missing, doc.ID)
		}
	}
	slices.SortFunc(report.Missing, core.CompareIDs)
	for _, id := range vectors.IDs() {
		if _, ok := stored[id]; !ok {
			report.Stale = append(report.Stale, id)
		}
	}
	return report, nil
}

// Close stops the listener, saves the configured snapshot and closes every
// component in reverse order of opening.
func (e *Engine) Close() error {
	var errs []error
	if path := e.cfg.Index.SnapshotPath; path != "" {
		if err := e.SaveSnapshot(path); err != nil {
			errs = append(errs, fmt.Errorf("failed to save snapshot: %w", err))
		}
	}
	if err := e.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (e *Engine) closeAll() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil
	if len(errs) > 0 {
		e.logger.Error("errors closing engine", "err", errors.Join(errs...))
	}
	return errors.Join(errs...)
}

// Config returns the configuration the engine was opened with.
func (e *Engine) Config() *config.Config { return e.cfg }

// Catalog returns the live indexes.
func (e *Engine) Catalog() *index.Catalog { return e.catalog }

// Pipeline returns the document writer.
func (e *Engine) Pipeline() *ingestion.Pipeline { return e.pipeline }

// Searcher returns the hybrid searcher.
func (e *Engine) Searcher() *search.Searcher { return e.searcher }

// Orchestrator returns the RAG orchestrator.
func (e *Engine) Orchestrator() *rag.Orchestrator { return e.orchestrator }

// Router returns the message router.
func (e *Engine) Router() *router.Router { return e.router }

// Listener returns the stream listener, or nil when streaming is disabled.
func (e *Engine) Listener() *stream.Listener { return e.listener }

// MessageLog returns the message log, or nil when streaming is disabled.
func (e *Engine) MessageLog() storage.MessageLog { return e.messageLog }

// Documents returns the document repository.
func (e *Engine) Documents() storage.DocumentRepository { return e.documents }

// Provider returns the AI provider.
func (e *Engine) Provider() ai.AIProvider { return e.provider }
