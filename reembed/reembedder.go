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


package reembed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/ragrelay/ai"
	"github.com/poiesic/ragrelay/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of documents embedded per call
	BatchSize int

	// Workers is the number of batches embedded concurrently
	Workers int

	// MaxRetries is the maximum number of attempts for each embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:  DefaultBatchSize,
		Workers:    4,
		MaxRetries: 3,
		RetryDelay: 1 * time.Second,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("batch-size must be greater than 0")
	case c.Workers <= 0:
		return fmt.Errorf("workers must be greater than 0")
	case c.MaxRetries <= 0:
		return fmt.Errorf("max-retries must be greater than 0")
	}
	return nil
}

// Summary describes a finished run.
type Summary struct {
	Documents int
	Dimension int
	Elapsed   time.Duration
}

// Reembedder rewrites the vectors of every stored document.
type Reembedder struct {
	repo      storage.DocumentRepository
	config    *Config
	progress  Progress
	processor *BatchProcessor
	iterator  *DocumentIterator
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder. A nil config uses DefaultConfig
// and a nil progress reports nothing.
func NewReembedder(repo storage.DocumentRepository, embedder ai.Embedder, config *Config, progress Progress) (*Reembedder, error) {
	if repo == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = noopProgress{}
	}

	return &Reembedder{
		repo:      repo,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(repo, embedder, config.MaxRetries, config.RetryDelay),
		iterator:  NewDocumentIterator(repo, config.BatchSize),
		logger:    slog.Default().With("component", "reembedder"),
	}, nil
}

// Run reembeds every stored document. Batches run concurrently on a worker
// pool; the first failure cancels the batches not yet started. Batches
// written before a failure keep their new vectors.
func (r *Reembedder) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	batches, err := r.iterator.Batches(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	total := 0
	for _, b := range batches {
		total += len(b)
	}
	if total == 0 {
		return &Summary{Elapsed: time.Since(start)}, nil
	}

	r.logger.Info("reembedding", "documents", total, "batches", len(batches), "workers", r.config.Workers)
	r.progress.Start(total)

	pool, err := ants.NewPool(r.config.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for i, batch := range batches {
		if runCtx.Err() != nil {
			break
		}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if runCtx.Err() != nil {
				return
			}
			if err := r.processor.Process(runCtx, batch); err != nil {
				fail(fmt.Errorf("batch %d: %w", i, err))
				return
			}
			r.progress.Add(len(batch))
		})
		if submitErr != nil {
			wg.Done()
			fail(fmt.Errorf("failed to submit batch %d: %w", i, submitErr))
		}
	}
	wg.Wait()

	if firstErr == nil {
		firstErr = ctx.Err()
	}
	if firstErr != nil {
		return nil, firstErr
	}

	r.progress.Finish()
	summary := &Summary{
		Documents: total,
		Dimension: r.processor.Dimension(),
		Elapsed:   time.Since(start),
	}
	r.logger.Info("reembedding complete", "documents", summary.Documents, "dimension", summary.Dimension, "elapsed", summary.Elapsed)
	return summary, nil
}

type noopProgress struct{}

func (noopProgress) Start(int) {}
func (noopProgress) Add(int)   {}
func (noopProgress) Finish()   {}
