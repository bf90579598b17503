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
	"sync/atomic"
	"time"

	"github.com/poiesic/ragrelay/ai"
	"github.com/poiesic/ragrelay/core"
	"github.com/poiesic/ragrelay/index"
	"github.com/poiesic/ragrelay/storage"
)

// BatchProcessor embeds batches of documents and writes the new vectors back.
type BatchProcessor struct {
	repo           storage.DocumentRepository
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration

	// dim is the dimension of the first embedded batch; 0 until then.
	dim atomic.Int64
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for each embedding call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(repo storage.DocumentRepository, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		repo:           repo,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Dimension returns the dimension of the vectors produced so far, or 0.
func (bp *BatchProcessor) Dimension() int {
	return int(bp.dim.Load())
}

// Process generates embeddings for a batch of documents and stores them.
// Vectors are normalized before they are written. Every batch of a run
// must produce vectors of the same dimension.
func (bp *BatchProcessor) Process(ctx context.Context, docs []*core.Document) error {
	if len(docs) == 0 {
		return nil
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}

	var embeddings [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("%w: failed to generate embeddings after %d attempts: %w", core.ErrUpstream, bp.maxRetries, err)
	}

	if len(embeddings) != len(docs) {
		return fmt.Errorf("%w: embedding count mismatch: expected %d, got %d", core.ErrUpstream, len(docs), len(embeddings))
	}

	updated := make([]*core.Document, len(docs))
	for i, doc := range docs {
		vec := embeddings[i]
		if err := bp.checkDimension(len(vec)); err != nil {
			return err
		}
		clone := doc.Clone()
		clone.Vector = index.Normalize(vec)
		updated[i] = clone
	}

	if err := bp.repo.PutDocuments(ctx, updated...); err != nil {
		return fmt.Errorf("failed to update documents: %w", err)
	}
	return nil
}

func (bp *BatchProcessor) checkDimension(n int) error {
	if n == 0 {
		return fmt.Errorf("%w: empty embedding", core.ErrUpstream)
	}
	if bp.dim.CompareAndSwap(0, int64(n)) {
		return nil
	}
	if want := bp.dim.Load(); want != int64(n) {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, n, want)
	}
	return nil
}
