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
	"slices"

	"github.com/poiesic/ragrelay/core"
	"github.com/poiesic/ragrelay/storage"
)

const (
	// DefaultBatchSize is the default number of documents per batch
	DefaultBatchSize = 100
)

// DocumentIterator walks every stored document in id order, in batches.
type DocumentIterator struct {
	repo      storage.DocumentRepository
	batchSize int
}

// NewDocumentIterator creates a new document iterator.
// batchSize: number of documents per batch; values <= 0 use DefaultBatchSize
func NewDocumentIterator(repo storage.DocumentRepository, batchSize int) *DocumentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &DocumentIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// Batches returns every stored document split into batches.
// The batches are materialized up front so that rewriting documents while
// iterating cannot skip or repeat any of them.
func (it *DocumentIterator) Batches(ctx context.Context) ([][]*core.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs, err := it.repo.AllDocuments(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(docs, func(a, b *core.Document) int {
		return core.CompareIDs(a.ID, b.ID)
	})

	var batches [][]*core.Document
	for start := 0; start < len(docs); start += it.batchSize {
		end := min(start+it.batchSize, len(docs))
		batches = append(batches, docs[start:end])
	}
	return batches, nil
}

// ForEach calls fn for each batch in order.
// Iteration stops on the first error from fn or when ctx is done.
func (it *DocumentIterator) ForEach(ctx context.Context, fn func([]*core.Document) error) error {
	batches, err := it.Batches(ctx)
	if err != nil {
		return err
	}

	for _, batch := range batches {
		if err := fn(batch); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
