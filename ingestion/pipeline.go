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


package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/ragrelay/core"
	"github.com/poiesic/ragrelay/index"
	"github.com/poiesic/ragrelay/storage"
)

// Pipeline serializes every mutation of the document store and the indexes.
type Pipeline struct {
	repository storage.DocumentRepository
	catalog    *index.Catalog
	logger     *slog.Logger

	writeMu sync.Mutex
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(repository storage.DocumentRepository, catalog *index.Catalog, opts ...Option) (*Pipeline, error) {
	if repository == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if catalog == nil || catalog.Vectors == nil || catalog.Lexical == nil {
		return nil, ErrCatalogRequired
	}

	p := &Pipeline{
		repository: repository,
		catalog:    catalog,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	return p, nil
}

// Add stores and indexes docs, returning their ids in input order.
// Documents without an id get one from the store sequence; an existing id is replaced.
// A replaced document whose text is unchanged keeps its stored vector.
// If embedding or storing any document fails, nothing is stored or indexed.
func (p *Pipeline) Add(ctx context.Context, docs []*core.Document) ([]core.ID, error) {
	if len(docs) == 0 {
		return []core.ID{}, nil
	}

	batch := make([]*core.Document, len(docs))
	for i, doc := range docs {
		if err := core.ValidateDocument(doc); err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		batch[i] = doc.Clone()
		batch[i].Vector = nil
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	ids, err := p.assignIDs(ctx, batch)
	if err != nil {
		return nil, err
	}

	prior, err := p.repository.GetDocuments(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("failed to read existing documents: %w", err)
	}
	reused := reuseVectors(batch, prior)

	staged, err := p.catalog.Vectors.Prepare(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	for i, doc := range batch {
		doc.Vector = staged.Vector(i)
	}

	corpus, err := p.corpusAfter(ctx, batch, nil)
	if err != nil {
		return nil, err
	}

	err = p.catalog.Update(func() error {
		if err := staged.Commit(); err != nil {
			return err
		}
		if err := p.repository.PutDocuments(ctx, batch...); err != nil {
			p.restoreVectors(ids, prior)
			return fmt.Errorf("failed to store documents: %w", err)
		}
		p.catalog.Lexical.Rebuild(corpus)
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Debug("added documents", "count", len(ids), "reused_vectors", reused)
	return ids, nil
}

// Delete removes ids from the store and both indexes and returns how many existed.
func (p *Pipeline) Delete(ctx context.Context, ids ...core.ID) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	corpus, err := p.corpusAfter(ctx, nil, ids)
	if err != nil {
		return 0, err
	}

	var deleted int
	err = p.catalog.Update(func() error {
		n, err := p.repository.DeleteDocuments(ctx, ids...)
		if err != nil {
			return fmt.Errorf("failed to delete documents: %w", err)
		}
		deleted = n
		p.catalog.Vectors.Delete(ids...)
		p.catalog.Lexical.Rebuild(corpus)
		return nil
	})
	if err != nil {
		return 0, err
	}

	p.logger.Debug("deleted documents", "requested", len(ids), "deleted", deleted)
	return deleted, nil
}

// assignIDs gives each document without an id the next sequence id that is
// neither stored nor supplied by another document of the batch.
func (p *Pipeline) assignIDs(ctx context.Context, batch []*core.Document) ([]core.ID, error) {
	taken := make(map[core.ID]struct{}, len(batch))
	for _, doc := range batch {
		if doc.ID != "" {
			taken[doc.ID] = struct{}{}
		}
	}

	ids := make([]core.ID, len(batch))
	for i, doc := range batch {
		for doc.ID == "" {
			id, err := p.repository.NextID(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to assign document id: %w", err)
			}
			if _, ok := taken[id]; ok {
				continue
			}
			taken[id] = struct{}{}
			doc.ID = id
		}
		ids[i] = doc.ID
	}
	return ids, nil
}

// reuseVectors copies the stored vector onto each document whose text
// fingerprint matches its stored version and returns how many were reused.
func reuseVectors(batch, prior []*core.Document) int {
	if len(prior) == 0 {
		return 0
	}
	byID := make(map[core.ID]*core.Document, len(prior))
	for _, doc := range prior {
		byID[doc.ID] = doc
	}

	reused := 0
	for _, doc := range batch {
		old, ok := byID[doc.ID]
		if !ok || len(old.Vector) == 0 {
			continue
		}
		if core.Fingerprint(old.Text) == core.Fingerprint(doc.Text) {
			doc.Vector = old.Vector
			reused++
		}
	}
	return reused
}

// corpusAfter returns the stored corpus as it will be once batch is stored
// and removed is deleted. Within batch the last document with an id wins.
func (p *Pipeline) corpusAfter(ctx context.Context, batch []*core.Document, removed []core.ID) ([]*core.Document, error) {
	all, err := p.repository.AllDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read documents for the keyword index: %w", err)
	}

	last := make(map[core.ID]int, len(batch))
	for i, doc := range batch {
		last[doc.ID] = i
	}
	gone := make(map[core.ID]struct{}, len(removed))
	for _, id := range removed {
		gone[id] = struct{}{}
	}

	corpus := make([]*core.Document, 0, len(all)+len(batch))
	for _, doc := range all {
		if _, ok := last[doc.ID]; ok {
			continue
		}
		if _, ok := gone[doc.ID]; ok {
			continue
		}
		corpus = append(corpus, doc)
	}
	for i, doc := range batch {
		if last[doc.ID] == i {
			corpus = append(corpus, doc)
		}
	}
	return corpus, nil
}

// restoreVectors undoes a committed batch, putting back the vectors of the
// documents it replaced. It must run inside catalog.Update.
func (p *Pipeline) restoreVectors(ids []core.ID, prior []*core.Document) {
	p.catalog.Vectors.Delete(ids...)
	if err := p.catalog.Vectors.Restore(prior); err != nil {
		p.logger.Error("failed to restore previous vectors", "err", err)
	}
}

// Load rebuilds both indexes from the store and returns the document count.
// Stored vectors are reused; documents stored without one are embedded.
func (p *Pipeline) Load(ctx context.Context) (int, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	all, err := p.repository.AllDocuments(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read documents: %w", err)
	}

	var missing []*core.Document
	for _, doc := range all {
		if len(doc.Vector) == 0 {
			missing = append(missing, doc)
		}
	}

	var staged *index.StagedBatch
	if len(missing) > 0 {
		p.logger.Info("embedding documents stored without vectors", "count", len(missing))
		staged, err = p.catalog.Vectors.Prepare(ctx, missing)
		if err != nil {
			return 0, fmt.Errorf("failed to embed documents: %w", err)
		}
		for i, doc := range missing {
			doc.Vector = staged.Vector(i)
		}
	}

	err = p.catalog.Update(func() error {
		if staged != nil {
			if err := p.repository.PutDocuments(ctx, missing...); err != nil {
				return fmt.Errorf("failed to store vectors: %w", err)
			}
		}
		if err := p.catalog.Vectors.Restore(all); err != nil {
			return err
		}
		p.catalog.Lexical.Rebuild(all)
		return nil
	})
	if err != nil {
		return 0, err
	}

	p.logger.Info("indexes loaded", "documents", len(all))
	return len(all), nil
}

// Count returns the number of stored documents.
func (p *Pipeline) Count(ctx context.Context) (int, error) {
	return p.repository.CountDocuments(ctx)
}
