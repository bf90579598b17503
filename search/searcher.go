package search

import (
	"context"
	"log/slog"
	"slices"

	"github.com/poiesic/ragrelay/core"
	"github.com/poiesic/ragrelay/index"
	"github.com/poiesic/ragrelay/storage"
)

// DefaultLimit is the result count used when a search asks for none.
const DefaultLimit = 5

// DefaultWeight is the semantic share of the blended score.
const DefaultWeight = 0.7

// Searcher ranks documents by a blend of semantic and keyword relevance.
type Searcher struct {
	repository storage.DocumentRepository
	catalog    *index.Catalog
	logger     *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(repository storage.DocumentRepository, catalog *index.Catalog, opts ...Option) (*Searcher, error) {
	if repository == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if catalog == nil || catalog.Vectors == nil || catalog.Lexical == nil {
		return nil, ErrCatalogRequired
	}

	s := &Searcher{
		repository: repository,
		catalog:    catalog,
		logger:     slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	return s, nil
}

// Search returns up to limit documents ranked by hybrid score.
// limit <= 0 uses DefaultLimit. weight must lie in [0, 1].
func (s *Searcher) Search(ctx context.Context, query string, limit int, weight float64) ([]core.ScoredResult, error) {
	return s.SearchWithMonitor(ctx, query, limit, weight, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, limit int, weight float64, monitor SearchMonitor) ([]core.ScoredResult, error) {
	if err := core.ValidateQuery(query); err != nil {
		return nil, err
	}
	if err := core.ValidateWeight(weight); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(query, weight)

	var empty bool
	_ = s.catalog.View(func() error {
		empty = s.catalog.Vectors.Count() == 0 && s.catalog.Lexical.Count() == 0
		return nil
	})
	if empty {
		monitor.Finish([]core.ScoredResult{})
		return []core.ScoredResult{}, nil
	}

	// Embed outside the catalog lock so a slow model never blocks writers.
	queryVector, err := s.catalog.Vectors.Embed(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "err", err)
		return nil, err
	}
	monitor.AfterQueryEmbedding(len(queryVector))

	tokens := index.Tokenize(query)

	var results []core.ScoredResult
	err = s.catalog.View(func() error {
		semantic := s.catalog.Vectors.Similarities(queryVector)
		monitor.AfterSemanticScoring(len(semantic))

		keyword := s.catalog.Lexical.Score(tokens)
		var maxKeyword float64
		for _, score := range keyword {
			maxKeyword = max(maxKeyword, score)
		}
		monitor.AfterKeywordScoring(tokens, len(keyword), maxKeyword)

		ranked := blend(semantic, keyword, maxKeyword, weight)

		var err error
		results, err = s.materialize(ctx, ranked, limit, monitor)
		return err
	})
	if err != nil {
		s.logger.Error("error retrieving documents", "err", err)
		return nil, err
	}

	monitor.Finish(results)
	s.logger.Debug("search complete", "results", len(results), "weight", weight)
	return results, nil
}

// SemanticScore maps a cosine similarity in [-1, 1] onto [0, 1] without
// changing the order of any two similarities.
func SemanticScore(cos float64) float64 {
	return min(1, max(0, (1+cos)/2))
}

type candidate struct {
	id        core.ID
	breakdown core.ScoreBreakdown
}

// blend combines both signals for every candidate and sorts the result.
func blend(semantic, keyword map[core.ID]float64, maxKeyword, weight float64) []candidate {
	ids := make(map[core.ID]struct{}, len(semantic)+len(keyword))
	for id := range semantic {
		ids[id] = struct{}{}
	}
	for id := range keyword {
		ids[id] = struct{}{}
	}

	ranked := make([]candidate, 0, len(ids))
	for id := range ids {
		var sem float64
		if cos, ok := semantic[id]; ok {
			sem = SemanticScore(cos)
		}
		var kw float64
		if maxKeyword > 0 {
			kw = keyword[id] / maxKeyword
		}
		ranked = append(ranked, candidate{
			id: id,
			breakdown: core.ScoreBreakdown{
				Semantic: sem,
				Keyword:  kw,
				Combined: weight*sem + (1-weight)*kw,
			},
		})
	}

	slices.SortFunc(ranked, func(a, b candidate) int {
		if a.breakdown.Combined > b.breakdown.Combined {
			return -1
		}
		if a.breakdown.Combined < b.breakdown.Combined {
			return 1
		}
		return core.CompareIDs(a.id, b.id)
	})
	return ranked
}

// materialize loads documents for the best candidates, skipping ids the
// store no longer has, until limit results are collected.
func (s *Searcher) materialize(ctx context.Context, ranked []candidate, limit int, monitor SearchMonitor) ([]core.ScoredResult, error) {
	results := make([]core.ScoredResult, 0, min(limit, len(ranked)))

	for start := 0; start < len(ranked) && len(results) < limit; {
		end := min(start+limit-len(results), len(ranked))
		window := ranked[start:end]
		start = end

		ids := make([]core.ID, len(window))
		for i, c := range window {
			ids[i] = c.id
		}
		docs, err := s.repository.GetDocuments(ctx, ids...)
		if err != nil {
			return nil, err
		}
		byID := make(map[core.ID]*core.Document, len(docs))
		for _, doc := range docs {
			byID[doc.ID] = doc
		}

		for _, c := range window {
			doc, ok := byID[c.id]
			if !ok {
				monitor.SkippedMissing(c.id)
				s.logger.Warn("indexed document missing from store", "id", c.id)
				continue
			}
			results = append(results, core.ScoredResult{
				ID:        doc.ID,
				Text:      doc.Text,
				Metadata:  doc.Metadata,
				Score:     c.breakdown.Combined,
				Breakdown: c.breakdown,
			})
		}
	}

	return results, nil
}
