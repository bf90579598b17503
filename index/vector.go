package index

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"slices"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/ragrelay/ai"
	"github.com/poiesic/ragrelay/core"
)

const defaultBatchSize = 32

// Match is a document id with its cosine similarity to a query.
type Match struct {
	ID         core.ID
	Similarity float64
}

// VectorIndex performs brute-force cosine similarity search over normalized vectors.
type VectorIndex struct {
	embedder  ai.Embedder
	pool      *ants.Pool
	batchSize int
	logger    *slog.Logger

	mu      sync.RWMutex
	vectors map[core.ID][]float32
	dim     int
}

// VectorOption configures a VectorIndex.
type VectorOption func(*VectorIndex) error

// WithBatchSize sets how many texts go to the embedder per call.
// Default is 32.
func WithBatchSize(size int) VectorOption {
	return func(v *VectorIndex) error {
		if size < 1 {
			size = 1
		}
		v.batchSize = size
		return nil
	}
}

// WithPoolSize sets the number of concurrent embedding calls.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) VectorOption {
	return func(v *VectorIndex) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if v.pool != nil {
			v.pool.Release()
		}
		v.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) VectorOption {
	return func(v *VectorIndex) error {
		if logger == nil {
			logger = slog.Default()
		}
		v.logger = logger
		return nil
	}
}

// NewVectorIndex creates an empty vector index that embeds text with embedder.
func NewVectorIndex(embedder ai.Embedder, opts ...VectorOption) (*VectorIndex, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	v := &VectorIndex{
		embedder:  embedder,
		pool:      pool,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
		vectors:   make(map[core.ID][]float32),
	}

	for _, opt := range opts {
		if err := opt(v); err != nil {
			v.Release()
			return nil, err
		}
	}
	v.logger = v.logger.With("component", "vector-index")

	return v, nil
}

// Release stops the embedding worker pool.
func (v *VectorIndex) Release() {
	if v.pool != nil {
		v.pool.Release()
	}
}

// StagedBatch holds embeddings computed for a batch but not yet visible to queries.
type StagedBatch struct {
	index     *VectorIndex
	ids       []core.ID
	vectors   [][]float32
	committed bool
}

// Vector returns the normalized embedding staged for the i-th document.
func (s *StagedBatch) Vector(i int) []float32 {
	return s.vectors[i]
}

// Len returns the number of staged documents.
func (s *StagedBatch) Len() int {
	return len(s.ids)
}

// Commit makes the staged vectors visible, replacing existing vectors with the same id.
func (s *StagedBatch) Commit() error {
	if s.committed {
		return ErrStaleBatch
	}

	v := s.index
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkDimLocked(s.vectors); err != nil {
		return err
	}
	for i, id := range s.ids {
		v.vectors[id] = s.vectors[i]
	}
	if v.dim == 0 && len(s.vectors) > 0 {
		v.dim = len(s.vectors[0])
	}
	s.committed = true
	return nil
}

// Prepare embeds the batch without touching the index. Documents that
// already carry a vector keep it and are not sent to the embedder.
// Sub-batches are embedded concurrently; any failure aborts the whole batch.
func (v *VectorIndex) Prepare(ctx context.Context, docs []*core.Document) (*StagedBatch, error) {
	staged := &StagedBatch{
		index:   v,
		ids:     make([]core.ID, len(docs)),
		vectors: make([][]float32, len(docs)),
	}
	if len(docs) == 0 {
		return staged, nil
	}

	// pending maps the i-th embedded text back to its document.
	var (
		pending []int
		texts   []string
	)
	for i, doc := range docs {
		staged.ids[i] = doc.ID
		if len(doc.Vector) > 0 {
			staged.vectors[i] = Normalize(doc.Vector)
			continue
		}
		pending = append(pending, i)
		texts = append(texts, doc.Text)
	}

	ctx, cancel := context.WithCancel(ctx)
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

	for start := 0; start < len(texts); start += v.batchSize {
		end := min(start+v.batchSize, len(texts))
		wg.Add(1)
		err := v.pool.Submit(func() {
			defer wg.Done()
			vectors, err := v.embedder.EmbedTexts(ctx, texts[start:end])
			if err != nil {
				fail(err)
				return
			}
			if len(vectors) != end-start {
				fail(fmt.Errorf("%w: embedder returned %d vectors for %d texts", core.ErrUpstream, len(vectors), end-start))
				return
			}
			for i, vec := range vectors {
				staged.vectors[pending[start+i]] = Normalize(vec)
			}
		})
		if err != nil {
			wg.Done()
			fail(err)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		v.logger.Error("batch embedding failed, nothing committed", "documents", len(docs), "err", firstErr)
		return nil, firstErr
	}

	v.mu.RLock()
	err := v.checkDimLocked(staged.vectors)
	v.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	return staged, nil
}

// Index embeds and commits a batch. Re-indexing an id replaces its vector.
func (v *VectorIndex) Index(ctx context.Context, docs []*core.Document) error {
	staged, err := v.Prepare(ctx, docs)
	if err != nil {
		return err
	}
	return staged.Commit()
}

// Restore loads already-embedded documents without calling the embedder.
// Documents without vectors are skipped.
func (v *VectorIndex) Restore(docs []*core.Document) error {
	staged := &StagedBatch{index: v}
	for _, doc := range docs {
		if len(doc.Vector) == 0 {
			continue
		}
		staged.ids = append(staged.ids, doc.ID)
		staged.vectors = append(staged.vectors, Normalize(doc.Vector))
	}
	return staged.Commit()
}

// Query embeds text and returns the k most similar documents.
// An empty index returns an empty slice without embedding.
func (v *VectorIndex) Query(ctx context.Context, text string, k int) ([]Match, error) {
	if v.Count() == 0 {
		return []Match{}, nil
	}

	vector, err := v.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	return v.QueryVector(vector, k), nil
}

// Embed returns the normalized query embedding for text.
func (v *VectorIndex) Embed(ctx context.Context, text string) ([]float32, error) {
	vector, err := v.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	return Normalize(vector), nil
}

// QueryVector returns the k most similar documents to vector, highest first,
// ties broken by ascending id. k <= 0 returns every document.
func (v *VectorIndex) QueryVector(vector []float32, k int) []Match {
	scores := v.Similarities(vector)
	matches := make([]Match, 0, len(scores))
	for id, similarity := range scores {
		matches = append(matches, Match{ID: id, Similarity: similarity})
	}

	slices.SortFunc(matches, func(a, b Match) int {
		if a.Similarity > b.Similarity {
			return -1
		}
		if a.Similarity < b.Similarity {
			return 1
		}
		return core.CompareIDs(a.ID, b.ID)
	})

	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Similarities returns the cosine similarity of vector to every indexed document.
func (v *VectorIndex) Similarities(vector []float32) map[core.ID]float64 {
	query := Normalize(vector)

	v.mu.RLock()
	defer v.mu.RUnlock()

	scores := make(map[core.ID]float64, len(v.vectors))
	for id, vec := range v.vectors {
		scores[id] = dotProduct(query, vec)
	}
	return scores
}

// Delete removes ids from the index and returns how many were present.
func (v *VectorIndex) Delete(ids ...core.ID) int {
	v.mu.Lock()
	defer v.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		if _, ok := v.vectors[id]; ok {
			delete(v.vectors, id)
			deleted++
		}
	}
	if len(v.vectors) == 0 {
		v.dim = 0
	}
	return deleted
}

// Count returns the number of indexed documents.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.vectors)
}

// Contains reports whether id is indexed.
func (v *VectorIndex) Contains(id core.ID) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.vectors[id]
	return ok
}

// IDs returns the indexed ids in CompareIDs order.
func (v *VectorIndex) IDs() []core.ID {
	v.mu.RLock()
	ids := make([]core.ID, 0, len(v.vectors))
	for id := range v.vectors {
		ids = append(ids, id)
	}
	v.mu.RUnlock()
	slices.SortFunc(ids, core.CompareIDs)
	return ids
}

// Dimension returns the vector size, or 0 for an empty index.
func (v *VectorIndex) Dimension() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.dim
}

func (v *VectorIndex) checkDimLocked(vectors [][]float32) error {
	dim := v.dim
	for _, vec := range vectors {
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) != dim {
			return fmt.Errorf("%w: %w: got %d, want %d", core.ErrInvalidInput, ErrDimensionMismatch, len(vec), dim)
		}
	}
	return nil
}

// Normalize returns a unit-length copy of vec. A zero vector stays zero.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, f := range vec {
		sum += float64(f) * float64(f)
	}
	out := make([]float32, len(vec))
	if sum == 0 {
		return out
	}
	inv := 1 / math.Sqrt(sum)
	for i, f := range vec {
		out[i] = float32(float64(f) * inv)
	}
	return out
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float64 {
	var sum float64
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
