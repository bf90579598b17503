package index

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/poiesic/ragrelay/ai/mock"
	"github.com/poiesic/ragrelay/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// axisEmbedder maps each known word to its own axis so similarity is predictable.
func axisEmbedder(words ...string) *mock.MockEmbedder {
	e := mock.NewMockEmbedder()
	e.EmbedTextFunc = func(_ context.Context, text string) ([]float32, error) {
		vec := make([]float32, len(words))
		for _, tok := range core.Tokenize(text) {
			for i, w := range words {
				if tok == w {
					vec[i]++
				}
			}
		}
		return vec, nil
	}
	return e
}

func docs(texts ...string) []*core.Document {
	out := make([]*core.Document, len(texts))
	for i, text := range texts {
		out[i] = &core.Document{ID: core.ID(string(rune('1' + i))), Text: text, Metadata: map[string]any{}}
	}
	return out
}

func newTestVectorIndex(t *testing.T, embedder *mock.MockEmbedder, opts ...VectorOption) *VectorIndex {
	t.Helper()
	v, err := NewVectorIndex(embedder, opts...)
	require.NoError(t, err)
	t.Cleanup(v.Release)
	return v
}

func TestNewVectorIndex_RequiresEmbedder(t *testing.T) {
	_, err := NewVectorIndex(nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}

func TestVectorIndex_IndexAndQuery(t *testing.T) {
	ctx := context.Background()
	v := newTestVectorIndex(t, axisEmbedder("cat", "dog", "fish"))

	require.NoError(t, v.Index(ctx, docs("cat cat", "dog", "fish dog")))
	assert.Equal(t, 3, v.Count())
	assert.Equal(t, 3, v.Dimension())

	matches, err := v.Query(ctx, "dog", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "2", matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
	assert.Equal(t, "3", matches[1].ID)
	assert.InDelta(t, 1/1.41421356, matches[1].Similarity, 1e-5)
}

func TestVectorIndex_QueryEmptyIndex(t *testing.T) {
	embedder := axisEmbedder("cat")
	v := newTestVectorIndex(t, embedder)

	matches, err := v.Query(context.Background(), "cat", 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Equal(t, 0, embedder.CallCount(), "empty index must not embed the query")
}

func TestVectorIndex_ReindexReplaces(t *testing.T) {
	ctx := context.Background()
	v := newTestVectorIndex(t, axisEmbedder("cat", "dog"))

	require.NoError(t, v.Index(ctx, []*core.Document{{ID: "a", Text: "cat"}}))
	require.NoError(t, v.Index(ctx, []*core.Document{{ID: "a", Text: "dog"}}))
	assert.Equal(t, 1, v.Count())

	matches := v.QueryVector([]float32{0, 1}, 1)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
}

func TestVectorIndex_TiesOrderedByID(t *testing.T) {
	ctx := context.Background()
	v := newTestVectorIndex(t, axisEmbedder("cat"))

	batch := []*core.Document{{ID: "10", Text: "cat"}, {ID: "2", Text: "cat"}, {ID: "b", Text: "cat"}, {ID: "a", Text: "cat"}}
	require.NoError(t, v.Index(ctx, batch))

	matches := v.QueryVector([]float32{1}, 0)
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"2", "10", "a", "b"}, ids)
}

func TestVectorIndex_FailedBatchCommitsNothing(t *testing.T) {
	ctx := context.Background()
	embedder := mock.NewMockEmbedder()
	var calls atomic.Int32
	embedder.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) == 2 {
			return nil, errors.New("model unavailable")
		}
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{1, 0}
		}
		return out, nil
	}
	v := newTestVectorIndex(t, embedder, WithBatchSize(1), WithPoolSize(1))

	err := v.Index(ctx, docs("a", "b", "c"))
	require.Error(t, err)
	assert.Equal(t, 0, v.Count())
}

func TestVectorIndex_SubBatchesKeepInputOrder(t *testing.T) {
	ctx := context.Background()
	words := []string{"w0", "w1", "w2", "w3", "w4", "w5", "w6"}
	v := newTestVectorIndex(t, axisEmbedder(words...), WithBatchSize(2), WithPoolSize(4))

	batch := make([]*core.Document, len(words))
	for i, w := range words {
		batch[i] = &core.Document{ID: w, Text: w}
	}
	staged, err := v.Prepare(ctx, batch)
	require.NoError(t, err)
	require.Equal(t, len(words), staged.Len())
	assert.Equal(t, 0, v.Count(), "prepare must not publish vectors")

	for i := range words {
		assert.InDelta(t, 1.0, staged.Vector(i)[i], 1e-6, "vector %d out of order", i)
	}

	require.NoError(t, staged.Commit())
	assert.Equal(t, len(words), v.Count())
	assert.ErrorIs(t, staged.Commit(), ErrStaleBatch)
}

func TestVectorIndex_PrepareKeepsExistingVectors(t *testing.T) {
	ctx := context.Background()
	embedder := axisEmbedder("cat", "dog")
	v := newTestVectorIndex(t, embedder, WithBatchSize(1))

	batch := []*core.Document{
		{ID: "1", Text: "cat", Vector: []float32{0, 3}},
		{ID: "2", Text: "dog"},
		{ID: "3", Text: "cat"},
	}
	staged, err := v.Prepare(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, embedder.TextCount())

	assert.Equal(t, []float32{0, 1}, staged.Vector(0))
	assert.Equal(t, []float32{0, 1}, staged.Vector(1))
	assert.Equal(t, []float32{1, 0}, staged.Vector(2))
}

func TestVectorIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(_ context.Context, text string) ([]float32, error) {
		return make([]float32, len(text)+1), nil
	}
	v := newTestVectorIndex(t, embedder)

	require.NoError(t, v.Index(ctx, []*core.Document{{ID: "1", Text: "ab"}}))
	err := v.Index(ctx, []*core.Document{{ID: "2", Text: "abcd"}})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 1, v.Count())
}

func TestVectorIndex_Delete(t *testing.T) {
	ctx := context.Background()
	v := newTestVectorIndex(t, axisEmbedder("cat"))
	require.NoError(t, v.Index(ctx, docs("cat", "cat", "cat")))

	assert.Equal(t, 2, v.Delete("1", "3", "missing"))
	assert.Equal(t, 1, v.Count())
	assert.True(t, v.Contains("2"))
	assert.False(t, v.Contains("1"))
}

func TestVectorIndex_Restore(t *testing.T) {
	embedder := axisEmbedder("cat")
	v := newTestVectorIndex(t, embedder)

	err := v.Restore([]*core.Document{
		{ID: "1", Vector: []float32{3, 4}},
		{ID: "2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, v.Count())
	assert.Equal(t, 0, embedder.CallCount())

	matches := v.QueryVector([]float32{3, 4}, 1)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
}

func TestVectorIndex_SaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	v := newTestVectorIndex(t, axisEmbedder("cat", "dog", "fish"))
	require.NoError(t, v.Index(ctx, []*core.Document{
		{ID: "1", Text: "cat"},
		{ID: "20", Text: "dog fish"},
		{ID: "notes", Text: "fish fish cat"},
	}))

	path := filepath.Join(t.TempDir(), "vectors.snap")
	require.NoError(t, v.Save(path))

	loaded := newTestVectorIndex(t, axisEmbedder("cat", "dog", "fish"))
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, v.Count(), loaded.Count())
	assert.Equal(t, v.Dimension(), loaded.Dimension())
	for _, id := range []core.ID{"1", "20", "notes"} {
		assert.True(t, loaded.Contains(id))
	}

	query := []float32{0.2, 0.5, 0.9}
	assert.Equal(t, v.QueryVector(query, 0), loaded.QueryVector(query, 0))
}

func TestVectorIndex_LoadRejectsGarbage(t *testing.T) {
	v := newTestVectorIndex(t, axisEmbedder("cat"))
	require.NoError(t, v.Restore([]*core.Document{{ID: "keep", Vector: []float32{1}}}))

	path := filepath.Join(t.TempDir(), "bad.snap")
	require.NoError(t, writeFile(path, "definitely not a snapshot"))

	err := v.Load(path)
	assert.ErrorIs(t, err, ErrSnapshotFormat)
	assert.Equal(t, 1, v.Count(), "failed load must leave the index unchanged")
}

func TestVectorIndex_LoadMissingFile(t *testing.T) {
	v := newTestVectorIndex(t, axisEmbedder("cat"))
	err := v.Load(filepath.Join(t.TempDir(), "nope.snap"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "failed to read snapshot"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, []float32{0, 0}, Normalize([]float32{0, 0}))

	unit := Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, unit[0], 1e-6)
	assert.InDelta(t, 0.8, unit[1], 1e-6)
}
