package badger

import (
	"context"
	"strconv"
	"testing"

	"github.com/poiesic/ragrelay/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDocumentRepository(t *testing.T) (*DocumentRepository, *Backend) {
	t.Helper()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	repo, err := NewDocumentRepository(backend)
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		backend.Close()
	})
	return repo, backend
}

func TestDocumentRepository_PutGet(t *testing.T) {
	repo, _ := newTestDocumentRepository(t)
	ctx := context.Background()

	docs := []*core.Document{
		{ID: "1", Text: "first", Metadata: map[string]any{"source": "a"}, Vector: []float32{1, 0}},
		{ID: "2", Text: "second", Metadata: map[string]any{}, Vector: []float32{0, 1}},
	}
	require.NoError(t, repo.PutDocuments(ctx, docs...))

	t.Run("sets inserted at", func(t *testing.T) {
		for _, doc := range docs {
			assert.False(t, doc.InsertedAt.IsZero())
		}
	})

	t.Run("get existing and missing", func(t *testing.T) {
		got, err := repo.GetDocuments(ctx, "2", "missing", "1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "second", got[0].Text)
		assert.Equal(t, "first", got[1].Text)
		assert.Equal(t, "a", got[1].Metadata["source"])
		assert.Equal(t, []float32{1, 0}, got[1].Vector)
	})

	t.Run("replace by id", func(t *testing.T) {
		require.NoError(t, repo.PutDocuments(ctx, &core.Document{ID: "1", Text: "replaced"}))
		got, err := repo.GetDocuments(ctx, "1")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "replaced", got[0].Text)

		count, err := repo.CountDocuments(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("empty put is a no-op", func(t *testing.T) {
		require.NoError(t, repo.PutDocuments(ctx))
	})
}

func TestDocumentRepository_Delete(t *testing.T) {
	repo, _ := newTestDocumentRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.PutDocuments(ctx,
		&core.Document{ID: "a", Text: "x"},
		&core.Document{ID: "b", Text: "y"},
	))

	deleted, err := repo.DeleteDocuments(ctx, "a", "nope")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	deleted, err = repo.DeleteDocuments(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	count, err := repo.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDocumentRepository_AllDocumentsOrder(t *testing.T) {
	repo, _ := newTestDocumentRepository(t)
	ctx := context.Background()

	for _, id := range []string{"10", "b", "2", "a", "1"} {
		require.NoError(t, repo.PutDocuments(ctx, &core.Document{ID: id, Text: id}))
	}

	docs, err := repo.AllDocuments(ctx)
	require.NoError(t, err)
	ids := make([]string, len(docs))
	for i, doc := range docs {
		ids[i] = doc.ID
	}
	assert.Equal(t, []string{"1", "2", "10", "a", "b"}, ids)
}

func TestDocumentRepository_NextID(t *testing.T) {
	repo, _ := newTestDocumentRepository(t)
	ctx := context.Background()

	t.Run("monotonic", func(t *testing.T) {
		first, err := repo.NextID(ctx)
		require.NoError(t, err)
		second, err := repo.NextID(ctx)
		require.NoError(t, err)

		a, err := strconv.ParseUint(first, 10, 64)
		require.NoError(t, err)
		b, err := strconv.ParseUint(second, 10, 64)
		require.NoError(t, err)
		assert.Greater(t, b, a)
		assert.NotZero(t, a)
	})

	t.Run("skips ids taken by callers", func(t *testing.T) {
		next, err := repo.NextID(ctx)
		require.NoError(t, err)
		n, _ := strconv.ParseUint(next, 10, 64)

		taken := strconv.FormatUint(n+1, 10)
		require.NoError(t, repo.PutDocuments(ctx, &core.Document{ID: taken, Text: "caller id"}))

		after, err := repo.NextID(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, taken, after)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := repo.NextID(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDocumentRepository_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	repo, err := NewDocumentRepository(backend)
	require.NoError(t, err)
	require.NoError(t, repo.PutDocuments(ctx, &core.Document{ID: "1", Text: "durable", Vector: []float32{0.5}}))
	require.NoError(t, repo.Close())
	require.NoError(t, backend.Close())

	backend, err = OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()
	repo, err = NewDocumentRepository(backend)
	require.NoError(t, err)
	defer repo.Close()

	docs, err := repo.AllDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "durable", docs[0].Text)
	assert.Equal(t, []float32{0.5}, docs[0].Vector)
}
