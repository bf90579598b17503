package ragrelay

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/ragrelay/ai"
	"github.com/poiesic/ragrelay/ai/mock"
	"github.com/poiesic/ragrelay/config"
	"github.com/poiesic/ragrelay/core"
	"github.com/poiesic/ragrelay/message"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.AI.EmbeddingProvider = ai.ProviderHashing
	cfg.AI.EmbeddingDimensions = 64
	cfg.Stream.Enabled = false
	return cfg
}

func TestOpen_InMemory(t *testing.T) {
	e, err := Open(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer e.Close()

	assert.NotNil(t, e.Pipeline())
	assert.NotNil(t, e.Searcher())
	assert.NotNil(t, e.Orchestrator())
	assert.NotNil(t, e.Router())
	assert.Nil(t, e.Listener())
	assert.Nil(t, e.MessageLog())

	ctx := context.Background()
	_, err = e.Pipeline().Add(ctx, []*core.Document{
		{Text: "badger is an embeddable key value store"},
		{Text: "goroutines are lightweight threads"},
	})
	require.NoError(t, err)

	results, err := e.Searcher().Search(ctx, "key value store", 1, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "badger is an embeddable key value store", results[0].Text)
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.RAG.Weight = 2

	e, err := Open(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, e)

	var verrs config.ValidationErrors
	assert.True(t, errors.As(err, &verrs))
}

func TestOpen_DataDirIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not_a_dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	cfg := testConfig(t)
	cfg.DataDir = file

	e, err := Open(context.Background(), cfg)
	assert.Error(t, err)
	assert.Nil(t, e)
}

func TestOpen_RestoresWithoutReembedding(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.DataDir = filepath.Join(t.TempDir(), "db")

	embedder := mock.NewMockEmbedder()
	e, err := Open(ctx, cfg, WithProvider(mock.NewMockProviderWithServices(embedder, mock.NewMockCompleter())))
	require.NoError(t, err)
	ids, err := e.Pipeline().Add(ctx, []*core.Document{
		{ID: "a", Text: "persisted across restarts"},
		{ID: "b", Text: "another stored record"},
	})
	require.NoError(t, err)
	require.Equal(t, []core.ID{"a", "b"}, ids)
	require.NoError(t, e.Close())

	embedder = mock.NewMockEmbedder()
	e, err = Open(ctx, cfg, WithProvider(mock.NewMockProviderWithServices(embedder, mock.NewMockCompleter())))
	require.NoError(t, err)
	defer e.Close()

	assert.Equal(t, 0, embedder.CallCount(), "stored vectors must be reused")
	count, err := e.Pipeline().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	results, err := e.Searcher().Search(ctx, "restarts", 5, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].ID)
}

func TestClose_WritesSnapshot(t *testing.T) {
	cfg := testConfig(t)
	cfg.Index.SnapshotPath = filepath.Join(t.TempDir(), "vectors.snap")

	e, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	_, err = e.Pipeline().Add(context.Background(), []*core.Document{{Text: "snapshot me"}})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	info, err := os.Stat(cfg.Index.SnapshotPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestCheckSnapshot(t *testing.T) {
	ctx := context.Background()
	e, err := Open(ctx, testConfig(t))
	require.NoError(t, err)
	defer e.Close()

	ids, err := e.Pipeline().Add(ctx, []*core.Document{{Text: "first"}, {Text: "second"}})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "vectors.snap")
	require.NoError(t, e.SaveSnapshot(path))

	report, err := e.CheckSnapshot(ctx, path)
	require.NoError(t, err)
	assert.True(t, report.Consistent())
	assert.Equal(t, 2, report.Vectors)
	assert.Equal(t, 64, report.Dimension)

	added, err := e.Pipeline().Add(ctx, []*core.Document{{Text: "third"}})
	require.NoError(t, err)
	_, err = e.Pipeline().Delete(ctx, ids[0])
	require.NoError(t, err)

	report, err = e.CheckSnapshot(ctx, path)
	require.NoError(t, err)
	assert.False(t, report.Consistent())
	assert.Equal(t, added, report.Missing)
	assert.Equal(t, []core.ID{ids[0]}, report.Stale)
	assert.Equal(t, 2, e.Catalog().Vectors.Count(), "live index is untouched")

	_, err = e.CheckSnapshot(ctx, filepath.Join(t.TempDir(), "missing.snap"))
	require.Error(t, err)
}

func TestEngine_StreamRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Stream.Enabled = true
	cfg.Stream.Channels = []string{"rag_stream"}
	cfg.Stream.Block = 50 * time.Millisecond
	cfg.Stream.PollInterval = 10 * time.Millisecond

	e, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, e.Listener())
	require.NoError(t, e.Start(ctx))

	log := e.MessageLog()
	require.NoError(t, log.CreateGroup(ctx, "rag_stream", "observer"))

	req := message.Message{Type: message.TypeHealthCheck, SessionID: "health-1"}
	_, err = log.Publish(ctx, "rag_stream", message.ToFields(req))
	require.NoError(t, err)

	var response *message.Message
	require.Eventually(t, func() bool {
		entries, err := log.Read(ctx, "rag_stream", "observer", "watcher", 100, 0)
		if err != nil {
			return false
		}
		for _, entry := range entries {
			msg, err := message.FromFields(entry.Fields)
			if err == nil && msg.Type == message.TypeHealthCheckResponse {
				response = &msg
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "health-1", response.SessionID)

	require.NoError(t, e.Close())
}

func TestNewServer_UsesConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.APIKey = "k"

	e, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	defer e.Close()

	srv, err := e.NewServer()
	require.NoError(t, err)
	assert.NotNil(t, srv.Handler())
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		opts    []ai.ConfigOption
		wantErr bool
	}{
		{"hashing with openai", []ai.ConfigOption{ai.WithEmbeddingProvider(ai.ProviderHashing)}, false},
		{"openai defaults", nil, false},
		{"ollama", []ai.ConfigOption{
			ai.WithEmbeddingProvider(ai.ProviderOllama),
			ai.WithCompletionProvider(ai.ProviderOllama),
			ai.WithHost("http://localhost:11434"),
		}, false},
		{"anthropic with key", []ai.ConfigOption{
			ai.WithCompletionProvider(ai.ProviderAnthropic),
			ai.WithAPIKey("sk-test"),
		}, false},
		{"anthropic without key", []ai.ConfigOption{ai.WithCompletionProvider(ai.ProviderAnthropic)}, true},
		{"unknown embedder", []ai.ConfigOption{ai.WithEmbeddingProvider("bogus")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(ai.NewConfig(tt.opts...))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, provider.Embedder())
			assert.NotNil(t, provider.Completer())
			assert.NoError(t, provider.Close())
		})
	}
}
