package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Empty(t, cfg.DataDir)
	assert.Equal(t, "openai", cfg.AI.EmbeddingProvider)
	assert.Equal(t, 3, cfg.RAG.Limit)
	assert.Equal(t, 0.3, cfg.RAG.MinScore)
	assert.Equal(t, 0.7, cfg.RAG.Weight)
	assert.Equal(t, []string{"embeddings_stream", "rag_stream", "llm_stream"}, cfg.Stream.Channels)
	assert.Equal(t, "ragrelay_group", cfg.Stream.Group)
	assert.Equal(t, 5*time.Second, cfg.Stream.Block)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/ragrelay
ai:
  embedding_provider: hashing
  embedding_dimensions: 128
rag:
  min_score: 0.5
server:
  addr: ":9000"
  read_timeout: 10s
stream:
  backend: redis
  redis_url: redis://localhost:6379/0
  block: 2s
system_prompts:
  rag: "Only use the context."
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/ragrelay", cfg.DataDir)
	assert.Equal(t, "hashing", cfg.AI.EmbeddingProvider)
	assert.Equal(t, 128, cfg.AI.EmbeddingDimensions)
	assert.Equal(t, "qwen2.5:3b", cfg.AI.CompletionModel, "unset fields keep defaults")
	assert.Equal(t, 0.5, cfg.RAG.MinScore)
	assert.Equal(t, 3, cfg.RAG.Limit)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, BackendRedis, cfg.Stream.Backend)
	assert.Equal(t, 2*time.Second, cfg.Stream.Block)
	assert.Equal(t, "Only use the context.", cfg.SystemPrompt("rag"))
	assert.Equal(t, "You are a helpful AI assistant.", cfg.SystemPrompt("default"))
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ai: [unclosed"), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "error parsing config file")
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9000\"\n"), 0o600))

	t.Setenv("RAGRELAY_ADDR", ":7000")
	t.Setenv("RAGRELAY_API_KEY", "secret")
	t.Setenv("RAGRELAY_RAG_WEIGHT", "0.25")
	t.Setenv("RAGRELAY_MAX_TOKENS", "42")
	t.Setenv("RAGRELAY_STREAM_ENABLED", "false")
	t.Setenv("RAGRELAY_STREAM_CHANNELS", "a, b ,,c")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "secret", cfg.Server.APIKey)
	assert.Equal(t, 0.25, cfg.RAG.Weight)
	assert.Equal(t, 42, cfg.AI.MaxTokens)
	assert.False(t, cfg.Stream.Enabled)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Stream.Channels)
}

func TestApplyEnv_InvalidNumbers(t *testing.T) {
	tests := map[string]string{
		"RAGRELAY_POOL_SIZE":      "many",
		"RAGRELAY_RAG_MIN_SCORE":  "high",
		"RAGRELAY_STREAM_ENABLED": "perhaps",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			cfg := Default()
			err := cfg.applyEnv(func(k string) (string, bool) {
				if k == key {
					return value, true
				}
				return "", false
			})
			assert.ErrorContains(t, err, key)
		})
	}
}

func TestValidate_CollectsFieldErrors(t *testing.T) {
	cfg := Default()
	cfg.RAG.Weight = 1.5
	cfg.RAG.Limit = 0
	cfg.Index.BatchSize = 0
	cfg.Stream.Backend = "kafka"
	cfg.Stream.Channels = []string{"bad:name"}
	cfg.AI.EmbeddingProvider = "word2vec"

	err := cfg.Validate()
	require.Error(t, err)

	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))

	fields := make(map[string]bool)
	for _, e := range verrs {
		fields[e.Field] = true
	}
	for _, want := range []string{"ai", "rag.weight", "rag.limit", "index.batch_size", "stream.backend", "stream.channels"} {
		assert.True(t, fields[want], "missing error for %s", want)
	}
	assert.Contains(t, err.Error(), "invalid configuration:")
}

func TestValidate_RedisNeedsURL(t *testing.T) {
	cfg := Default()
	cfg.Stream.Backend = BackendRedis

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stream.redis_url")

	cfg.Stream.Enabled = false
	assert.NoError(t, cfg.Validate())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := Default()
	cfg.DataDir = "/data"
	cfg.RAG.MinScore = 0.45
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
