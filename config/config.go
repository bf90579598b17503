// Package config loads the application configuration from YAML, a .env
// file and RAGRELAY_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/poiesic/ragrelay/ai"
	"github.com/poiesic/ragrelay/rag"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "ragrelay.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RAGRELAY_"

// Message log backends.
const (
	BackendBadger = "badger"
	BackendRedis  = "redis"
)

// AIConfig selects the embedding and completion providers.
type AIConfig struct {
	EmbeddingProvider   string  `yaml:"embedding_provider"`
	EmbeddingHost       string  `yaml:"embedding_host"`
	EmbeddingModel      string  `yaml:"embedding_model"`
	EmbeddingDimensions int     `yaml:"embedding_dimensions"`
	CompletionProvider  string  `yaml:"completion_provider"`
	CompletionHost      string  `yaml:"completion_host"`
	CompletionModel     string  `yaml:"completion_model"`
	APIKey              string  `yaml:"api_key"`
	Temperature         float64 `yaml:"temperature"`
	MaxTokens           int     `yaml:"max_tokens"`
}

// IndexConfig tunes the vector index.
type IndexConfig struct {
	BatchSize    int    `yaml:"batch_size"`
	PoolSize     int    `yaml:"pool_size"`
	SnapshotPath string `yaml:"snapshot_path"`
}

// RAGConfig holds retrieval defaults for question answering.
type RAGConfig struct {
	Limit    int     `yaml:"limit"`
	MinScore float64 `yaml:"min_score"`
	Weight   float64 `yaml:"weight"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	APIKey       string        `yaml:"api_key"`
	RateLimit    float64       `yaml:"rate_limit"`
	RateBurst    int           `yaml:"rate_burst"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StreamConfig configures the consumer-group listener.
type StreamConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Backend      string        `yaml:"backend"`
	RedisURL     string        `yaml:"redis_url"`
	Channels     []string      `yaml:"channels"`
	Group        string        `yaml:"group"`
	Consumer     string        `yaml:"consumer"`
	ReadCount    int           `yaml:"read_count"`
	Block        time.Duration `yaml:"block"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Config is the root application configuration.
type Config struct {
	// DataDir holds the badger database. Empty runs fully in memory.
	DataDir       string            `yaml:"data_dir"`
	AI            AIConfig          `yaml:"ai"`
	Index         IndexConfig       `yaml:"index"`
	RAG           RAGConfig         `yaml:"rag"`
	Server        ServerConfig      `yaml:"server"`
	Stream        StreamConfig      `yaml:"stream"`
	SystemPrompts map[string]string `yaml:"system_prompts"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		AI: AIConfig{
			EmbeddingProvider:   aiDefaults.EmbeddingProvider,
			EmbeddingHost:       aiDefaults.EmbeddingHost,
			EmbeddingModel:      aiDefaults.EmbeddingModel,
			EmbeddingDimensions: aiDefaults.EmbeddingDimensions,
			CompletionProvider:  aiDefaults.CompletionProvider,
			CompletionHost:      aiDefaults.CompletionHost,
			CompletionModel:     aiDefaults.CompletionModel,
			APIKey:              aiDefaults.APIKey,
			Temperature:         aiDefaults.Temperature,
			MaxTokens:           aiDefaults.MaxTokens,
		},
		Index: IndexConfig{
			BatchSize: 32,
		},
		RAG: RAGConfig{
			Limit:    rag.DefaultLimit,
			MinScore: rag.DefaultMinScore,
			Weight:   rag.DefaultWeight,
		},
		Server: ServerConfig{
			Addr:         ":8000",
			RateLimit:    20,
			RateBurst:    40,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Stream: StreamConfig{
			Enabled:      true,
			Backend:      BackendBadger,
			Channels:     []string{"embeddings_stream", "rag_stream", "llm_stream"},
			Group:        "ragrelay_group",
			Consumer:     "ragrelay_consumer",
			ReadCount:    100,
			Block:        5 * time.Second,
			PollInterval: 100 * time.Millisecond,
		},
		SystemPrompts: map[string]string{
			"default": "You are a helpful AI assistant.",
			"rag":     "You are a helpful AI assistant that answers questions using only the provided context. If the context does not contain the answer, say so explicitly.",
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A .env file in the working directory is loaded first if present.
// An empty path uses DefaultPath when it exists and defaults otherwise.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// SystemPrompt returns the named prompt, falling back to "default".
func (c *Config) SystemPrompt(name string) string {
	if p, ok := c.SystemPrompts[name]; ok && p != "" {
		return p
	}
	return c.SystemPrompts["default"]
}

// AIOptions converts the AI section into ai.Config options.
func (c *Config) AIOptions() []ai.ConfigOption {
	return []ai.ConfigOption{
		ai.WithEmbeddingProvider(c.AI.EmbeddingProvider),
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithEmbeddingDimensions(c.AI.EmbeddingDimensions),
		ai.WithCompletionProvider(c.AI.CompletionProvider),
		ai.WithCompletionHost(c.AI.CompletionHost),
		ai.WithCompletionModel(c.AI.CompletionModel),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithTemperature(c.AI.Temperature),
		ai.WithMaxTokens(c.AI.MaxTokens),
	}
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"DATA_DIR":            &c.DataDir,
		"EMBEDDING_PROVIDER":  &c.AI.EmbeddingProvider,
		"EMBEDDING_HOST":      &c.AI.EmbeddingHost,
		"EMBEDDING_MODEL":     &c.AI.EmbeddingModel,
		"COMPLETION_PROVIDER": &c.AI.CompletionProvider,
		"COMPLETION_HOST":     &c.AI.CompletionHost,
		"COMPLETION_MODEL":    &c.AI.CompletionModel,
		"LLM_API_KEY":         &c.AI.APIKey,
		"SNAPSHOT_PATH":       &c.Index.SnapshotPath,
		"ADDR":                &c.Server.Addr,
		"API_KEY":             &c.Server.APIKey,
		"STREAM_BACKEND":      &c.Stream.Backend,
		"REDIS_URL":           &c.Stream.RedisURL,
		"STREAM_GROUP":        &c.Stream.Group,
		"STREAM_CONSUMER":     &c.Stream.Consumer,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"EMBEDDING_DIMENSIONS": &c.AI.EmbeddingDimensions,
		"MAX_TOKENS":           &c.AI.MaxTokens,
		"BATCH_SIZE":           &c.Index.BatchSize,
		"POOL_SIZE":            &c.Index.PoolSize,
		"RAG_LIMIT":            &c.RAG.Limit,
	}
	for key, dst := range ints {
		if v, ok := lookup(EnvPrefix + key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = n
		}
	}

	floats := map[string]*float64{
		"TEMPERATURE":   &c.AI.Temperature,
		"RAG_MIN_SCORE": &c.RAG.MinScore,
		"RAG_WEIGHT":    &c.RAG.Weight,
		"RATE_LIMIT":    &c.Server.RateLimit,
	}
	for key, dst := range floats {
		if v, ok := lookup(EnvPrefix + key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*dst = f
		}
	}

	if v, ok := lookup(EnvPrefix + "STREAM_ENABLED"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sSTREAM_ENABLED: %w", EnvPrefix, err)
		}
		c.Stream.Enabled = b
	}
	if v, ok := lookup(EnvPrefix + "STREAM_CHANNELS"); ok {
		var channels []string
		for _, ch := range strings.Split(v, ",") {
			if ch = strings.TrimSpace(ch); ch != "" {
				channels = append(channels, ch)
			}
		}
		c.Stream.Channels = channels
	}
	return nil
}
