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


package ai

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Provider names accepted by Config.
const (
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
	ProviderAnthropic = "anthropic"
	ProviderHashing   = "hashing"
)

// Generation defaults shared by every component that calls a completer.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
)

var (
	embeddingProviders  = []string{ProviderOpenAI, ProviderOllama, ProviderHashing}
	completionProviders = []string{ProviderOpenAI, ProviderOllama, ProviderAnthropic}
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingProvider selects the embedding backend: "openai", "ollama" or "hashing".
	// "hashing" is a local feature-hashing embedder that needs no service.
	EmbeddingProvider string

	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// EmbeddingDimensions is the vector size produced by the hashing embedder.
	// Ignored by remote providers.
	EmbeddingDimensions int

	// CompletionProvider selects the chat backend: "openai", "ollama" or "anthropic".
	CompletionProvider string

	// CompletionHost is the base URL for the chat completion API.
	// Unused by the anthropic provider.
	CompletionHost string

	// CompletionModel is the model identifier used for completions.
	// Example: "gpt-4o-mini", "claude-3-5-sonnet-20240620", "qwen2.5:3b"
	CompletionModel string

	// APIKey authenticates against hosted providers.
	// Local OpenAI-compatible servers accept any value.
	APIKey string

	// Temperature is the default sampling temperature for completions.
	// Default: 0.7
	Temperature float64

	// MaxTokens caps the completion length.
	// Default: 1000
	MaxTokens int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingProvider sets the embedding backend.
func WithEmbeddingProvider(provider string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingProvider = provider
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithEmbeddingDimensions sets the hashing embedder vector size.
func WithEmbeddingDimensions(dim int) ConfigOption {
	return func(c *Config) {
		c.EmbeddingDimensions = dim
	}
}

// WithCompletionProvider sets the chat backend.
func WithCompletionProvider(provider string) ConfigOption {
	return func(c *Config) {
		c.CompletionProvider = provider
	}
}

// WithCompletionHost sets the chat service host URL.
func WithCompletionHost(host string) ConfigOption {
	return func(c *Config) {
		c.CompletionHost = host
	}
}

// WithHost sets both embedding and completion hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.CompletionHost = host
	}
}

// WithCompletionModel sets the chat model identifier.
func WithCompletionModel(model string) ConfigOption {
	return func(c *Config) {
		c.CompletionModel = model
	}
}

// WithAPIKey sets the key used by hosted providers.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithTemperature sets the default completion temperature.
func WithTemperature(temperature float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = temperature
	}
}

// WithMaxTokens sets the default completion length cap.
func WithMaxTokens(max int) ConfigOption {
	return func(c *Config) {
		c.MaxTokens = max
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
// By default, both embedding and completion use the same host.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingProvider:   ProviderOpenAI,
		EmbeddingHost:       defaultHost,
		EmbeddingModel:      "embeddinggemma",
		EmbeddingDimensions: 384,
		CompletionProvider:  ProviderOpenAI,
		CompletionHost:      defaultHost,
		CompletionModel:     "qwen2.5:3b",
		APIKey:              "none",
		Temperature:         DefaultTemperature,
		MaxTokens:           DefaultMaxTokens,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//   cfg := NewConfig(
//       WithHost("http://localhost:11434/v1"),
//       WithEmbeddingModel("text-embedding-3-small"),
//   )
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// Provider names are lowercased and OpenAI-compatible hosts get the /v1
// suffix required by Ollama, LocalAI, vLLM and friends.
func (c *Config) Normalize() {
	c.EmbeddingProvider = strings.ToLower(strings.TrimSpace(c.EmbeddingProvider))
	c.CompletionProvider = strings.ToLower(strings.TrimSpace(c.CompletionProvider))

	if c.EmbeddingProvider == ProviderOpenAI {
		c.EmbeddingHost = withV1(c.EmbeddingHost)
	}
	if c.CompletionProvider == ProviderOpenAI {
		c.CompletionHost = withV1(c.CompletionHost)
	}
}

func withV1(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if !slices.Contains(embeddingProviders, c.EmbeddingProvider) {
		return fmt.Errorf("ai config: unknown EmbeddingProvider %q", c.EmbeddingProvider)
	}
	if !slices.Contains(completionProviders, c.CompletionProvider) {
		return fmt.Errorf("ai config: unknown CompletionProvider %q", c.CompletionProvider)
	}
	if c.EmbeddingProvider == ProviderHashing {
		if c.EmbeddingDimensions < 1 {
			return errors.New("ai config: EmbeddingDimensions must be positive")
		}
	} else {
		if c.EmbeddingHost == "" {
			return errors.New("ai config: EmbeddingHost is required")
		}
		if c.EmbeddingModel == "" {
			return errors.New("ai config: EmbeddingModel is required")
		}
	}
	if c.CompletionProvider != ProviderAnthropic && c.CompletionHost == "" {
		return errors.New("ai config: CompletionHost is required")
	}
	if c.CompletionModel == "" {
		return errors.New("ai config: CompletionModel is required")
	}
	if c.CompletionProvider == ProviderAnthropic && (c.APIKey == "" || c.APIKey == "none") {
		return errors.New("ai config: APIKey is required for anthropic")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("ai config: Temperature must be between 0 and 2")
	}
	if c.MaxTokens < 1 {
		return errors.New("ai config: MaxTokens must be positive")
	}
	return nil
}
