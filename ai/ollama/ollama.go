// Package ollama provides AI services backed by the native Ollama API.
package ollama

import (
	"github.com/poiesic/ragrelay/ai"
	"github.com/poiesic/ragrelay/ai/langchain"
	"github.com/tmc/langchaingo/llms/ollama"
)

// NewEmbedder creates an embedder that calls Ollama's embedding endpoint.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := ollama.New(
		ollama.WithModel(config.EmbeddingModel),
		ollama.WithServerURL(config.EmbeddingHost),
	)
	if err != nil {
		return nil, err
	}

	return langchain.NewEmbedder(client, "ollama-embedder")
}

// NewCompleter creates a chat completer that calls Ollama's chat endpoint.
func NewCompleter(config *ai.Config) (ai.Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := ollama.New(
		ollama.WithModel(config.CompletionModel),
		ollama.WithServerURL(config.CompletionHost),
	)
	if err != nil {
		return nil, err
	}

	return langchain.NewCompleter(client, config.Temperature, config.MaxTokens, "ollama-completer"), nil
}
