package openai

import (
	"github.com/poiesic/ragrelay/ai"
	"github.com/poiesic/ragrelay/ai/langchain"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewEmbedder creates an embedder for an OpenAI-compatible embedding API.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Local OpenAI-compatible services accept any token; "none" is the default key
	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.APIKey),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	return langchain.NewEmbedder(client, "openai-embedder")
}
