// Package anthropic provides chat completions from Anthropic models.
// Anthropic has no embedding API; pair it with another embedder.
package anthropic

import (
	"github.com/poiesic/ragrelay/ai"
	"github.com/poiesic/ragrelay/ai/langchain"
	"github.com/tmc/langchaingo/llms/anthropic"
)

// NewCompleter creates a chat completer for the Anthropic messages API.
func NewCompleter(config *ai.Config) (ai.Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := anthropic.New(
		anthropic.WithToken(config.APIKey),
		anthropic.WithModel(config.CompletionModel),
	)
	if err != nil {
		return nil, err
	}

	return langchain.NewCompleter(client, config.Temperature, config.MaxTokens, "anthropic-completer"), nil
}
