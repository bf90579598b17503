package openai

import (
	"github.com/poiesic/ragrelay/ai"
	"github.com/poiesic/ragrelay/ai/langchain"
	"github.com/tmc/langchaingo/llms/openai"
)

// NewCompleter creates a chat completer for an OpenAI-compatible chat API.
//
// Returns ai.Completer interface to enforce abstraction.
func NewCompleter(config *ai.Config) (ai.Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.CompletionHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.CompletionModel),
	)
	if err != nil {
		return nil, err
	}

	return langchain.NewCompleter(client, config.Temperature, config.MaxTokens, "openai-completer"), nil
}
