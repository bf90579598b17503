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


package ragrelay

import (
	"fmt"

	"github.com/poiesic/ragrelay/ai"
	"github.com/poiesic/ragrelay/ai/anthropic"
	"github.com/poiesic/ragrelay/ai/hashing"
	"github.com/poiesic/ragrelay/ai/ollama"
	"github.com/poiesic/ragrelay/ai/openai"
)

// NewProvider builds the embedder and completer selected by config.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		embedder ai.Embedder
		err      error
	)
	switch config.EmbeddingProvider {
	case ai.ProviderOpenAI:
		embedder, err = openai.NewEmbedder(config)
	case ai.ProviderOllama:
		embedder, err = ollama.NewEmbedder(config)
	case ai.ProviderHashing:
		embedder, err = hashing.NewEmbedder(config)
	default:
		err = fmt.Errorf("unsupported embedding provider %q", config.EmbeddingProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	var completer ai.Completer
	switch config.CompletionProvider {
	case ai.ProviderOpenAI:
		completer, err = openai.NewCompleter(config)
	case ai.ProviderOllama:
		completer, err = ollama.NewCompleter(config)
	case ai.ProviderAnthropic:
		completer, err = anthropic.NewCompleter(config)
	default:
		err = fmt.Errorf("unsupported completion provider %q", config.CompletionProvider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create completer: %w", err)
	}

	return ai.Compose(embedder, completer), nil
}
