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


// Package ai provides abstractions for AI services used by ragrelay.
//
// This package defines interfaces for text embeddings and chat completion.
// Retrieval and generation code depends on these abstractions rather than
// on a particular model vendor.
//
// # Interfaces
//
//   - Embedder: Generates vector embeddings from text
//   - Completer: Produces chat completions from role-tagged messages
//   - AIProvider: Aggregates both services for initialization and shutdown
//
// # Implementation Packages
//
//   - ai/langchain: adapters from langchaingo models to Embedder and Completer
//   - ai/openai: OpenAI-compatible services (OpenAI, Ollama /v1, vLLM, LocalAI)
//   - ai/ollama: native Ollama API
//   - ai/anthropic: Anthropic chat completions
//   - ai/hashing: local feature-hashing embedder with no external service
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors (openai.NewEmbedder, ollama.NewCompleter, etc.) return
// INTERFACE types. Mock constructors return CONCRETE types so tests can
// inject behavior and assert call counts.
//
//	provider, err := openai.NewProvider(config)  // returns ai.AIProvider
//	mockLLM := mock.NewMockCompleter()           // returns *mock.MockCompleter
package ai
