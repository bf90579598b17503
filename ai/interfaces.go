package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The same text must always produce the same vector for a given model.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer produces a chat completion from a sequence of role-tagged messages.
// Implementations must be thread-safe for concurrent use.
type Completer interface {
	// Complete sends the request to the language model and returns the text
	// of its first choice. An empty completion is reported as an error.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Completer returns the chat completion service.
	Completer() Completer

	// Close releases resources held by the provider and its services.
	Close() error
}
