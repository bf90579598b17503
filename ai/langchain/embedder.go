package langchain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/ragrelay/ai"
	"github.com/poiesic/ragrelay/core"
	"github.com/tmc/langchaingo/embeddings"
)

// Embedder implements ai.Embedder on top of a langchaingo embedding client.
type Embedder struct {
	embedder embeddings.Embedder
	logger   *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder wraps a langchaingo embedding client (openai.LLM, ollama.LLM, ...).
// Newlines are stripped before embedding.
func NewEmbedder(client embeddings.EmbedderClient, component string) (*Embedder, error) {
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder: embedder,
		logger:   slog.Default().With("component", component),
	}, nil
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("generating embedding for single text", "length", len(text))

	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, fmt.Errorf("%w: embedding: %w", core.ErrUpstream, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: embedding: got %d vectors for %d texts", core.ErrUpstream, len(vectors), len(texts))
	}

	return vectors, nil
}
