package langchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/ragrelay/ai"
	"github.com/poiesic/ragrelay/core"
	"github.com/tmc/langchaingo/llms"
)

// ErrEmptyCompletion is returned when the model answers with no text.
var ErrEmptyCompletion = errors.New("model returned an empty completion")

// Completer implements ai.Completer on top of a langchaingo model.
type Completer struct {
	model       llms.Model
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

var _ ai.Completer = (*Completer)(nil)

// NewCompleter wraps a langchaingo model. Temperature and maxTokens are the
// defaults applied when a request leaves them zero.
func NewCompleter(model llms.Model, temperature float64, maxTokens int, component string) *Completer {
	return &Completer{
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      slog.Default().With("component", component),
	}
}

// Complete sends the messages to the model and returns the first choice.
func (c *Completer) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("%w: completion needs at least one message", core.ErrInvalidInput)
	}

	content := make([]llms.MessageContent, 0, len(req.Messages))
	for _, msg := range req.Messages {
		content = append(content, llms.TextParts(chatMessageType(msg.Role), msg.Content))
	}

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	opts := []llms.CallOption{llms.WithTemperature(temperature)}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}

	c.logger.Debug("requesting completion", "messages", len(content), "temperature", temperature, "maxTokens", maxTokens)
	response, err := c.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		c.logger.Error("failed to generate content", "err", err)
		return "", fmt.Errorf("%w: completion: %w", core.ErrUpstream, err)
	}

	if len(response.Choices) < 1 {
		return "", fmt.Errorf("%w: %w", core.ErrUpstream, ErrEmptyCompletion)
	}

	text := cleanCompletion(response.Choices[0].Content)
	if text == "" {
		return "", fmt.Errorf("%w: %w", core.ErrUpstream, ErrEmptyCompletion)
	}
	return text, nil
}

func chatMessageType(role ai.Role) llms.ChatMessageType {
	switch role {
	case ai.RoleSystem:
		return llms.ChatMessageTypeSystem
	case ai.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
