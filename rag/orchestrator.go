package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/ragrelay/ai"
	"github.com/poiesic/ragrelay/core"
)

// Request defaults.
const (
	DefaultLimit    = 3
	DefaultMinScore = 0.3
	DefaultWeight   = 0.7
)

// Retriever ranks documents for a query. search.Searcher satisfies it.
type Retriever interface {
	Search(ctx context.Context, query string, limit int, weight float64) ([]core.ScoredResult, error)
}

// Result is the outcome of one question.
type Result struct {
	Query    string              `json:"query"`
	Context  []core.ScoredResult `json:"context"`
	Response string              `json:"response"`
}

// Orchestrator couples retrieval with answer generation.
type Orchestrator struct {
	retriever    Retriever
	completer    ai.Completer
	systemPrompt string
	model        string
	temperature  float64
	maxTokens    int
	limit        int
	minScore     float64
	weight       float64
	logger       *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithSystemPrompt replaces DefaultSystemPrompt. Blank prompts are ignored.
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) error {
		if strings.TrimSpace(prompt) != "" {
			o.systemPrompt = prompt
		}
		return nil
	}
}

// WithModel overrides the completer's configured model.
func WithModel(model string) Option {
	return func(o *Orchestrator) error {
		o.model = model
		return nil
	}
}

// WithGeneration sets the default sampling temperature and token limit.
func WithGeneration(temperature float64, maxTokens int) Option {
	return func(o *Orchestrator) error {
		if temperature < 0 || temperature > 2 {
			return fmt.Errorf("%w: temperature must be between 0 and 2", core.ErrInvalidInput)
		}
		o.temperature = temperature
		o.maxTokens = maxTokens
		return nil
	}
}

// WithRetrieval sets the default document limit, minimum score and hybrid
// weight used when a request does not override them.
func WithRetrieval(limit int, minScore, weight float64) Option {
	return func(o *Orchestrator) error {
		if limit < 1 {
			return fmt.Errorf("%w: limit must be positive", core.ErrInvalidInput)
		}
		if err := core.ValidateWeight(weight); err != nil {
			return err
		}
		o.limit = limit
		o.minScore = minScore
		o.weight = weight
		return nil
	}
}

// NewOrchestrator creates an orchestrator over retriever and completer.
func NewOrchestrator(retriever Retriever, completer ai.Completer, opts ...Option) (*Orchestrator, error) {
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if completer == nil {
		return nil, ErrCompleterRequired
	}

	o := &Orchestrator{
		retriever:    retriever,
		completer:    completer,
		systemPrompt: DefaultSystemPrompt,
		temperature:  ai.DefaultTemperature,
		maxTokens:    ai.DefaultMaxTokens,
		limit:        DefaultLimit,
		minScore:     DefaultMinScore,
		weight:       DefaultWeight,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	o.logger = o.logger.With("component", "rag")

	return o, nil
}

// QueryOption adjusts a single request.
type QueryOption func(*query)

type query struct {
	limit       int
	minScore    float64
	weight      float64
	temperature float64
	maxTokens   int
	sessionID   string
}

// WithLimit sets how many documents are retrieved. Values <= 0 keep the default.
func WithLimit(limit int) QueryOption {
	return func(q *query) {
		if limit > 0 {
			q.limit = limit
		}
	}
}

// WithMinScore sets the score a document must exceed to be used as context.
func WithMinScore(minScore float64) QueryOption {
	return func(q *query) { q.minScore = minScore }
}

// WithWeight sets the semantic weight of the hybrid search.
func WithWeight(weight float64) QueryOption {
	return func(q *query) { q.weight = weight }
}

// WithTemperature overrides the sampling temperature for this request.
func WithTemperature(temperature float64) QueryOption {
	return func(q *query) { q.temperature = temperature }
}

// WithMaxTokens overrides the token limit for this request. Values <= 0 are ignored.
func WithMaxTokens(maxTokens int) QueryOption {
	return func(q *query) {
		if maxTokens > 0 {
			q.maxTokens = maxTokens
		}
	}
}

// WithSessionID tags log records of this request.
func WithSessionID(id string) QueryOption {
	return func(q *query) { q.sessionID = id }
}

func (o *Orchestrator) newQuery(opts []QueryOption) *query {
	q := &query{
		limit:       o.limit,
		minScore:    o.minScore,
		weight:      o.weight,
		temperature: o.temperature,
		maxTokens:   o.maxTokens,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Generate retrieves context for question and answers it.
func (o *Orchestrator) Generate(ctx context.Context, question string, opts ...QueryOption) (*Result, error) {
	results, err := o.Retrieve(ctx, question, opts...)
	if err != nil {
		return nil, err
	}

	response, err := o.Answer(ctx, question, results, opts...)
	if err != nil {
		return nil, err
	}

	return &Result{Query: question, Context: results, Response: response}, nil
}

// Retrieve returns the documents scoring strictly above the minimum score.
// Blank questions fail before any search.
func (o *Orchestrator) Retrieve(ctx context.Context, question string, opts ...QueryOption) ([]core.ScoredResult, error) {
	q := o.newQuery(opts)
	logger := o.logger.With("session_id", q.sessionID)
	logger.Debug("rag state", "state", "RECEIVED")

	if err := core.ValidateQuery(question); err != nil {
		logger.Debug("rag state", "state", "FAILED", "err", err)
		return nil, err
	}

	results, err := o.retriever.Search(ctx, question, q.limit, q.weight)
	if err != nil {
		logger.Debug("rag state", "state", "FAILED", "err", err)
		return nil, err
	}
	logger.Debug("rag state", "state", "CONTEXT_SEARCHED", "results", len(results))

	kept := make([]core.ScoredResult, 0, len(results))
	for _, r := range results {
		if r.Score > q.minScore {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// Answer generates a response grounded in results. With no results the
// fixed NoContextAnswer is returned without calling the model.
func (o *Orchestrator) Answer(ctx context.Context, question string, results []core.ScoredResult, opts ...QueryOption) (string, error) {
	q := o.newQuery(opts)
	logger := o.logger.With("session_id", q.sessionID)

	if len(results) == 0 {
		logger.Debug("rag state", "state", "NO_CONTEXT")
		logger.Debug("rag state", "state", "ANSWERED")
		return NoContextAnswer, nil
	}
	logger.Debug("rag state", "state", "CONTEXT_FOUND", "documents", len(results))

	req := ai.CompletionRequest{
		Messages: []ai.ChatMessage{
			ai.SystemMessage(o.systemPrompt),
			ai.UserMessage(BuildUserPrompt(BuildContext(results), question)),
		},
		Model:       o.model,
		Temperature: q.temperature,
		MaxTokens:   q.maxTokens,
	}
	logger.Debug("rag state", "state", "PROMPT_BUILT")

	answer, err := o.completer.Complete(ctx, req)
	if err != nil {
		logger.Debug("rag state", "state", "FAILED", "err", err)
		o.logger.Error("answer generation failed", "session_id", q.sessionID, "err", err)
		if errors.Is(err, core.ErrUpstream) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", core.ErrUpstream, err)
	}
	logger.Debug("rag state", "state", "LLM_CALLED")

	if strings.TrimSpace(answer) == "" {
		logger.Debug("rag state", "state", "FAILED")
		return "", fmt.Errorf("%w: language model returned an empty answer", core.ErrUpstream)
	}

	logger.Debug("rag state", "state", "ANSWERED")
	return AppendSources(strings.TrimSpace(answer), results), nil
}
