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


// Package router dispatches decoded messages to the search, ingestion and
// generation components and turns every outcome into response messages.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/poiesic/ragrelay/ai"
	"github.com/poiesic/ragrelay/core"
	"github.com/poiesic/ragrelay/message"
	"github.com/poiesic/ragrelay/rag"
	"github.com/poiesic/ragrelay/search"
)

// Documents mutates and counts the corpus. ingestion.Pipeline satisfies it.
type Documents interface {
	Add(ctx context.Context, docs []*core.Document) ([]core.ID, error)
	Delete(ctx context.Context, ids ...core.ID) (int, error)
	Count(ctx context.Context) (int, error)
}

// Searcher ranks documents. search.Searcher satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, limit int, weight float64) ([]core.ScoredResult, error)
}

// Answerer retrieves context and answers from it. rag.Orchestrator satisfies it.
type Answerer interface {
	Retrieve(ctx context.Context, question string, opts ...rag.QueryOption) ([]core.ScoredResult, error)
	Answer(ctx context.Context, question string, results []core.ScoredResult, opts ...rag.QueryOption) (string, error)
}

type handlerFunc func(ctx context.Context, sessionID string, req message.Request) ([]message.Message, error)

// Router maps request types to handlers.
type Router struct {
	documents Documents
	searcher  Searcher
	answerer  Answerer
	completer ai.Completer

	systemPrompt string
	temperature  float64
	maxTokens    int
	components   map[string]string

	handlers map[message.Type]handlerFunc
	logger   *slog.Logger
}

// Option configures a Router.
type Option func(*Router) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// WithSystemPrompt sets the system prompt for completions that do not supply one.
func WithSystemPrompt(prompt string) Option {
	return func(r *Router) error {
		r.systemPrompt = prompt
		return nil
	}
}

// WithGeneration sets the default temperature and token limit for completions.
func WithGeneration(temperature float64, maxTokens int) Option {
	return func(r *Router) error {
		r.temperature = temperature
		r.maxTokens = maxTokens
		return nil
	}
}

// WithComponents adds static component descriptions to health responses.
func WithComponents(components map[string]string) Option {
	return func(r *Router) error {
		for k, v := range components {
			r.components[k] = v
		}
		return nil
	}
}

// New creates a router over the given components.
func New(documents Documents, searcher Searcher, answerer Answerer, completer ai.Completer, opts ...Option) (*Router, error) {
	if documents == nil {
		return nil, ErrDocumentsRequired
	}
	if searcher == nil {
		return nil, ErrSearcherRequired
	}
	if answerer == nil {
		return nil, ErrAnswererRequired
	}
	if completer == nil {
		return nil, ErrCompleterRequired
	}

	r := &Router{
		documents:    documents,
		searcher:     searcher,
		answerer:     answerer,
		completer:    completer,
		systemPrompt: "You are a helpful AI assistant.",
		temperature:  ai.DefaultTemperature,
		maxTokens:    ai.DefaultMaxTokens,
		components:   map[string]string{},
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "router")

	r.handlers = map[message.Type]handlerFunc{
		message.TypeEmbeddingsAdd:    r.handleAdd,
		message.TypeEmbeddingsSearch: r.handleSearch,
		message.TypeEmbeddingsDelete: r.handleDelete,
		message.TypeRAGQuery:         r.handleRAG,
		message.TypeLLMComplete:      r.handleComplete,
		message.TypeHealthCheck:      r.handleHealth,
	}

	return r, nil
}

// Handle processes msg and returns its responses, all carrying msg's session id.
// Response-typed messages yield nothing. Failures of any kind, including
// handler panics, yield a single error message.
func (r *Router) Handle(ctx context.Context, msg message.Message) (out []message.Message) {
	if msg.Type.IsResponse() {
		r.logger.Debug("skipping response message", "type", msg.Type, "session_id", msg.SessionID)
		return nil
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("handler panicked", "type", msg.Type, "session_id", msg.SessionID,
				"panic", p, "stack", string(debug.Stack()))
			out = []message.Message{message.NewError(msg.SessionID, fmt.Errorf("%w: internal error handling %s", core.ErrUpstream, msg.Type))}
		}
	}()

	req, err := message.Decode(msg)
	if err != nil {
		r.logger.Debug("rejected message", "type", msg.Type, "session_id", msg.SessionID, "err", err)
		return []message.Message{message.NewError(msg.SessionID, err)}
	}

	handler, ok := r.handlers[req.Type()]
	if !ok {
		return []message.Message{message.NewError(msg.SessionID, fmt.Errorf("%w: no handler for %s", core.ErrInvalidInput, req.Type()))}
	}

	out, err = handler(ctx, msg.SessionID, req)
	if err != nil {
		r.logger.Warn("request failed", "type", msg.Type, "session_id", msg.SessionID, "kind", core.KindOf(err), "err", err)
		return []message.Message{message.NewError(msg.SessionID, err)}
	}
	return out
}

func (r *Router) handleAdd(ctx context.Context, sessionID string, req message.Request) ([]message.Message, error) {
	add := req.(message.AddRequest)

	docs := make([]*core.Document, len(add.Documents))
	for i, in := range add.Documents {
		docs[i] = &core.Document{ID: in.ID, Text: in.Text, Metadata: in.Metadata}
	}

	ids, err := r.documents.Add(ctx, docs)
	if err != nil {
		return nil, err
	}
	count, err := r.documents.Count(ctx)
	if err != nil {
		return nil, err
	}

	return single(message.TypeEmbeddingsResponse, sessionID, message.AddResponse{IDs: ids, Count: count})
}

func (r *Router) handleDelete(ctx context.Context, sessionID string, req message.Request) ([]message.Message, error) {
	del := req.(message.DeleteRequest)

	deleted, err := r.documents.Delete(ctx, del.IDs...)
	if err != nil {
		return nil, err
	}
	count, err := r.documents.Count(ctx)
	if err != nil {
		return nil, err
	}

	return single(message.TypeEmbeddingsResponse, sessionID, message.DeleteResponse{Deleted: deleted, Count: count})
}

func (r *Router) handleSearch(ctx context.Context, sessionID string, req message.Request) ([]message.Message, error) {
	s := req.(message.SearchRequest)

	weight := search.DefaultWeight
	if s.Weight != nil {
		weight = *s.Weight
	}

	results, err := r.searcher.Search(ctx, s.Query, s.Limit, weight)
	if err != nil {
		return nil, err
	}

	return single(message.TypeSearchResponse, sessionID, message.SearchResponse{Query: s.Query, Results: results})
}

// handleRAG computes context and answer before emitting anything, so a
// failure produces only an error and never a dangling context message.
func (r *Router) handleRAG(ctx context.Context, sessionID string, req message.Request) ([]message.Message, error) {
	q := req.(message.RAGRequest)

	opts := []rag.QueryOption{rag.WithSessionID(sessionID), rag.WithLimit(q.Limit), rag.WithMaxTokens(q.MaxTokens)}
	if q.MinScore != nil {
		opts = append(opts, rag.WithMinScore(*q.MinScore))
	}
	if q.Weight != nil {
		opts = append(opts, rag.WithWeight(*q.Weight))
	}
	if q.Temperature != nil {
		opts = append(opts, rag.WithTemperature(*q.Temperature))
	}

	results, err := r.answerer.Retrieve(ctx, q.Query, opts...)
	if err != nil {
		return nil, err
	}
	answer, err := r.answerer.Answer(ctx, q.Query, results, opts...)
	if err != nil {
		return nil, err
	}

	contextMsg, err := message.New(message.TypeRAGContext, sessionID, message.RAGContext{Query: q.Query, Context: results})
	if err != nil {
		return nil, err
	}
	answerMsg, err := message.New(message.TypeRAGResponse, sessionID, message.RAGResponse{Query: q.Query, Context: results, Response: answer})
	if err != nil {
		return nil, err
	}
	return []message.Message{contextMsg, answerMsg}, nil
}

func (r *Router) handleComplete(ctx context.Context, sessionID string, req message.Request) ([]message.Message, error) {
	c := req.(message.CompleteRequest)

	system := c.SystemPrompt
	if system == "" {
		system = r.systemPrompt
	}
	temperature := r.temperature
	if c.Temperature != nil {
		temperature = *c.Temperature
	}
	maxTokens := r.maxTokens
	if c.MaxTokens > 0 {
		maxTokens = c.MaxTokens
	}

	var messages []ai.ChatMessage
	if system != "" {
		messages = append(messages, ai.SystemMessage(system))
	}
	messages = append(messages, ai.UserMessage(c.Prompt))

	text, err := r.completer.Complete(ctx, ai.CompletionRequest{
		Messages:    messages,
		Model:       c.Model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, upstream(err)
	}

	return single(message.TypeLLMResponse, sessionID, message.LLMResponse{Response: text})
}

func (r *Router) handleHealth(ctx context.Context, sessionID string, _ message.Request) ([]message.Message, error) {
	return single(message.TypeHealthCheckResponse, sessionID, r.Health(ctx))
}

// Health reports the document count and component status.
func (r *Router) Health(ctx context.Context) message.HealthResponse {
	health := message.HealthResponse{
		Status:     "healthy",
		Components: make(map[string]string, len(r.components)+1),
	}
	for k, v := range r.components {
		health.Components[k] = v
	}

	count, err := r.documents.Count(ctx)
	if err != nil {
		health.Status = "degraded"
		health.Components["documents"] = err.Error()
	} else {
		health.Documents = count
		health.Components["documents"] = "ok"
	}
	return health
}

func single(t message.Type, sessionID string, payload any) ([]message.Message, error) {
	msg, err := message.New(t, sessionID, payload)
	if err != nil {
		return nil, err
	}
	return []message.Message{msg}, nil
}

func upstream(err error) error {
	if core.KindOf(err) != "internal" {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrUpstream, err)
}
