package message

import (
	"encoding/json"
	"fmt"

	"github.com/poiesic/ragrelay/core"
)

// Type names a message kind.
type Type string

// Request types.
const (
	TypeEmbeddingsAdd    Type = "embeddings_add"
	TypeEmbeddingsSearch Type = "embeddings_search"
	TypeEmbeddingsDelete Type = "embeddings_delete"
	TypeRAGQuery         Type = "rag_query"
	TypeLLMComplete      Type = "llm_complete"
	TypeHealthCheck      Type = "health_check"
)

// Response types.
const (
	TypeEmbeddingsResponse  Type = "embeddings_response"
	TypeSearchResponse      Type = "search_response"
	TypeRAGContext          Type = "rag_context"
	TypeRAGResponse         Type = "rag_response"
	TypeLLMResponse         Type = "llm_response"
	TypeHealthCheckResponse Type = "health_check_response"
	TypeError               Type = "error"
)

// IsResponse reports whether t is produced by the service rather than consumed by it.
func (t Type) IsResponse() bool {
	switch t {
	case TypeEmbeddingsResponse, TypeSearchResponse, TypeRAGContext,
		TypeRAGResponse, TypeLLMResponse, TypeHealthCheckResponse, TypeError:
		return true
	}
	return false
}

// IsRequest reports whether t is a known request type.
func (t Type) IsRequest() bool {
	switch t {
	case TypeEmbeddingsAdd, TypeEmbeddingsSearch, TypeEmbeddingsDelete,
		TypeRAGQuery, TypeLLMComplete, TypeHealthCheck:
		return true
	}
	return false
}

// Message is the envelope carried on every channel.
type Message struct {
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data"`
	SessionID string          `json:"session_id"`
}

// New builds a message with payload encoded as its data.
func New(t Type, sessionID string, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	return Message{Type: t, Data: data, SessionID: sessionID}, nil
}

// NewError builds an error message for err, tagged with its kind.
func NewError(sessionID string, err error) Message {
	data, _ := json.Marshal(ErrorPayload{Error: err.Error(), Kind: core.KindOf(err)})
	return Message{Type: TypeError, Data: data, SessionID: sessionID}
}

// Payload decodes the data of msg into v.
func (m Message) Payload(v any) error {
	data := m.Data
	if len(data) == 0 || string(data) == "null" {
		data = []byte("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: malformed %s payload: %w", core.ErrInvalidInput, m.Type, err)
	}
	return nil
}

// DocumentInput is one document of an add request.
type DocumentInput struct {
	ID       string         `json:"id,omitempty"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AddResponse reports the ids assigned by an add.
type AddResponse struct {
	IDs   []string `json:"ids"`
	Count int      `json:"count"`
}

// DeleteResponse reports how many documents a delete removed.
type DeleteResponse struct {
	Deleted int `json:"deleted"`
	Count   int `json:"count"`
}

// SearchResponse carries ranked results.
type SearchResponse struct {
	Query   string              `json:"query"`
	Results []core.ScoredResult `json:"results"`
}

// RAGContext carries the documents a RAG answer will be grounded in.
type RAGContext struct {
	Query   string              `json:"query"`
	Context []core.ScoredResult `json:"context"`
}

// RAGResponse carries a generated answer.
type RAGResponse struct {
	Query    string              `json:"query"`
	Context  []core.ScoredResult `json:"context"`
	Response string              `json:"response"`
}

// LLMResponse carries a direct completion.
type LLMResponse struct {
	Response string `json:"response"`
}

// HealthResponse reports service state.
type HealthResponse struct {
	Status     string            `json:"status"`
	Documents  int               `json:"documents"`
	Components map[string]string `json:"components"`
}

// ErrorPayload is the data of an error message.
type ErrorPayload struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}
