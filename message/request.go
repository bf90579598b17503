package message

import (
	"fmt"
	"strings"

	"github.com/poiesic/ragrelay/core"
)

// Request is a decoded, validated request payload. The concrete types are
// AddRequest, SearchRequest, DeleteRequest, RAGRequest, CompleteRequest
// and HealthRequest.
type Request interface {
	Type() Type
	Validate() error
	isRequest()
}

// AddRequest stores documents.
type AddRequest struct {
	Documents []DocumentInput `json:"documents"`
}

// SearchRequest runs a hybrid search.
type SearchRequest struct {
	Query  string   `json:"query"`
	Limit  int      `json:"limit,omitempty"`
	Weight *float64 `json:"weight,omitempty"`
}

// DeleteRequest removes documents by id.
type DeleteRequest struct {
	IDs []string `json:"ids"`
}

// RAGRequest asks a question answered from retrieved context.
type RAGRequest struct {
	Query       string   `json:"query"`
	Limit       int      `json:"limit,omitempty"`
	MinScore    *float64 `json:"min_score,omitempty"`
	Weight      *float64 `json:"weight,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

// CompleteRequest sends a prompt straight to the language model.
type CompleteRequest struct {
	Prompt       string   `json:"prompt"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	Model        string   `json:"model,omitempty"`
}

// HealthRequest asks for service status.
type HealthRequest struct{}

func (AddRequest) Type() Type      { return TypeEmbeddingsAdd }
func (SearchRequest) Type() Type   { return TypeEmbeddingsSearch }
func (DeleteRequest) Type() Type   { return TypeEmbeddingsDelete }
func (RAGRequest) Type() Type      { return TypeRAGQuery }
func (CompleteRequest) Type() Type { return TypeLLMComplete }
func (HealthRequest) Type() Type   { return TypeHealthCheck }

func (AddRequest) isRequest()      {}
func (SearchRequest) isRequest()   {}
func (DeleteRequest) isRequest()   {}
func (RAGRequest) isRequest()      {}
func (CompleteRequest) isRequest() {}
func (HealthRequest) isRequest()   {}

func (r AddRequest) Validate() error {
	if len(r.Documents) == 0 {
		return invalid("documents cannot be empty")
	}
	for i, doc := range r.Documents {
		if doc.ID != "" && strings.TrimSpace(doc.ID) == "" {
			return invalid("document %d: id is blank", i)
		}
	}
	return nil
}

func (r SearchRequest) Validate() error {
	if err := core.ValidateQuery(r.Query); err != nil {
		return err
	}
	if r.Limit < 0 {
		return invalid("limit cannot be negative")
	}
	if r.Weight != nil {
		return core.ValidateWeight(*r.Weight)
	}
	return nil
}

func (r DeleteRequest) Validate() error {
	if len(r.IDs) == 0 {
		return invalid("ids cannot be empty")
	}
	return nil
}

func (r RAGRequest) Validate() error {
	if err := core.ValidateQuery(r.Query); err != nil {
		return err
	}
	if r.Limit < 0 {
		return invalid("limit cannot be negative")
	}
	if r.Weight != nil {
		if err := core.ValidateWeight(*r.Weight); err != nil {
			return err
		}
	}
	return validateGeneration(r.Temperature, r.MaxTokens)
}

func (r CompleteRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return invalid("prompt cannot be empty")
	}
	return validateGeneration(r.Temperature, r.MaxTokens)
}

func (HealthRequest) Validate() error { return nil }

func validateGeneration(temperature *float64, maxTokens int) error {
	if temperature != nil && (*temperature < 0 || *temperature > 2) {
		return invalid("temperature must be between 0 and 2")
	}
	if maxTokens < 0 {
		return invalid("max_tokens cannot be negative")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{core.ErrInvalidInput}, args...)...)
}

// Decode validates msg and returns its typed request.
// Unknown types, response types and malformed payloads are InvalidInput.
func Decode(msg Message) (Request, error) {
	var req Request
	switch msg.Type {
	case TypeEmbeddingsAdd:
		var r AddRequest
		if err := msg.Payload(&r); err != nil {
			return nil, err
		}
		req = r
	case TypeEmbeddingsSearch:
		var r SearchRequest
		if err := msg.Payload(&r); err != nil {
			return nil, err
		}
		req = r
	case TypeEmbeddingsDelete:
		var r DeleteRequest
		if err := msg.Payload(&r); err != nil {
			return nil, err
		}
		req = r
	case TypeRAGQuery:
		var r RAGRequest
		if err := msg.Payload(&r); err != nil {
			return nil, err
		}
		req = r
	case TypeLLMComplete:
		var r CompleteRequest
		if err := msg.Payload(&r); err != nil {
			return nil, err
		}
		req = r
	case TypeHealthCheck:
		req = HealthRequest{}
	default:
		if msg.Type.IsResponse() {
			return nil, invalid("%s is a response type", msg.Type)
		}
		return nil, invalid("unknown message type %q", msg.Type)
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}
