package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/ragrelay/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func TestType_Classification(t *testing.T) {
	requests := []Type{TypeEmbeddingsAdd, TypeEmbeddingsSearch, TypeEmbeddingsDelete, TypeRAGQuery, TypeLLMComplete, TypeHealthCheck}
	responses := []Type{TypeEmbeddingsResponse, TypeSearchResponse, TypeRAGContext, TypeRAGResponse, TypeLLMResponse, TypeHealthCheckResponse, TypeError}

	for _, typ := range requests {
		assert.True(t, typ.IsRequest(), typ)
		assert.False(t, typ.IsResponse(), typ)
	}
	for _, typ := range responses {
		assert.True(t, typ.IsResponse(), typ)
		assert.False(t, typ.IsRequest(), typ)
	}
	assert.False(t, Type("bogus").IsRequest())
	assert.False(t, Type("bogus").IsResponse())
}

func TestDecode_Requests(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want Request
	}{
		{
			name: "add",
			msg:  Message{Type: TypeEmbeddingsAdd, Data: raw(`{"documents":[{"text":"hello","metadata":{"source":"a"}},{"id":"7","text":""}]}`)},
			want: AddRequest{Documents: []DocumentInput{
				{Text: "hello", Metadata: map[string]any{"source": "a"}},
				{ID: "7"},
			}},
		},
		{
			name: "search",
			msg:  Message{Type: TypeEmbeddingsSearch, Data: raw(`{"query":"go","limit":3}`)},
			want: SearchRequest{Query: "go", Limit: 3},
		},
		{
			name: "delete",
			msg:  Message{Type: TypeEmbeddingsDelete, Data: raw(`{"ids":["1","2"]}`)},
			want: DeleteRequest{IDs: []string{"1", "2"}},
		},
		{
			name: "rag",
			msg:  Message{Type: TypeRAGQuery, Data: raw(`{"query":"why?","max_tokens":10}`)},
			want: RAGRequest{Query: "why?", MaxTokens: 10},
		},
		{
			name: "complete",
			msg:  Message{Type: TypeLLMComplete, Data: raw(`{"prompt":"hi","system_prompt":"be brief"}`)},
			want: CompleteRequest{Prompt: "hi", SystemPrompt: "be brief"},
		},
		{
			name: "health without data",
			msg:  Message{Type: TypeHealthCheck},
			want: HealthRequest{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := Decode(tt.msg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, req)
			assert.Equal(t, tt.msg.Type, req.Type())
		})
	}
}

func TestDecode_OptionalFloats(t *testing.T) {
	req, err := Decode(Message{Type: TypeRAGQuery, Data: raw(`{"query":"q","min_score":0,"weight":1,"temperature":0.2}`)})
	require.NoError(t, err)

	rag := req.(RAGRequest)
	require.NotNil(t, rag.MinScore)
	assert.Equal(t, 0.0, *rag.MinScore)
	require.NotNil(t, rag.Weight)
	assert.Equal(t, 1.0, *rag.Weight)
	require.NotNil(t, rag.Temperature)
	assert.Equal(t, 0.2, *rag.Temperature)
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"unknown type", Message{Type: "teleport", Data: raw(`{}`)}},
		{"response type", Message{Type: TypeRAGResponse, Data: raw(`{}`)}},
		{"malformed json", Message{Type: TypeEmbeddingsSearch, Data: raw(`{"query":`)}},
		{"wrong field type", Message{Type: TypeEmbeddingsSearch, Data: raw(`{"query":42}`)}},
		{"empty query", Message{Type: TypeEmbeddingsSearch, Data: raw(`{"query":"  "}`)}},
		{"weight out of range", Message{Type: TypeEmbeddingsSearch, Data: raw(`{"query":"q","weight":1.5}`)}},
		{"negative limit", Message{Type: TypeRAGQuery, Data: raw(`{"query":"q","limit":-1}`)}},
		{"no documents", Message{Type: TypeEmbeddingsAdd, Data: raw(`{"documents":[]}`)}},
		{"blank document id", Message{Type: TypeEmbeddingsAdd, Data: raw(`{"documents":[{"id":" ","text":"x"}]}`)}},
		{"no ids", Message{Type: TypeEmbeddingsDelete}},
		{"empty rag query", Message{Type: TypeRAGQuery, Data: raw(`{"query":""}`)}},
		{"empty prompt", Message{Type: TypeLLMComplete, Data: raw(`{"prompt":""}`)}},
		{"temperature too high", Message{Type: TypeLLMComplete, Data: raw(`{"prompt":"x","temperature":3}`)}},
		{"negative max tokens", Message{Type: TypeLLMComplete, Data: raw(`{"prompt":"x","max_tokens":-5}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.msg)
			assert.ErrorIs(t, err, core.ErrInvalidInput)
		})
	}
}

func TestNew(t *testing.T) {
	msg, err := New(TypeSearchResponse, "s1", SearchResponse{Query: "q", Results: []core.ScoredResult{}})
	require.NoError(t, err)
	assert.Equal(t, TypeSearchResponse, msg.Type)
	assert.Equal(t, "s1", msg.SessionID)
	assert.JSONEq(t, `{"query":"q","results":[]}`, string(msg.Data))

	_, err = New(TypeLLMResponse, "s1", func() {})
	assert.Error(t, err)
}

func TestNewError(t *testing.T) {
	err := fmt.Errorf("%w: model timed out", core.ErrUpstream)
	msg := NewError("s9", err)
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "s9", msg.SessionID)

	var payload ErrorPayload
	require.NoError(t, msg.Payload(&payload))
	assert.Equal(t, "upstream failure: model timed out", payload.Error)
	assert.Equal(t, "upstream_failure", payload.Kind)

	msg = NewError("", errors.New("boom"))
	require.NoError(t, msg.Payload(&payload))
	assert.Equal(t, "internal", payload.Kind)
}

func TestMessage_JSON(t *testing.T) {
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(`{"type":"rag_query","data":{"query":"q"},"session_id":"abc"}`), &msg))
	assert.Equal(t, TypeRAGQuery, msg.Type)
	assert.Equal(t, "abc", msg.SessionID)
	assert.JSONEq(t, `{"query":"q"}`, string(msg.Data))
}

func TestFields(t *testing.T) {
	msg := Message{Type: TypeRAGQuery, Data: raw(`{"query":"q"}`), SessionID: "s1"}
	fields := ToFields(msg)
	assert.Equal(t, map[string]string{"type": "rag_query", "data": `{"query":"q"}`, "session_id": "s1"}, fields)

	back, err := FromFields(fields)
	require.NoError(t, err)
	assert.Equal(t, msg, back)

	t.Run("empty data", func(t *testing.T) {
		fields := ToFields(Message{Type: TypeHealthCheck})
		assert.Equal(t, "{}", fields[FieldData])

		back, err := FromFields(map[string]string{"type": "health_check"})
		require.NoError(t, err)
		assert.Nil(t, back.Data)
	})

	t.Run("missing type", func(t *testing.T) {
		back, err := FromFields(map[string]string{"session_id": "s2"})
		assert.ErrorIs(t, err, core.ErrInvalidInput)
		assert.Equal(t, "s2", back.SessionID)
	})

	t.Run("invalid data", func(t *testing.T) {
		_, err := FromFields(map[string]string{"type": "rag_query", "data": "{nope"})
		assert.ErrorIs(t, err, core.ErrInvalidInput)
	})
}
