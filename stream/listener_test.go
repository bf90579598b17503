package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/ragrelay/ai/mock"
	"github.com/poiesic/ragrelay/core"
	"github.com/poiesic/ragrelay/index"
	"github.com/poiesic/ragrelay/ingestion"
	"github.com/poiesic/ragrelay/message"
	"github.com/poiesic/ragrelay/rag"
	"github.com/poiesic/ragrelay/router"
	"github.com/poiesic/ragrelay/search"
	"github.com/poiesic/ragrelay/storage"
	"github.com/poiesic/ragrelay/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoHandler answers every request with a health response and records what it saw.
type echoHandler struct {
	mu   sync.Mutex
	seen []message.Message
}

func (h *echoHandler) Handle(_ context.Context, msg message.Message) []message.Message {
	h.mu.Lock()
	h.seen = append(h.seen, msg)
	h.mu.Unlock()

	resp, _ := message.New(message.TypeHealthCheckResponse, msg.SessionID, message.HealthResponse{Status: "healthy"})
	return []message.Message{resp}
}

func (h *echoHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func setupLog(t *testing.T) (storage.DocumentRepository, storage.MessageLog) {
	t.Helper()
	docRepo, msgLog, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		msgLog.Close()
		docRepo.Close()
		backend.Close()
	})
	return docRepo, msgLog
}

func fastOptions(channels ...string) []Option {
	return []Option{
		WithChannels(channels...),
		WithRead(10, 20*time.Millisecond),
		WithPollInterval(5 * time.Millisecond),
		WithBackoff(time.Millisecond, 8*time.Millisecond),
	}
}

func publish(t *testing.T, log storage.MessageLog, channel string, msg message.Message) string {
	t.Helper()
	id, err := log.Publish(context.Background(), channel, message.ToFields(msg))
	require.NoError(t, err)
	return id
}

// observer reads everything published on a channel through its own group.
type observer struct {
	t       *testing.T
	log     storage.MessageLog
	channel string
	seen    []message.Message
}

func newObserver(t *testing.T, log storage.MessageLog, channel string) *observer {
	require.NoError(t, log.CreateGroup(context.Background(), channel, "observer"))
	return &observer{t: t, log: log, channel: channel}
}

func (o *observer) poll() {
	entries, err := o.log.Read(context.Background(), o.channel, "observer", "watcher", 100, 0)
	require.NoError(o.t, err)
	for _, e := range entries {
		msg, err := message.FromFields(e.Fields)
		require.NoError(o.t, err)
		o.seen = append(o.seen, msg)
	}
}

func (o *observer) responses() []message.Message {
	var out []message.Message
	for _, msg := range o.seen {
		if msg.Type.IsResponse() {
			out = append(out, msg)
		}
	}
	return out
}

func (o *observer) waitForResponses(n int) []message.Message {
	require.Eventually(o.t, func() bool {
		o.poll()
		return len(o.responses()) >= n
	}, 5*time.Second, 10*time.Millisecond)
	return o.responses()
}

func TestNewListener(t *testing.T) {
	_, log := setupLog(t)

	_, err := NewListener(nil, &echoHandler{})
	assert.Equal(t, ErrMessageLogRequired, err)

	_, err = NewListener(log, nil)
	assert.Equal(t, ErrHandlerRequired, err)

	_, err = NewListener(log, &echoHandler{}, WithChannels())
	assert.Equal(t, ErrNoChannels, err)

	_, err = NewListener(log, &echoHandler{}, WithBackoff(time.Second, time.Millisecond))
	assert.Error(t, err)

	l, err := NewListener(log, &echoHandler{})
	require.NoError(t, err)
	assert.Equal(t, []string{"embeddings_stream", "rag_stream", "llm_stream"}, l.Channels())
	assert.Equal(t, DefaultGroup, l.Group())
	assert.Equal(t, DefaultConsumer, l.Consumer())
}

func TestListener_StartStop(t *testing.T) {
	_, log := setupLog(t)
	l, err := NewListener(log, &echoHandler{}, fastOptions("a", "b")...)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, l.Stop(ctx), "stopping a stopped listener is a no-op")

	require.NoError(t, l.Start(ctx))
	assert.True(t, l.Running())
	assert.ErrorIs(t, l.Start(ctx), ErrAlreadyRunning)

	require.NoError(t, l.Stop(ctx))
	assert.False(t, l.Running())

	require.NoError(t, l.Start(ctx), "a stopped listener can be restarted")
	require.NoError(t, l.Stop(ctx))
}

func TestListener_HandlesAndPublishesOnSameChannel(t *testing.T) {
	_, log := setupLog(t)
	handler := &echoHandler{}
	l, err := NewListener(log, handler, fastOptions("llm_stream")...)
	require.NoError(t, err)
	obs := newObserver(t, log, "llm_stream")

	ctx := context.Background()
	require.NoError(t, l.Start(ctx))
	t.Cleanup(func() { _ = l.Stop(ctx) })

	publish(t, log, "llm_stream", message.Message{Type: message.TypeHealthCheck, SessionID: "h1"})

	responses := obs.waitForResponses(1)
	assert.Equal(t, message.TypeHealthCheckResponse, responses[0].Type)
	assert.Equal(t, "h1", responses[0].SessionID)

	require.Eventually(t, func() bool {
		pending, err := log.Pending(ctx, "llm_stream", DefaultGroup, "")
		return err == nil && len(pending) == 0
	}, 5*time.Second, 10*time.Millisecond)

	// The listener reads back its own response but never handles it.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, handler.count())
}

func TestListener_SkipsResponseMessages(t *testing.T) {
	_, log := setupLog(t)
	handler := &echoHandler{}
	l, err := NewListener(log, handler, fastOptions("rag_stream")...)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, l.Start(ctx))
	t.Cleanup(func() { _ = l.Stop(ctx) })

	publish(t, log, "rag_stream", message.Message{Type: message.TypeRAGResponse, SessionID: "r"})
	publish(t, log, "rag_stream", message.Message{Type: message.TypeError, SessionID: "r"})
	publish(t, log, "rag_stream", message.Message{Type: message.TypeHealthCheck, SessionID: "after"})

	// Entries are handled in order, so once the request is seen the
	// response-typed entries before it have been consumed.
	require.Eventually(t, func() bool { return handler.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		pending, err := log.Pending(ctx, "rag_stream", DefaultGroup, "")
		return err == nil && len(pending) == 0
	}, 5*time.Second, 10*time.Millisecond)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	assert.Equal(t, "after", handler.seen[0].SessionID)
}

func TestListener_MalformedEntryYieldsError(t *testing.T) {
	_, log := setupLog(t)
	l, err := NewListener(log, &echoHandler{}, fastOptions("embeddings_stream")...)
	require.NoError(t, err)
	obs := newObserver(t, log, "embeddings_stream")

	ctx := context.Background()
	require.NoError(t, l.Start(ctx))
	t.Cleanup(func() { _ = l.Stop(ctx) })

	_, err = log.Publish(ctx, "embeddings_stream", map[string]string{"data": "{}", "session_id": "bad"})
	require.NoError(t, err)

	responses := obs.waitForResponses(1)
	assert.Equal(t, message.TypeError, responses[0].Type)
	assert.Equal(t, "bad", responses[0].SessionID)
}

func TestListener_StopAcknowledgesPending(t *testing.T) {
	_, log := setupLog(t)
	ctx := context.Background()
	channel := "rag_stream"

	l, err := NewListener(log, &echoHandler{}, fastOptions(channel)...)
	require.NoError(t, err)

	// Claim entries as this consumer without acknowledging them,
	// as a crashed previous run would have.
	require.NoError(t, log.CreateGroup(ctx, channel, DefaultGroup))
	for i := 0; i < 3; i++ {
		publish(t, log, channel, message.Message{Type: message.TypeHealthCheck, SessionID: "stale"})
	}
	claimed, err := log.Read(ctx, channel, DefaultGroup, DefaultConsumer, 10, 0)
	require.NoError(t, err)
	require.Len(t, claimed, 3)

	pending, err := log.Pending(ctx, channel, DefaultGroup, DefaultConsumer)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	require.NoError(t, l.Start(ctx))
	require.NoError(t, l.Stop(ctx))

	pending, err = log.Pending(ctx, channel, DefaultGroup, DefaultConsumer)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

// failingLog fails every read and counts attempts.
type failingLog struct {
	storage.MessageLog
	reads atomic.Int32
}

func (f *failingLog) Read(context.Context, string, string, string, int, time.Duration) ([]storage.LogEntry, error) {
	f.reads.Add(1)
	return nil, errors.New("connection reset")
}

func TestListener_ReadErrorsBackOffAndContinue(t *testing.T) {
	_, log := setupLog(t)
	failing := &failingLog{MessageLog: log}

	l, err := NewListener(failing, &echoHandler{}, fastOptions("x")...)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, l.Start(ctx))
	require.Eventually(t, func() bool { return failing.reads.Load() >= 3 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, l.Stop(ctx))
	assert.False(t, l.Running())
}

func TestNextBackoff(t *testing.T) {
	var delays []time.Duration
	var d time.Duration
	for i := 0; i < 7; i++ {
		d = nextBackoff(d, time.Second, 30*time.Second)
		delays = append(delays, d)
	}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second,
	}, delays)
}

func TestListener_RAGQuerySessionScenario(t *testing.T) {
	docRepo, log := setupLog(t)
	ctx := context.Background()

	embedder := mock.NewMockEmbedder()
	vectors, err := index.NewVectorIndex(embedder)
	require.NoError(t, err)
	catalog := index.NewCatalog(vectors)
	t.Cleanup(catalog.Close)

	pipeline, err := ingestion.NewPipeline(docRepo, catalog)
	require.NoError(t, err)
	_, err = pipeline.Add(ctx, []*core.Document{
		{Text: "The relay routes requests between the index and the model.", Metadata: map[string]any{"source": "manual"}},
	})
	require.NoError(t, err)

	searcher, err := search.NewSearcher(docRepo, catalog)
	require.NoError(t, err)
	completer := mock.NewMockCompleter()
	completer.Response = "It routes requests."
	orchestrator, err := rag.NewOrchestrator(searcher, completer)
	require.NoError(t, err)
	r, err := router.New(pipeline, searcher, orchestrator, completer)
	require.NoError(t, err)

	l, err := NewListener(log, r, fastOptions(ChannelRAG)...)
	require.NoError(t, err)
	obs := newObserver(t, log, ChannelRAG)

	require.NoError(t, l.Start(ctx))
	t.Cleanup(func() { _ = l.Stop(ctx) })

	minScore := 0.0
	req, err := message.New(message.TypeRAGQuery, "s1", message.RAGRequest{Query: "What does the relay route?", MinScore: &minScore})
	require.NoError(t, err)
	publish(t, log, ChannelRAG, req)

	responses := obs.waitForResponses(2)
	require.Len(t, responses, 2)
	assert.Equal(t, message.TypeRAGContext, responses[0].Type)
	assert.Equal(t, message.TypeRAGResponse, responses[1].Type)
	for _, resp := range responses {
		assert.Equal(t, "s1", resp.SessionID)
	}

	var answer message.RAGResponse
	require.NoError(t, responses[1].Payload(&answer))
	assert.Equal(t, "It routes requests.\n\nSources:\n- manual", answer.Response)

	// Nothing else gets published for other sessions.
	time.Sleep(50 * time.Millisecond)
	obs.poll()
	assert.Len(t, obs.responses(), 2)
}
