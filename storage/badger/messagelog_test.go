package badger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/ragrelay/core"
	"github.com/poiesic/ragrelay/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMessageLog(t *testing.T) *MessageLog {
	t.Helper()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	log := NewMessageLog(backend)
	t.Cleanup(func() {
		log.Close()
		backend.Close()
	})
	return log
}

func TestMessageLog_PublishReadAck(t *testing.T) {
	log := newTestMessageLog(t)
	ctx := context.Background()

	require.NoError(t, log.CreateGroup(ctx, "rag_stream", "g"))
	require.NoError(t, log.CreateGroup(ctx, "rag_stream", "g"), "creating twice is not an error")

	for i := 0; i < 3; i++ {
		_, err := log.Publish(ctx, "rag_stream", map[string]string{"n": fmt.Sprint(i)})
		require.NoError(t, err)
	}

	entries, err := log.Read(ctx, "rag_stream", "g", "c1", 2, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "0", entries[0].Fields["n"])
	assert.Equal(t, "1", entries[1].Fields["n"])

	pending, err := log.Pending(ctx, "rag_stream", "g", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{entries[0].ID, entries[1].ID}, pending)

	t.Run("next read continues after cursor", func(t *testing.T) {
		more, err := log.Read(ctx, "rag_stream", "g", "c2", 10, 0)
		require.NoError(t, err)
		require.Len(t, more, 1)
		assert.Equal(t, "2", more[0].Fields["n"])

		all, err := log.Pending(ctx, "rag_stream", "g", "")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("ack clears pending", func(t *testing.T) {
		acked, err := log.Ack(ctx, "rag_stream", "g", entries[0].ID, entries[1].ID)
		require.NoError(t, err)
		assert.Equal(t, 2, acked)

		acked, err = log.Ack(ctx, "rag_stream", "g", entries[0].ID)
		require.NoError(t, err)
		assert.Equal(t, 0, acked)

		pending, err := log.Pending(ctx, "rag_stream", "g", "c1")
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("empty read returns nothing", func(t *testing.T) {
		none, err := log.Read(ctx, "rag_stream", "g", "c1", 10, 0)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("independent groups see every entry", func(t *testing.T) {
		require.NoError(t, log.CreateGroup(ctx, "rag_stream", "other"))
		got, err := log.Read(ctx, "rag_stream", "other", "c", 10, 0)
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})
}

func TestMessageLog_BlockingRead(t *testing.T) {
	log := newTestMessageLog(t)
	ctx := context.Background()
	require.NoError(t, log.CreateGroup(ctx, "llm_stream", "g"))

	t.Run("times out", func(t *testing.T) {
		start := time.Now()
		entries, err := log.Read(ctx, "llm_stream", "g", "c", 1, 50*time.Millisecond)
		require.NoError(t, err)
		assert.Empty(t, entries)
		assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	})

	t.Run("wakes on publish", func(t *testing.T) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			_, _ = log.Publish(ctx, "llm_stream", map[string]string{"k": "v"})
		}()

		entries, err := log.Read(ctx, "llm_stream", "g", "c", 1, 5*time.Second)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "v", entries[0].Fields["k"])
	})

	t.Run("honours cancellation", func(t *testing.T) {
		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := log.Read(cctx, "llm_stream", "g", "c", 1, 5*time.Second)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestMessageLog_ConcurrentConsumers(t *testing.T) {
	log := newTestMessageLog(t)
	ctx := context.Background()
	require.NoError(t, log.CreateGroup(ctx, "embeddings_stream", "g"))

	const total = 50
	for i := 0; i < total; i++ {
		_, err := log.Publish(ctx, "embeddings_stream", map[string]string{"n": fmt.Sprint(i)})
		require.NoError(t, err)
	}

	var mu sync.Mutex
	seen := map[string]int{}
	var wg sync.WaitGroup
	for c := 0; c < 3; c++ {
		wg.Add(1)
		go func(consumer string) {
			defer wg.Done()
			for {
				entries, err := log.Read(ctx, "embeddings_stream", "g", consumer, 4, 0)
				if !assert.NoError(t, err) || len(entries) == 0 {
					return
				}
				mu.Lock()
				for _, e := range entries {
					seen[e.ID]++
				}
				mu.Unlock()
			}
		}(fmt.Sprintf("c%d", c))
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "entry %s delivered more than once", id)
	}
}

func TestMessageLog_Errors(t *testing.T) {
	log := newTestMessageLog(t)
	ctx := context.Background()

	_, err := log.Read(ctx, "nochan", "nogroup", "c", 1, 0)
	assert.ErrorIs(t, err, storage.ErrGroupNotFound)

	_, err = log.Publish(ctx, "bad:name", nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	err = log.CreateGroup(ctx, "", "g")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = log.Ack(ctx, "chan", "g", "not-an-id")
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestEntryIDs(t *testing.T) {
	assert.Equal(t, "17-0", formatEntryID(17))
	seq, err := parseEntryID("17-0")
	require.NoError(t, err)
	assert.Equal(t, uint64(17), seq)
}
