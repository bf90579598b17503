package index

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog_PropagatesErrors(t *testing.T) {
	c := NewCatalog(newTestVectorIndex(t, axisEmbedder("cat")))
	boom := errors.New("boom")

	assert.ErrorIs(t, c.View(func() error { return boom }), boom)
	assert.ErrorIs(t, c.Update(func() error { return boom }), boom)
	assert.NotNil(t, c.Lexical)
}

func TestCatalog_UpdateExcludesReaders(t *testing.T) {
	c := NewCatalog(newTestVectorIndex(t, axisEmbedder("cat")))

	var (
		mu     sync.Mutex
		events []string
	)
	record := func(e string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	}

	inUpdate := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Update(func() error {
			close(inUpdate)
			record("update-start")
			time.Sleep(50 * time.Millisecond)
			record("update-end")
			return nil
		})
	}()

	<-inUpdate
	require.NoError(t, c.View(func() error {
		record("view")
		return nil
	}))
	<-done

	assert.Equal(t, []string{"update-start", "update-end", "view"}, events)
}
