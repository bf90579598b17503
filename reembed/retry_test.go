package reembed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff(t *testing.T) {
	tests := []struct {
		name         string
		failures     int
		maxAttempts  int
		wantErr      bool
		wantAttempts int
	}{
		{"first try", 0, 3, false, 1},
		{"eventual success", 2, 5, false, 3},
		{"all attempts fail", 10, 3, true, 3},
		{"zero attempts", 0, 0, true, 0},
		{"negative attempts", 0, -1, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			errTemp := errors.New("temporary")
			err := RetryWithBackoff(context.Background(), func() error {
				attempts++
				if attempts <= tt.failures {
					return errTemp
				}
				return nil
			}, tt.maxAttempts, time.Millisecond)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantAttempts, attempts)
		})
	}
}

func TestRetryWithBackoff_ReturnsLastError(t *testing.T) {
	persistent := errors.New("persistent")
	err := RetryWithBackoff(context.Background(), func() error { return persistent }, 2, time.Millisecond)
	assert.Equal(t, persistent, err)

	err = RetryWithBackoff(context.Background(), func() error { return nil }, 0, time.Millisecond)
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}

func TestRetryWithBackoff_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := RetryWithBackoff(ctx, func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	}, 10, 5*time.Millisecond)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts)
}

func TestRetryWithBackoff_DelaysGrow(t *testing.T) {
	var stamps []time.Time
	err := RetryWithBackoff(context.Background(), func() error {
		stamps = append(stamps, time.Now())
		if len(stamps) < 4 {
			return errors.New("error")
		}
		return nil
	}, 5, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, stamps, 4)

	first := stamps[1].Sub(stamps[0])
	third := stamps[3].Sub(stamps[2])
	assert.GreaterOrEqual(t, first, 10*time.Millisecond)
	assert.GreaterOrEqual(t, third, 40*time.Millisecond)
}
