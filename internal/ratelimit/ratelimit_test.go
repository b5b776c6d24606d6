package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("allows burst then denies", func(t *testing.T) {
		l := New(1, 3)
		for i := 0; i < 3; i++ {
			assert.True(t, l.Allow(), "request %d within burst", i+1)
		}
		assert.False(t, l.Allow())
	})

	t.Run("non-positive rate is unlimited", func(t *testing.T) {
		l := New(0, 0)
		for i := 0; i < 100; i++ {
			require.True(t, l.Allow())
		}
	})

	t.Run("burst below one is raised to one", func(t *testing.T) {
		l := New(0.5, 0)
		assert.True(t, l.Allow())
		assert.False(t, l.Allow())
	})
}

func TestLimiter_Wait(t *testing.T) {
	t.Run("returns when a token is available", func(t *testing.T) {
		l := New(100, 1)
		require.NoError(t, l.Wait(context.Background()))
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		l := New(0.01, 1)
		require.True(t, l.Allow())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		assert.Error(t, l.Wait(ctx))
	})
}

func TestLimiter_SetRate(t *testing.T) {
	l := New(0.01, 1)
	require.True(t, l.Allow())
	assert.False(t, l.Allow())

	l.SetRate(0)
	assert.True(t, l.Allow())
}

func TestNilLimiter(t *testing.T) {
	var l *Limiter
	assert.True(t, l.Allow())
	assert.NoError(t, l.Wait(context.Background()))
	assert.NotPanics(t, func() { l.SetRate(5) })
	assert.Equal(t, float64(0), l.Tokens())
}
