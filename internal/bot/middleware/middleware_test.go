package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow(1))
	require.True(t, rl.Allow(1))
	require.False(t, rl.Allow(1))
	// Лимит считается на пользователя
	require.True(t, rl.Allow(2))

	now = now.Add(time.Minute + time.Second)
	require.True(t, rl.Allow(1))

	now = now.Add(2 * time.Minute)
	rl.sweep()
	require.Empty(t, rl.hits)
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0, time.Minute)
	defer rl.Close()
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow(1))
	}
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "абв", truncate("абв", 5))
	require.Equal(t, "аб...", truncate("абв", 2))
}

func TestRecoverFromPanic(t *testing.T) {
	require.NotPanics(t, func() {
		defer RecoverFromPanic()
		panic("boom")
	})
}
