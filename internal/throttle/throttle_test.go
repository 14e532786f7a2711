package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryThrottle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	th := NewMemory()
	th.now = func() time.Time { return now }

	ok, err := th.Allow(ctx, "verify:a@example.com", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = th.Allow(ctx, "verify:a@example.com", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = th.Allow(ctx, "verify:b@example.com", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Minute)
	ok, err = th.Allow(ctx, "verify:a@example.com", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "window elapsed")
}

func TestMemoryThrottle_ZeroWindow(t *testing.T) {
	th := NewMemory()
	for i := 0; i < 3; i++ {
		ok, err := th.Allow(context.Background(), "k", 0)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
