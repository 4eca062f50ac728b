package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiLimiter_AllowAndBurst(t *testing.T) {
	m := NewMultiLimiter()
	m.AddLimiter("svc", 0.001, 2)

	assert.True(t, m.Allow("svc"))
	assert.True(t, m.Allow("svc"))
	assert.False(t, m.Allow("svc"), "burst exhausted")
	assert.False(t, m.Allow("unknown"))
}

func TestMultiLimiter_WaitUnknown(t *testing.T) {
	m := NewMultiLimiter()
	err := m.Wait(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")

	_, err = m.Reserve("missing")
	require.Error(t, err)
}

func TestMultiLimiter_WaitHonoursContext(t *testing.T) {
	m := NewMultiLimiter()
	m.AddLimiter("slow", 0.001, 1)
	require.True(t, m.Allow("slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, m.Wait(ctx, "slow"))
}

func TestNewDefaultLimiter(t *testing.T) {
	m := NewDefaultLimiter()
	for _, name := range []string{LimiterLLM, LimiterPlatform, LimiterFeed, LimiterNotify} {
		assert.True(t, m.Has(name), name)
	}
	assert.False(t, m.Has("unknown"))
}

func TestNewPerMinute(t *testing.T) {
	m := NewPerMinute(6000, 0)
	for _, name := range []string{LimiterLLM, LimiterPlatform, LimiterFeed, LimiterNotify} {
		assert.True(t, m.Has(name), name)
	}
	assert.True(t, m.Allow(LimiterLLM))
	assert.True(t, m.Allow(LimiterLLM))
	assert.True(t, m.Allow(LimiterLLM))
}
