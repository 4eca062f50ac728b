package safety

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhs-agent/internal/config"
)

func TestPacer_Between(t *testing.T) {
	p := NewPacer(config.SafetyConfig{
		Enabled:        true,
		RandomDelayMin: 300 * time.Second,
		RandomDelayMax: 900 * time.Second,
		ThinkPauseMin:  time.Second,
		ThinkPauseMax:  3 * time.Second,
	})
	var slept []time.Duration
	p.SetSleep(func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	})

	for i := 0; i < 50; i++ {
		d, err := p.Between(context.Background())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, d, 300*time.Second)
		assert.LessOrEqual(t, d, 900*time.Second)
	}
	require.NoError(t, p.Think(context.Background()))
	require.Len(t, slept, 51)
	assert.GreaterOrEqual(t, slept[50], time.Second)
	assert.LessOrEqual(t, slept[50], 3*time.Second)

	last := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, last.Add(900*time.Second), p.NextAvailable(last))
}

func TestPacer_Disabled(t *testing.T) {
	p := NewPacer(config.SafetyConfig{RandomDelayMin: time.Hour, RandomDelayMax: 2 * time.Hour})
	p.SetSleep(func(context.Context, time.Duration) error {
		t.Fatal("disabled pacer must not sleep")
		return nil
	})
	d, err := p.Between(context.Background())
	require.NoError(t, err)
	assert.Zero(t, d)
	require.NoError(t, p.Think(context.Background()))
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	require.NoError(t, Sleep(context.Background(), time.Millisecond))
}
