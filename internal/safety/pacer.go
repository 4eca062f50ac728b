package safety

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/xhs-agent/internal/config"
)

// Pacer spaces actions out the way a person would: a random pause between
// replies and a short thinking pause before each one.
type Pacer struct {
	enabled            bool
	delayMin, delayMax time.Duration
	thinkMin, thinkMax time.Duration
	sleep              func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a pacer from the safety settings. A disabled safety section disables pacing.
func NewPacer(cfg config.SafetyConfig) *Pacer {
	return &Pacer{
		enabled:  cfg.Enabled,
		delayMin: cfg.RandomDelayMin,
		delayMax: cfg.RandomDelayMax,
		thinkMin: cfg.ThinkPauseMin,
		thinkMax: cfg.ThinkPauseMax,
		sleep:    Sleep,
	}
}

// SetSleep replaces the sleep function, used by tests
func (p *Pacer) SetSleep(fn func(ctx context.Context, d time.Duration) error) {
	p.sleep = fn
}

// Between waits a random duration in [random_delay_min, random_delay_max] and returns it
func (p *Pacer) Between(ctx context.Context) (time.Duration, error) {
	if !p.enabled {
		return 0, nil
	}
	d := between(p.delayMin, p.delayMax)
	return d, p.sleep(ctx, d)
}

// Think waits a short random pause before an action
func (p *Pacer) Think(ctx context.Context) error {
	if !p.enabled {
		return nil
	}
	return p.sleep(ctx, between(p.thinkMin, p.thinkMax))
}

// NextAvailable is the latest time the next reply becomes possible after last
func (p *Pacer) NextAvailable(last time.Time) time.Time {
	return last.Add(p.delayMax)
}

// Sleep waits for d or until ctx is done
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}
