package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/go-pkgz/repeater/v2"

	"github.com/xhs-agent/pkg/logger"
)

// Retrying decorates a Completer with bounded exponential backoff.
// With the defaults the waits are 1s and 2s between three attempts.
type Retrying struct {
	next     Completer
	attempts int
	delay    time.Duration
	log      *logger.Logger
	onRetry  func(attempt int, err error)
}

// NewRetrying wraps next. attempts < 1 is treated as 1, delay is the first backoff step.
func NewRetrying(next Completer, attempts int, delay time.Duration, log *logger.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Retrying{next: next, attempts: attempts, delay: delay, log: log.WithComponent("ai-retry")}
}

// OnRetry registers a hook called before every repeated attempt
func (r *Retrying) OnRetry(fn func(attempt int, err error)) {
	r.onRetry = fn
}

// Complete calls the wrapped completer until it succeeds, attempts run out or ctx is done
func (r *Retrying) Complete(ctx context.Context, systemPrompt, userMessage string) (string, error) {
	var (
		result  string
		attempt int
		lastErr error
	)

	rep := repeater.NewBackoff(r.attempts, r.delay,
		repeater.WithBackoffType(repeater.BackoffExponential),
		repeater.WithJitter(0),
	)
	err := rep.Do(ctx, func() error {
		attempt++
		if attempt > 1 {
			r.log.Warn().Err(lastErr).Int("attempt", attempt).Int("max_attempts", r.attempts).Msg("Retrying LLM request")
			if r.onRetry != nil {
				r.onRetry(attempt, lastErr)
			}
		}
		out, err := r.next.Complete(ctx, systemPrompt, userMessage)
		if err != nil {
			lastErr = err
			return err
		}
		result = out
		return nil
	}, context.Canceled, context.DeadlineExceeded)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("llm request aborted: %w", ctxErr)
		}
		return "", fmt.Errorf("llm request failed after %d attempts: %w", attempt, err)
	}
	return result, nil
}
