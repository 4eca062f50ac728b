package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// MultiLimiter manages multiple rate limiters for different services
type MultiLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewMultiLimiter creates a new multi-limiter
func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// AddLimiter adds a new rate limiter for a service
// requestsPerSecond: the rate limit (e.g., 10 means 10 requests per second)
// burst: maximum burst size
func (m *MultiLimiter) AddLimiter(name string, requestsPerSecond float64, burst int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[name] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Wait blocks until the limiter allows an event
func (m *MultiLimiter) Wait(ctx context.Context, name string) error {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return fmt.Errorf("limiter %s not found", name)
	}

	return limiter.Wait(ctx)
}

// Allow reports whether an event may happen now
func (m *MultiLimiter) Allow(name string) bool {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return false
	}

	return limiter.Allow()
}

// Reserve returns a reservation for a future event
func (m *MultiLimiter) Reserve(name string) (*rate.Reservation, error) {
	m.mu.RLock()
	limiter, ok := m.limiters[name]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("limiter %s not found", name)
	}

	return limiter.Reserve(), nil
}

// Has reports whether a limiter with the given name is registered
func (m *MultiLimiter) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.limiters[name]
	return ok
}

// Default rate limiter names
const (
	LimiterLLM      = "llm"
	LimiterPlatform = "platform"
	LimiterFeed     = "feed"
	LimiterNotify   = "notify"
)

// NewDefaultLimiter creates a limiter with default rate limits
func NewDefaultLimiter() *MultiLimiter {
	m := NewMultiLimiter()

	// LLM: 20 requests per minute, burst 3
	m.AddLimiter(LimiterLLM, 20.0/60, 3)

	// Platform pages: one request every 3 seconds, burst 2
	m.AddLimiter(LimiterPlatform, 1.0/3, 2)

	// Feeds: no strict limit, but be polite - 1 per second, burst 10
	m.AddLimiter(LimiterFeed, 1, 10)

	// Telegram bot API allows ~1 message per second per chat
	m.AddLimiter(LimiterNotify, 1, 1)

	return m
}

// NewPerMinute creates the default limiter with the LLM and platform rates overridden
// by requests-per-minute values. Non-positive values keep the defaults.
func NewPerMinute(llmPerMinute, platformPerMinute int) *MultiLimiter {
	m := NewDefaultLimiter()
	if llmPerMinute > 0 {
		m.AddLimiter(LimiterLLM, float64(llmPerMinute)/60, 3)
	}
	if platformPerMinute > 0 {
		m.AddLimiter(LimiterPlatform, float64(platformPerMinute)/60, 2)
	}
	return m
}
