package ai

import (
	"fmt"

	"github.com/xhs-agent/internal/config"
	"github.com/xhs-agent/pkg/logger"
	"github.com/xhs-agent/pkg/ratelimit"
)

// New builds the configured provider wrapped with the retry policy
func New(cfg *config.Config, limiter *ratelimit.MultiLimiter, log *logger.Logger) (*Retrying, error) {
	var base Completer
	switch cfg.LLM.Provider {
	case "anthropic":
		base = NewClient(cfg.Anthropic, limiter, log)
	case "openai":
		base = NewOpenAIClient(cfg.OpenAI, limiter, log)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
	return NewRetrying(base, cfg.LLM.MaxAttempts, cfg.LLM.RetryDelay, log), nil
}
