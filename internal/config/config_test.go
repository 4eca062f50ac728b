package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "openai:\n  api_key: sk-test\n"))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.LLM.MaxAttempts)
	assert.Equal(t, time.Second, cfg.LLM.RetryDelay)
	assert.Equal(t, "https://api.deepseek.com/v1", cfg.OpenAI.BaseURL)
	assert.Equal(t, "deepseek-chat", cfg.OpenAI.Model)

	assert.Equal(t, 9, cfg.Safety.WorkingHoursStart)
	assert.Equal(t, 22, cfg.Safety.WorkingHoursEnd)
	assert.Equal(t, 10, cfg.Safety.MaxDailyReplies)
	assert.Equal(t, 300*time.Second, cfg.Safety.MinDelay)
	assert.Equal(t, 900*time.Second, cfg.Safety.RandomDelayMax)
	assert.Equal(t, 5, cfg.Safety.ErrorThreshold)
	assert.Equal(t, 10*time.Minute, cfg.Safety.ErrorWindow)

	assert.Equal(t, 5, cfg.Content.TopN)
	assert.Equal(t, 5, cfg.Content.Versions)
	assert.Equal(t, "confirm", cfg.Content.SendMode)
	assert.Equal(t, 5*time.Minute, cfg.Content.ConfirmTimeout)
	assert.Equal(t, 20, cfg.Sources.MaxTopics)
	assert.Len(t, cfg.Scheduler.RunCrons, 3)

	require.NoError(t, cfg.Validate())
}

func TestLoad_FileOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
llm:
  provider: anthropic
anthropic:
  api_key: key
safety:
  working_hours_start: 8
  working_hours_end: 20
  max_daily_replies: 3
  min_delay: 2m
sources:
  rss:
    enabled: true
    feeds:
      - name: beauty
        url: https://example.com/feed.xml
`))
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 8, cfg.Safety.WorkingHoursStart)
	assert.Equal(t, 20, cfg.Safety.WorkingHoursEnd)
	assert.Equal(t, 3, cfg.Safety.MaxDailyReplies)
	assert.Equal(t, 2*time.Minute, cfg.Safety.MinDelay)
	require.Len(t, cfg.Sources.RSS.Feeds, 1)
	assert.Equal(t, "beauty", cfg.Sources.RSS.Feeds[0].Name)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("XHS_OPENAI_API_KEY", "from-env")
	t.Setenv("XHS_CONTENT_SEND_MODE", "stage")
	cfg, err := Load(writeConfig(t, "logging:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.OpenAI.APIKey)
	assert.Equal(t, "stage", cfg.Content.SendMode)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_BrokenFile(t *testing.T) {
	_, err := Load(writeConfig(t, "safety: [unterminated"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func(t *testing.T) *Config {
		cfg, err := Load(writeConfig(t, "openai:\n  api_key: sk\n"))
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown provider", func(c *Config) { c.LLM.Provider = "gemini" }, "unknown llm.provider"},
		{"missing key", func(c *Config) { c.OpenAI.APIKey = "" }, "openai.api_key"},
		{"inverted hours", func(c *Config) { c.Safety.WorkingHoursStart = 22; c.Safety.WorkingHoursEnd = 9 }, "invalid working hours"},
		{"zero quota", func(c *Config) { c.Safety.MaxDailyReplies = 0 }, "max_daily_replies"},
		{"delay range", func(c *Config) { c.Safety.RandomDelayMin = time.Hour }, "random_delay_min"},
		{"send mode", func(c *Config) { c.Content.SendMode = "auto" }, "send_mode"},
		{"tracker", func(c *Config) { c.Tracker.Enabled = true }, "spreadsheet_id"},
		{"telegram", func(c *Config) { c.Notify.Telegram.Enabled = true }, "bot_token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestEnsureWorkspace(t *testing.T) {
	cfg, err := Load(writeConfig(t, "openai:\n  api_key: sk\n"))
	require.NoError(t, err)
	cfg.Workspace.Root = filepath.Join(t.TempDir(), "ws")

	require.NoError(t, cfg.EnsureWorkspace())
	for _, sub := range []string{"hot_topics", "analysis", "generated_content", "logs", "reports"} {
		info, err := os.Stat(filepath.Join(cfg.Workspace.Root, sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
