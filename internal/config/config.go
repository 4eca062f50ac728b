package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Safety    SafetyConfig    `mapstructure:"safety"`
	Content   ContentConfig   `mapstructure:"content"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Server    ServerConfig    `mapstructure:"server"`
}

// DatabaseConfig holds the optional history database settings
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Driver  string `mapstructure:"driver"` // sqlite
	DSN     string `mapstructure:"dsn"`    // Connection string
}

// LLMConfig selects the language model provider and the retry policy around it
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai (any compatible endpoint) or anthropic
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"` // first backoff step, doubled per attempt
}

// AnthropicConfig holds Claude API settings
type AnthropicConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// OpenAIConfig holds settings for OpenAI compatible chat endpoints (DeepSeek by default)
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// SourcesConfig holds all topic source configurations
type SourcesConfig struct {
	MaxTopics int        `mapstructure:"max_topics"`
	Page      PageConfig `mapstructure:"page"`
	RSS       RSSConfig  `mapstructure:"rss"`
	File      FileConfig `mapstructure:"file"`
}

// PageConfig describes HTML explore pages and the selectors used to read note cards
type PageConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ExploreURLs []string      `mapstructure:"explore_urls"`
	UserAgent   string        `mapstructure:"user_agent"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Selectors   PageSelectors `mapstructure:"selectors"`
}

// PageSelectors are CSS selectors relative to a note card (Card is relative to the page)
type PageSelectors struct {
	Card     string `mapstructure:"card"`
	Title    string `mapstructure:"title"`
	Link     string `mapstructure:"link"`
	Body     string `mapstructure:"body"`
	Author   string `mapstructure:"author"`
	Likes    string `mapstructure:"likes"`
	Comments string `mapstructure:"comments"`
	Collects string `mapstructure:"collects"`
	Comment  string `mapstructure:"comment"` // comment items on a single note page
}

// RSSConfig holds RSS feed settings
type RSSConfig struct {
	Enabled bool      `mapstructure:"enabled"`
	Feeds   []RSSFeed `mapstructure:"feeds"`
}

// RSSFeed represents a single RSS feed
type RSSFeed struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// FileConfig points at YAML or JSON files with prepared topics
type FileConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Paths   []string `mapstructure:"paths"`
}

// SchedulerConfig holds scheduler settings
type SchedulerConfig struct {
	RunCrons   []string `mapstructure:"run_crons"`   // full workflow windows
	ReportCron string   `mapstructure:"report_cron"` // daily report
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	LLMRequestsPerMinute      int `mapstructure:"llm_requests_per_minute"`
	PlatformRequestsPerMinute int `mapstructure:"platform_requests_per_minute"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// SafetyConfig holds the rate gate and pacing settings
type SafetyConfig struct {
	Enabled            bool          `mapstructure:"enabled"` // random delays and thinking pauses
	WorkingHoursStart  int           `mapstructure:"working_hours_start"` // inclusive hour (0-23)
	WorkingHoursEnd    int           `mapstructure:"working_hours_end"`   // exclusive hour (1-24)
	MaxDailyReplies    int           `mapstructure:"max_daily_replies"`
	TargetDailyReplies int           `mapstructure:"target_daily_replies"`
	MinDelay           time.Duration `mapstructure:"min_delay"`
	RandomDelayMin     time.Duration `mapstructure:"random_delay_min"`
	RandomDelayMax     time.Duration `mapstructure:"random_delay_max"`
	ThinkPauseMin      time.Duration `mapstructure:"think_pause_min"`
	ThinkPauseMax      time.Duration `mapstructure:"think_pause_max"`
	ErrorThreshold     int           `mapstructure:"error_threshold"`
	ErrorWindow        time.Duration `mapstructure:"error_window"`
}

// ContentConfig holds analysis and reply generation settings
type ContentConfig struct {
	TopN            int           `mapstructure:"top_n"`
	Versions        int           `mapstructure:"versions"`
	AssessQuality   bool          `mapstructure:"assess_quality"`
	AnalysisSpacing time.Duration `mapstructure:"analysis_spacing"`
	SendMode        string        `mapstructure:"send_mode"` // confirm or stage
	ConfirmTimeout  time.Duration `mapstructure:"confirm_timeout"`
	Persona         string        `mapstructure:"persona"`
}

// WorkspaceConfig holds the on-disk layout of the JSONL workspace
type WorkspaceConfig struct {
	Root         string `mapstructure:"root"`
	HotTopicsDir string `mapstructure:"hot_topics_dir"`
	AnalysisDir  string `mapstructure:"analysis_dir"`
	ContentDir   string `mapstructure:"content_dir"`
	LogsDir      string `mapstructure:"logs_dir"`
	ReportsDir   string `mapstructure:"reports_dir"`
	SaveTopics   bool   `mapstructure:"save_topics"`
	SaveAnalysis bool   `mapstructure:"save_analysis"`
	SaveReplies  bool   `mapstructure:"save_replies"`
}

// TrackerConfig holds Google Sheets tracker settings
type TrackerConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	SpreadsheetID      string `mapstructure:"spreadsheet_id"`
	TopicsSheet        string `mapstructure:"topics_sheet"`
	RepliesSheet       string `mapstructure:"replies_sheet"`
	CredentialsFile    string `mapstructure:"credentials_file"`
	ServiceAccountJSON string `mapstructure:"service_account_json"`
}

// NotifyConfig holds reviewer notification settings
type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig holds Telegram bot settings
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIURL   string `mapstructure:"api_url"`
}

// ServerConfig holds the control server settings
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".xhs-agent"))
		}
	}

	v.SetEnvPrefix("XHS")
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	for key, env := range map[string]string{
		"llm.provider":                 "XHS_LLM_PROVIDER",
		"anthropic.api_key":            "XHS_ANTHROPIC_API_KEY",
		"openai.base_url":              "XHS_OPENAI_BASE_URL",
		"openai.model":                 "XHS_OPENAI_MODEL",
		"database.enabled":             "XHS_DATABASE_ENABLED",
		"database.dsn":                 "XHS_DATABASE_DSN",
		"workspace.root":               "XHS_WORKSPACE_ROOT",
		"tracker.enabled":              "XHS_TRACKER_ENABLED",
		"tracker.spreadsheet_id":       "XHS_TRACKER_SPREADSHEET_ID",
		"tracker.credentials_file":     "XHS_TRACKER_CREDENTIALS_FILE",
		"tracker.service_account_json": "XHS_TRACKER_SERVICE_ACCOUNT_JSON",
		"notify.telegram.enabled":      "XHS_TELEGRAM_ENABLED",
		"notify.telegram.bot_token":    "XHS_TELEGRAM_BOT_TOKEN",
		"notify.telegram.chat_id":      "XHS_TELEGRAM_CHAT_ID",
		"safety.enabled":               "XHS_SAFETY_ENABLED",
		"content.send_mode":            "XHS_CONTENT_SEND_MODE",
	} {
		_ = v.BindEnv(key, env)
	}
	// DeepSeek keys are commonly exported under their own name
	_ = v.BindEnv("openai.api_key", "XHS_OPENAI_API_KEY", "DEEPSEEK_API_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/xhs.db")

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.retry_delay", "1s")

	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 2000)
	v.SetDefault("anthropic.temperature", 0.8)

	v.SetDefault("openai.base_url", "https://api.deepseek.com/v1")
	v.SetDefault("openai.model", "deepseek-chat")
	v.SetDefault("openai.max_tokens", 2000)
	v.SetDefault("openai.temperature", 0.8)

	v.SetDefault("sources.max_topics", 20)
	v.SetDefault("sources.page.enabled", false)
	v.SetDefault("sources.page.user_agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	v.SetDefault("sources.page.timeout", "20s")
	v.SetDefault("sources.page.selectors.card", "section.note-item")
	v.SetDefault("sources.page.selectors.title", ".title")
	v.SetDefault("sources.page.selectors.link", "a")
	v.SetDefault("sources.page.selectors.body", ".desc")
	v.SetDefault("sources.page.selectors.author", ".author .name")
	v.SetDefault("sources.page.selectors.likes", ".like-wrapper .count")
	v.SetDefault("sources.page.selectors.comments", ".chat-wrapper .count")
	v.SetDefault("sources.page.selectors.collects", ".collect-wrapper .count")
	v.SetDefault("sources.page.selectors.comment", ".comment-item .content")
	v.SetDefault("sources.rss.enabled", false)
	v.SetDefault("sources.file.enabled", false)

	v.SetDefault("scheduler.run_crons", []string{
		"0 10 * * *", // morning
		"0 15 * * *", // afternoon
		"0 20 * * *", // evening
	})
	v.SetDefault("scheduler.report_cron", "30 22 * * *")

	v.SetDefault("rate_limit.llm_requests_per_minute", 20)
	v.SetDefault("rate_limit.platform_requests_per_minute", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("safety.enabled", true)
	v.SetDefault("safety.working_hours_start", 9)
	v.SetDefault("safety.working_hours_end", 22)
	v.SetDefault("safety.max_daily_replies", 10)
	v.SetDefault("safety.target_daily_replies", 5)
	v.SetDefault("safety.min_delay", "300s")
	v.SetDefault("safety.random_delay_min", "300s")
	v.SetDefault("safety.random_delay_max", "900s")
	v.SetDefault("safety.think_pause_min", "1s")
	v.SetDefault("safety.think_pause_max", "3s")
	v.SetDefault("safety.error_threshold", 5)
	v.SetDefault("safety.error_window", "10m")

	v.SetDefault("content.top_n", 5)
	v.SetDefault("content.versions", 5)
	v.SetDefault("content.assess_quality", true)
	v.SetDefault("content.analysis_spacing", "1s")
	v.SetDefault("content.send_mode", "confirm")
	v.SetDefault("content.confirm_timeout", "300s")
	v.SetDefault("content.persona", "A friendly, practical creator who shares first-hand experience and never hard-sells.")

	v.SetDefault("workspace.root", "./workspace")
	v.SetDefault("workspace.hot_topics_dir", "hot_topics")
	v.SetDefault("workspace.analysis_dir", "analysis")
	v.SetDefault("workspace.content_dir", "generated_content")
	v.SetDefault("workspace.logs_dir", "logs")
	v.SetDefault("workspace.reports_dir", "reports")
	v.SetDefault("workspace.save_topics", true)
	v.SetDefault("workspace.save_analysis", true)
	v.SetDefault("workspace.save_replies", true)

	v.SetDefault("tracker.enabled", false)
	v.SetDefault("tracker.topics_sheet", "Topics")
	v.SetDefault("tracker.replies_sheet", "Replies")

	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.telegram.api_url", "https://api.telegram.org")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen", ":8080")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("openai.api_key is required for provider openai")
		}
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("anthropic.api_key is required for provider anthropic")
		}
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	if c.LLM.MaxAttempts < 1 {
		return fmt.Errorf("llm.max_attempts must be positive")
	}

	s := c.Safety
	if s.WorkingHoursStart < 0 || s.WorkingHoursEnd > 24 || s.WorkingHoursStart >= s.WorkingHoursEnd {
		return fmt.Errorf("invalid working hours [%d, %d)", s.WorkingHoursStart, s.WorkingHoursEnd)
	}
	if s.MaxDailyReplies < 1 {
		return fmt.Errorf("safety.max_daily_replies must be positive")
	}
	if s.MinDelay < 0 {
		return fmt.Errorf("safety.min_delay must not be negative")
	}
	if s.RandomDelayMin > s.RandomDelayMax {
		return fmt.Errorf("safety.random_delay_min %s exceeds random_delay_max %s", s.RandomDelayMin, s.RandomDelayMax)
	}
	if s.ErrorThreshold < 1 || s.ErrorWindow <= 0 {
		return fmt.Errorf("safety.error_threshold and safety.error_window must be positive")
	}

	if c.Content.TopN < 1 || c.Content.Versions < 1 {
		return fmt.Errorf("content.top_n and content.versions must be positive")
	}
	if c.Content.SendMode != "confirm" && c.Content.SendMode != "stage" {
		return fmt.Errorf("unknown content.send_mode %q", c.Content.SendMode)
	}
	if c.Content.ConfirmTimeout <= 0 {
		return fmt.Errorf("content.confirm_timeout must be positive")
	}

	if c.Workspace.Root == "" {
		return fmt.Errorf("workspace.root is required")
	}
	if c.Database.Enabled && c.Database.Driver != "sqlite" {
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.Tracker.Enabled && c.Tracker.SpreadsheetID == "" {
		return fmt.Errorf("tracker.spreadsheet_id is required when tracker is enabled")
	}
	if c.Notify.Telegram.Enabled && (c.Notify.Telegram.BotToken == "" || c.Notify.Telegram.ChatID == "") {
		return fmt.Errorf("notify.telegram.bot_token and chat_id are required when telegram is enabled")
	}
	return nil
}

// WorkspaceDir returns the absolute-or-relative path of a workspace sub directory
func (c *Config) WorkspaceDir(sub string) string {
	return filepath.Join(c.Workspace.Root, sub)
}

// EnsureWorkspace creates all workspace directories
func (c *Config) EnsureWorkspace() error {
	for _, sub := range []string{
		c.Workspace.HotTopicsDir,
		c.Workspace.AnalysisDir,
		c.Workspace.ContentDir,
		c.Workspace.LogsDir,
		c.Workspace.ReportsDir,
	} {
		if err := os.MkdirAll(c.WorkspaceDir(sub), 0o755); err != nil {
			return fmt.Errorf("create workspace dir %s: %w", sub, err)
		}
	}
	return nil
}
