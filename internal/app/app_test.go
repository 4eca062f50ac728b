package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhs-agent/internal/config"
	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/internal/storage"
	"github.com/xhs-agent/pkg/logger"
)

const topicsYAML = `
- title: How I stopped procrastinating
  url: https://www.xiaohongshu.com/explore/aaa
  body: Three tricks that finally worked for me
  likes: 5200
  collects: 800
  comments:
    - does this work for students?
- title: Morning routine for busy parents
  url: https://www.xiaohongshu.com/explore/bbb
  body: Simple steps
  likes: 300
`

const analysisJSON = `{"pain_points": ["no focus"], "commercial_value": 8,
"suggested_angles": ["personal story"],
"demands": [{"demand_type": "method", "description": "a simple system", "urgency": 7, "feasibility": 6}]}`

const repliesJSON = `[{"version": 1, "angle": "story", "content": "I tried the 2 minute rule too", "relevance": 8, "attractiveness": 7},
{"version": 2, "angle": "question", "content": "Which trick helped the most?", "relevance": 9, "attractiveness": 9}]`

func fakeLLM(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openai.ChatCompletionRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		prompt := req.Messages[len(req.Messages)-1].Content

		content := "I have nothing structured to say"
		switch {
		case strings.Contains(prompt, "Analyze the following trending note"):
			content = analysisJSON
		case strings.Contains(prompt, "different reply versions"):
			content = repliesJSON
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: content}}},
		})
	}))
}

func testConfig(t *testing.T, llmURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	topicsFile := filepath.Join(dir, "topics.yaml")
	require.NoError(t, os.WriteFile(topicsFile, []byte(topicsYAML), 0o600))

	return &config.Config{
		Database: config.DatabaseConfig{Enabled: true, Driver: "sqlite", DSN: filepath.Join(dir, "data", "xhs.db")},
		LLM:      config.LLMConfig{Provider: "openai", MaxAttempts: 1, RetryDelay: time.Millisecond},
		OpenAI:   config.OpenAIConfig{APIKey: "test", BaseURL: llmURL + "/v1", Model: "deepseek-chat", MaxTokens: 500},
		Sources: config.SourcesConfig{
			MaxTopics: 20,
			File:      config.FileConfig{Enabled: true, Paths: []string{topicsFile}},
		},
		RateLimit: config.RateLimitConfig{LLMRequestsPerMinute: 6000, PlatformRequestsPerMinute: 600},
		Safety: config.SafetyConfig{
			Enabled:           false,
			WorkingHoursStart: 0,
			WorkingHoursEnd:   24,
			MaxDailyReplies:   10,
			ErrorThreshold:    5,
			ErrorWindow:       10 * time.Minute,
		},
		Content: config.ContentConfig{
			TopN:           1,
			Versions:       2,
			SendMode:       "confirm",
			ConfirmTimeout: time.Second,
		},
		Workspace: config.WorkspaceConfig{
			Root:         filepath.Join(dir, "workspace"),
			HotTopicsDir: "hot_topics",
			AnalysisDir:  "analysis",
			ContentDir:   "generated_content",
			LogsDir:      "logs",
			ReportsDir:   "reports",
			SaveTopics:   true,
			SaveAnalysis: true,
			SaveReplies:  true,
		},
	}
}

func TestNew_StatusOnly(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	a, err := New(context.Background(), cfg, logger.Nop(), Options{SkipLLM: true})
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.DB)
	assert.Nil(t, a.Tracker)
	assert.Nil(t, a.Notifier)
	assert.Nil(t, a.Runner)
	assert.Len(t, a.Sink, 2)
	assert.Same(t, a.DB, a.History)
	assert.Len(t, a.Sources.GetSources(), 1)
	assert.DirExists(t, cfg.WorkspaceDir("reports"))
}

func TestNew_ReplaysTodaysEvents(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	ctx := context.Background()

	a, err := New(ctx, cfg, logger.Nop(), Options{SkipLLM: true})
	require.NoError(t, err)
	a.Gate.RecordOutcome(ctx, time.Now(), "earlier reply", nil)
	a.Gate.Pause(ctx, "manual")
	a.Close()

	b, err := New(ctx, cfg, logger.Nop(), Options{SkipLLM: true})
	require.NoError(t, err)
	defer b.Close()

	st := b.Gate.Status(time.Now())
	assert.Equal(t, 1, st.RepliesToday)
	// the pause state lives in memory and starts active
	assert.False(t, st.Paused)
}

func TestNew_RunStagesBestReply(t *testing.T) {
	srv := fakeLLM(t)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	ctx := context.Background()
	a, err := New(ctx, cfg, logger.Nop(), Options{Unattended: true, Out: &bytes.Buffer{}})
	require.NoError(t, err)
	defer a.Close()

	summary, err := a.Runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Collected)
	assert.Equal(t, 2, summary.Analyzed)
	assert.Equal(t, 1, summary.Generated)
	assert.Equal(t, 1, summary.Staged)
	assert.Equal(t, 0, summary.Failed)
	assert.FileExists(t, summary.ReportPath)

	staged := models.ReplyStatusStaged
	records, err := a.History.ListReplyRecords(ctx, storage.ReplyFilter{Status: &staged})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "https://www.xiaohongshu.com/explore/aaa", records[0].TopicURL)
	assert.Equal(t, 2, records[0].Version)
	assert.Equal(t, "Which trick helped the most?", records[0].Content)

	approved, err := a.Replier.Approve(ctx, records[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReplyStatusSent, approved.Status)
	assert.Equal(t, 1, a.Gate.Status(time.Now()).RepliesToday)

	jsonlRecord, err := a.Store.GetReplyRecord(ctx, records[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReplyStatusSent, jsonlRecord.Status)

	report, err := a.Report(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, report.Ranked, 2)
	assert.Equal(t, "How I stopped procrastinating", report.Ranked[0].Topic.Title)
	assert.Contains(t, report.Render(), "| How I stopped procrastinating | 2 | 2 | 9.0 | sent |")
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.LLM.Provider = "unknown"
	_, err := New(context.Background(), cfg, logger.Nop(), Options{})
	assert.ErrorContains(t, err, "unknown llm provider")
}
