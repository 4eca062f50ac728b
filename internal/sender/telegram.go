package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xhs-agent/internal/config"
	"github.com/xhs-agent/pkg/ratelimit"
)

// maxMessage is the Telegram limit for a single message text
const maxMessage = 4096

// Telegram sends messages to a chat via bot API
type Telegram struct {
	apiURL   string
	botToken string
	chatID   string
	client   *http.Client
	limiter  *ratelimit.MultiLimiter
}

// NewTelegram registers bot token and chat identifier
func NewTelegram(cfg config.TelegramConfig, limiter *ratelimit.MultiLimiter) *Telegram {
	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	return &Telegram{
		apiURL:   strings.TrimSuffix(apiURL, "/"),
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		client:   &http.Client{Timeout: 5 * time.Second},
		limiter:  limiter,
	}
}

// Notify posts a plain text message to the chat
func (t *Telegram) Notify(ctx context.Context, text string) error {
	if t.botToken == "" || t.chatID == "" || t.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}
	if t.limiter != nil && t.limiter.Has(ratelimit.LimiterNotify) {
		if err := t.limiter.Wait(ctx, ratelimit.LimiterNotify); err != nil {
			return fmt.Errorf("rate limit error: %w", err)
		}
	}
	if r := []rune(text); len(r) > maxMessage {
		text = string(r[:maxMessage-3]) + "..."
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.botToken)
	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", text)
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	if resp.StatusCode != http.StatusOK || !body.OK {
		if body.Description != "" {
			return fmt.Errorf("telegram error: %s: %s", resp.Status, body.Description)
		}
		return fmt.Errorf("telegram error: %s", resp.Status)
	}
	return nil
}

var _ Notifier = (*Telegram)(nil)
