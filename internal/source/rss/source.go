package rss

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/xhs-agent/internal/config"
	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/internal/source"
	"github.com/xhs-agent/pkg/logger"
	"github.com/xhs-agent/pkg/ratelimit"
)

// maxAge drops feed items older than a week
const maxAge = 7 * 24 * time.Hour

// Source implements TopicSource for RSS feeds
type Source struct {
	name    string
	url     string
	parser  *gofeed.Parser
	limiter *ratelimit.MultiLimiter
	log     *logger.Logger
	now     func() time.Time
}

// New creates a new RSS source for a single feed
func New(feed config.RSSFeed, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Source {
	return &Source{
		name:    feed.Name,
		url:     feed.URL,
		parser:  gofeed.NewParser(),
		limiter: limiter,
		log:     log.WithSource("rss", feed.Name),
		now:     time.Now,
	}
}

// NewMultiple creates multiple RSS sources from config
func NewMultiple(cfg config.RSSConfig, limiter *ratelimit.MultiLimiter, log *logger.Logger) []*Source {
	sources := make([]*Source, 0, len(cfg.Feeds))
	for _, feed := range cfg.Feeds {
		sources = append(sources, New(feed, limiter, log))
	}
	return sources
}

// Name returns the source name
func (s *Source) Name() string {
	return s.name
}

// Type returns "rss"
func (s *Source) Type() string {
	return "rss"
}

// Fetch retrieves topics from the RSS feed
func (s *Source) Fetch(ctx context.Context, max int) ([]*models.Topic, error) {
	s.log.Debug().Str("url", s.url).Msg("Fetching RSS feed")

	if s.limiter != nil && s.limiter.Has(ratelimit.LimiterFeed) {
		if err := s.limiter.Wait(ctx, ratelimit.LimiterFeed); err != nil {
			return nil, fmt.Errorf("rate limit error: %w", err)
		}
	}

	feed, err := s.parser.ParseURLWithContext(s.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RSS feed %s: %w", s.name, err)
	}

	now := s.now()
	topics := make([]*models.Topic, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.PublishedParsed != nil && now.Sub(*item.PublishedParsed) > maxAge {
			continue
		}
		if item.Link == "" {
			continue
		}

		body := item.Description
		if body == "" {
			body = item.Content
		}
		topic := &models.Topic{
			Title:       cleanText(item.Title),
			Body:        cleanText(body),
			URL:         item.Link,
			Author:      author(item),
			Tags:        item.Categories,
			SourceType:  "rss",
			SourceName:  s.name,
			CollectedAt: now,
		}
		topic.ExternalID = source.GenerateExternalID(topic.SourceType, topic.URL)
		topics = append(topics, topic)

		if max > 0 && len(topics) >= max {
			break
		}
	}

	s.log.Info().
		Int("count", len(topics)).
		Str("feed", s.name).
		Msg("Fetched RSS topics")

	return topics, nil
}

// HealthCheck verifies the RSS feed is accessible
func (s *Source) HealthCheck(ctx context.Context) error {
	_, err := s.parser.ParseURLWithContext(s.url, ctx)
	return err
}

// cleanText strips markup and collapses whitespace
func cleanText(text string) string {
	if strings.ContainsRune(text, '<') {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(text)); err == nil {
			text = doc.Text()
		}
	}
	return strings.Join(strings.Fields(text), " ")
}

func author(item *gofeed.Item) string {
	if item.Author != nil && item.Author.Name != "" {
		return item.Author.Name
	}
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		return item.Authors[0].Name
	}
	return ""
}

// Ensure Source implements source.TopicSource
var _ source.TopicSource = (*Source)(nil)
