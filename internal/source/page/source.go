package page

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/xhs-agent/internal/config"
	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/internal/source"
	"github.com/xhs-agent/pkg/logger"
	"github.com/xhs-agent/pkg/ratelimit"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxComments      = 20
)

var countExpr = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(万|w|W|千|k|K)?`)

// Source collects notes from explore pages using CSS selectors
type Source struct {
	name      string
	urls      []string
	client    *http.Client
	userAgent string
	sel       config.PageSelectors
	limiter   *ratelimit.MultiLimiter
	log       *logger.Logger
}

// New creates a page source. A nil client gets one with cfg.Timeout.
func New(cfg config.PageConfig, client *http.Client, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Source {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Source{
		name:      "explore",
		urls:      cfg.ExploreURLs,
		client:    client,
		userAgent: ua,
		sel:       cfg.Selectors,
		limiter:   limiter,
		log:       log.WithSource("page", "explore"),
	}
}

// Name returns the source name
func (s *Source) Name() string {
	return s.name
}

// Type returns "page"
func (s *Source) Type() string {
	return "page"
}

// Fetch walks the explore pages and returns the note cards found on them
func (s *Source) Fetch(ctx context.Context, max int) ([]*models.Topic, error) {
	if len(s.urls) == 0 {
		return nil, fmt.Errorf("no explore urls configured")
	}

	var topics []*models.Topic
	seen := map[string]struct{}{}
	for _, pageURL := range s.urls {
		doc, err := s.fetchDocument(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("explore page %s: %w", pageURL, err)
		}

		for _, t := range s.extractCards(doc, pageURL) {
			if _, ok := seen[t.URL]; ok {
				continue
			}
			seen[t.URL] = struct{}{}
			topics = append(topics, t)
			if max > 0 && len(topics) >= max {
				s.log.Info().Int("count", len(topics)).Msg("Fetched explore topics")
				return topics, nil
			}
		}
	}

	s.log.Info().Int("count", len(topics)).Msg("Fetched explore topics")
	return topics, nil
}

// FetchURL collects a single note page including its visible comments
func (s *Source) FetchURL(ctx context.Context, noteURL string) (*models.Topic, error) {
	doc, err := s.fetchDocument(ctx, noteURL)
	if err != nil {
		return nil, fmt.Errorf("note page %s: %w", noteURL, err)
	}

	title := firstText(doc.Selection, s.sel.Title)
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if title == "" {
		return nil, fmt.Errorf("note page %s: no title found", noteURL)
	}

	t := &models.Topic{
		Title:  title,
		Body:   firstText(doc.Selection, s.sel.Body),
		URL:    noteURL,
		Author: firstText(doc.Selection, s.sel.Author),
		Engagement: models.Engagement{
			Likes:    ParseCount(firstText(doc.Selection, s.sel.Likes)),
			Comments: ParseCount(firstText(doc.Selection, s.sel.Comments)),
			Collects: ParseCount(firstText(doc.Selection, s.sel.Collects)),
		},
		SourceType:  "page",
		SourceName:  "note",
		CollectedAt: time.Now(),
	}
	if s.sel.Comment != "" {
		doc.Find(s.sel.Comment).EachWithBreak(func(_ int, c *goquery.Selection) bool {
			if text := strings.TrimSpace(c.Text()); text != "" {
				t.CommentsSample = append(t.CommentsSample, text)
			}
			return len(t.CommentsSample) < maxComments
		})
	}
	t.ExternalID = source.GenerateExternalID(t.SourceType, t.URL)
	return t, nil
}

// HealthCheck verifies the first explore page is reachable
func (s *Source) HealthCheck(ctx context.Context) error {
	if len(s.urls) == 0 {
		return fmt.Errorf("no explore urls configured")
	}
	_, err := s.fetchDocument(ctx, s.urls[0])
	return err
}

func (s *Source) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if s.limiter != nil && s.limiter.Has(ratelimit.LimiterPlatform) {
		if err := s.limiter.Wait(ctx, ratelimit.LimiterPlatform); err != nil {
			return nil, fmt.Errorf("rate limit error: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (s *Source) extractCards(doc *goquery.Document, pageURL string) []*models.Topic {
	base, _ := url.Parse(pageURL)
	now := time.Now()

	var topics []*models.Topic
	doc.Find(s.sel.Card).Each(func(_ int, card *goquery.Selection) {
		title := firstText(card, s.sel.Title)
		href, _ := card.Find(s.sel.Link).First().Attr("href")
		if title == "" || href == "" {
			return
		}
		link := resolve(base, href)

		t := &models.Topic{
			Title:  title,
			Body:   firstText(card, s.sel.Body),
			URL:    link,
			Author: firstText(card, s.sel.Author),
			Engagement: models.Engagement{
				Likes:    ParseCount(firstText(card, s.sel.Likes)),
				Comments: ParseCount(firstText(card, s.sel.Comments)),
				Collects: ParseCount(firstText(card, s.sel.Collects)),
			},
			SourceType:  "page",
			SourceName:  s.name,
			CollectedAt: now,
		}
		t.ExternalID = source.GenerateExternalID(t.SourceType, t.URL)
		topics = append(topics, t)
	})
	return topics
}

// ParseCount reads engagement counters as rendered on the platform:
// "1.2万" and "3w" are tens of thousands, "3.4k" thousands, "1,024" plain.
// Anything unreadable counts as zero.
func ParseCount(s string) int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	m := countExpr.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch m[2] {
	case "万", "w", "W":
		n *= 10000
	case "千", "k", "K":
		n *= 1000
	}
	return int(n + 0.5)
}

func firstText(sel *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.Join(strings.Fields(sel.Find(selector).First().Text()), " ")
}

func resolve(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// Ensure Source implements source.TopicSource
var _ source.TopicSource = (*Source)(nil)
