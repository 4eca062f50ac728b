package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xhs-agent/internal/config"
	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/internal/source"
	"github.com/xhs-agent/pkg/logger"
)

// Source reads prepared topics from YAML or JSON files
type Source struct {
	paths []string
	log   *logger.Logger
	now   func() time.Time
}

// entry is the on-disk shape of a topic
type entry struct {
	Title      string            `json:"title" yaml:"title"`
	Body       string            `json:"body" yaml:"body"`
	Content    string            `json:"content" yaml:"content"`
	URL        string            `json:"url" yaml:"url"`
	Author     string            `json:"author" yaml:"author"`
	Tags       []string          `json:"tags" yaml:"tags"`
	Engagement models.Engagement `json:"engagement" yaml:"engagement"`
	Likes      int               `json:"likes" yaml:"likes"`
	Comments   []string          `json:"comments" yaml:"comments"`
	Collects   int               `json:"collects" yaml:"collects"`
}

type document struct {
	Topics []entry `json:"topics" yaml:"topics"`
}

// New creates a file source over cfg.Paths (files or glob patterns)
func New(cfg config.FileConfig, log *logger.Logger) *Source {
	return &Source{
		paths: cfg.Paths,
		log:   log.WithSource("file", "topics"),
		now:   time.Now,
	}
}

// Name returns the source name
func (s *Source) Name() string {
	return "topic-files"
}

// Type returns "file"
func (s *Source) Type() string {
	return "file"
}

// Fetch loads topics from every configured file in order
func (s *Source) Fetch(ctx context.Context, max int) ([]*models.Topic, error) {
	files, err := s.files()
	if err != nil {
		return nil, err
	}

	var topics []*models.Topic
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries, err := readFile(path)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			t := s.toTopic(e, path)
			if t == nil {
				continue
			}
			topics = append(topics, t)
			if max > 0 && len(topics) >= max {
				return topics, nil
			}
		}
	}

	s.log.Info().Int("count", len(topics)).Int("files", len(files)).Msg("Loaded topics from files")
	return topics, nil
}

// HealthCheck verifies that at least one topic file exists
func (s *Source) HealthCheck(_ context.Context) error {
	files, err := s.files()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no topic files match %v", s.paths)
	}
	return nil
}

func (s *Source) files() ([]string, error) {
	var out []string
	for _, p := range s.paths {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("invalid topic file pattern %q: %w", p, err)
		}
		out = append(out, matches...)
	}
	return out, nil
}

func (s *Source) toTopic(e entry, path string) *models.Topic {
	title := strings.TrimSpace(e.Title)
	if title == "" {
		return nil
	}
	body := e.Body
	if body == "" {
		body = e.Content
	}
	eng := e.Engagement
	if eng == (models.Engagement{}) {
		eng = models.Engagement{Likes: e.Likes, Collects: e.Collects, Comments: len(e.Comments)}
	}
	url := e.URL
	if url == "" {
		url = "file://" + filepath.Base(path) + "#" + title
	}

	t := &models.Topic{
		Title:          title,
		Body:           strings.TrimSpace(body),
		URL:            url,
		Author:         e.Author,
		Tags:           e.Tags,
		Engagement:     eng,
		CommentsSample: e.Comments,
		SourceType:     "file",
		SourceName:     filepath.Base(path),
		CollectedAt:    s.now(),
	}
	t.ExternalID = source.GenerateExternalID(t.SourceType, t.URL)
	return t
}

// readFile accepts a list of topics or an object with a topics key
func readFile(path string) ([]entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topic file: %w", err)
	}

	unmarshal := yaml.Unmarshal
	if strings.EqualFold(filepath.Ext(path), ".json") {
		unmarshal = json.Unmarshal
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var list []entry
	if err := unmarshal(data, &list); err == nil {
		return list, nil
	}
	var doc document
	if err := unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse topic file %s: %w", path, err)
	}
	return doc.Topics, nil
}

// Ensure Source implements source.TopicSource
var _ source.TopicSource = (*Source)(nil)
