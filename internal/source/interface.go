package source

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/pkg/logger"
)

// ErrNoTopics is returned when no source produced a topic
var ErrNoTopics = errors.New("no topics collected")

// TopicSource defines the interface for topic discovery sources
type TopicSource interface {
	// Name returns the unique name of this source
	Name() string

	// Type returns the source type (page, rss, file)
	Type() string

	// Fetch retrieves at most max topics from the source, max <= 0 means no limit
	Fetch(ctx context.Context, max int) ([]*models.Topic, error)

	// HealthCheck verifies the source is accessible
	HealthCheck(ctx context.Context) error
}

// GenerateExternalID creates a unique ID for a topic based on source and URL
func GenerateExternalID(sourceType, url string) string {
	data := fmt.Sprintf("%s:%s", sourceType, url)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash[:16]) // Use first 16 bytes (32 hex chars)
}

// Manager manages multiple topic sources
type Manager struct {
	sources []TopicSource
	log     *logger.Logger
}

// NewManager creates a new source manager
func NewManager(log *logger.Logger) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	return &Manager{
		sources: make([]TopicSource, 0),
		log:     log.WithComponent("sources"),
	}
}

// Register adds a source to the manager
func (m *Manager) Register(source TopicSource) {
	m.sources = append(m.sources, source)
}

// GetSources returns all registered sources
func (m *Manager) GetSources() []TopicSource {
	return m.sources
}

// GetSourceByName returns a source by name
func (m *Manager) GetSourceByName(name string) TopicSource {
	for _, s := range m.sources {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// GetSourcesByType returns all sources of a given type
func (m *Manager) GetSourcesByType(sourceType string) []TopicSource {
	var result []TopicSource
	for _, s := range m.sources {
		if s.Type() == sourceType {
			result = append(result, s)
		}
	}
	return result
}

// FetchAll fetches topics from all sources concurrently.
// Topics keep the registration order of their sources, duplicates by external id are
// dropped and the result is cut to max. A failing source is logged and skipped; the
// error is returned only when every source failed. No topics at all yields ErrNoTopics.
func (m *Manager) FetchAll(ctx context.Context, max int) ([]*models.Topic, error) {
	if len(m.sources) == 0 {
		return nil, ErrNoTopics
	}

	results := make([][]*models.Topic, len(m.sources))
	var (
		mu   sync.Mutex
		errs []error
	)

	// closures never return an error: a failing source must not cancel the others,
	// failures are collected in errs instead
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range m.sources {
		g.Go(func() error {
			topics, err := s.Fetch(gctx, max)
			if err != nil {
				m.log.Warn().Err(err).Str("source", s.Name()).Msg("Source fetch failed")
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
				mu.Unlock()
				return nil
			}
			results[i] = topics
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(errs) == len(m.sources) {
		return nil, fmt.Errorf("all sources failed: %w", errors.Join(errs...))
	}

	seen := make(map[string]struct{})
	var topics []*models.Topic
	for _, batch := range results {
		for _, t := range batch {
			if t.ExternalID == "" {
				t.ExternalID = GenerateExternalID(t.SourceType, t.URL)
			}
			if _, dup := seen[t.ExternalID]; dup {
				continue
			}
			seen[t.ExternalID] = struct{}{}
			topics = append(topics, t)
		}
	}
	if max > 0 && len(topics) > max {
		topics = topics[:max]
	}
	if len(topics) == 0 {
		return nil, ErrNoTopics
	}

	m.log.Info().Int("topics", len(topics)).Int("sources", len(m.sources)).Int("failed", len(errs)).Msg("Collected topics")
	return topics, nil
}
