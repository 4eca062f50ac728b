package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/internal/safety"
	"github.com/xhs-agent/internal/scoring"
	"github.com/xhs-agent/internal/storage"
	"github.com/xhs-agent/pkg/logger"
)

// Fetcher collects trending topics from the configured sources
type Fetcher interface {
	FetchAll(ctx context.Context, max int) ([]*models.Topic, error)
}

// Analyzer turns a topic into a scored analysis record
type Analyzer interface {
	Analyze(ctx context.Context, topic *models.Topic) (*models.AnalysisRecord, error)
}

// Agent collects hot topics, analyzes them one by one and ranks the results
type Agent struct {
	fetcher   Fetcher
	analyzer  Analyzer
	sink      storage.Sink
	maxTopics int
	spacing   time.Duration
	log       *logger.Logger
}

// NewAgent creates a new discovery agent. spacing is the pause between two analyses.
func NewAgent(
	fetcher Fetcher,
	analyzer Analyzer,
	sink storage.Sink,
	maxTopics int,
	spacing time.Duration,
	log *logger.Logger,
) *Agent {
	if sink == nil {
		sink = storage.Nop{}
	}
	return &Agent{
		fetcher:   fetcher,
		analyzer:  analyzer,
		sink:      sink,
		maxTopics: maxTopics,
		spacing:   spacing,
		log:       log.WithComponent("discovery"),
	}
}

// DiscoveryResult contains the results of a discovery run
type DiscoveryResult struct {
	Collected int
	Analyzed  int
	Failed    int
	Ranked    []*models.AnalysisRecord
	Errors    []error
	Duration  time.Duration
}

// Run executes the discovery process: collect, analyze, rank.
// The error wraps source.ErrNoTopics when nothing was collected.
func (a *Agent) Run(ctx context.Context) (*DiscoveryResult, error) {
	startTime := time.Now()

	topics, err := a.Collect(ctx)
	if err != nil {
		return &DiscoveryResult{Duration: time.Since(startTime)}, err
	}

	result, err := a.Analyze(ctx, topics)
	result.Duration = time.Since(startTime)
	return result, err
}

// Collect fetches topics from all sources and saves them
func (a *Agent) Collect(ctx context.Context) ([]*models.Topic, error) {
	a.log.Info().Int("max_topics", a.maxTopics).Msg("Collecting hot topics")

	topics, err := a.fetcher.FetchAll(ctx, a.maxTopics)
	if err != nil {
		return nil, fmt.Errorf("collect topics: %w", err)
	}

	if err := a.sink.SaveTopics(ctx, topics); err != nil {
		a.log.Warn().Err(err).Msg("Failed to save topics")
	}

	a.log.Info().Int("topics_found", len(topics)).Msg("Fetched topics from sources")
	return topics, nil
}

// Analyze analyzes topics serially, spacing the model requests, and ranks the records.
// A topic whose analysis fails is counted and skipped. Cancellation stops the batch
// and returns what was analyzed so far together with the context error.
func (a *Agent) Analyze(ctx context.Context, topics []*models.Topic) (*DiscoveryResult, error) {
	result := &DiscoveryResult{Collected: len(topics)}
	records := make([]*models.AnalysisRecord, 0, len(topics))

	for i, topic := range topics {
		if i > 0 {
			if err := safety.Sleep(ctx, a.spacing); err != nil {
				result.Ranked = scoring.Rank(records)
				return result, err
			}
		}

		record, err := a.analyzer.Analyze(ctx, topic)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				result.Ranked = scoring.Rank(records)
				return result, ctxErr
			}
			a.log.Warn().Err(err).Str("title", topic.Title).Msg("Failed to analyze topic, skipping")
			result.Failed++
			result.Errors = append(result.Errors, err)
			continue
		}

		if err := a.sink.SaveAnalysis(ctx, record); err != nil {
			a.log.Warn().Err(err).Str("title", topic.Title).Msg("Failed to save analysis")
		}
		records = append(records, record)
		result.Analyzed++

		a.log.Debug().
			Int("index", i+1).
			Int("total", len(topics)).
			Str("title", topic.Title).
			Float64("priority", record.Priority).
			Msg("Topic analyzed")
	}

	result.Ranked = scoring.Rank(records)

	a.log.Info().
		Int("analyzed", result.Analyzed).
		Int("failed", result.Failed).
		Msg("Analysis completed")

	return result, nil
}
