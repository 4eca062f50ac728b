package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/xhs-agent/internal/agent/discovery"
	"github.com/xhs-agent/internal/agent/replier"
	"github.com/xhs-agent/internal/metrics"
	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/internal/safety"
	"github.com/xhs-agent/internal/scoring"
	"github.com/xhs-agent/internal/source"
	"github.com/xhs-agent/pkg/logger"
)

// NoteFetcher loads a single note by URL
type NoteFetcher interface {
	FetchURL(ctx context.Context, url string) (*models.Topic, error)
}

// Summary is the outcome of one workflow run
type Summary struct {
	RunID         string        `json:"run_id"`
	Collected     int           `json:"collected"`
	Analyzed      int           `json:"analyzed"`
	Generated     int           `json:"generated"`
	Sent          int           `json:"sent"`
	Staged        int           `json:"staged"`
	SkippedByGate int           `json:"skipped_by_gate"`
	Failed        int           `json:"failed"`
	Duration      time.Duration `json:"duration"`
	ReportPath    string        `json:"report_path,omitempty"`
}

// String renders the summary as a single line
func (s *Summary) String() string {
	return fmt.Sprintf("collected=%d analyzed=%d generated=%d sent=%d staged=%d skipped_by_gate=%d failed=%d",
		s.Collected, s.Analyzed, s.Generated, s.Sent, s.Staged, s.SkippedByGate, s.Failed)
}

// Runner executes the full pipeline: collect, analyze, rank, reply to the top topics
type Runner struct {
	discovery  *discovery.Agent
	replier    *replier.Agent
	gate       *safety.Gate
	events     *safety.EventLog
	notes      NoteFetcher
	metrics    *metrics.Metrics
	topN       int
	reportsDir string
	log        *logger.Logger
	now        func() time.Time
}

// Options holds the optional collaborators of a Runner
type Options struct {
	Notes      NoteFetcher
	Metrics    *metrics.Metrics
	ReportsDir string
}

// NewRunner creates a workflow runner replying to the topN best topics of each run
func NewRunner(
	disc *discovery.Agent,
	rep *replier.Agent,
	gate *safety.Gate,
	events *safety.EventLog,
	topN int,
	opts Options,
	log *logger.Logger,
) *Runner {
	return &Runner{
		discovery:  disc,
		replier:    rep,
		gate:       gate,
		events:     events,
		notes:      opts.Notes,
		metrics:    opts.Metrics,
		topN:       topN,
		reportsDir: opts.ReportsDir,
		log:        log.WithComponent("workflow"),
		now:        time.Now,
	}
}

// Run executes one complete workflow. A run without topics is not an error.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	startTime := time.Now()
	summary := &Summary{RunID: uuid.NewString()}
	log := r.log.WithRun(summary.RunID)

	if paused, reason := r.gate.IsPaused(); paused {
		log.Warn().Str("reason", reason).Msg("System is paused, replies will be skipped")
	}

	found, err := r.discovery.Run(ctx)
	summary.Collected = found.Collected
	summary.Analyzed = found.Analyzed
	summary.Failed = found.Failed
	if err != nil {
		if errors.Is(err, source.ErrNoTopics) {
			log.Warn().Msg("No topics collected, nothing to do")
			return r.finish(ctx, summary, startTime, nil, nil), nil
		}
		return r.finish(ctx, summary, startTime, found.Ranked, nil), err
	}

	top := scoring.TopN(found.Ranked, r.topN)
	log.Info().Int("ranked", len(found.Ranked)).Int("top_n", len(top)).Msg("Replying to top topics")

	replies, err := r.replier.Run(ctx, summary.RunID, top)
	r.merge(summary, replies)
	return r.finish(ctx, summary, startTime, found.Ranked, replies), err
}

// ReplyOne runs analysis and reply for a single note
func (r *Runner) ReplyOne(ctx context.Context, url string) (*Summary, error) {
	if r.notes == nil {
		return nil, fmt.Errorf("single note fetching is not configured")
	}
	startTime := time.Now()
	summary := &Summary{RunID: uuid.NewString()}

	topic, err := r.notes.FetchURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch note %s: %w", url, err)
	}
	summary.Collected = 1

	found, err := r.discovery.Analyze(ctx, []*models.Topic{topic})
	summary.Analyzed = found.Analyzed
	summary.Failed = found.Failed
	if err != nil {
		return summary, err
	}
	if len(found.Ranked) == 0 {
		return summary, fmt.Errorf("analyze note %s: %w", url, errors.Join(found.Errors...))
	}

	replies, err := r.replier.Run(ctx, summary.RunID, found.Ranked)
	r.merge(summary, replies)
	summary.Duration = time.Since(startTime)
	r.recordMetrics(summary)
	return summary, err
}

func (r *Runner) merge(summary *Summary, replies *replier.ReplyResult) {
	if replies == nil {
		return
	}
	summary.Generated = replies.Generated
	summary.Sent = replies.Sent
	summary.Staged = replies.Staged
	summary.SkippedByGate = replies.SkippedByGate
	summary.Failed += replies.Failed
}

// finish logs the run summary event, writes the daily report and records metrics
func (r *Runner) finish(ctx context.Context, summary *Summary, startTime time.Time, ranked []*models.AnalysisRecord, replies *replier.ReplyResult) *Summary {
	summary.Duration = time.Since(startTime)
	now := r.now()

	r.events.Append(ctx, models.SafetyEvent{
		EventType: models.EventRunSummary,
		Message:   summary.String(),
		Severity:  models.SeverityInfo,
		Timestamp: now,
	})

	if r.reportsDir != "" {
		report := Report{Date: now, Summary: summary, Ranked: ranked, SafetyReport: r.gate.Report(now)}
		if replies != nil {
			report.Sets, report.Records = replies.Sets, replies.Records
		}
		path, err := report.WriteTo(r.reportsDir)
		if err != nil {
			r.log.Warn().Err(err).Msg("Failed to write daily report")
		} else {
			summary.ReportPath = path
		}
	}

	r.recordMetrics(summary)
	r.metrics.RunFinished(summary.Duration)

	r.log.Info().
		Str("run_id", summary.RunID).
		Int("collected", summary.Collected).
		Int("analyzed", summary.Analyzed).
		Int("generated", summary.Generated).
		Int("sent", summary.Sent).
		Int("staged", summary.Staged).
		Int("skipped_by_gate", summary.SkippedByGate).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("Workflow run completed")

	return summary
}

func (r *Runner) recordMetrics(s *Summary) {
	r.metrics.Outcome(metrics.OutcomeCollected, s.Collected)
	r.metrics.Outcome(metrics.OutcomeAnalyzed, s.Analyzed)
	r.metrics.Outcome(metrics.OutcomeGenerated, s.Generated)
	r.metrics.Outcome(metrics.OutcomeSent, s.Sent)
	r.metrics.Outcome(metrics.OutcomeStaged, s.Staged)
	r.metrics.Outcome(metrics.OutcomeSkippedByGate, s.SkippedByGate)
	r.metrics.Outcome(metrics.OutcomeFailed, s.Failed)
}

// reportPath returns the daily report file for day
func reportPath(dir string, day time.Time) string {
	return filepath.Join(dir, "daily_report_"+day.Format("20060102")+".md")
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
