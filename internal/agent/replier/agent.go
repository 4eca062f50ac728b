package replier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/internal/safety"
	"github.com/xhs-agent/internal/sender"
	"github.com/xhs-agent/internal/storage"
	"github.com/xhs-agent/pkg/logger"
)

// errDeclined marks a reply the operator chose not to post
var errDeclined = errors.New("declined by operator")

// Generator produces the reply set of an analyzed topic
type Generator interface {
	Generate(ctx context.Context, record *models.AnalysisRecord) (*models.ReplySet, error)
}

// Agent replies to ranked topics one at a time behind the rate gate
type Agent struct {
	generator Generator
	gate      *safety.Gate
	events    *safety.EventLog
	pacer     *safety.Pacer
	sender    sender.Sender
	sink      storage.Sink
	history   storage.History
	log       *logger.Logger
	now       func() time.Time
}

// NewAgent creates a new replier agent. history may be nil, in which case
// topics are not checked for earlier replies and Approve is unavailable.
func NewAgent(
	generator Generator,
	gate *safety.Gate,
	events *safety.EventLog,
	pacer *safety.Pacer,
	snd sender.Sender,
	sink storage.Sink,
	history storage.History,
	log *logger.Logger,
) *Agent {
	if sink == nil {
		sink = storage.Nop{}
	}
	return &Agent{
		generator: generator,
		gate:      gate,
		events:    events,
		pacer:     pacer,
		sender:    snd,
		sink:      sink,
		history:   history,
		log:       log.WithComponent("replier"),
		now:       time.Now,
	}
}

// SetClock replaces the clock used for gate checks and record timestamps
func (a *Agent) SetClock(now func() time.Time) {
	a.now = now
}

// ReplyResult contains the result of a reply run
type ReplyResult struct {
	Generated     int
	Sent          int
	Staged        int
	SkippedByGate int
	Skipped       int
	Failed        int
	Sets          []*models.ReplySet
	Records       []*models.ReplyRecord
	Errors        []error
	Duration      time.Duration
}

// Run replies to records in the given order. Topics are handled strictly one after
// another and a pacing delay separates two send attempts. Only cancellation aborts the run.
func (a *Agent) Run(ctx context.Context, runID string, records []*models.AnalysisRecord) (*ReplyResult, error) {
	startTime := time.Now()
	result := &ReplyResult{}
	attempted := false

	for _, record := range records {
		if a.alreadyReplied(ctx, record.Topic.URL) {
			a.log.Debug().Str("url", record.Topic.URL).Msg("Already replied to this topic, skipping")
			result.Skipped++
			continue
		}

		if attempted && a.pacer != nil {
			delay, err := a.pacer.Between(ctx)
			if err != nil {
				result.Duration = time.Since(startTime)
				return result, err
			}
			a.log.Debug().Dur("delay", delay).Msg("Paced before next reply")
		}

		tried, err := a.replyTo(ctx, runID, record, result)
		if err != nil {
			result.Duration = time.Since(startTime)
			return result, err
		}
		attempted = attempted || tried
	}

	result.Duration = time.Since(startTime)

	a.log.Info().
		Int("generated", result.Generated).
		Int("sent", result.Sent).
		Int("staged", result.Staged).
		Int("skipped_by_gate", result.SkippedByGate).
		Int("failed", result.Failed).
		Dur("duration", result.Duration).
		Msg("Reply run completed")

	return result, nil
}

// replyTo runs the gate, generation, selection and send steps for one topic.
// It reports whether a send was attempted. The error is non-nil only on cancellation.
func (a *Agent) replyTo(ctx context.Context, runID string, record *models.AnalysisRecord, result *ReplyResult) (bool, error) {
	topic := &record.Topic
	log := a.log.WithTopic(topic.Title, topic.URL)

	decision := a.gate.Admit(ctx, a.now(), topic.Title)
	if !decision.Allowed {
		log.Info().Str("reason", decision.Reason).Msg("Reply skipped by gate")
		result.SkippedByGate++
		return false, nil
	}

	if a.pacer != nil {
		if err := a.pacer.Think(ctx); err != nil {
			return false, err
		}
	}

	set, err := a.generator.Generate(ctx, record)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		a.fail(ctx, result, models.SeverityError, fmt.Errorf("generate replies for %q: %w", topic.Title, err))
		return false, nil
	}
	result.Generated++
	result.Sets = append(result.Sets, set)

	if err := a.sink.SaveReplySet(ctx, set); err != nil {
		log.Warn().Err(err).Msg("Failed to save reply set")
	}

	best := set.Best
	if best == nil {
		a.fail(ctx, result, models.SeverityWarning, fmt.Errorf("no usable reply for %q", topic.Title))
		return false, nil
	}

	reply := &models.ReplyRecord{
		ID:         uuid.NewString(),
		RunID:      runID,
		TopicTitle: topic.Title,
		TopicURL:   topic.URL,
		Content:    best.Content,
		Version:    best.Version,
		Angle:      best.Angle,
		Score:      best.OverallScore,
		Method:     a.sender.Method(),
		CreatedAt:  a.now(),
	}

	sent, err := a.sender.Send(ctx, best, topic)
	if err != nil && ctx.Err() != nil {
		return true, ctx.Err()
	}
	at := a.now()
	reply.UpdatedAt = at

	switch {
	case err != nil:
		reply.Status = models.ReplyStatusFailed
		reply.ErrorMessage = err.Error()
		a.gate.RecordOutcome(ctx, at, topic.Title, err)
		result.Failed++
		result.Errors = append(result.Errors, err)
		log.Warn().Err(err).Msg("Failed to send reply")
	case sent:
		reply.Status = models.ReplyStatusSent
		reply.SentAt = &at
		a.gate.RecordOutcome(ctx, at, topic.Title, nil)
		result.Sent++
		log.Info().Int("version", best.Version).Float64("score", best.OverallScore).Msg("Reply sent")
	case a.sender.Method() == sender.MethodStage:
		reply.Status = models.ReplyStatusStaged
		a.events.Append(ctx, models.SafetyEvent{
			EventType: models.EventReplyStaged,
			Message:   fmt.Sprintf("reply %s staged for %s", reply.ID, topic.Title),
			Severity:  models.SeverityInfo,
			Timestamp: at,
		})
		result.Staged++
	default:
		reply.Status = models.ReplyStatusFailed
		reply.ErrorMessage = errDeclined.Error()
		a.events.Append(ctx, models.SafetyEvent{
			EventType: models.EventActionFailed,
			Message:   fmt.Sprintf("reply for %s %v", topic.Title, errDeclined),
			Severity:  models.SeverityWarning,
			Timestamp: at,
		})
		result.Failed++
	}

	if err := a.sink.SaveReplyRecord(ctx, reply); err != nil {
		log.Warn().Err(err).Msg("Failed to save reply record")
	}
	result.Records = append(result.Records, reply)
	return true, nil
}

// fail records a pipeline failure that happened before any send attempt
func (a *Agent) fail(ctx context.Context, result *ReplyResult, severity models.Severity, err error) {
	result.Failed++
	result.Errors = append(result.Errors, err)
	a.events.Append(ctx, models.SafetyEvent{
		EventType: models.EventActionFailed,
		Message:   err.Error(),
		Severity:  severity,
		Timestamp: a.now(),
	})
}

func (a *Agent) alreadyReplied(ctx context.Context, url string) bool {
	if a.history == nil || url == "" {
		return false
	}
	records, err := a.history.ListReplyRecords(ctx, storage.ReplyFilter{TopicURL: url, Limit: 10})
	if err != nil {
		a.log.Warn().Err(err).Msg("Failed to check reply history")
		return false
	}
	for _, r := range records {
		if r.Status == models.ReplyStatusSent || r.Status == models.ReplyStatusStaged {
			return true
		}
	}
	return false
}

// Approve marks a staged reply as posted by the operator. The approval passes the
// gate like any other reply and counts toward the daily quota.
func (a *Agent) Approve(ctx context.Context, id string) (*models.ReplyRecord, error) {
	if a.history == nil {
		return nil, fmt.Errorf("reply history is not configured")
	}
	reply, err := a.history.GetReplyRecord(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get reply %s: %w", id, err)
	}
	if !reply.IsStaged() {
		return nil, fmt.Errorf("reply %s is %s, not staged", id, reply.Status)
	}

	now := a.now()
	if d := a.gate.Admit(ctx, now, reply.TopicTitle); !d.Allowed {
		return nil, fmt.Errorf("approval denied: %s", d.Reason)
	}

	reply.Status = models.ReplyStatusSent
	reply.SentAt = &now
	reply.UpdatedAt = now
	if err := a.sink.SaveReplyRecord(ctx, reply); err != nil {
		return nil, fmt.Errorf("save reply %s: %w", id, err)
	}
	a.gate.RecordOutcome(ctx, now, reply.TopicTitle, nil)

	a.log.Info().Str("id", id).Str("topic", reply.TopicTitle).Msg("Staged reply approved")
	return reply, nil
}

// ExpireStaged marks staged replies created before now-maxAge as expired
func (a *Agent) ExpireStaged(ctx context.Context, maxAge time.Duration) (int, error) {
	if a.history == nil {
		return 0, nil
	}
	staged := models.ReplyStatusStaged
	records, err := a.history.ListReplyRecords(ctx, storage.ReplyFilter{Status: &staged})
	if err != nil {
		return 0, fmt.Errorf("list staged replies: %w", err)
	}

	now := a.now()
	cutoff := now.Add(-maxAge)
	expired := 0
	for _, r := range records {
		if !r.CreatedAt.Before(cutoff) {
			continue
		}
		r.Status = models.ReplyStatusExpired
		r.UpdatedAt = now
		if err := a.sink.SaveReplyRecord(ctx, r); err != nil {
			return expired, fmt.Errorf("expire reply %s: %w", r.ID, err)
		}
		expired++
	}
	if expired > 0 {
		a.log.Info().Int("expired", expired).Msg("Expired stale staged replies")
	}
	return expired, nil
}
