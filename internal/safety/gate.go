package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xhs-agent/internal/config"
	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/pkg/logger"
)

// Gate decides whether a reply may be sent right now.
// Daily count and last action time are derived from the event log,
// the pause state lives in memory and starts Active.
type Gate struct {
	cfg    config.SafetyConfig
	events *EventLog
	log    *logger.Logger

	mu       sync.Mutex
	paused   bool
	reason   string
	pausedAt time.Time

	onDecision func(models.GateDecision)
}

// Status is a snapshot of the gate for reports and the control API
type Status struct {
	Paused       bool                `json:"paused"`
	PauseReason  string              `json:"pause_reason,omitempty"`
	PausedAt     *time.Time          `json:"paused_at,omitempty"`
	RepliesToday int                 `json:"replies_today"`
	DailyLimit   int                 `json:"daily_limit"`
	DailyTarget  int                 `json:"daily_target"`
	LastAction   *time.Time          `json:"last_action,omitempty"`
	RecentErrors int                 `json:"recent_errors"`
	Decision     models.GateDecision `json:"decision"`
}

// NewGate creates a gate over events and starts watching them for error bursts
func NewGate(cfg config.SafetyConfig, events *EventLog, log *logger.Logger) *Gate {
	if log == nil {
		log = logger.Nop()
	}
	g := &Gate{
		cfg:    cfg,
		events: events,
		log:    log.WithComponent("gate"),
	}
	events.Subscribe(g.watchErrors)
	return g
}

// OnDecision registers a hook receiving every decision made by Admit
func (g *Gate) OnDecision(fn func(models.GateDecision)) {
	g.onDecision = fn
}

// Check evaluates the gate at now. The first failing condition wins:
// pause, working hours, daily quota, minimum delay.
func (g *Gate) Check(now time.Time) models.GateDecision {
	g.mu.Lock()
	paused, reason := g.paused, g.reason
	g.mu.Unlock()

	if paused {
		return deny(reason)
	}

	if h := now.Hour(); h < g.cfg.WorkingHoursStart || h >= g.cfg.WorkingHoursEnd {
		return deny(fmt.Sprintf("outside working hours (%02d:00-%02d:00)", g.cfg.WorkingHoursStart, g.cfg.WorkingHoursEnd))
	}

	if count := g.events.CountOnDay(now, models.EventReplySent); count >= g.cfg.MaxDailyReplies {
		return deny(fmt.Sprintf("daily reply limit reached (%d/%d)", count, g.cfg.MaxDailyReplies))
	}

	if last, ok := g.lastAction(); ok {
		if elapsed := now.Sub(last); elapsed < g.cfg.MinDelay {
			remaining := int((g.cfg.MinDelay - elapsed) / time.Second)
			return deny(fmt.Sprintf("too soon after last reply, %ds remaining", remaining))
		}
	}

	return models.GateDecision{Allowed: true}
}

// Admit checks the gate and records the decision in the event log
func (g *Gate) Admit(ctx context.Context, now time.Time, target string) models.GateDecision {
	d := g.Check(now)
	if d.Allowed {
		g.events.Append(ctx, models.SafetyEvent{
			EventType: models.EventActionCheck,
			Message:   "reply allowed: " + target,
			Severity:  models.SeverityInfo,
			Timestamp: now,
		})
	} else {
		g.events.Append(ctx, models.SafetyEvent{
			EventType: models.EventGateDenied,
			Message:   fmt.Sprintf("reply denied for %s: %s", target, d.Reason),
			Severity:  models.SeverityWarning,
			Timestamp: now,
		})
	}
	if g.onDecision != nil {
		g.onDecision(d)
	}
	return d
}

// RecordOutcome logs the result of a send attempt. A nil err counts toward the daily quota.
func (g *Gate) RecordOutcome(ctx context.Context, at time.Time, target string, err error) {
	if err == nil {
		g.events.Append(ctx, models.SafetyEvent{
			EventType: models.EventReplySent,
			Message:   "reply sent: " + target,
			Severity:  models.SeverityInfo,
			Timestamp: at,
		})
		return
	}
	g.events.Append(ctx, models.SafetyEvent{
		EventType: models.EventReplyFailed,
		Message:   fmt.Sprintf("reply failed for %s: %v", target, err),
		Severity:  models.SeverityError,
		Timestamp: at,
	})
}

// Pause moves the gate to Paused. Pausing an already paused gate keeps the first reason.
func (g *Gate) Pause(ctx context.Context, reason string) {
	g.mu.Lock()
	if g.paused {
		g.mu.Unlock()
		return
	}
	g.paused, g.reason, g.pausedAt = true, reason, g.events.now()
	g.mu.Unlock()

	g.events.Append(ctx, models.SafetyEvent{
		EventType: models.EventSystemPaused,
		Message:   reason,
		Severity:  models.SeverityWarning,
	})
}

// Resume moves the gate back to Active
func (g *Gate) Resume(ctx context.Context) {
	g.mu.Lock()
	if !g.paused {
		g.mu.Unlock()
		return
	}
	g.paused, g.reason, g.pausedAt = false, "", time.Time{}
	g.mu.Unlock()

	g.events.Append(ctx, models.SafetyEvent{
		EventType: models.EventSystemResumed,
		Message:   "system resumed",
		Severity:  models.SeverityInfo,
	})
}

// IsPaused reports the pause state and its reason
func (g *Gate) IsPaused() (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused, g.reason
}

// Status returns a snapshot of the gate at now
func (g *Gate) Status(now time.Time) Status {
	g.mu.Lock()
	s := Status{Paused: g.paused, PauseReason: g.reason}
	if g.paused {
		at := g.pausedAt
		s.PausedAt = &at
	}
	g.mu.Unlock()

	s.RepliesToday = g.events.CountOnDay(now, models.EventReplySent)
	s.DailyLimit = g.cfg.MaxDailyReplies
	s.DailyTarget = g.cfg.TargetDailyReplies
	if last, ok := g.lastAction(); ok {
		s.LastAction = &last
	}
	s.RecentErrors = len(g.events.Recent(now, g.cfg.ErrorWindow, models.SeverityError, models.SeverityCritical))
	s.Decision = g.Check(now)
	return s
}

func (g *Gate) lastAction() (time.Time, bool) {
	e, ok := g.events.Last(models.EventReplySent, models.EventReplyFailed)
	return e.Timestamp, ok
}

// watchErrors pauses the gate once error events within the window reach the threshold
func (g *Gate) watchErrors(e models.SafetyEvent) {
	if e.Severity != models.SeverityError && e.Severity != models.SeverityCritical {
		return
	}
	if paused, _ := g.IsPaused(); paused {
		return
	}
	count := len(g.events.Recent(e.Timestamp, g.cfg.ErrorWindow, models.SeverityError, models.SeverityCritical))
	if count < g.cfg.ErrorThreshold {
		return
	}
	reason := fmt.Sprintf("auto-paused: %d error events in the last %d minutes", count, int(g.cfg.ErrorWindow.Minutes()))
	g.log.Error().Int("errors", count).Dur("window", g.cfg.ErrorWindow).Msg("Error threshold reached, pausing")
	g.Pause(context.Background(), reason)
}

func deny(reason string) models.GateDecision {
	return models.GateDecision{Allowed: false, Reason: reason}
}
