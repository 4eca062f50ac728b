package safety

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/pkg/logger"
)

// EventStore persists safety events outside the process
type EventStore interface {
	AppendEvent(ctx context.Context, event models.SafetyEvent) error
	LoadEvents(ctx context.Context, day time.Time) ([]models.SafetyEvent, error)
}

// Summary aggregates the events of one calendar day
type Summary struct {
	Date       string                  `json:"date"`
	Total      int                     `json:"total"`
	BySeverity map[models.Severity]int `json:"by_severity"`
	ByType     map[string]int          `json:"by_type"`
}

// EventLog is the append-only safety log. Append is its only mutator.
type EventLog struct {
	mu        sync.RWMutex
	events    []models.SafetyEvent
	observers []func(models.SafetyEvent)
	store     EventStore
	now       func() time.Time
	log       *logger.Logger
}

// NewEventLog creates an event log persisting to store (nil keeps events in memory only)
func NewEventLog(store EventStore, log *logger.Logger) *EventLog {
	if log == nil {
		log = logger.Nop()
	}
	return &EventLog{
		store: store,
		now:   time.Now,
		log:   log.WithComponent("eventlog"),
	}
}

// SetClock replaces the clock used to stamp events without a timestamp
func (l *EventLog) SetClock(now func() time.Time) {
	l.now = now
}

// Subscribe registers fn to be called after every append, outside the log lock
func (l *EventLog) Subscribe(fn func(models.SafetyEvent)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, fn)
}

// Append adds an event, stamping it if needed, then persists it and notifies observers.
// Persistence failures are logged and do not affect the in-memory log.
func (l *EventLog) Append(ctx context.Context, event models.SafetyEvent) models.SafetyEvent {
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}
	if event.Severity == "" {
		event.Severity = models.SeverityInfo
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	observers := make([]func(models.SafetyEvent), len(l.observers))
	copy(observers, l.observers)
	l.mu.Unlock()

	if l.store != nil {
		if err := l.store.AppendEvent(ctx, event); err != nil {
			l.log.Warn().Err(err).Str("event_type", event.EventType).Msg("Failed to persist safety event")
		}
	}

	ev := l.log.Debug()
	switch event.Severity {
	case models.SeverityWarning:
		ev = l.log.Warn()
	case models.SeverityError, models.SeverityCritical:
		ev = l.log.Error()
	}
	ev.Str("event_type", event.EventType).Str("severity", string(event.Severity)).Msg(event.Message)

	for _, fn := range observers {
		fn(event)
	}
	return event
}

// Record is a shortcut for appending an event stamped with the log clock
func (l *EventLog) Record(ctx context.Context, eventType, message string, severity models.Severity) models.SafetyEvent {
	return l.Append(ctx, models.SafetyEvent{EventType: eventType, Message: message, Severity: severity})
}

// Load replays the events persisted for the day of now. Observers are not notified.
func (l *EventLog) Load(ctx context.Context, now time.Time) (int, error) {
	if l.store == nil {
		return 0, nil
	}
	events, err := l.store.LoadEvents(ctx, now)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	loaded := 0
	for _, e := range events {
		if sameDay(e.Timestamp, now) {
			l.events = append(l.events, e)
			loaded++
		}
	}
	return loaded, nil
}

// Events returns a copy of all events in append order
func (l *EventLog) Events() []models.SafetyEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.SafetyEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Recent returns events with one of the given severities and timestamp >= now-window, in order.
// No severities means any severity.
func (l *EventLog) Recent(now time.Time, window time.Duration, severities ...models.Severity) []models.SafetyEvent {
	cutoff := now.Add(-window)
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []models.SafetyEvent
	for _, e := range l.events {
		if e.Timestamp.Before(cutoff) || !matchSeverity(e.Severity, severities) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// CountOnDay counts events of eventType on the calendar day of date
func (l *EventLog) CountOnDay(date time.Time, eventType string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, e := range l.events {
		if e.EventType == eventType && sameDay(e.Timestamp, date) {
			n++
		}
	}
	return n
}

// Last returns the most recent event of any of the given types
func (l *EventLog) Last(eventTypes ...string) (models.SafetyEvent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.events) - 1; i >= 0; i-- {
		for _, t := range eventTypes {
			if l.events[i].EventType == t {
				return l.events[i], true
			}
		}
	}
	return models.SafetyEvent{}, false
}

// DailySummary counts the events of the calendar day of date by severity and type
func (l *EventLog) DailySummary(date time.Time) Summary {
	s := Summary{
		Date:       date.Format("2006-01-02"),
		BySeverity: map[models.Severity]int{},
		ByType:     map[string]int{},
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.events {
		if !sameDay(e.Timestamp, date) {
			continue
		}
		s.Total++
		s.BySeverity[e.Severity]++
		s.ByType[e.EventType]++
	}
	return s
}

func matchSeverity(s models.Severity, wanted []models.Severity) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		if s == w {
			return true
		}
	}
	return false
}

// sameDay compares calendar days in the location of ref
func sameDay(t, ref time.Time) bool {
	y1, m1, d1 := t.In(ref.Location()).Date()
	y2, m2, d2 := ref.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// MultiStore writes events to every store and loads them from the first one
type MultiStore []EventStore

// AppendEvent appends event to all stores, collecting the errors
func (m MultiStore) AppendEvent(ctx context.Context, event models.SafetyEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.AppendEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadEvents loads the events of day from the first store
func (m MultiStore) LoadEvents(ctx context.Context, day time.Time) ([]models.SafetyEvent, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return m[0].LoadEvents(ctx, day)
}
