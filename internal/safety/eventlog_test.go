package safety

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhs-agent/internal/models"
)

type memStore struct {
	mu        sync.Mutex
	appended  []models.SafetyEvent
	persisted []models.SafetyEvent
	appendErr error
	loadErr   error
}

func (m *memStore) AppendEvent(_ context.Context, e models.SafetyEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appended = append(m.appended, e)
	return nil
}

func (m *memStore) LoadEvents(_ context.Context, _ time.Time) ([]models.SafetyEvent, error) {
	return m.persisted, m.loadErr
}

var base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func event(typ string, sev models.Severity, at time.Time) models.SafetyEvent {
	return models.SafetyEvent{EventType: typ, Message: typ, Severity: sev, Timestamp: at}
}

func TestEventLog_AppendKeepsOrderAndPersists(t *testing.T) {
	store := &memStore{}
	l := NewEventLog(store, nil)
	ctx := context.Background()

	l.Append(ctx, event("a", models.SeverityInfo, base))
	l.Append(ctx, event("b", models.SeverityError, base.Add(time.Second)))
	l.Append(ctx, event("c", models.SeverityWarning, base.Add(-time.Hour)))

	events := l.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0].EventType)
	assert.Equal(t, "b", events[1].EventType)
	assert.Equal(t, "c", events[2].EventType)
	assert.Len(t, store.appended, 3)
}

func TestEventLog_AppendDefaults(t *testing.T) {
	l := NewEventLog(nil, nil)
	l.SetClock(func() time.Time { return base })

	e := l.Record(context.Background(), "x", "msg", "")
	assert.Equal(t, base, e.Timestamp)
	assert.Equal(t, models.SeverityInfo, e.Severity)
}

func TestEventLog_PersistFailureIsNotFatal(t *testing.T) {
	store := &memStore{appendErr: errors.New("disk full")}
	l := NewEventLog(store, nil)

	l.Append(context.Background(), event("a", models.SeverityInfo, base))
	assert.Len(t, l.Events(), 1)
}

func TestEventLog_Recent(t *testing.T) {
	l := NewEventLog(nil, nil)
	ctx := context.Background()
	l.Append(ctx, event("old", models.SeverityError, base.Add(-11*time.Minute)))
	l.Append(ctx, event("edge", models.SeverityError, base.Add(-10*time.Minute)))
	l.Append(ctx, event("warn", models.SeverityWarning, base.Add(-5*time.Minute)))
	l.Append(ctx, event("crit", models.SeverityCritical, base.Add(-time.Minute)))

	got := l.Recent(base, 10*time.Minute, models.SeverityError, models.SeverityCritical)
	require.Len(t, got, 2)
	assert.Equal(t, "edge", got[0].EventType, "window start is inclusive")
	assert.Equal(t, "crit", got[1].EventType)

	assert.Len(t, l.Recent(base, 10*time.Minute), 3, "no severities means any")
	assert.Empty(t, l.Recent(base, time.Second, models.SeverityInfo))
}

func TestEventLog_DailySummary(t *testing.T) {
	l := NewEventLog(nil, nil)
	ctx := context.Background()
	l.Append(ctx, event(models.EventReplySent, models.SeverityInfo, base))
	l.Append(ctx, event(models.EventReplySent, models.SeverityInfo, base.Add(time.Hour)))
	l.Append(ctx, event(models.EventReplyFailed, models.SeverityError, base.Add(2*time.Hour)))
	l.Append(ctx, event(models.EventReplySent, models.SeverityInfo, base.Add(-24*time.Hour)))

	s := l.DailySummary(base)
	assert.Equal(t, "2026-03-02", s.Date)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.BySeverity[models.SeverityInfo])
	assert.Equal(t, 1, s.BySeverity[models.SeverityError])
	assert.Equal(t, 2, s.ByType[models.EventReplySent])
	assert.Equal(t, 1, s.ByType[models.EventReplyFailed])

	assert.Equal(t, 2, l.CountOnDay(base, models.EventReplySent))
	assert.Equal(t, 1, l.CountOnDay(base.Add(-24*time.Hour), models.EventReplySent))
}

func TestEventLog_LastAndLoad(t *testing.T) {
	store := &memStore{persisted: []models.SafetyEvent{
		event(models.EventReplySent, models.SeverityInfo, base.Add(-25*time.Hour)),
		event(models.EventReplySent, models.SeverityInfo, base.Add(-2*time.Hour)),
		event(models.EventReplyFailed, models.SeverityError, base.Add(-time.Hour)),
	}}
	l := NewEventLog(store, nil)

	var notified int
	l.Subscribe(func(models.SafetyEvent) { notified++ })

	n, err := l.Load(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "only the current day is replayed")
	assert.Zero(t, notified)
	assert.Empty(t, store.appended, "replayed events are not written again")

	last, ok := l.Last(models.EventReplySent)
	require.True(t, ok)
	assert.Equal(t, base.Add(-2*time.Hour), last.Timestamp)

	last, ok = l.Last(models.EventReplySent, models.EventReplyFailed)
	require.True(t, ok)
	assert.Equal(t, models.EventReplyFailed, last.EventType)

	_, ok = l.Last("unknown")
	assert.False(t, ok)
}

func TestEventLog_LoadError(t *testing.T) {
	l := NewEventLog(&memStore{loadErr: errors.New("broken")}, nil)
	_, err := l.Load(context.Background(), base)
	require.Error(t, err)

	n, err := NewEventLog(nil, nil).Load(context.Background(), base)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEventLog_Subscribe(t *testing.T) {
	l := NewEventLog(nil, nil)
	var seen []string
	l.Subscribe(func(e models.SafetyEvent) { seen = append(seen, e.EventType) })

	l.Append(context.Background(), event("a", models.SeverityInfo, base))
	l.Append(context.Background(), event("b", models.SeverityInfo, base))
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestMultiStore(t *testing.T) {
	first := &memStore{persisted: []models.SafetyEvent{event("loaded", models.SeverityInfo, base)}}
	broken := &memStore{appendErr: errors.New("disk full")}
	ctx := context.Background()

	m := MultiStore{first, broken}
	err := m.AppendEvent(ctx, event("a", models.SeverityInfo, base))
	assert.ErrorContains(t, err, "disk full")
	assert.Len(t, first.appended, 1)

	events, err := m.LoadEvents(ctx, base)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "loaded", events[0].EventType)

	events, err = MultiStore{}.LoadEvents(ctx, base)
	require.NoError(t, err)
	assert.Empty(t, events)
}
