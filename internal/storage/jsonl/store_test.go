package jsonl

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/internal/safety"
	"github.com/xhs-agent/internal/storage"
	"github.com/xhs-agent/pkg/logger"
)

var day = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*Store, Layout) {
	t.Helper()
	root := t.TempDir()
	layout := Layout{
		Topics:       filepath.Join(root, "hot_topics"),
		Analysis:     filepath.Join(root, "analysis"),
		Replies:      filepath.Join(root, "generated_content"),
		Logs:         filepath.Join(root, "logs"),
		SaveTopics:   true,
		SaveAnalysis: true,
		SaveReplies:  true,
	}
	s, err := New(layout, logger.Nop())
	require.NoError(t, err)
	s.now = func() time.Time { return day }
	return s, layout
}

func TestStore_ImplementsEventStore(t *testing.T) {
	var _ safety.EventStore = (*Store)(nil)
}

func TestStore_FileLayout(t *testing.T) {
	s, layout := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTopics(ctx, []*models.Topic{{Title: "a"}, {Title: "b"}}))
	require.NoError(t, s.SaveAnalysis(ctx, &models.AnalysisRecord{Topic: models.Topic{Title: "a"}, Priority: 7.5, AnalyzedAt: day}))
	require.NoError(t, s.SaveReplySet(ctx, &models.ReplySet{TopicTitle: "a", CreatedAt: day}))
	require.NoError(t, s.SaveReplyRecord(ctx, &models.ReplyRecord{ID: "r1", CreatedAt: day}))
	require.NoError(t, s.AppendEvent(ctx, models.SafetyEvent{EventType: "reply_sent", Timestamp: day}))

	for _, p := range []string{
		filepath.Join(layout.Topics, "hot_topics_20260302.jsonl"),
		filepath.Join(layout.Analysis, "analysis_20260302.jsonl"),
		filepath.Join(layout.Replies, "replies_20260302.jsonl"),
		filepath.Join(layout.Logs, "reply_log_20260302.jsonl"),
		filepath.Join(layout.Logs, "safety_events_20260302.jsonl"),
	} {
		assert.FileExists(t, p)
	}

	data, err := os.ReadFile(filepath.Join(layout.Topics, "hot_topics_20260302.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 2, countLines(data))

	analyses, err := s.Analyses(ctx, day)
	require.NoError(t, err)
	require.Len(t, analyses, 1)
	assert.InDelta(t, 7.5, analyses[0].Priority, 1e-9)

	sets, err := s.ReplySets(ctx, day)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, "a", sets[0].TopicTitle)
}

func TestStore_SaveToggles(t *testing.T) {
	s, layout := newStore(t)
	s.layout.SaveTopics, s.layout.SaveAnalysis, s.layout.SaveReplies = false, false, false
	ctx := context.Background()

	require.NoError(t, s.SaveTopics(ctx, []*models.Topic{{Title: "a"}}))
	require.NoError(t, s.SaveAnalysis(ctx, &models.AnalysisRecord{}))
	require.NoError(t, s.SaveReplySet(ctx, &models.ReplySet{}))

	for _, dir := range []string{layout.Topics, layout.Analysis, layout.Replies} {
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries, dir)
	}
}

func TestStore_Events(t *testing.T) {
	s, layout := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendEvent(ctx, models.SafetyEvent{EventType: "reply_sent", Severity: models.SeverityInfo, Timestamp: day}))
	require.NoError(t, s.AppendEvent(ctx, models.SafetyEvent{EventType: "reply_failed", Severity: models.SeverityError, Timestamp: day.Add(time.Minute)}))
	require.NoError(t, s.AppendEvent(ctx, models.SafetyEvent{EventType: "reply_sent", Timestamp: day.AddDate(0, 0, 1)}))

	// a torn line is skipped
	f, err := os.OpenFile(filepath.Join(layout.Logs, "safety_events_20260302.jsonl"), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{\"event_type\": \"broken\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, err := s.LoadEvents(ctx, day)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "reply_failed", events[1].EventType)
	assert.Equal(t, models.SeverityError, events[1].Severity)

	none, err := s.LoadEvents(ctx, day.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_ReplyHistory(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveReplyRecord(ctx, &models.ReplyRecord{
			ID:        id,
			Status:    models.ReplyStatusStaged,
			CreatedAt: day.Add(time.Duration(i) * time.Minute),
		}))
	}

	rec, err := s.GetReplyRecord(ctx, "b")
	require.NoError(t, err)
	rec.Status = models.ReplyStatusSent
	require.NoError(t, s.SaveReplyRecord(ctx, rec))

	got, err := s.GetReplyRecord(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, models.ReplyStatusSent, got.Status)

	_, err = s.GetReplyRecord(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	staged := models.ReplyStatusStaged
	list, err := s.ListReplyRecords(ctx, storage.ReplyFilter{Status: &staged})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "c", list[1].ID)

	list, err = s.ListReplyRecords(ctx, storage.ReplyFilter{OrderDesc: true, Limit: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, "b", list[1].ID)

	list, err = s.ListReplyRecords(ctx, storage.ReplyFilter{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func countLines(data []byte) int {
	n := 0
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}
