package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhs-agent/internal/models"
)

type countingSink struct {
	topics, analyses, sets, records int
	err                             error
}

func (c *countingSink) SaveTopics(_ context.Context, t []*models.Topic) error {
	c.topics += len(t)
	return c.err
}

func (c *countingSink) SaveAnalysis(context.Context, *models.AnalysisRecord) error {
	c.analyses++
	return c.err
}

func (c *countingSink) SaveReplySet(context.Context, *models.ReplySet) error {
	c.sets++
	return c.err
}

func (c *countingSink) SaveReplyRecord(context.Context, *models.ReplyRecord) error {
	c.records++
	return c.err
}

func TestMulti(t *testing.T) {
	ok := &countingSink{}
	failing := &countingSink{err: errors.New("disk full")}
	m := Multi{ok, failing, Nop{}}
	ctx := context.Background()

	require.NoError(t, Multi{ok}.SaveTopics(ctx, []*models.Topic{{}, {}}))
	assert.Equal(t, 2, ok.topics)

	err := m.SaveAnalysis(ctx, &models.AnalysisRecord{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, ok.analyses, "healthy sinks still receive the record")
	assert.Equal(t, 1, failing.analyses)

	require.Error(t, m.SaveReplySet(ctx, &models.ReplySet{}))
	require.Error(t, m.SaveReplyRecord(ctx, &models.ReplyRecord{}))
	assert.Equal(t, 1, ok.sets)
	assert.Equal(t, 1, ok.records)

	assert.NoError(t, Multi(nil).SaveAnalysis(ctx, &models.AnalysisRecord{}))
}

func TestReplyFilter_Match(t *testing.T) {
	staged := models.ReplyStatusStaged
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rec := &models.ReplyRecord{Status: models.ReplyStatusStaged, TopicURL: "https://x/1", CreatedAt: now}

	assert.True(t, DefaultReplyFilter().Match(rec))
	assert.True(t, ReplyFilter{Status: &staged, Since: now}.Match(rec))
	assert.False(t, ReplyFilter{Since: now.Add(time.Minute)}.Match(rec))
	assert.True(t, ReplyFilter{TopicURL: "https://x/1"}.Match(rec))
	assert.False(t, ReplyFilter{TopicURL: "https://x/2"}.Match(rec))

	rec.Status = models.ReplyStatusSent
	assert.False(t, ReplyFilter{Status: &staged}.Match(rec))
}
