package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhs-agent/internal/config"
	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/internal/scoring"
	"github.com/xhs-agent/pkg/logger"
)

func testRecord() *models.AnalysisRecord {
	return &models.AnalysisRecord{
		Topic:           *testTopic(),
		PainPoints:      []string{"押金退不回来"},
		Demands:         []models.DemandInsight{{Type: "information", Description: "避坑清单"}},
		SuggestedAngles: []string{"亲身经历"},
	}
}

const threeReplies = `[
	{"version": 1, "angle": "亲身经历", "content": "我去年也被坑过", "relevance": 7, "attractiveness": 6},
	{"version": 2, "angle": "干货", "content": "签合同前先拍照", "relevance": 9, "attractiveness": 8},
	{"version": 3, "angle": "共鸣", "content": "抱抱你", "relevance": 8, "attractiveness": 9}
]`

func TestReplyWriter_GenerateWithoutAssessment(t *testing.T) {
	llm := &scripted{responses: map[string]string{markGenerate: threeReplies}}
	w := NewReplyWriter(llm, scoring.NewExtractor(nil), config.ContentConfig{Versions: 3, Persona: "renter"}, logger.Nop())

	set, err := w.Generate(context.Background(), testRecord())
	require.NoError(t, err)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "Write 3 different reply versions")
	assert.Contains(t, llm.prompts[0], "Pain point: 押金退不回来")
	assert.Contains(t, llm.prompts[0], "Underlying demand: 避坑清单")
	assert.Contains(t, llm.prompts[0], "Preferred angle: 亲身经历")

	assert.Equal(t, "租房踩坑", set.TopicTitle)
	assert.Equal(t, "亲身经历", set.TargetAngle)
	require.Len(t, set.Replies, 3)
	require.NotNil(t, set.Best)
	// v2 and v3 tie at 8.5, lowest version wins
	assert.Equal(t, 2, set.Best.Version)
	assert.InDelta(t, 8.5, set.Best.OverallScore, 1e-9)
}

func TestReplyWriter_AssessmentOverridesScores(t *testing.T) {
	llm := &scripted{responses: map[string]string{
		markGenerate: `[{"version": 1, "content": "我去年也被坑过", "relevance": 9, "attractiveness": 9}]`,
		markAssess:   `{"relevance": 6, "attractiveness": 8, "overall": 10, "recommended": true, "suggestions": []}`,
	}}
	w := NewReplyWriter(llm, scoring.NewExtractor(nil), config.ContentConfig{Versions: 1, AssessQuality: true}, logger.Nop())

	set, err := w.Generate(context.Background(), testRecord())
	require.NoError(t, err)
	require.NotNil(t, set.Best)
	assert.InDelta(t, 6.0, set.Best.RelevanceScore, 1e-9)
	assert.InDelta(t, 8.0, set.Best.AttractivenessScore, 1e-9)
	assert.InDelta(t, 7.0, set.Best.OverallScore, 1e-9, "declared overall is ignored")
	assert.True(t, set.Best.Recommended)
	assert.Len(t, llm.prompts, 2)
}

func TestReplyWriter_AssessmentFailureKeepsScores(t *testing.T) {
	llm := &scripted{
		responses: map[string]string{markGenerate: threeReplies},
		errs:      map[string]error{markAssess: errors.New("rate limited")},
	}
	w := NewReplyWriter(llm, scoring.NewExtractor(nil), config.ContentConfig{Versions: 3, AssessQuality: true}, logger.Nop())

	set, err := w.Generate(context.Background(), testRecord())
	require.NoError(t, err)
	require.Len(t, set.Replies, 3)
	assert.Equal(t, 2, set.Best.Version)
}

func TestReplyWriter_OptimizesRejectedBest(t *testing.T) {
	llm := &scripted{responses: map[string]string{
		markGenerate: `[{"version": 1, "angle": "干货", "content": "签合同前先拍照"}]`,
		markOptimize: `{"content": "签合同前把每个角落都拍照录像，退房时有证据"}`,
	}}
	// first assessment rejects, the rewrite is graded higher
	assessments := []string{
		`{"relevance": 6, "attractiveness": 5, "recommended": false, "suggestions": ["more concrete"]}`,
		`{"relevance": 9, "attractiveness": 8, "recommended": true}`,
	}
	llmWithAssess := &sequenced{scripted: llm, marker: markAssess, answers: assessments}

	w := NewReplyWriter(llmWithAssess, scoring.NewExtractor(nil), config.ContentConfig{Versions: 1, AssessQuality: true}, logger.Nop())
	set, err := w.Generate(context.Background(), testRecord())
	require.NoError(t, err)

	require.Len(t, set.Replies, 2)
	improved := set.Replies[1]
	assert.Equal(t, 101, improved.Version)
	assert.Equal(t, "干货", improved.Angle)
	assert.Equal(t, improved, set.Best)
	assert.InDelta(t, 8.5, set.Best.OverallScore, 1e-9)
	assert.Equal(t, "more concrete", set.Replies[0].Feedback)
}

func TestReplyWriter_OptimizationFailureKeepsOriginal(t *testing.T) {
	llm := &scripted{
		responses: map[string]string{
			markGenerate: `[{"version": 1, "content": "签合同前先拍照"}]`,
			markAssess:   `{"relevance": 6, "attractiveness": 5, "recommended": false, "suggestions": ["more concrete"]}`,
		},
		errs: map[string]error{markOptimize: errors.New("boom")},
	}
	w := NewReplyWriter(llm, scoring.NewExtractor(nil), config.ContentConfig{Versions: 1, AssessQuality: true}, logger.Nop())

	set, err := w.Generate(context.Background(), testRecord())
	require.NoError(t, err)
	require.Len(t, set.Replies, 1)
	assert.Equal(t, 1, set.Best.Version)
}

func TestReplyWriter_GenerationFailure(t *testing.T) {
	llm := &scripted{errs: map[string]error{markGenerate: errors.New("llm down")}}
	w := NewReplyWriter(llm, scoring.NewExtractor(nil), config.ContentConfig{Versions: 3}, logger.Nop())
	_, err := w.Generate(context.Background(), testRecord())
	require.Error(t, err)
}

func TestReplyWriter_ProseFallsBackToSingleCandidate(t *testing.T) {
	llm := &scripted{responses: map[string]string{markGenerate: "姐妹我也遇到过，记得保留聊天记录"}}
	w := NewReplyWriter(llm, scoring.NewExtractor(nil), config.ContentConfig{Versions: 3}, logger.Nop())

	set, err := w.Generate(context.Background(), testRecord())
	require.NoError(t, err)
	require.Len(t, set.Replies, 1)
	assert.Equal(t, "姐妹我也遇到过，记得保留聊天记录", set.Best.Content)
	assert.InDelta(t, scoring.DefaultScore, set.Best.OverallScore, 1e-9)
}

// sequenced answers prompts containing marker with answers in order and delegates the rest
type sequenced struct {
	*scripted
	marker  string
	answers []string
}

func (s *sequenced) Complete(ctx context.Context, system, user string) (string, error) {
	if strings.Contains(user, s.marker) && len(s.answers) > 0 {
		next := s.answers[0]
		s.answers = s.answers[1:]
		return next, nil
	}
	return s.scripted.Complete(ctx, system, user)
}
