package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xhs-agent/internal/config"
	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/internal/scoring"
	"github.com/xhs-agent/pkg/logger"
)

// defaultAngle is used when the analysis suggests no angle
const defaultAngle = "share personal experience"

// optimizedVersionOffset separates rewritten candidates from the originals
const optimizedVersionOffset = 100

// ReplyWriter generates, assesses and selects reply candidates
type ReplyWriter struct {
	llm       Completer
	extractor *scoring.Extractor
	versions  int
	assess    bool
	persona   string
	log       *logger.Logger
	now       func() time.Time
}

// NewReplyWriter creates a reply writer using the content settings
func NewReplyWriter(llm Completer, extractor *scoring.Extractor, cfg config.ContentConfig, log *logger.Logger) *ReplyWriter {
	versions := cfg.Versions
	if versions < 1 {
		versions = 1
	}
	return &ReplyWriter{
		llm:       llm,
		extractor: extractor,
		versions:  versions,
		assess:    cfg.AssessQuality,
		persona:   cfg.Persona,
		log:       log.WithComponent("writer"),
		now:       time.Now,
	}
}

// Generate produces the reply set for an analyzed topic. When quality assessment is on,
// each candidate is re-scored by the model, and a best candidate that is not recommended
// gets one rewrite which competes with the originals.
func (w *ReplyWriter) Generate(ctx context.Context, record *models.AnalysisRecord) (*models.ReplySet, error) {
	topic := record.Topic
	angle := record.PrimaryAngle(defaultAngle)

	raw, err := w.llm.Complete(ctx, fmt.Sprintf(ReplySystemPrompt, w.persona), fmt.Sprintf(ReplyGenerationPrompt,
		w.versions,
		topic.Title,
		truncate(topic.Body, maxPromptBody),
		orNone(record.PrimaryPainPoint()),
		orNone(record.PrimaryDemand()),
		angle,
		bulletList(topic.CommentsSample, 5),
	))
	if err != nil {
		return nil, fmt.Errorf("generate replies for %q: %w", topic.Title, err)
	}

	set := &models.ReplySet{
		TopicTitle:  topic.Title,
		TopicURL:    topic.URL,
		TargetAngle: angle,
		PainPoint:   record.PrimaryPainPoint(),
		Demand:      record.PrimaryDemand(),
		Replies:     w.extractor.ExtractReplies(raw),
		CreatedAt:   w.now(),
	}

	if w.assess {
		for _, c := range set.Replies {
			w.applyAssessment(ctx, topic.Title, c)
		}
	}

	best := scoring.Finalize(set)
	if w.assess && best != nil && !best.Recommended && best.Feedback != "" {
		if improved, err := w.Optimize(ctx, topic.Title, best); err != nil {
			w.log.Warn().Err(err).Int("version", best.Version).Msg("Reply optimization failed, keeping original")
		} else {
			w.applyAssessment(ctx, topic.Title, improved)
			set.Replies = append(set.Replies, improved)
			scoring.Finalize(set)
		}
	}

	if set.Best != nil {
		w.log.Info().
			Str("topic", topic.Title).
			Int("candidates", len(set.Replies)).
			Int("best_version", set.Best.Version).
			Float64("best_score", set.Best.OverallScore).
			Msg("Replies generated")
	}
	return set, nil
}

// Assess asks the model to grade a single candidate
func (w *ReplyWriter) Assess(ctx context.Context, topicTitle string, c *models.ReplyCandidate) (scoring.Quality, error) {
	raw, err := w.llm.Complete(ctx, fmt.Sprintf(ReplySystemPrompt, w.persona), fmt.Sprintf(QualityAssessmentPrompt, topicTitle, c.Content))
	if err != nil {
		return scoring.Quality{}, fmt.Errorf("assess reply v%d: %w", c.Version, err)
	}
	return w.extractor.ExtractQuality(raw), nil
}

// Optimize rewrites c using its feedback. The rewrite gets version c.Version+100.
func (w *ReplyWriter) Optimize(ctx context.Context, topicTitle string, c *models.ReplyCandidate) (*models.ReplyCandidate, error) {
	raw, err := w.llm.Complete(ctx, fmt.Sprintf(ReplySystemPrompt, w.persona), fmt.Sprintf(ReplyOptimizationPrompt, topicTitle, c.Content, c.Feedback, c.Angle))
	if err != nil {
		return nil, fmt.Errorf("optimize reply v%d: %w", c.Version, err)
	}
	candidates := w.extractor.ExtractReplies(raw)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("optimize reply v%d: empty response", c.Version)
	}
	improved := candidates[0]
	improved.Version = c.Version + optimizedVersionOffset
	if improved.Angle == "" {
		improved.Angle = c.Angle
	}
	improved.RelevanceScore = c.RelevanceScore
	improved.AttractivenessScore = c.AttractivenessScore
	improved.Rescore()
	return improved, nil
}

// applyAssessment overwrites the candidate scores with a parsed assessment; failures keep the extracted scores
func (w *ReplyWriter) applyAssessment(ctx context.Context, topicTitle string, c *models.ReplyCandidate) {
	q, err := w.Assess(ctx, topicTitle, c)
	if err != nil {
		w.log.Warn().Err(err).Msg("Quality assessment failed, keeping extracted scores")
		return
	}
	if !q.Parsed {
		return
	}
	c.RelevanceScore = q.Relevance
	c.AttractivenessScore = q.Attractiveness
	c.Recommended = q.Recommended
	c.Feedback = strings.Join(q.Feedback, "; ")
	c.Rescore()
}

func orNone(s string) string {
	if s == "" {
		return "(not identified)"
	}
	return s
}
