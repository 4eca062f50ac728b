package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/internal/scoring"
	"github.com/xhs-agent/pkg/logger"
)

// maxPromptBody caps note bodies sent to the model
const maxPromptBody = 1500

// Analyzer turns collected topics into scored analysis records
type Analyzer struct {
	llm       Completer
	extractor *scoring.Extractor
	log       *logger.Logger
	now       func() time.Time
}

// NewAnalyzer creates an analyzer on top of llm
func NewAnalyzer(llm Completer, extractor *scoring.Extractor, log *logger.Logger) *Analyzer {
	return &Analyzer{
		llm:       llm,
		extractor: extractor,
		log:       log.WithComponent("analyzer"),
		now:       time.Now,
	}
}

// Analyze asks the model for pain points and demands of topic and computes its priority.
// Demand mining runs as a second request only when the analysis carries no demands;
// its failure degrades to the default demand scores.
func (a *Analyzer) Analyze(ctx context.Context, topic *models.Topic) (*models.AnalysisRecord, error) {
	log := a.log.WithTopic(topic.Title, topic.URL)

	raw, err := a.llm.Complete(ctx, AnalystSystemPrompt, fmt.Sprintf(TopicAnalysisPrompt,
		topic.Title,
		truncate(topic.Body, maxPromptBody),
		topic.Engagement.Likes,
		topic.Engagement.Comments,
		topic.Engagement.Collects,
		bulletList(topic.CommentsSample, 10),
	))
	if err != nil {
		return nil, fmt.Errorf("analyze topic %q: %w", topic.Title, err)
	}

	fields := a.extractor.ExtractAnalysis(raw)
	demands := fields.Demands
	if len(demands) == 0 {
		raw, err := a.llm.Complete(ctx, AnalystSystemPrompt, fmt.Sprintf(DemandMiningPrompt,
			topic.Title,
			truncate(topic.Body, maxPromptBody),
			strings.Join(fields.PainPoints, "; "),
		))
		if err != nil {
			log.Warn().Err(err).Msg("Demand mining failed, using default demand scores")
		} else {
			demands = a.extractor.ExtractDemands(raw)
		}
	}

	record := &models.AnalysisRecord{
		Topic:           *topic,
		PainPoints:      fields.PainPoints,
		Demands:         demands,
		CommercialValue: fields.CommercialValue,
		TargetAudience:  fields.TargetAudience,
		SuggestedAngles: fields.SuggestedAngles,
		AnalyzedAt:      a.now(),
	}
	scoring.Score(record)

	log.Info().
		Float64("priority", record.Priority).
		Float64("commercial_value", record.CommercialValue).
		Int("pain_points", len(record.PainPoints)).
		Int("demands", len(record.Demands)).
		Msg("Topic analyzed")

	return record, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func bulletList(items []string, limit int) string {
	if len(items) == 0 {
		return "(none)"
	}
	if len(items) > limit {
		items = items[:limit]
	}
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
