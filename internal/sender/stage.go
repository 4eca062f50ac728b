package sender

import (
	"context"

	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/pkg/logger"
)

// Stager never posts. Replies are kept for later approval and optionally forwarded to a reviewer.
type Stager struct {
	notifier Notifier
	log      *logger.Logger
}

// NewStager creates a stager, notifier may be nil
func NewStager(notifier Notifier, log *logger.Logger) *Stager {
	if log == nil {
		log = logger.Nop()
	}
	return &Stager{notifier: notifier, log: log.WithComponent("stage")}
}

// Method returns "stage"
func (s *Stager) Method() string {
	return MethodStage
}

// Send forwards the draft to the reviewer and reports it as not posted
func (s *Stager) Send(ctx context.Context, reply *models.ReplyCandidate, topic *models.Topic) (bool, error) {
	s.log.Info().Str("topic", topic.Title).Int("version", reply.Version).Msg("Reply staged for approval")
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, "Reply staged for approval\n\n"+Draft(reply, topic)); err != nil {
			s.log.Warn().Err(err).Msg("Failed to notify reviewer")
		}
	}
	return false, nil
}
