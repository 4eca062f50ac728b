package sender

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xhs-agent/internal/models"
)

// Send methods
const (
	MethodConfirm = "confirm"
	MethodStage   = "stage"
)

// ErrConfirmTimeout is returned when the reviewer did not answer in time
var ErrConfirmTimeout = errors.New("confirmation timed out")

// Sender delivers the chosen reply for a topic. It reports true only when the reply
// was actually posted; a staged or declined reply yields false with a nil error.
type Sender interface {
	Send(ctx context.Context, reply *models.ReplyCandidate, topic *models.Topic) (bool, error)
	Method() string
}

// Notifier forwards a plain text message to a reviewer
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Draft renders the reply as the reviewer sees it
func Draft(reply *models.ReplyCandidate, topic *models.Topic) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", topic.Title)
	if topic.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", topic.URL)
	}
	fmt.Fprintf(&b, "Version %d", reply.Version)
	if reply.Angle != "" {
		fmt.Fprintf(&b, " (%s)", reply.Angle)
	}
	fmt.Fprintf(&b, ", score %.1f\n\n%s\n", reply.OverallScore, reply.Content)
	return b.String()
}

// New returns the sender for mode. Unknown modes fall back to staging.
func New(mode string, confirmer *Confirmer, stager *Stager) Sender {
	if mode == MethodConfirm && confirmer != nil {
		return confirmer
	}
	return stager
}
