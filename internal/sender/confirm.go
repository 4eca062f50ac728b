package sender

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/pkg/logger"
)

// Confirmer shows each draft to an operator and waits for a yes/no answer.
// The operator posts the reply by hand; a yes records it as sent.
type Confirmer struct {
	in       io.Reader
	out      io.Writer
	timeout  time.Duration
	notifier Notifier
	log      *logger.Logger

	once  sync.Once
	lines chan string
}

// NewConfirmer creates a confirmer reading answers from in and printing drafts to out.
// notifier may be nil.
func NewConfirmer(in io.Reader, out io.Writer, timeout time.Duration, notifier Notifier, log *logger.Logger) *Confirmer {
	if log == nil {
		log = logger.Nop()
	}
	return &Confirmer{
		in:       in,
		out:      out,
		timeout:  timeout,
		notifier: notifier,
		log:      log.WithComponent("confirm"),
	}
}

// Method returns "confirm"
func (c *Confirmer) Method() string {
	return MethodConfirm
}

// Send prints the draft and waits for the answer. An empty answer or y/yes confirms,
// anything else declines. No answer within the timeout returns ErrConfirmTimeout.
func (c *Confirmer) Send(ctx context.Context, reply *models.ReplyCandidate, topic *models.Topic) (bool, error) {
	draft := Draft(reply, topic)
	if c.notifier != nil {
		if err := c.notifier.Notify(ctx, "Reply waiting for confirmation\n\n"+draft); err != nil {
			c.log.Warn().Err(err).Msg("Failed to notify reviewer")
		}
	}

	fmt.Fprintf(c.out, "\n%s\nPost this reply, then confirm [Y/n] (timeout %s): ", draft, c.timeout)

	c.once.Do(c.startReader)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		fmt.Fprintln(c.out)
		c.log.Warn().Str("topic", topic.Title).Dur("timeout", c.timeout).Msg("No confirmation received")
		return false, ErrConfirmTimeout
	case line, ok := <-c.lines:
		if !ok {
			return false, fmt.Errorf("confirmation input closed")
		}
		confirmed := isYes(line)
		c.log.Info().Str("topic", topic.Title).Bool("confirmed", confirmed).Msg("Operator answered")
		return confirmed, nil
	}
}

// startReader feeds input lines into a channel for the lifetime of the confirmer
func (c *Confirmer) startReader() {
	c.lines = make(chan string)
	go func() {
		defer close(c.lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			c.lines <- scanner.Text()
		}
	}()
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "", "y", "yes", "是", "好":
		return true
	}
	return false
}
