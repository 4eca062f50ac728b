package storage

import (
	"context"
	"errors"
	"time"

	"github.com/xhs-agent/internal/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// Sink receives the artifacts of a workflow run
type Sink interface {
	SaveTopics(ctx context.Context, topics []*models.Topic) error
	SaveAnalysis(ctx context.Context, record *models.AnalysisRecord) error
	SaveReplySet(ctx context.Context, set *models.ReplySet) error
	SaveReplyRecord(ctx context.Context, record *models.ReplyRecord) error
}

// History gives access to previously saved reply records.
// Saving a record with a known id through a Sink replaces it.
type History interface {
	GetReplyRecord(ctx context.Context, id string) (*models.ReplyRecord, error)
	ListReplyRecords(ctx context.Context, filter ReplyFilter) ([]*models.ReplyRecord, error)
}

// ReplyFilter defines filtering options for reply records
type ReplyFilter struct {
	Status    *models.ReplyStatus
	TopicURL  string
	Since     time.Time
	Limit     int
	Offset    int
	OrderDesc bool
}

// DefaultReplyFilter returns a filter with sensible defaults
func DefaultReplyFilter() ReplyFilter {
	return ReplyFilter{
		Limit:     50,
		OrderDesc: true,
	}
}

// Match reports whether r passes the status and time conditions of the filter
func (f ReplyFilter) Match(r *models.ReplyRecord) bool {
	if f.Status != nil && r.Status != *f.Status {
		return false
	}
	if f.TopicURL != "" && r.TopicURL != f.TopicURL {
		return false
	}
	if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}

// Multi fans every save out to all sinks, collecting the errors
type Multi []Sink

// SaveTopics saves topics in every sink
func (m Multi) SaveTopics(ctx context.Context, topics []*models.Topic) error {
	return m.each(func(s Sink) error { return s.SaveTopics(ctx, topics) })
}

// SaveAnalysis saves the record in every sink
func (m Multi) SaveAnalysis(ctx context.Context, record *models.AnalysisRecord) error {
	return m.each(func(s Sink) error { return s.SaveAnalysis(ctx, record) })
}

// SaveReplySet saves the set in every sink
func (m Multi) SaveReplySet(ctx context.Context, set *models.ReplySet) error {
	return m.each(func(s Sink) error { return s.SaveReplySet(ctx, set) })
}

// SaveReplyRecord saves the record in every sink
func (m Multi) SaveReplyRecord(ctx context.Context, record *models.ReplyRecord) error {
	return m.each(func(s Sink) error { return s.SaveReplyRecord(ctx, record) })
}

func (m Multi) each(fn func(Sink) error) error {
	var errs []error
	for _, s := range m {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards everything
type Nop struct{}

func (Nop) SaveTopics(context.Context, []*models.Topic) error { return nil }
func (Nop) SaveAnalysis(context.Context, *models.AnalysisRecord) error { return nil }
func (Nop) SaveReplySet(context.Context, *models.ReplySet) error { return nil }
func (Nop) SaveReplyRecord(context.Context, *models.ReplyRecord) error { return nil }

var (
	_ Sink = Multi(nil)
	_ Sink = Nop{}
)
