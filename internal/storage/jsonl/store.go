package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/internal/storage"
	"github.com/xhs-agent/pkg/logger"
)

// File name prefixes, one file per prefix and calendar day
const (
	prefixTopics   = "hot_topics"
	prefixAnalysis = "analysis"
	prefixReplies  = "replies"
	prefixReplyLog = "reply_log"
	prefixEvents   = "safety_events"
)

// Layout holds the directories of each record kind
type Layout struct {
	Topics   string
	Analysis string
	Replies  string
	Logs     string

	SaveTopics   bool
	SaveAnalysis bool
	SaveReplies  bool
}

// Store writes date-partitioned JSON lines files.
// Reply records are appended on every change; the last line for an id wins.
type Store struct {
	layout Layout
	mu     sync.Mutex
	now    func() time.Time
	log    *logger.Logger
}

// New creates a store, making sure every directory exists
func New(layout Layout, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}
	for _, dir := range []string{layout.Topics, layout.Analysis, layout.Replies, layout.Logs} {
		if dir == "" {
			return nil, fmt.Errorf("jsonl layout has an empty directory")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return &Store{layout: layout, now: time.Now, log: log.WithComponent("jsonl")}, nil
}

// SaveTopics appends the collected topics to the hot topics file of today
func (s *Store) SaveTopics(_ context.Context, topics []*models.Topic) error {
	if !s.layout.SaveTopics || len(topics) == 0 {
		return nil
	}
	lines := make([]any, 0, len(topics))
	for _, t := range topics {
		lines = append(lines, t)
	}
	return s.append(s.path(s.layout.Topics, prefixTopics, s.now()), lines...)
}

// SaveAnalysis appends an analysis record
func (s *Store) SaveAnalysis(_ context.Context, record *models.AnalysisRecord) error {
	if !s.layout.SaveAnalysis {
		return nil
	}
	return s.append(s.path(s.layout.Analysis, prefixAnalysis, stamp(record.AnalyzedAt, s.now)), record)
}

// SaveReplySet appends a reply set
func (s *Store) SaveReplySet(_ context.Context, set *models.ReplySet) error {
	if !s.layout.SaveReplies {
		return nil
	}
	return s.append(s.path(s.layout.Replies, prefixReplies, stamp(set.CreatedAt, s.now)), set)
}

// SaveReplyRecord appends a reply record to the reply log of its creation day.
// A later line with the same id replaces the earlier state.
func (s *Store) SaveReplyRecord(_ context.Context, record *models.ReplyRecord) error {
	return s.append(s.path(s.layout.Logs, prefixReplyLog, stamp(record.CreatedAt, s.now)), record)
}

// GetReplyRecord returns the latest state of the record with id
func (s *Store) GetReplyRecord(ctx context.Context, id string) (*models.ReplyRecord, error) {
	records, err := s.replyRecords(ctx)
	if err != nil {
		return nil, err
	}
	r, ok := records[id]
	if !ok {
		return nil, fmt.Errorf("reply %s: %w", id, storage.ErrNotFound)
	}
	return r, nil
}

// ListReplyRecords returns the latest state of all records matching filter, ordered by creation time
func (s *Store) ListReplyRecords(ctx context.Context, filter storage.ReplyFilter) ([]*models.ReplyRecord, error) {
	records, err := s.replyRecords(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*models.ReplyRecord, 0, len(records))
	for _, r := range records {
		if filter.Match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		if filter.OrderDesc {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// AppendEvent appends a safety event to the event file of its day
func (s *Store) AppendEvent(_ context.Context, event models.SafetyEvent) error {
	return s.append(s.path(s.layout.Logs, prefixEvents, stamp(event.Timestamp, s.now)), event)
}

// LoadEvents reads the safety events of the day of day
func (s *Store) LoadEvents(_ context.Context, day time.Time) ([]models.SafetyEvent, error) {
	var events []models.SafetyEvent
	err := s.read(s.path(s.layout.Logs, prefixEvents, day), func(line []byte) error {
		var e models.SafetyEvent
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		events = append(events, e)
		return nil
	})
	return events, err
}

// Analyses reads the analysis records saved on the day of day
func (s *Store) Analyses(_ context.Context, day time.Time) ([]*models.AnalysisRecord, error) {
	var records []*models.AnalysisRecord
	err := s.read(s.path(s.layout.Analysis, prefixAnalysis, day), func(line []byte) error {
		var r models.AnalysisRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		records = append(records, &r)
		return nil
	})
	return records, err
}

// ReplySets reads the reply sets saved on the day of day
func (s *Store) ReplySets(_ context.Context, day time.Time) ([]*models.ReplySet, error) {
	var sets []*models.ReplySet
	err := s.read(s.path(s.layout.Replies, prefixReplies, day), func(line []byte) error {
		var rs models.ReplySet
		if err := json.Unmarshal(line, &rs); err != nil {
			return err
		}
		sets = append(sets, &rs)
		return nil
	})
	return sets, err
}

func (s *Store) replyRecords(_ context.Context) (map[string]*models.ReplyRecord, error) {
	files, err := filepath.Glob(filepath.Join(s.layout.Logs, prefixReplyLog+"_*.jsonl"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	records := make(map[string]*models.ReplyRecord)
	for _, f := range files {
		err := s.read(f, func(line []byte) error {
			var r models.ReplyRecord
			if err := json.Unmarshal(line, &r); err != nil {
				return err
			}
			records[r.ID] = &r
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (s *Store) path(dir, prefix string, day time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.jsonl", prefix, day.Format("20060102")))
}

func (s *Store) append(path string, values ...any) error {
	var b strings.Builder
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
		}
		b.Write(data)
		b.WriteByte('\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// read calls fn for every non-empty line of path. A missing file is empty;
// undecodable lines are logged and skipped.
func (s *Store) read(path string, fn func(line []byte) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			s.log.Warn().Err(err).Str("file", filepath.Base(path)).Int("line", lineNo).Msg("Skipping malformed line")
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

func stamp(t time.Time, now func() time.Time) time.Time {
	if t.IsZero() {
		return now()
	}
	return t
}

var (
	_ storage.Sink    = (*Store)(nil)
	_ storage.History = (*Store)(nil)
)
