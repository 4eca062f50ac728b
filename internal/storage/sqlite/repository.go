package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/internal/storage"
)

// topicRow is a collected topic, unique by external id
type topicRow struct {
	ID          uint   `gorm:"primaryKey"`
	ExternalID  string `gorm:"size:64;uniqueIndex"`
	Title       string `gorm:"size:500"`
	URL         string `gorm:"size:1000"`
	Author      string `gorm:"size:200"`
	SourceType  string `gorm:"size:20;index"`
	SourceName  string `gorm:"size:100"`
	Likes       int
	Comments    int
	Collects    int
	Tags        models.StringSlice `gorm:"type:text"`
	CollectedAt time.Time          `gorm:"index"`
}

func (topicRow) TableName() string { return "topics" }

// analysisRow keeps the ranking columns next to the full record
type analysisRow struct {
	ID              uint    `gorm:"primaryKey"`
	ExternalID      string  `gorm:"size:64;index"`
	Title           string  `gorm:"size:500"`
	URL             string  `gorm:"size:1000"`
	Priority        float64 `gorm:"index"`
	CommercialValue float64
	Payload         string    `gorm:"type:text"`
	AnalyzedAt      time.Time `gorm:"index"`
}

func (analysisRow) TableName() string { return "analyses" }

type replySetRow struct {
	ID          uint   `gorm:"primaryKey"`
	TopicTitle  string `gorm:"size:500"`
	TopicURL    string `gorm:"size:1000;index"`
	Candidates  int
	BestVersion int
	BestScore   float64
	Payload     string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"index"`
}

func (replySetRow) TableName() string { return "reply_sets" }

// Repository stores workflow artifacts, reply history and safety events in SQLite
type Repository struct {
	db *gorm.DB
}

// New creates a new SQLite repository
func New(dsn string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" && dsn != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Repository{db: db}, nil
}

// Migrate runs database migrations
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&topicRow{},
		&analysisRow{},
		&replySetRow{},
		&models.ReplyRecord{},
		&models.SafetyEvent{},
	)
}

// Close closes the database connection
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Topic operations

// SaveTopics inserts topics not seen before
func (r *Repository) SaveTopics(ctx context.Context, topics []*models.Topic) error {
	if len(topics) == 0 {
		return nil
	}
	rows := make([]topicRow, 0, len(topics))
	for _, t := range topics {
		rows = append(rows, topicRow{
			ExternalID:  t.ExternalID,
			Title:       t.Title,
			URL:         t.URL,
			Author:      t.Author,
			SourceType:  t.SourceType,
			SourceName:  t.SourceName,
			Likes:       t.Engagement.Likes,
			Comments:    t.Engagement.Comments,
			Collects:    t.Engagement.Collects,
			Tags:        t.Tags,
			CollectedAt: t.CollectedAt,
		})
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_id"}}, DoNothing: true}).
		Create(&rows).Error
}

// CountTopics returns the number of distinct topics ever collected
func (r *Repository) CountTopics(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&topicRow{}).Count(&n).Error
	return n, err
}

// Analysis operations

func (r *Repository) SaveAnalysis(ctx context.Context, record *models.AnalysisRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	return r.db.WithContext(ctx).Create(&analysisRow{
		ExternalID:      record.Topic.ExternalID,
		Title:           record.Topic.Title,
		URL:             record.Topic.URL,
		Priority:        record.Priority,
		CommercialValue: record.CommercialValue,
		Payload:         string(payload),
		AnalyzedAt:      record.AnalyzedAt,
	}).Error
}

// TopAnalyses returns the highest priority analyses recorded since since
func (r *Repository) TopAnalyses(ctx context.Context, since time.Time, limit int) ([]*models.AnalysisRecord, error) {
	var rows []analysisRow
	query := r.db.WithContext(ctx).
		Where("analyzed_at >= ?", since).
		Order("priority DESC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]*models.AnalysisRecord, 0, len(rows))
	for _, row := range rows {
		var rec models.AnalysisRecord
		if err := json.Unmarshal([]byte(row.Payload), &rec); err != nil {
			return nil, fmt.Errorf("decode analysis %d: %w", row.ID, err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

// Reply operations

func (r *Repository) SaveReplySet(ctx context.Context, set *models.ReplySet) error {
	payload, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode reply set: %w", err)
	}
	row := replySetRow{
		TopicTitle: set.TopicTitle,
		TopicURL:   set.TopicURL,
		Candidates: len(set.Replies),
		Payload:    string(payload),
		CreatedAt:  set.CreatedAt,
	}
	if set.Best != nil {
		row.BestVersion = set.Best.Version
		row.BestScore = set.Best.OverallScore
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// SaveReplyRecord inserts the record or replaces the stored one with the same id
func (r *Repository) SaveReplyRecord(ctx context.Context, record *models.ReplyRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, UpdateAll: true}).
		Create(record).Error
}

func (r *Repository) GetReplyRecord(ctx context.Context, id string) (*models.ReplyRecord, error) {
	var record models.ReplyRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("reply %s: %w", id, storage.ErrNotFound)
		}
		return nil, err
	}
	return &record, nil
}

func (r *Repository) ListReplyRecords(ctx context.Context, filter storage.ReplyFilter) ([]*models.ReplyRecord, error) {
	var records []*models.ReplyRecord
	query := r.db.WithContext(ctx).Model(&models.ReplyRecord{})

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.TopicURL != "" {
		query = query.Where("topic_url = ?", filter.TopicURL)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}

	// Ordering
	if filter.OrderDesc {
		query = query.Order("created_at DESC").Order("id DESC")
	} else {
		query = query.Order("created_at ASC").Order("id ASC")
	}

	// Pagination
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// Safety event operations

func (r *Repository) AppendEvent(ctx context.Context, event models.SafetyEvent) error {
	event.ID = 0
	return r.db.WithContext(ctx).Create(&event).Error
}

func (r *Repository) LoadEvents(ctx context.Context, day time.Time) ([]models.SafetyEvent, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	var events []models.SafetyEvent
	err := r.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp < ?", start, start.AddDate(0, 0, 1)).
		Order("id ASC").
		Find(&events).Error
	return events, err
}

var (
	_ storage.Sink    = (*Repository)(nil)
	_ storage.History = (*Repository)(nil)
)
