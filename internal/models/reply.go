package models

import (
	"time"
)

// ReplyCandidate is one generated reply version
type ReplyCandidate struct {
	Version             int     `json:"version"`
	Angle               string  `json:"angle"`
	Content             string  `json:"content"`
	RelevanceScore      float64 `json:"relevance_score"`
	AttractivenessScore float64 `json:"attractiveness_score"`
	OverallScore        float64 `json:"overall_score"`
	Recommended         bool    `json:"recommended"`
	Feedback            string  `json:"feedback,omitempty"`
}

// Rescore recomputes OverallScore from the two component scores and returns it
func (c *ReplyCandidate) Rescore() float64 {
	c.OverallScore = (c.RelevanceScore + c.AttractivenessScore) / 2
	return c.OverallScore
}

// ReplySet groups the candidates generated for one topic.
// Best is nil exactly when Replies is empty.
type ReplySet struct {
	TopicTitle  string            `json:"topic_title"`
	TopicURL    string            `json:"topic_url"`
	TargetAngle string            `json:"target_angle"`
	PainPoint   string            `json:"pain_point"`
	Demand      string            `json:"demand"`
	Replies     []*ReplyCandidate `json:"replies"`
	Best        *ReplyCandidate   `json:"best_reply"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ReplyStatus is the lifecycle state of a reply record
type ReplyStatus string

const (
	ReplyStatusStaged  ReplyStatus = "staged"
	ReplyStatusSent    ReplyStatus = "sent"
	ReplyStatusFailed  ReplyStatus = "failed"
	ReplyStatusExpired ReplyStatus = "expired"
)

// ReplyRecord is the history entry of one send attempt
type ReplyRecord struct {
	ID           string      `gorm:"primaryKey;size:36" json:"id"`
	RunID        string      `gorm:"size:36;index" json:"run_id"`
	TopicTitle   string      `gorm:"size:500" json:"topic_title"`
	TopicURL     string      `gorm:"size:1000;index" json:"topic_url"`
	Content      string      `gorm:"type:text" json:"content"`
	Version      int         `json:"version"`
	Angle        string      `gorm:"size:200" json:"angle"`
	Score        float64     `json:"score"`
	Status       ReplyStatus `gorm:"size:20;index" json:"status"`
	Method       string      `gorm:"size:20" json:"method"` // confirm or stage
	ErrorMessage string      `gorm:"type:text" json:"error_message,omitempty"`
	SentAt       *time.Time  `json:"sent_at,omitempty"`
	CreatedAt    time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// IsStaged returns true if the reply still waits for approval
func (r *ReplyRecord) IsStaged() bool {
	return r.Status == ReplyStatusStaged
}
