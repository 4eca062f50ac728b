package models

import (
	"time"
)

// Severity classifies safety events
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Event types written by the agent
const (
	EventActionCheck   = "action_check"
	EventGateDenied    = "gate_denied"
	EventReplySent     = "reply_sent"
	EventReplyStaged   = "reply_staged"
	EventReplyFailed   = "reply_failed"
	EventActionFailed  = "action_failed"
	EventExtraction    = "extraction_fallback"
	EventSystemPaused  = "system_paused"
	EventSystemResumed = "system_resumed"
	EventRunSummary    = "run_summary"
)

// SafetyEvent is an immutable entry of the safety log
type SafetyEvent struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	EventType string    `gorm:"size:50;index" json:"event_type"`
	Message   string    `gorm:"type:text" json:"message"`
	Severity  Severity  `gorm:"size:20;index" json:"severity"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
}

// GateDecision is the outcome of a rate gate check
type GateDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}
