package models

import (
	"time"
)

// DemandInsight is a single user need mined from a topic
type DemandInsight struct {
	Type               string   `json:"demand_type"`
	Description        string   `json:"description"`
	Urgency            float64  `json:"urgency"`
	Universality       float64  `json:"universality"`
	Commerciality      float64  `json:"commerciality"`
	Feasibility        float64  `json:"feasibility"`
	SolutionDirections []string `json:"solution_directions,omitempty"`
}

// TotalScore is the mean of the four demand dimensions
func (d DemandInsight) TotalScore() float64 {
	return (d.Urgency + d.Universality + d.Commerciality + d.Feasibility) / 4
}

// AnalysisRecord is the structured interpretation of one topic.
// Priority is assigned by the ranker and never read from model output.
type AnalysisRecord struct {
	Topic             Topic           `json:"topic"`
	PainPoints        []string        `json:"pain_points"`
	Demands           []DemandInsight `json:"demands"`
	DemandUrgency     float64         `json:"demand_urgency"`
	DemandFeasibility float64         `json:"demand_feasibility"`
	CommercialValue   float64         `json:"commercial_value"`
	TargetAudience    string          `json:"target_audience,omitempty"`
	SuggestedAngles   []string        `json:"suggested_angles,omitempty"`
	Priority          float64         `json:"priority"`
	AnalyzedAt        time.Time       `json:"analyzed_at"`
}

// PrimaryPainPoint returns the first extracted pain point or an empty string
func (a *AnalysisRecord) PrimaryPainPoint() string {
	if len(a.PainPoints) == 0 {
		return ""
	}
	return a.PainPoints[0]
}

// PrimaryDemand returns the description of the first demand or an empty string
func (a *AnalysisRecord) PrimaryDemand() string {
	if len(a.Demands) == 0 {
		return ""
	}
	return a.Demands[0].Description
}

// PrimaryAngle returns the first suggested angle, falling back to def
func (a *AnalysisRecord) PrimaryAngle(def string) string {
	if len(a.SuggestedAngles) == 0 || a.SuggestedAngles[0] == "" {
		return def
	}
	return a.SuggestedAngles[0]
}
