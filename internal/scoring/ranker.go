package scoring

import (
	"math"
	"sort"

	"github.com/xhs-agent/internal/models"
)

// Priority weights
const (
	WeightCommercial  = 0.3
	WeightEngagement  = 0.2
	WeightUrgency     = 0.3
	WeightFeasibility = 0.2
)

// Defaults applied when a topic has no demand items
const (
	DefaultUrgency     = 0.0
	DefaultFeasibility = 5.0
)

// EngagementScore maps raw counters onto [0, 10]; comments weigh 2x, collects 3x
func EngagementScore(e models.Engagement) float64 {
	return Clamp(float64(e.Likes+2*e.Comments+3*e.Collects) / 1000)
}

// DemandUrgency is the highest urgency among demands
func DemandUrgency(demands []models.DemandInsight) float64 {
	if len(demands) == 0 {
		return DefaultUrgency
	}
	best := demands[0].Urgency
	for _, d := range demands[1:] {
		best = math.Max(best, d.Urgency)
	}
	return best
}

// DemandFeasibility is the highest feasibility among demands
func DemandFeasibility(demands []models.DemandInsight) float64 {
	if len(demands) == 0 {
		return DefaultFeasibility
	}
	best := demands[0].Feasibility
	for _, d := range demands[1:] {
		best = math.Max(best, d.Feasibility)
	}
	return best
}

// Priority computes the weighted priority of a record, rounded to 2 decimals
func Priority(r *models.AnalysisRecord) float64 {
	p := r.CommercialValue*WeightCommercial +
		EngagementScore(r.Topic.Engagement)*WeightEngagement +
		r.DemandUrgency*WeightUrgency +
		r.DemandFeasibility*WeightFeasibility
	return math.Round(p*100) / 100
}

// Score derives the demand aggregates from r.Demands and assigns r.Priority
func Score(r *models.AnalysisRecord) {
	r.DemandUrgency = DemandUrgency(r.Demands)
	r.DemandFeasibility = DemandFeasibility(r.Demands)
	r.Priority = Priority(r)
}

// Rank returns records ordered by priority, highest first. Equal priorities keep input order.
func Rank(records []*models.AnalysisRecord) []*models.AnalysisRecord {
	ranked := make([]*models.AnalysisRecord, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Priority > ranked[j].Priority
	})
	return ranked
}

// TopN returns the first n ranked records, or all of them when n exceeds the length
func TopN(ranked []*models.AnalysisRecord, n int) []*models.AnalysisRecord {
	if n <= 0 {
		return []*models.AnalysisRecord{}
	}
	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}
