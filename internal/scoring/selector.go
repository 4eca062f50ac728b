package scoring

import (
	"github.com/xhs-agent/internal/models"
)

// Select picks the candidate with the highest overall score, ties going to the
// lowest version. Overall scores are recomputed first. Returns nil for no candidates.
func Select(replies []*models.ReplyCandidate) *models.ReplyCandidate {
	var best *models.ReplyCandidate
	for _, c := range replies {
		if c == nil {
			continue
		}
		score := c.Rescore()
		if best == nil ||
			score > best.OverallScore ||
			(score == best.OverallScore && c.Version < best.Version) {
			best = c
		}
	}
	return best
}

// Finalize assigns the best candidate of the set
func Finalize(set *models.ReplySet) *models.ReplyCandidate {
	set.Best = Select(set.Replies)
	return set.Best
}
