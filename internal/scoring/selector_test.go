package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhs-agent/internal/models"
)

func TestSelect(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Nil(t, Select(nil))
		assert.Nil(t, Select([]*models.ReplyCandidate{}))
	})

	t.Run("single", func(t *testing.T) {
		c := &models.ReplyCandidate{Version: 4, RelevanceScore: 2, AttractivenessScore: 3}
		assert.Same(t, c, Select([]*models.ReplyCandidate{c}))
	})

	t.Run("highest overall wins", func(t *testing.T) {
		cs := []*models.ReplyCandidate{
			{Version: 1, RelevanceScore: 6, AttractivenessScore: 6},
			{Version: 2, RelevanceScore: 9, AttractivenessScore: 8},
			{Version: 3, RelevanceScore: 7, AttractivenessScore: 7},
		}
		best := Select(cs)
		require.NotNil(t, best)
		assert.Equal(t, 2, best.Version)
		assert.InDelta(t, 8.5, best.OverallScore, 0.0001)
	})

	t.Run("ties go to lowest version", func(t *testing.T) {
		cs := []*models.ReplyCandidate{
			{Version: 3, RelevanceScore: 8, AttractivenessScore: 7},
			{Version: 1, RelevanceScore: 7, AttractivenessScore: 8},
			{Version: 2, RelevanceScore: 6, AttractivenessScore: 6},
		}
		assert.Equal(t, 1, Select(cs).Version)
	})

	t.Run("declared overall is ignored", func(t *testing.T) {
		cs := []*models.ReplyCandidate{
			{Version: 1, RelevanceScore: 5, AttractivenessScore: 5, OverallScore: 10},
			{Version: 2, RelevanceScore: 6, AttractivenessScore: 6, OverallScore: 0},
		}
		best := Select(cs)
		assert.Equal(t, 2, best.Version)
		assert.InDelta(t, 5.0, cs[0].OverallScore, 0.0001)
	})
}

func TestFinalize(t *testing.T) {
	set := &models.ReplySet{}
	assert.Nil(t, Finalize(set))
	assert.Nil(t, set.Best)

	set.Replies = []*models.ReplyCandidate{{Version: 1, RelevanceScore: 9, AttractivenessScore: 9}}
	assert.Equal(t, 1, Finalize(set).Version)
	assert.Same(t, set.Replies[0], set.Best)
}
