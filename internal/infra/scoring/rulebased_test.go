package scoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/vastulab/vastu-backend/internal/domain/analyses"
	"github.com/vastulab/vastu-backend/internal/domain/rules"
	"github.com/vastulab/vastu-backend/internal/domain/vastu"
)

func goodPlan() domain.FloorPlan {
	return domain.FloorPlan{
		Orientation: vastu.Northeast,
		Rooms: []domain.Room{
			{Name: "Kitchen", Type: vastu.Kitchen, Direction: vastu.Southeast},
			{Name: "Master bedroom", Type: vastu.Bedroom, Direction: vastu.Southwest},
			{Name: "Pooja", Type: vastu.PoojaRoom, Direction: vastu.Northeast},
		},
	}
}

func badPlan() domain.FloorPlan {
	return domain.FloorPlan{
		Orientation: vastu.Southwest,
		Rooms: []domain.Room{
			{Name: "Kitchen", Type: vastu.Kitchen, Direction: vastu.Northeast},
			{Name: "Master bedroom", Type: vastu.Bedroom, Direction: vastu.Northeast},
			{Name: "Toilet", Type: vastu.Bathroom, Direction: vastu.Northeast},
		},
	}
}

func TestScoreProducesValidResult(t *testing.T) {
	res, err := NewRuleBased().Score(context.Background(), goodPlan(), nil)
	require.NoError(t, err)
	require.NoError(t, res.Validate())
	assert.Len(t, res.Directions, 8)
	assert.Len(t, res.Elements, 5)
	assert.Len(t, res.Rooms, 3)
	assert.NotEmpty(t, res.Summary)
}

func TestScoreIsDeterministic(t *testing.T) {
	s := NewRuleBased()
	a, err := s.Score(context.Background(), goodPlan(), nil)
	require.NoError(t, err)
	b, err := s.Score(context.Background(), goodPlan(), nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestScoreRanksPlansSensibly(t *testing.T) {
	s := NewRuleBased()
	good, err := s.Score(context.Background(), goodPlan(), nil)
	require.NoError(t, err)
	bad, err := s.Score(context.Background(), badPlan(), nil)
	require.NoError(t, err)
	assert.Greater(t, good.OverallScore, bad.OverallScore)

	// favorable placements earn the high room score
	for _, rs := range good.Rooms {
		assert.Equal(t, 90.0, rs.Score, rs.Room)
	}
	for _, rs := range bad.Rooms {
		assert.Equal(t, 45.0, rs.Score, rs.Room)
		assert.NotEmpty(t, rs.Issues, rs.Room)
	}
}

func TestScoreFlagsWeakDirections(t *testing.T) {
	res, err := NewRuleBased().Score(context.Background(), badPlan(), nil)
	require.NoError(t, err)
	// three unfavorable rooms stacked in the northeast drag it down
	ne := res.Directions[vastu.Northeast]
	assert.Less(t, ne.Score, 60.0)
	assert.NotEmpty(t, ne.Issues)
}

func TestScoreRoomWithoutDirection(t *testing.T) {
	plan := domain.FloorPlan{
		Orientation: vastu.North,
		Rooms:       []domain.Room{{Name: "Study", Type: vastu.Study}},
	}
	res, err := NewRuleBased().Score(context.Background(), plan, nil)
	require.NoError(t, err)
	require.Len(t, res.Rooms, 1)
	assert.Equal(t, 70.0, res.Rooms[0].Score)
	assert.NotEmpty(t, res.Rooms[0].Recommendations)
}

func TestScoreUsesCatalogRemedies(t *testing.T) {
	catalog := []*rules.Rule{
		{
			ID:         "ne-toilet",
			Name:       "Toilet away from the northeast",
			Direction:  vastu.Northeast,
			Importance: rules.ImportanceCritical,
			Active:     true,
			Remedies:   []string{"Relocate the northeast toilet", "Place a healthy plant outside the door"},
		},
		{
			ID:         "inactive",
			Name:       "Disabled rule",
			Direction:  vastu.Northeast,
			Importance: rules.ImportanceHigh,
			Active:     false,
			Remedies:   []string{"Should never appear"},
		},
	}
	res, err := NewRuleBased().Score(context.Background(), badPlan(), catalog)
	require.NoError(t, err)

	require.NotEmpty(t, res.Remedies)
	descs := make([]string, 0, len(res.Remedies))
	for _, r := range res.Remedies {
		descs = append(descs, r.Description)
		assert.NotContains(t, r.Description, "never appear")
	}
	assert.Contains(t, descs, "Relocate the northeast toilet")

	// keyword classification drives cost and difficulty
	for _, r := range res.Remedies {
		switch r.Description {
		case "Relocate the northeast toilet":
			assert.Equal(t, domain.RemedyStructural, r.Type)
			assert.Equal(t, domain.TierHigh, r.Cost)
		case "Place a healthy plant outside the door":
			assert.Equal(t, domain.RemedyPlant, r.Type)
			assert.Equal(t, domain.TierLow, r.Cost)
		}
	}

	// weakened direction picks up the catalog recommendations
	assert.NotEmpty(t, res.Directions[vastu.Northeast].Recommendations)
}

func TestScoreRemediesOrderedByPriority(t *testing.T) {
	catalog := []*rules.Rule{
		{ID: "low", Direction: vastu.Northeast, Importance: rules.ImportanceLow, Active: true, Remedies: []string{"Low priority fix"}},
		{ID: "crit", Direction: vastu.Northeast, Importance: rules.ImportanceCritical, Active: true, Remedies: []string{"Critical fix"}},
	}
	res, err := NewRuleBased().Score(context.Background(), badPlan(), catalog)
	require.NoError(t, err)
	require.Len(t, res.Remedies, 2)
	assert.Equal(t, "Critical fix", res.Remedies[0].Description)
	assert.Equal(t, "Low priority fix", res.Remedies[1].Description)
}

func TestScoreHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRuleBased().Score(ctx, goodPlan(), nil)
	assert.Error(t, err)
}
