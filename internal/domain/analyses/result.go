package analyses

import (
	"github.com/vastulab/vastu-backend/internal/domain/vastu"
)

// Balance classification for an element score
type Balance string

const (
	Balanced  Balance = "balanced"
	Weak      Balance = "weak"
	Excessive Balance = "excessive"
)

// Remedy type enum
type RemedyType string

const (
	RemedyStructural RemedyType = "structural"
	RemedyColor      RemedyType = "color"
	RemedyMirror     RemedyType = "mirror"
	RemedyPlant      RemedyType = "plant"
	RemedyYantra     RemedyType = "yantra"
)

// CostTier / DifficultyTier share the same scale
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

type DirectionScore struct {
	Score           float64  `json:"score"`
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

type ElementScore struct {
	Score           float64  `json:"score"`
	Balance         Balance  `json:"balance"`
	Recommendations []string `json:"recommendations,omitempty"`
}

type RoomScore struct {
	Room            string   `json:"room"`
	Score           float64  `json:"score"`
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

type Remedy struct {
	Type        RemedyType `json:"type"`
	Description string     `json:"description"`
	Priority    int        `json:"priority"`
	Cost        Tier       `json:"cost"`
	Difficulty  Tier       `json:"difficulty"`
}

// Result is the vastu_analysis payload attached on completion
type Result struct {
	OverallScore float64                            `json:"overall_score"`
	Directions   map[vastu.Direction]DirectionScore `json:"directions"`
	Elements     map[vastu.Element]ElementScore     `json:"elements"`
	Rooms        []RoomScore                        `json:"rooms,omitempty"`
	Remedies     []Remedy                           `json:"remedies,omitempty"`
	Summary      string                             `json:"summary,omitempty"`
}

// Validate enforces the result-payload shape: scores bounded to [0,100],
// all 8 directions and all 5 elements present.
func (r *Result) Validate() error {
	if r.OverallScore < 0 || r.OverallScore > 100 {
		return Validationf("overall score %.1f out of range [0,100]", r.OverallScore)
	}
	if len(r.Directions) != len(vastu.Directions) {
		return Validationf("result must score all %d directions, got %d", len(vastu.Directions), len(r.Directions))
	}
	for _, d := range vastu.Directions {
		ds, ok := r.Directions[d]
		if !ok {
			return Validationf("result missing direction %s", d)
		}
		if ds.Score < 0 || ds.Score > 100 {
			return Validationf("direction %s score %.1f out of range [0,100]", d, ds.Score)
		}
	}
	if len(r.Elements) != len(vastu.Elements) {
		return Validationf("result must score all %d elements, got %d", len(vastu.Elements), len(r.Elements))
	}
	for _, e := range vastu.Elements {
		es, ok := r.Elements[e]
		if !ok {
			return Validationf("result missing element %s", e)
		}
		if es.Score < 0 || es.Score > 100 {
			return Validationf("element %s score %.1f out of range [0,100]", e, es.Score)
		}
		switch es.Balance {
		case Balanced, Weak, Excessive:
		default:
			return Validationf("element %s has unknown balance %q", e, es.Balance)
		}
	}
	for _, rs := range r.Rooms {
		if rs.Score < 0 || rs.Score > 100 {
			return Validationf("room %s score %.1f out of range [0,100]", rs.Room, rs.Score)
		}
	}
	return nil
}
