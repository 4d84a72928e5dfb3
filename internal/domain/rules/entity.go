package rules

import (
	"time"

	"github.com/vastulab/vastu-backend/internal/domain/vastu"
)

// Importance of an advisory rule
type Importance string

const (
	ImportanceLow      Importance = "low"
	ImportanceMedium   Importance = "medium"
	ImportanceHigh     Importance = "high"
	ImportanceCritical Importance = "critical"
)

// Weight orders importances for sorting and scoring.
func (i Importance) Weight() int {
	switch i {
	case ImportanceCritical:
		return 4
	case ImportanceHigh:
		return 3
	case ImportanceMedium:
		return 2
	case ImportanceLow:
		return 1
	}
	return 0
}

// Rule is an advisory record from the catalog, consumed read-only by the
// scoring step.
type Rule struct {
	ID           string          `json:"id" yaml:"id"`
	Name         string          `json:"name" yaml:"name"`
	Category     string          `json:"category" yaml:"category"`
	Direction    vastu.Direction `json:"direction,omitempty" yaml:"direction,omitempty"`
	RoomType     vastu.RoomType  `json:"room_type,omitempty" yaml:"roomType,omitempty"`
	Element      vastu.Element   `json:"element,omitempty" yaml:"element,omitempty"`
	Importance   Importance      `json:"importance" yaml:"importance"`
	Impact       string          `json:"impact,omitempty" yaml:"impact,omitempty"`
	Priority     int             `json:"priority" yaml:"priority"`
	Version      int             `json:"version" yaml:"-"`
	Active       bool            `json:"active" yaml:"active"`
	Remedies     []string        `json:"remedies,omitempty" yaml:"remedies,omitempty"`
	Benefits     []string        `json:"benefits,omitempty" yaml:"benefits,omitempty"`
	Consequences []string        `json:"consequences,omitempty" yaml:"consequences,omitempty"`
	CreatedAt    time.Time       `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time       `json:"updated_at" yaml:"-"`
}

// Matches reports whether the rule satisfies every set field of q.
func (r *Rule) Matches(q Query) bool {
	if !r.Active {
		return false
	}
	if q.Category != "" && q.Category != r.Category {
		return false
	}
	if q.Direction != "" && q.Direction != r.Direction {
		return false
	}
	if q.RoomType != "" && q.RoomType != r.RoomType {
		return false
	}
	if q.Element != "" && q.Element != r.Element {
		return false
	}
	if q.Importance != "" && q.Importance != r.Importance {
		return false
	}
	return true
}
