package rules

import (
	"context"

	"github.com/vastulab/vastu-backend/internal/domain/vastu"
)

// Query filters the catalog. Empty fields match everything.
type Query struct {
	Category   string
	Direction  vastu.Direction
	RoomType   vastu.RoomType
	Element    vastu.Element
	Importance Importance
}

// Catalog port: matching active rules ordered by priority desc, then
// importance desc.
type Catalog interface {
	Find(ctx context.Context, q Query) ([]*Rule, error)
	// Save upserts a rule; an existing rule gets its version counter bumped.
	Save(ctx context.Context, r *Rule) error
}
