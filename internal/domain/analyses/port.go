package analyses

import (
	"context"
	"io"
	"time"

	"github.com/vastulab/vastu-backend/internal/domain/rules"
)

// Counter identifies an engagement counter column
type Counter string

const (
	CounterViews  Counter = "views"
	CounterLikes  Counter = "likes"
	CounterShares Counter = "shares"
)

// Filter for the list query
type Filter struct {
	OwnerID    string
	PublicOnly bool
	MinScore   *float64
	Tag        string
	Page       int
	Limit      int
	SortBy     string // createdAt | updatedAt | title
	SortDesc   bool
}

// Repository port (interface for persistence)
type Repository interface {
	Save(ctx context.Context, a *Analysis) error
	// Get returns (nil, nil) when the id is unknown.
	Get(ctx context.Context, id AnalysisID) (*Analysis, error)
	List(ctx context.Context, f Filter) (PaginatedResult, error)
	// MarkProcessing atomically transitions pending → processing. Returns
	// false when the row was not in pending state (or does not exist), so
	// two concurrent starts yield exactly one scoring run.
	MarkProcessing(ctx context.Context, id AnalysisID, startedAt time.Time) (bool, error)
	// MarkCompleted transitions processing → completed, touching only
	// status, result and timing columns. Descriptive fields updated by the
	// owner while scoring ran are left intact. False when the row was not
	// in processing state.
	MarkCompleted(ctx context.Context, id AnalysisID, res *Result, completedAt time.Time, processingTime int64) (bool, error)
	// MarkFailed transitions processing → failed, status and timestamp only.
	MarkFailed(ctx context.Context, id AnalysisID, failedAt time.Time) (bool, error)
	// Increment bumps one counter by one in a single statement. When
	// publicOnly is set, private rows are left untouched and false is
	// returned.
	Increment(ctx context.Context, id AnalysisID, c Counter, publicOnly bool) (bool, error)
	Delete(ctx context.Context, id AnalysisID) (bool, error)
}

// Scorer port: a pure function of (floor plan, rule snapshot) → result.
// Implementations must not mutate their inputs; this is what makes the
// scoring step swappable for an ML-backed engine.
type Scorer interface {
	Score(ctx context.Context, plan FloorPlan, catalog []*rules.Rule) (*Result, error)
}

// Blob is an upload request to the blob store
type Blob struct {
	Reader   io.Reader
	Size     int64
	Name     string
	MimeType string
	Folder   string
}

// BlobStore port (interface for the external file store)
type BlobStore interface {
	Upload(ctx context.Context, b Blob) (FileRef, error)
	Delete(ctx context.Context, storageID string) error
}
