package analyses

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vastulab/vastu-backend/internal/domain/vastu"
)

// ID type for Analysis
type AnalysisID string

// Status enum
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

const (
	TitleMinLen       = 3
	TitleMaxLen       = 100
	DescriptionMaxLen = 500
)

// Dimensions value object. Area is derived from Length×Width and is
// recomputed on every mutation, never set independently.
type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Area   float64 `json:"area"`
	Unit   string  `json:"unit,omitempty"`
}

// Recalculate derives Area from Length and Width. Zero when either side is
// missing.
func (d *Dimensions) Recalculate() {
	if d == nil {
		return
	}
	if d.Length > 0 && d.Width > 0 {
		d.Area = d.Length * d.Width
	} else {
		d.Area = 0
	}
}

// Room descriptor inside a floor plan
type Room struct {
	Name       string          `json:"name"`
	Type       vastu.RoomType  `json:"type"`
	Position   string          `json:"position,omitempty"`
	Dimensions *Dimensions     `json:"dimensions,omitempty"`
	Direction  vastu.Direction `json:"direction,omitempty"`
}

// FloorPlan is the spatial input consumed by scoring
type FloorPlan struct {
	Orientation vastu.Direction `json:"orientation"`
	Dimensions  *Dimensions     `json:"dimensions,omitempty"`
	Rooms       []Room          `json:"rooms,omitempty"`
}

// FileRef points at an uploaded floor-plan file in the blob store
type FileRef struct {
	StorageID    string    `json:"storage_id"`
	OriginalName string    `json:"original_name"`
	URL          string    `json:"url"`
	ByteSize     int64     `json:"byte_size"`
	MimeType     string    `json:"mime_type"`
	UploadedAt   time.Time `json:"uploaded_at"`
}

// Aggregate Root: Analysis
type Analysis struct {
	ID          AnalysisID `json:"id"`
	OwnerID     string     `json:"owner_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Files       []FileRef  `json:"files,omitempty"`
	FloorPlan   FloorPlan  `json:"floor_plan"`

	Status              Status     `json:"status"`
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	ProcessingTime      int64      `json:"processing_time,omitempty"` // seconds

	Result *Result `json:"vastu_analysis,omitempty"`

	IsPublic bool  `json:"is_public"`
	Views    int64 `json:"views"`
	Likes    int64 `json:"likes"`
	Shares   int64 `json:"shares"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New validates inputs and builds an Analysis in pending state.
func New(id AnalysisID, ownerID, title, description string, plan FloorPlan, files []FileRef, isPublic bool, tags []string, now time.Time) (*Analysis, error) {
	title = strings.TrimSpace(title)
	// Bounds are in characters, so multi-byte titles count by rune.
	if l := utf8.RuneCountInString(title); l < TitleMinLen || l > TitleMaxLen {
		return nil, Validationf("title must be %d-%d characters", TitleMinLen, TitleMaxLen)
	}
	if utf8.RuneCountInString(description) > DescriptionMaxLen {
		return nil, Validationf("description must be at most %d characters", DescriptionMaxLen)
	}
	if ownerID == "" {
		return nil, Validationf("owner is required")
	}
	if !plan.Orientation.Valid() {
		return nil, Validationf("orientation %q is not a compass direction", plan.Orientation)
	}
	for i := range plan.Rooms {
		r := &plan.Rooms[i]
		if r.Type != "" && !r.Type.Valid() {
			return nil, Validationf("room %q has unknown type %q", r.Name, r.Type)
		}
		if r.Direction != "" && !r.Direction.Valid() {
			return nil, Validationf("room %q has invalid direction %q", r.Name, r.Direction)
		}
		r.Dimensions.Recalculate()
	}
	plan.Dimensions.Recalculate()

	return &Analysis{
		ID:          id,
		OwnerID:     ownerID,
		Title:       title,
		Description: description,
		Tags:        dedupeTags(tags),
		Files:       files,
		FloorPlan:   plan,
		Status:      StatusPending,
		IsPublic:    isPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Start transitions pending → processing. Any other starting state is a
// conflict: there is exactly one scoring run per analysis.
func (a *Analysis) Start(now time.Time) error {
	if a.Status != StatusPending {
		return Conflictf("analysis %s already %s", a.ID, a.Status)
	}
	a.Status = StatusProcessing
	t := now
	a.ProcessingStartedAt = &t
	a.UpdatedAt = now
	return nil
}

// Complete transitions processing → completed and attaches the result.
func (a *Analysis) Complete(res *Result, now time.Time) error {
	if a.Status != StatusProcessing {
		return Conflictf("cannot complete analysis %s in state %s", a.ID, a.Status)
	}
	if res == nil {
		return Validationf("completed analysis requires a result payload")
	}
	if err := res.Validate(); err != nil {
		return err
	}
	a.Status = StatusCompleted
	t := now
	a.CompletedAt = &t
	if a.ProcessingStartedAt != nil {
		secs := int64(now.Sub(*a.ProcessingStartedAt).Round(time.Second) / time.Second)
		if secs < 0 {
			secs = 0
		}
		a.ProcessingTime = secs
	}
	a.Result = res
	a.UpdatedAt = now
	return nil
}

// Fail transitions processing → failed. ProcessingStartedAt is retained for
// diagnostics; no result payload is attached.
func (a *Analysis) Fail(now time.Time) error {
	if a.Status != StatusProcessing {
		return Conflictf("cannot fail analysis %s in state %s", a.ID, a.Status)
	}
	a.Status = StatusFailed
	a.UpdatedAt = now
	return nil
}

// OwnedBy reports whether the caller is the owning principal.
func (a *Analysis) OwnedBy(callerID string) bool {
	return callerID != "" && callerID == a.OwnerID
}

// ViewableBy reports whether the caller may read this analysis.
func (a *Analysis) ViewableBy(callerID string) bool {
	return a.IsPublic || a.OwnedBy(callerID)
}

// ApplyUpdate mutates the caller-editable descriptive fields. Status, result
// and counters are never touched here.
func (a *Analysis) ApplyUpdate(title, description *string, isPublic *bool, tags []string, now time.Time) error {
	if title != nil {
		t := strings.TrimSpace(*title)
		if l := utf8.RuneCountInString(t); l < TitleMinLen || l > TitleMaxLen {
			return Validationf("title must be %d-%d characters", TitleMinLen, TitleMaxLen)
		}
		a.Title = t
	}
	if description != nil {
		if utf8.RuneCountInString(*description) > DescriptionMaxLen {
			return Validationf("description must be at most %d characters", DescriptionMaxLen)
		}
		a.Description = *description
	}
	if isPublic != nil {
		a.IsPublic = *isPublic
	}
	if tags != nil {
		a.Tags = dedupeTags(tags)
	}
	a.UpdatedAt = now
	return nil
}

func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
