package analyses

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/vastulab/vastu-backend/internal/application"
	domain "github.com/vastulab/vastu-backend/internal/domain/analyses"
	"github.com/vastulab/vastu-backend/internal/domain/notify"
	"github.com/vastulab/vastu-backend/internal/domain/rules"
	"github.com/vastulab/vastu-backend/internal/domain/users"
)

// Sort allow-list for the list query
var sortFields = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"title":     "title",
}

// SortColumn resolves an API sort field to its storage column, false when
// the field is not allow-listed.
func SortColumn(field string) (string, bool) {
	col, ok := sortFields[field]
	return col, ok
}

// Service implements the analysis job lifecycle use-cases.
// Safe for concurrent use.
type Service struct {
	Repo    domain.Repository
	Users   users.Repository
	Catalog rules.Catalog
	Blobs   domain.BlobStore
	Scorer  domain.Scorer
	// PremiumScorer, when set, is used for owners on the premium tier.
	PremiumScorer  domain.Scorer
	Sink           notify.Sink
	Clock          application.Clock
	ScoringTimeout time.Duration

	pool *Pool
}

// StartWorkers spins up the scoring worker pool. Must be called once before
// the first Start; Stop drains it on shutdown.
func (s *Service) StartWorkers(workers, buffer int) {
	s.pool = NewPool(workers, buffer, s.RunScoring)
	s.pool.Start()
}

// StopWorkers drains the queue and waits for in-flight scoring runs.
func (s *Service) StopWorkers() {
	if s.pool != nil {
		s.pool.Stop()
	}
}

//
// ==== USE CASES ====
//

type CreateCommand struct {
	OwnerID     string
	Title       string
	Description string
	FloorPlan   domain.FloorPlan
	Files       []domain.FileRef
	IsPublic    bool
	Tags        []string
}

type UpdateCommand struct {
	Title       *string
	Description *string
	IsPublic    *bool
	Tags        []string
}

// Create persists a new Analysis in pending state.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*domain.Analysis, error) {
	if cmd.OwnerID == "" {
		return nil, domain.Unauthorizedf("authentication required")
	}
	a, err := domain.New(
		domain.AnalysisID(uuid.New().String()),
		cmd.OwnerID, cmd.Title, cmd.Description,
		cmd.FloorPlan, cmd.Files, cmd.IsPublic, cmd.Tags,
		s.Clock.Now(),
	)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.Save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// CreateWithUploads stores the floor-plan files in the blob store first,
// then creates the Analysis referencing them. Any upload failure aborts the
// whole batch: files already stored are deleted best-effort and no Analysis
// is created.
func (s *Service) CreateWithUploads(ctx context.Context, cmd CreateCommand, uploads []domain.Blob) (*domain.Analysis, error) {
	if cmd.OwnerID == "" {
		return nil, domain.Unauthorizedf("authentication required")
	}
	// validate before touching the blob store
	if _, err := domain.New(
		domain.AnalysisID(uuid.New().String()),
		cmd.OwnerID, cmd.Title, cmd.Description,
		cmd.FloorPlan, nil, cmd.IsPublic, cmd.Tags,
		s.Clock.Now(),
	); err != nil {
		return nil, err
	}

	refs := make([]domain.FileRef, 0, len(uploads))
	for _, b := range uploads {
		ref, err := s.Blobs.Upload(ctx, b)
		if err != nil {
			s.cleanupBlobs(ctx, refs)
			return nil, domain.Dependencyf("blob store upload of %q failed: %v", b.Name, err)
		}
		refs = append(refs, ref)
	}

	cmd.Files = refs
	a, err := s.Create(ctx, cmd)
	if err != nil {
		s.cleanupBlobs(ctx, refs)
		return nil, err
	}
	return a, nil
}

func (s *Service) cleanupBlobs(ctx context.Context, refs []domain.FileRef) {
	for _, ref := range refs {
		if err := s.Blobs.Delete(ctx, ref.StorageID); err != nil {
			log.Printf("blob cleanup failed storage_id=%s: %v", ref.StorageID, err)
		}
	}
}

// Start transitions pending → processing and enqueues the scoring run.
// Returns immediately; callers poll Get to observe completion.
func (s *Service) Start(ctx context.Context, callerID string, id domain.AnalysisID) (*domain.Analysis, error) {
	a, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerID == "" {
		return nil, domain.Unauthorizedf("authentication required")
	}
	if !a.OwnedBy(callerID) {
		return nil, domain.Forbiddenf("only the owner may start processing")
	}

	now := s.Clock.Now()
	ok, err := s.Repo.MarkProcessing(ctx, id, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.Conflictf("analysis %s is already processing or completed", id)
	}

	a.Status = domain.StatusProcessing
	a.ProcessingStartedAt = &now
	s.pool.Enqueue(id)
	return a, nil
}

// RunScoring is the worker entry point: compute a result for one analysis
// and drive it to its terminal state. Errors never escape; a failed or
// timed-out scoring run lands the entity in failed.
func (s *Service) RunScoring(id domain.AnalysisID) {
	timeout := s.ScoringTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a, err := s.Repo.Get(ctx, id)
	if err != nil || a == nil {
		log.Printf("scoring skipped id=%s: %v", id, err)
		return
	}
	if a.Status != domain.StatusProcessing {
		log.Printf("scoring skipped id=%s status=%s", id, a.Status)
		return
	}

	started := time.Now()
	res, err := s.score(ctx, a)
	observeScoring(err == nil, time.Since(started))

	// Complete validates the payload and derives ProcessingTime; the
	// persist below is a narrow status/result write so owner updates that
	// landed while scoring ran are never overwritten.
	now := s.Clock.Now()
	if err == nil {
		err = a.Complete(res, now)
	}
	if err != nil {
		log.Printf("scoring failed id=%s: %v", id, err)
		if ok, ferr := s.Repo.MarkFailed(context.Background(), id, now); ferr != nil {
			log.Printf("persisting failed state id=%s: %v", id, ferr)
		} else if !ok {
			log.Printf("fail transition skipped id=%s: no longer processing", id)
		}
		return
	}
	ok, err := s.Repo.MarkCompleted(context.Background(), id, res, now, a.ProcessingTime)
	if err != nil {
		log.Printf("persisting scoring outcome failed id=%s: %v", id, err)
		return
	}
	if !ok {
		log.Printf("complete transition skipped id=%s: no longer processing", id)
		return
	}
	s.notifyCompleted(a)
}

// score fetches the rule snapshot and invokes the scorer selected for the
// owner's tier.
func (s *Service) score(ctx context.Context, a *domain.Analysis) (*domain.Result, error) {
	snapshot, err := s.Catalog.Find(ctx, rules.Query{})
	if err != nil {
		return nil, domain.Dependencyf("rule catalog unavailable: %v", err)
	}
	return s.scorerFor(ctx, a.OwnerID).Score(ctx, a.FloorPlan, snapshot)
}

func (s *Service) scorerFor(ctx context.Context, ownerID string) domain.Scorer {
	if s.PremiumScorer == nil || s.Users == nil {
		return s.Scorer
	}
	u, err := s.Users.Get(ctx, ownerID)
	if err != nil || u == nil || u.Tier != users.TierPremium {
		return s.Scorer
	}
	return s.PremiumScorer
}

func (s *Service) notifyCompleted(a *domain.Analysis) {
	if s.Sink == nil || s.Users == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	u, err := s.Users.Get(ctx, a.OwnerID)
	if err != nil || u == nil {
		return
	}
	msg := notify.Message{
		Recipient: u.Email,
		Template:  "analysis-completed",
		Data: map[string]any{
			"title": a.Title,
			"score": a.Result.OverallScore,
		},
	}
	if err := s.Sink.Send(ctx, msg); err != nil {
		log.Printf("completion notification failed id=%s: %v", a.ID, err)
	}
}

// Get enforces the visibility rule and counts non-owner views best-effort.
func (s *Service) Get(ctx context.Context, callerID string, id domain.AnalysisID) (*domain.Analysis, error) {
	a, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.ViewableBy(callerID) {
		if callerID == "" {
			return nil, domain.Unauthorizedf("authentication required")
		}
		return nil, domain.Forbiddenf("analysis %s is private", id)
	}
	if !a.OwnedBy(callerID) {
		// view counter must never block the read
		if ok, err := s.Repo.Increment(ctx, id, domain.CounterViews, false); err != nil {
			log.Printf("view counter increment failed id=%s: %v", id, err)
		} else if ok {
			a.Views++
		}
	}
	return a, nil
}

// List applies visibility, filtering, pagination and allow-listed sorting.
func (s *Service) List(ctx context.Context, callerID string, f domain.Filter) (domain.PaginatedResult, error) {
	if f.SortBy == "" {
		f.SortBy = "createdAt"
		f.SortDesc = true
	}
	if _, ok := SortColumn(f.SortBy); !ok {
		return domain.PaginatedResult{}, domain.Validationf("sort field %q not allowed (createdAt, updatedAt, title)", f.SortBy)
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.MinScore != nil && (*f.MinScore < 0 || *f.MinScore > 100) {
		return domain.PaginatedResult{}, domain.Validationf("minScore must be within [0,100]")
	}
	// non-owners only ever see public rows
	if callerID == "" || (f.OwnerID != "" && f.OwnerID != callerID) {
		f.PublicOnly = true
	}
	if f.OwnerID == "" && !f.PublicOnly {
		// without an owner filter the listing is the public feed; own
		// private rows require owner=<self>
		f.PublicOnly = true
	}
	return s.Repo.List(ctx, f)
}

// Like increments the like counter on a public analysis. Caller-agnostic.
func (s *Service) Like(ctx context.Context, id domain.AnalysisID) error {
	return s.incrementPublic(ctx, id, domain.CounterLikes)
}

// Share increments the share counter on a public analysis.
func (s *Service) Share(ctx context.Context, id domain.AnalysisID) error {
	return s.incrementPublic(ctx, id, domain.CounterShares)
}

func (s *Service) incrementPublic(ctx context.Context, id domain.AnalysisID, c domain.Counter) error {
	ok, err := s.Repo.Increment(ctx, id, c, true)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	// disambiguate between missing and private
	a, err := s.Repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if a == nil {
		return domain.NotFoundf("analysis %s not found", id)
	}
	return domain.Forbiddenf("analysis %s is not public", id)
}

// Update applies a partial update of the descriptive fields. Owner only.
func (s *Service) Update(ctx context.Context, callerID string, id domain.AnalysisID, cmd UpdateCommand) (*domain.Analysis, error) {
	a, err := s.requireOwner(ctx, callerID, id)
	if err != nil {
		return nil, err
	}
	if err := a.ApplyUpdate(cmd.Title, cmd.Description, cmd.IsPublic, cmd.Tags, s.Clock.Now()); err != nil {
		return nil, err
	}
	if err := s.Repo.Save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete removes the analysis. Associated blobs are deleted best-effort;
// blob store failures are logged and do not abort the removal.
func (s *Service) Delete(ctx context.Context, callerID string, id domain.AnalysisID) error {
	a, err := s.requireOwner(ctx, callerID, id)
	if err != nil {
		return err
	}
	if s.Blobs != nil {
		s.cleanupBlobs(ctx, a.Files)
	}
	ok, err := s.Repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return domain.NotFoundf("analysis %s not found", id)
	}
	return nil
}

func (s *Service) requireOwner(ctx context.Context, callerID string, id domain.AnalysisID) (*domain.Analysis, error) {
	a, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if callerID == "" {
		return nil, domain.Unauthorizedf("authentication required")
	}
	if !a.OwnedBy(callerID) {
		return nil, domain.Forbiddenf("only the owner may modify this analysis")
	}
	return a, nil
}

func (s *Service) get(ctx context.Context, id domain.AnalysisID) (*domain.Analysis, error) {
	a, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, domain.NotFoundf("analysis %s not found", id)
	}
	return a, nil
}
