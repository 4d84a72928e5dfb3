package analyses

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/vastulab/vastu-backend/internal/domain/analyses"
	"github.com/vastulab/vastu-backend/internal/domain/notify"
	"github.com/vastulab/vastu-backend/internal/domain/rules"
	"github.com/vastulab/vastu-backend/internal/domain/users"
	"github.com/vastulab/vastu-backend/internal/domain/vastu"
)

//
// ==== fakes ====
//

type fakeRepo struct {
	mu       sync.Mutex
	rows     map[domain.AnalysisID]*domain.Analysis
	lastList domain.Filter
	saveErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{rows: map[domain.AnalysisID]*domain.Analysis{}}
}

func (r *fakeRepo) Save(_ context.Context, a *domain.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	cp := *a
	r.rows[a.ID] = &cp
	return nil
}

func (r *fakeRepo) Get(_ context.Context, id domain.AnalysisID) (*domain.Analysis, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) List(_ context.Context, f domain.Filter) (domain.PaginatedResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastList = f
	out := domain.PaginatedResult{Page: f.Page, PageSize: f.Limit}
	for _, a := range r.rows {
		if f.PublicOnly && !a.IsPublic {
			continue
		}
		if f.OwnerID != "" && a.OwnerID != f.OwnerID {
			continue
		}
		if f.MinScore != nil && (a.Result == nil || a.Result.OverallScore < *f.MinScore) {
			continue
		}
		cp := *a
		out.Data = append(out.Data, &cp)
	}
	out.Total = int64(len(out.Data))
	return out, nil
}

func (r *fakeRepo) MarkProcessing(_ context.Context, id domain.AnalysisID, startedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok || a.Status != domain.StatusPending {
		return false, nil
	}
	a.Status = domain.StatusProcessing
	t := startedAt
	a.ProcessingStartedAt = &t
	return true, nil
}

func (r *fakeRepo) MarkCompleted(_ context.Context, id domain.AnalysisID, res *domain.Result, completedAt time.Time, processingTime int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok || a.Status != domain.StatusProcessing {
		return false, nil
	}
	a.Status = domain.StatusCompleted
	a.Result = res
	t := completedAt
	a.CompletedAt = &t
	a.ProcessingTime = processingTime
	a.UpdatedAt = completedAt
	return true, nil
}

func (r *fakeRepo) MarkFailed(_ context.Context, id domain.AnalysisID, failedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok || a.Status != domain.StatusProcessing {
		return false, nil
	}
	a.Status = domain.StatusFailed
	a.UpdatedAt = failedAt
	return true, nil
}

func (r *fakeRepo) Increment(_ context.Context, id domain.AnalysisID, c domain.Counter, publicOnly bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[id]
	if !ok {
		return false, nil
	}
	if publicOnly && !a.IsPublic {
		return false, nil
	}
	switch c {
	case domain.CounterViews:
		a.Views++
	case domain.CounterLikes:
		a.Likes++
	case domain.CounterShares:
		a.Shares++
	}
	return true, nil
}

func (r *fakeRepo) Delete(_ context.Context, id domain.AnalysisID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return false, nil
	}
	delete(r.rows, id)
	return true, nil
}

func (r *fakeRepo) status(id domain.AnalysisID) domain.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.rows[id]; ok {
		return a.Status
	}
	return ""
}

func (r *fakeRepo) likes(id domain.AnalysisID) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id].Likes
}

type fakeUsers struct {
	mu   sync.Mutex
	rows map[string]*users.User
}

func (r *fakeUsers) Save(_ context.Context, u *users.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rows == nil {
		r.rows = map[string]*users.User{}
	}
	r.rows[u.ID] = u
	return nil
}

func (r *fakeUsers) Get(_ context.Context, id string) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id], nil
}

func (r *fakeUsers) GetByEmail(_ context.Context, email string) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.rows {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (r *fakeUsers) GetByToken(_ context.Context, token string) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.rows {
		if u.APIToken == token {
			return u, nil
		}
	}
	return nil, nil
}

type stubScorer struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
}

func (s *stubScorer) Score(ctx context.Context, _ domain.FloorPlan, _ []*rules.Rule) (*domain.Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return stubResult(), nil
}

func (s *stubScorer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func stubResult() *domain.Result {
	dirs := make(map[vastu.Direction]domain.DirectionScore)
	for _, d := range vastu.Directions {
		dirs[d] = domain.DirectionScore{Score: 80}
	}
	els := make(map[vastu.Element]domain.ElementScore)
	for _, e := range vastu.Elements {
		els[e] = domain.ElementScore{Score: 75, Balance: domain.Balanced}
	}
	return &domain.Result{OverallScore: 78, Directions: dirs, Elements: els}
}

type stubCatalog struct{ rules []*rules.Rule }

func (c *stubCatalog) Find(_ context.Context, q rules.Query) ([]*rules.Rule, error) {
	var out []*rules.Rule
	for _, r := range c.rules {
		if r.Matches(q) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *stubCatalog) Save(_ context.Context, r *rules.Rule) error {
	c.rules = append(c.rules, r)
	return nil
}

type fakeBlobs struct {
	mu       sync.Mutex
	uploaded []string
	deleted  []string
	failAt   int // 1-based index of the upload that fails, 0 = never
}

func (b *fakeBlobs) Upload(_ context.Context, blob domain.Blob) (domain.FileRef, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAt > 0 && len(b.uploaded)+1 == b.failAt {
		return domain.FileRef{}, errors.New("connection reset")
	}
	id := fmt.Sprintf("blob-%d", len(b.uploaded)+1)
	b.uploaded = append(b.uploaded, id)
	return domain.FileRef{StorageID: id, OriginalName: blob.Name, ByteSize: blob.Size}, nil
}

func (b *fakeBlobs) Delete(_ context.Context, storageID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, storageID)
	return nil
}

type fakeSink struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (s *fakeSink) Send(_ context.Context, m notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, m)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

//
// ==== harness ====
//

type harness struct {
	svc    *Service
	repo   *fakeRepo
	users  *fakeUsers
	scorer *stubScorer
	blobs  *fakeBlobs
	sink   *fakeSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		repo:   newFakeRepo(),
		users:  &fakeUsers{rows: map[string]*users.User{}},
		scorer: &stubScorer{},
		blobs:  &fakeBlobs{},
		sink:   &fakeSink{},
	}
	h.users.rows["owner-1"] = &users.User{ID: "owner-1", Email: "o@x.io", Tier: users.TierFree, IsActive: true}
	h.svc = &Service{
		Repo:    h.repo,
		Users:   h.users,
		Catalog: &stubCatalog{},
		Blobs:   h.blobs,
		Scorer:  h.scorer,
		Sink:    h.sink,
		Clock:   fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	h.svc.StartWorkers(2, 8)
	t.Cleanup(h.svc.StopWorkers)
	return h
}

func (h *harness) create(t *testing.T, public bool) *domain.Analysis {
	t.Helper()
	a, err := h.svc.Create(context.Background(), CreateCommand{
		OwnerID: "owner-1",
		Title:   "East facing flat",
		FloorPlan: domain.FloorPlan{
			Orientation: vastu.East,
			Rooms:       []domain.Room{{Name: "Kitchen", Type: vastu.Kitchen, Direction: vastu.Southeast}},
		},
		IsPublic: public,
	})
	require.NoError(t, err)
	return a
}

//
// ==== create ====
//

func TestCreate(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, true)
	assert.Equal(t, domain.StatusPending, a.Status)
	assert.NotEmpty(t, a.ID)

	stored, err := h.repo.Get(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "owner-1", stored.OwnerID)
}

func TestCreateRequiresAuth(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Create(context.Background(), CreateCommand{Title: "Anything here"})
	require.Error(t, err)
	assert.Equal(t, domain.KindUnauthorized, domain.KindOf(err))
}

func TestCreateWithUploads(t *testing.T) {
	h := newHarness(t)
	uploads := []domain.Blob{
		{Reader: io.Reader(nil), Name: "plan-a.png", Size: 10},
		{Reader: io.Reader(nil), Name: "plan-b.png", Size: 20},
	}
	a, err := h.svc.CreateWithUploads(context.Background(), CreateCommand{
		OwnerID:   "owner-1",
		Title:     "With files",
		FloorPlan: domain.FloorPlan{Orientation: vastu.North},
	}, uploads)
	require.NoError(t, err)
	require.Len(t, a.Files, 2)
	assert.Equal(t, "plan-a.png", a.Files[0].OriginalName)
	assert.Empty(t, h.blobs.deleted)
}

func TestCreateWithUploadsRollsBackBatch(t *testing.T) {
	h := newHarness(t)
	h.blobs.failAt = 3
	uploads := []domain.Blob{
		{Name: "a.png"}, {Name: "b.png"}, {Name: "c.png"},
	}
	_, err := h.svc.CreateWithUploads(context.Background(), CreateCommand{
		OwnerID:   "owner-1",
		Title:     "With files",
		FloorPlan: domain.FloorPlan{Orientation: vastu.North},
	}, uploads)
	require.Error(t, err)
	assert.Equal(t, domain.KindDependency, domain.KindOf(err))
	// the two stored blobs are removed again
	assert.ElementsMatch(t, []string{"blob-1", "blob-2"}, h.blobs.deleted)
	// nothing was persisted
	assert.Empty(t, h.repo.rows)
}

func TestCreateWithUploadsValidatesBeforeUploading(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.CreateWithUploads(context.Background(), CreateCommand{
		OwnerID:   "owner-1",
		Title:     "x",
		FloorPlan: domain.FloorPlan{Orientation: vastu.North},
	}, []domain.Blob{{Name: "a.png"}})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.Empty(t, h.blobs.uploaded)
}

//
// ==== start / scoring ====
//

func TestStartDrivesToCompleted(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, true)

	out, err := h.svc.Start(context.Background(), "owner-1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, out.Status)

	require.Eventually(t, func() bool {
		return h.repo.status(a.ID) == domain.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	stored, _ := h.repo.Get(context.Background(), a.ID)
	require.NotNil(t, stored.Result)
	assert.Equal(t, 78.0, stored.Result.OverallScore)
	require.NotNil(t, stored.CompletedAt)
	assert.Equal(t, 1, h.scorer.callCount())
}

func TestStartAuthz(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, true)

	_, err := h.svc.Start(context.Background(), "", a.ID)
	assert.Equal(t, domain.KindUnauthorized, domain.KindOf(err))

	_, err = h.svc.Start(context.Background(), "intruder", a.ID)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))

	_, err = h.svc.Start(context.Background(), "owner-1", "missing")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestStartOnlyOnce(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, true)

	_, err := h.svc.Start(context.Background(), "owner-1", a.ID)
	require.NoError(t, err)
	_, err = h.svc.Start(context.Background(), "owner-1", a.ID)
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestConcurrentStartsYieldOneRun(t *testing.T) {
	h := newHarness(t)
	h.scorer.delay = 50 * time.Millisecond
	a := h.create(t, true)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.svc.Start(context.Background(), "owner-1", a.ID)
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, domain.KindConflict, domain.KindOf(err))
		}
	}
	assert.Equal(t, 1, succeeded)

	require.Eventually(t, func() bool {
		return h.repo.status(a.ID) == domain.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, h.scorer.callCount())
}

func TestScorerErrorLandsInFailed(t *testing.T) {
	h := newHarness(t)
	h.scorer.err = errors.New("model unavailable")
	a := h.create(t, true)

	_, err := h.svc.Start(context.Background(), "owner-1", a.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.repo.status(a.ID) == domain.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	stored, _ := h.repo.Get(context.Background(), a.ID)
	assert.Nil(t, stored.Result)
	assert.Nil(t, stored.CompletedAt)
	assert.NotNil(t, stored.ProcessingStartedAt)
	assert.Zero(t, h.sink.count())
}

func TestScoringTimeoutLandsInFailed(t *testing.T) {
	h := newHarness(t)
	h.scorer.delay = time.Second
	h.svc.ScoringTimeout = 20 * time.Millisecond
	a := h.create(t, true)

	_, err := h.svc.Start(context.Background(), "owner-1", a.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.repo.status(a.ID) == domain.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUpdateDuringScoringSurvivesCompletion(t *testing.T) {
	h := newHarness(t)
	h.scorer.delay = 100 * time.Millisecond
	a := h.create(t, true)

	_, err := h.svc.Start(context.Background(), "owner-1", a.ID)
	require.NoError(t, err)

	title := "Renamed during scoring"
	_, err = h.svc.Update(context.Background(), "owner-1", a.ID, UpdateCommand{Title: &title})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.repo.status(a.ID) == domain.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	stored, _ := h.repo.Get(context.Background(), a.ID)
	assert.Equal(t, "Renamed during scoring", stored.Title)
	require.NotNil(t, stored.Result)
	require.NotNil(t, stored.CompletedAt)
}

func TestCompletionNotifiesOwner(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, true)

	_, err := h.svc.Start(context.Background(), "owner-1", a.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.sink.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	assert.Equal(t, "o@x.io", h.sink.sent[0].Recipient)
	assert.Equal(t, "analysis-completed", h.sink.sent[0].Template)
}

func TestPremiumTierUsesPremiumScorer(t *testing.T) {
	h := newHarness(t)
	premium := &stubScorer{}
	h.svc.PremiumScorer = premium
	h.users.rows["owner-1"].Tier = users.TierPremium
	a := h.create(t, true)

	_, err := h.svc.Start(context.Background(), "owner-1", a.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.repo.status(a.ID) == domain.StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, premium.callCount())
	assert.Zero(t, h.scorer.callCount())
}

//
// ==== read path ====
//

func TestGetVisibility(t *testing.T) {
	h := newHarness(t)
	private := h.create(t, false)
	public := h.create(t, true)

	// owner reads own private row, no view counted
	a, err := h.svc.Get(context.Background(), "owner-1", private.ID)
	require.NoError(t, err)
	assert.Zero(t, a.Views)

	// anonymous caller cannot read private
	_, err = h.svc.Get(context.Background(), "", private.ID)
	assert.Equal(t, domain.KindUnauthorized, domain.KindOf(err))

	// other authenticated caller cannot read private
	_, err = h.svc.Get(context.Background(), "someone", private.ID)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))

	// non-owner read of a public row counts a view
	a, err = h.svc.Get(context.Background(), "someone", public.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.Views)

	_, err = h.svc.Get(context.Background(), "owner-1", "missing")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestListDefaultsAndClamps(t *testing.T) {
	h := newHarness(t)
	h.create(t, true)

	_, err := h.svc.List(context.Background(), "owner-1", domain.Filter{Page: -3, Limit: 5000})
	require.NoError(t, err)
	f := h.repo.lastList
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, 100, f.Limit)
	assert.Equal(t, "createdAt", f.SortBy)
	assert.True(t, f.SortDesc)
	assert.True(t, f.PublicOnly)
}

func TestListRejectsUnknownSortField(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.List(context.Background(), "owner-1", domain.Filter{SortBy: "views; DROP TABLE"})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestListRejectsOutOfRangeMinScore(t *testing.T) {
	h := newHarness(t)
	bad := 140.0
	_, err := h.svc.List(context.Background(), "", domain.Filter{MinScore: &bad})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestListForeignOwnerForcesPublic(t *testing.T) {
	h := newHarness(t)
	h.create(t, false)

	res, err := h.svc.List(context.Background(), "someone", domain.Filter{OwnerID: "owner-1"})
	require.NoError(t, err)
	assert.True(t, h.repo.lastList.PublicOnly)
	assert.Empty(t, res.Data)

	// the owner sees their private rows
	res, err = h.svc.List(context.Background(), "owner-1", domain.Filter{OwnerID: "owner-1"})
	require.NoError(t, err)
	assert.Len(t, res.Data, 1)
}

//
// ==== engagement ====
//

func TestLikePublicOnly(t *testing.T) {
	h := newHarness(t)
	public := h.create(t, true)
	private := h.create(t, false)

	require.NoError(t, h.svc.Like(context.Background(), public.ID))
	assert.Equal(t, int64(1), h.repo.likes(public.ID))

	err := h.svc.Like(context.Background(), private.ID)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))

	err = h.svc.Like(context.Background(), "missing")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestConcurrentLikes(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, true)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.svc.Like(context.Background(), a.ID))
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(n), h.repo.likes(a.ID))
}

func TestShare(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, true)
	require.NoError(t, h.svc.Share(context.Background(), a.ID))
	stored, _ := h.repo.Get(context.Background(), a.ID)
	assert.Equal(t, int64(1), stored.Shares)
}

//
// ==== update / delete ====
//

func TestUpdateOwnerOnly(t *testing.T) {
	h := newHarness(t)
	a := h.create(t, true)

	title := "Renamed analysis"
	_, err := h.svc.Update(context.Background(), "intruder", a.ID, UpdateCommand{Title: &title})
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))

	out, err := h.svc.Update(context.Background(), "owner-1", a.ID, UpdateCommand{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed analysis", out.Title)

	stored, _ := h.repo.Get(context.Background(), a.ID)
	assert.Equal(t, "Renamed analysis", stored.Title)
}

func TestDeleteRemovesRowAndBlobs(t *testing.T) {
	h := newHarness(t)
	a, err := h.svc.CreateWithUploads(context.Background(), CreateCommand{
		OwnerID:   "owner-1",
		Title:     "With files",
		FloorPlan: domain.FloorPlan{Orientation: vastu.North},
	}, []domain.Blob{{Name: "a.png"}})
	require.NoError(t, err)

	err = h.svc.Delete(context.Background(), "intruder", a.ID)
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))

	require.NoError(t, h.svc.Delete(context.Background(), "owner-1", a.ID))
	got, _ := h.repo.Get(context.Background(), a.ID)
	assert.Nil(t, got)
	assert.Equal(t, []string{"blob-1"}, h.blobs.deleted)

	err = h.svc.Delete(context.Background(), "owner-1", a.ID)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}
