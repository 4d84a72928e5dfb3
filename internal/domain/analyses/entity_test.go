package analyses

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vastulab/vastu-backend/internal/domain/vastu"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func validPlan() FloorPlan {
	return FloorPlan{
		Orientation: vastu.North,
		Dimensions:  &Dimensions{Length: 12, Width: 10, Unit: "m"},
		Rooms: []Room{
			{Name: "Kitchen", Type: vastu.Kitchen, Direction: vastu.Southeast, Dimensions: &Dimensions{Length: 4, Width: 3}},
			{Name: "Master", Type: vastu.Bedroom, Direction: vastu.Southwest},
		},
	}
}

func newPending(t *testing.T) *Analysis {
	t.Helper()
	a, err := New("a-1", "owner-1", "My flat", "east facing", validPlan(), nil, true, []string{"2bhk"}, t0)
	require.NoError(t, err)
	return a
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*string, *string, *string, *FloorPlan)
		wantErr string
	}{
		{"title too short", func(owner, title, desc *string, p *FloorPlan) { *title = "ab" }, "title"},
		{"title too long", func(owner, title, desc *string, p *FloorPlan) { *title = strings.Repeat("x", 101) }, "title"},
		{"description too long", func(owner, title, desc *string, p *FloorPlan) { *desc = strings.Repeat("d", 501) }, "description"},
		{"missing owner", func(owner, title, desc *string, p *FloorPlan) { *owner = "" }, "owner"},
		{"bad orientation", func(owner, title, desc *string, p *FloorPlan) { p.Orientation = "up" }, "orientation"},
		{"bad room type", func(owner, title, desc *string, p *FloorPlan) { p.Rooms[0].Type = "garage2" }, "unknown type"},
		{"bad room direction", func(owner, title, desc *string, p *FloorPlan) { p.Rooms[0].Direction = "noreast" }, "invalid direction"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			owner, title, desc := "owner-1", "My flat", "ok"
			plan := validPlan()
			tc.mutate(&owner, &title, &desc, &plan)
			_, err := New("a-1", owner, title, desc, plan, nil, false, nil, t0)
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestTitleBoundsCountRunes(t *testing.T) {
	// "家の" is two characters in six bytes and must fail the minimum.
	_, err := New("a-1", "owner-1", "家の", "", validPlan(), nil, false, nil, t0)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	a, err := New("a-1", "owner-1", "家の間", "", validPlan(), nil, false, nil, t0)
	require.NoError(t, err)
	assert.Equal(t, "家の間", a.Title)

	_, err = New("a-2", "owner-1", strings.Repeat("間", 100), "", validPlan(), nil, false, nil, t0)
	require.NoError(t, err)
	_, err = New("a-3", "owner-1", strings.Repeat("間", 101), "", validPlan(), nil, false, nil, t0)
	require.Error(t, err)

	short := "家の"
	err = a.ApplyUpdate(&short, nil, nil, nil, t0)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	ok := "家の間取り"
	require.NoError(t, a.ApplyUpdate(&ok, nil, nil, nil, t0))
	assert.Equal(t, "家の間取り", a.Title)
}

func TestNewRecalculatesAreas(t *testing.T) {
	a := newPending(t)
	require.NotNil(t, a.FloorPlan.Dimensions)
	assert.Equal(t, 120.0, a.FloorPlan.Dimensions.Area)
	assert.Equal(t, 12.0, a.FloorPlan.Rooms[0].Dimensions.Area)
	assert.Nil(t, a.FloorPlan.Rooms[1].Dimensions)
}

func TestNewTrimsAndDedupesTags(t *testing.T) {
	a, err := New("a-1", "o", "My flat", "", validPlan(), nil, false,
		[]string{" 2BHK ", "vastu", "2bhk", "", "Vastu"}, t0)
	require.NoError(t, err)
	assert.Equal(t, []string{"2bhk", "vastu"}, a.Tags)
}

func TestNewStartsPending(t *testing.T) {
	a := newPending(t)
	assert.Equal(t, StatusPending, a.Status)
	assert.Nil(t, a.ProcessingStartedAt)
	assert.Nil(t, a.CompletedAt)
	assert.Nil(t, a.Result)
	assert.Zero(t, a.Views)
}

func TestLifecycleHappyPath(t *testing.T) {
	a := newPending(t)

	require.NoError(t, a.Start(t0))
	assert.Equal(t, StatusProcessing, a.Status)
	require.NotNil(t, a.ProcessingStartedAt)
	assert.Equal(t, t0, *a.ProcessingStartedAt)
	assert.Nil(t, a.CompletedAt)

	done := t0.Add(42 * time.Second)
	require.NoError(t, a.Complete(validResult(), done))
	assert.Equal(t, StatusCompleted, a.Status)
	require.NotNil(t, a.CompletedAt)
	assert.Equal(t, done, *a.CompletedAt)
	assert.Equal(t, int64(42), a.ProcessingTime)
	require.NotNil(t, a.Result)
}

func TestLifecycleFailure(t *testing.T) {
	a := newPending(t)
	require.NoError(t, a.Start(t0))
	require.NoError(t, a.Fail(t0.Add(time.Second)))
	assert.Equal(t, StatusFailed, a.Status)
	assert.Nil(t, a.CompletedAt)
	assert.Nil(t, a.Result)
	// start timestamp survives for diagnostics
	assert.NotNil(t, a.ProcessingStartedAt)
}

func TestInvalidTransitionsConflict(t *testing.T) {
	t.Run("double start", func(t *testing.T) {
		a := newPending(t)
		require.NoError(t, a.Start(t0))
		err := a.Start(t0)
		require.Error(t, err)
		assert.Equal(t, KindConflict, KindOf(err))
	})
	t.Run("complete from pending", func(t *testing.T) {
		a := newPending(t)
		err := a.Complete(validResult(), t0)
		require.Error(t, err)
		assert.Equal(t, KindConflict, KindOf(err))
	})
	t.Run("fail from completed", func(t *testing.T) {
		a := newPending(t)
		require.NoError(t, a.Start(t0))
		require.NoError(t, a.Complete(validResult(), t0.Add(time.Second)))
		err := a.Fail(t0.Add(2 * time.Second))
		require.Error(t, err)
		assert.Equal(t, KindConflict, KindOf(err))
	})
	t.Run("restart after failure", func(t *testing.T) {
		a := newPending(t)
		require.NoError(t, a.Start(t0))
		require.NoError(t, a.Fail(t0))
		err := a.Start(t0)
		require.Error(t, err)
		assert.Equal(t, KindConflict, KindOf(err))
	})
}

func TestCompleteRequiresResult(t *testing.T) {
	a := newPending(t)
	require.NoError(t, a.Start(t0))
	err := a.Complete(nil, t0.Add(time.Second))
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, StatusProcessing, a.Status)
}

func TestCompleteClampsNegativeDuration(t *testing.T) {
	a := newPending(t)
	require.NoError(t, a.Start(t0))
	require.NoError(t, a.Complete(validResult(), t0.Add(-3*time.Second)))
	assert.Equal(t, int64(0), a.ProcessingTime)
}

func TestVisibility(t *testing.T) {
	a := newPending(t)
	a.IsPublic = false

	assert.True(t, a.OwnedBy("owner-1"))
	assert.False(t, a.OwnedBy("intruder"))
	assert.False(t, a.OwnedBy(""))

	assert.True(t, a.ViewableBy("owner-1"))
	assert.False(t, a.ViewableBy("intruder"))
	assert.False(t, a.ViewableBy(""))

	a.IsPublic = true
	assert.True(t, a.ViewableBy("intruder"))
	assert.True(t, a.ViewableBy(""))
}

func TestApplyUpdate(t *testing.T) {
	a := newPending(t)
	later := t0.Add(time.Hour)

	title := "Renamed flat"
	pub := false
	require.NoError(t, a.ApplyUpdate(&title, nil, &pub, []string{"new"}, later))
	assert.Equal(t, "Renamed flat", a.Title)
	assert.Equal(t, "east facing", a.Description)
	assert.False(t, a.IsPublic)
	assert.Equal(t, []string{"new"}, a.Tags)
	assert.Equal(t, later, a.UpdatedAt)

	bad := "x"
	err := a.ApplyUpdate(&bad, nil, nil, nil, later)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Equal(t, "Renamed flat", a.Title)
}
