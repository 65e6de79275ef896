package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abq-pulse/trafficwatch/internal/model"
)

type fakeStore struct {
	venues map[string]*model.Venue
	counts map[string]int
}

func (f *fakeStore) GetVenue(_ context.Context, id string) (*model.Venue, error) {
	return f.venues[id], nil
}

func (f *fakeStore) CountEventSamples(_ context.Context, occurrenceID string) (int, error) {
	return f.counts[occurrenceID], nil
}

func timePtr(v time.Time) *time.Time { return &v }

func TestDuePoint_ExactAndTolerance(t *testing.T) {
	cfg := DefaultConfig()
	start := time.Date(2025, 6, 14, 19, 0, 0, 0, time.UTC)

	// Exactly at start.
	p, ok := cfg.DuePoint(start, start)
	require.True(t, ok)
	assert.Equal(t, time.Duration(0), p.Offset)
	assert.Equal(t, PhaseDuring, p.Phase)

	// 14 minutes after a point is within tolerance.
	p, ok = cfg.DuePoint(start.Add(-90*time.Minute+14*time.Minute), start)
	require.True(t, ok)
	assert.Equal(t, -90*time.Minute, p.Offset)
	assert.Equal(t, PhaseBefore, p.Phase)

	// Dead center between two points (15min from each) hits the earlier one.
	p, ok = cfg.DuePoint(start.Add(45*time.Minute), start)
	require.True(t, ok)
	assert.Equal(t, 30*time.Minute, p.Offset)
	assert.Equal(t, PhaseAfter, p.Phase)

	// Outside the window entirely.
	_, ok = cfg.DuePoint(start.Add(3*time.Hour), start)
	assert.False(t, ok)
	_, ok = cfg.DuePoint(start.Add(-3*time.Hour), start)
	assert.False(t, ok)
}

func TestDuePoint_NinePoints(t *testing.T) {
	cfg := DefaultConfig()
	start := time.Date(2025, 6, 14, 19, 0, 0, 0, time.UTC)

	seen := map[time.Duration]bool{}
	for offset := -cfg.Window; offset <= cfg.Window; offset += cfg.Cadence {
		p, ok := cfg.DuePoint(start.Add(offset), start)
		require.True(t, ok)
		seen[p.Offset] = true
	}
	assert.Len(t, seen, 9)
}

func newTestPlanner(t *testing.T) (*Planner, *fakeStore) {
	t.Helper()
	fs := &fakeStore{
		venues: map[string]*model.Venue{"v1": {ID: "v1", Name: "V1"}},
		counts: map[string]int{},
	}
	return NewPlanner(DefaultConfig(), fs), fs
}

func TestPlan_DueEvent(t *testing.T) {
	p, _ := newTestPlanner(t)
	start := time.Date(2025, 6, 14, 19, 0, 0, 0, time.UTC)
	events := []model.EventOccurrence{
		{ID: "occ-1", VenueID: "v1", Name: "Concert", Start: timePtr(start)},
	}

	reqs, skips, err := p.Plan(context.Background(), start.Add(-time.Hour), events)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.Equal(t, "occ-1", reqs[0].Occurrence.ID)
	assert.Equal(t, -time.Hour, reqs[0].Point.Offset)
	assert.Equal(t, PhaseBefore, reqs[0].Point.Phase)
	assert.Equal(t, SkipMetrics{}, skips)
}

func TestPlan_SkipReasons(t *testing.T) {
	p, fs := newTestPlanner(t)
	start := time.Date(2025, 6, 14, 19, 0, 0, 0, time.UTC)
	fs.counts["occ-full"] = 9

	events := []model.EventOccurrence{
		{ID: "occ-nostart", VenueID: "v1"},
		{ID: "occ-novenue", VenueID: "ghost", Start: timePtr(start)},
		{ID: "occ-full", VenueID: "v1", Start: timePtr(start)},
		{ID: "occ-early", VenueID: "v1", Start: timePtr(start.Add(6 * time.Hour))},
	}

	reqs, skips, err := p.Plan(context.Background(), start, events)
	require.NoError(t, err)
	assert.Empty(t, reqs)
	assert.Equal(t, 1, skips.MissingStartTime)
	assert.Equal(t, 1, skips.MissingVenue)
	assert.Equal(t, 1, skips.AtTarget)
	assert.Equal(t, 1, skips.NotDue)
}

func TestPlan_RerunIdempotent(t *testing.T) {
	// Simulates a crash-and-retry of the same tick: once the store reports
	// the event at its target, the re-run produces no further requests.
	p, fs := newTestPlanner(t)
	start := time.Date(2025, 6, 14, 19, 0, 0, 0, time.UTC)
	events := []model.EventOccurrence{
		{ID: "occ-1", VenueID: "v1", Start: timePtr(start)},
	}

	reqs, _, err := p.Plan(context.Background(), start, events)
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	fs.counts["occ-1"] = 9
	reqs, skips, err := p.Plan(context.Background(), start, events)
	require.NoError(t, err)
	assert.Empty(t, reqs)
	assert.Equal(t, 1, skips.AtTarget)
}

func TestWindowAround(t *testing.T) {
	p, _ := newTestPlanner(t)
	now := time.Date(2025, 6, 14, 19, 0, 0, 0, time.UTC)
	from, to := p.WindowAround(now)
	assert.Equal(t, now.Add(-135*time.Minute), from)
	assert.Equal(t, now.Add(135*time.Minute), to)
}
