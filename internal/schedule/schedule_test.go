package schedule

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abq-pulse/trafficwatch/internal/model"
)

func defaultSlots(t *testing.T) []Slot {
	t.Helper()
	slots, err := ParseSlots([]string{"07:00", "12:00", "17:00", "19:00", "21:00", "23:00"})
	require.NoError(t, err)
	return slots
}

func TestGroupFor_Deterministic(t *testing.T) {
	for _, id := range []string{"venue-1", "venue-2", "abc", ""} {
		first := GroupFor(id, 2)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, GroupFor(id, 2), "id=%q", id)
		}
		assert.GreaterOrEqual(t, first, 0)
		assert.Less(t, first, 2)
	}
}

func TestActiveGroup_CyclesAllGroups(t *testing.T) {
	for _, groups := range []int{1, 2, 4} {
		seen := map[int]bool{}
		for week := 1; week <= groups; week++ {
			seen[ActiveGroup(week, groups)] = true
		}
		assert.Len(t, seen, groups, "groups=%d", groups)
	}
}

func TestCoverage_EveryVenueActiveWithinCycle(t *testing.T) {
	// Over a 4-week window, every venue is in the active group at least once.
	cfg := Config{Groups: 2, CycleWeeks: 4, Slots: defaultSlots(t)}
	venues := make([]model.Venue, 40)
	for i := range venues {
		venues[i] = model.Venue{ID: fmt.Sprintf("venue-%d", i)}
	}

	covered := map[string]bool{}
	// Four consecutive Mondays at 07:10 local.
	start := time.Date(2025, 6, 2, 7, 10, 0, 0, time.UTC)
	for w := 0; w < 4; w++ {
		now := start.AddDate(0, 0, 7*w)
		for _, req := range cfg.Plan(now, venues) {
			covered[req.Venue.ID] = true
		}
	}

	assert.Len(t, covered, len(venues))
}

func TestValidate_RefusesOverQuota(t *testing.T) {
	// 80 venues in 2 groups = 40/group; 40 x 6 slots = 240 > 160.
	cfg := Config{Groups: 2, CycleWeeks: 4, Slots: defaultSlots(t)}
	err := cfg.Validate(80, 160)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds quota")

	// 240 <= 1000 is fine.
	assert.NoError(t, cfg.Validate(80, 1000))
}

func TestValidate_BadShape(t *testing.T) {
	assert.Error(t, Config{Groups: 0, Slots: defaultSlots(t)}.Validate(10, 100))
	assert.Error(t, Config{Groups: 2}.Validate(10, 100))
	assert.Error(t, Config{Groups: 3, CycleWeeks: 4, Slots: defaultSlots(t)}.Validate(10, 1000))
}

func TestDueSlot(t *testing.T) {
	cfg := Config{Groups: 2, Slots: defaultSlots(t)}

	slot, ok := cfg.DueSlot(time.Date(2025, 6, 14, 19, 25, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, "19:00", slot.String())

	_, ok = cfg.DueSlot(time.Date(2025, 6, 14, 3, 0, 0, 0, time.UTC))
	assert.False(t, ok)
}

func TestPlan_OnlyActiveGroup(t *testing.T) {
	cfg := Config{Groups: 2, Slots: defaultSlots(t)}
	venues := make([]model.Venue, 20)
	for i := range venues {
		venues[i] = model.Venue{ID: fmt.Sprintf("venue-%d", i)}
	}

	now := time.Date(2025, 6, 14, 12, 5, 0, 0, time.UTC)
	_, isoWeek := now.ISOWeek()
	active := ActiveGroup(isoWeek, 2)

	reqs := cfg.Plan(now, venues)
	require.NotEmpty(t, reqs)
	for _, req := range reqs {
		assert.Equal(t, active, req.Group)
		assert.Equal(t, active, GroupFor(req.Venue.ID, 2))
	}
	// Both groups are non-empty for 20 hashed venues, so the plan is a
	// strict subset of the venue list.
	assert.Less(t, len(reqs), len(venues))
}

func TestPlan_NoSlotDue(t *testing.T) {
	cfg := Config{Groups: 2, Slots: defaultSlots(t)}
	venues := []model.Venue{{ID: "v1"}}
	assert.Empty(t, cfg.Plan(time.Date(2025, 6, 14, 4, 0, 0, 0, time.UTC), venues))
}

func TestParseSlots_Errors(t *testing.T) {
	for _, bad := range []string{"25:00", "aa:00", "12", "12:70"} {
		_, err := ParseSlots([]string{bad})
		assert.Error(t, err, "slot=%q", bad)
	}
}
