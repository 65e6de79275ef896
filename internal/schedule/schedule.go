// Package schedule decides which venues get baseline traffic coverage on a
// given day. The full venue set never fits under the daily API quota, so
// venues are partitioned into rotation groups and one group is active per ISO
// week. Group assignment is a pure function of (venue_id, week): the schedule
// survives restarts with no persisted state and no replay.
package schedule

import (
	"hash/fnv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/abq-pulse/trafficwatch/internal/model"
)

// Slot is a fixed local time-of-day baseline collection point.
type Slot struct {
	Hour   int
	Minute int
}

// String formats the slot as HH:MM.
func (s Slot) String() string {
	return time.Date(0, 1, 1, s.Hour, s.Minute, 0, 0, time.UTC).Format("15:04")
}

// Config holds the rotation parameters.
type Config struct {
	// Groups is the number of rotation groups (K). Group size times slots per
	// day must fit under the daily quota.
	Groups int
	// CycleWeeks documents the coverage horizon: every venue is active at
	// least once per cycle. Must be a multiple of Groups.
	CycleWeeks int
	// Slots are the local times at which the active group is collected.
	Slots []Slot
	// GroupTag is recorded as baseline_group on every sample this schedule
	// produces.
	GroupTag string
}

// Request is one planned baseline measurement.
type Request struct {
	Venue model.Venue
	Slot  Slot
	Group int
}

// GroupFor assigns a venue to a rotation group. Pure function of the venue
// ID, so the partition is stable as venues are added.
func GroupFor(venueID string, groups int) int {
	if groups <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(venueID)) //nolint:errcheck
	return int(h.Sum32() % uint32(groups))
}

// ActiveGroup returns the rotation group collecting during the given ISO
// week. Cycling week mod K visits every group once per K weeks, which keeps
// the CycleWeeks coverage guarantee for any CycleWeeks that is a multiple
// of Groups.
func ActiveGroup(isoWeek, groups int) int {
	if groups <= 1 {
		return 0
	}
	return ((isoWeek % groups) + groups) % groups
}

// Validate refuses configurations that cannot fit under the daily quota:
// worst-case group size times slots per day must not exceed it. The refusal
// happens here, at configuration time, rather than as silent truncation
// during collection.
func (c Config) Validate(venueCount, dailyQuota int) error {
	if c.Groups < 1 {
		return eris.New("schedule: groups must be >= 1")
	}
	if len(c.Slots) == 0 {
		return eris.New("schedule: no collection slots configured")
	}
	if c.CycleWeeks > 0 && c.CycleWeeks%c.Groups != 0 {
		return eris.Errorf("schedule: cycle of %d weeks does not divide into %d groups", c.CycleWeeks, c.Groups)
	}

	groupSize := (venueCount + c.Groups - 1) / c.Groups
	callsPerDay := groupSize * len(c.Slots)
	if callsPerDay > dailyQuota {
		return eris.Errorf(
			"schedule: %d venues/group x %d slots = %d calls/day exceeds quota %d; add groups or drop slots",
			groupSize, len(c.Slots), callsPerDay, dailyQuota,
		)
	}
	return nil
}

// DueSlot returns the slot matching now, if any. A slot is due from its
// start time until the next slot's start or the top of the following hour,
// whichever is sooner; ticks are expected hourly so matching on the slot's
// hour is sufficient.
func (c Config) DueSlot(now time.Time) (Slot, bool) {
	for _, s := range c.Slots {
		if s.Hour == now.Hour() {
			return s, true
		}
	}
	return Slot{}, false
}

// Plan returns the baseline requests for the slot due at now, one per venue
// in the active rotation group. now must already be in the deployment's
// local zone. An empty plan means either no slot is due or the active group
// has no venues.
func (c Config) Plan(now time.Time, venues []model.Venue) []Request {
	slot, ok := c.DueSlot(now)
	if !ok {
		return nil
	}

	_, isoWeek := now.ISOWeek()
	active := ActiveGroup(isoWeek, c.Groups)

	var reqs []Request
	for _, v := range venues {
		if GroupFor(v.ID, c.Groups) != active {
			continue
		}
		reqs = append(reqs, Request{Venue: v, Slot: slot, Group: active})
	}
	return reqs
}
