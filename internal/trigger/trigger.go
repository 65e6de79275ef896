// Package trigger decides when event-linked traffic measurements are due.
// Each event gets a fixed set of collection points spread around its start
// time; a tick collects the point closest to now, if any is within tolerance.
package trigger

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/abq-pulse/trafficwatch/internal/config"
	"github.com/abq-pulse/trafficwatch/internal/model"
)

// Phase labels a collection point relative to the event start. Diagnostic
// only; it is logged, not stored.
type Phase string

const (
	PhaseBefore Phase = "before"
	PhaseDuring Phase = "during"
	PhaseAfter  Phase = "after"
)

// Config shapes the collection window around each event start.
type Config struct {
	Window    time.Duration // half-window around start
	Cadence   time.Duration // spacing between collection points
	Tolerance time.Duration // how far a tick may drift from a point
	Target    int           // samples to accumulate per event
}

// DefaultConfig matches the standard two-hour window: 9 points at 30-minute
// spacing, each collectable within 15 minutes of its scheduled time.
func DefaultConfig() Config {
	return Config{
		Window:    2 * time.Hour,
		Cadence:   30 * time.Minute,
		Tolerance: 15 * time.Minute,
		Target:    9,
	}
}

// FromConfig builds a trigger Config from the events section, falling back
// to defaults for unset fields.
func FromConfig(cfg config.EventsConfig) Config {
	c := DefaultConfig()
	if cfg.WindowHours > 0 {
		c.Window = time.Duration(cfg.WindowHours) * time.Hour
	}
	if cfg.CadenceMinutes > 0 {
		c.Cadence = time.Duration(cfg.CadenceMinutes) * time.Minute
	}
	if cfg.ToleranceMinutes > 0 {
		c.Tolerance = time.Duration(cfg.ToleranceMinutes) * time.Minute
	}
	if cfg.TargetSamples > 0 {
		c.Target = cfg.TargetSamples
	}
	return c
}

// Point is one scheduled measurement for an event.
type Point struct {
	Offset time.Duration
	At     time.Time
	Phase  Phase
}

// DuePoint returns the collection point matching now, if any point in the
// event's window is within tolerance.
func (c Config) DuePoint(now, start time.Time) (Point, bool) {
	for offset := -c.Window; offset <= c.Window; offset += c.Cadence {
		at := start.Add(offset)
		drift := now.Sub(at)
		if drift < 0 {
			drift = -drift
		}
		if drift <= c.Tolerance {
			return Point{Offset: offset, At: at, Phase: phaseOf(offset)}, true
		}
	}
	return Point{}, false
}

func phaseOf(offset time.Duration) Phase {
	switch {
	case offset < 0:
		return PhaseBefore
	case offset > 0:
		return PhaseAfter
	default:
		return PhaseDuring
	}
}

// Store is the subset of the measurement store the planner reads.
type Store interface {
	GetVenue(ctx context.Context, id string) (*model.Venue, error)
	CountEventSamples(ctx context.Context, occurrenceID string) (int, error)
}

// SkipMetrics counts events passed over during a tick, per reason. Skips are
// expected operation, not errors.
type SkipMetrics struct {
	MissingStartTime int
	MissingVenue     int
	AtTarget         int
	NotDue           int
}

// Request is one measurement the collector should take for an event.
type Request struct {
	Venue      model.Venue
	Occurrence model.EventOccurrence
	Point      Point
}

// Planner turns the set of candidate events into due measurement requests.
type Planner struct {
	cfg   Config
	store Store
}

func NewPlanner(cfg Config, store Store) *Planner {
	return &Planner{cfg: cfg, store: store}
}

// WindowAround returns the start-time range whose events could be due at now.
func (p *Planner) WindowAround(now time.Time) (time.Time, time.Time) {
	span := p.cfg.Window + p.cfg.Tolerance
	return now.Add(-span), now.Add(span)
}

// Plan evaluates each candidate event against now. Re-running a tick is safe:
// events already at their sample target are skipped, so a crash-and-retry
// never pushes an event past Target samples.
func (p *Planner) Plan(ctx context.Context, now time.Time, events []model.EventOccurrence) ([]Request, SkipMetrics, error) {
	var reqs []Request
	var skips SkipMetrics

	for _, e := range events {
		if !e.HasStart() {
			skips.MissingStartTime++
			continue
		}

		point, due := p.cfg.DuePoint(now, *e.Start)
		if !due {
			skips.NotDue++
			continue
		}

		n, err := p.store.CountEventSamples(ctx, e.ID)
		if err != nil {
			return nil, skips, eris.Wrapf(err, "trigger: count samples for %s", e.ID)
		}
		if n >= p.cfg.Target {
			skips.AtTarget++
			continue
		}

		venue, err := p.store.GetVenue(ctx, e.VenueID)
		if err != nil {
			return nil, skips, eris.Wrapf(err, "trigger: get venue %s", e.VenueID)
		}
		if venue == nil {
			skips.MissingVenue++
			zap.L().Warn("event references unknown venue",
				zap.String("occurrence_id", e.ID),
				zap.String("venue_id", e.VenueID))
			continue
		}

		zap.L().Debug("event measurement due",
			zap.String("occurrence_id", e.ID),
			zap.String("venue_id", venue.ID),
			zap.Duration("offset", point.Offset),
			zap.String("phase", string(point.Phase)))

		reqs = append(reqs, Request{Venue: *venue, Occurrence: e, Point: point})
	}
	return reqs, skips, nil
}
