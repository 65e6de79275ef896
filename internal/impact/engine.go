// Package impact correlates event-linked traffic samples against tiered
// baselines to estimate how much extra delay an event caused. Everything here
// is read-time aggregation over the append-only sample log; results are
// recomputed on demand and never stored.
package impact

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/abq-pulse/trafficwatch/internal/model"
	"github.com/abq-pulse/trafficwatch/internal/store"
)

// Store is the read surface the engine aggregates over.
type Store interface {
	GetEvent(ctx context.Context, id string) (*model.EventOccurrence, error)
	ListEventSamples(ctx context.Context, occurrenceID string) ([]model.TrafficSample, error)
	ListBaselineSamples(ctx context.Context, f store.BaselineFilter) ([]model.TrafficSample, error)
	ListEventsWithSamples(ctx context.Context) ([]string, error)
}

// Engine computes impact results. loc is the bucketing timezone, which must
// match the one samples were written with.
type Engine struct {
	store Store
	loc   *time.Location
}

func NewEngine(s Store, loc *time.Location) *Engine {
	return &Engine{store: s, loc: loc}
}

// Compute derives the impact estimate for one event occurrence. Safe to call
// concurrently with collection: a sample landing mid-computation shifts the
// averages, never corrupts them.
func (e *Engine) Compute(ctx context.Context, occurrenceID string) (*model.ImpactResult, error) {
	event, err := e.store.GetEvent(ctx, occurrenceID)
	if err != nil {
		return nil, eris.Wrapf(err, "impact: get event %s", occurrenceID)
	}
	if event == nil {
		return nil, eris.Errorf("impact: event not found: %s", occurrenceID)
	}

	result := &model.ImpactResult{
		OccurrenceID: event.ID,
		VenueID:      event.VenueID,
		EventName:    event.Name,
		Category:     event.Category,
		Tier:         model.TierNone,
		Basis:        model.BasisDelay,
		Severity:     model.SeverityUnknown,
		Quality:      model.QualityUnknown,
		ComputedAt:   time.Now().UTC(),
	}

	if !event.HasStart() {
		return result, nil
	}

	eventSamples, err := e.store.ListEventSamples(ctx, occurrenceID)
	if err != nil {
		return nil, eris.Wrapf(err, "impact: list event samples %s", occurrenceID)
	}
	result.EventSamples = len(eventSamples)
	if len(eventSamples) == 0 {
		result.Quality = model.QualityNoEventData
		return result, nil
	}

	tier, baselines, err := e.matchBaseline(ctx, event)
	if err != nil {
		return nil, err
	}
	result.Tier = tier
	result.BaselineSamples = len(baselines)
	if len(baselines) == 0 {
		result.Quality = model.QualityNoBaselineData
		return result, nil
	}

	result.MeanEventDelay = round2(meanDelay(eventSamples))
	result.MeanBaselineDelay = round2(meanDelay(baselines))
	result.DelayImpactMinutes = round2(result.MeanEventDelay - result.MeanBaselineDelay)

	// Speed differential over the measured segment is the classification
	// signal; the delay difference stands in when speeds are undefined.
	if si, ok := speedImpact(eventSamples, baselines); ok {
		si = round2(si)
		result.SpeedImpactMinutes = &si
		result.ImpactMinutes = si
		result.Basis = model.BasisSpeed
	} else {
		result.ImpactMinutes = result.DelayImpactMinutes
		result.Basis = model.BasisDelay
	}

	result.Severity = model.ClassifySeverity(result.ImpactMinutes)
	// Both populations are non-empty past this point. Coverage depth is the
	// consumer's call, via the sample counts on the result.
	result.Quality = model.QualityComplete

	zap.L().Debug("impact computed",
		zap.String("occurrence_id", event.ID),
		zap.String("tier", string(tier)),
		zap.Float64("impact_minutes", result.ImpactMinutes),
		zap.String("basis", string(result.Basis)),
		zap.String("severity", string(result.Severity)))

	return result, nil
}

// matchBaseline walks the tier table most-specific first and returns the
// first tier with at least one sample.
func (e *Engine) matchBaseline(ctx context.Context, event *model.EventOccurrence) (model.MatchTier, []model.TrafficSample, error) {
	dow, hour := model.TimeBuckets(*event.Start, e.loc)

	tiers := []struct {
		tier   model.MatchTier
		filter store.BaselineFilter
	}{
		{model.TierExact, store.BaselineFilter{VenueID: event.VenueID, DayOfWeek: &dow, HourOfDay: &hour}},
		{model.TierSameHour, store.BaselineFilter{VenueID: event.VenueID, HourOfDay: &hour}},
		{model.TierSameDay, store.BaselineFilter{VenueID: event.VenueID, DayOfWeek: &dow}},
		{model.TierVenueAverage, store.BaselineFilter{VenueID: event.VenueID}},
	}

	for _, t := range tiers {
		samples, err := e.store.ListBaselineSamples(ctx, t.filter)
		if err != nil {
			return model.TierNone, nil, eris.Wrapf(err, "impact: baseline tier %s", t.tier)
		}
		if len(samples) > 0 {
			return t.tier, samples, nil
		}
	}
	return model.TierNone, nil, nil
}

func meanDelay(samples []model.TrafficSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.DelayMinutes
	}
	return sum / float64(len(samples))
}

// speedImpact converts the event/baseline speed differential into minutes of
// extra travel over the measured segment. Samples with undefined speed are
// left out of the averages; the formula needs a positive average on both
// sides and a positive distance.
func speedImpact(eventSamples, baselines []model.TrafficSample) (float64, bool) {
	eventSpeed, okEvent := meanSpeed(eventSamples)
	baselineSpeed, okBaseline := meanSpeed(baselines)
	distance := meanDistance(eventSamples)
	if !okEvent || !okBaseline || distance <= 0 {
		return 0, false
	}
	return distance * (1/eventSpeed - 1/baselineSpeed) * 60, true
}

func meanSpeed(samples []model.TrafficSample) (float64, bool) {
	var sum float64
	var n int
	for _, s := range samples {
		if s.SpeedMPH != nil && *s.SpeedMPH > 0 {
			sum += *s.SpeedMPH
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func meanDistance(samples []model.TrafficSample) float64 {
	var sum float64
	var n int
	for _, s := range samples {
		if s.DistanceMiles > 0 {
			sum += s.DistanceMiles
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
