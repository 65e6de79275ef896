package model

import "time"

// MatchTier records how specific the baseline match for an impact result was.
// Tiers are ordered most-specific first; the engine stops at the first tier
// with at least one matching sample.
type MatchTier string

const (
	TierExact        MatchTier = "exact"         // same venue, day-of-week and hour
	TierSameHour     MatchTier = "same_hour"     // same venue and hour, any day
	TierSameDay      MatchTier = "same_day"      // same venue and day, any hour
	TierVenueAverage MatchTier = "venue_average" // all baseline samples at venue
	TierNone         MatchTier = "none"          // no baseline at venue
)

// Severity labels the estimated extra delay attributable to an event.
type Severity string

const (
	SeveritySevere   Severity = "severe"
	SeverityHigh     Severity = "high"
	SeverityModerate Severity = "moderate"
	SeverityLow      Severity = "low"
	SeverityNone     Severity = "none"
	SeverityUnknown  Severity = "unknown"
)

// ClassifySeverity maps impact minutes to a Severity. Only call this when a
// baseline tier resolved; negative or zero impact is "none", never "unknown".
func ClassifySeverity(impactMinutes float64) Severity {
	switch {
	case impactMinutes > 5:
		return SeveritySevere
	case impactMinutes > 2:
		return SeverityHigh
	case impactMinutes > 1:
		return SeverityModerate
	case impactMinutes > 0:
		return SeverityLow
	default:
		return SeverityNone
	}
}

// DataQuality labels how much data backed an impact result, independent of
// severity. Complete means both sample populations are non-empty; depth of
// coverage is reported separately through the sample counts.
type DataQuality string

const (
	QualityComplete       DataQuality = "complete"         // both populations non-empty
	QualityPartial        DataQuality = "partial"          // exactly one population non-empty
	QualityNoEventData    DataQuality = "no_event_data"    // no samples linked to the occurrence
	QualityNoBaselineData DataQuality = "no_baseline_data" // no baseline tier resolved
	QualityUnknown        DataQuality = "unknown"          // occurrence has no start time
)

// ImpactBasis records which formula produced ImpactMinutes.
type ImpactBasis string

const (
	// BasisSpeed is the normative speed-differential formula. Provider delay
	// figures report zero for a majority of genuinely congested samples, so
	// speed differentials are the ranking signal.
	BasisSpeed ImpactBasis = "speed"
	// BasisDelay is the provider-delay fallback, used when average speeds
	// are undefined on either side.
	BasisDelay ImpactBasis = "delay"
)

// ImpactResult is the derived per-occurrence traffic impact estimate. It is
// recomputed on demand from the current sample set and is never stored or
// independently mutated.
type ImpactResult struct {
	OccurrenceID string `json:"occurrence_id"`
	VenueID      string `json:"venue_id"`
	EventName    string `json:"event_name,omitempty"`
	Category     string `json:"category,omitempty"`

	Tier            MatchTier `json:"baseline_tier"`
	BaselineSamples int       `json:"baseline_sample_count"`
	EventSamples    int       `json:"event_sample_count"`

	MeanEventDelay    float64 `json:"mean_event_delay_minutes"`
	MeanBaselineDelay float64 `json:"mean_baseline_delay_minutes"`

	// DelayImpactMinutes is mean event delay minus mean baseline delay.
	// SpeedImpactMinutes is distance * (1/event_speed - 1/baseline_speed) * 60,
	// nil when either average speed is undefined. ImpactMinutes is whichever
	// of the two Basis names.
	DelayImpactMinutes float64     `json:"delay_impact_minutes"`
	SpeedImpactMinutes *float64    `json:"speed_impact_minutes,omitempty"`
	ImpactMinutes      float64     `json:"impact_minutes"`
	Basis              ImpactBasis `json:"basis"`

	Severity   Severity    `json:"severity"`
	Quality    DataQuality `json:"quality"`
	ComputedAt time.Time   `json:"computed_at"`
}
