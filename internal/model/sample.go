package model

import (
	"encoding/json"
	"time"
)

// TrafficLevel buckets a measured delay into a coarse congestion label.
type TrafficLevel string

const (
	LevelLight    TrafficLevel = "light"
	LevelModerate TrafficLevel = "moderate"
	LevelHeavy    TrafficLevel = "heavy"
	LevelSevere   TrafficLevel = "severe"
)

// ClassifyLevel maps delay minutes to a TrafficLevel. Thresholds are fixed
// policy, not per-venue configuration.
func ClassifyLevel(delayMinutes float64) TrafficLevel {
	switch {
	case delayMinutes <= 0:
		return LevelLight
	case delayMinutes <= 2:
		return LevelModerate
	case delayMinutes <= 5:
		return LevelHeavy
	default:
		return LevelSevere
	}
}

// TrafficSample is one traffic measurement at a venue. Samples are immutable
// once written: the only lifecycle event is creation. Exactly one of
// LinkedEvent or IsBaseline should hold for a sample that participates in
// correlation; a sample with neither is an orphan and is excluded from all
// aggregates but never deleted.
type TrafficSample struct {
	ID         string    `json:"id"`
	VenueID    string    `json:"venue_id"`
	MeasuredAt time.Time `json:"measured_at"` // UTC

	SpeedMPH        *float64     `json:"speed_mph,omitempty"`
	TypicalSpeedMPH *float64     `json:"typical_speed_mph,omitempty"`
	TravelTimeSecs  int          `json:"travel_time_secs"`
	TypicalTimeSecs int          `json:"typical_time_secs"`
	DelayMinutes    float64      `json:"delay_minutes"`
	Level           TrafficLevel `json:"traffic_level"`
	DistanceMiles   float64      `json:"distance_miles"`
	Confidence      float64      `json:"confidence"`
	DataSource      string       `json:"data_source"`

	LinkedEvent   *string `json:"linked_event,omitempty"`
	IsBaseline    bool    `json:"is_baseline"`
	BaselineGroup *string `json:"baseline_group,omitempty"`

	// Derived once at write time from MeasuredAt in the deployment's local zone.
	DayOfWeek int `json:"day_of_week"` // 0=Sunday .. 6=Saturday
	HourOfDay int `json:"hour_of_day"` // 0..23

	Raw json.RawMessage `json:"raw,omitempty"`
}

// IsOrphan reports whether the sample is neither event-linked nor baseline.
func (s TrafficSample) IsOrphan() bool {
	return s.LinkedEvent == nil && !s.IsBaseline
}

// TimeBuckets derives the day-of-week and hour-of-day bucket for a timestamp
// in the given location. Baseline matching depends on these being computed
// consistently at write time.
func TimeBuckets(t time.Time, loc *time.Location) (dayOfWeek, hourOfDay int) {
	lt := t.In(loc)
	return int(lt.Weekday()), lt.Hour()
}
