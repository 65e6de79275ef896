package tomtom

import (
	"time"

	"github.com/google/uuid"

	"github.com/abq-pulse/trafficwatch/internal/model"
)

// SampleTag says what a measurement was taken for. Exactly one of
// LinkedEvent or BaselineGroup should be set.
type SampleTag struct {
	LinkedEvent   string
	BaselineGroup string
}

// BuildSample derives the stored sample from a raw measurement. All derived
// metrics (delay, level, speeds, time buckets) are computed here, at write
// time, not deferred to the correlation stage.
func BuildSample(venueID string, m *Measurement, tag SampleTag, loc *time.Location) model.TrafficSample {
	delayMinutes := float64(m.TravelTimeSecs-m.FreeFlowTimeSecs) / 60.0
	dow, hour := model.TimeBuckets(m.MeasuredAt, loc)

	s := model.TrafficSample{
		ID:              uuid.New().String(),
		VenueID:         venueID,
		MeasuredAt:      m.MeasuredAt,
		TravelTimeSecs:  m.TravelTimeSecs,
		TypicalTimeSecs: m.FreeFlowTimeSecs,
		DelayMinutes:    round2(delayMinutes),
		Level:           model.ClassifyLevel(delayMinutes),
		DistanceMiles:   m.DistanceMiles,
		Confidence:      m.Confidence,
		DataSource:      "tomtom",
		DayOfWeek:       dow,
		HourOfDay:       hour,
		Raw:             m.Raw,
	}

	// Prefer provider-reported speeds; fall back to distance over travel time.
	// A zero or missing time leaves the speed undefined rather than dividing.
	s.SpeedMPH = speedOrDerived(m.CurrentSpeedMPH, m.DistanceMiles, m.TravelTimeSecs)
	s.TypicalSpeedMPH = speedOrDerived(m.FreeFlowSpeedMPH, m.DistanceMiles, m.FreeFlowTimeSecs)

	if tag.LinkedEvent != "" {
		ev := tag.LinkedEvent
		s.LinkedEvent = &ev
	} else if tag.BaselineGroup != "" {
		s.IsBaseline = true
		group := tag.BaselineGroup
		s.BaselineGroup = &group
	}

	return s
}

func speedOrDerived(reported, distanceMiles float64, travelSecs int) *float64 {
	if reported > 0 {
		v := round2(reported)
		return &v
	}
	if travelSecs <= 0 || distanceMiles <= 0 {
		return nil
	}
	v := round2(distanceMiles / (float64(travelSecs) / 3600.0))
	return &v
}
