package model

import "time"

// EventOccurrence is a single dated occurrence of an event at a venue.
// Occurrences are produced by the ingestion pipeline and are read-only here.
// Start is nil when the source listed no start time; such occurrences are
// excluded from traffic collection and classified as quality "unknown".
type EventOccurrence struct {
	ID       string     `json:"id"`
	VenueID  string     `json:"venue_id"`
	Name     string     `json:"name"`
	Category string     `json:"category"`
	Start    *time.Time `json:"start,omitempty"`
}

// HasStart reports whether the occurrence has a usable start timestamp.
func (e EventOccurrence) HasStart() bool {
	return e.Start != nil && !e.Start.IsZero()
}
