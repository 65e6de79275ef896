package model

import "time"

// Venue is a geocoded event location. Venues are created once by the
// ingestion side and are never deleted while events or samples reference them.
type Venue struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Capacity  *int      `json:"capacity,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Coordinate returns the venue's location as a Coordinate.
func (v Venue) Coordinate() Coordinate {
	return Coordinate{Lat: v.Latitude, Lon: v.Longitude}
}

// VenueFlag marks a venue for manual review, e.g. after the traffic
// provider rejected its coordinates.
type VenueFlag struct {
	ID        string    `json:"id"`
	VenueID   string    `json:"venue_id"`
	Reason    string    `json:"reason"`
	FlaggedAt time.Time `json:"flagged_at"`
}
