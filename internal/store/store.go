package store

import (
	"context"
	"time"

	"github.com/abq-pulse/trafficwatch/internal/model"
)

// BaselineFilter selects baseline samples for tier matching. VenueID is
// required; day/hour are optional narrowing predicates. Orphan samples
// (neither baseline nor event-linked) never match any filter.
type BaselineFilter struct {
	VenueID   string
	DayOfWeek *int
	HourOfDay *int
}

// SampleCounts summarizes the sample log for monitoring.
type SampleCounts struct {
	Baseline int `json:"baseline"`
	Event    int `json:"event"`
	Orphan   int `json:"orphan"`
}

// Store is the persistence interface for the collection core. Samples are
// append-only: there are no update or delete operations on them.
type Store interface {
	// Venues
	UpsertVenue(ctx context.Context, v model.Venue) error
	GetVenue(ctx context.Context, id string) (*model.Venue, error)
	ListVenues(ctx context.Context) ([]model.Venue, error)
	FlagVenue(ctx context.Context, venueID, reason string) error
	ListVenueFlags(ctx context.Context) ([]model.VenueFlag, error)

	// Event occurrences (read-mostly; written only by import)
	UpsertEvent(ctx context.Context, e model.EventOccurrence) error
	GetEvent(ctx context.Context, id string) (*model.EventOccurrence, error)
	ListEventsStartingBetween(ctx context.Context, from, to time.Time) ([]model.EventOccurrence, error)
	ListEventsWithSamples(ctx context.Context) ([]string, error)

	// Traffic samples (append-only)
	InsertSample(ctx context.Context, s model.TrafficSample) error
	CountEventSamples(ctx context.Context, occurrenceID string) (int, error)
	ListEventSamples(ctx context.Context, occurrenceID string) ([]model.TrafficSample, error)
	ListBaselineSamples(ctx context.Context, f BaselineFilter) ([]model.TrafficSample, error)
	SampleCounts(ctx context.Context) (*SampleCounts, error)

	// Daily quota usage, keyed by local calendar day
	QuotaUsage(ctx context.Context, day string) (int, error)
	AddQuotaUsage(ctx context.Context, day string, n int) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
