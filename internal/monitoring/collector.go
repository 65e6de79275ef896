// Package monitoring gathers point-in-time operational snapshots for the
// status command and the HTTP metrics endpoint.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/abq-pulse/trafficwatch/internal/quota"
	"github.com/abq-pulse/trafficwatch/internal/store"
)

// MetricsSnapshot holds a point-in-time view of system health. Orphan samples
// are counted here and nowhere else: they are kept in the log but excluded
// from every aggregate.
type MetricsSnapshot struct {
	Venues            int `json:"venues"`
	FlaggedVenues     int `json:"flagged_venues"`
	EventsWithSamples int `json:"events_with_samples"`

	BaselineSamples int `json:"baseline_samples"`
	EventSamples    int `json:"event_samples"`
	OrphanSamples   int `json:"orphan_samples"`

	QuotaLimit     int `json:"quota_limit"`
	QuotaRemaining int `json:"quota_remaining"`
	QuotaUsed      int `json:"quota_used"`

	CollectedAt time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store and the quota counter.
type Collector struct {
	store      store.Store
	counter    quota.Counter
	quotaLimit int
}

// NewCollector creates a metrics collector.
func NewCollector(st store.Store, counter quota.Counter, quotaLimit int) *Collector {
	return &Collector{store: st, counter: counter, quotaLimit: quotaLimit}
}

// Collect gathers a snapshot of the current system state.
func (c *Collector) Collect(ctx context.Context) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		QuotaLimit:  c.quotaLimit,
		CollectedAt: time.Now().UTC(),
	}

	venues, err := c.store.ListVenues(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list venues")
	}
	snap.Venues = len(venues)

	flags, err := c.store.ListVenueFlags(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list venue flags")
	}
	flagged := map[string]bool{}
	for _, f := range flags {
		flagged[f.VenueID] = true
	}
	snap.FlaggedVenues = len(flagged)

	withSamples, err := c.store.ListEventsWithSamples(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list events with samples")
	}
	snap.EventsWithSamples = len(withSamples)

	counts, err := c.store.SampleCounts(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: sample counts")
	}
	snap.BaselineSamples = counts.Baseline
	snap.EventSamples = counts.Event
	snap.OrphanSamples = counts.Orphan

	if c.counter != nil {
		remaining, err := c.counter.Remaining(ctx)
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: quota remaining")
		}
		snap.QuotaRemaining = remaining
		snap.QuotaUsed = c.quotaLimit - remaining
	}

	return snap, nil
}
