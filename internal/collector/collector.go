// Package collector executes one measurement tick: a batch of venue readings
// taken concurrently under the shared daily quota. Both the baseline rotation
// and the event trigger feed jobs through the same path.
package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abq-pulse/trafficwatch/internal/model"
	"github.com/abq-pulse/trafficwatch/internal/quota"
	"github.com/abq-pulse/trafficwatch/internal/tomtom"
)

// Measurer is the traffic provider surface the collector calls.
type Measurer interface {
	Measure(ctx context.Context, origin, destination model.Coordinate) (*tomtom.Measurement, error)
}

// Store is the subset of the measurement store the collector writes.
type Store interface {
	InsertSample(ctx context.Context, s model.TrafficSample) error
	FlagVenue(ctx context.Context, venueID, reason string) error
}

// Job is one venue reading to take, tagged for baseline or event linkage.
type Job struct {
	Venue model.Venue
	Tag   tomtom.SampleTag
}

// Stats summarizes a tick. Dropped jobs hit the quota ceiling; failed jobs
// hit provider or store errors. Neither aborts the rest of the batch.
type Stats struct {
	Requested int `json:"requested"`
	Collected int `json:"collected"`
	Failed    int `json:"failed"`
	Dropped   int `json:"dropped"`
}

// Collector runs measurement batches with a bounded worker pool.
type Collector struct {
	client  Measurer
	store   Store
	quota   quota.Counter
	loc     *time.Location
	workers int
}

func New(client Measurer, store Store, counter quota.Counter, loc *time.Location, workers int) *Collector {
	if workers <= 0 {
		workers = 4
	}
	return &Collector{
		client:  client,
		store:   store,
		quota:   counter,
		loc:     loc,
		workers: workers,
	}
}

// Run takes every job in the batch, up to the remaining daily quota. Once the
// counter reports exhaustion the rest of the batch is dropped for the day;
// nothing is queued for later.
func (c *Collector) Run(ctx context.Context, jobs []Job) (*Stats, error) {
	stats := &Stats{Requested: len(jobs)}
	if len(jobs) == 0 {
		return stats, nil
	}

	if err := c.quota.ResetIfNewDay(ctx, time.Now()); err != nil {
		return stats, err
	}

	var mu sync.Mutex
	exhausted := false

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for _, job := range jobs {
		job := job
		g.Go(func() error {
			mu.Lock()
			if exhausted {
				stats.Dropped++
				mu.Unlock()
				return nil
			}
			mu.Unlock()

			if err := c.quota.Increment(gctx); err != nil {
				mu.Lock()
				if errors.Is(err, quota.ErrExhausted) {
					if !exhausted {
						exhausted = true
						zap.L().Warn("daily quota exhausted, dropping remainder of tick")
					}
					stats.Dropped++
				} else {
					stats.Failed++
				}
				mu.Unlock()
				return nil
			}

			c.collect(gctx, job, stats, &mu)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}

	zap.L().Info("tick complete",
		zap.Int("requested", stats.Requested),
		zap.Int("collected", stats.Collected),
		zap.Int("failed", stats.Failed),
		zap.Int("dropped", stats.Dropped))

	return stats, nil
}

func (c *Collector) collect(ctx context.Context, job Job, stats *Stats, mu *sync.Mutex) {
	point := job.Venue.Coordinate()
	m, err := c.client.Measure(ctx, point, point)
	if err != nil {
		mu.Lock()
		stats.Failed++
		mu.Unlock()

		switch {
		case errors.Is(err, tomtom.ErrProviderRejected):
			zap.L().Warn("provider rejected venue, flagging for review",
				zap.String("venue_id", job.Venue.ID),
				zap.Error(err))
			if flagErr := c.store.FlagVenue(ctx, job.Venue.ID, err.Error()); flagErr != nil {
				zap.L().Error("flag venue failed",
					zap.String("venue_id", job.Venue.ID),
					zap.Error(flagErr))
			}
		case errors.Is(err, tomtom.ErrProviderUnavailable):
			zap.L().Warn("provider unavailable, skipping venue",
				zap.String("venue_id", job.Venue.ID),
				zap.Error(err))
		default:
			zap.L().Error("measurement failed",
				zap.String("venue_id", job.Venue.ID),
				zap.Error(err))
		}
		return
	}

	sample := tomtom.BuildSample(job.Venue.ID, m, job.Tag, c.loc)
	if err := c.store.InsertSample(ctx, sample); err != nil {
		mu.Lock()
		stats.Failed++
		mu.Unlock()
		zap.L().Error("insert sample failed",
			zap.String("venue_id", job.Venue.ID),
			zap.Error(err))
		return
	}

	mu.Lock()
	stats.Collected++
	mu.Unlock()
}
