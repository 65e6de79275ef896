package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abq-pulse/trafficwatch/internal/model"
	"github.com/abq-pulse/trafficwatch/internal/quota"
	"github.com/abq-pulse/trafficwatch/internal/tomtom"
)

type fakeMeasurer struct {
	mu   sync.Mutex
	errs map[string]error // keyed by "lat,lon"
}

func (f *fakeMeasurer) Measure(_ context.Context, origin, _ model.Coordinate) (*tomtom.Measurement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[fmt.Sprintf("%.1f,%.1f", origin.Lat, origin.Lon)]; err != nil {
		return nil, err
	}
	return &tomtom.Measurement{
		CurrentSpeedMPH:  28.5,
		FreeFlowSpeedMPH: 35.0,
		TravelTimeSecs:   240,
		FreeFlowTimeSecs: 180,
		Confidence:       0.95,
		DistanceMiles:    1.2,
		MeasuredAt:       time.Date(2025, 6, 14, 19, 0, 0, 0, time.UTC),
	}, nil
}

type fakeStore struct {
	mu        sync.Mutex
	samples   []model.TrafficSample
	flags     map[string]string
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{flags: map[string]string{}}
}

func (f *fakeStore) InsertSample(_ context.Context, s model.TrafficSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.samples = append(f.samples, s)
	return nil
}

func (f *fakeStore) FlagVenue(_ context.Context, venueID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags[venueID] = reason
	return nil
}

func venueJob(i int, tag tomtom.SampleTag) Job {
	return Job{
		Venue: model.Venue{
			ID:        fmt.Sprintf("v%d", i),
			Latitude:  35.0 + float64(i),
			Longitude: -106.0,
		},
		Tag: tag,
	}
}

func TestRun_CollectsBatch(t *testing.T) {
	fs := newFakeStore()
	counter := quota.NewMemory(100, time.UTC)
	c := New(&fakeMeasurer{}, fs, counter, time.UTC, 4)

	jobs := []Job{
		venueJob(0, tomtom.SampleTag{BaselineGroup: "weekly-0"}),
		venueJob(1, tomtom.SampleTag{BaselineGroup: "weekly-0"}),
		venueJob(2, tomtom.SampleTag{LinkedEvent: "occ-1"}),
	}

	stats, err := c.Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Requested)
	assert.Equal(t, 3, stats.Collected)
	assert.Zero(t, stats.Failed)
	assert.Zero(t, stats.Dropped)
	require.Len(t, fs.samples, 3)

	remaining, err := counter.Remaining(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 97, remaining)
}

func TestRun_QuotaExhaustionDropsRemainder(t *testing.T) {
	fs := newFakeStore()
	counter := quota.NewMemory(2, time.UTC)
	// Single worker keeps ordering deterministic.
	c := New(&fakeMeasurer{}, fs, counter, time.UTC, 1)

	jobs := make([]Job, 5)
	for i := range jobs {
		jobs[i] = venueJob(i, tomtom.SampleTag{BaselineGroup: "weekly-0"})
	}

	stats, err := c.Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Collected)
	assert.Equal(t, 3, stats.Dropped)
	assert.Len(t, fs.samples, 2)
}

func TestRun_RejectedFlagsVenue(t *testing.T) {
	fs := newFakeStore()
	fm := &fakeMeasurer{errs: map[string]error{
		"35.0,-106.0": tomtom.ErrProviderRejected,
	}}
	c := New(fm, fs, quota.NewMemory(100, time.UTC), time.UTC, 1)

	jobs := []Job{
		venueJob(0, tomtom.SampleTag{BaselineGroup: "weekly-0"}),
		venueJob(1, tomtom.SampleTag{BaselineGroup: "weekly-0"}),
	}

	stats, err := c.Run(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Collected)
	assert.Equal(t, 1, stats.Failed)
	assert.Contains(t, fs.flags, "v0")
	assert.NotContains(t, fs.flags, "v1")
}

func TestRun_UnavailableSkipsWithoutFlag(t *testing.T) {
	fs := newFakeStore()
	fm := &fakeMeasurer{errs: map[string]error{
		"35.0,-106.0": tomtom.ErrProviderUnavailable,
	}}
	c := New(fm, fs, quota.NewMemory(100, time.UTC), time.UTC, 1)

	stats, err := c.Run(context.Background(), []Job{
		venueJob(0, tomtom.SampleTag{BaselineGroup: "weekly-0"}),
		venueJob(1, tomtom.SampleTag{BaselineGroup: "weekly-0"}),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Collected)
	assert.Equal(t, 1, stats.Failed)
	assert.Empty(t, fs.flags)
}

func TestRun_InsertErrorCountsFailed(t *testing.T) {
	fs := newFakeStore()
	fs.insertErr = errors.New("disk full")
	c := New(&fakeMeasurer{}, fs, quota.NewMemory(100, time.UTC), time.UTC, 1)

	stats, err := c.Run(context.Background(), []Job{
		venueJob(0, tomtom.SampleTag{BaselineGroup: "weekly-0"}),
	})
	require.NoError(t, err)
	assert.Zero(t, stats.Collected)
	assert.Equal(t, 1, stats.Failed)
}

func TestRun_SampleTagging(t *testing.T) {
	fs := newFakeStore()
	c := New(&fakeMeasurer{}, fs, quota.NewMemory(100, time.UTC), time.UTC, 1)

	_, err := c.Run(context.Background(), []Job{
		venueJob(0, tomtom.SampleTag{LinkedEvent: "occ-1"}),
		venueJob(1, tomtom.SampleTag{BaselineGroup: "weekly-1"}),
	})
	require.NoError(t, err)
	require.Len(t, fs.samples, 2)

	for _, s := range fs.samples {
		switch s.VenueID {
		case "v0":
			require.NotNil(t, s.LinkedEvent)
			assert.Equal(t, "occ-1", *s.LinkedEvent)
			assert.False(t, s.IsBaseline)
		case "v1":
			assert.True(t, s.IsBaseline)
			require.NotNil(t, s.BaselineGroup)
			assert.Equal(t, "weekly-1", *s.BaselineGroup)
		}
	}
}

func TestRun_EmptyBatch(t *testing.T) {
	c := New(&fakeMeasurer{}, newFakeStore(), quota.NewMemory(100, time.UTC), time.UTC, 1)
	stats, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, stats.Requested)
}
