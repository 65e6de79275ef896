package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abq-pulse/trafficwatch/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_GetVenue_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, latitude, longitude, capacity, created_at FROM venues`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	v, err := s.GetVenue(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetVenue_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	created := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	capacity := 15000
	rows := pgxmock.NewRows([]string{"id", "name", "latitude", "longitude", "capacity", "created_at"}).
		AddRow("v1", "Isleta Amphitheater", 34.9634, -106.6548, &capacity, created)

	mock.ExpectQuery(`SELECT id, name, latitude, longitude, capacity, created_at FROM venues`).
		WithArgs("v1").
		WillReturnRows(rows)

	v, err := s.GetVenue(context.Background(), "v1")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "Isleta Amphitheater", v.Name)
	require.NotNil(t, v.Capacity)
	assert.Equal(t, 15000, *v.Capacity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertVenue(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO venues`).
		WithArgs("v1", "V1", 35.0, -106.0, (*int)(nil), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertVenue(context.Background(), model.Venue{
		ID: "v1", Name: "V1", Latitude: 35.0, Longitude: -106.0,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// anySampleArgs matches the 18 arguments of the traffic_samples INSERT without
// inspecting them; pgxmock v3 requires the argument count to line up even when
// the values themselves are not being checked.
func anySampleArgs() []any {
	args := make([]any, 18)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func TestPostgresStore_InsertSample(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO traffic_samples`).
		WithArgs(anySampleArgs()...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.InsertSample(context.Background(), model.TrafficSample{
		VenueID:         "v1",
		MeasuredAt:      time.Date(2025, 6, 14, 19, 0, 0, 0, time.UTC),
		TravelTimeSecs:  240,
		TypicalTimeSecs: 180,
		DelayMinutes:    1.0,
		Level:           model.LevelModerate,
		IsBaseline:      true,
		DayOfWeek:       6,
		HourOfDay:       13,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertSample_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO traffic_samples`).
		WithArgs(anySampleArgs()...).
		WillReturnError(errors.New("connection refused"))

	err := s.InsertSample(context.Background(), model.TrafficSample{VenueID: "v1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert sample")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListBaselineSamples_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cols := []string{
		"id", "venue_id", "measured_at", "speed_mph", "typical_speed_mph",
		"travel_time_secs", "typical_time_secs", "delay_minutes", "traffic_level",
		"confidence", "distance_miles", "data_source", "linked_event", "is_baseline",
		"baseline_group", "day_of_week", "hour_of_day",
	}
	speed := 28.5
	rows := pgxmock.NewRows(cols).AddRow(
		"s1", "v1", time.Date(2025, 6, 14, 19, 0, 0, 0, time.UTC), &speed, (*float64)(nil),
		240, 180, 1.0, "moderate",
		0.95, 1.2, "tomtom", (*string)(nil), true,
		(*string)(nil), 6, 19,
	)

	mock.ExpectQuery(`SELECT(?s:.*)FROM traffic_samples WHERE venue_id = \$1 AND is_baseline AND day_of_week = \$2 AND hour_of_day = \$3`).
		WithArgs("v1", 6, 19).
		WillReturnRows(rows)

	got, err := s.ListBaselineSamples(context.Background(), BaselineFilter{
		VenueID:   "v1",
		DayOfWeek: intPtr(6),
		HourOfDay: intPtr(19),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].ID)
	assert.Equal(t, model.LevelModerate, got[0].Level)
	require.NotNil(t, got[0].SpeedMPH)
	assert.Equal(t, 28.5, *got[0].SpeedMPH)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountEventSamples(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM traffic_samples WHERE linked_event = \$1`).
		WithArgs("occ-1").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := s.CountEventSamples(context.Background(), "occ-1")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SampleCounts(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT(?s:.*)FROM traffic_samples`).
		WillReturnRows(pgxmock.NewRows([]string{"baseline", "event", "orphan"}).AddRow(10, 4, 1))

	c, err := s.SampleCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, c.Baseline)
	assert.Equal(t, 4, c.Event)
	assert.Equal(t, 1, c.Orphan)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QuotaUsage_NoRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT used FROM quota_usage`).
		WithArgs("2025-06-14").
		WillReturnError(pgx.ErrNoRows)

	used, err := s.QuotaUsage(context.Background(), "2025-06-14")
	require.NoError(t, err)
	assert.Equal(t, 0, used)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AddQuotaUsage(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO quota_usage`).
		WithArgs("2025-06-14", 1).
		WillReturnRows(pgxmock.NewRows([]string{"used"}).AddRow(6))

	used, err := s.AddQuotaUsage(context.Background(), "2025-06-14", 1)
	require.NoError(t, err)
	assert.Equal(t, 6, used)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListEventsWithSamples(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT DISTINCT linked_event FROM traffic_samples`).
		WillReturnRows(pgxmock.NewRows([]string{"linked_event"}).AddRow("occ-1").AddRow("occ-2"))

	ids, err := s.ListEventsWithSamples(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"occ-1", "occ-2"}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}
