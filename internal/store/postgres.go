package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/abq-pulse/trafficwatch/internal/db"
	"github.com/abq-pulse/trafficwatch/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot collection path.
var preparedStatements = map[string]string{
	"insert_sample": `INSERT INTO traffic_samples (
		id, venue_id, measured_at, speed_mph, typical_speed_mph,
		travel_time_secs, typical_time_secs, delay_minutes, traffic_level,
		distance_miles, confidence, data_source, linked_event, is_baseline,
		baseline_group, day_of_week, hour_of_day, raw
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
	"count_event_samples": `SELECT COUNT(*) FROM traffic_samples WHERE linked_event = $1`,
	"add_quota_usage": `INSERT INTO quota_usage (day, used) VALUES ($1, $2)
		ON CONFLICT (day) DO UPDATE SET used = quota_usage.used + excluded.used
		RETURNING used`,
	"get_quota_usage": `SELECT used FROM quota_usage WHERE day = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool, used by tests.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS venues (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	latitude   DOUBLE PRECISION NOT NULL,
	longitude  DOUBLE PRECISION NOT NULL,
	capacity   INTEGER,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS events (
	id       TEXT PRIMARY KEY,
	venue_id TEXT NOT NULL REFERENCES venues(id),
	name     TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	start_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS traffic_samples (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	venue_id          TEXT NOT NULL REFERENCES venues(id),
	measured_at       TIMESTAMPTZ NOT NULL,
	speed_mph         DOUBLE PRECISION,
	typical_speed_mph DOUBLE PRECISION,
	travel_time_secs  INTEGER NOT NULL DEFAULT 0,
	typical_time_secs INTEGER NOT NULL DEFAULT 0,
	delay_minutes     DOUBLE PRECISION NOT NULL DEFAULT 0,
	traffic_level     TEXT NOT NULL,
	distance_miles    DOUBLE PRECISION NOT NULL DEFAULT 0,
	confidence        DOUBLE PRECISION NOT NULL DEFAULT 0,
	data_source       TEXT NOT NULL DEFAULT 'tomtom',
	linked_event      TEXT REFERENCES events(id),
	is_baseline       BOOLEAN NOT NULL DEFAULT false,
	baseline_group    TEXT,
	day_of_week       INTEGER NOT NULL,
	hour_of_day       INTEGER NOT NULL,
	raw               JSONB
);

CREATE TABLE IF NOT EXISTS venue_flags (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	venue_id   TEXT NOT NULL REFERENCES venues(id),
	reason     TEXT NOT NULL,
	flagged_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS quota_usage (
	day  TEXT PRIMARY KEY,
	used INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_events_start_at ON events(start_at);
CREATE INDEX IF NOT EXISTS idx_samples_venue ON traffic_samples(venue_id);
CREATE INDEX IF NOT EXISTS idx_samples_linked_event ON traffic_samples(linked_event);
CREATE INDEX IF NOT EXISTS idx_samples_baseline_buckets ON traffic_samples(venue_id, is_baseline, day_of_week, hour_of_day);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Venues

func (s *PostgresStore) UpsertVenue(ctx context.Context, v model.Venue) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO venues (id, name, latitude, longitude, capacity, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET
			name = $2, latitude = $3, longitude = $4, capacity = $5`,
		v.ID, v.Name, v.Latitude, v.Longitude, v.Capacity, v.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert venue %s", v.ID)
}

func (s *PostgresStore) GetVenue(ctx context.Context, id string) (*model.Venue, error) {
	var v model.Venue
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, latitude, longitude, capacity, created_at FROM venues WHERE id = $1`,
		id,
	).Scan(&v.ID, &v.Name, &v.Latitude, &v.Longitude, &v.Capacity, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get venue %s", id)
	}
	return &v, nil
}

func (s *PostgresStore) ListVenues(ctx context.Context) ([]model.Venue, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, latitude, longitude, capacity, created_at FROM venues ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list venues")
	}
	defer rows.Close()

	var venues []model.Venue
	for rows.Next() {
		var v model.Venue
		if err := rows.Scan(&v.ID, &v.Name, &v.Latitude, &v.Longitude, &v.Capacity, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan venue")
		}
		venues = append(venues, v)
	}
	return venues, eris.Wrap(rows.Err(), "postgres: list venues iterate")
}

func (s *PostgresStore) FlagVenue(ctx context.Context, venueID, reason string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO venue_flags (id, venue_id, reason, flagged_at) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), venueID, reason, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: flag venue %s", venueID)
}

func (s *PostgresStore) ListVenueFlags(ctx context.Context) ([]model.VenueFlag, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, venue_id, reason, flagged_at FROM venue_flags ORDER BY flagged_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list venue flags")
	}
	defer rows.Close()

	var flags []model.VenueFlag
	for rows.Next() {
		var f model.VenueFlag
		if err := rows.Scan(&f.ID, &f.VenueID, &f.Reason, &f.FlaggedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan venue flag")
		}
		flags = append(flags, f)
	}
	return flags, eris.Wrap(rows.Err(), "postgres: list venue flags iterate")
}

// Events

func (s *PostgresStore) UpsertEvent(ctx context.Context, e model.EventOccurrence) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, venue_id, name, category, start_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
			venue_id = $2, name = $3, category = $4, start_at = $5`,
		e.ID, e.VenueID, e.Name, e.Category, e.Start,
	)
	return eris.Wrapf(err, "postgres: upsert event %s", e.ID)
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (*model.EventOccurrence, error) {
	var e model.EventOccurrence
	err := s.pool.QueryRow(ctx,
		`SELECT id, venue_id, name, category, start_at FROM events WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.VenueID, &e.Name, &e.Category, &e.Start)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get event %s", id)
	}
	return &e, nil
}

func (s *PostgresStore) ListEventsStartingBetween(ctx context.Context, from, to time.Time) ([]model.EventOccurrence, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, venue_id, name, category, start_at FROM events
		 WHERE start_at IS NOT NULL AND start_at BETWEEN $1 AND $2
		 ORDER BY start_at`,
		from, to,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events in window")
	}
	defer rows.Close()

	var events []model.EventOccurrence
	for rows.Next() {
		var e model.EventOccurrence
		if err := rows.Scan(&e.ID, &e.VenueID, &e.Name, &e.Category, &e.Start); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event")
		}
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list events iterate")
}

func (s *PostgresStore) ListEventsWithSamples(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT linked_event FROM traffic_samples WHERE linked_event IS NOT NULL ORDER BY linked_event`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list events with samples")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan event id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: list events with samples iterate")
}

// Samples

func (s *PostgresStore) InsertSample(ctx context.Context, sample model.TrafficSample) error {
	if sample.ID == "" {
		sample.ID = uuid.New().String()
	}
	var raw []byte
	if len(sample.Raw) > 0 {
		raw = []byte(sample.Raw)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO traffic_samples (
			id, venue_id, measured_at, speed_mph, typical_speed_mph,
			travel_time_secs, typical_time_secs, delay_minutes, traffic_level,
			distance_miles, confidence, data_source, linked_event, is_baseline,
			baseline_group, day_of_week, hour_of_day, raw
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		sample.ID, sample.VenueID, sample.MeasuredAt.UTC(), sample.SpeedMPH, sample.TypicalSpeedMPH,
		sample.TravelTimeSecs, sample.TypicalTimeSecs, sample.DelayMinutes, string(sample.Level),
		sample.DistanceMiles, sample.Confidence, sample.DataSource, sample.LinkedEvent, sample.IsBaseline,
		sample.BaselineGroup, sample.DayOfWeek, sample.HourOfDay, raw,
	)
	return eris.Wrapf(err, "postgres: insert sample for venue %s", sample.VenueID)
}

func (s *PostgresStore) CountEventSamples(ctx context.Context, occurrenceID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM traffic_samples WHERE linked_event = $1`,
		occurrenceID,
	).Scan(&n)
	return n, eris.Wrapf(err, "postgres: count event samples %s", occurrenceID)
}

func (s *PostgresStore) ListEventSamples(ctx context.Context, occurrenceID string) ([]model.TrafficSample, error) {
	rows, err := s.pool.Query(ctx,
		pgSampleSelect+` WHERE linked_event = $1 ORDER BY measured_at`,
		occurrenceID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list event samples %s", occurrenceID)
	}
	defer rows.Close()
	return collectPgSamples(rows)
}

func (s *PostgresStore) ListBaselineSamples(ctx context.Context, f BaselineFilter) ([]model.TrafficSample, error) {
	query := pgSampleSelect + ` WHERE venue_id = $1 AND is_baseline`
	args := []any{f.VenueID}
	argIdx := 2

	if f.DayOfWeek != nil {
		query += fmt.Sprintf(` AND day_of_week = $%d`, argIdx)
		args = append(args, *f.DayOfWeek)
		argIdx++
	}
	if f.HourOfDay != nil {
		query += fmt.Sprintf(` AND hour_of_day = $%d`, argIdx)
		args = append(args, *f.HourOfDay)
		argIdx++
	}
	query += ` ORDER BY measured_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list baseline samples %s", f.VenueID)
	}
	defer rows.Close()
	return collectPgSamples(rows)
}

func (s *PostgresStore) SampleCounts(ctx context.Context) (*SampleCounts, error) {
	var c SampleCounts
	err := s.pool.QueryRow(ctx,
		`SELECT
			COUNT(*) FILTER (WHERE is_baseline),
			COUNT(*) FILTER (WHERE linked_event IS NOT NULL),
			COUNT(*) FILTER (WHERE NOT is_baseline AND linked_event IS NULL)
		 FROM traffic_samples`,
	).Scan(&c.Baseline, &c.Event, &c.Orphan)
	return &c, eris.Wrap(err, "postgres: sample counts")
}

// Quota

func (s *PostgresStore) QuotaUsage(ctx context.Context, day string) (int, error) {
	var used int
	err := s.pool.QueryRow(ctx,
		`SELECT used FROM quota_usage WHERE day = $1`, day,
	).Scan(&used)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return used, eris.Wrapf(err, "postgres: quota usage %s", day)
}

func (s *PostgresStore) AddQuotaUsage(ctx context.Context, day string, n int) (int, error) {
	var used int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO quota_usage (day, used) VALUES ($1, $2)
		 ON CONFLICT (day) DO UPDATE SET used = quota_usage.used + excluded.used
		 RETURNING used`,
		day, n,
	).Scan(&used)
	return used, eris.Wrapf(err, "postgres: add quota usage %s", day)
}

// helpers

const pgSampleSelect = `SELECT
	id, venue_id, measured_at, speed_mph, typical_speed_mph,
	travel_time_secs, typical_time_secs, delay_minutes, traffic_level,
	confidence, distance_miles, data_source, linked_event, is_baseline,
	baseline_group, day_of_week, hour_of_day
FROM traffic_samples`

func collectPgSamples(rows pgx.Rows) ([]model.TrafficSample, error) {
	var samples []model.TrafficSample
	for rows.Next() {
		var sm model.TrafficSample
		var level string
		if err := rows.Scan(
			&sm.ID, &sm.VenueID, &sm.MeasuredAt, &sm.SpeedMPH, &sm.TypicalSpeedMPH,
			&sm.TravelTimeSecs, &sm.TypicalTimeSecs, &sm.DelayMinutes, &level,
			&sm.Confidence, &sm.DistanceMiles, &sm.DataSource, &sm.LinkedEvent, &sm.IsBaseline,
			&sm.BaselineGroup, &sm.DayOfWeek, &sm.HourOfDay,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sample")
		}
		sm.MeasuredAt = sm.MeasuredAt.UTC()
		sm.Level = model.TrafficLevel(level)
		samples = append(samples, sm)
	}
	return samples, eris.Wrap(rows.Err(), "postgres: iterate samples")
}
