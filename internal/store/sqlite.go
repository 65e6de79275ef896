package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/abq-pulse/trafficwatch/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS venues (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	latitude   REAL NOT NULL,
	longitude  REAL NOT NULL,
	capacity   INTEGER,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS events (
	id       TEXT PRIMARY KEY,
	venue_id TEXT NOT NULL REFERENCES venues(id),
	name     TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	start_at DATETIME
);

CREATE TABLE IF NOT EXISTS traffic_samples (
	id                TEXT PRIMARY KEY,
	venue_id          TEXT NOT NULL REFERENCES venues(id),
	measured_at       DATETIME NOT NULL,
	speed_mph         REAL,
	typical_speed_mph REAL,
	travel_time_secs  INTEGER NOT NULL DEFAULT 0,
	typical_time_secs INTEGER NOT NULL DEFAULT 0,
	delay_minutes     REAL NOT NULL DEFAULT 0,
	traffic_level     TEXT NOT NULL,
	distance_miles    REAL NOT NULL DEFAULT 0,
	confidence        REAL NOT NULL DEFAULT 0,
	data_source       TEXT NOT NULL DEFAULT 'tomtom',
	linked_event      TEXT REFERENCES events(id),
	is_baseline       INTEGER NOT NULL DEFAULT 0,
	baseline_group    TEXT,
	day_of_week       INTEGER NOT NULL,
	hour_of_day       INTEGER NOT NULL,
	raw               TEXT
);

CREATE TABLE IF NOT EXISTS venue_flags (
	id         TEXT PRIMARY KEY,
	venue_id   TEXT NOT NULL REFERENCES venues(id),
	reason     TEXT NOT NULL,
	flagged_at DATETIME NOT NULL DEFAULT (datetime('now'))
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

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Venues

func (s *SQLiteStore) UpsertVenue(ctx context.Context, v model.Venue) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO venues (id, name, latitude, longitude, capacity, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			capacity = excluded.capacity`,
		v.ID, v.Name, v.Latitude, v.Longitude, v.Capacity, v.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert venue %s", v.ID)
}

func (s *SQLiteStore) GetVenue(ctx context.Context, id string) (*model.Venue, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, latitude, longitude, capacity, created_at FROM venues WHERE id = ?`, id,
	)
	var v model.Venue
	var capacity sql.NullInt64
	err := row.Scan(&v.ID, &v.Name, &v.Latitude, &v.Longitude, &capacity, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get venue %s", id)
	}
	if capacity.Valid {
		c := int(capacity.Int64)
		v.Capacity = &c
	}
	return &v, nil
}

func (s *SQLiteStore) ListVenues(ctx context.Context) ([]model.Venue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, latitude, longitude, capacity, created_at FROM venues ORDER BY id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list venues")
	}
	defer rows.Close()

	var venues []model.Venue
	for rows.Next() {
		var v model.Venue
		var capacity sql.NullInt64
		if err := rows.Scan(&v.ID, &v.Name, &v.Latitude, &v.Longitude, &capacity, &v.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan venue")
		}
		if capacity.Valid {
			c := int(capacity.Int64)
			v.Capacity = &c
		}
		venues = append(venues, v)
	}
	return venues, eris.Wrap(rows.Err(), "sqlite: list venues iterate")
}

func (s *SQLiteStore) FlagVenue(ctx context.Context, venueID, reason string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO venue_flags (id, venue_id, reason, flagged_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), venueID, reason, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: flag venue %s", venueID)
}

func (s *SQLiteStore) ListVenueFlags(ctx context.Context) ([]model.VenueFlag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, venue_id, reason, flagged_at FROM venue_flags ORDER BY flagged_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list venue flags")
	}
	defer rows.Close()

	var flags []model.VenueFlag
	for rows.Next() {
		var f model.VenueFlag
		if err := rows.Scan(&f.ID, &f.VenueID, &f.Reason, &f.FlaggedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan venue flag")
		}
		flags = append(flags, f)
	}
	return flags, eris.Wrap(rows.Err(), "sqlite: list venue flags iterate")
}

// Events

func (s *SQLiteStore) UpsertEvent(ctx context.Context, e model.EventOccurrence) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, venue_id, name, category, start_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			venue_id = excluded.venue_id,
			name = excluded.name,
			category = excluded.category,
			start_at = excluded.start_at`,
		e.ID, e.VenueID, e.Name, e.Category, e.Start,
	)
	return eris.Wrapf(err, "sqlite: upsert event %s", e.ID)
}

func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*model.EventOccurrence, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, venue_id, name, category, start_at FROM events WHERE id = ?`, id,
	)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get event %s", id)
	}
	return e, nil
}

func (s *SQLiteStore) ListEventsStartingBetween(ctx context.Context, from, to time.Time) ([]model.EventOccurrence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, venue_id, name, category, start_at FROM events
		 WHERE start_at IS NOT NULL AND start_at BETWEEN ? AND ?
		 ORDER BY start_at`,
		from, to,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events in window")
	}
	defer rows.Close()

	var events []model.EventOccurrence
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event")
		}
		events = append(events, *e)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list events iterate")
}

func (s *SQLiteStore) ListEventsWithSamples(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT linked_event FROM traffic_samples WHERE linked_event IS NOT NULL ORDER BY linked_event`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list events with samples")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan event id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list events with samples iterate")
}

// Samples

func (s *SQLiteStore) InsertSample(ctx context.Context, sample model.TrafficSample) error {
	if sample.ID == "" {
		sample.ID = uuid.New().String()
	}
	var raw *string
	if len(sample.Raw) > 0 {
		r := string(sample.Raw)
		raw = &r
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO traffic_samples (
			id, venue_id, measured_at, speed_mph, typical_speed_mph,
			travel_time_secs, typical_time_secs, delay_minutes, traffic_level,
			distance_miles, confidence, data_source, linked_event, is_baseline,
			baseline_group, day_of_week, hour_of_day, raw
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sample.ID, sample.VenueID, sample.MeasuredAt.UTC(), sample.SpeedMPH, sample.TypicalSpeedMPH,
		sample.TravelTimeSecs, sample.TypicalTimeSecs, sample.DelayMinutes, string(sample.Level),
		sample.DistanceMiles, sample.Confidence, sample.DataSource, sample.LinkedEvent, sample.IsBaseline,
		sample.BaselineGroup, sample.DayOfWeek, sample.HourOfDay, raw,
	)
	return eris.Wrapf(err, "sqlite: insert sample for venue %s", sample.VenueID)
}

func (s *SQLiteStore) CountEventSamples(ctx context.Context, occurrenceID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM traffic_samples WHERE linked_event = ?`, occurrenceID,
	).Scan(&n)
	return n, eris.Wrapf(err, "sqlite: count event samples %s", occurrenceID)
}

func (s *SQLiteStore) ListEventSamples(ctx context.Context, occurrenceID string) ([]model.TrafficSample, error) {
	rows, err := s.db.QueryContext(ctx,
		sampleSelect+` WHERE linked_event = ? ORDER BY measured_at`, occurrenceID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list event samples %s", occurrenceID)
	}
	return collectSamples(rows)
}

func (s *SQLiteStore) ListBaselineSamples(ctx context.Context, f BaselineFilter) ([]model.TrafficSample, error) {
	query := sampleSelect + ` WHERE venue_id = ? AND is_baseline = 1`
	args := []any{f.VenueID}
	if f.DayOfWeek != nil {
		query += ` AND day_of_week = ?`
		args = append(args, *f.DayOfWeek)
	}
	if f.HourOfDay != nil {
		query += ` AND hour_of_day = ?`
		args = append(args, *f.HourOfDay)
	}
	query += ` ORDER BY measured_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list baseline samples %s", f.VenueID)
	}
	return collectSamples(rows)
}

func (s *SQLiteStore) SampleCounts(ctx context.Context) (*SampleCounts, error) {
	var c SampleCounts
	err := s.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN is_baseline = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN linked_event IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_baseline = 0 AND linked_event IS NULL THEN 1 ELSE 0 END), 0)
		 FROM traffic_samples`,
	).Scan(&c.Baseline, &c.Event, &c.Orphan)
	return &c, eris.Wrap(err, "sqlite: sample counts")
}

// Quota

func (s *SQLiteStore) QuotaUsage(ctx context.Context, day string) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx,
		`SELECT used FROM quota_usage WHERE day = ?`, day,
	).Scan(&used)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return used, eris.Wrapf(err, "sqlite: quota usage %s", day)
}

func (s *SQLiteStore) AddQuotaUsage(ctx context.Context, day string, n int) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO quota_usage (day, used) VALUES (?, ?)
		 ON CONFLICT(day) DO UPDATE SET used = used + excluded.used
		 RETURNING used`,
		day, n,
	).Scan(&used)
	return used, eris.Wrapf(err, "sqlite: add quota usage %s", day)
}

// helpers

const sampleSelect = `SELECT
	id, venue_id, measured_at, speed_mph, typical_speed_mph,
	travel_time_secs, typical_time_secs, delay_minutes, traffic_level,
	distance_miles, confidence, data_source, linked_event, is_baseline,
	baseline_group, day_of_week, hour_of_day
FROM traffic_samples`

type scannable interface {
	Scan(dest ...any) error
}

func scanEvent(row scannable) (*model.EventOccurrence, error) {
	var e model.EventOccurrence
	var start sql.NullTime
	if err := row.Scan(&e.ID, &e.VenueID, &e.Name, &e.Category, &start); err != nil {
		return nil, err
	}
	if start.Valid {
		t := start.Time.UTC()
		e.Start = &t
	}
	return &e, nil
}

func scanSample(row scannable) (*model.TrafficSample, error) {
	var sm model.TrafficSample
	var speed, typicalSpeed sql.NullFloat64
	var linkedEvent, baselineGroup sql.NullString
	var level string

	err := row.Scan(
		&sm.ID, &sm.VenueID, &sm.MeasuredAt, &speed, &typicalSpeed,
		&sm.TravelTimeSecs, &sm.TypicalTimeSecs, &sm.DelayMinutes, &level,
		&sm.DistanceMiles, &sm.Confidence, &sm.DataSource, &linkedEvent, &sm.IsBaseline,
		&baselineGroup, &sm.DayOfWeek, &sm.HourOfDay,
	)
	if err != nil {
		return nil, err
	}

	sm.MeasuredAt = sm.MeasuredAt.UTC()
	sm.Level = model.TrafficLevel(level)
	if speed.Valid {
		sm.SpeedMPH = &speed.Float64
	}
	if typicalSpeed.Valid {
		sm.TypicalSpeedMPH = &typicalSpeed.Float64
	}
	if linkedEvent.Valid {
		sm.LinkedEvent = &linkedEvent.String
	}
	if baselineGroup.Valid {
		sm.BaselineGroup = &baselineGroup.String
	}
	return &sm, nil
}

func collectSamples(rows *sql.Rows) ([]model.TrafficSample, error) {
	defer rows.Close()
	var samples []model.TrafficSample
	for rows.Next() {
		sm, err := scanSample(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sample")
		}
		samples = append(samples, *sm)
	}
	return samples, eris.Wrap(rows.Err(), "sqlite: iterate samples")
}
