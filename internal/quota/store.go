package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS usage_daily (
	caller_id TEXT NOT NULL,
	day       INTEGER NOT NULL,
	feature   TEXT NOT NULL,
	count     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (caller_id, day, feature)
);
`

// Store is a SQLite-backed Gate keyed by caller, UTC day and feature.
type Store struct {
	db     *sql.DB
	limits map[string]int
	now    func() time.Time
}

// StoreOption customises store construction.
type StoreOption func(*Store)

// WithStoreClock injects the clock used for day bucketing.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// OpenStore opens (creating if needed) the usage database at path. limits
// overrides DefaultFreeLimits per feature; features absent from the merged
// map are unmetered.
func OpenStore(path string, limits map[string]int, opts ...StoreOption) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open usage db: %w", err)
	}
	// A single connection sidesteps SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure usage db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create usage schema: %w", err)
	}

	merged := make(map[string]int, len(DefaultFreeLimits))
	for feature, limit := range DefaultFreeLimits {
		merged[feature] = limit
	}
	for feature, limit := range limits {
		merged[feature] = limit
	}

	s := &Store{db: db, limits: merged, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// day buckets time into UTC day numbers so the allowance resets at
// midnight UTC regardless of server timezone.
func (s *Store) day() int64 {
	return s.now().UTC().Unix() / 86400
}

// BeforeRequest denies the caller once today's count reaches the feature
// limit. Unmetered features and empty callers are always allowed.
func (s *Store) BeforeRequest(ctx context.Context, callerID, feature string) error {
	if callerID == "" {
		return nil
	}
	limit, metered := s.limits[feature]
	if !metered {
		return nil
	}

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM usage_daily WHERE caller_id = ? AND day = ? AND feature = ?`,
		callerID, s.day(), feature,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read usage: %w", err)
	}
	if count >= limit {
		return &ExceededError{Feature: feature, Limit: limit}
	}
	return nil
}

// AfterSuccess increments today's count for the caller and feature.
func (s *Store) AfterSuccess(ctx context.Context, callerID, feature string) error {
	if callerID == "" {
		return nil
	}
	if _, metered := s.limits[feature]; !metered {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_daily (caller_id, day, feature, count) VALUES (?, ?, ?, 1)
		 ON CONFLICT (caller_id, day, feature) DO UPDATE SET count = count + 1`,
		callerID, s.day(), feature,
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// Count returns today's recorded count, zero when absent.
func (s *Store) Count(ctx context.Context, callerID, feature string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM usage_daily WHERE caller_id = ? AND day = ? AND feature = ?`,
		callerID, s.day(), feature,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}
