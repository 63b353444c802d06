// Package store is sentryscan's single analytical SQLite store: scans,
// feature sets, alerts, chain snapshots, cooldowns, and daily alert counts.
// It follows trader-go's internal/database/db.go for connection setup (WAL
// mode over modernc.org/sqlite, pooled *sql.DB) and
// internal/database/repositories/base.go's BaseRepository-embedding shape
// for one repository type per table, but replaces the teacher's stubbed
// Migrate with real idempotent, ordered migrations, since spec requires a
// tracked schema_version table.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// Store wraps the shared *sql.DB connection pool every repository reads
// and writes through. Callers should hold one Store per process; each
// concurrent scan worker gets its own logical connection via the pool
// rather than sharing a single *sql.Conn.
type Store struct {
	db  *sql.DB
	log zerolog.Logger

	Scans     *ScanRepository
	Features  *FeatureRepository
	Alerts    *AlertRepository
	Chains    *ChainRepository
	Cooldowns *CooldownRepository
	Counts    *DailyCountRepository
	IVHistory *IVHistoryRepository
	Scheduler *SchedulerStateRepository
}

// Open creates (or reuses) the SQLite database at path, runs migrations,
// and wires every repository against the resulting pool.
func Open(path string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	s := &Store{db: db, log: log.With().Str("component", "store").Logger()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	s.Scans = &ScanRepository{base: newBase(db, log)}
	s.Features = &FeatureRepository{base: newBase(db, log)}
	s.Alerts = &AlertRepository{base: newBase(db, log)}
	s.Chains = &ChainRepository{base: newBase(db, log)}
	s.Cooldowns = &CooldownRepository{base: newBase(db, log)}
	s.Counts = &DailyCountRepository{base: newBase(db, log)}
	s.IVHistory = &IVHistoryRepository{base: newBase(db, log)}
	s.Scheduler = &SchedulerStateRepository{base: newBase(db, log)}

	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw pool for callers that need a transaction spanning
// more than one repository. No package in this module calls it.
func (s *Store) DB() *sql.DB {
	return s.db
}

// base is the BaseRepository analogue: every repository embeds one.
type base struct {
	db  *sql.DB
	log zerolog.Logger
}

func newBase(db *sql.DB, log zerolog.Logger) base {
	return base{db: db, log: log}
}
