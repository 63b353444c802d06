package store

import "fmt"

// migration is one ordered, idempotent schema change. "Already exists"
// during CREATE TABLE must be tolerated, so every statement uses IF NOT
// EXISTS rather than relying on migrate() never re-running a step.
type migration struct {
	version int
	stmts   []string
}

var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER PRIMARY KEY,
				applied_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS scans (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				scan_ts TEXT NOT NULL,
				config_hash TEXT NOT NULL,
				status TEXT NOT NULL,
				tickers_scanned INTEGER NOT NULL DEFAULT 0,
				alerts_generated INTEGER NOT NULL DEFAULT 0,
				runtime_seconds REAL NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT ''
			)`,
			`CREATE TABLE IF NOT EXISTS feature_sets (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				scan_id INTEGER NOT NULL REFERENCES scans(id),
				ticker TEXT NOT NULL,
				ts TEXT NOT NULL,
				payload_json TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_feature_sets_ticker ON feature_sets(ticker, ts)`,
			`CREATE TABLE IF NOT EXISTS alerts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				scan_id INTEGER NOT NULL REFERENCES scans(id),
				ticker TEXT NOT NULL,
				detector_name TEXT NOT NULL,
				score REAL NOT NULL,
				adjusted_score REAL NOT NULL,
				metrics_json TEXT NOT NULL,
				explanation_json TEXT NOT NULL,
				strategies_json TEXT NOT NULL,
				confidence TEXT NOT NULL,
				created_at TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_alerts_ticker ON alerts(ticker, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_alerts_scan ON alerts(scan_id)`,
			`CREATE TABLE IF NOT EXISTS chain_snapshots (
				scan_id INTEGER NOT NULL REFERENCES scans(id),
				ticker TEXT NOT NULL,
				snapshot_date TEXT NOT NULL,
				expiration TEXT NOT NULL,
				dte INTEGER NOT NULL,
				underlying_price REAL NOT NULL,
				chain_json TEXT NOT NULL,
				num_calls INTEGER NOT NULL,
				num_puts INTEGER NOT NULL,
				atm_iv REAL,
				total_volume INTEGER NOT NULL,
				total_oi INTEGER NOT NULL,
				file_path TEXT NOT NULL DEFAULT '',
				PRIMARY KEY (ticker, snapshot_date, expiration)
			)`,
			`CREATE TABLE IF NOT EXISTS cooldowns (
				ticker TEXT PRIMARY KEY,
				last_alert_ts TEXT NOT NULL,
				last_score REAL NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS daily_alert_counts (
				count_date TEXT PRIMARY KEY,
				alert_count INTEGER NOT NULL DEFAULT 0
			)`,
		},
	},
	{
		version: 2,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS iv_history (
				ticker TEXT NOT NULL,
				iv_date TEXT NOT NULL,
				atm_iv_front REAL NOT NULL,
				atm_iv_back REAL,
				hv_20 REAL,
				hv_60 REAL,
				PRIMARY KEY (ticker, iv_date)
			)`,
		},
	},
	{
		version: 3,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS scheduler_state (
				id INTEGER PRIMARY KEY CHECK (id = 1),
				current_state TEXT NOT NULL,
				api_calls_this_hour INTEGER NOT NULL DEFAULT 0,
				api_calls_today INTEGER NOT NULL DEFAULT 0,
				hour_window_start TEXT NOT NULL,
				day_window_start TEXT NOT NULL,
				buffer_depth INTEGER NOT NULL DEFAULT 0,
				backoff_until TEXT NOT NULL,
				last_collection_at TEXT NOT NULL,
				backoff_epoch INTEGER NOT NULL DEFAULT 0
			)`,
		},
	},
}

// migrate applies every migration not yet recorded in schema_version, in
// ascending version order, each inside its own transaction.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("bootstrap schema_version: %w", err)
	}

	applied := map[int]bool{}
	rows, err := s.db.Query(`SELECT version FROM schema_version`)
	if err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scan schema_version row: %w", err)
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("apply migration %d: %w", m.version, err)
			}
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`, m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
		s.log.Info().Int("version", m.version).Msg("applied schema migration")
	}
	return nil
}
