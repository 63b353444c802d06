package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CooldownRepository owns the cooldowns table, keyed by ticker.
type CooldownRepository struct {
	base
}

// IsInCooldown reports whether ticker alerted within cooldownHours of now,
// and if so, how much of the cooldown window remains.
func (r *CooldownRepository) IsInCooldown(ticker string, cooldownHours int, now time.Time) (bool, time.Duration, error) {
	var lastAlertTS string
	err := r.db.QueryRow(`SELECT last_alert_ts FROM cooldowns WHERE ticker = ?`, ticker).Scan(&lastAlertTS)
	if errors.Is(err, sql.ErrNoRows) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("query cooldown for %s: %w", ticker, err)
	}

	last, err := time.Parse(time.RFC3339, lastAlertTS)
	if err != nil {
		return false, 0, fmt.Errorf("parse last_alert_ts for %s: %w", ticker, err)
	}

	elapsed := now.Sub(last)
	window := time.Duration(cooldownHours) * time.Hour
	if elapsed < window {
		return true, window - elapsed, nil
	}
	return false, 0, nil
}

// Record upserts ticker's most recent alert time and score, resetting its
// cooldown window.
func (r *CooldownRepository) Record(ticker string, alertTS time.Time, score float64) error {
	_, err := r.db.Exec(
		`INSERT INTO cooldowns (ticker, last_alert_ts, last_score) VALUES (?, ?, ?)
		 ON CONFLICT (ticker) DO UPDATE SET last_alert_ts = excluded.last_alert_ts, last_score = excluded.last_score`,
		ticker, alertTS.UTC().Format(time.RFC3339), score,
	)
	if err != nil {
		return fmt.Errorf("record cooldown for %s: %w", ticker, err)
	}
	return nil
}
