package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DailyCountRepository owns the daily_alert_counts table, keyed by
// calendar date, used to cap total alerts emitted per day.
type DailyCountRepository struct {
	base
}

// Increment atomically bumps the count for date's calendar day and returns
// the new total.
func (r *DailyCountRepository) Increment(date time.Time) (int, error) {
	key := date.UTC().Format("2006-01-02")
	_, err := r.db.Exec(
		`INSERT INTO daily_alert_counts (count_date, alert_count) VALUES (?, 1)
		 ON CONFLICT (count_date) DO UPDATE SET alert_count = alert_count + 1`,
		key,
	)
	if err != nil {
		return 0, fmt.Errorf("increment daily count for %s: %w", key, err)
	}
	return r.Get(date)
}

// Get returns the current count for date's calendar day, 0 if no row exists.
func (r *DailyCountRepository) Get(date time.Time) (int, error) {
	key := date.UTC().Format("2006-01-02")
	var count int
	err := r.db.QueryRow(`SELECT alert_count FROM daily_alert_counts WHERE count_date = ?`, key).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get daily count for %s: %w", key, err)
	}
	return count, nil
}
