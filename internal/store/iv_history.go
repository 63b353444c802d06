package store

import (
	"fmt"
	"time"
)

// IVHistoryRepository owns the iv_history table: one row per ticker per
// calendar day of ATM IV observations. The original implementation's
// IVHistoryRepository (functions/db/repositories.py) is a full stub — every
// method is `pass` — so this is a from-scratch implementation of the
// contract its docstrings describe, not a translation.
type IVHistoryRepository struct {
	base
}

// Save upserts one day's IV/HV observation for ticker.
func (r *IVHistoryRepository) Save(ticker string, ivDate time.Time, atmIVFront, atmIVBack, hv20, hv60 float64) error {
	key := ivDate.UTC().Format("2006-01-02")
	_, err := r.db.Exec(
		`INSERT INTO iv_history (ticker, iv_date, atm_iv_front, atm_iv_back, hv_20, hv_60) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (ticker, iv_date) DO UPDATE SET
			atm_iv_front = excluded.atm_iv_front,
			atm_iv_back = excluded.atm_iv_back,
			hv_20 = excluded.hv_20,
			hv_60 = excluded.hv_60`,
		ticker, key, atmIVFront, atmIVBack, hv20, hv60,
	)
	if err != nil {
		return fmt.Errorf("save iv history for %s/%s: %w", ticker, key, err)
	}
	return nil
}

// Trailing returns ticker's front-month ATM IV observations dated within the
// lookbackDays calendar days before asOf (asOf's own date excluded),
// ascending by date — the input features.Compute expects for its
// percentile/rank window.
func (r *IVHistoryRepository) Trailing(ticker string, asOf time.Time, lookbackDays int) ([]float64, error) {
	cutoff := asOf.UTC().AddDate(0, 0, -lookbackDays).Format("2006-01-02")
	asOfKey := asOf.UTC().Format("2006-01-02")

	rows, err := r.db.Query(
		`SELECT atm_iv_front FROM iv_history WHERE ticker = ? AND iv_date >= ? AND iv_date < ? ORDER BY iv_date ASC`,
		ticker, cutoff, asOfKey,
	)
	if err != nil {
		return nil, fmt.Errorf("query iv history for %s: %w", ticker, err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var iv float64
		if err := rows.Scan(&iv); err != nil {
			return nil, fmt.Errorf("scan iv history row for %s: %w", ticker, err)
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}
