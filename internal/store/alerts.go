package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sentryscan/sentryscan/internal/domain"
)

// AlertRepository owns the alerts table.
type AlertRepository struct {
	base
}

// BatchInsert inserts every alert for a scan inside a single transaction:
// either all rows land or none do, matching spec's all-or-partial
// semantics for a scan's alert set.
func (r *AlertRepository) BatchInsert(scanID int64, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin alert batch for scan %d: %w", scanID, err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO alerts (scan_id, ticker, detector_name, score, adjusted_score, metrics_json, explanation_json, strategies_json, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare alert insert for scan %d: %w", scanID, err)
	}
	defer stmt.Close()

	for _, a := range alerts {
		metrics, err := json.Marshal(a.Metrics)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal metrics for %s/%s: %w", a.Ticker, a.DetectorName, err)
		}
		explanation, err := json.Marshal(a.Explanation)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal explanation for %s/%s: %w", a.Ticker, a.DetectorName, err)
		}
		strategies, err := json.Marshal(a.Strategies)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal strategies for %s/%s: %w", a.Ticker, a.DetectorName, err)
		}

		if _, err := stmt.Exec(scanID, a.Ticker, a.DetectorName, a.Score, a.AdjustedScore,
			string(metrics), string(explanation), string(strategies), string(a.Confidence),
			a.CreatedAt.UTC().Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert alert %s/%s: %w", a.Ticker, a.DetectorName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit alert batch for scan %d: %w", scanID, err)
	}
	return nil
}

// ForTicker returns a ticker's alerts, newest first, bounded by limit.
func (r *AlertRepository) ForTicker(ticker string, limit int) ([]domain.Alert, error) {
	rows, err := r.db.Query(
		`SELECT id, scan_id, ticker, detector_name, score, adjusted_score, metrics_json, explanation_json, strategies_json, confidence, created_at
		 FROM alerts WHERE ticker = ? ORDER BY created_at DESC LIMIT ?`, ticker, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query alerts for %s: %w", ticker, err)
	}
	defer rows.Close()
	return scanAlertRows(rows)
}

// Recent returns the most recently created alerts across all tickers.
func (r *AlertRepository) Recent(limit int) ([]domain.Alert, error) {
	rows, err := r.db.Query(
		`SELECT id, scan_id, ticker, detector_name, score, adjusted_score, metrics_json, explanation_json, strategies_json, confidence, created_at
		 FROM alerts ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent alerts: %w", err)
	}
	defer rows.Close()
	return scanAlertRows(rows)
}

func scanAlertRows(rows *sql.Rows) ([]domain.Alert, error) {
	var out []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var metrics, explanation, strategies, createdAt string
		if err := rows.Scan(&a.ID, &a.ScanID, &a.Ticker, &a.DetectorName, &a.Score, &a.AdjustedScore,
			&metrics, &explanation, &strategies, &a.Confidence, &createdAt); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		if err := json.Unmarshal([]byte(metrics), &a.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal metrics for alert %d: %w", a.ID, err)
		}
		if err := json.Unmarshal([]byte(explanation), &a.Explanation); err != nil {
			return nil, fmt.Errorf("unmarshal explanation for alert %d: %w", a.ID, err)
		}
		if err := json.Unmarshal([]byte(strategies), &a.Strategies); err != nil {
			return nil, fmt.Errorf("unmarshal strategies for alert %d: %w", a.ID, err)
		}
		ts, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at for alert %d: %w", a.ID, err)
		}
		a.CreatedAt = ts
		out = append(out, a)
	}
	return out, rows.Err()
}
