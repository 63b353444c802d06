package store

import (
	"fmt"
	"time"

	"github.com/sentryscan/sentryscan/internal/domain"
)

// ScanRepository owns the scans table: one row per orchestrator pass.
type ScanRepository struct {
	base
}

// Create inserts a pending scan row and returns its generated id.
func (r *ScanRepository) Create(scanTS time.Time, configHash string) (int64, error) {
	res, err := r.db.Exec(
		`INSERT INTO scans (scan_ts, config_hash, status) VALUES (?, ?, ?)`,
		scanTS.UTC().Format(time.RFC3339), configHash, string(domain.ScanPending),
	)
	if err != nil {
		return 0, fmt.Errorf("insert scan: %w", err)
	}
	return res.LastInsertId()
}

// Finish records the terminal status, totals, and runtime for a scan.
func (r *ScanRepository) Finish(scanID int64, status domain.ScanStatus, tickersScanned, alertsGenerated int, runtimeSeconds float64, errMsg string) error {
	_, err := r.db.Exec(
		`UPDATE scans SET status = ?, tickers_scanned = ?, alerts_generated = ?, runtime_seconds = ?, error_message = ? WHERE id = ?`,
		string(status), tickersScanned, alertsGenerated, runtimeSeconds, errMsg, scanID,
	)
	if err != nil {
		return fmt.Errorf("finish scan %d: %w", scanID, err)
	}
	return nil
}

// SetStatus transitions a scan's status without touching its totals, used
// when the orchestrator marks a scan RUNNING.
func (r *ScanRepository) SetStatus(scanID int64, status domain.ScanStatus) error {
	_, err := r.db.Exec(`UPDATE scans SET status = ? WHERE id = ?`, string(status), scanID)
	if err != nil {
		return fmt.Errorf("set scan %d status: %w", scanID, err)
	}
	return nil
}

// Get loads one scan by id.
func (r *ScanRepository) Get(scanID int64) (domain.Scan, error) {
	var sc domain.Scan
	var ts string
	err := r.db.QueryRow(
		`SELECT id, scan_ts, config_hash, status, tickers_scanned, alerts_generated, runtime_seconds, error_message FROM scans WHERE id = ?`,
		scanID,
	).Scan(&sc.ID, &ts, &sc.ConfigHash, &sc.Status, &sc.TickersScanned, &sc.AlertsGenerated, &sc.RuntimeSeconds, &sc.ErrorMessage)
	if err != nil {
		return domain.Scan{}, fmt.Errorf("get scan %d: %w", scanID, err)
	}
	sc.ScanTS, err = time.Parse(time.RFC3339, ts)
	if err != nil {
		return domain.Scan{}, fmt.Errorf("parse scan_ts for scan %d: %w", scanID, err)
	}
	return sc, nil
}

// Recent returns the most recent scans, newest first, bounded by limit.
func (r *ScanRepository) Recent(limit int) ([]domain.Scan, error) {
	rows, err := r.db.Query(
		`SELECT id, scan_ts, config_hash, status, tickers_scanned, alerts_generated, runtime_seconds, error_message
		 FROM scans ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list recent scans: %w", err)
	}
	defer rows.Close()

	var out []domain.Scan
	for rows.Next() {
		var sc domain.Scan
		var ts string
		if err := rows.Scan(&sc.ID, &ts, &sc.ConfigHash, &sc.Status, &sc.TickersScanned, &sc.AlertsGenerated, &sc.RuntimeSeconds, &sc.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		sc.ScanTS, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("parse scan_ts: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
