package store

import (
	"fmt"
	"time"

	"github.com/sentryscan/sentryscan/internal/domain"
)

// ChainRepository owns the chain_snapshots table, keyed unique by
// (ticker, snapshot_date, expiration).
type ChainRepository struct {
	base
}

// Upsert stores a chain snapshot, replacing any existing row for the same
// (ticker, snapshot_date, expiration) key — the orchestrator dedupes within
// a scan, but a retried scan for the same day should still converge.
func (r *ChainRepository) Upsert(cs domain.ChainSnapshot) error {
	_, err := r.db.Exec(
		`INSERT INTO chain_snapshots
			(scan_id, ticker, snapshot_date, expiration, dte, underlying_price, chain_json, num_calls, num_puts, atm_iv, total_volume, total_oi, file_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (ticker, snapshot_date, expiration) DO UPDATE SET
			scan_id = excluded.scan_id,
			dte = excluded.dte,
			underlying_price = excluded.underlying_price,
			chain_json = excluded.chain_json,
			num_calls = excluded.num_calls,
			num_puts = excluded.num_puts,
			atm_iv = excluded.atm_iv,
			total_volume = excluded.total_volume,
			total_oi = excluded.total_oi,
			file_path = excluded.file_path`,
		cs.ScanID, cs.Ticker, cs.SnapshotDate.UTC().Format("2006-01-02"), cs.Expiration.UTC().Format(time.RFC3339),
		cs.DTE, cs.UnderlyingPrice, cs.ChainJSON, cs.NumCalls, cs.NumPuts, cs.ATMIV, cs.TotalVolume, cs.TotalOI, cs.FilePath,
	)
	if err != nil {
		return fmt.Errorf("upsert chain snapshot %s/%s: %w", cs.Ticker, cs.Expiration, err)
	}
	return nil
}

// Recent returns the most recently upserted chain snapshots across all
// tickers, newest first, bounded by limit. There is no created_at column on
// this table, so recency is approximated by rowid order.
func (r *ChainRepository) Recent(limit int) ([]domain.ChainSnapshot, error) {
	rows, err := r.db.Query(
		`SELECT scan_id, ticker, snapshot_date, expiration, dte, underlying_price, chain_json, num_calls, num_puts, atm_iv, total_volume, total_oi, file_path
		 FROM chain_snapshots ORDER BY rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent chain snapshots: %w", err)
	}
	defer rows.Close()

	var out []domain.ChainSnapshot
	for rows.Next() {
		var cs domain.ChainSnapshot
		var snapDate, exp string
		if err := rows.Scan(&cs.ScanID, &cs.Ticker, &snapDate, &exp, &cs.DTE, &cs.UnderlyingPrice, &cs.ChainJSON,
			&cs.NumCalls, &cs.NumPuts, &cs.ATMIV, &cs.TotalVolume, &cs.TotalOI, &cs.FilePath); err != nil {
			return nil, fmt.Errorf("scan chain snapshot row: %w", err)
		}
		cs.SnapshotDate, err = time.Parse("2006-01-02", snapDate)
		if err != nil {
			return nil, fmt.Errorf("parse snapshot_date: %w", err)
		}
		cs.Expiration, err = time.Parse(time.RFC3339, exp)
		if err != nil {
			return nil, fmt.Errorf("parse expiration: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

// ForScan returns every chain snapshot recorded for a scan.
func (r *ChainRepository) ForScan(scanID int64) ([]domain.ChainSnapshot, error) {
	rows, err := r.db.Query(
		`SELECT scan_id, ticker, snapshot_date, expiration, dte, underlying_price, chain_json, num_calls, num_puts, atm_iv, total_volume, total_oi, file_path
		 FROM chain_snapshots WHERE scan_id = ?`, scanID,
	)
	if err != nil {
		return nil, fmt.Errorf("query chain snapshots for scan %d: %w", scanID, err)
	}
	defer rows.Close()

	var out []domain.ChainSnapshot
	for rows.Next() {
		var cs domain.ChainSnapshot
		var snapDate, exp string
		if err := rows.Scan(&cs.ScanID, &cs.Ticker, &snapDate, &exp, &cs.DTE, &cs.UnderlyingPrice, &cs.ChainJSON,
			&cs.NumCalls, &cs.NumPuts, &cs.ATMIV, &cs.TotalVolume, &cs.TotalOI, &cs.FilePath); err != nil {
			return nil, fmt.Errorf("scan chain snapshot row: %w", err)
		}
		cs.SnapshotDate, err = time.Parse("2006-01-02", snapDate)
		if err != nil {
			return nil, fmt.Errorf("parse snapshot_date: %w", err)
		}
		cs.Expiration, err = time.Parse(time.RFC3339, exp)
		if err != nil {
			return nil, fmt.Errorf("parse expiration: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}
