package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sentryscan/sentryscan/internal/domain"
)

// FeatureRepository owns the feature_sets table. FeatureSets are built once
// per ticker per scan and never mutated afterward, so there is no update
// path — only insert and lookup.
type FeatureRepository struct {
	base
}

// Insert persists one ticker's FeatureSet for a scan as an opaque JSON
// payload; the feature groups change shape more often than the schema
// should have to migrate for.
func (r *FeatureRepository) Insert(scanID int64, fs domain.FeatureSet) error {
	payload, err := json.Marshal(fs)
	if err != nil {
		return fmt.Errorf("marshal feature set for %s: %w", fs.Ticker, err)
	}
	_, err = r.db.Exec(
		`INSERT INTO feature_sets (scan_id, ticker, ts, payload_json) VALUES (?, ?, ?, ?)`,
		scanID, fs.Ticker, fs.Timestamp.UTC().Format(time.RFC3339), string(payload),
	)
	if err != nil {
		return fmt.Errorf("insert feature set for %s: %w", fs.Ticker, err)
	}
	return nil
}

// FeatureRow is one persisted feature snapshot alongside its scan linkage,
// used by the exporter which needs scan_id and created_at that a bare
// domain.FeatureSet does not carry.
type FeatureRow struct {
	ScanID    int64
	Ticker    string
	CreatedAt time.Time
	Features  domain.FeatureSet
}

// Recent returns the most recently inserted feature snapshots across all
// tickers, newest first, bounded by limit.
func (r *FeatureRepository) Recent(limit int) ([]FeatureRow, error) {
	rows, err := r.db.Query(
		`SELECT scan_id, ticker, ts, payload_json FROM feature_sets ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent feature sets: %w", err)
	}
	defer rows.Close()

	var out []FeatureRow
	for rows.Next() {
		var fr FeatureRow
		var ts, payload string
		if err := rows.Scan(&fr.ScanID, &fr.Ticker, &ts, &payload); err != nil {
			return nil, fmt.Errorf("scan feature set row: %w", err)
		}
		fr.CreatedAt, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("parse ts: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &fr.Features); err != nil {
			return nil, fmt.Errorf("unmarshal feature set: %w", err)
		}
		out = append(out, fr)
	}
	return out, rows.Err()
}

// Latest returns the most recently stored FeatureSet for ticker, if any.
func (r *FeatureRepository) Latest(ticker string) (domain.FeatureSet, bool, error) {
	var payload string
	err := r.db.QueryRow(
		`SELECT payload_json FROM feature_sets WHERE ticker = ? ORDER BY id DESC LIMIT 1`, ticker,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.FeatureSet{}, false, nil
		}
		return domain.FeatureSet{}, false, fmt.Errorf("query latest feature set for %s: %w", ticker, err)
	}
	var fs domain.FeatureSet
	if err := json.Unmarshal([]byte(payload), &fs); err != nil {
		return domain.FeatureSet{}, false, fmt.Errorf("unmarshal feature set for %s: %w", ticker, err)
	}
	return fs, true, nil
}
