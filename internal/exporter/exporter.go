// Package exporter periodically snapshots the store's recent alerts,
// chains, scans, and feature sets into JSON files an external reader can
// poll without touching the SQLite file directly. Grounded directly on the
// original Python's functions/export/json_exporter.py: one export* method
// per logical file, an atomic temp-file-then-rename write, a timestamped
// copy under archive/, and an export_all that aggregates per-file failures
// without letting one file's failure abort the others.
package exporter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/domain"
	"github.com/sentryscan/sentryscan/internal/errs"
	"github.com/sentryscan/sentryscan/internal/store"
)

const (
	defaultAlertLimit   = 10000
	defaultChainLimit   = 1000
	defaultScanLimit    = 500
	defaultFeatureLimit = 10000
)

// Exporter writes recent store rows to JSON files under dir, with
// timestamped copies under dir/archive.
type Exporter struct {
	dir        string
	archiveDir string
	store      *store.Store
	log        zerolog.Logger
}

// New builds an Exporter rooted at dir, creating dir and dir/archive if
// they do not already exist.
func New(dir string, s *store.Store, log zerolog.Logger) (*Exporter, error) {
	archiveDir := filepath.Join(dir, "archive")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directories: %w", err)
	}
	return &Exporter{
		dir: dir, archiveDir: archiveDir, store: s,
		log: log.With().Str("component", "exporter").Logger(),
	}, nil
}

// Result is the outcome of one export_all pass.
type Result struct {
	ExportTimestamp time.Time       `json:"export_timestamp"`
	Exports         map[string]bool `json:"exports"`
	Errors          []string        `json:"errors"`
	Success         bool            `json:"success"`
}

// ExportAll runs every logical export, recording but not propagating
// per-file failures.
func (e *Exporter) ExportAll(now time.Time) Result {
	res := Result{ExportTimestamp: now, Exports: map[string]bool{}, Success: true}

	type job struct {
		name string
		fn   func(time.Time) error
	}
	jobs := []job{
		{"alerts", e.ExportAlerts},
		{"chains", e.ExportChains},
		{"scans", e.ExportScans},
		{"features", e.ExportFeatures},
	}
	for _, j := range jobs {
		if err := j.fn(now); err != nil {
			res.Success = false
			res.Exports[j.name] = false
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", j.name, err))
			e.log.Error().Err(err).Str("export", j.name).Msg("export failed")
			continue
		}
		res.Exports[j.name] = true
	}
	return res
}

type alertsExport struct {
	ExportTimestamp time.Time      `json:"export_timestamp"`
	AlertCount      int            `json:"alert_count"`
	MinScore        float64        `json:"min_score"`
	Alerts          []alertRecord  `json:"alerts"`
}

type alertRecord struct {
	ID           int64             `json:"id"`
	ScanID       int64             `json:"scan_id"`
	Ticker       string            `json:"ticker"`
	DetectorName string            `json:"detector_name"`
	Score        float64           `json:"score"`
	AlertData    domain.Alert      `json:"alert_data"`
	CreatedAt    string            `json:"created_at"`
}

// ExportAlerts writes alerts.json from the most recently persisted alerts.
func (e *Exporter) ExportAlerts(now time.Time) error {
	alerts, err := e.store.Alerts.Recent(defaultAlertLimit)
	if err != nil {
		return fmt.Errorf("%w: query alerts: %v", errs.ExporterFailure, err)
	}

	records := make([]alertRecord, 0, len(alerts))
	for _, a := range alerts {
		records = append(records, alertRecord{
			ID: a.ID, ScanID: a.ScanID, Ticker: a.Ticker, DetectorName: a.DetectorName,
			Score: a.Score, AlertData: a, CreatedAt: isoUTC(a.CreatedAt),
		})
	}

	payload := alertsExport{ExportTimestamp: now, AlertCount: len(records), MinScore: 0, Alerts: records}
	return e.writeWithArchive("alerts.json", now, payload)
}

type chainsExport struct {
	ExportTimestamp time.Time     `json:"export_timestamp"`
	ChainCount      int           `json:"chain_count"`
	Chains          []chainRecord `json:"chains"`
}

type chainRecord struct {
	Ticker          string                  `json:"ticker"`
	Timestamp       string                  `json:"timestamp"`
	UnderlyingPrice float64                 `json:"underlying_price"`
	Expiration      string                  `json:"expiration"`
	Calls           []domain.OptionContract `json:"calls"`
	Puts            []domain.OptionContract `json:"puts"`
	CreatedAt       string                  `json:"created_at"`
}

// ExportChains writes chains.json from the most recently upserted chain
// snapshots, decoding each snapshot's opaque chain_json payload back into
// calls/puts for the export schema.
func (e *Exporter) ExportChains(now time.Time) error {
	snapshots, err := e.store.Chains.Recent(defaultChainLimit)
	if err != nil {
		return fmt.Errorf("%w: query chains: %v", errs.ExporterFailure, err)
	}

	records := make([]chainRecord, 0, len(snapshots))
	for _, cs := range snapshots {
		var chain domain.OptionsChain
		if cs.ChainJSON != "" {
			if err := json.Unmarshal([]byte(cs.ChainJSON), &chain); err != nil {
				e.log.Warn().Err(err).Str("ticker", cs.Ticker).Msg("skipping undecodable chain snapshot")
				continue
			}
		}
		records = append(records, chainRecord{
			Ticker: cs.Ticker, Timestamp: isoUTC(cs.SnapshotDate), UnderlyingPrice: cs.UnderlyingPrice,
			Expiration: isoUTC(cs.Expiration), Calls: chain.Calls, Puts: chain.Puts, CreatedAt: isoUTC(cs.SnapshotDate),
		})
	}

	payload := chainsExport{ExportTimestamp: now, ChainCount: len(records), Chains: records}
	return e.writeWithArchive("chains.json", now, payload)
}

type scansExport struct {
	ExportTimestamp time.Time     `json:"export_timestamp"`
	ScanCount       int           `json:"scan_count"`
	Days            int           `json:"days"`
	Scans           []domain.Scan `json:"scans"`
}

// ExportScans writes scans.json from the most recent scan rows.
func (e *Exporter) ExportScans(now time.Time) error {
	scans, err := e.store.Scans.Recent(defaultScanLimit)
	if err != nil {
		return fmt.Errorf("%w: query scans: %v", errs.ExporterFailure, err)
	}
	payload := scansExport{ExportTimestamp: now, ScanCount: len(scans), Days: 30, Scans: scans}
	return e.writeWithArchive("scans.json", now, payload)
}

type featuresExport struct {
	ExportTimestamp time.Time       `json:"export_timestamp"`
	FeatureCount    int             `json:"feature_count"`
	Features        []featureRecord `json:"features"`
}

type featureRecord struct {
	Ticker    string            `json:"ticker"`
	Features  domain.FeatureSet `json:"features"`
	CreatedAt string            `json:"created_at"`
	ScanID    int64             `json:"scan_id"`
}

// ExportFeatures writes features.json from the most recently persisted
// feature snapshots.
func (e *Exporter) ExportFeatures(now time.Time) error {
	rows, err := e.store.Features.Recent(defaultFeatureLimit)
	if err != nil {
		return fmt.Errorf("%w: query feature sets: %v", errs.ExporterFailure, err)
	}

	records := make([]featureRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, featureRecord{
			Ticker: r.Ticker, Features: r.Features, CreatedAt: isoUTC(r.CreatedAt), ScanID: r.ScanID,
		})
	}

	payload := featuresExport{ExportTimestamp: now, FeatureCount: len(records), Features: records}
	return e.writeWithArchive("features.json", now, payload)
}

// writeWithArchive atomically writes payload to dir/name, then drops a
// timestamped copy under archive/.
func (e *Exporter) writeWithArchive(name string, now time.Time, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", errs.ExporterFailure, name, err)
	}

	finalPath := filepath.Join(e.dir, name)
	if err := atomicWriteFile(e.dir, finalPath, data); err != nil {
		return fmt.Errorf("%w: write %s: %v", errs.ExporterFailure, name, err)
	}

	base := name[:len(name)-len(filepath.Ext(name))]
	archiveName := fmt.Sprintf("%s_%s.json", base, now.UTC().Format("20060102_150405"))
	archivePath := filepath.Join(e.archiveDir, archiveName)
	if err := os.WriteFile(archivePath, data, 0o644); err != nil {
		e.log.Warn().Err(err).Str("file", archiveName).Msg("failed to write archive copy, continuing")
	}
	return nil
}

// atomicWriteFile writes data to a temp file in dir, then renames it onto
// finalPath, so a reader never observes a partially written file.
func atomicWriteFile(dir, finalPath string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".export-*.json.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func isoUTC(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
