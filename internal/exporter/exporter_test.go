package exporter

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sentryscan/sentryscan/internal/domain"
	"github.com/sentryscan/sentryscan/internal/store"
)

func testExporter(t *testing.T) (*Exporter, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e, err := New(t.TempDir(), s, zerolog.Nop())
	require.NoError(t, err)
	return e, s
}

func seedScanWithAlert(t *testing.T, s *store.Store, now time.Time) int64 {
	t.Helper()
	scanID, err := s.Scans.Create(now, "hash")
	require.NoError(t, err)
	require.NoError(t, s.Scans.Finish(scanID, domain.ScanCompleted, 1, 1, 1.5, ""))
	require.NoError(t, s.Alerts.BatchInsert(scanID, []domain.Alert{{
		Ticker: "AAPL", DetectorName: "LowIV", Score: 90, AdjustedScore: 85,
		Metrics: map[string]any{"iv_percentile": 5.0}, Confidence: domain.ConfidenceHigh,
		Strategies: []string{"Long Straddle"}, CreatedAt: now,
	}}))
	return scanID
}

func TestExportAlertsWritesAtomicFileAndArchiveCopy(t *testing.T) {
	e, s := testExporter(t)
	now := time.Now().UTC()
	seedScanWithAlert(t, s, now)

	require.NoError(t, e.ExportAlerts(now))

	data, err := os.ReadFile(filepath.Join(e.dir, "alerts.json"))
	require.NoError(t, err)
	var parsed alertsExport
	require.NoError(t, json.Unmarshal(data, &parsed))
	require.Equal(t, 1, parsed.AlertCount)
	require.Equal(t, "AAPL", parsed.Alerts[0].Ticker)

	entries, err := os.ReadDir(e.archiveDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestExportScansWritesRecentRows(t *testing.T) {
	e, s := testExporter(t)
	now := time.Now().UTC()
	seedScanWithAlert(t, s, now)

	require.NoError(t, e.ExportScans(now))

	data, err := os.ReadFile(filepath.Join(e.dir, "scans.json"))
	require.NoError(t, err)
	var parsed scansExport
	require.NoError(t, json.Unmarshal(data, &parsed))
	require.Equal(t, 1, parsed.ScanCount)
}

func TestExportFeaturesRoundTripsPersistedPayload(t *testing.T) {
	e, s := testExporter(t)
	now := time.Now().UTC()
	scanID := seedScanWithAlert(t, s, now)

	rsi := 42.0
	fs := domain.FeatureSet{Ticker: "AAPL", Timestamp: now}
	fs.Technicals.RSI14 = &rsi
	require.NoError(t, s.Features.Insert(scanID, fs))

	require.NoError(t, e.ExportFeatures(now))

	data, err := os.ReadFile(filepath.Join(e.dir, "features.json"))
	require.NoError(t, err)
	var parsed featuresExport
	require.NoError(t, json.Unmarshal(data, &parsed))
	require.Equal(t, 1, parsed.FeatureCount)
	require.Equal(t, "AAPL", parsed.Features[0].Ticker)
	require.NotNil(t, parsed.Features[0].Features.Technicals.RSI14)
	require.InDelta(t, rsi, *parsed.Features[0].Features.Technicals.RSI14, 1e-9)
}

func TestExportAllContinuesPastEmptyStoreWithoutError(t *testing.T) {
	e, _ := testExporter(t)
	res := e.ExportAll(time.Now().UTC())
	require.True(t, res.Success)
	require.Empty(t, res.Errors)
	require.True(t, res.Exports["alerts"])
	require.True(t, res.Exports["chains"])
	require.True(t, res.Exports["scans"])
	require.True(t, res.Exports["features"])
}

func TestExportChainsDecodesChainJSONPayload(t *testing.T) {
	e, s := testExporter(t)
	now := time.Now().UTC()
	scanID, err := s.Scans.Create(now, "hash")
	require.NoError(t, err)

	chain := domain.OptionsChain{
		Ticker: "AAPL", Expiration: now.AddDate(0, 0, 30),
		Calls: []domain.OptionContract{{Strike: 150, Type: domain.Call, Bid: 1, Ask: 1.1, Volume: 10, OpenInterest: 20, ImpliedVol: 0.3}},
		Puts:  []domain.OptionContract{{Strike: 150, Type: domain.Put, Bid: 1, Ask: 1.1, Volume: 5, OpenInterest: 8, ImpliedVol: 0.32}},
	}
	chainJSON, err := json.Marshal(chain)
	require.NoError(t, err)

	require.NoError(t, s.Chains.Upsert(domain.ChainSnapshot{
		ScanID: scanID, Ticker: "AAPL", SnapshotDate: now, Expiration: chain.Expiration,
		DTE: 30, UnderlyingPrice: 152, ChainJSON: string(chainJSON), NumCalls: 1, NumPuts: 1,
	}))

	require.NoError(t, e.ExportChains(now))

	data, err := os.ReadFile(filepath.Join(e.dir, "chains.json"))
	require.NoError(t, err)
	var parsed chainsExport
	require.NoError(t, json.Unmarshal(data, &parsed))
	require.Equal(t, 1, parsed.ChainCount)
	require.Len(t, parsed.Chains[0].Calls, 1)
	require.Equal(t, 150.0, parsed.Chains[0].Calls[0].Strike)
}
