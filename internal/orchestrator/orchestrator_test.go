package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sentryscan/sentryscan/internal/breaker"
	"github.com/sentryscan/sentryscan/internal/cache"
	"github.com/sentryscan/sentryscan/internal/calendar"
	"github.com/sentryscan/sentryscan/internal/config"
	"github.com/sentryscan/sentryscan/internal/detectors"
	"github.com/sentryscan/sentryscan/internal/domain"
	"github.com/sentryscan/sentryscan/internal/explain"
	"github.com/sentryscan/sentryscan/internal/provider"
	"github.com/sentryscan/sentryscan/internal/risk"
	"github.com/sentryscan/sentryscan/internal/scoring"
	"github.com/sentryscan/sentryscan/internal/store"
	"github.com/sentryscan/sentryscan/internal/throttle"
)

func buildOrchestrator(t *testing.T) (*Orchestrator, *store.Store) {
	t.Helper()
	log := zerolog.Nop()

	cal, err := calendar.New("../../configs/holidays_us.yaml")
	require.NoError(t, err)

	c := cache.New(16<<20, log)
	reg := breaker.NewRegistry(5, 30*time.Second, log)
	p := provider.NewDemoProvider(cal, c, reg, log)

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := &config.Config{
		RiskFreeRate: 0.05,
		Scheduler:    config.SchedulerConfig{Fanout: 4},
		Scoring: config.ScoringConfig{
			CooldownHours: 24, MaxAlertsPerDay: 5,
			MinOptionVolume: 50, MaxSpreadPct: 3, EarningsPenaltyDays: 3,
		},
		Risk:          config.RiskConfig{MaxConcentrationPct: 5, MaxMarginUsagePct: 50, MinCashBufferPct: 50},
		HistoricalDir: t.TempDir(),
	}
	cfg.ConfigHash = "test-hash"

	account := domain.AccountState{CashAvailable: 1_000_000, MarginAvailable: 1_000_000}

	o := New(
		cfg, s, p,
		detectors.NewPopulatedRegistry(log),
		scoring.New(log),
		risk.New(log),
		throttle.New(s, log),
		explain.New(log),
		account,
		log,
	)
	return o, s
}

func TestRunScanCompletesAndRecordsCounts(t *testing.T) {
	o, s := buildOrchestrator(t)
	ctx := context.Background()

	scanID, err := o.RunScan(ctx, []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	require.NotZero(t, scanID)

	scan, err := s.Scans.Get(scanID)
	require.NoError(t, err)
	require.Equal(t, 2, scan.TickersScanned)
	require.Contains(t, []domain.ScanStatus{domain.ScanCompleted, domain.ScanPartial}, scan.Status)
	require.GreaterOrEqual(t, scan.AlertsGenerated, 0)
}

func TestRunScanPersistsFeaturesForEveryTicker(t *testing.T) {
	o, s := buildOrchestrator(t)
	ctx := context.Background()

	_, err := o.RunScan(ctx, []string{"AAPL"})
	require.NoError(t, err)

	_, ok, err := s.Features.Latest("AAPL")
	require.NoError(t, err)
	require.True(t, ok, "expected a feature snapshot persisted for AAPL")
}

func TestRunScanArchivesChainSnapshotsToHistoricalDir(t *testing.T) {
	o, s := buildOrchestrator(t)
	ctx := context.Background()

	scanID, err := o.RunScan(ctx, []string{"AAPL"})
	require.NoError(t, err)

	snapshots, err := s.Chains.ForScan(scanID)
	require.NoError(t, err)
	require.NotEmpty(t, snapshots, "expected at least one chain snapshot for AAPL")

	for _, cs := range snapshots {
		require.NotEmpty(t, cs.FilePath)
		_, err := os.Stat(cs.FilePath)
		require.NoError(t, err, "expected chain archive file to exist at %s", cs.FilePath)
	}
}
