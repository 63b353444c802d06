package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentryscan/sentryscan/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "sentryscan.db")
	s, err := Open(dbPath, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sentryscan.db")
	s1, err := Open(dbPath, zerolog.Nop())
	require.NoError(t, err)
	s1.Close()

	s2, err := Open(dbPath, zerolog.Nop())
	require.NoError(t, err)
	defer s2.Close()
}

func TestScanLifecycle(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	id, err := s.Scans.Create(now, "abc123")
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	require.NoError(t, s.Scans.SetStatus(id, domain.ScanRunning))
	require.NoError(t, s.Scans.Finish(id, domain.ScanCompleted, 5, 2, 3.4, ""))

	sc, err := s.Scans.Get(id)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanCompleted, sc.Status)
	assert.Equal(t, 5, sc.TickersScanned)
	assert.Equal(t, 2, sc.AlertsGenerated)
}

func TestFeatureInsertAndLatest(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Scans.Create(time.Now(), "abc123")
	require.NoError(t, err)

	fs := domain.FeatureSet{Ticker: "AAPL", Timestamp: time.Now().UTC(), Price: 123.45}
	require.NoError(t, s.Features.Insert(id, fs))

	got, ok, err := s.Features.Latest("AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "AAPL", got.Ticker)
	assert.InDelta(t, 123.45, got.Price, 0.001)

	_, ok, err = s.Features.Latest("MISSING")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAlertBatchInsertAllOrNothing(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Scans.Create(time.Now(), "abc123")
	require.NoError(t, err)

	alerts := []domain.Alert{
		{ScanID: id, Ticker: "AAPL", DetectorName: "low_iv", Score: 90, AdjustedScore: 85,
			Metrics: map[string]any{"iv_percentile": 20.0}, Explanation: map[string]string{"summary": "low iv"},
			Strategies: []string{"Long Straddle"}, Confidence: domain.ConfidenceHigh, CreatedAt: time.Now()},
		{ScanID: id, Ticker: "MSFT", DetectorName: "rich_premium", Score: 80, AdjustedScore: 80,
			Metrics: map[string]any{"iv_percentile": 85.0}, Explanation: map[string]string{"summary": "rich premium"},
			Strategies: []string{"Covered Call"}, Confidence: domain.ConfidenceMedium, CreatedAt: time.Now()},
	}
	require.NoError(t, s.Alerts.BatchInsert(id, alerts))

	got, err := s.Alerts.Recent(10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCooldownRoundTrip(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()

	inCooldown, _, err := s.Cooldowns.IsInCooldown("AAPL", 24, now)
	require.NoError(t, err)
	assert.False(t, inCooldown)

	require.NoError(t, s.Cooldowns.Record("AAPL", now, 90))

	inCooldown, remaining, err := s.Cooldowns.IsInCooldown("AAPL", 24, now.Add(1*time.Hour))
	require.NoError(t, err)
	assert.True(t, inCooldown)
	assert.InDelta(t, 23*time.Hour, remaining, float64(time.Minute))

	inCooldown, _, err = s.Cooldowns.IsInCooldown("AAPL", 24, now.Add(25*time.Hour))
	require.NoError(t, err)
	assert.False(t, inCooldown)
}

func TestDailyCountIncrementIsAtomic(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()

	count, err := s.Counts.Increment(now)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = s.Counts.Increment(now)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestChainSnapshotUpsertDedupes(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Scans.Create(time.Now(), "abc123")
	require.NoError(t, err)

	exp := time.Now().Add(30 * 24 * time.Hour)
	cs := domain.ChainSnapshot{
		ScanID: id, Ticker: "AAPL", SnapshotDate: time.Now(), Expiration: exp,
		DTE: 30, UnderlyingPrice: 150, ChainJSON: "{}", NumCalls: 5, NumPuts: 5,
	}
	require.NoError(t, s.Chains.Upsert(cs))

	cs.UnderlyingPrice = 155
	require.NoError(t, s.Chains.Upsert(cs))

	got, err := s.Chains.ForScan(id)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 155, got[0].UnderlyingPrice, 0.001)
}
