package throttle

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sentryscan/sentryscan/internal/store"
)

func newTestThrottler(t *testing.T) *Throttler {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, zerolog.Nop())
}

func TestShouldAlertTrueWithNoPriorHistory(t *testing.T) {
	th := newTestThrottler(t)
	ok, err := th.ShouldAlert("AAPL", DefaultCooldownHours, DefaultMaxAlertsPerDay, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRecordAlertBlocksSecondEmissionSameDay(t *testing.T) {
	th := newTestThrottler(t)
	now := time.Now().UTC()

	ok, err := th.ShouldAlert("TEST4", DefaultCooldownHours, DefaultMaxAlertsPerDay, now)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, th.RecordAlert("TEST4", 80, now))

	ok, err = th.ShouldAlert("TEST4", DefaultCooldownHours, DefaultMaxAlertsPerDay, now.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, ok, "second emission within the cooldown window must be suppressed")

	count, err := th.GetDailyCount(now)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestCooldownHoldsBeforeWindowEndAndClearsAfter(t *testing.T) {
	th := newTestThrottler(t)
	now := time.Now().UTC()
	require.True(t, th.RecordAlert("MSFT", 75, now))

	stillIn, err := th.ShouldAlert("MSFT", 1, DefaultMaxAlertsPerDay, now.Add(59*time.Minute))
	require.NoError(t, err)
	require.False(t, stillIn)

	expired, err := th.ShouldAlert("MSFT", 1, DefaultMaxAlertsPerDay, now.Add(61*time.Minute))
	require.NoError(t, err)
	require.True(t, expired)
}

func TestDailyCapBlocksAfterMax(t *testing.T) {
	th := newTestThrottler(t)
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		ticker := "T" + string(rune('A'+i))
		require.True(t, th.RecordAlert(ticker, 70, now))
	}
	ok, err := th.ShouldAlert("NEWTICKER", DefaultCooldownHours, 3, now)
	require.NoError(t, err)
	require.False(t, ok, "daily cap of 3 should block a 4th distinct ticker")
}

func TestGetCooldownRemainingReportsNilWhenClear(t *testing.T) {
	th := newTestThrottler(t)
	remaining, err := th.GetCooldownRemaining("GOOG", DefaultCooldownHours, time.Now().UTC())
	require.NoError(t, err)
	require.Nil(t, remaining)
}
