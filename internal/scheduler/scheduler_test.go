package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sentryscan/sentryscan/internal/breaker"
	"github.com/sentryscan/sentryscan/internal/calendar"
	"github.com/sentryscan/sentryscan/internal/config"
	"github.com/sentryscan/sentryscan/internal/domain"
	"github.com/sentryscan/sentryscan/internal/store"
)

func testScheduler(t *testing.T) *Scheduler {
	t.Helper()
	cal, err := calendar.New("../../configs/holidays_us.yaml")
	require.NoError(t, err)

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	cfg := &config.Config{
		Scheduler: config.SchedulerConfig{
			CollectionTimesET: []string{"16:15"},
			MaxCallsPerHour:   250,
			MaxCallsPerDay:    2000,
			CheckIntervalSec:  10,
		},
	}

	require.NoError(t, parseCollectionTimes(cfg.Scheduler.CollectionTimesET))

	now := cal.NowUTC()
	return &Scheduler{
		cfg: cfg, store: s, cal: cal,
		breakers: breaker.NewRegistry(5, 30*time.Second, zerolog.Nop()),
		symbols:  []string{"AAPL"},
		log:      zerolog.Nop(),
		manualTrig: make(chan struct{}, 1),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		state: domain.SchedulerState{
			CurrentState:    domain.StateWaiting,
			HourWindowStart: now,
			DayWindowStart:  now,
			BackoffUntil:    now,
		},
	}
}

func TestParseCollectionTimesRejectsMalformedEntry(t *testing.T) {
	err := parseCollectionTimes([]string{"1615"})
	require.Error(t, err)
}

func TestParseCollectionTimesAcceptsHHMM(t *testing.T) {
	err := parseCollectionTimes([]string{"09:30", "16:15"})
	require.NoError(t, err)
}

func TestBudgetAvailableFalseAtHourCap(t *testing.T) {
	sc := testScheduler(t)
	sc.state.APICallsThisHour = sc.cfg.Scheduler.MaxCallsPerHour
	require.False(t, sc.budgetAvailable())
}

func TestBudgetAvailableFalseAtDayCap(t *testing.T) {
	sc := testScheduler(t)
	sc.state.APICallsToday = sc.cfg.Scheduler.MaxCallsPerDay
	require.False(t, sc.budgetAvailable())
}

func TestRefreshWindowsResetsHourCounterOnCrossing(t *testing.T) {
	sc := testScheduler(t)
	sc.state.APICallsThisHour = 42
	past := sc.state.HourWindowStart.Add(-2 * time.Hour)
	sc.state.HourWindowStart = past

	sc.refreshWindows(sc.cal.NowUTC())
	require.Zero(t, sc.state.APICallsThisHour)
}

func TestRefreshWindowsResetsDayCounterOnETDateCrossing(t *testing.T) {
	sc := testScheduler(t)
	sc.state.APICallsToday = 7
	sc.state.DayWindowStart = sc.cal.NowUTC().AddDate(0, 0, -1)

	sc.refreshWindows(sc.cal.NowUTC())
	require.Zero(t, sc.state.APICallsToday)
}

func TestEnterBackoffDoublesDelayWithEpoch(t *testing.T) {
	sc := testScheduler(t)
	now := sc.cal.NowUTC()

	sc.enterBackoff(now)
	firstDelay := sc.state.BackoffUntil.Sub(now)
	require.Equal(t, domain.StateBackingOff, sc.state.CurrentState)
	require.Equal(t, 1, sc.state.BackoffEpoch)

	sc.enterBackoff(now)
	secondDelay := sc.state.BackoffUntil.Sub(now)
	require.Greater(t, secondDelay, firstDelay)
}

func TestDueNowFalseWithoutElapsedTrigger(t *testing.T) {
	sc := testScheduler(t)
	sc.state.LastCollectionAt = sc.cal.NowUTC()
	require.False(t, sc.dueNow(sc.cal.NowUTC()))
}

func TestDueNowTrueWithNoPriorCollection(t *testing.T) {
	sc := testScheduler(t)
	sc.state.LastCollectionAt = time.Time{}
	require.True(t, sc.dueNow(sc.cal.NowUTC()))
}

func TestInterTickerDelayScalesAboveHalfwayUsage(t *testing.T) {
	sc := testScheduler(t)
	sc.cfg.Scheduler.BaseInterTickerDelayMS = 100
	sc.state.APICallsThisHour = sc.cfg.Scheduler.MaxCallsPerHour // 100% usage
	got := sc.interTickerDelay()
	require.Equal(t, 300*time.Millisecond, got) // 1 + (1-0.5)*4 = 3x base
}

func TestRecoverMarksInterruptedScanFailed(t *testing.T) {
	cal, err := calendar.New("../../configs/holidays_us.yaml")
	require.NoError(t, err)
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	scanID, err := s.Scans.Create(cal.NowUTC(), "hash")
	require.NoError(t, err)
	require.NoError(t, s.Scans.SetStatus(scanID, domain.ScanRunning))
	require.NoError(t, s.Scheduler.Save(domain.SchedulerState{
		CurrentState: domain.StateCollecting,
		HourWindowStart: cal.NowUTC(), DayWindowStart: cal.NowUTC(),
		BackoffUntil: cal.NowUTC(), LastCollectionAt: cal.NowUTC(),
	}))

	sc := &Scheduler{
		cfg: &config.Config{Scheduler: config.SchedulerConfig{CollectionTimesET: nil}},
		store: s, cal: cal, log: zerolog.Nop(),
	}
	require.NoError(t, sc.recover())

	scan, err := s.Scans.Get(scanID)
	require.NoError(t, err)
	require.Equal(t, domain.ScanFailed, scan.Status)
	require.Equal(t, domain.StateWaiting, sc.state.CurrentState)
}
