// Package scheduler runs the long-lived collection loop: a
// IDLE/WAITING/COLLECTING/FLUSHING/BACKING_OFF state machine gated by rate
// budgets and breaker health, triggering the orchestrator at configured ET
// wall-clock times. Grounded on trader-go/internal/scheduler/scheduler.go
// for the zerolog-scoped Start/Stop lifecycle shape. "HH:MM" entries are
// validated with robfig/cron/v3's standalone parser (cron.NewParser), but
// the trading-day-aware "next fire instant" arithmetic itself is delegated
// to calendar.NextTriggers/NextTriggerAfter, since a raw cron.Schedule has
// no notion of market holidays or weekends. The state table and rate-budget
// math are built fresh in that same idiom: no teacher file carries an
// analogous multi-state machine to imitate directly.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/breaker"
	"github.com/sentryscan/sentryscan/internal/calendar"
	"github.com/sentryscan/sentryscan/internal/config"
	"github.com/sentryscan/sentryscan/internal/domain"
	"github.com/sentryscan/sentryscan/internal/errs"
	"github.com/sentryscan/sentryscan/internal/orchestrator"
	"github.com/sentryscan/sentryscan/internal/store"
)

const (
	defaultMaxCallsPerHour     = 250
	defaultMaxCallsPerDay      = 2000
	defaultCheckIntervalSec    = 10
	defaultBaseInterTickerMS   = 100
	defaultShutdownGraceSec    = 10
	adaptiveDelayHalfway       = 0.5
	adaptiveDelayK             = 4.0
	backoffBase                = 5 * time.Second
	backoffCapEpoch            = 6 // base * 2^6 = base*64, the cap
)

// Scheduler owns the collection state machine and drives RunScan at the
// configured triggers, subject to rate budgets and breaker health.
type Scheduler struct {
	mu sync.Mutex

	cfg      *config.Config
	store    *store.Store
	cal      *calendar.Calendar
	breakers *breaker.Registry
	orch     *orchestrator.Orchestrator
	symbols  []string
	log      zerolog.Logger

	state      domain.SchedulerState
	manualTrig chan struct{}
	shutdown   chan struct{}
	done       chan struct{}
}

// New builds a Scheduler. symbols is the watchlist passed to every scan
// invocation.
func New(cfg *config.Config, s *store.Store, cal *calendar.Calendar, breakers *breaker.Registry, orch *orchestrator.Orchestrator, symbols []string, log zerolog.Logger) (*Scheduler, error) {
	if err := parseCollectionTimes(cfg.Scheduler.CollectionTimesET); err != nil {
		return nil, err
	}

	sc := &Scheduler{
		cfg: cfg, store: s, cal: cal, breakers: breakers, orch: orch, symbols: symbols,
		log:        log.With().Str("component", "scheduler").Logger(),
		manualTrig: make(chan struct{}, 1),
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	if err := sc.recover(); err != nil {
		return nil, err
	}
	return sc, nil
}

// parseCollectionTimes validates each "HH:MM" entry via the standard
// 5-field cron parser (minute hour * * *). The parsed schedule itself is
// discarded — it exists only to reject malformed entries early, since the
// actual next-fire computation goes through calendar's trading-day-aware
// walk, not cron.Schedule.Next.
func parseCollectionTimes(times []string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	for _, t := range times {
		parts := strings.SplitN(t, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("%w: collection time %q is not HH:MM", errs.ConfigInvalid, t)
		}
		expr := fmt.Sprintf("%s %s * * *", parts[1], parts[0])
		if _, err := parser.Parse(expr); err != nil {
			return fmt.Errorf("%w: collection time %q: %v", errs.ConfigInvalid, t, err)
		}
	}
	return nil
}

// recover loads persisted SchedulerState, marking an interrupted
// COLLECTING as failed before re-entering WAITING.
func (sc *Scheduler) recover() error {
	st, ok, err := sc.store.Scheduler.Load()
	if err != nil {
		return err
	}
	now := sc.cal.NowUTC()
	if !ok {
		st = domain.SchedulerState{
			CurrentState:     domain.StateIdle,
			HourWindowStart:  now,
			DayWindowStart:   now,
			BackoffUntil:     now,
			LastCollectionAt: time.Time{},
		}
	}

	if st.CurrentState == domain.StateCollecting {
		recent, err := sc.store.Scans.Recent(1)
		if err == nil && len(recent) > 0 && recent[0].Status == domain.ScanRunning {
			_ = sc.store.Scans.Finish(recent[0].ID, domain.ScanFailed, recent[0].TickersScanned, recent[0].AlertsGenerated, 0, "interrupted")
			sc.log.Warn().Int64("scan_id", recent[0].ID).Msg("marking interrupted scan as failed on startup")
		}
	}
	st.CurrentState = domain.StateWaiting
	sc.state = st
	return sc.persist()
}

func (sc *Scheduler) persist() error {
	return sc.store.Scheduler.Save(sc.state)
}

// Status returns a snapshot of the current state, safe for concurrent
// readers. No other package in this module calls it.
func (sc *Scheduler) Status() domain.SchedulerState {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.state
}

// TriggerNow requests an out-of-band collection; it still participates in
// the same budget and breaker gating as a scheduled trigger.
func (sc *Scheduler) TriggerNow() {
	select {
	case sc.manualTrig <- struct{}{}:
	default:
	}
}

// Run drives the main loop until ctx is canceled. It blocks until shutdown
// completes.
func (sc *Scheduler) Run(ctx context.Context) {
	interval := time.Duration(sc.cfg.Scheduler.CheckIntervalSec) * time.Second
	if interval <= 0 {
		interval = defaultCheckIntervalSec * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer close(sc.done)

	for {
		select {
		case <-ctx.Done():
			sc.log.Info().Msg("scheduler context canceled, stopping loop")
			return
		case <-sc.shutdown:
			sc.log.Info().Msg("scheduler shutdown requested, stopping loop")
			return
		case <-sc.manualTrig:
			sc.tick(ctx, true)
		case <-ticker.C:
			sc.tick(ctx, false)
		}
	}
}

// Stop signals the loop to exit and waits for it to finish, honoring a
// shutdown grace period for any in-flight scan.
func (sc *Scheduler) Stop() {
	close(sc.shutdown)
	grace := time.Duration(sc.cfg.Scheduler.ShutdownGraceSec) * time.Second
	if grace <= 0 {
		grace = defaultShutdownGraceSec * time.Second
	}
	select {
	case <-sc.done:
	case <-time.After(grace):
		sc.log.Warn().Msg("shutdown grace period elapsed before loop exited")
	}
}

// tick refreshes rolling counters against wall-clock windows, evaluates the
// current state's transition, and acts. manual bypasses the "is it time
// yet" check but not budget or breaker gating.
func (sc *Scheduler) tick(ctx context.Context, manual bool) {
	sc.mu.Lock()
	now := sc.cal.NowUTC()
	sc.refreshWindows(now)

	switch sc.state.CurrentState {
	case domain.StateIdle:
		sc.state.CurrentState = domain.StateWaiting
		_ = sc.persist()
		sc.mu.Unlock()
		return

	case domain.StateBackingOff:
		if now.Before(sc.state.BackoffUntil) {
			sc.mu.Unlock()
			return
		}
		sc.state.CurrentState = domain.StateWaiting
		_ = sc.persist()
		sc.mu.Unlock()
		return

	case domain.StateWaiting:
		if sc.breakers.AnyOpen() {
			sc.enterBackoff(now)
			sc.mu.Unlock()
			return
		}
		if !sc.budgetAvailable() {
			sc.enterBackoff(now)
			sc.mu.Unlock()
			return
		}
		if !manual && !sc.dueNow(now) {
			sc.mu.Unlock()
			return
		}
		sc.state.CurrentState = domain.StateCollecting
		_ = sc.persist()
		sc.mu.Unlock()

		sc.collect(ctx)
		return

	default:
		sc.mu.Unlock()
		return
	}
}

// dueNow reports whether now is at or past the next scheduled trigger for
// any configured collection time, walking forward from the last collection
// through calendar's trading-day-aware NextTriggers so a Friday close never
// fires the following Saturday.
func (sc *Scheduler) dueNow(now time.Time) bool {
	times := sc.cfg.Scheduler.CollectionTimesET
	if len(times) == 0 {
		return false
	}
	from := sc.state.LastCollectionAt
	if from.IsZero() {
		from = now.Add(-24 * time.Hour)
	}
	nexts, err := sc.cal.NextTriggers(from, times)
	if err != nil {
		sc.log.Error().Err(err).Msg("failed to compute next collection triggers")
		return false
	}
	for _, next := range nexts {
		if !next.After(now) {
			return true
		}
	}
	return false
}

// refreshWindows resets hour/day counters on window crossings. Day windows
// are evaluated in ET per spec.
func (sc *Scheduler) refreshWindows(now time.Time) {
	if now.Sub(sc.state.HourWindowStart) >= time.Hour {
		sc.state.APICallsThisHour = 0
		sc.state.HourWindowStart = now
	}
	nowET := sc.cal.ToET(now)
	startET := sc.cal.ToET(sc.state.DayWindowStart)
	if nowET.Year() != startET.Year() || nowET.YearDay() != startET.YearDay() {
		sc.state.APICallsToday = 0
		sc.state.DayWindowStart = now
	}
}

func (sc *Scheduler) budgetAvailable() bool {
	maxHour := sc.cfg.Scheduler.MaxCallsPerHour
	if maxHour <= 0 {
		maxHour = defaultMaxCallsPerHour
	}
	maxDay := sc.cfg.Scheduler.MaxCallsPerDay
	if maxDay <= 0 {
		maxDay = defaultMaxCallsPerDay
	}
	return sc.state.APICallsThisHour < maxHour && sc.state.APICallsToday < maxDay
}

func (sc *Scheduler) enterBackoff(now time.Time) {
	delay := backoffBase * time.Duration(1<<min(sc.state.BackoffEpoch, backoffCapEpoch))
	sc.state.BackoffUntil = now.Add(delay)
	sc.state.BackoffEpoch++
	sc.state.CurrentState = domain.StateBackingOff
	_ = sc.persist()
	sc.log.Warn().Dur("backoff", delay).Int("epoch", sc.state.BackoffEpoch).Msg("entering backoff")
}

// collect runs one scan invocation and transitions COLLECTING -> FLUSHING
// -> WAITING (or BACKING_OFF on rate-limit/breaker signal).
func (sc *Scheduler) collect(ctx context.Context) {
	now := sc.cal.NowUTC()
	sc.orch.SetPacer(sc.interTickerDelay)
	_, err := sc.orch.RunScan(ctx, sc.symbols)

	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.state.APICallsThisHour += len(sc.symbols)
	sc.state.APICallsToday += len(sc.symbols)

	if err != nil {
		sc.log.Error().Err(err).Msg("scan invocation failed")
		if errIsRateLimited(err) {
			sc.enterBackoff(sc.cal.NowUTC())
			return
		}
	} else {
		sc.state.BackoffEpoch = 0
	}

	sc.state.CurrentState = domain.StateFlushing
	_ = sc.persist()

	sc.state.LastCollectionAt = now
	sc.state.CurrentState = domain.StateWaiting
	_ = sc.persist()
}

func errIsRateLimited(err error) bool {
	return err != nil && (errors.Is(err, errs.RateLimited) || errors.Is(err, errs.CircuitOpen))
}

// interTickerDelay computes the adaptive inter-ticker delay for the current
// hour usage: base * (1 + max(0, usage-0.5) * k), so at 100% usage the
// delay is 3x base.
func (sc *Scheduler) interTickerDelay() time.Duration {
	base := time.Duration(sc.cfg.Scheduler.BaseInterTickerDelayMS) * time.Millisecond
	if base <= 0 {
		base = defaultBaseInterTickerMS * time.Millisecond
	}
	maxHour := sc.cfg.Scheduler.MaxCallsPerHour
	if maxHour <= 0 {
		maxHour = defaultMaxCallsPerHour
	}
	usage := float64(sc.state.APICallsThisHour) / float64(maxHour)
	if usage <= adaptiveDelayHalfway {
		return base
	}
	multiplier := 1 + (usage-adaptiveDelayHalfway)*adaptiveDelayK
	return time.Duration(float64(base) * multiplier)
}
