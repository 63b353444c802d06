// Package throttle gates alert emission on a per-ticker cooldown and a
// process-wide daily cap. Grounded directly on the original Python's
// functions/scoring/throttler.py AlertThrottler: should_alert checks
// cooldown then daily count, record_alert updates both atomically via the
// store's upsert repositories. Unlike the original, a storage error here is
// never treated as "allow the alert" — see DESIGN.md for why fail-open is
// not carried over.
package throttle

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/store"
)

// Defaults mirror spec: a 24h cooldown and a 5/day cap.
const (
	DefaultCooldownHours   = 24
	DefaultMaxAlertsPerDay = 5
)

// Throttler decides whether a scored, risk-gated candidate may still be
// persisted as an alert.
type Throttler struct {
	store *store.Store
	log   zerolog.Logger
}

func New(s *store.Store, log zerolog.Logger) *Throttler {
	return &Throttler{store: s, log: log.With().Str("component", "throttler").Logger()}
}

// ShouldAlert reports whether ticker may alert right now: not in cooldown
// and today's process-wide count is under the daily maximum.
func (t *Throttler) ShouldAlert(ticker string, cooldownHours, maxPerDay int, now time.Time) (bool, error) {
	inCooldown, remaining, err := t.store.Cooldowns.IsInCooldown(ticker, cooldownHours, now)
	if err != nil {
		return false, err
	}
	if inCooldown {
		t.log.Debug().Str("ticker", ticker).Dur("remaining", remaining).Msg("ticker in cooldown, suppressing alert")
		return false, nil
	}

	count, err := t.store.Counts.Get(now)
	if err != nil {
		return false, err
	}
	if count >= maxPerDay {
		t.log.Debug().Int("count", count).Int("max", maxPerDay).Msg("daily alert cap reached, suppressing alert")
		return false, nil
	}
	return true, nil
}

// RecordAlert updates ticker's cooldown to (now, score) and increments
// today's count. Returns false only on a storage error — per spec, never a
// silent fail-open.
func (t *Throttler) RecordAlert(ticker string, score float64, now time.Time) bool {
	if err := t.store.Cooldowns.Record(ticker, now, score); err != nil {
		t.log.Error().Err(err).Str("ticker", ticker).Msg("failed to record cooldown")
		return false
	}
	if _, err := t.store.Counts.Increment(now); err != nil {
		t.log.Error().Err(err).Str("ticker", ticker).Msg("failed to increment daily count")
		return false
	}
	return true
}

// GetCooldownRemaining is a pure read of ticker's remaining cooldown, nil
// if it is not currently in cooldown.
func (t *Throttler) GetCooldownRemaining(ticker string, cooldownHours int, now time.Time) (*time.Duration, error) {
	inCooldown, remaining, err := t.store.Cooldowns.IsInCooldown(ticker, cooldownHours, now)
	if err != nil {
		return nil, err
	}
	if !inCooldown {
		return nil, nil
	}
	return &remaining, nil
}

// GetDailyCount is a pure read of the process-wide alert count for date.
func (t *Throttler) GetDailyCount(date time.Time) (int, error) {
	return t.store.Counts.Get(date)
}
