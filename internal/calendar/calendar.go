// Package calendar implements UTC/ET conversion and trading-day/session
// predicates for the single NYSE/NASDAQ-style regular session sentryscan
// scans against, generalized from the teacher's multi-exchange
// ExchangeCalendar shape down to the one calendar spec.md needs.
package calendar

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sentryscan/sentryscan/internal/errs"
)

const (
	sessionOpenHour    = 9
	sessionOpenMinute  = 30
	sessionCloseHour   = 16
	sessionCloseMinute = 0
)

// Calendar answers trading-calendar questions against a swappable holiday set.
type Calendar struct {
	loc      *time.Location
	holidays map[string]struct{} // "YYYY-MM-DD" in ET
}

type holidaysFile struct {
	Holidays []string `yaml:"holidays"`
}

// New builds a Calendar for America/New_York using the holiday dates found
// in holidaysPath (one ISO date per line under a `holidays:` list).
func New(holidaysPath string) (*Calendar, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, fmt.Errorf("load America/New_York: %w", err)
	}

	c := &Calendar{loc: loc, holidays: map[string]struct{}{}}

	if holidaysPath != "" {
		if err := c.loadHolidays(holidaysPath); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Calendar) loadHolidays(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read holidays file %s: %w", path, err)
	}
	var hf holidaysFile
	if err := yaml.Unmarshal(data, &hf); err != nil {
		return fmt.Errorf("parse holidays file %s: %w", path, err)
	}
	for _, d := range hf.Holidays {
		c.holidays[d] = struct{}{}
	}
	return nil
}

// NowUTC returns the current instant.
func (c *Calendar) NowUTC() time.Time {
	return time.Now().UTC()
}

// ToET converts a UTC instant to its America/New_York wall-clock time.
func (c *Calendar) ToET(t time.Time) time.Time {
	return t.In(c.loc)
}

// FromET converts an America/New_York wall-clock time to a UTC instant. t
// must already carry the America/New_York location; InvalidTz is returned
// otherwise.
func (c *Calendar) FromET(t time.Time) (time.Time, error) {
	if t.Location() != c.loc {
		return time.Time{}, fmt.Errorf("%w: civil datetime has no America/New_York zone", errs.InvalidTz)
	}
	return t.UTC(), nil
}

// IsTradingDay reports whether date (interpreted as an ET calendar date) is
// a weekday and not a configured holiday.
func (c *Calendar) IsTradingDay(date time.Time) bool {
	date = date.In(c.loc)
	if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
		return false
	}
	_, isHoliday := c.holidays[date.Format("2006-01-02")]
	return !isHoliday
}

// IsMarketOpen reports whether the regular session (09:30-16:00 ET) is open
// at t (UTC instant) on a trading day.
func (c *Calendar) IsMarketOpen(t time.Time) bool {
	et := c.ToET(t)
	if !c.IsTradingDay(et) {
		return false
	}
	minutes := et.Hour()*60 + et.Minute()
	open := sessionOpenHour*60 + sessionOpenMinute
	closeM := sessionCloseHour*60 + sessionCloseMinute
	return minutes >= open && minutes < closeM
}

// NextMarketOpen returns the next UTC instant strictly after t at which the
// regular session opens.
func (c *Calendar) NextMarketOpen(t time.Time) time.Time {
	et := c.ToET(t)
	candidate := time.Date(et.Year(), et.Month(), et.Day(), sessionOpenHour, sessionOpenMinute, 0, 0, c.loc)
	for {
		if c.IsTradingDay(candidate) && candidate.After(et) {
			return candidate.UTC()
		}
		candidate = candidate.AddDate(0, 0, 1)
		candidate = time.Date(candidate.Year(), candidate.Month(), candidate.Day(), sessionOpenHour, sessionOpenMinute, 0, 0, c.loc)
	}
}

// NextMarketClose returns the next UTC instant strictly after t at which the
// regular session closes.
func (c *Calendar) NextMarketClose(t time.Time) time.Time {
	et := c.ToET(t)
	candidate := c.sessionClose(et)
	for {
		if c.IsTradingDay(candidate) && candidate.After(et) {
			return candidate.UTC()
		}
		candidate = candidate.AddDate(0, 0, 1)
		candidate = c.sessionClose(candidate)
	}
}

func (c *Calendar) sessionClose(et time.Time) time.Time {
	return time.Date(et.Year(), et.Month(), et.Day(), sessionCloseHour, sessionCloseMinute, 0, 0, c.loc)
}

// MarketHoursRemaining returns how long until the session closes if open
// right now, or zero if the market is closed.
func (c *Calendar) MarketHoursRemaining(t time.Time) time.Duration {
	if !c.IsMarketOpen(t) {
		return 0
	}
	et := c.ToET(t)
	return c.sessionClose(et).Sub(et)
}

// NextTriggerAfter converts a "HH:MM" ET wall-clock trigger into the next
// UTC instant strictly after t on a trading day.
func (c *Calendar) NextTriggerAfter(t time.Time, hhmm string) (time.Time, error) {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse trigger time %q: %w", hhmm, err)
	}
	et := c.ToET(t)
	candidate := time.Date(et.Year(), et.Month(), et.Day(), parsed.Hour(), parsed.Minute(), 0, 0, c.loc)
	for {
		if c.IsTradingDay(candidate) && candidate.After(et) {
			return candidate.UTC(), nil
		}
		candidate = candidate.AddDate(0, 0, 1)
		candidate = time.Date(candidate.Year(), candidate.Month(), candidate.Day(), parsed.Hour(), parsed.Minute(), 0, 0, c.loc)
	}
}

// NextTriggers returns, for every HH:MM in times, the next UTC firing
// instant strictly after t, sorted ascending.
func (c *Calendar) NextTriggers(t time.Time, times []string) ([]time.Time, error) {
	out := make([]time.Time, 0, len(times))
	for _, hhmm := range times {
		next, err := c.NextTriggerAfter(t, hhmm)
		if err != nil {
			return nil, err
		}
		out = append(out, next)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}
