package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sentryscan/sentryscan/internal/domain"
)

// SchedulerStateRepository owns the single-row scheduler_state table used
// to recover counters and the current state across restarts.
type SchedulerStateRepository struct {
	base
}

// Load returns the persisted scheduler state, or ok=false if the scheduler
// has never run against this store before.
func (r *SchedulerStateRepository) Load() (domain.SchedulerState, bool, error) {
	var st domain.SchedulerState
	var current, hourStart, dayStart, backoffUntil, lastCollection string

	err := r.db.QueryRow(
		`SELECT current_state, api_calls_this_hour, api_calls_today, hour_window_start,
		        day_window_start, buffer_depth, backoff_until, last_collection_at, backoff_epoch
		 FROM scheduler_state WHERE id = 1`,
	).Scan(
		&current, &st.APICallsThisHour, &st.APICallsToday, &hourStart,
		&dayStart, &st.BufferDepth, &backoffUntil, &lastCollection, &st.BackoffEpoch,
	)
	if err == sql.ErrNoRows {
		return domain.SchedulerState{}, false, nil
	}
	if err != nil {
		return domain.SchedulerState{}, false, fmt.Errorf("load scheduler state: %w", err)
	}

	st.CurrentState = domain.SchedulerStateKind(current)
	for _, pair := range []struct {
		raw string
		dst *time.Time
	}{
		{hourStart, &st.HourWindowStart},
		{dayStart, &st.DayWindowStart},
		{backoffUntil, &st.BackoffUntil},
		{lastCollection, &st.LastCollectionAt},
	} {
		t, err := time.Parse(time.RFC3339, pair.raw)
		if err != nil {
			return domain.SchedulerState{}, false, fmt.Errorf("parse scheduler state timestamp %q: %w", pair.raw, err)
		}
		*pair.dst = t
	}
	return st, true, nil
}

// Save upserts the single scheduler_state row.
func (r *SchedulerStateRepository) Save(st domain.SchedulerState) error {
	_, err := r.db.Exec(
		`INSERT INTO scheduler_state (
			id, current_state, api_calls_this_hour, api_calls_today, hour_window_start,
			day_window_start, buffer_depth, backoff_until, last_collection_at, backoff_epoch
		 ) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			current_state = excluded.current_state,
			api_calls_this_hour = excluded.api_calls_this_hour,
			api_calls_today = excluded.api_calls_today,
			hour_window_start = excluded.hour_window_start,
			day_window_start = excluded.day_window_start,
			buffer_depth = excluded.buffer_depth,
			backoff_until = excluded.backoff_until,
			last_collection_at = excluded.last_collection_at,
			backoff_epoch = excluded.backoff_epoch`,
		string(st.CurrentState), st.APICallsThisHour, st.APICallsToday, st.HourWindowStart.UTC().Format(time.RFC3339),
		st.DayWindowStart.UTC().Format(time.RFC3339), st.BufferDepth, st.BackoffUntil.UTC().Format(time.RFC3339),
		st.LastCollectionAt.UTC().Format(time.RFC3339), st.BackoffEpoch,
	)
	if err != nil {
		return fmt.Errorf("save scheduler state: %w", err)
	}
	return nil
}
