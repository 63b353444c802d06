// Package detectors holds sentryscan's pattern detectors: pure functions
// of a domain.FeatureSet that each either stay silent or emit one
// domain.AlertCandidate with score in [60,100]. The registry shape follows
// trader-go's internal/modules/sequences/generators/registry.go — a
// map-backed collection behind a mutex, a NewPopulated* constructor that
// wires every concrete implementation, no reflection.
package detectors

import (
	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/config"
	"github.com/sentryscan/sentryscan/internal/domain"
)

// Detector is a single pattern detector. Implementations must be pure with
// respect to external state and must only read their own configuration
// subtree (config.Config.Detectors[ConfigKey()]).
type Detector interface {
	Name() string
	Description() string
	ConfigKey() string
	Detect(fs domain.FeatureSet, cfg *config.Config) (domain.AlertCandidate, bool)
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// modifier is one contextual adjustment applied to a base score, kept
// around so it can be logged by name and magnitude and folded into the
// candidate's metrics for the explanation generator.
type modifier struct {
	Name  string
	Delta float64
}

// applyModifiers runs base through every modifier in order, logging each
// one, and returns the clamped result plus the flat map stored on the
// candidate's Metrics for downstream consumers.
func applyModifiers(log zerolog.Logger, detector string, base float64, mods []modifier) (float64, map[string]float64) {
	score := base
	applied := make(map[string]float64, len(mods))
	for _, m := range mods {
		if m.Delta == 0 {
			continue
		}
		score += m.Delta
		applied[m.Name] = m.Delta
		log.Debug().Str("detector", detector).Str("modifier", m.Name).Float64("delta", m.Delta).Msg("applied score modifier")
	}
	return clamp(score, 0, 100), applied
}

// DetectSafe wraps d.Detect, recovering from any panic and converting it
// into a DetectorFailure-class log entry so one broken detector never
// aborts a scan. Mirrors the spec's detect_safe wrapper.
func DetectSafe(d Detector, fs domain.FeatureSet, cfg *config.Config, log zerolog.Logger) (cand domain.AlertCandidate, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("detector", d.Name()).
				Str("ticker", fs.Ticker).
				Interface("panic", r).
				Msg("detector panicked, treating as detector failure")
			cand = domain.AlertCandidate{}
			ok = false
		}
	}()

	if !cfg.DetectorEnabled(d.ConfigKey()) {
		return domain.AlertCandidate{}, false
	}

	cand, ok = d.Detect(fs, cfg)
	if !ok {
		return domain.AlertCandidate{}, false
	}
	if cand.Score < 60 || cand.Score > 100 {
		log.Error().Str("detector", d.Name()).Float64("score", cand.Score).
			Msg("detector violated score invariant, discarding candidate")
		return domain.AlertCandidate{}, false
	}
	return cand, true
}

func confidenceBand(value float64, high, medium float64) domain.Confidence {
	switch {
	case value >= high:
		return domain.ConfidenceHigh
	case value >= medium:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}
