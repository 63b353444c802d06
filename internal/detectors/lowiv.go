package detectors

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/config"
	"github.com/sentryscan/sentryscan/internal/domain"
)

// LowIVDetector flags tickers whose front-month implied vol sits in a low
// historical percentile, a setup favoring premium-buying strategies.
type LowIVDetector struct {
	log zerolog.Logger
}

func NewLowIVDetector(log zerolog.Logger) *LowIVDetector { return &LowIVDetector{log: log} }

func (d *LowIVDetector) Name() string        { return "LowIV" }
func (d *LowIVDetector) ConfigKey() string   { return "low_iv" }
func (d *LowIVDetector) Description() string { return "front-month implied vol in a low historical percentile" }

func (d *LowIVDetector) Detect(fs domain.FeatureSet, cfg *config.Config) (domain.AlertCandidate, bool) {
	if fs.IVMetrics.IVPercentile == nil {
		return domain.AlertCandidate{}, false
	}
	ivPct := *fs.IVMetrics.IVPercentile

	threshold := cfg.DetectorThreshold(d.ConfigKey(), "iv_percentile_max", 25)
	if ivPct >= threshold {
		return domain.AlertCandidate{}, false
	}

	base := 100 - ivPct

	var mods []modifier
	if fs.Volatility.Expanding != nil && *fs.Volatility.Expanding {
		mods = append(mods, modifier{"vol_expanding", -15})
	}
	if fs.Technicals.RSI14 != nil && *fs.Technicals.RSI14 < 30 {
		mods = append(mods, modifier{"rsi_oversold", 10})
	}
	if fs.Technicals.Support20d != nil && *fs.Technicals.Support20d > 0 {
		distPct := math.Abs(fs.Price-*fs.Technicals.Support20d) / *fs.Technicals.Support20d
		if distPct <= 0.05 {
			mods = append(mods, modifier{"near_support", 5})
		}
	}

	score, applied := applyModifiers(d.log, d.Name(), base, mods)
	if score < 60 {
		return domain.AlertCandidate{}, false
	}

	confidence := domain.ConfidenceLow // iv_percentile<15 -> high; <30 -> medium
	switch {
	case ivPct < 15:
		confidence = domain.ConfidenceHigh
	case ivPct < 30:
		confidence = domain.ConfidenceMedium
	}
	metrics := map[string]any{
		"iv_percentile": ivPct,
		"base_score":    base,
		"modifiers":     applied,
	}

	return domain.AlertCandidate{
		DetectorName: d.Name(),
		Score:        score,
		Metrics:      metrics,
		Strategies:   []string{"Long Straddle", "Calendar Spread", "Bull Call Spread"},
		Confidence:   confidence,
	}, true
}
