package detectors

import (
	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/config"
	"github.com/sentryscan/sentryscan/internal/domain"
)

// EarningsCrushDetector flags tickers with an imminent earnings date and
// rich implied vol, where a post-earnings IV collapse is the thesis.
type EarningsCrushDetector struct {
	log zerolog.Logger
}

func NewEarningsCrushDetector(log zerolog.Logger) *EarningsCrushDetector {
	return &EarningsCrushDetector{log: log}
}

func (d *EarningsCrushDetector) Name() string      { return "EarningsCrush" }
func (d *EarningsCrushDetector) ConfigKey() string { return "earnings_crush" }
func (d *EarningsCrushDetector) Description() string {
	return "rich front-month implied vol ahead of an imminent earnings print"
}

func (d *EarningsCrushDetector) Detect(fs domain.FeatureSet, cfg *config.Config) (domain.AlertCandidate, bool) {
	if fs.Earnings.DaysToEarnings == nil || fs.IVMetrics.IVPercentile == nil {
		return domain.AlertCandidate{}, false
	}
	days := *fs.Earnings.DaysToEarnings
	if days <= 0 || days > 14 {
		return domain.AlertCandidate{}, false
	}

	ivPct := *fs.IVMetrics.IVPercentile
	threshold := cfg.DetectorThreshold(d.ConfigKey(), "iv_percentile_min", 60)
	if ivPct < threshold {
		return domain.AlertCandidate{}, false
	}

	var base float64
	switch {
	case days <= 3:
		base = 95
	case days <= 7:
		base = 85
	default:
		base = 70
	}

	var mods []modifier
	if fs.IVMetrics.IVRank != nil && *fs.IVMetrics.IVRank > 75 {
		mods = append(mods, modifier{"iv_rank_extreme", 10})
	}
	if fs.OptionsFront.ATMIV != nil && *fs.OptionsFront.ATMIV > 0.60 {
		mods = append(mods, modifier{"front_iv_elevated", 5})
	}
	if fs.Earnings.Week52HighPct != nil && *fs.Earnings.Week52HighPct >= 0.95 {
		mods = append(mods, modifier{"near_52wk_high", -15})
	}

	score, applied := applyModifiers(d.log, d.Name(), base, mods)
	if score < 60 {
		return domain.AlertCandidate{}, false
	}

	confidence := domain.ConfidenceMedium
	if days <= 7 {
		confidence = domain.ConfidenceHigh
	}

	warning := earningsWarning(days)

	metrics := map[string]any{
		"days_to_earnings": days,
		"iv_percentile":    ivPct,
		"base_score":       base,
		"modifiers":        applied,
	}

	explanation := map[string]string{"warning": warning}

	return domain.AlertCandidate{
		DetectorName: d.Name(),
		Score:        score,
		Metrics:      metrics,
		Explanation:  explanation,
		Strategies:   []string{"Iron Condor", "Bull Put Spread", "Bear Call Spread"},
		Confidence:   confidence,
	}, true
}

func earningsWarning(days int) string {
	switch {
	case days <= 3:
		return "CRITICAL: earnings within 3 days, expect a sharp IV crush on the print"
	case days <= 7:
		return "WARNING: earnings within a week, size positions for the IV crush"
	default:
		return "WARNING: earnings within the options' lifetime, monitor for IV run-up"
	}
}
