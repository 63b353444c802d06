package detectors

import (
	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/config"
	"github.com/sentryscan/sentryscan/internal/domain"
)

// RichPremiumDetector flags tickers whose front-month implied vol sits in a
// high historical percentile, a setup favoring premium-selling strategies.
type RichPremiumDetector struct {
	log zerolog.Logger
}

func NewRichPremiumDetector(log zerolog.Logger) *RichPremiumDetector {
	return &RichPremiumDetector{log: log}
}

func (d *RichPremiumDetector) Name() string        { return "RichPremium" }
func (d *RichPremiumDetector) ConfigKey() string   { return "rich_premium" }
func (d *RichPremiumDetector) Description() string { return "front-month implied vol in a high historical percentile" }

func (d *RichPremiumDetector) Detect(fs domain.FeatureSet, cfg *config.Config) (domain.AlertCandidate, bool) {
	if fs.IVMetrics.IVPercentile == nil {
		return domain.AlertCandidate{}, false
	}
	ivPct := *fs.IVMetrics.IVPercentile

	threshold := cfg.DetectorThreshold(d.ConfigKey(), "iv_percentile_min", 75)
	if ivPct < threshold {
		return domain.AlertCandidate{}, false
	}

	base := ivPct

	var mods []modifier
	if fs.IVMetrics.IVRank != nil && *fs.IVMetrics.IVRank > 80 {
		mods = append(mods, modifier{"iv_rank_extreme", 15})
	}
	if fs.Technicals.SMA200 != nil && fs.Price > *fs.Technicals.SMA200 {
		mods = append(mods, modifier{"above_sma200", 10})
	}
	if fs.IVMetrics.TermStructureRatio != nil && *fs.IVMetrics.TermStructureRatio > 1 {
		mods = append(mods, modifier{"contango", 5})
	}
	if fs.Liquidity.ATMVolume != nil && fs.Technicals.VolumeSMA20 != nil && *fs.Technicals.VolumeSMA20 > 0 {
		if float64(*fs.Liquidity.ATMVolume) < 0.2**fs.Technicals.VolumeSMA20 {
			mods = append(mods, modifier{"thin_atm_volume", -10})
		}
	}

	score, applied := applyModifiers(d.log, d.Name(), base, mods)
	if score < 60 {
		return domain.AlertCandidate{}, false
	}

	confidence := confidenceBand(ivPct, 85, 75)
	metrics := map[string]any{
		"iv_percentile": ivPct,
		"base_score":    base,
		"modifiers":     applied,
	}

	return domain.AlertCandidate{
		DetectorName: d.Name(),
		Score:        score,
		Metrics:      metrics,
		Strategies:   []string{"CSP", "Covered Call", "Iron Condor", "Bull Put Spread"},
		Confidence:   confidence,
	}, true
}
