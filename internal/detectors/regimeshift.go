package detectors

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/config"
	"github.com/sentryscan/sentryscan/internal/domain"
)

const (
	RegimeGoldenCross  = "GOLDEN_CROSS_SETUP"
	RegimeDeathCross   = "DEATH_CROSS_SETUP"
	RegimeSupportBounce = "SUPPORT_BOUNCE"
)

const regimeCrossBandPct = 0.03

// RegimeShiftDetector flags moving-average crossover setups and support
// bounces off the 50-day average.
type RegimeShiftDetector struct {
	log zerolog.Logger
}

func NewRegimeShiftDetector(log zerolog.Logger) *RegimeShiftDetector {
	return &RegimeShiftDetector{log: log}
}

func (d *RegimeShiftDetector) Name() string        { return "RegimeShift" }
func (d *RegimeShiftDetector) ConfigKey() string   { return "regime_shift" }
func (d *RegimeShiftDetector) Description() string { return "moving-average crossover setup or a support bounce" }

func (d *RegimeShiftDetector) Detect(fs domain.FeatureSet, cfg *config.Config) (domain.AlertCandidate, bool) {
	if fs.Technicals.SMA50 == nil || fs.Technicals.SMA200 == nil {
		return domain.AlertCandidate{}, false
	}
	sma50, sma200, spot := *fs.Technicals.SMA50, *fs.Technicals.SMA200, fs.Price
	band := cfg.DetectorThreshold(d.ConfigKey(), "cross_band_pct", regimeCrossBandPct)

	var (
		regime  string
		base    float64
		bullish bool
		matched bool
	)

	crossGap := math.Abs(sma50-sma200) / sma200

	switch {
	case sma50 < sma200 && crossGap <= band && spot > sma50:
		regime, bullish, matched = RegimeGoldenCross, true, true
		base = 60
		if spot > sma50 && spot < sma200 {
			base = 80
		}
	case sma50 > sma200 && crossGap <= band && spot < sma50:
		regime, bullish, matched = RegimeDeathCross, false, true
		base = 60
		if spot > sma200 && spot < sma50 {
			base = 80
		}
	case spot >= sma50 && math.Abs(spot-sma50)/sma50 <= band:
		regime, bullish, matched = RegimeSupportBounce, true, true
		base = 70
	}

	if !matched {
		return domain.AlertCandidate{}, false
	}

	momentum := fs.Technicals.MACDHistogram != nil && math.Abs(*fs.Technicals.MACDHistogram) > 0.01
	volumeElevated := fs.Technicals.CurrentVolume != nil && fs.Technicals.VolumeSMA20 != nil &&
		*fs.Technicals.VolumeSMA20 > 0 && *fs.Technicals.CurrentVolume > 1.2**fs.Technicals.VolumeSMA20

	var mods []modifier
	if momentum {
		mods = append(mods, modifier{"momentum_confirms", 15})
	}
	if volumeElevated {
		mods = append(mods, modifier{"volume_confirms", 10})
	}
	if fs.Technicals.RSI14 != nil && *fs.Technicals.RSI14 >= 40 && *fs.Technicals.RSI14 <= 60 {
		mods = append(mods, modifier{"rsi_neutral", -10})
	}

	score, applied := applyModifiers(d.log, d.Name(), base, mods)
	if score < 60 {
		return domain.AlertCandidate{}, false
	}

	confirmCount := 0
	if momentum {
		confirmCount++
	}
	if volumeElevated {
		confirmCount++
	}
	confidence := domain.ConfidenceLow
	switch confirmCount {
	case 2:
		confidence = domain.ConfidenceHigh
	case 1:
		confidence = domain.ConfidenceMedium
	}

	strategies := []string{"Covered Call"}
	if bullish {
		strategies = []string{"Wheel", "Cash-Secured Put"}
	}

	metrics := map[string]any{
		"regime":     regime,
		"sma50":      sma50,
		"sma200":     sma200,
		"base_score": base,
		"modifiers":  applied,
	}

	return domain.AlertCandidate{
		DetectorName: d.Name(),
		Score:        score,
		Metrics:      metrics,
		Strategies:   strategies,
		Confidence:   confidence,
	}, true
}
