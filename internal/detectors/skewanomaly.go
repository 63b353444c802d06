package detectors

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/config"
	"github.com/sentryscan/sentryscan/internal/domain"
)

const (
	DirectionPutSkew  = "PUT_SKEW"
	DirectionCallSkew = "CALL_SKEW"
)

const skewNormalBand = 0.10
const skewAnomalyFloor = 0.15

// SkewAnomalyDetector flags a 25-delta put/call skew that has moved well
// outside its normal band in either direction.
type SkewAnomalyDetector struct {
	log zerolog.Logger
}

func NewSkewAnomalyDetector(log zerolog.Logger) *SkewAnomalyDetector {
	return &SkewAnomalyDetector{log: log}
}

func (d *SkewAnomalyDetector) Name() string        { return "SkewAnomaly" }
func (d *SkewAnomalyDetector) ConfigKey() string   { return "skew_anomaly" }
func (d *SkewAnomalyDetector) Description() string { return "25-delta put/call skew well outside its normal band" }

func (d *SkewAnomalyDetector) Detect(fs domain.FeatureSet, cfg *config.Config) (domain.AlertCandidate, bool) {
	if fs.OptionsFront.Skew25Delta == nil {
		return domain.AlertCandidate{}, false
	}
	skew := *fs.OptionsFront.Skew25Delta

	band := cfg.DetectorThreshold(d.ConfigKey(), "normal_band", skewNormalBand)
	if skew >= -band && skew <= band {
		return domain.AlertCandidate{}, false
	}

	deviation := math.Abs(skew) - band
	floor := cfg.DetectorThreshold(d.ConfigKey(), "anomaly_floor", skewAnomalyFloor)
	if deviation < floor {
		return domain.AlertCandidate{}, false
	}

	direction := DirectionCallSkew
	if skew > 0 {
		direction = DirectionPutSkew
	}

	base := clamp(deviation/floor*100, 0, 100)

	var mods []modifier
	if nearFibonacciLevel(fs, 0.02) {
		mods = append(mods, modifier{"near_fib_level", 15})
	}
	if fs.Technicals.RSI14 != nil && (*fs.Technicals.RSI14 > 70 || *fs.Technicals.RSI14 < 30) {
		mods = append(mods, modifier{"rsi_extreme", 20})
	}
	if dominantSideVolumeElevated(fs, direction) {
		mods = append(mods, modifier{"dominant_side_volume", 10})
	}

	score, applied := applyModifiers(d.log, d.Name(), base, mods)
	if score < 60 {
		return domain.AlertCandidate{}, false
	}

	confidence := confidenceBand(math.Abs(skew), 0.25, 0.15)

	strategies := []string{"Bull Put Spread"}
	if direction == DirectionPutSkew {
		strategies = []string{"Bear Call Spread"}
	}

	metrics := map[string]any{
		"skew_25d":  skew,
		"direction": direction,
		"deviation": deviation,
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

func nearFibonacciLevel(fs domain.FeatureSet, tolPct float64) bool {
	levels := []*float64{
		fs.Technicals.Fib236, fs.Technicals.Fib382, fs.Technicals.Fib500, fs.Technicals.Fib618,
	}
	for _, lvl := range levels {
		if lvl == nil || *lvl == 0 {
			continue
		}
		if math.Abs(fs.Price-*lvl)/ *lvl <= tolPct {
			return true
		}
	}
	return false
}

// dominantSideVolumeElevated compares the option side matching direction's
// dominant flow against the underlying's 20-day average volume, the only
// average-volume baseline the feature set carries.
func dominantSideVolumeElevated(fs domain.FeatureSet, direction string) bool {
	if fs.Technicals.VolumeSMA20 == nil || *fs.Technicals.VolumeSMA20 <= 0 {
		return false
	}
	var vol *int64
	if direction == DirectionPutSkew {
		vol = fs.OptionsFront.PutVolume
	} else {
		vol = fs.OptionsFront.CallVolume
	}
	if vol == nil {
		return false
	}
	return float64(*vol) > 1.5**fs.Technicals.VolumeSMA20
}
