package detectors

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/config"
	"github.com/sentryscan/sentryscan/internal/domain"
)

// TermKindBackwardation and TermKindSteepContango are the two shapes
// TermKinkDetector distinguishes.
const (
	TermKindBackwardation = "BACKWARDATION"
	TermKindSteepContango = "STEEP_CONTANGO"
)

// kinkDeviationUnit is the fraction-of-bound deviation that, doubled, maps
// to a base score of 100.
const kinkDeviationUnit = 0.05

// TermKinkDetector flags a front/back ATM IV ratio outside the normal
// contango band.
type TermKinkDetector struct {
	log zerolog.Logger
}

func NewTermKinkDetector(log zerolog.Logger) *TermKinkDetector { return &TermKinkDetector{log: log} }

func (d *TermKinkDetector) Name() string        { return "TermKink" }
func (d *TermKinkDetector) ConfigKey() string   { return "term_kink" }
func (d *TermKinkDetector) Description() string { return "front/back implied-vol term structure outside its normal band" }

func (d *TermKinkDetector) Detect(fs domain.FeatureSet, cfg *config.Config) (domain.AlertCandidate, bool) {
	if fs.OptionsFront.ATMIV == nil || fs.OptionsBack.ATMIV == nil {
		return domain.AlertCandidate{}, false
	}
	front, back := *fs.OptionsFront.ATMIV, *fs.OptionsBack.ATMIV
	if front == 0 || back == 0 {
		return domain.AlertCandidate{}, false
	}

	r := back / front
	min := cfg.DetectorThreshold(d.ConfigKey(), "normal_contango_min", 0.98)
	max := cfg.DetectorThreshold(d.ConfigKey(), "normal_contango_max", 1.15)
	if r >= min && r <= max {
		return domain.AlertCandidate{}, false
	}

	var kind string
	var deviation float64
	if r < min {
		kind = TermKindBackwardation
		deviation = (min - r) / min
	} else {
		kind = TermKindSteepContango
		deviation = (r - max) / max
	}

	base := clamp(deviation/(2*kinkDeviationUnit)*100, 0, 100)

	var mods []modifier
	if kind == TermKindBackwardation && fs.IVMetrics.IVPercentile != nil && *fs.IVMetrics.IVPercentile < 30 {
		mods = append(mods, modifier{"low_iv_backwardation", -20})
	}
	if fs.OptionsFront.OpenInterest != nil && fs.OptionsBack.OpenInterest != nil && *fs.OptionsBack.OpenInterest > 0 {
		if float64(*fs.OptionsFront.OpenInterest) > 1.5*float64(*fs.OptionsBack.OpenInterest) {
			mods = append(mods, modifier{"front_oi_dominant", 15})
		}
	}
	if fs.OptionsFront.Skew25Delta != nil && math.Abs(*fs.OptionsFront.Skew25Delta) > 0.15 {
		mods = append(mods, modifier{"elevated_skew", 10})
	}

	score, applied := applyModifiers(d.log, d.Name(), base, mods)
	if score < 60 {
		return domain.AlertCandidate{}, false
	}

	confidence := confidenceBand(deviation, 0.20, 0.10)

	metrics := map[string]any{
		"kind":           kind,
		"ratio":          r,
		"deviation":      deviation,
		"base_score":     base,
		"modifiers":      applied,
		"front_atm_iv":   front,
		"back_atm_iv":    back,
	}

	return domain.AlertCandidate{
		DetectorName: d.Name(),
		Score:        score,
		Metrics:      metrics,
		Strategies:   []string{"Calendar Spread"},
		Confidence:   confidence,
	}, true
}
