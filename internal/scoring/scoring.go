// Package scoring applies portfolio-aware adjustments to a detector's raw
// candidate score. Grounded on trader-go's internal/modules/scoring/scorers
// package: every adjustment is a small named function returning a bounded
// delta, combined by a single caller that clamps the total and logs each
// step, mirroring scorers/longterm.go and scorers/opportunity.go.
package scoring

import (
	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/config"
	"github.com/sentryscan/sentryscan/internal/domain"
)

// Scorer applies score_alert adjustments against the current configuration.
type Scorer struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Scorer {
	return &Scorer{log: log.With().Str("component", "scorer").Logger()}
}

// Score adjusts candidate's raw score for ticker given its feature set,
// applying bonuses and penalties in spec order and clamping to [0,100].
// A read that cannot be evaluated (absent feature data) is skipped
// silently rather than treated as a zero or a failure.
func (s *Scorer) Score(candidate domain.AlertCandidate, ticker string, fs domain.FeatureSet, cfg *config.Config) float64 {
	score := candidate.Score
	log := s.log.With().Str("ticker", ticker).Str("detector", candidate.DetectorName).Logger()

	if _, ok := cfg.ThesisText(ticker); ok {
		score += 20
		log.Debug().Str("adjustment", "thesis_bonus").Float64("delta", 20).Msg("score adjustment")
	}

	minVolume := cfg.Scoring.MinOptionVolume
	maxSpread := cfg.Scoring.MaxSpreadPct
	if fs.Liquidity.SpreadPct != nil && fs.Liquidity.ATMVolume != nil {
		if *fs.Liquidity.SpreadPct > maxSpread || *fs.Liquidity.ATMVolume < minVolume {
			score -= 15
			log.Debug().Str("adjustment", "liquidity_penalty").Float64("delta", -15).Msg("score adjustment")
		}
	}

	penaltyWindow := cfg.Scoring.EarningsPenaltyDays
	if fs.Earnings.DaysToEarnings != nil {
		days := *fs.Earnings.DaysToEarnings
		if days >= 0 && days <= penaltyWindow {
			score -= 10
			log.Debug().Str("adjustment", "earnings_penalty").Float64("delta", -10).Msg("score adjustment")
		}
	}

	if fs.Technicals.MACDHistogram != nil && *fs.Technicals.MACDHistogram > 0 {
		score += 10
		log.Debug().Str("adjustment", "technical_bonus").Float64("delta", 10).Msg("score adjustment")
	}

	if fs.Volatility.Trend == domain.VolIncreasing {
		score += 5
		log.Debug().Str("adjustment", "volatility_bonus").Float64("delta", 5).Msg("score adjustment")
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
