// Package risk gates a scored alert candidate against account capacity
// before it is allowed to persist. Grounded on trader-go's
// internal/modules/sequences/filters package: a filter returns
// (passed bool, reason string) rather than an error, and every decision is
// logged at the call site with its full input set — see filters/base.go.
package risk

import (
	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/config"
	"github.com/sentryscan/sentryscan/internal/domain"
)

// Reason codes for a rejected candidate.
const (
	ReasonMargin        = "margin_gate"
	ReasonCash          = "cash_gate"
	ReasonConcentration = "concentration_gate"
)

// cashSecuredStrategies are the strategy labels the cash gate applies to.
// "CSP" is rich_premium_detector's label; "Cash-Secured Put" is
// regime_shift_detector's — both name the same cash-backed put-sale
// strategy, so both are gated.
var cashSecuredStrategies = map[string]bool{
	"CSP":              true,
	"Cash-Secured Put": true,
	"Wheel":            true,
}

// marginFactor is the documented heuristic fraction of one contract's
// 100-share notional value that a strategy ties up as margin. Defined-risk
// spreads post a fraction of the underlying's value roughly matching a
// modest spread width; undefined-risk or cash-backed strategies post more.
// Implementers may substitute a precise per-broker margin model provided
// it stays deterministic given the same inputs.
func marginFactor(strategy string) float64 {
	switch strategy {
	case "CSP", "Cash-Secured Put", "Wheel", "Covered Call":
		return 0.20
	default:
		return 0.10
	}
}

// Gate evaluates a scored candidate against acct and returns (passed,
// reason). reason is empty when passed is true.
type Gate struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Gate {
	return &Gate{log: log.With().Str("component", "risk_gate").Logger()}
}

// Passes runs the margin, cash, and concentration gates in order. The
// margin gate sizes against the candidate's first-listed strategy (the
// representative one detectors emit their strategies in priority order
// for); the cash gate applies when any listed strategy is cash-secured.
func (g *Gate) Passes(candidate domain.AlertCandidate, ticker string, fs domain.FeatureSet, acct domain.AccountState, cfg *config.Config) (bool, string) {
	strategy := ""
	if len(candidate.Strategies) > 0 {
		strategy = candidate.Strategies[0]
	}
	notional := 100 * fs.Price
	requiredMargin := marginFactor(strategy) * notional

	log := g.log.With().Str("ticker", ticker).Str("detector", candidate.DetectorName).
		Str("strategy", strategy).Float64("notional", notional).Logger()

	marginThreshold := cfg.Risk.MaxMarginUsagePct / 100
	if acct.MarginAvailable > 0 && requiredMargin >= marginThreshold*acct.MarginAvailable {
		log.Info().Float64("required_margin", requiredMargin).Float64("margin_available", acct.MarginAvailable).
			Str("reason", ReasonMargin).Msg("risk gate rejected candidate")
		return false, ReasonMargin
	}

	if anyCashSecured(candidate.Strategies) {
		requiredCash := notional
		cashThreshold := cfg.Risk.MinCashBufferPct / 100
		if acct.CashAvailable > 0 && requiredCash >= cashThreshold*acct.CashAvailable {
			log.Info().Float64("required_cash", requiredCash).Float64("cash_available", acct.CashAvailable).
				Str("reason", ReasonCash).Msg("risk gate rejected candidate")
			return false, ReasonCash
		}
	}

	portfolioTotal := acct.PortfolioTotal()
	if portfolioTotal > 0 {
		current := acct.PositionValue(ticker)
		concentration := (current + notional) / portfolioTotal * 100
		if concentration > cfg.Risk.MaxConcentrationPct {
			log.Info().Float64("concentration_pct", concentration).
				Str("reason", ReasonConcentration).Msg("risk gate rejected candidate")
			return false, ReasonConcentration
		}
	}

	log.Info().Msg("risk gate passed candidate")
	return true, ""
}

func anyCashSecured(strategies []string) bool {
	for _, s := range strategies {
		if cashSecuredStrategies[s] {
			return true
		}
	}
	return false
}
