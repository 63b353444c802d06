package risk

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/config"
	"github.com/sentryscan/sentryscan/internal/domain"
)

func defaultCfg() *config.Config {
	return &config.Config{Risk: config.RiskConfig{
		MaxConcentrationPct: 5,
		MaxMarginUsagePct:   50,
		MinCashBufferPct:    50,
	}}
}

func TestMarginGateRejectsWhenUndercapitalized(t *testing.T) {
	g := New(zerolog.Nop())
	cand := domain.AlertCandidate{Strategies: []string{"Iron Condor"}}
	fs := domain.FeatureSet{Price: 500}
	acct := domain.AccountState{MarginAvailable: 50, CashAvailable: 10000}
	passed, reason := g.Passes(cand, "AAPL", fs, acct, defaultCfg())
	if passed || reason != ReasonMargin {
		t.Fatalf("expected margin gate rejection, got passed=%v reason=%s", passed, reason)
	}
}

func TestCashGateOnlyAppliesToCashSecuredStrategies(t *testing.T) {
	g := New(zerolog.Nop())
	fs := domain.FeatureSet{Price: 100}

	cspAcct := domain.AccountState{MarginAvailable: 1_000_000, CashAvailable: 100}
	cspCand := domain.AlertCandidate{Strategies: []string{"Cash-Secured Put"}}
	passed, reason := g.Passes(cspCand, "AAPL", fs, cspAcct, defaultCfg())
	if passed || reason != ReasonCash {
		t.Fatalf("expected cash gate rejection for CSP, got passed=%v reason=%s", passed, reason)
	}

	ampleAcct := domain.AccountState{MarginAvailable: 1_000_000, CashAvailable: 1_000_000}
	spreadCand := domain.AlertCandidate{Strategies: []string{"Iron Condor"}}
	passed, reason = g.Passes(spreadCand, "AAPL", fs, ampleAcct, defaultCfg())
	if !passed {
		t.Fatalf("expected spread strategy to skip the cash gate, got reason=%s", reason)
	}
}

func TestConcentrationGateRejectsOversizedPosition(t *testing.T) {
	g := New(zerolog.Nop())
	cand := domain.AlertCandidate{Strategies: []string{"Iron Condor"}}
	fs := domain.FeatureSet{Price: 50}
	acct := domain.AccountState{
		MarginAvailable: 1_000_000, CashAvailable: 100,
		Positions: []domain.Position{{Ticker: "AAPL", MarketValue: 4800}},
	}
	passed, reason := g.Passes(cand, "AAPL", fs, acct, defaultCfg())
	if passed || reason != ReasonConcentration {
		t.Fatalf("expected concentration gate rejection, got passed=%v reason=%s", passed, reason)
	}
}

func TestPassesWithAmpleCapacity(t *testing.T) {
	g := New(zerolog.Nop())
	cand := domain.AlertCandidate{Strategies: []string{"Iron Condor"}}
	fs := domain.FeatureSet{Price: 50}
	acct := domain.AccountState{MarginAvailable: 1_000_000, CashAvailable: 1_000_000}
	passed, reason := g.Passes(cand, "AAPL", fs, acct, defaultCfg())
	if !passed {
		t.Fatalf("expected pass with ample capacity, got reason=%s", reason)
	}
}
