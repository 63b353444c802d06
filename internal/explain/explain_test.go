package explain

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/domain"
)

func TestExplainLowIVOmitsRiskFactorsWhenAbsent(t *testing.T) {
	g := New(zerolog.Nop())
	cand := domain.AlertCandidate{
		DetectorName: "LowIV",
		Metrics:      map[string]any{"iv_percentile": 5.0},
	}
	out := g.Generate(cand, "TEST1", domain.FeatureSet{})
	if out["summary"] == "" || out["trigger"] == "" || out["reason"] == "" {
		t.Fatalf("expected summary/trigger/reason populated, got %+v", out)
	}
	if _, ok := out["risk_factors"]; ok {
		t.Fatalf("expected no risk_factors sentence without an oversold RSI, got %+v", out)
	}
}

func TestExplainEarningsCrushPreservesDetectorWarning(t *testing.T) {
	g := New(zerolog.Nop())
	days := 2
	cand := domain.AlertCandidate{
		DetectorName: "EarningsCrush",
		Metrics:      map[string]any{"days_to_earnings": days},
		Explanation:  map[string]string{"warning": "CRITICAL: earnings within 3 days"},
	}
	out := g.Generate(cand, "TEST2", domain.FeatureSet{})
	if out["warning"] != "CRITICAL: earnings within 3 days" {
		t.Fatalf("expected detector warning preserved, got %+v", out)
	}
	if out["timeframe"] == "" {
		t.Fatalf("expected timeframe populated")
	}
}

func TestExplainTermKinkDirectionByKind(t *testing.T) {
	g := New(zerolog.Nop())
	cand := domain.AlertCandidate{
		DetectorName: "TermKink",
		Metrics:      map[string]any{"kind": "BACKWARDATION", "ratio": 0.875},
	}
	out := g.Generate(cand, "TEST3", domain.FeatureSet{})
	if out["directional_implication"] == "" {
		t.Fatalf("expected a directional implication for BACKWARDATION")
	}
}

func TestExplainUnknownDetectorFallsBackToGeneric(t *testing.T) {
	g := New(zerolog.Nop())
	cand := domain.AlertCandidate{
		DetectorName: "SomeFutureDetector",
		Metrics:      map[string]any{"x": 1.0},
	}
	out := g.Generate(cand, "TEST4", domain.FeatureSet{})
	if out["trigger"] != "SomeFutureDetector" {
		t.Fatalf("expected generic trigger fallback, got %+v", out)
	}
	if out["reason"] == "" {
		t.Fatalf("expected reason built from metrics")
	}
}
