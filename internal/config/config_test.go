package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsWhenFileAbsent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Scheduler.MaxCallsPerHour != 250 {
		t.Fatalf("expected default max_calls_per_hour=250, got %d", cfg.Scheduler.MaxCallsPerHour)
	}
	if cfg.Scoring.CooldownHours != 24 {
		t.Fatalf("expected default cooldown_hours=24, got %d", cfg.Scoring.CooldownHours)
	}
}

func TestLoadOverridesDefaultsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
risk_free_rate: 0.03
scan:
  symbols: [aapl, msft]
theses:
  AAPL:
    text: "long thesis"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RiskFreeRate != 0.03 {
		t.Fatalf("expected overridden risk_free_rate, got %v", cfg.RiskFreeRate)
	}
	if len(cfg.Symbols) != 2 || cfg.Symbols[0] != "AAPL" {
		t.Fatalf("expected uppercased symbols, got %v", cfg.Symbols)
	}
	text, ok := cfg.ThesisText("aapl")
	if !ok || text != "long thesis" {
		t.Fatalf("expected thesis text lookup case-insensitive, got %q, %v", text, ok)
	}
}

func TestValidateRejectsBadCollectionTime(t *testing.T) {
	cfg := &Config{
		DatabasePath: "data/cache.db",
		Scheduler:    SchedulerConfig{MaxCallsPerHour: 1, MaxCallsPerDay: 1, CollectionTimesET: []string{"25:99"}},
		Scoring:      ScoringConfig{CooldownHours: 1},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for malformed collection time")
	}
}

func TestDetectorEnabledDefaultsTrueWhenUnconfigured(t *testing.T) {
	cfg := &Config{}
	if !cfg.DetectorEnabled("low_iv") {
		t.Fatalf("expected unconfigured detector to default enabled")
	}
}

func TestDetectorThresholdFallsBackToDefault(t *testing.T) {
	cfg := &Config{Detectors: map[string]DetectorConfig{
		"low_iv": {Enabled: true, Thresholds: map[string]float64{"iv_percentile_max": 20}},
	}}
	if got := cfg.DetectorThreshold("low_iv", "iv_percentile_max", 25); got != 20 {
		t.Fatalf("expected configured threshold 20, got %v", got)
	}
	if got := cfg.DetectorThreshold("low_iv", "unset_key", 99); got != 99 {
		t.Fatalf("expected fallback default 99, got %v", got)
	}
}

func TestAccountStateBuildsFromConfiguredPositions(t *testing.T) {
	cfg := &Config{Account: AccountConfig{
		CashAvailable: 1000, MarginAvailable: 2000,
		Positions: []AccountPosition{{Ticker: "AAPL", MarketValue: 500, Quantity: 10}},
	}}
	acct := cfg.AccountState()
	if acct.CashAvailable != 1000 || acct.MarginAvailable != 2000 {
		t.Fatalf("unexpected account totals: %+v", acct)
	}
	if len(acct.Positions) != 1 || acct.Positions[0].Ticker != "AAPL" {
		t.Fatalf("expected one AAPL position, got %+v", acct.Positions)
	}
}
