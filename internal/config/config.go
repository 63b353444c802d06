// Package config loads sentryscan's configuration from layered sources —
// environment variables, a .env file, config.yaml, and built-in defaults —
// following the same layering SAbdulRahuman-opense-ai-agents wires with
// Viper, adapted to this module's keys.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sentryscan/sentryscan/internal/domain"
	"github.com/sentryscan/sentryscan/internal/errs"
)

// DetectorConfig holds one detector's enable flag and threshold overrides.
type DetectorConfig struct {
	Enabled    bool               `mapstructure:"enabled"`
	Thresholds map[string]float64 `mapstructure:"thresholds"`
}

// SchedulerConfig holds C13's tunables.
type SchedulerConfig struct {
	CollectionTimesET []string `mapstructure:"collection_times_et"`
	MaxCallsPerHour   int      `mapstructure:"max_calls_per_hour"`
	MaxCallsPerDay    int      `mapstructure:"max_calls_per_day"`
	FlushThreshold    int      `mapstructure:"flush_threshold"`
	CheckIntervalSec  int      `mapstructure:"check_interval_sec"`
	BaseInterTickerDelayMS int `mapstructure:"base_inter_ticker_delay_ms"`
	ShutdownGraceSec  int      `mapstructure:"shutdown_grace_sec"`
	Fanout            int      `mapstructure:"fanout"`
}

// RiskConfig holds C9's tunables.
type RiskConfig struct {
	MaxConcentrationPct float64 `mapstructure:"max_concentration_pct"`
	MaxMarginUsagePct   float64 `mapstructure:"max_margin_usage_pct"`
	MinCashBufferPct    float64 `mapstructure:"min_cash_buffer_pct"`
}

// ScoringConfig holds C8/C10's tunables.
type ScoringConfig struct {
	CooldownHours       int     `mapstructure:"cooldown_hours"`
	MaxAlertsPerDay     int     `mapstructure:"max_alerts_per_day"`
	MinOptionVolume     int64   `mapstructure:"min_option_volume"`
	MaxSpreadPct        float64 `mapstructure:"max_spread_pct"`
	EarningsPenaltyDays int     `mapstructure:"earnings_penalty_days"`
}

// Thesis is a ticker's free-form investment thesis text.
type Thesis struct {
	Text string `mapstructure:"text"`
}

// AccountPosition mirrors domain.Position as a configuration entry.
type AccountPosition struct {
	Ticker      string  `mapstructure:"ticker"`
	MarketValue float64 `mapstructure:"market_value"`
	Quantity    float64 `mapstructure:"quantity"`
}

// AccountConfig holds C9's account state, loaded from configuration per
// spec.md §3 ("Loaded from configuration; treated as immutable within a
// single scan invocation").
type AccountConfig struct {
	CashAvailable   float64           `mapstructure:"cash_available"`
	MarginAvailable float64           `mapstructure:"margin_available"`
	Positions       []AccountPosition `mapstructure:"positions"`
}

// Config is sentryscan's fully merged configuration.
type Config struct {
	DemoMode   bool   `mapstructure:"demo_mode"`
	BackendURL string `mapstructure:"backend_url"`
	LogLevel   string `mapstructure:"log_level"`

	RiskFreeRate             float64 `mapstructure:"risk_free_rate"`
	CacheTTLMinutes          int     `mapstructure:"cache_ttl_minutes"`
	IntradayCacheTTLMinutes  int     `mapstructure:"intraday_cache_ttl_minutes"`

	DatabasePath    string `mapstructure:"database_path"`
	ExportDir       string `mapstructure:"export_dir"`
	HistoricalDir   string `mapstructure:"historical_data_dir"`
	HolidaysFile    string `mapstructure:"holidays_file"`

	Symbols []string `mapstructure:"-"`

	Scheduler  SchedulerConfig            `mapstructure:"scheduler"`
	Risk       RiskConfig                 `mapstructure:"risk"`
	Scoring    ScoringConfig              `mapstructure:"scoring"`
	Account    AccountConfig              `mapstructure:"account"`
	Detectors  map[string]DetectorConfig  `mapstructure:"detectors"`
	Theses     map[string]Thesis          `mapstructure:"theses"`

	// ConfigHash is computed after load, not read from any layer.
	ConfigHash string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("demo_mode", true)
	v.SetDefault("backend_url", "")
	v.SetDefault("log_level", "INFO")
	v.SetDefault("risk_free_rate", 0.05)
	v.SetDefault("cache_ttl_minutes", 60)
	v.SetDefault("intraday_cache_ttl_minutes", 1)
	v.SetDefault("database_path", "data/cache.db")
	v.SetDefault("export_dir", "data/exports")
	v.SetDefault("historical_data_dir", "historical_data")
	v.SetDefault("holidays_file", "configs/holidays_us.yaml")

	v.SetDefault("scheduler.collection_times_et", []string{"16:15"})
	v.SetDefault("scheduler.max_calls_per_hour", 250)
	v.SetDefault("scheduler.max_calls_per_day", 2000)
	v.SetDefault("scheduler.flush_threshold", 50)
	v.SetDefault("scheduler.check_interval_sec", 10)
	v.SetDefault("scheduler.base_inter_ticker_delay_ms", 100)
	v.SetDefault("scheduler.shutdown_grace_sec", 10)
	v.SetDefault("scheduler.fanout", 8)

	v.SetDefault("risk.max_concentration_pct", 5.0)
	v.SetDefault("risk.max_margin_usage_pct", 50.0)
	v.SetDefault("risk.min_cash_buffer_pct", 50.0)

	v.SetDefault("scoring.cooldown_hours", 24)
	v.SetDefault("scoring.max_alerts_per_day", 5)
	v.SetDefault("scoring.min_option_volume", 50)
	v.SetDefault("scoring.max_spread_pct", 3.0)
	v.SetDefault("scoring.earnings_penalty_days", 3)

	v.SetDefault("account.cash_available", 50000.0)
	v.SetDefault("account.margin_available", 100000.0)
}

// Load reads configuration from, in increasing precedence: built-in
// defaults, config.yaml, a .env file, and environment variables.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		configPath = "config.yaml"
	}
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	var mtimes []string
	if info, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: reading %s: %v", errs.ConfigInvalid, configPath, err)
		}
		mtimes = append(mtimes, fmt.Sprintf("%s:%d", configPath, info.ModTime().UnixNano()))
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", errs.ConfigInvalid, err)
	}

	cfg.Symbols = loadWatchlist(v, configPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.ConfigHash = computeHash(v.AllSettings(), mtimes)
	return cfg, nil
}

// loadWatchlist resolves scan.symbols, watchlist, or a newline-delimited
// watchlist.txt sitting next to the config file, in that precedence.
func loadWatchlist(v *viper.Viper, configPath string) []string {
	if syms := v.GetStringSlice("scan.symbols"); len(syms) > 0 {
		return upperAll(syms)
	}
	if syms := v.GetStringSlice("watchlist"); len(syms) > 0 {
		return upperAll(syms)
	}

	dir := filepath.Dir(configPath)
	path := filepath.Join(dir, "watchlist.txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, strings.ToUpper(line))
	}
	return out
}

func upperAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return out
}

// Validate checks required configuration invariants.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("%w: database_path is required", errs.ConfigInvalid)
	}
	if c.Scheduler.MaxCallsPerHour <= 0 || c.Scheduler.MaxCallsPerDay <= 0 {
		return fmt.Errorf("%w: scheduler call budgets must be positive", errs.ConfigInvalid)
	}
	if c.Scoring.CooldownHours <= 0 {
		return fmt.Errorf("%w: scoring.cooldown_hours must be positive", errs.ConfigInvalid)
	}
	for _, t := range c.Scheduler.CollectionTimesET {
		if _, err := time.Parse("15:04", t); err != nil {
			return fmt.Errorf("%w: invalid collection time %q: %v", errs.ConfigInvalid, t, err)
		}
	}
	return nil
}

// computeHash is a stable hash of the fully merged config plus the mtimes of
// any files it was loaded from, stored on every scan row.
func computeHash(settings map[string]any, fileStamps []string) string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%v;", k, settings[k])
	}
	sort.Strings(fileStamps)
	for _, s := range fileStamps {
		fmt.Fprintf(h, "%s;", s)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// DetectorEnabled reports whether a named detector is enabled (default true
// when unconfigured).
func (c *Config) DetectorEnabled(name string) bool {
	d, ok := c.Detectors[name]
	if !ok {
		return true
	}
	return d.Enabled
}

// DetectorThreshold reads a named detector's threshold override, falling
// back to def when absent.
func (c *Config) DetectorThreshold(name, key string, def float64) float64 {
	d, ok := c.Detectors[name]
	if !ok {
		return def
	}
	v, ok := d.Thresholds[key]
	if !ok {
		return def
	}
	return v
}

// ThesisText returns the free-form thesis text configured for ticker, if any.
// The lookup ignores case: viper lowercases map keys read from YAML.
func (c *Config) ThesisText(ticker string) (string, bool) {
	for k, t := range c.Theses {
		if strings.EqualFold(k, ticker) && t.Text != "" {
			return t.Text, true
		}
	}
	return "", false
}

// AccountState builds the risk gate's immutable account snapshot from the
// loaded account configuration.
func (c *Config) AccountState() domain.AccountState {
	positions := make([]domain.Position, 0, len(c.Account.Positions))
	for _, p := range c.Account.Positions {
		positions = append(positions, domain.Position{
			Ticker: p.Ticker, MarketValue: p.MarketValue, Quantity: p.Quantity,
		})
	}
	return domain.AccountState{
		CashAvailable:   c.Account.CashAvailable,
		MarginAvailable: c.Account.MarginAvailable,
		Positions:       positions,
	}
}
