// Package explain turns a scored AlertCandidate into a human-readable
// explanation dictionary. Grounded on the original Python's
// functions/explain/template_explain.py: deterministic, template-based, no
// LLM call, dispatch by detector name to a dedicated builder, and missing
// metrics omit the corresponding sentence rather than emitting a filler
// placeholder. Built fresh since the original file's body was distilled out
// of the retrieval pack (only its module docstring survives), following the
// teacher's own string-building style (fmt.Sprintf, not text/template).
package explain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/domain"
)

// Generator dispatches by detector name to a per-detector template.
type Generator struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) *Generator {
	return &Generator{log: log.With().Str("component", "explain").Logger()}
}

// Generate returns an explanation dictionary for candidate. Unknown
// detectors fall back to a generic template filled from Metrics.
func (g *Generator) Generate(candidate domain.AlertCandidate, ticker string, fs domain.FeatureSet) map[string]string {
	var out map[string]string
	switch candidate.DetectorName {
	case "LowIV":
		out = explainLowIV(candidate, ticker, fs)
	case "RichPremium":
		out = explainRichPremium(candidate, ticker, fs)
	case "EarningsCrush":
		out = explainEarningsCrush(candidate, ticker, fs)
	case "TermKink":
		out = explainTermKink(candidate, ticker, fs)
	case "SkewAnomaly":
		out = explainSkewAnomaly(candidate, ticker, fs)
	case "RegimeShift":
		out = explainRegimeShift(candidate, ticker, fs)
	default:
		out = explainGeneric(candidate, ticker)
	}

	// Preserve anything a detector already attached (e.g. EarningsCrush's
	// severity-banded warning) rather than overwrite it.
	for k, v := range candidate.Explanation {
		if _, exists := out[k]; !exists {
			out[k] = v
		}
	}
	return out
}

func getFloat(metrics map[string]any, key string) (float64, bool) {
	v, ok := metrics[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func getInt(metrics map[string]any, key string) (int, bool) {
	v, ok := metrics[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}

func getString(metrics map[string]any, key string) (string, bool) {
	v, ok := metrics[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func explainLowIV(c domain.AlertCandidate, ticker string, fs domain.FeatureSet) map[string]string {
	out := map[string]string{
		"summary": fmt.Sprintf("%s implied volatility is unusually cheap relative to its own history", ticker),
		"trigger": "front-month implied vol in a low historical percentile",
		"opportunity": "premium-buying strategies benefit from an eventual expansion back toward normal levels",
	}
	if pct, ok := getFloat(c.Metrics, "iv_percentile"); ok {
		out["reason"] = fmt.Sprintf("implied vol sits at the %.0fth percentile of its trailing history", pct)
	}
	if fs.Technicals.RSI14 != nil && *fs.Technicals.RSI14 < 30 {
		out["risk_factors"] = "RSI is oversold, a falling-knife continuation would erode the thesis"
	}
	return out
}

func explainRichPremium(c domain.AlertCandidate, ticker string, fs domain.FeatureSet) map[string]string {
	out := map[string]string{
		"summary":     fmt.Sprintf("%s implied volatility is richly priced relative to its own history", ticker),
		"trigger":     "front-month implied vol in a high historical percentile",
		"opportunity": "premium-selling strategies collect an above-average credit for the risk taken",
	}
	if pct, ok := getFloat(c.Metrics, "iv_percentile"); ok {
		out["reason"] = fmt.Sprintf("implied vol sits at the %.0fth percentile of its trailing history", pct)
	}
	if fs.Liquidity.SpreadPct != nil && *fs.Liquidity.SpreadPct > 3 {
		out["risk_factors"] = "the ATM bid/ask spread is wide, fills may be worse than mid"
	}
	return out
}

func explainEarningsCrush(c domain.AlertCandidate, ticker string, fs domain.FeatureSet) map[string]string {
	out := map[string]string{
		"summary": fmt.Sprintf("%s has an imminent earnings print with richly priced implied vol", ticker),
		"trigger": "implied vol elevated ahead of a near-term earnings date",
		"opportunity": "the expected post-earnings IV collapse favors defined-risk premium selling",
	}
	if days, ok := getInt(c.Metrics, "days_to_earnings"); ok {
		out["timeframe"] = fmt.Sprintf("%d day(s) to the print", days)
		out["reason"] = fmt.Sprintf("earnings in %d day(s) with implied vol still elevated", days)
	}
	if fs.Earnings.Week52HighPct != nil && *fs.Earnings.Week52HighPct >= 0.95 {
		out["risk_factors"] = "price is already extended near its 52-week high going into the print"
	}
	return out
}

func explainTermKink(c domain.AlertCandidate, ticker string, fs domain.FeatureSet) map[string]string {
	kind, _ := getString(c.Metrics, "kind")
	out := map[string]string{
		"summary": fmt.Sprintf("%s's implied-vol term structure is kinked out of its normal contango band", ticker),
		"trigger": "front/back ATM IV ratio outside the configured normal range",
	}
	switch kind {
	case "BACKWARDATION":
		out["directional_implication"] = "near-term vol is priced above far-term vol, often signaling acute near-term stress"
	case "STEEP_CONTANGO":
		out["directional_implication"] = "far-term vol is priced well above near-term vol, a calendar-friendly setup"
	}
	if ratio, ok := getFloat(c.Metrics, "ratio"); ok {
		out["reason"] = fmt.Sprintf("back/front ATM IV ratio is %.3f", ratio)
	}
	out["opportunity"] = "a calendar spread captures the term-structure dislocation"
	return out
}

func explainSkewAnomaly(c domain.AlertCandidate, ticker string, fs domain.FeatureSet) map[string]string {
	direction, _ := getString(c.Metrics, "direction")
	out := map[string]string{
		"summary": fmt.Sprintf("%s's 25-delta option skew has moved well outside its normal band", ticker),
		"trigger": "25-delta put/call skew beyond the configured anomaly threshold",
	}
	switch direction {
	case "PUT_SKEW":
		out["directional_implication"] = "put demand is elevated relative to calls, consistent with hedging or bearish positioning"
	case "CALL_SKEW":
		out["directional_implication"] = "call demand is elevated relative to puts, consistent with bullish speculation"
	}
	if skew, ok := getFloat(c.Metrics, "skew_25d"); ok {
		out["reason"] = fmt.Sprintf("25-delta skew reads %.3f", skew)
	}
	return out
}

func explainRegimeShift(c domain.AlertCandidate, ticker string, fs domain.FeatureSet) map[string]string {
	regime, _ := getString(c.Metrics, "regime")
	out := map[string]string{
		"summary": fmt.Sprintf("%s's moving averages point to a developing regime shift", ticker),
		"trigger": "a moving-average crossover setup or a support bounce off the 50-day average",
	}
	switch regime {
	case "GOLDEN_CROSS_SETUP":
		out["directional_implication"] = "a bullish golden cross is setting up"
	case "DEATH_CROSS_SETUP":
		out["directional_implication"] = "a bearish death cross is setting up"
	case "SUPPORT_BOUNCE":
		out["directional_implication"] = "price is holding its 50-day support"
	}
	if fs.Technicals.MACDHistogram != nil {
		out["reason"] = fmt.Sprintf("MACD histogram reads %.3f", *fs.Technicals.MACDHistogram)
	}
	return out
}

func explainGeneric(c domain.AlertCandidate, ticker string) map[string]string {
	out := map[string]string{
		"summary": fmt.Sprintf("%s triggered the %s detector", ticker, c.DetectorName),
		"trigger": c.DetectorName,
	}
	if len(c.Metrics) == 0 {
		return out
	}
	keys := make([]string, 0, len(c.Metrics))
	for k := range c.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, c.Metrics[k]))
	}
	out["reason"] = strings.Join(parts, ", ")
	return out
}
