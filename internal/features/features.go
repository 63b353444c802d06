// Package features turns a raw MarketSnapshot into the derived FeatureSet
// the detectors score against: technicals (go-talib), historical and
// range-based volatility (gonum/stat), implied-vol metrics, options-side
// aggregates, earnings timing, and liquidity. Compute is a pure function of
// its arguments; it never reaches into the cache, the provider, or the
// store. Any numeric subfield that can't be computed — short history, a
// missing chain, a division by zero, a NaN/Inf result — is left absent
// rather than raising, per spec's edge policy.
package features

import (
	"math"
	"time"

	"github.com/sentryscan/sentryscan/internal/domain"
)

const minHistoryBars = 20

// Compute derives ticker's FeatureSet from snapshot. ivHistory is the
// ticker's trailing front-month ATM IV observations (ascending by date, not
// including snapshot's own reading); pass nil when no history exists yet.
// loc anchors the days-to-earnings calendar-day arithmetic to ET.
func Compute(snapshot domain.MarketSnapshot, configHash string, ivHistory []float64, riskFreeRate float64, loc *time.Location) domain.FeatureSet {
	fs := domain.FeatureSet{
		Ticker:    snapshot.Ticker,
		Timestamp: snapshot.Timestamp,
		Price:     snapshot.SpotPrice,
	}

	if snapshot.SpotPrice <= 0 || len(snapshot.PriceHistory) < minHistoryBars {
		return fs
	}

	fs.Technicals = computeTechnicals(snapshot.PriceHistory)
	fs.Volatility = computeVolatility(snapshot.PriceHistory)

	front, back, haveChains := frontBackChains(snapshot.OptionsChains, snapshot.Timestamp)
	if haveChains {
		fs.OptionsFront = sideMetrics(front, snapshot.SpotPrice)
		if back != nil {
			fs.OptionsBack = sideMetrics(back, snapshot.SpotPrice)
		}
		fs.IVMetrics = computeIVMetrics(fs.OptionsFront.ATMIV, fs.OptionsBack.ATMIV, fs.Volatility.HV20, ivHistory)
		if skew, ok := skew25Delta(*front, snapshot.SpotPrice, riskFreeRate); ok {
			fs.OptionsFront.Skew25Delta = ptr(skew)
		}
		fs.Liquidity = computeLiquidity(front, snapshot.SpotPrice)
	}

	fs.Earnings = computeEarnings(snapshot.TickerInfo, snapshot.SpotPrice, snapshot.Timestamp, loc)

	sanitize(&fs)
	return fs
}

// sanitize coerces any NaN/Inf subfield to absent before serialization, per
// spec's edge policy: native JSON types only, no vendor numeric sentinels.
func sanitize(fs *domain.FeatureSet) {
	for _, p := range []**float64{
		&fs.Technicals.SMA20, &fs.Technicals.SMA50, &fs.Technicals.SMA200,
		&fs.Technicals.EMA9, &fs.Technicals.EMA21, &fs.Technicals.RSI14,
		&fs.Technicals.MACD, &fs.Technicals.MACDSignal, &fs.Technicals.MACDHistogram,
		&fs.Technicals.FibHigh, &fs.Technicals.FibLow, &fs.Technicals.Fib236,
		&fs.Technicals.Fib382, &fs.Technicals.Fib500, &fs.Technicals.Fib618,
		&fs.Technicals.VolumeSMA20, &fs.Technicals.CurrentVolume,
		&fs.Technicals.Support20d, &fs.Technicals.Resistance20d,
		&fs.Volatility.HV20, &fs.Volatility.HV60, &fs.Volatility.Parkinson, &fs.Volatility.GarmanKlass,
		&fs.IVMetrics.IVPercentile, &fs.IVMetrics.IVRank, &fs.IVMetrics.TermStructureRatio, &fs.IVMetrics.IVvsHV,
		&fs.OptionsFront.ATMIV, &fs.OptionsFront.Skew25Delta,
		&fs.OptionsBack.ATMIV, &fs.OptionsBack.Skew25Delta,
		&fs.Liquidity.SpreadPct,
		&fs.Earnings.Week52High, &fs.Earnings.Week52HighPct,
	} {
		clearIfInvalid(p)
	}
}

func clearIfInvalid(p **float64) {
	if *p == nil {
		return
	}
	if math.IsNaN(**p) || math.IsInf(**p, 0) {
		*p = nil
	}
}
