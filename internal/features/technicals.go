package features

import (
	"math"

	"github.com/markcheno/go-talib"

	"github.com/sentryscan/sentryscan/internal/domain"
)

// computeTechnicals fills the SMA/EMA/RSI/MACD/Fibonacci/volume group.
// Following trader-go/pkg/formulas/rsi.go's pattern of feeding go-talib the
// full series and taking the last non-NaN value, absent when history is too
// short.
func computeTechnicals(bars []domain.PriceBar) domain.Technicals {
	var t domain.Technicals
	if len(bars) < 20 {
		return t
	}

	closes := closesOf(bars)
	volumes := volumesOf(bars)

	t.SMA20 = lastValid(talib.Sma(closes, 20))
	if len(bars) >= 50 {
		t.SMA50 = lastValid(talib.Sma(closes, 50))
	}
	if len(bars) >= 200 {
		t.SMA200 = lastValid(talib.Sma(closes, 200))
	}
	t.EMA9 = lastValid(talib.Ema(closes, 9))
	t.EMA21 = lastValid(talib.Ema(closes, 21))
	if len(bars) >= 15 {
		t.RSI14 = lastValid(talib.Rsi(closes, 14))
	}

	if len(bars) >= 35 {
		macd, signal, hist := talib.Macd(closes, 12, 26, 9)
		t.MACD = lastValid(macd)
		t.MACDSignal = lastValid(signal)
		t.MACDHistogram = lastValid(hist)
	}

	window := bars
	if len(window) > 60 {
		window = window[len(window)-60:]
	}
	hi, lo := highLowOf(window)
	t.FibHigh = ptr(hi)
	t.FibLow = ptr(lo)
	rng := hi - lo
	t.Fib236 = ptr(hi - 0.236*rng)
	t.Fib382 = ptr(hi - 0.382*rng)
	t.Fib500 = ptr(hi - 0.5*rng)
	t.Fib618 = ptr(hi - 0.618*rng)

	volWindow := volumes
	if len(volWindow) > 20 {
		volWindow = volWindow[len(volWindow)-20:]
	}
	t.VolumeSMA20 = ptr(mean(volWindow))
	t.CurrentVolume = ptr(volumes[len(volumes)-1])

	last20 := bars[len(bars)-20:]
	var supportLow, resistHigh float64
	supportLow = last20[0].Low
	resistHigh = last20[0].High
	for _, b := range last20[1:] {
		supportLow = math.Min(supportLow, b.Low)
		resistHigh = math.Max(resistHigh, b.High)
	}
	t.Support20d = ptr(supportLow)
	t.Resistance20d = ptr(resistHigh)

	return t
}

func lastValid(series []float64) *float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			v := series[i]
			return &v
		}
	}
	return nil
}

func closesOf(bars []domain.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func volumesOf(bars []domain.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = float64(b.Volume)
	}
	return out
}

func highLowOf(bars []domain.PriceBar) (float64, float64) {
	hi, lo := bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		hi = math.Max(hi, b.High)
		lo = math.Min(lo, b.Low)
	}
	return hi, lo
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func ptr(v float64) *float64 { return &v }
