package features

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/sentryscan/sentryscan/internal/domain"
)

const (
	tradingDaysPerYear = 252.0
	volExpandEpsilon   = 0.05
)

// computeVolatility fills historical/Parkinson/Garman-Klass vol and the
// expanding/trend classification, following trader-go/pkg/formulas/
// stats.go's gonum-backed StdDev and AnnualizedVolatility shape, generalized
// to multiple windows and range-based estimators.
func computeVolatility(bars []domain.PriceBar) domain.Volatility {
	var v domain.Volatility
	if len(bars) < 21 {
		return v
	}

	closes := closesOf(bars)
	returns := logReturns(closes)

	if len(returns) >= 20 {
		v.HV20 = ptr(annualizedStdDev(returns[len(returns)-20:]))
	}
	if len(returns) >= 60 {
		v.HV60 = ptr(annualizedStdDev(returns[len(returns)-60:]))
	} else if len(returns) > 0 {
		v.HV60 = ptr(annualizedStdDev(returns))
	}

	window := bars
	if len(window) > 20 {
		window = window[len(window)-20:]
	}
	if pk := parkinson(window); !math.IsNaN(pk) {
		v.Parkinson = ptr(pk)
	}
	if gk := garmanKlass(window); !math.IsNaN(gk) {
		v.GarmanKlass = ptr(gk)
	}

	if v.HV20 != nil && v.HV60 != nil && *v.HV60 != 0 {
		ratio := (*v.HV20 - *v.HV60) / *v.HV60
		v.Expanding = ptr2(ratio > volExpandEpsilon)
		switch {
		case ratio > volExpandEpsilon:
			v.Trend = domain.VolIncreasing
		case ratio < -volExpandEpsilon:
			v.Trend = domain.VolDecreasing
		default:
			v.Trend = domain.VolFlat
		}
	}

	return v
}

func logReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		out = append(out, math.Log(closes[i]/closes[i-1]))
	}
	return out
}

func annualizedStdDev(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	return stat.StdDev(returns, nil) * math.Sqrt(tradingDaysPerYear)
}

// parkinson is the range-based volatility estimator using high/low only.
func parkinson(bars []domain.PriceBar) float64 {
	if len(bars) == 0 {
		return math.NaN()
	}
	var sum float64
	n := 0
	for _, b := range bars {
		if b.Low <= 0 || b.High <= 0 {
			continue
		}
		lr := math.Log(b.High / b.Low)
		sum += lr * lr
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	factor := 1.0 / (4.0 * float64(n) * math.Ln2)
	return math.Sqrt(factor*sum) * math.Sqrt(tradingDaysPerYear)
}

// garmanKlass is the OHLC-based volatility estimator.
func garmanKlass(bars []domain.PriceBar) float64 {
	if len(bars) == 0 {
		return math.NaN()
	}
	var sum float64
	n := 0
	for _, b := range bars {
		if b.Low <= 0 || b.High <= 0 || b.Open <= 0 || b.Close <= 0 {
			continue
		}
		hl := math.Log(b.High / b.Low)
		co := math.Log(b.Close / b.Open)
		sum += 0.5*hl*hl - (2*math.Ln2-1)*co*co
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	variance := sum / float64(n)
	if variance < 0 {
		return math.NaN()
	}
	return math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)
}

func ptr2(v bool) *bool { return &v }
