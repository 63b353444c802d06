package features

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// blackScholesD1D2 returns the d1/d2 terms shared by every Black-Scholes
// Greek, for a call or put struck at k on an underlying at spot, iv years
// to expiry, and risk-free rate r.
func blackScholesD1D2(spot, k, iv, years, r float64) (float64, float64) {
	if iv <= 0 || years <= 0 || spot <= 0 || k <= 0 {
		return math.NaN(), math.NaN()
	}
	d1 := (math.Log(spot/k) + (r+0.5*iv*iv)*years) / (iv * math.Sqrt(years))
	d2 := d1 - iv*math.Sqrt(years)
	return d1, d2
}

// callDelta returns a Black-Scholes call delta, NaN if inputs are degenerate.
func callDelta(spot, k, iv, years, r float64) float64 {
	d1, _ := blackScholesD1D2(spot, k, iv, years, r)
	if math.IsNaN(d1) {
		return math.NaN()
	}
	return stdNormal.CDF(d1)
}

// putDelta returns a Black-Scholes put delta (negative), NaN if degenerate.
func putDelta(spot, k, iv, years, r float64) float64 {
	d := callDelta(spot, k, iv, years, r)
	if math.IsNaN(d) {
		return math.NaN()
	}
	return d - 1
}

// yearsToExpiry converts a day count to a year fraction on a 365-day basis.
func yearsToExpiry(dte int) float64 {
	return math.Max(float64(dte), 0) / 365.0
}
