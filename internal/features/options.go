package features

import (
	"math"
	"sort"
	"time"

	"github.com/sentryscan/sentryscan/internal/domain"
)

// frontBackChains picks the two nearest future expirations present in the
// snapshot, sorted ascending. Either may be absent.
func frontBackChains(chains map[time.Time]domain.OptionsChain, now time.Time) (front, back *domain.OptionsChain, ok bool) {
	exps := make([]time.Time, 0, len(chains))
	for exp := range chains {
		if exp.After(now) {
			exps = append(exps, exp)
		}
	}
	if len(exps) == 0 {
		return nil, nil, false
	}
	sort.Slice(exps, func(i, j int) bool { return exps[i].Before(exps[j]) })

	f := chains[exps[0]]
	front = &f
	if len(exps) > 1 {
		b := chains[exps[1]]
		back = &b
	}
	return front, back, true
}

// atmIV returns the ATM implied vol by linear interpolation on strike
// across the call side (calls and puts carry near-identical ATM IV under
// put-call parity, so the call side alone is sufficient here).
func atmIV(chain domain.OptionsChain, spot float64) (float64, bool) {
	return interpolateByStrike(chain.Calls, spot, func(c domain.OptionContract) float64 { return c.ImpliedVol })
}

func interpolateByStrike(contracts []domain.OptionContract, target float64, value func(domain.OptionContract) float64) (float64, bool) {
	if len(contracts) == 0 {
		return 0, false
	}
	if target <= contracts[0].Strike {
		return value(contracts[0]), true
	}
	last := contracts[len(contracts)-1]
	if target >= last.Strike {
		return value(last), true
	}
	for i := 1; i < len(contracts); i++ {
		lo, hi := contracts[i-1], contracts[i]
		if target >= lo.Strike && target <= hi.Strike {
			if hi.Strike == lo.Strike {
				return value(lo), true
			}
			frac := (target - lo.Strike) / (hi.Strike - lo.Strike)
			return value(lo) + frac*(value(hi)-value(lo)), true
		}
	}
	return 0, false
}

// skew25Delta interpolates IV at the +25-delta call and the -25-delta put
// and returns put IV minus call IV.
func skew25Delta(chain domain.OptionsChain, spot, riskFreeRate float64) (float64, bool) {
	dte := int(math.Round(chain.Expiration.Sub(chain.SnapshotTime).Hours() / 24))
	years := yearsToExpiry(dte)

	callIV, ok1 := ivAtDelta(chain.Calls, 0.25, spot, years, riskFreeRate, callDelta)
	putIV, ok2 := ivAtDelta(chain.Puts, -0.25, spot, years, riskFreeRate, putDelta)
	if !ok1 || !ok2 {
		return 0, false
	}
	return putIV - callIV, true
}

// ivAtDelta finds the strike whose Black-Scholes delta is closest to
// targetDelta and returns its IV, interpolating linearly between the two
// bracketing strikes by delta when possible.
func ivAtDelta(contracts []domain.OptionContract, targetDelta, spot, years, r float64, deltaFn func(spot, k, iv, years, r float64) float64) (float64, bool) {
	if len(contracts) == 0 || years <= 0 {
		return 0, false
	}

	type point struct {
		delta float64
		iv    float64
	}
	points := make([]point, 0, len(contracts))
	for _, c := range contracts {
		d := deltaFn(spot, c.Strike, c.ImpliedVol, years, r)
		if math.IsNaN(d) {
			continue
		}
		points = append(points, point{delta: d, iv: c.ImpliedVol})
	}
	if len(points) == 0 {
		return 0, false
	}
	sort.Slice(points, func(i, j int) bool { return points[i].delta < points[j].delta })

	if targetDelta <= points[0].delta {
		return points[0].iv, true
	}
	last := points[len(points)-1]
	if targetDelta >= last.delta {
		return last.iv, true
	}
	for i := 1; i < len(points); i++ {
		lo, hi := points[i-1], points[i]
		if targetDelta >= lo.delta && targetDelta <= hi.delta {
			if hi.delta == lo.delta {
				return lo.iv, true
			}
			frac := (targetDelta - lo.delta) / (hi.delta - lo.delta)
			return lo.iv + frac*(hi.iv-lo.iv), true
		}
	}
	return 0, false
}

func sideMetrics(chain *domain.OptionsChain, spot float64) domain.OptionsSide {
	var side domain.OptionsSide
	if chain == nil {
		return side
	}
	if iv, ok := atmIV(*chain, spot); ok {
		side.ATMIV = ptr(iv)
	}

	var oi, callVol, putVol int64
	for _, c := range chain.Calls {
		oi += c.OpenInterest
		callVol += c.Volume
	}
	for _, p := range chain.Puts {
		oi += p.OpenInterest
		putVol += p.Volume
	}
	side.OpenInterest = ptrInt64(oi)
	side.CallVolume = ptrInt64(callVol)
	side.PutVolume = ptrInt64(putVol)
	return side
}

func ptrInt64(v int64) *int64 { return &v }

// computeIVMetrics fills iv_percentile/iv_rank/term_structure_ratio/iv_vs_hv.
// ivHistory is the ticker's trailing front ATM IV observations (not
// including today), supplied by the caller so Compute stays a pure function
// of its arguments rather than reaching into storage itself.
func computeIVMetrics(frontIV *float64, backIV *float64, hv20 *float64, ivHistory []float64) domain.IVMetrics {
	var m domain.IVMetrics
	if frontIV == nil {
		return m
	}

	if len(ivHistory) > 0 {
		below := 0
		for _, h := range ivHistory {
			if h <= *frontIV {
				below++
			}
		}
		m.IVPercentile = ptr(100 * float64(below) / float64(len(ivHistory)))

		lo, hi := ivHistory[0], ivHistory[0]
		for _, h := range ivHistory {
			lo = math.Min(lo, h)
			hi = math.Max(hi, h)
		}
		if hi > lo {
			m.IVRank = ptr(100 * (*frontIV - lo) / (hi - lo))
		}
	}

	if backIV != nil && *frontIV != 0 {
		m.TermStructureRatio = ptr(*backIV / *frontIV)
	}
	if hv20 != nil && *hv20 != 0 {
		m.IVvsHV = ptr(*frontIV / *hv20)
	}
	return m
}

// computeEarnings fills days_to_earnings as an ET calendar-day difference,
// plus the spot-to-52-week-high ratio the EarningsCrush detector needs to
// detect a print into an already-extended price.
func computeEarnings(info *domain.TickerInfo, spot float64, now time.Time, loc *time.Location) domain.Earnings {
	var e domain.Earnings
	if info == nil {
		return e
	}

	if info.Week52High != nil && *info.Week52High > 0 {
		e.Week52High = info.Week52High
		e.Week52HighPct = ptr(spot / *info.Week52High)
	}

	if info.NextEarningsDate == nil {
		return e
	}
	e.NextEarningsDate = info.NextEarningsDate

	nowET := now.In(loc)
	earningsET := info.NextEarningsDate.In(loc)
	nowDay := time.Date(nowET.Year(), nowET.Month(), nowET.Day(), 0, 0, 0, 0, time.UTC)
	earningsDay := time.Date(earningsET.Year(), earningsET.Month(), earningsET.Day(), 0, 0, 0, 0, time.UTC)
	days := int(earningsDay.Sub(nowDay).Hours() / 24)
	e.DaysToEarnings = &days
	return e
}

// computeLiquidity fills spread_pct/atm_volume from the front chain's ATM
// contract.
func computeLiquidity(front *domain.OptionsChain, spot float64) domain.Liquidity {
	var l domain.Liquidity
	if front == nil {
		return l
	}
	atm := closestByStrike(front.Calls, spot)
	if atm == nil {
		return l
	}
	mid := (atm.Bid + atm.Ask) / 2
	if mid > 0 {
		l.SpreadPct = ptr((atm.Ask - atm.Bid) / mid * 100)
	}
	l.ATMVolume = ptrInt64(atm.Volume)
	return l
}

func closestByStrike(contracts []domain.OptionContract, target float64) *domain.OptionContract {
	if len(contracts) == 0 {
		return nil
	}
	best := contracts[0]
	bestDist := math.Abs(best.Strike - target)
	for _, c := range contracts[1:] {
		d := math.Abs(c.Strike - target)
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return &best
}
