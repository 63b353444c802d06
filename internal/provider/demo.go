package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/breaker"
	"github.com/sentryscan/sentryscan/internal/cache"
	"github.com/sentryscan/sentryscan/internal/calendar"
	"github.com/sentryscan/sentryscan/internal/domain"
	"github.com/sentryscan/sentryscan/internal/errs"
)

// DemoProvider synthesizes deterministic market data per ticker so the full
// pipeline can run end to end without a live vendor. Every series is
// reproducible: the same ticker always walks the same path, seeded from the
// ticker's own bytes rather than the wall clock.
type DemoProvider struct {
	cal      *calendar.Calendar
	cache    *cache.Cache
	breakers *breaker.Registry
	log      zerolog.Logger
}

// NewDemoProvider builds a DemoProvider wired through cache and breaker as
// spec requires even though no network call ever actually happens — the
// routing is part of the contract every implementation must satisfy.
func NewDemoProvider(cal *calendar.Calendar, c *cache.Cache, breakers *breaker.Registry, log zerolog.Logger) *DemoProvider {
	return &DemoProvider{
		cal:      cal,
		cache:    c,
		breakers: breakers,
		log:      log.With().Str("component", "demo_provider").Logger(),
	}
}

func seedFor(ticker string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(ticker))
	return int64(h.Sum64())
}

// syntheticSeries builds n ascending-timestamp trading-day bars ending
// today, following a seeded geometric random walk anchored at basePrice.
func (p *DemoProvider) syntheticSeries(ticker string, n int) []domain.PriceBar {
	rng := rand.New(rand.NewSource(seedFor(ticker)))
	basePrice := 20 + rng.Float64()*480 // $20-$500 starting point

	days := make([]time.Time, 0, n)
	d := p.cal.NowUTC()
	for len(days) < n {
		if p.cal.IsTradingDay(d) {
			days = append(days, d)
		}
		d = d.AddDate(0, 0, -1)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	bars := make([]domain.PriceBar, 0, n)
	price := basePrice
	for _, ts := range days {
		drift := 0.0002
		shock := rng.NormFloat64() * 0.018
		open := price
		price = price * (1 + drift + shock)
		if price < 1 {
			price = 1
		}
		high := math.Max(open, price) * (1 + rng.Float64()*0.01)
		low := math.Min(open, price) * (1 - rng.Float64()*0.01)
		volume := int64(200000 + rng.Intn(4000000))
		bars = append(bars, domain.PriceBar{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     price,
			Volume:    volume,
		})
	}
	return bars
}

// GetCurrentPrice returns the latest close of a 60-bar synthetic series.
func (p *DemoProvider) GetCurrentPrice(ctx context.Context, ticker string) (float64, bool, error) {
	key := fmt.Sprintf("price:%s", ticker)
	bars, err := withCacheBreaker(p.cache, p.breakers, "get_current_price", key, cache.TTLCurrentPrice, func() ([]domain.PriceBar, error) {
		return p.syntheticSeries(ticker, 60), nil
	})
	if err != nil {
		return 0, false, err
	}
	if len(bars) == 0 {
		return 0, false, nil
	}
	return bars[len(bars)-1].Close, true, nil
}

// GetPriceHistory returns lookbackDays of ordered synthetic OHLCV bars.
func (p *DemoProvider) GetPriceHistory(ctx context.Context, ticker string, lookbackDays int) ([]domain.PriceBar, bool, error) {
	if lookbackDays <= 0 {
		lookbackDays = 252
	}
	key := fmt.Sprintf("history:%s:%d", ticker, lookbackDays)
	bars, err := withCacheBreaker(p.cache, p.breakers, "get_price_history", key, cache.TTLPriceHistory, func() ([]domain.PriceBar, error) {
		return p.syntheticSeries(ticker, lookbackDays), nil
	})
	if err != nil {
		return nil, false, err
	}
	return bars, len(bars) > 0, nil
}

// GetOptionsExpirations returns the next four Fridays after today, one week apart.
func (p *DemoProvider) GetOptionsExpirations(ctx context.Context, ticker string) ([]time.Time, error) {
	key := fmt.Sprintf("expirations:%s", ticker)
	return withCacheBreaker(p.cache, p.breakers, "get_options_expirations", key, cache.TTLExpirations, func() ([]time.Time, error) {
		now := p.cal.NowUTC()
		out := make([]time.Time, 0, 4)
		d := now
		for len(out) < 4 {
			d = d.AddDate(0, 0, 1)
			if d.Weekday() == time.Friday {
				out = append(out, time.Date(d.Year(), d.Month(), d.Day(), 20, 0, 0, 0, time.UTC))
			}
		}
		return out, nil
	})
}

// GetOptionsChain synthesizes a call/put ladder around spot with a mild
// volatility smile, consistent for a given ticker+expiration pair.
func (p *DemoProvider) GetOptionsChain(ctx context.Context, ticker string, expiration time.Time) (domain.OptionsChain, bool, error) {
	key := fmt.Sprintf("chain:%s:%s", ticker, expiration.Format(time.RFC3339))
	chain, err := withCacheBreaker(p.cache, p.breakers, "get_options_chain", key, cache.TTLOptionsChain, func() (domain.OptionsChain, error) {
		return p.buildChain(ticker, expiration)
	})
	if err != nil {
		return domain.OptionsChain{}, false, err
	}
	return chain, len(chain.Calls) > 0, nil
}

func (p *DemoProvider) buildChain(ticker string, expiration time.Time) (domain.OptionsChain, error) {
	if !expiration.After(p.cal.NowUTC()) {
		return domain.OptionsChain{}, fmt.Errorf("%w: expiration %s is not in the future", errs.ProviderPermanent, expiration)
	}

	rng := rand.New(rand.NewSource(seedFor(ticker) ^ expiration.Unix()))
	bars := p.syntheticSeries(ticker, 1)
	spot := bars[len(bars)-1].Close

	dte := int(expiration.Sub(p.cal.NowUTC()).Hours() / 24)
	baseIV := 0.18 + rng.Float64()*0.25

	step := spot * 0.025
	numStrikes := 11
	calls := make([]domain.OptionContract, 0, numStrikes)
	puts := make([]domain.OptionContract, 0, numStrikes)
	for i := -numStrikes / 2; i <= numStrikes/2; i++ {
		strike := math.Round((spot+float64(i)*step)/0.5) * 0.5
		if strike <= 0 {
			continue
		}
		moneyness := math.Abs(strike-spot) / spot
		smile := baseIV + moneyness*moneyness*1.5 // smile wings richer than ATM
		termAdj := 1.0 + float64(dte)/365.0*0.1
		iv := smile * termAdj

		intrinsicCall := math.Max(spot-strike, 0)
		intrinsicPut := math.Max(strike-spot, 0)
		timeValue := spot * iv * math.Sqrt(float64(dte)/365.0) * 0.4

		callMid := intrinsicCall + timeValue
		putMid := intrinsicPut + timeValue
		spreadPct := 0.01 + rng.Float64()*0.03

		deltaCall := callDeltaApprox(spot, strike, iv, dte)
		deltaPut := deltaCall - 1

		calls = append(calls, domain.OptionContract{
			Strike: strike, Type: domain.Call,
			Bid: callMid * (1 - spreadPct), Ask: callMid * (1 + spreadPct),
			Volume: int64(50 + rng.Intn(5000)), OpenInterest: int64(100 + rng.Intn(20000)),
			ImpliedVol: iv, Delta: &deltaCall,
		})
		puts = append(puts, domain.OptionContract{
			Strike: strike, Type: domain.Put,
			Bid: putMid * (1 - spreadPct), Ask: putMid * (1 + spreadPct),
			Volume: int64(50 + rng.Intn(5000)), OpenInterest: int64(100 + rng.Intn(20000)),
			ImpliedVol: iv, Delta: &deltaPut,
		})
	}
	sort.Slice(calls, func(i, j int) bool { return calls[i].Strike < calls[j].Strike })
	sort.Slice(puts, func(i, j int) bool { return puts[i].Strike < puts[j].Strike })

	return domain.OptionsChain{
		Ticker:       ticker,
		Expiration:   expiration,
		SnapshotTime: p.cal.NowUTC(),
		Calls:        calls,
		Puts:         puts,
	}, nil
}

// callDeltaApprox is a rough, deterministic moneyness-based stand-in for a
// Black-Scholes call delta, good enough to drive the skew detector without
// repeating the real Greeks math the feature engine owns.
func callDeltaApprox(spot, strike, iv float64, dte int) float64 {
	m := math.Log(spot / strike)
	spread := iv * math.Sqrt(math.Max(float64(dte), 1)/365.0)
	if spread == 0 {
		spread = 0.01
	}
	z := m / spread
	return 0.5 * (1 + math.Tanh(z))
}

// GetTickerInfo synthesizes a next earnings date and 52-week range.
func (p *DemoProvider) GetTickerInfo(ctx context.Context, ticker string) (domain.TickerInfo, bool, error) {
	key := fmt.Sprintf("info:%s", ticker)
	info, err := withCacheBreaker(p.cache, p.breakers, "get_ticker_info", key, cache.TTLTickerInfo, func() (domain.TickerInfo, error) {
		rng := rand.New(rand.NewSource(seedFor(ticker) ^ 0x5151))
		bars := p.syntheticSeries(ticker, 252)

		hi, lo := bars[0].High, bars[0].Low
		for _, b := range bars {
			hi = math.Max(hi, b.High)
			lo = math.Min(lo, b.Low)
		}

		earnings := p.cal.NowUTC().AddDate(0, 0, rng.Intn(90))
		return domain.TickerInfo{
			Ticker:           ticker,
			NextEarningsDate: &earnings,
			Week52High:       &hi,
			Week52Low:        &lo,
		}, nil
	})
	if err != nil {
		return domain.TickerInfo{}, false, err
	}
	return info, true, nil
}

// GetFullSnapshot composes spot price, 252-day history, the four nearest
// expirations' chains, and ticker info into one MarketSnapshot.
func (p *DemoProvider) GetFullSnapshot(ctx context.Context, ticker string) (domain.MarketSnapshot, bool, error) {
	price, ok, err := p.GetCurrentPrice(ctx, ticker)
	if err != nil || !ok {
		return domain.MarketSnapshot{}, false, err
	}

	history, ok, err := p.GetPriceHistory(ctx, ticker, 252)
	if err != nil || !ok {
		return domain.MarketSnapshot{}, false, err
	}

	expirations, err := p.GetOptionsExpirations(ctx, ticker)
	if err != nil {
		return domain.MarketSnapshot{}, false, err
	}

	chains := make(map[time.Time]domain.OptionsChain, len(expirations))
	for _, exp := range expirations {
		chain, ok, err := p.GetOptionsChain(ctx, ticker, exp)
		if err != nil {
			p.log.Warn().Err(err).Str("ticker", ticker).Time("expiration", exp).Msg("skipping expiration, chain fetch failed")
			continue
		}
		if ok {
			chains[exp] = chain
		}
	}

	info, _, err := p.GetTickerInfo(ctx, ticker)
	if err != nil {
		return domain.MarketSnapshot{}, false, err
	}

	return domain.MarketSnapshot{
		Ticker:        ticker,
		Timestamp:     p.cal.NowUTC(),
		SpotPrice:     price,
		PriceHistory:  history,
		OptionsChains: chains,
		TickerInfo:    &info,
	}, true, nil
}

var _ MarketDataProvider = (*DemoProvider)(nil)
