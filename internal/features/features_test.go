package features

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/sentryscan/sentryscan/internal/domain"
)

func syntheticBars(n int, start float64) []domain.PriceBar {
	rng := rand.New(rand.NewSource(42))
	bars := make([]domain.PriceBar, 0, n)
	price := start
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		open := price
		price *= 1 + rng.NormFloat64()*0.01
		high := math.Max(open, price) * 1.01
		low := math.Min(open, price) * 0.99
		bars = append(bars, domain.PriceBar{
			Timestamp: ts.AddDate(0, 0, i),
			Open:      open, High: high, Low: low, Close: price,
			Volume: int64(1_000_000 + rng.Intn(500_000)),
		})
	}
	return bars
}

func TestComputeWithInsufficientHistoryReturnsAbsent(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	snap := domain.MarketSnapshot{
		Ticker: "AAPL", SpotPrice: 100,
		PriceHistory: syntheticBars(5, 100),
	}
	fs := Compute(snap, "hash1", nil, 0.05, loc)
	if fs.Technicals.SMA20 != nil {
		t.Fatalf("expected absent SMA20 with < 20 bars of history")
	}
}

func TestComputeTechnicalsPopulatedWithEnoughHistory(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	bars := syntheticBars(260, 150)
	snap := domain.MarketSnapshot{
		Ticker: "MSFT", SpotPrice: bars[len(bars)-1].Close,
		PriceHistory: bars,
	}
	fs := Compute(snap, "hash1", nil, 0.05, loc)

	if fs.Technicals.SMA20 == nil || fs.Technicals.SMA50 == nil || fs.Technicals.SMA200 == nil {
		t.Fatalf("expected all SMAs populated with 260 bars, got %+v", fs.Technicals)
	}
	if fs.Technicals.RSI14 == nil {
		t.Fatalf("expected RSI14 populated")
	}
	if *fs.Technicals.RSI14 < 0 || *fs.Technicals.RSI14 > 100 {
		t.Fatalf("expected RSI14 in [0,100], got %f", *fs.Technicals.RSI14)
	}
	if fs.Volatility.HV20 == nil || fs.Volatility.HV60 == nil {
		t.Fatalf("expected HV20/HV60 populated")
	}
}

func TestComputeWithoutChainsLeavesOptionsGroupsAbsent(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	bars := syntheticBars(60, 100)
	snap := domain.MarketSnapshot{Ticker: "AAPL", SpotPrice: bars[len(bars)-1].Close, PriceHistory: bars}
	fs := Compute(snap, "hash1", nil, 0.05, loc)
	if fs.OptionsFront.ATMIV != nil {
		t.Fatalf("expected absent ATM IV with no chains")
	}
}

func TestComputeWithChainsPopulatesOptionsFront(t *testing.T) {
	loc, _ := time.LoadLocation("America/New_York")
	bars := syntheticBars(60, 100)
	spot := bars[len(bars)-1].Close
	now := bars[len(bars)-1].Timestamp
	exp := now.AddDate(0, 0, 30)

	delta25 := 0.25
	deltaNeg25 := -0.25
	chain := domain.OptionsChain{
		Ticker: "AAPL", Expiration: exp, SnapshotTime: now,
		Calls: []domain.OptionContract{
			{Strike: spot * 0.9, Type: domain.Call, Bid: 10, Ask: 10.2, ImpliedVol: 0.30, Volume: 100, OpenInterest: 500, Delta: &delta25},
			{Strike: spot, Type: domain.Call, Bid: 5, Ask: 5.2, ImpliedVol: 0.25, Volume: 200, OpenInterest: 1000, Delta: &delta25},
			{Strike: spot * 1.1, Type: domain.Call, Bid: 1, Ask: 1.2, ImpliedVol: 0.28, Volume: 50, OpenInterest: 300, Delta: &delta25},
		},
		Puts: []domain.OptionContract{
			{Strike: spot * 0.9, Type: domain.Put, Bid: 1, Ask: 1.2, ImpliedVol: 0.27, Volume: 80, OpenInterest: 400, Delta: &deltaNeg25},
			{Strike: spot, Type: domain.Put, Bid: 5, Ask: 5.2, ImpliedVol: 0.26, Volume: 150, OpenInterest: 900, Delta: &deltaNeg25},
			{Strike: spot * 1.1, Type: domain.Put, Bid: 10, Ask: 10.3, ImpliedVol: 0.32, Volume: 60, OpenInterest: 250, Delta: &deltaNeg25},
		},
	}

	snap := domain.MarketSnapshot{
		Ticker: "AAPL", SpotPrice: spot, PriceHistory: bars, Timestamp: now,
		OptionsChains: map[time.Time]domain.OptionsChain{exp: chain},
	}
	fs := Compute(snap, "hash1", []float64{0.2, 0.22, 0.24, 0.26, 0.28}, 0.05, loc)

	if fs.OptionsFront.ATMIV == nil {
		t.Fatalf("expected ATM IV populated")
	}
	if fs.OptionsFront.OpenInterest == nil || *fs.OptionsFront.OpenInterest == 0 {
		t.Fatalf("expected non-zero open interest")
	}
	if fs.IVMetrics.IVPercentile == nil {
		t.Fatalf("expected IV percentile populated given iv history")
	}
	if fs.Liquidity.ATMVolume == nil {
		t.Fatalf("expected ATM volume populated")
	}
}
