package provider

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sentryscan/sentryscan/internal/breaker"
	"github.com/sentryscan/sentryscan/internal/cache"
	"github.com/sentryscan/sentryscan/internal/calendar"
)

func newTestProvider(t *testing.T) *DemoProvider {
	t.Helper()
	cal, err := calendar.New("")
	if err != nil {
		t.Fatalf("calendar.New: %v", err)
	}
	c := cache.New(10<<20, zerolog.Nop())
	reg := breaker.NewRegistry(5, 0, zerolog.Nop())
	return NewDemoProvider(cal, c, reg, zerolog.Nop())
}

func TestGetCurrentPriceIsPositiveAndDeterministic(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	price1, ok, err := p.GetCurrentPrice(ctx, "AAPL")
	if err != nil || !ok {
		t.Fatalf("GetCurrentPrice: ok=%v err=%v", ok, err)
	}
	if price1 <= 0 {
		t.Fatalf("expected positive price, got %f", price1)
	}

	p2 := newTestProvider(t)
	price2, _, _ := p2.GetCurrentPrice(ctx, "AAPL")
	if price1 != price2 {
		t.Fatalf("expected deterministic price across instances, got %f and %f", price1, price2)
	}
}

func TestGetPriceHistoryOrderedAscending(t *testing.T) {
	p := newTestProvider(t)
	bars, ok, err := p.GetPriceHistory(context.Background(), "MSFT", 30)
	if err != nil || !ok {
		t.Fatalf("GetPriceHistory: ok=%v err=%v", ok, err)
	}
	if len(bars) != 30 {
		t.Fatalf("expected 30 bars, got %d", len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			t.Fatalf("expected ascending timestamps at index %d", i)
		}
		if !bars[i].Valid() {
			t.Fatalf("bar %d fails OHLC invariants: %+v", i, bars[i])
		}
	}
}

func TestGetOptionsChainSortedUniqueStrikes(t *testing.T) {
	p := newTestProvider(t)
	ctx := context.Background()

	expirations, err := p.GetOptionsExpirations(ctx, "NVDA")
	if err != nil || len(expirations) == 0 {
		t.Fatalf("GetOptionsExpirations: %v", err)
	}

	chain, ok, err := p.GetOptionsChain(ctx, "NVDA", expirations[0])
	if err != nil || !ok {
		t.Fatalf("GetOptionsChain: ok=%v err=%v", ok, err)
	}
	if !chain.Expiration.After(chain.SnapshotTime) {
		t.Fatalf("expected expiration to be in the future of the snapshot")
	}

	seen := map[float64]bool{}
	last := -1.0
	for _, c := range chain.Calls {
		if seen[c.Strike] {
			t.Fatalf("duplicate call strike %f", c.Strike)
		}
		seen[c.Strike] = true
		if c.Strike < last {
			t.Fatalf("calls not sorted ascending by strike")
		}
		last = c.Strike
		if !c.Valid() {
			t.Fatalf("invalid call contract: %+v", c)
		}
	}
}

func TestGetOptionsChainRejectsPastExpiration(t *testing.T) {
	p := newTestProvider(t)
	past := p.cal.NowUTC().AddDate(0, 0, -5)
	_, ok, err := p.GetOptionsChain(context.Background(), "AAPL", past)
	if err == nil {
		t.Fatalf("expected error for past expiration")
	}
	if ok {
		t.Fatalf("expected ok=false for past expiration")
	}
}

func TestGetFullSnapshotComposesAllFields(t *testing.T) {
	p := newTestProvider(t)
	snap, ok, err := p.GetFullSnapshot(context.Background(), "TSLA")
	if err != nil || !ok {
		t.Fatalf("GetFullSnapshot: ok=%v err=%v", ok, err)
	}
	if snap.SpotPrice <= 0 {
		t.Fatalf("expected positive spot price")
	}
	if len(snap.PriceHistory) == 0 {
		t.Fatalf("expected non-empty price history")
	}
	if len(snap.OptionsChains) == 0 {
		t.Fatalf("expected at least one options chain")
	}
	if snap.TickerInfo == nil || snap.TickerInfo.NextEarningsDate == nil {
		t.Fatalf("expected ticker info with an earnings date")
	}
}
