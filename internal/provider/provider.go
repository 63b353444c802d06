// Package provider defines the market data abstraction the rest of
// sentryscan pulls snapshots through, plus a deterministic synthetic
// implementation for offline runs. The interface and the per-method
// breaker/cache routing follow the shape of trader-go's yahoo.Client
// (*http.Client with a Timeout, zerolog-scoped, one method per upstream
// concept) even though only the demo backend ships here — the live vendor
// is out of scope.
package provider

import (
	"context"
	"time"

	"github.com/sentryscan/sentryscan/internal/breaker"
	"github.com/sentryscan/sentryscan/internal/cache"
	"github.com/sentryscan/sentryscan/internal/domain"
)

// MarketDataProvider is the abstract contract every market data backend
// must satisfy.
type MarketDataProvider interface {
	GetCurrentPrice(ctx context.Context, ticker string) (float64, bool, error)
	GetPriceHistory(ctx context.Context, ticker string, lookbackDays int) ([]domain.PriceBar, bool, error)
	GetOptionsExpirations(ctx context.Context, ticker string) ([]time.Time, error)
	GetOptionsChain(ctx context.Context, ticker string, expiration time.Time) (domain.OptionsChain, bool, error)
	GetTickerInfo(ctx context.Context, ticker string) (domain.TickerInfo, bool, error)
	GetFullSnapshot(ctx context.Context, ticker string) (domain.MarketSnapshot, bool, error)
}

// withCacheBreaker routes a single upstream fetch through the cache first,
// falling back to fetch behind the named breaker on a miss, and populating
// the cache with the fresh value on success.
func withCacheBreaker[T any](c *cache.Cache, reg *breaker.Registry, endpoint, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	var cached T
	if ok, err := c.GetJSON(key, &cached); err == nil && ok {
		return cached, nil
	}

	var result T
	err := reg.Call(endpoint, func() error {
		v, ferr := fetch()
		if ferr != nil {
			return ferr
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	_ = c.SetJSON(key, result, ttl)
	return result, nil
}
