package common

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/gamma-omg/kline-chart/internal/market"
)

type barsFetcher interface {
	FetchBars(ctx context.Context, req market.BarsRequest) ([]market.Bar, error)
	FetchIntradayBars(ctx context.Context, instrument, date string) ([]market.Bar, error)
}

// IntradayCache keeps minute bars of past drilldowns. Window and history
// requests are passed through unchanged. Empty and failed results are not cached.
type IntradayCache struct {
	log  *slog.Logger
	next barsFetcher
	days map[string][]market.Bar
	mu   sync.RWMutex
}

func NewIntradayCache(log *slog.Logger, next barsFetcher) *IntradayCache {
	return &IntradayCache{
		log:  log,
		next: next,
		days: make(map[string][]market.Bar),
	}
}

func (c *IntradayCache) FetchBars(ctx context.Context, req market.BarsRequest) ([]market.Bar, error) {
	return c.next.FetchBars(ctx, req)
}

func (c *IntradayCache) FetchIntradayBars(ctx context.Context, instrument, date string) ([]market.Bar, error) {
	key := instrument + "@" + date
	if bars, ok := c.get(key); ok {
		c.log.Debug("intraday cache hit", "key", key)
		return bars, nil
	}

	bars, err := c.next.FetchIntradayBars(ctx, instrument, date)
	if err != nil || len(bars) == 0 {
		return bars, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.days[key] = slices.Clone(bars)
	return bars, nil
}

func (c *IntradayCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.days)
}

func (c *IntradayCache) get(key string) ([]market.Bar, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	bars, ok := c.days[key]
	if !ok {
		return nil, false
	}
	return slices.Clone(bars), true
}
