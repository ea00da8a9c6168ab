package emulator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gamma-omg/kline-chart/internal/config"
	"github.com/gamma-omg/kline-chart/internal/market"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnknownSymbol       = errors.New("unknown symbol")
	ErrUnsupportedInterval = errors.New("interval is finer than source data")
)

// MarketEmulator serves bars from local data files, aggregated to the requested
// interval. Every request is delayed by the configured latency.
type MarketEmulator struct {
	log     *slog.Logger
	cfg     config.Emulator
	native  market.Interval
	loc     *time.Location
	ticks   map[string][]tick
	mu      sync.Mutex
	series  map[string][]market.Bar
	fetches int
}

func NewMarketEmulator(ctx context.Context, log *slog.Logger, cfg config.Emulator, loc *time.Location) (*MarketEmulator, error) {
	native := market.IntervalMinute
	if cfg.Interval != "" {
		iv, err := market.ParseInterval(cfg.Interval)
		if err != nil {
			return nil, fmt.Errorf("invalid emulator interval: %w", err)
		}
		native = iv
	}

	emu := &MarketEmulator{
		log:    log,
		cfg:    cfg,
		native: native,
		loc:    loc,
		ticks:  make(map[string][]tick),
		series: make(map[string][]market.Bar),
	}

	var mu sync.Mutex
	var g errgroup.Group
	for symbol, path := range cfg.Data {
		rdr, err := newBarReader(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create bars reader: %w", err)
		}

		g.Go(func() error {
			var ticks []tick
			for r := range rdr.Read(ctx) {
				if r.err != nil {
					return fmt.Errorf("failed to load %s: %w", symbol, r.err)
				}
				ticks = append(ticks, r.tick)
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			slices.SortStableFunc(ticks, func(a, b tick) int { return a.Time.Compare(b.Time) })

			mu.Lock()
			emu.ticks[symbol] = ticks
			mu.Unlock()

			log.Debug("data file loaded", "symbol", symbol, "rows", len(ticks))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return emu, nil
}

func (e *MarketEmulator) FetchBars(ctx context.Context, req market.BarsRequest) ([]market.Bar, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}

	if req.Adjustment != market.AdjustNone {
		e.log.Debug("adjustment is not emulated", "adjustment", req.Adjustment)
	}

	all, err := e.bars(req.Instrument, req.Interval)
	if err != nil {
		return nil, err
	}

	lo, hi := 0, len(all)
	if req.Start != "" {
		lo, _ = slices.BinarySearchFunc(all, req.Start, byKey)
	}
	if req.End != "" {
		hi, _ = slices.BinarySearchFunc(all, req.End, byKey)
	}
	if hi < lo {
		hi = lo
	}
	if req.Limit > 0 && hi-lo > req.Limit {
		lo = hi - req.Limit
	}

	return slices.Clone(all[lo:hi]), nil
}

func (e *MarketEmulator) FetchIntradayBars(ctx context.Context, instrument, date string) ([]market.Bar, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}

	all, err := e.bars(instrument, market.IntervalMinute)
	if err != nil {
		return nil, err
	}

	prefix := date + " "
	lo, _ := slices.BinarySearchFunc(all, prefix, byKey)
	hi := lo
	for hi < len(all) && strings.HasPrefix(all[hi].Time, prefix) {
		hi++
	}

	return slices.Clone(all[lo:hi]), nil
}

// Fetches returns the number of served requests.
func (e *MarketEmulator) Fetches() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.fetches
}

func (e *MarketEmulator) bars(symbol string, iv market.Interval) ([]market.Bar, error) {
	ticks, ok := e.ticks[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	if span(iv) < span(e.native) {
		return nil, fmt.Errorf("%w: %s < %s", ErrUnsupportedInterval, iv, e.native)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.fetches++
	key := symbol + "@" + string(iv)
	if s, ok := e.series[key]; ok {
		return s, nil
	}

	s := aggregate(ticks, iv, e.loc)
	e.series[key] = s
	return s, nil
}

func (e *MarketEmulator) wait(ctx context.Context) error {
	if e.cfg.Latency <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(e.cfg.Latency)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func byKey(b market.Bar, key string) int {
	return strings.Compare(b.Time, key)
}

// span orders intervals by bucket length in minutes.
func span(iv market.Interval) int {
	if m := iv.Minutes(); m > 0 {
		return m
	}

	switch iv {
	case market.IntervalDay:
		return 24 * 60
	case market.IntervalWeek:
		return 7 * 24 * 60
	case market.IntervalMonth:
		return 31 * 24 * 60
	default:
		return 366 * 24 * 60
	}
}
