package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gamma-omg/kline-chart/internal/chart"
	"github.com/gamma-omg/kline-chart/internal/config"
	"github.com/gamma-omg/kline-chart/internal/ledger"
	"github.com/gamma-omg/kline-chart/internal/marker"
	"github.com/gamma-omg/kline-chart/internal/market"
)

// ChartOptions converts the chart section of a config file.
func ChartOptions(cfg config.Chart) (opts chart.Options, err error) {
	iv, err := market.ParseInterval(cfg.Interval)
	if err != nil {
		return
	}

	adj, err := market.ParseAdjustment(cfg.Adjustment)
	if err != nil {
		return
	}

	ct, err := market.ParseChartType(cfg.ChartType)
	if err != nil {
		return
	}

	policy, ok := marker.ParsePolicy(cfg.DailyMatch)
	if !ok {
		err = fmt.Errorf("unknown daily match policy: %q", cfg.DailyMatch)
		return
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		err = fmt.Errorf("failed to load chart timezone: %w", err)
		return
	}

	opts = chart.Options{
		Params:      market.Params{Instrument: cfg.Instrument, Interval: iv, Adjustment: adj},
		ChartType:   ct,
		Width:       cfg.Width,
		Height:      cfg.Height,
		Limit:       cfg.Limit,
		DailyMatch:  policy,
		Placeholder: cfg.Placeholder,
		Location:    loc,
	}
	for _, m := range cfg.MA {
		if m.Period <= 0 {
			err = fmt.Errorf("invalid moving average period: %d", m.Period)
			return
		}
		opts.MA = append(opts.MA, chart.MAOptions{Period: m.Period, Enabled: m.Enabled})
	}

	return
}

// LedgerTrades reads trades from the configured ledger. A missing ledger yields
// no trades.
func LedgerTrades(log *slog.Logger, ref config.Trades, loc *time.Location) TradesFunc {
	if ref == nil {
		return nil
	}

	return func(ctx context.Context, instrument string) ([]market.TradeEvent, error) {
		return ledger.Read(ctx, log, ref, instrument, loc)
	}
}
