package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gamma-omg/kline-chart/internal/config"
	"github.com/gamma-omg/kline-chart/internal/market"
	"github.com/gamma-omg/kline-chart/internal/platform/alpaca"
	"github.com/gamma-omg/kline-chart/internal/platform/common"
	"github.com/gamma-omg/kline-chart/internal/platform/emulator"
)

// Fetcher is a source of historical bars.
type Fetcher interface {
	FetchBars(ctx context.Context, req market.BarsRequest) ([]market.Bar, error)
	FetchIntradayBars(ctx context.Context, instrument, date string) ([]market.Bar, error)
}

func Create(ctx context.Context, log *slog.Logger, cfg *config.Config) (f Fetcher, err error) {
	loc, err := time.LoadLocation(cfg.Chart.Timezone)
	if err != nil {
		err = fmt.Errorf("failed to load chart timezone: %w", err)
		return
	}

	switch src := cfg.SourceRef.Source.(type) {
	case config.Alpaca:
		f = alpaca.NewAlpacaSource(log, src, loc)
	case config.Emulator:
		emuLoc := loc
		if src.Timezone != "" {
			emuLoc, err = time.LoadLocation(src.Timezone)
			if err != nil {
				err = fmt.Errorf("failed to load emulator timezone: %w", err)
				return
			}
		}

		f, err = emulator.NewMarketEmulator(ctx, log, src, emuLoc)
		if err != nil {
			err = fmt.Errorf("failed to create emulator: %w", err)
			return
		}
	default:
		err = errors.New("unknown bars source")
		return
	}

	if cfg.IntradayCache {
		f = common.NewIntradayCache(log, f)
	}

	return
}
