package alpaca

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/gamma-omg/kline-chart/internal/config"
	"github.com/gamma-omg/kline-chart/internal/market"
	"github.com/shopspring/decimal"
)

var ErrUnsupportedAdjustment = errors.New("unsupported adjustment")

type marketDataApi interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
	GetCryptoBars(symbol string, req marketdata.GetCryptoBarsRequest) ([]marketdata.CryptoBar, error)
}

// AlpacaSource serves historical bars from the Alpaca market data API. Symbols
// containing a slash are treated as crypto pairs.
type AlpacaSource struct {
	log *slog.Logger
	api marketDataApi
	loc *time.Location
}

func NewAlpacaSource(log *slog.Logger, cfg config.Alpaca, loc *time.Location) *AlpacaSource {
	return newAlpacaSourceWithApi(log, newAlpacaApi(cfg.ApiKey, cfg.Secret, cfg.BaseUrl, cfg.Feed), loc)
}

func newAlpacaSourceWithApi(log *slog.Logger, api marketDataApi, loc *time.Location) *AlpacaSource {
	return &AlpacaSource{
		log: log,
		api: api,
		loc: loc,
	}
}

func (a *AlpacaSource) FetchBars(ctx context.Context, req market.BarsRequest) (bars []market.Bar, err error) {
	if err = ctx.Err(); err != nil {
		return
	}

	tf, err := timeFrame(req.Interval)
	if err != nil {
		return
	}

	start, end, err := a.window(req)
	if err != nil {
		return
	}

	// one extra bar covers a bucket that converts onto the end key and gets trimmed
	limit := req.Limit
	if req.End != "" && limit > 0 {
		limit++
	}

	a.log.Debug("fetching bars", "params", req.Params.String(), "limit", req.Limit, "start", req.Start, "end", req.End)

	if isCrypto(req.Instrument) {
		var cb []marketdata.CryptoBar
		cb, err = a.api.GetCryptoBars(req.Instrument, marketdata.GetCryptoBarsRequest{
			TimeFrame:  tf,
			Start:      start,
			End:        end,
			TotalLimit: limit,
			Sort:       marketdata.SortDesc,
		})
		if err != nil {
			err = fmt.Errorf("failed to get crypto bars: %w", err)
			return
		}

		for _, b := range cb {
			bars = append(bars, a.convert(b.Timestamp, b.Open, b.High, b.Low, b.Close, int64(b.Volume), req.Interval))
		}
	} else {
		var adj marketdata.Adjustment
		adj, err = adjustment(req.Adjustment)
		if err != nil {
			return
		}

		var sb []marketdata.Bar
		sb, err = a.api.GetBars(req.Instrument, marketdata.GetBarsRequest{
			TimeFrame:  tf,
			Adjustment: adj,
			Start:      start,
			End:        end,
			TotalLimit: limit,
			Sort:       marketdata.SortDesc,
		})
		if err != nil {
			err = fmt.Errorf("failed to get bars: %w", err)
			return
		}

		for _, b := range sb {
			bars = append(bars, a.convert(b.Timestamp, b.Open, b.High, b.Low, b.Close, int64(b.Volume), req.Interval))
		}
	}

	// the api returns newest first
	slices.Reverse(bars)
	bars = trimEnd(bars, req.End)
	if req.Limit > 0 && len(bars) > req.Limit {
		bars = bars[len(bars)-req.Limit:]
	}
	return
}

func (a *AlpacaSource) FetchIntradayBars(ctx context.Context, instrument, date string) ([]market.Bar, error) {
	day, err := time.ParseInLocation("2006-01-02", date, a.loc)
	if err != nil {
		return nil, fmt.Errorf("invalid trading date: %w", err)
	}

	return a.FetchBars(ctx, market.BarsRequest{
		Params: market.Params{Instrument: instrument, Interval: market.IntervalMinute, Adjustment: market.AdjustNone},
		Limit:  24 * 60,
		Start:  market.FormatKey(day, market.IntervalMinute),
		End:    market.FormatKey(day.AddDate(0, 0, 1), market.IntervalMinute),
	})
}

func (a *AlpacaSource) window(req market.BarsRequest) (start, end time.Time, err error) {
	if req.Start != "" {
		start, err = market.ParseKey(req.Start, a.loc)
		if err != nil {
			return
		}
	}

	// the api treats end as inclusive
	if req.End != "" {
		end, err = market.ParseKey(req.End, a.loc)
		if err != nil {
			return
		}
		end = end.Add(-time.Nanosecond)
	}

	return
}

func (a *AlpacaSource) convert(ts time.Time, o, h, l, c float64, v int64, iv market.Interval) market.Bar {
	return market.Bar{
		Time:   market.FormatKey(ts.In(a.loc), iv),
		Open:   decimal.NewFromFloat(o),
		High:   decimal.NewFromFloat(h),
		Low:    decimal.NewFromFloat(l),
		Close:  decimal.NewFromFloat(c),
		Volume: v,
	}
}

// trimEnd drops bars whose key falls on or after end. The api buckets bars in
// its own timezone, so converted keys may still reach end.
func trimEnd(bars []market.Bar, end string) []market.Bar {
	if end == "" {
		return bars
	}

	i := len(bars)
	for i > 0 && bars[i-1].Time >= end {
		i--
	}
	return bars[:i]
}

func isCrypto(symbol string) bool {
	return strings.Contains(symbol, "/")
}

func timeFrame(iv market.Interval) (marketdata.TimeFrame, error) {
	switch iv {
	case market.IntervalMinute:
		return marketdata.OneMin, nil
	case market.Interval5Minute:
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case market.Interval15Minute:
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case market.Interval30Minute:
		return marketdata.NewTimeFrame(30, marketdata.Min), nil
	case market.Interval60Minute:
		return marketdata.OneHour, nil
	case market.IntervalDay:
		return marketdata.OneDay, nil
	case market.IntervalWeek:
		return marketdata.NewTimeFrame(1, marketdata.Week), nil
	case market.IntervalMonth:
		return marketdata.NewTimeFrame(1, marketdata.Month), nil
	case market.IntervalYear:
		return marketdata.NewTimeFrame(12, marketdata.Month), nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("unsupported interval: %s", iv)
	}
}

func adjustment(adj market.Adjustment) (marketdata.Adjustment, error) {
	switch adj {
	case market.AdjustNone:
		return marketdata.Raw, nil
	case market.AdjustForward:
		return marketdata.All, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAdjustment, adj)
	}
}
