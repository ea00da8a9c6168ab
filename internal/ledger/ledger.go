package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/gamma-omg/kline-chart/internal/config"
	"github.com/gamma-omg/kline-chart/internal/market"
	"github.com/shopspring/decimal"
)

var ErrUnknownLedger = errors.New("unknown trades source")

// record is one raw ledger row before normalization.
type record struct {
	Instrument string
	Date       string
	Time       string
	Type       string
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	Amount     decimal.Decimal
}

// Read loads the trades of instrument from the configured ledger. Rows with an
// unparsable date or side are skipped with a warning. Events are ordered by date.
func Read(ctx context.Context, log *slog.Logger, ref config.Trades, instrument string, loc *time.Location) ([]market.TradeEvent, error) {
	var records []record
	var err error

	switch src := ref.(type) {
	case nil:
		return nil, nil
	case config.TradesCsv:
		records, err = readCsv(src.Path, instrument)
	case config.TradesSqlite:
		records, err = readSqlite(ctx, src.Path, src.Table, instrument)
	default:
		return nil, ErrUnknownLedger
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read trades: %w", err)
	}

	events := make([]market.TradeEvent, 0, len(records))
	for _, r := range records {
		ev, err := normalize(r, loc)
		if err != nil {
			log.Warn("skipping trade record", "instrument", r.Instrument, "date", r.Date, "error", err)
			continue
		}
		events = append(events, ev)
	}

	slices.SortStableFunc(events, func(a, b market.TradeEvent) int {
		return strings.Compare(a.Date, b.Date)
	})

	log.Debug("trades loaded", "instrument", instrument, "count", len(events))
	return events, nil
}

func normalize(r record, loc *time.Location) (ev market.TradeEvent, err error) {
	ev.Side, err = market.ParseSide(r.Type)
	if err != nil {
		return
	}

	ev.Date, ev.Timestamp, err = parseWhen(strings.TrimSpace(r.Date), strings.TrimSpace(r.Time), loc)
	if err != nil {
		return
	}

	ev.Price = r.Price
	ev.Quantity = r.Quantity.IntPart()
	ev.Amount = r.Amount
	if ev.Amount.IsZero() {
		ev.Amount = r.Price.Mul(r.Quantity)
	}

	return
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
}

// parseWhen returns the trading date of a record and its execution time when
// known. Clock may be empty, HH:MM or HH:MM:SS.
func parseWhen(date, clock string, loc *time.Location) (day string, ts time.Time, err error) {
	if clock != "" {
		day, err = market.DateKey(date, loc)
		if err != nil {
			return
		}

		for _, l := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04"} {
			if ts, err = time.ParseInLocation(l, day+" "+clock, loc); err == nil {
				return
			}
		}
		err = fmt.Errorf("unsupported trade time: %q", clock)
		return
	}

	for _, l := range timestampLayouts {
		t, perr := time.ParseInLocation(l, date, loc)
		if perr == nil {
			ts = t.In(loc)
			day = ts.Format("2006-01-02")
			return
		}
	}

	day, err = market.DateKey(date, loc)
	return
}
