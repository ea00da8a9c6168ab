package market

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one OHLCV sample. Time is a lexicographically sortable key, see FormatKey.
type Bar struct {
	Time   string
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64
}

type Side int

const (
	SideBuy  Side = 1
	SideSell Side = -1
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return fmt.Sprintf("side_%d", int(s))
	}
}

// ParseSide accepts english names and the buy/sell operation labels used by the ledger.
func ParseSide(s string) (Side, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch {
	case v == "buy" || v == "b" || strings.Contains(v, "买"):
		return SideBuy, nil
	case v == "sell" || v == "s" || strings.Contains(v, "卖"):
		return SideSell, nil
	default:
		return 0, fmt.Errorf("unknown trade side: %q", s)
	}
}

// TradeEvent is a single executed operation. Timestamp is zero when the source
// only knows the trading date.
type TradeEvent struct {
	Date      string
	Side      Side
	Price     decimal.Decimal
	Quantity  int64
	Amount    decimal.Decimal
	Timestamp time.Time
}

// Params identify one bar series. The struct is comparable and is used to tag
// in-flight requests.
type Params struct {
	Instrument string
	Interval   Interval
	Adjustment Adjustment
}

// Normalize forces no adjustment for intraday intervals, which have no adjusted data.
func (p Params) Normalize() Params {
	if p.Interval.IsIntraday() {
		p.Adjustment = AdjustNone
	}
	return p
}

func (p Params) String() string {
	return fmt.Sprintf("%s/%s/%s", p.Instrument, p.Interval, p.Adjustment)
}

// BarsRequest asks for at most Limit bars of a series. Start is inclusive and End
// is exclusive; both are bar keys and may be empty. When the window holds more
// than Limit bars, the latest ones are returned.
type BarsRequest struct {
	Params
	Limit int
	Start string
	End   string
}
