package emulator

import (
	"time"

	"github.com/gamma-omg/kline-chart/internal/market"
)

// aggregate folds time-ordered ticks into bars of the interval. Bucket starts are
// computed in loc.
func aggregate(ticks []tick, iv market.Interval, loc *time.Location) []market.Bar {
	var bars []market.Bar
	var cur tick
	var key string

	flush := func() {
		if key == "" {
			return
		}
		bars = append(bars, market.Bar{
			Time:   key,
			Open:   cur.Open,
			High:   cur.High,
			Low:    cur.Low,
			Close:  cur.Close,
			Volume: cur.Volume.IntPart(),
		})
	}

	for _, t := range ticks {
		k := market.FormatKey(iv.Bucket(t.Time.In(loc)), iv)
		if k != key {
			flush()
			key = k
			cur = t
			continue
		}

		if t.High.GreaterThan(cur.High) {
			cur.High = t.High
		}
		if t.Low.LessThan(cur.Low) {
			cur.Low = t.Low
		}
		cur.Close = t.Close
		cur.Volume = cur.Volume.Add(t.Volume)
	}
	flush()

	return bars
}
