package marker

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gamma-omg/kline-chart/internal/market"
)

// IntradayMarker pins one trade to a minute bar of the drill-down view.
type IntradayMarker struct {
	Time  string
	Index int
	Event market.TradeEvent
	Exact bool
}

// MatchIntraday pins events to minute bars by time of day. An event without an
// exact minute bar goes to the bar with the smallest minute difference. Events
// without a timestamp are skipped.
func MatchIntraday(log *slog.Logger, bars []market.Bar, events []market.TradeEvent, loc *time.Location) []IntradayMarker {
	if len(bars) == 0 {
		return nil
	}

	byClock := make(map[string]int, len(bars))
	minutes := make([]int, len(bars))
	for i, b := range bars {
		clock := clockOf(b.Time)
		if _, ok := byClock[clock]; !ok {
			byClock[clock] = i
		}
		minutes[i] = minuteOfDay(clock)
	}

	var res []IntradayMarker
	for _, e := range events {
		if e.Timestamp.IsZero() {
			log.Debug("trade without timestamp skipped", "date", e.Date)
			continue
		}

		t := e.Timestamp.In(loc)
		clock := t.Format("15:04")
		if i, ok := byClock[clock]; ok {
			res = append(res, IntradayMarker{Time: bars[i].Time, Index: i, Event: e, Exact: true})
			continue
		}

		target := t.Hour()*60 + t.Minute()
		best, bestDiff := -1, 0
		for i, m := range minutes {
			if m < 0 {
				continue
			}
			diff := abs(m - target)
			if best < 0 || diff < bestDiff {
				best, bestDiff = i, diff
			}
		}
		if best < 0 {
			continue
		}

		log.Debug("trade pinned to nearest minute", "trade", clock, "bar", bars[best].Time, "diff", bestDiff)
		res = append(res, IntradayMarker{Time: bars[best].Time, Index: best, Event: e})
	}

	return res
}

func clockOf(key string) string {
	if i := strings.LastIndexByte(key, ' '); i >= 0 {
		return key[i+1:]
	}
	return key
}

func minuteOfDay(clock string) int {
	h, m, ok := strings.Cut(clock, ":")
	if !ok {
		return -1
	}

	hh, err := strconv.Atoi(h)
	if err != nil {
		return -1
	}
	mm, err := strconv.Atoi(m)
	if err != nil {
		return -1
	}
	return hh*60 + mm
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
