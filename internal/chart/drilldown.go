package chart

import (
	"context"

	"github.com/gamma-omg/kline-chart/internal/loader"
	"github.com/gamma-omg/kline-chart/internal/marker"
	"github.com/gamma-omg/kline-chart/internal/market"
	"github.com/gamma-omg/kline-chart/internal/render"
	"github.com/gamma-omg/kline-chart/internal/viewport"
)

type barsFetcher interface {
	FetchBars(ctx context.Context, req market.BarsRequest) ([]market.Bar, error)
	FetchIntradayBars(ctx context.Context, instrument, date string) ([]market.Bar, error)
}

// IntradayView is the minute chart of one trading date with its trades pinned
// to minute bars.
type IntradayView struct {
	Instrument string
	Date       string
	Bars       []market.Bar
	Markers    []marker.IntradayMarker
}

// OpenDrillDown loads the minute bars of date. The view is delivered through
// OnDrillDown.
func (s *Shell) OpenDrillDown(date string) bool {
	p := market.Params{Instrument: s.params.Instrument, Interval: market.IntervalMinute, Adjustment: market.AdjustNone}
	return s.loader.LoadIntraday(p, date)
}

// Snapshot is a read-only copy of the chart state.
type Snapshot struct {
	Params          market.Params
	State           LoadState
	Surface         render.State
	Range           viewport.Range
	Len             int
	First           string
	Last            string
	Exhausted       bool
	HistoryInFlight bool
	Pending         bool
	Anchors         []marker.Anchor
	Err             error
	Stats           Stats
}

func (s *Shell) Snapshot() Snapshot {
	snap := Snapshot{
		Params:          s.params,
		State:           s.state,
		Surface:         s.surface.State(),
		Range:           s.vp.Range(),
		Len:             s.store.Len(),
		Exhausted:       s.vp.Exhausted(),
		HistoryInFlight: s.loader.InFlight(loader.KindHistory),
		Pending:         s.loader.InFlight(loader.KindWindow) || s.loader.InFlight(loader.KindHistory) || s.loader.InFlight(loader.KindIntraday),
		Anchors:         append([]marker.Anchor(nil), s.surface.Anchors()...),
		Err:             s.lastErr,
		Stats:           s.stats,
	}
	if b, err := s.store.First(); err == nil {
		snap.First = b.Time
	}
	if b, err := s.store.Last(); err == nil {
		snap.Last = b.Time
	}
	return snap
}

// Bars returns a copy of the current dataset.
func (s *Shell) Bars() []market.Bar {
	return append([]market.Bar(nil), s.store.Bars()...)
}
