package chart

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gamma-omg/kline-chart/internal/market"
	"github.com/gamma-omg/kline-chart/internal/viewport"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockFetcher struct {
	mu       sync.Mutex
	requests []market.BarsRequest
	bars     func(req market.BarsRequest) ([]market.Bar, error)
	intraday func(instrument, date string) ([]market.Bar, error)
}

func (m *mockFetcher) FetchBars(_ context.Context, req market.BarsRequest) ([]market.Bar, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.bars(req)
}

func (m *mockFetcher) FetchIntradayBars(_ context.Context, instrument, date string) ([]market.Bar, error) {
	return m.intraday(instrument, date)
}

func (m *mockFetcher) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type mockClock struct {
	t time.Time
}

func (m *mockClock) now() time.Time {
	return m.t
}

func series(n int, base float64) []market.Bar {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, n)
	for i := range n {
		c := decimal.NewFromFloat(base + float64(i%7))
		bars[i] = market.Bar{
			Time:   market.FormatKey(start.AddDate(0, 0, i), market.IntervalDay),
			Open:   c,
			High:   c.Add(decimal.NewFromInt(1)),
			Low:    c.Sub(decimal.NewFromInt(1)),
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

// window returns the latest req.Limit bars older than req.End.
func window(all []market.Bar, req market.BarsRequest) []market.Bar {
	end := len(all)
	if req.End != "" {
		end = 0
		for end < len(all) && all[end].Time < req.End {
			end++
		}
	}
	start := max(0, end-req.Limit)
	return append([]market.Bar(nil), all[start:end]...)
}

func dailyParams(instrument string) market.Params {
	return market.Params{Instrument: instrument, Interval: market.IntervalDay, Adjustment: market.AdjustNone}
}

func newTestShell(f *mockFetcher, opts Options) (*Shell, *mockClock) {
	if opts.Params.Instrument == "" {
		opts.Params = dailyParams("AAPL")
	}
	if opts.Width == 0 {
		opts.Width = 1000
	}
	if opts.Height == 0 {
		opts.Height = 500
	}
	if opts.Limit == 0 {
		opts.Limit = 150
	}

	s := New(slog.New(slog.DiscardHandler), f, opts)
	clk := &mockClock{t: time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)}
	s.vp.Now = clk.now
	return s, clk
}

func pump(t *testing.T, s *Shell) {
	t.Helper()
	select {
	case res := <-s.loader.Results():
		s.Handle(res)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no load result")
	}
}

func TestShell_windowLoad(t *testing.T) {
	all := series(300, 10)
	f := &mockFetcher{bars: func(req market.BarsRequest) ([]market.Bar, error) { return window(all, req), nil }}
	s, _ := newTestShell(f, Options{})
	defer s.Close()

	s.Mount()
	assert.Equal(t, StateLoading, s.Snapshot().State)
	pump(t, s)

	snap := s.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, 150, snap.Len)
	assert.Equal(t, viewport.Range{From: 50, To: 149}, snap.Range)
	assert.Equal(t, all[150].Time, snap.First)
	assert.Equal(t, all[299].Time, snap.Last)
	assert.Len(t, s.mas[0].Points(), 146)
	assert.Len(t, s.mas[1].Points(), 141)
}

func TestShell_historyPreservesViewport(t *testing.T) {
	all := series(300, 10)
	f := &mockFetcher{bars: func(req market.BarsRequest) ([]market.Bar, error) { return window(all, req), nil }}

	var loadMore int
	s, clk := newTestShell(f, Options{OnLoadMoreRequested: func() { loadMore++ }})
	defer s.Close()

	s.Mount()
	pump(t, s)

	r := viewport.Range{From: 5, To: 60}
	s.Scroll(r)
	assert.Equal(t, 1, loadMore)
	assert.True(t, s.Snapshot().HistoryInFlight)
	pump(t, s)

	snap := s.Snapshot()
	assert.Equal(t, 300, snap.Len)
	assert.Equal(t, r, snap.Range)
	assert.False(t, snap.Exhausted)
	assert.Equal(t, all[0].Time, snap.First)
	assert.Equal(t, 1, snap.Stats.HistoryMerges)
	assert.Equal(t, 150, snap.Stats.BarsPrepended)

	clk.t = clk.t.Add(2 * time.Second)
	s.Scroll(viewport.Range{From: 3, To: 50})
	pump(t, s)

	snap = s.Snapshot()
	assert.True(t, snap.Exhausted)
	assert.Equal(t, 300, snap.Len)

	clk.t = clk.t.Add(2 * time.Second)
	s.Scroll(viewport.Range{From: 0, To: 40})
	assert.Equal(t, 2, loadMore)
	assert.Equal(t, 3, f.calls())
}

func TestShell_atMostOneHistoryLoad(t *testing.T) {
	all := series(300, 10)
	hold := make(chan struct{})
	f := &mockFetcher{bars: func(req market.BarsRequest) ([]market.Bar, error) {
		if req.End != "" {
			<-hold
		}
		return window(all, req), nil
	}}
	s, clk := newTestShell(f, Options{})
	defer s.Close()

	s.Mount()
	pump(t, s)

	s.Scroll(viewport.Range{From: 10, To: 60})
	clk.t = clk.t.Add(5 * time.Second)
	s.Scroll(viewport.Range{From: 8, To: 58})
	s.Scroll(viewport.Range{From: 2, To: 52})

	close(hold)
	pump(t, s)
	assert.Equal(t, 2, f.calls())
	assert.Equal(t, 1, s.Snapshot().Stats.HistoryLoads)
}

func TestShell_staleHistoryDiscarded(t *testing.T) {
	x := series(300, 10)
	y := series(300, 500)
	hold := make(chan struct{})
	f := &mockFetcher{bars: func(req market.BarsRequest) ([]market.Bar, error) {
		if req.Instrument == "X" {
			if req.End != "" {
				<-hold
			}
			return window(x, req), nil
		}
		return window(y, req), nil
	}}
	s, _ := newTestShell(f, Options{Params: dailyParams("X")})
	defer s.Close()

	s.Mount()
	pump(t, s)
	s.Scroll(viewport.Range{From: 1, To: 50})
	require.True(t, s.Snapshot().HistoryInFlight)

	s.SetParams(dailyParams("Y"))
	close(hold)
	pump(t, s)
	pump(t, s)

	snap := s.Snapshot()
	assert.Equal(t, "Y", snap.Params.Instrument)
	assert.Equal(t, 150, snap.Len)
	assert.Equal(t, 1, snap.Stats.StaleDiscarded)
	for _, b := range s.Bars() {
		assert.True(t, b.Close.GreaterThanOrEqual(decimal.NewFromInt(500)))
	}
}

func TestShell_refreshHoldsBackHistory(t *testing.T) {
	all := series(450, 10)
	f := &mockFetcher{bars: func(req market.BarsRequest) ([]market.Bar, error) { return window(all, req), nil }}
	s, clk := newTestShell(f, Options{})
	defer s.Close()

	s.Mount()
	pump(t, s)
	s.Scroll(viewport.Range{From: 5, To: 60})
	pump(t, s)
	require.Equal(t, 300, s.Snapshot().Len)
	require.Equal(t, all[150].Time, s.Snapshot().First)

	s.Refresh()
	clk.t = clk.t.Add(2 * time.Second)
	s.Scroll(viewport.Range{From: 3, To: 50})
	assert.Equal(t, 1, s.Snapshot().Stats.HistoryLoads)
	assert.False(t, s.Snapshot().HistoryInFlight)
	pump(t, s)

	snap := s.Snapshot()
	assert.Equal(t, 150, snap.Len)
	assert.Equal(t, all[300].Time, snap.First)
	assert.Equal(t, 0, snap.Stats.StaleDiscarded)

	clk.t = clk.t.Add(2 * time.Second)
	s.Scroll(viewport.Range{From: 3, To: 50})
	require.True(t, s.Snapshot().HistoryInFlight)
	pump(t, s)

	bars := s.Bars()
	require.Len(t, bars, 300)
	assert.Equal(t, all[150:], bars)
}

func TestShell_emptyWindow(t *testing.T) {
	all := series(300, 10)
	empty := false
	f := &mockFetcher{bars: func(req market.BarsRequest) ([]market.Bar, error) {
		if empty {
			return []market.Bar{}, nil
		}
		return window(all, req), nil
	}}
	s, _ := newTestShell(f, Options{})
	defer s.Close()

	s.Mount()
	pump(t, s)
	require.Equal(t, 150, s.Snapshot().Len)

	empty = true
	s.Refresh()
	pump(t, s)

	snap := s.Snapshot()
	assert.Equal(t, StateEmpty, snap.State)
	assert.Equal(t, 0, snap.Len)
	assert.NoError(t, snap.Err)
	assert.Empty(t, s.Bars())
}

func TestShell_windowErrorKeepsData(t *testing.T) {
	all := series(300, 10)
	failing := false
	f := &mockFetcher{bars: func(req market.BarsRequest) ([]market.Bar, error) {
		if failing {
			return nil, errors.New("503 service unavailable")
		}
		return window(all, req), nil
	}}

	var reported []error
	s, _ := newTestShell(f, Options{OnError: func(err error) { reported = append(reported, err) }})
	defer s.Close()

	s.Mount()
	pump(t, s)
	before := s.Bars()

	failing = true
	s.Refresh()
	pump(t, s)

	snap := s.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Equal(t, before, s.Bars())
	require.Len(t, reported, 1)
	assert.Equal(t, 1, snap.Stats.Errors)

	failing = false
	s.Refresh()
	pump(t, s)
	assert.Equal(t, StateReady, s.Snapshot().State)
}

func TestShell_clickActivatesMarkers(t *testing.T) {
	all := series(10, 10)
	f := &mockFetcher{bars: func(req market.BarsRequest) ([]market.Bar, error) { return window(all, req), nil }}

	var activated string
	var events []market.TradeEvent
	s, _ := newTestShell(f, Options{
		Width: 1000,
		OnMarkerActivated: func(date string, e []market.TradeEvent) {
			activated = date
			events = e
		},
	})
	defer s.Close()

	s.Mount()
	pump(t, s)
	s.SetTrades([]market.TradeEvent{
		{Date: all[2].Time, Side: market.SideBuy},
		{Date: all[2].Time, Side: market.SideBuy},
		{Date: all[2].Time, Side: market.SideSell},
		{Date: "2019-12-31", Side: market.SideSell},
	})

	anchors := s.Snapshot().Anchors
	require.Len(t, anchors, 2)
	assert.Equal(t, 2, anchors[0].Count)

	assert.False(t, s.Click(50, 100))
	assert.True(t, s.Click(250, 100))
	assert.Equal(t, all[2].Time, activated)
	assert.Len(t, events, 3)
}

func TestShell_setParamsDropsTrades(t *testing.T) {
	all := series(10, 10)
	f := &mockFetcher{bars: func(req market.BarsRequest) ([]market.Bar, error) { return window(all, req), nil }}

	activated := 0
	s, _ := newTestShell(f, Options{
		Params:            dailyParams("X"),
		OnMarkerActivated: func(string, []market.TradeEvent) { activated++ },
	})
	defer s.Close()

	s.Mount()
	pump(t, s)
	s.SetTrades([]market.TradeEvent{{Date: all[2].Time, Side: market.SideBuy}})
	require.Len(t, s.Snapshot().Anchors, 1)

	weekly := dailyParams("X")
	weekly.Interval = market.IntervalWeek
	s.SetParams(weekly)
	s.SetParams(dailyParams("X"))
	pump(t, s)
	pump(t, s)
	require.Len(t, s.Snapshot().Anchors, 1)

	s.SetParams(dailyParams("Y"))
	pump(t, s)

	assert.Empty(t, s.Snapshot().Anchors)
	assert.False(t, s.Click(250, 100))
	assert.Equal(t, 0, activated)
}

func TestShell_drillDown(t *testing.T) {
	loc := time.UTC
	f := &mockFetcher{
		bars: func(req market.BarsRequest) ([]market.Bar, error) { return window(series(10, 10), req), nil },
		intraday: func(instrument, date string) ([]market.Bar, error) {
			return []market.Bar{{Time: date + " 09:30"}, {Time: date + " 09:31"}}, nil
		},
	}

	var view IntradayView
	s, _ := newTestShell(f, Options{Location: loc, OnDrillDown: func(v IntradayView) { view = v }})
	defer s.Close()

	s.Mount()
	pump(t, s)
	s.SetTrades([]market.TradeEvent{
		{Date: "2020-01-03", Side: market.SideBuy, Timestamp: time.Date(2020, 1, 3, 9, 31, 0, 0, loc)},
	})

	require.True(t, s.OpenDrillDown("2020-01-03"))
	pump(t, s)

	assert.Equal(t, "AAPL", view.Instrument)
	assert.Len(t, view.Bars, 2)
	require.Len(t, view.Markers, 1)
	assert.Equal(t, "2020-01-03 09:31", view.Markers[0].Time)
}

func TestShell_toggleMA(t *testing.T) {
	f := &mockFetcher{bars: func(req market.BarsRequest) ([]market.Bar, error) { return window(series(50, 10), req), nil }}
	s, _ := newTestShell(f, Options{})
	defer s.Close()

	s.Mount()
	pump(t, s)
	require.NotEmpty(t, s.mas[1].Points())

	require.NoError(t, s.SetMAEnabled(1, false))
	assert.Empty(t, s.mas[1].Points())
	require.Error(t, s.SetMAEnabled(5, true))
}

func TestShell_run(t *testing.T) {
	all := series(300, 10)
	f := &mockFetcher{bars: func(req market.BarsRequest) ([]market.Bar, error) { return window(all, req), nil }}
	s, _ := newTestShell(f, Options{Placeholder: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	require.NoError(t, s.Do(ctx, func() { s.Mount() }))
	require.Eventually(t, func() bool {
		var snap Snapshot
		_ = s.Do(ctx, func() { snap = s.Snapshot() })
		return snap.State == StateReady && snap.Surface.String() == "ready"
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Do(ctx, s.Unmount))
	var snap Snapshot
	require.NoError(t, s.Do(ctx, func() { snap = s.Snapshot() }))
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, 0, snap.Len)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, s.Close())
}
