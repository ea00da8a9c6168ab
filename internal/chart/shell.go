package chart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gamma-omg/kline-chart/internal/indicator"
	"github.com/gamma-omg/kline-chart/internal/loader"
	"github.com/gamma-omg/kline-chart/internal/marker"
	"github.com/gamma-omg/kline-chart/internal/market"
	"github.com/gamma-omg/kline-chart/internal/render"
	"github.com/gamma-omg/kline-chart/internal/viewport"
)

type LoadState int

const (
	StateIdle LoadState = iota
	StateLoading
	StateReady
	StateEmpty
	StateError
)

func (s LoadState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateEmpty:
		return "empty"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state_%d", int(s))
	}
}

type MAOptions struct {
	Period  int
	Enabled bool
}

type Options struct {
	Params      market.Params
	ChartType   market.ChartType
	MA          []MAOptions
	Width       float64
	Height      float64
	Limit       int
	DailyMatch  marker.Policy
	Placeholder time.Duration
	Location    *time.Location

	OnLoadMoreRequested func()
	OnMarkerActivated   func(date string, events []market.TradeEvent)
	OnError             func(err error)
	OnDrillDown         func(v IntradayView)
}

// Stats counts what happened during the lifetime of a shell.
type Stats struct {
	WindowLoads    int `json:"window_loads"`
	HistoryLoads   int `json:"history_loads"`
	HistoryMerges  int `json:"history_merges"`
	BarsPrepended  int `json:"bars_prepended"`
	StaleDiscarded int `json:"stale_discarded"`
	Errors         int `json:"errors"`
}

// Shell composes a single chart. All methods except Run, Post and Do must be
// called from the goroutine running Run, or before Run is started.
type Shell struct {
	log  *slog.Logger
	opts Options

	params    market.Params
	store     *market.Store
	mas       []*indicator.MovingAverage
	vp        *viewport.Controller
	loader    *loader.Loader
	surface   *render.Surface
	projector *marker.Projector

	trades       []market.TradeEvent
	tradesByDate map[string][]market.TradeEvent

	events      chan func()
	placeholder <-chan struct{}
	teardown    func()
	release     func()

	state   LoadState
	lastErr error
	stats   Stats
}

func New(log *slog.Logger, f barsFetcher, opts Options) *Shell {
	if len(opts.MA) == 0 {
		opts.MA = []MAOptions{{Period: 5, Enabled: true}, {Period: 10, Enabled: true}}
	}
	if opts.ChartType == "" {
		opts.ChartType = market.ChartCandlestick
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	mas := make([]*indicator.MovingAverage, len(opts.MA))
	for i, m := range opts.MA {
		mas[i] = indicator.NewMovingAverage(m.Period, m.Enabled)
	}

	return &Shell{
		log:          log,
		opts:         opts,
		params:       opts.Params.Normalize(),
		store:        market.NewStore(),
		mas:          mas,
		vp:           viewport.NewController(),
		loader:       loader.New(log, f),
		surface:      render.NewSurface(log, opts.ChartType, opts.Width, opts.Height),
		projector:    marker.NewProjector(log, opts.DailyMatch),
		tradesByDate: map[string][]market.TradeEvent{},
		events:       make(chan func()),
	}
}

// Mount starts the placeholder and the first window load. The returned teardown
// releases everything Mount acquired.
func (s *Shell) Mount() func() {
	if s.teardown != nil {
		return s.teardown
	}

	s.placeholder = s.surface.Mount(s.opts.Placeholder)
	s.release = s.acquire()

	s.teardown = func() {
		if s.release != nil {
			s.release()
			s.release = nil
		}
		s.surface.Unmount()
		s.placeholder = nil
		s.state = StateIdle
	}
	return s.teardown
}

func (s *Shell) Unmount() {
	if s.teardown != nil {
		s.teardown()
		s.teardown = nil
	}
}

// acquire starts a fresh dataset for the current params.
func (s *Shell) acquire() func() {
	s.state = StateLoading
	s.surface.SetMessage("")
	s.loadWindow()

	return func() {
		s.loader.Invalidate()
		s.store.Reset()
		s.vp.Reset()
		s.surface.SetSeries(nil, nil)
		s.surface.SetAnchors(nil)
	}
}

// SetParams switches instrument, interval or adjustment. The current dataset is
// dropped and every outstanding result becomes stale. Trades belong to an
// instrument and are dropped when it changes.
func (s *Shell) SetParams(p market.Params) {
	p = p.Normalize()
	if p == s.params {
		return
	}

	s.log.Info("chart params changed", "from", s.params, "to", p)
	if s.release != nil {
		s.release()
	}
	if p.Instrument != s.params.Instrument {
		s.trades = nil
		s.tradesByDate = map[string][]market.TradeEvent{}
	}
	s.params = p
	if s.teardown != nil {
		s.release = s.acquire()
	}
}

func (s *Shell) Params() market.Params {
	return s.params
}

// Refresh reloads the full window for the current params. The current dataset
// stays visible until the result arrives.
func (s *Shell) Refresh() {
	if s.teardown == nil {
		return
	}
	s.loadWindow()
}

func (s *Shell) limit() int {
	if s.opts.Limit > 0 {
		return s.opts.Limit
	}
	return s.params.Interval.DefaultLimit()
}

func (s *Shell) loadWindow() {
	s.stats.WindowLoads++
	s.loader.LoadWindow(market.BarsRequest{Params: s.params, Limit: s.limit()})
}

func (s *Shell) requestHistory() {
	first, err := s.store.First()
	if err != nil {
		return
	}

	req := market.BarsRequest{Params: s.params, Limit: s.limit(), End: first.Time}
	if !s.loader.LoadHistory(req) {
		return
	}

	s.stats.HistoryLoads++
	s.log.Debug("requesting older bars", "params", s.params, "before", first.Time)
	if s.opts.OnLoadMoreRequested != nil {
		s.opts.OnLoadMoreRequested()
	}
}

// Run processes load results and posted events until ctx is done.
func (s *Shell) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case res := <-s.loader.Results():
			s.Handle(res)
		case fn := <-s.events:
			fn()
		case <-s.placeholder:
			s.placeholder = nil
			s.surface.CompletePlaceholder()
		}
	}
}

// Post schedules fn on the loop goroutine.
func (s *Shell) Post(ctx context.Context, fn func()) error {
	select {
	case s.events <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (s *Shell) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if err := s.Post(ctx, func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle applies one load result.
func (s *Shell) Handle(res loader.Result) {
	switch res.Kind {
	case loader.KindWindow:
		s.handleWindow(res)
	case loader.KindHistory:
		s.handleHistory(res)
	case loader.KindIntraday:
		s.handleIntraday(res)
	}
}

func (s *Shell) handleWindow(res loader.Result) {
	bars, err := s.loader.Accept(res)
	switch {
	case errors.Is(err, loader.ErrStale):
		s.stats.StaleDiscarded++
		return
	case errors.Is(err, loader.ErrEmptyResult):
		s.log.Info("no bars for params", "params", res.Request.Params)
		s.store.Reset()
		s.vp.OnDatasetReplaced(0)
		s.state = StateEmpty
		s.surface.SetMessage("no data")
		s.refreshData()
		return
	case err != nil:
		s.state = StateError
		s.surface.SetMessage("failed to load data")
		s.fail(err)
		return
	}

	s.store.Replace(bars)
	s.vp.OnDatasetReplaced(s.store.Len())
	s.state = StateReady
	s.lastErr = nil
	s.surface.SetMessage("")
	s.refreshData()
}

func (s *Shell) handleHistory(res loader.Result) {
	bars, err := s.loader.Accept(res)
	switch {
	case errors.Is(err, loader.ErrStale):
		s.stats.StaleDiscarded++
		return
	case errors.Is(err, loader.ErrEmptyResult):
		s.log.Info("history exhausted", "params", res.Request.Params)
		s.vp.MarkExhausted()
		return
	case err != nil:
		s.fail(err)
		return
	}

	added := s.store.PrependOlder(bars)
	s.vp.OnHistoryMerged(s.store.Len(), len(bars), res.Request.Limit)
	s.stats.HistoryMerges++
	s.stats.BarsPrepended += added
	s.log.Debug("older bars merged", "received", len(bars), "added", added, "exhausted", s.vp.Exhausted())
	s.refreshData()
}

func (s *Shell) handleIntraday(res loader.Result) {
	bars, err := s.loader.Accept(res)
	switch {
	case errors.Is(err, loader.ErrStale):
		s.stats.StaleDiscarded++
		return
	case errors.Is(err, loader.ErrEmptyResult):
		bars = nil
	case err != nil:
		s.fail(err)
		return
	}

	v := IntradayView{
		Instrument: res.Request.Instrument,
		Date:       res.Date,
		Bars:       bars,
		Markers:    marker.MatchIntraday(s.log, bars, s.tradesByDate[res.Date], s.opts.Location),
	}
	if s.opts.OnDrillDown != nil {
		s.opts.OnDrillDown(v)
	}
}

func (s *Shell) fail(err error) {
	s.lastErr = err
	s.stats.Errors++
	s.log.Error("chart load failed", "error", err)
	if s.opts.OnError != nil {
		s.opts.OnError(err)
	}
}

// refreshData recomputes everything derived from the bars.
func (s *Shell) refreshData() {
	bars := s.store.Bars()
	for _, ma := range s.mas {
		if err := ma.Update(bars); err != nil {
			s.log.Warn("failed to update moving average", "error", err)
		}
	}
	s.surface.SetSeries(bars, s.mas)
	s.refreshView()
}

// refreshView recomputes everything that depends on geometry.
func (s *Shell) refreshView() {
	r, ok := s.vp.Range().Clamp(s.store.Len())
	if !ok {
		s.surface.SetVisible(viewport.Range{})
		s.surface.SetAnchors(nil)
		return
	}

	s.surface.SetVisible(r)
	s.surface.SetAnchors(s.projector.Project(s.store, r, s.surface.Layout(), s.trades))
}

// Scroll applies a user driven visible range.
func (s *Shell) Scroll(r viewport.Range) {
	busy := s.loader.InFlight(loader.KindHistory) || s.loader.InFlight(loader.KindWindow)
	if s.vp.OnRangeChange(r, busy) {
		s.requestHistory()
	}
	s.refreshView()
}

func (s *Shell) Pan(delta int) {
	s.Scroll(s.vp.Pan(delta))
}

func (s *Shell) Zoom(factor float64) {
	s.Scroll(s.vp.Zoom(factor))
}

func (s *Shell) PointerMove(x, y float64) {
	s.surface.PointerMove(x, y)
}

func (s *Shell) PointerLeave() {
	s.surface.PointerLeave()
}

func (s *Shell) Tooltip() (render.Tooltip, bool) {
	return s.surface.Tooltip()
}

// Click activates the trades of the bar under the pointer. It reports whether
// the bar had any.
func (s *Shell) Click(x, y float64) bool {
	key, ok := marker.HitTest(s.store, s.surface.Layout(), x)
	if !ok {
		return false
	}

	events := s.tradesByDate[key]
	if len(events) == 0 {
		return false
	}

	if s.opts.OnMarkerActivated != nil {
		s.opts.OnMarkerActivated(key, events)
	}
	return true
}

func (s *Shell) Resize(width, height float64) {
	s.surface.Resize(width, height)
	s.refreshView()
}

func (s *Shell) SetTrades(events []market.TradeEvent) {
	s.trades = events
	s.tradesByDate = marker.Index(events)
	s.refreshView()
}

func (s *Shell) SetChartType(t market.ChartType) {
	s.surface.SetChartType(t)
}

func (s *Shell) SetMAEnabled(i int, enabled bool) error {
	if i < 0 || i >= len(s.mas) {
		return fmt.Errorf("moving average %d does not exist", i)
	}

	s.mas[i].Enabled = enabled
	s.refreshData()
	return nil
}

// Draw renders the current frame as a PNG.
func (s *Shell) Draw(w io.Writer) error {
	if err := s.surface.Draw(w); err != nil {
		return fmt.Errorf("failed to draw chart: %w", err)
	}
	return nil
}

// Close unmounts the chart and waits for outstanding fetches.
func (s *Shell) Close() error {
	s.Unmount()
	return s.loader.Close()
}
