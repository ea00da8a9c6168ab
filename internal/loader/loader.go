package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gamma-omg/kline-chart/internal/market"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var (
	ErrEmptyResult = errors.New("empty result")
	ErrStale       = errors.New("stale result")
)

type Kind int

const (
	KindWindow Kind = iota
	KindHistory
	KindIntraday
)

func (k Kind) String() string {
	switch k {
	case KindWindow:
		return "window"
	case KindHistory:
		return "history"
	case KindIntraday:
		return "intraday"
	default:
		return fmt.Sprintf("kind_%d", int(k))
	}
}

type FetchError struct {
	Kind   Kind
	Params market.Params
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to load %s bars for %s: %v", e.Kind, e.Params, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Result is posted exactly once for every started fetch.
type Result struct {
	Kind    Kind
	Gen     uint64
	Request market.BarsRequest
	Date    string
	Bars    []market.Bar
	Err     error
}

type barsFetcher interface {
	FetchBars(ctx context.Context, req market.BarsRequest) ([]market.Bar, error)
	FetchIntradayBars(ctx context.Context, instrument, date string) ([]market.Bar, error)
}

// Loader starts fetches in the background and tags them with a generation so
// results issued for superseded params can be recognized. Everything except the
// fetch goroutines must be called from a single goroutine.
type Loader struct {
	log     *slog.Logger
	fetcher barsFetcher
	results chan Result

	ctx    context.Context
	cancel context.CancelFunc
	eg     errgroup.Group
	sf     singleflight.Group

	gen      uint64
	inFlight map[Kind]bool
}

func New(log *slog.Logger, f barsFetcher) *Loader {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		log:      log,
		fetcher:  f,
		results:  make(chan Result, 8),
		ctx:      ctx,
		cancel:   cancel,
		inFlight: map[Kind]bool{},
	}
}

func (l *Loader) Results() <-chan Result {
	return l.results
}

func (l *Loader) Generation() uint64 {
	return l.gen
}

func (l *Loader) InFlight(k Kind) bool {
	return l.inFlight[k]
}

// Invalidate makes every outstanding result stale and clears in-flight flags.
func (l *Loader) Invalidate() {
	l.gen++
	clear(l.inFlight)
	l.log.Debug("loader invalidated", "generation", l.gen)
}

// LoadWindow fetches a full window. It supersedes every outstanding request.
func (l *Loader) LoadWindow(req market.BarsRequest) {
	l.Invalidate()
	l.start(KindWindow, Result{Request: req}, func(ctx context.Context) ([]market.Bar, error) {
		return l.fetcher.FetchBars(ctx, req)
	})
}

// LoadHistory fetches an older window unless one is already in flight. It is
// refused while a window load is pending, since the window replaces the bars the
// request is anchored to.
func (l *Loader) LoadHistory(req market.BarsRequest) bool {
	if l.inFlight[KindHistory] {
		l.log.Debug("history load already in flight")
		return false
	}
	if l.inFlight[KindWindow] {
		l.log.Debug("history load refused while a window load is pending")
		return false
	}

	l.start(KindHistory, Result{Request: req}, func(ctx context.Context) ([]market.Bar, error) {
		return l.fetcher.FetchBars(ctx, req)
	})
	return true
}

// LoadIntraday fetches the minute bars of one trading date.
func (l *Loader) LoadIntraday(params market.Params, date string) bool {
	if l.inFlight[KindIntraday] {
		l.log.Debug("intraday load already in flight")
		return false
	}

	res := Result{Request: market.BarsRequest{Params: params}, Date: date}
	l.start(KindIntraday, res, func(ctx context.Context) ([]market.Bar, error) {
		v, err, _ := l.sf.Do(params.Instrument+"@"+date, func() (any, error) {
			return l.fetcher.FetchIntradayBars(ctx, params.Instrument, date)
		})
		if err != nil {
			return nil, err
		}
		return v.([]market.Bar), nil
	})
	return true
}

func (l *Loader) start(k Kind, res Result, fetch func(ctx context.Context) ([]market.Bar, error)) {
	l.inFlight[k] = true
	res.Kind = k
	res.Gen = l.gen

	l.log.Debug("load started", "kind", k, "params", res.Request.Params, "generation", res.Gen)

	l.eg.Go(func() error {
		defer l.post(&res)
		res.Bars, res.Err = fetch(l.ctx)
		return nil
	})
}

func (l *Loader) post(res *Result) {
	select {
	case l.results <- *res:
	case <-l.ctx.Done():
	}
}

// Accept validates a result on the owning goroutine. It clears the in-flight flag
// of the result's kind unless the result is stale.
func (l *Loader) Accept(res Result) ([]market.Bar, error) {
	if res.Gen != l.gen {
		l.log.Debug("stale result discarded", "kind", res.Kind, "generation", res.Gen, "current", l.gen)
		return nil, ErrStale
	}

	l.inFlight[res.Kind] = false

	if res.Err != nil {
		return nil, &FetchError{Kind: res.Kind, Params: res.Request.Params, Err: res.Err}
	}

	if len(res.Bars) == 0 {
		return nil, ErrEmptyResult
	}

	return res.Bars, nil
}

// Close abandons outstanding fetches and waits for their goroutines.
func (l *Loader) Close() error {
	l.cancel()
	if err := l.eg.Wait(); err != nil {
		return fmt.Errorf("failed to stop loader: %w", err)
	}
	return nil
}
