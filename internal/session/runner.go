package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gamma-omg/kline-chart/internal/chart"
	"github.com/gamma-omg/kline-chart/internal/config"
	"github.com/gamma-omg/kline-chart/internal/market"
	"github.com/gamma-omg/kline-chart/internal/render"
	"github.com/gamma-omg/kline-chart/internal/viewport"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

const settlePoll = 10 * time.Millisecond

var (
	ErrNotSettled       = errors.New("chart did not settle")
	ErrDrillDownPending = errors.New("intraday load already in flight")
)

type barsFetcher interface {
	FetchBars(ctx context.Context, req market.BarsRequest) ([]market.Bar, error)
	FetchIntradayBars(ctx context.Context, instrument, date string) ([]market.Bar, error)
}

// TradesFunc loads the trade events of one instrument.
type TradesFunc func(ctx context.Context, instrument string) ([]market.TradeEvent, error)

// Runner drives a chart through a scripted session and reports what happened.
type Runner struct {
	log    *slog.Logger
	cfg    config.Session
	shell  *chart.Shell
	report *JsonReportBuilder
	trades TradesFunc
}

func NewRunner(log *slog.Logger, f barsFetcher, opts chart.Options, cfg config.Session, trades TradesFunc) *Runner {
	r := &Runner{
		log:    log,
		cfg:    cfg,
		report: NewJsonReportBuilder(log),
		trades: trades,
	}

	onError := opts.OnError
	opts.OnError = func(err error) {
		r.report.SubmitError(err)
		if onError != nil {
			onError(err)
		}
	}

	onMarker := opts.OnMarkerActivated
	opts.OnMarkerActivated = func(date string, events []market.TradeEvent) {
		r.report.SubmitMarker(date, len(events))
		if onMarker != nil {
			onMarker(date, events)
		}
	}

	onDrillDown := opts.OnDrillDown
	opts.OnDrillDown = func(v chart.IntradayView) {
		r.report.SubmitDrillDown(v)
		if onDrillDown != nil {
			onDrillDown(v)
		}
	}

	onLoadMore := opts.OnLoadMoreRequested
	opts.OnLoadMoreRequested = func() {
		r.report.SubmitLoadMore()
		if onLoadMore != nil {
			onLoadMore()
		}
	}

	r.shell = chart.New(log, f, opts)
	return r
}

func (r *Runner) Shell() *chart.Shell {
	return r.shell
}

func (r *Runner) Report() JsonReport {
	return r.report.Report()
}

// Run mounts the chart, executes every step and writes the report and the bar
// dump. Step failures are reported and do not stop the session.
func (r *Runner) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	loopCtx, stop := context.WithCancel(gctx)
	defer stop()

	g.Go(func() error {
		return r.shell.Run(loopCtx)
	})
	g.Go(func() error {
		defer stop()
		return r.session(loopCtx)
	})

	err := g.Wait()

	// the loop has stopped, the shell is owned by this goroutine now
	r.report.SubmitSnapshot(r.shell.Snapshot())
	if ferr := r.finish(); ferr != nil {
		err = errors.Join(err, ferr)
	}

	if cerr := r.shell.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}

	return err
}

func (r *Runner) session(ctx context.Context) error {
	var instrument string
	err := r.shell.Do(ctx, func() {
		r.shell.Mount()
		instrument = r.shell.Params().Instrument
	})
	if err != nil {
		return err
	}
	r.loadTrades(ctx, instrument)

	if r.cfg.Refresh != "" {
		c := cron.New()
		if _, err := c.AddFunc(r.cfg.Refresh, func() { r.refresh(ctx) }); err != nil {
			return fmt.Errorf("invalid refresh schedule: %w", err)
		}
		c.Start()
		defer func() {
			<-c.Stop().Done()
		}()

		r.log.Info("refresh scheduled", "schedule", r.cfg.Refresh)
	}

	for i, ref := range r.cfg.Steps {
		name := stepName(ref.Step)
		start := time.Now()
		err := r.step(ctx, ref.Step)
		r.report.SubmitStep(name, time.Since(start), err)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			r.log.Warn("step failed", "index", i, "step", name, "error", err)
		}
	}

	return r.hold(ctx)
}

// hold keeps a scheduled session alive after the last step.
func (r *Runner) hold(ctx context.Context) error {
	switch {
	case r.cfg.Timeout > 0:
		return sleep(ctx, r.cfg.Timeout)
	case r.cfg.Refresh != "":
		<-ctx.Done()
		return ctx.Err()
	default:
		return nil
	}
}

func (r *Runner) step(ctx context.Context, s config.Step) error {
	switch s := s.(type) {
	case config.Wait:
		return sleep(ctx, time.Duration(s))
	case config.Settle:
		return r.settle(ctx, time.Duration(s))
	case config.Scroll:
		return r.shell.Do(ctx, func() { r.shell.Scroll(viewport.Range{From: s.From, To: s.To}) })
	case config.Pan:
		return r.shell.Do(ctx, func() { r.shell.Pan(int(s)) })
	case config.Zoom:
		return r.shell.Do(ctx, func() { r.shell.Zoom(float64(s)) })
	case config.Pointer:
		return r.shell.Do(ctx, func() {
			r.shell.PointerMove(s.X, s.Y)
			if tt, ok := r.shell.Tooltip(); ok {
				r.log.Debug("tooltip", "lines", tt.Lines())
			}
		})
	case config.Click:
		return r.shell.Do(ctx, func() {
			if !r.shell.Click(s.X, s.Y) {
				r.log.Debug("click missed markers", "x", s.X, "y", s.Y)
			}
		})
	case config.Resize:
		return r.shell.Do(ctx, func() { r.shell.Resize(s.Width, s.Height) })
	case config.Params:
		return r.setParams(ctx, s)
	case config.ChartType:
		t, err := market.ParseChartType(string(s))
		if err != nil {
			return err
		}
		return r.shell.Do(ctx, func() { r.shell.SetChartType(t) })
	case config.ToggleMA:
		var err error
		if derr := r.shell.Do(ctx, func() { err = r.shell.SetMAEnabled(s.Index, s.Enabled) }); derr != nil {
			return derr
		}
		return err
	case config.DrillDown:
		var ok bool
		if err := r.shell.Do(ctx, func() { ok = r.shell.OpenDrillDown(string(s)) }); err != nil {
			return err
		}
		if !ok {
			return ErrDrillDownPending
		}
		return nil
	case config.Draw:
		return r.draw(ctx, string(s))
	default:
		return fmt.Errorf("unsupported step: %T", s)
	}
}

func (r *Runner) setParams(ctx context.Context, s config.Params) error {
	var cur market.Params
	if err := r.shell.Do(ctx, func() { cur = r.shell.Params() }); err != nil {
		return err
	}

	next := cur
	if s.Instrument != "" {
		next.Instrument = s.Instrument
	}
	if s.Interval != "" {
		iv, err := market.ParseInterval(s.Interval)
		if err != nil {
			return err
		}
		next.Interval = iv
	}
	if s.Adjustment != "" {
		adj, err := market.ParseAdjustment(s.Adjustment)
		if err != nil {
			return err
		}
		next.Adjustment = adj
	}

	if err := r.shell.Do(ctx, func() { r.shell.SetParams(next) }); err != nil {
		return err
	}

	if next.Instrument != cur.Instrument {
		r.loadTrades(ctx, next.Instrument)
	}
	return nil
}

func (r *Runner) settle(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var snap chart.Snapshot
		if err := r.shell.Do(ctx, func() { snap = r.shell.Snapshot() }); err != nil {
			return err
		}
		if !snap.Pending && snap.Surface == render.StateReady {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w within %s", ErrNotSettled, timeout)
		}
		if err := sleep(ctx, settlePoll); err != nil {
			return err
		}
	}
}

func (r *Runner) draw(ctx context.Context, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create frame file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	var derr error
	if err = r.shell.Do(ctx, func() { derr = r.shell.Draw(f) }); err != nil {
		return
	}
	return derr
}

func (r *Runner) loadTrades(ctx context.Context, instrument string) {
	if r.trades == nil {
		return
	}

	events, err := r.trades(ctx, instrument)
	if err != nil {
		r.log.Warn("failed to load trades", "instrument", instrument, "error", err)
		r.report.SubmitError(err)
		return
	}

	if err := r.shell.Do(ctx, func() { r.shell.SetTrades(events) }); err != nil {
		r.log.Debug("trades not applied", "error", err)
	}
}

func (r *Runner) refresh(ctx context.Context) {
	r.report.SubmitRefresh()
	if err := r.shell.Do(ctx, r.shell.Refresh); err != nil {
		r.log.Debug("refresh skipped", "error", err)
	}
}

func (r *Runner) finish() error {
	var errs []error

	if r.cfg.Report != "" {
		if err := r.writeReport(r.cfg.Report); err != nil {
			errs = append(errs, err)
		}
	}

	if r.cfg.Dump != "" {
		if err := dumpBars(r.cfg.Dump, r.shell.Bars()); err != nil {
			errs = append(errs, err)
		} else {
			r.log.Info("bars dumped", "path", r.cfg.Dump)
		}
	}

	return errors.Join(errs...)
}

func (r *Runner) writeReport(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create session report: %w", err)
	}

	if err := r.report.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func stepName(s config.Step) string {
	name := fmt.Sprintf("%T", s)
	name = name[strings.LastIndex(name, ".")+1:]
	return strings.ToLower(name)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
