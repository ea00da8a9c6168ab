package session

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gamma-omg/kline-chart/internal/chart"
)

type JsonReportBuilder struct {
	log    *slog.Logger
	report JsonReport
	mu     sync.Mutex
}

type JsonReport struct {
	Params     string          `json:"params,omitempty"`
	State      string          `json:"state,omitempty"`
	Range      string          `json:"range,omitempty"`
	Bars       int             `json:"bars"`
	First      string          `json:"first,omitempty"`
	Last       string          `json:"last,omitempty"`
	Exhausted  bool            `json:"exhausted,omitempty"`
	Stats      chart.Stats     `json:"stats"`
	Refreshes  int             `json:"refreshes,omitempty"`
	LoadMore   int             `json:"load_more,omitempty"`
	Markers    []JsonMarker    `json:"markers,omitempty"`
	DrillDowns []JsonDrillDown `json:"drilldowns,omitempty"`
	Steps      []JsonStep      `json:"steps,omitempty"`
	Errors     []string        `json:"errors,omitempty"`
}

type JsonStep struct {
	Step     string        `json:"step"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

type JsonMarker struct {
	Date   string `json:"date"`
	Trades int    `json:"trades"`
}

type JsonDrillDown struct {
	Instrument string `json:"instrument"`
	Date       string `json:"date"`
	Bars       int    `json:"bars"`
	Markers    int    `json:"markers"`
}

func NewJsonReportBuilder(log *slog.Logger) *JsonReportBuilder {
	return &JsonReportBuilder{log: log}
}

func (r *JsonReportBuilder) SubmitStep(name string, d time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := JsonStep{Step: name, Duration: d}
	if err != nil {
		s.Error = err.Error()
	}
	r.report.Steps = append(r.report.Steps, s)

	r.log.Debug("step done", "step", name, "duration", d, "error", err)
}

func (r *JsonReportBuilder) SubmitError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.report.Errors = append(r.report.Errors, err.Error())
}

func (r *JsonReportBuilder) SubmitMarker(date string, trades int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.report.Markers = append(r.report.Markers, JsonMarker{Date: date, Trades: trades})
	r.log.Info("marker activated", "date", date, "trades", trades)
}

func (r *JsonReportBuilder) SubmitDrillDown(v chart.IntradayView) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.report.DrillDowns = append(r.report.DrillDowns, JsonDrillDown{
		Instrument: v.Instrument,
		Date:       v.Date,
		Bars:       len(v.Bars),
		Markers:    len(v.Markers),
	})
	r.log.Info("intraday view opened", "instrument", v.Instrument, "date", v.Date, "bars", len(v.Bars))
}

func (r *JsonReportBuilder) SubmitLoadMore() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.report.LoadMore++
}

func (r *JsonReportBuilder) SubmitRefresh() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.report.Refreshes++
}

// SubmitSnapshot records the final chart state.
func (r *JsonReportBuilder) SubmitSnapshot(s chart.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.report.Params = s.Params.String()
	r.report.State = s.State.String()
	r.report.Range = s.Range.String()
	r.report.Bars = s.Len
	r.report.First = s.First
	r.report.Last = s.Last
	r.report.Exhausted = s.Exhausted
	r.report.Stats = s.Stats
}

func (r *JsonReportBuilder) Report() JsonReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.report
}

func (r *JsonReportBuilder) Write(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	if err := e.Encode(r.report); err != nil {
		return fmt.Errorf("failed to write session report: %w", err)
	}

	return nil
}
