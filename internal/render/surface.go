package render

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gamma-omg/kline-chart/internal/indicator"
	"github.com/gamma-omg/kline-chart/internal/marker"
	"github.com/gamma-omg/kline-chart/internal/market"
	"github.com/gamma-omg/kline-chart/internal/viewport"
)

type State int

const (
	StateUninitialized State = iota
	StatePlaceholder
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePlaceholder:
		return "placeholder"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state_%d", int(s))
	}
}

type VolumeBar struct {
	Index  int
	Volume int64
	Up     bool
}

// Surface holds everything drawn in one frame. It is not safe for concurrent use.
type Surface struct {
	log *slog.Logger

	state State
	timer *time.Timer

	chartType market.ChartType
	width     float64
	height    float64

	bars    []market.Bar
	volume  []VolumeBar
	mas     []*indicator.MovingAverage
	anchors []marker.Anchor
	visible viewport.Range
	layout  Layout

	hover    int
	pointerX float64
	pointerY float64

	message string
}

func NewSurface(log *slog.Logger, chartType market.ChartType, width, height float64) *Surface {
	return &Surface{
		log:       log,
		chartType: chartType,
		width:     width,
		height:    height,
		hover:     -1,
	}
}

// Mount starts the placeholder animation. The returned channel is closed when it
// completes. Mounting an already mounted surface returns nil.
func (s *Surface) Mount(d time.Duration) <-chan struct{} {
	if s.state != StateUninitialized {
		return nil
	}

	s.state = StatePlaceholder
	done := make(chan struct{})
	if d <= 0 {
		close(done)
		return done
	}

	s.timer = time.AfterFunc(d, func() { close(done) })
	return done
}

func (s *Surface) CompletePlaceholder() {
	if s.state != StatePlaceholder {
		return
	}

	s.state = StateReady
	s.log.Debug("placeholder completed")
}

func (s *Surface) Unmount() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	s.state = StateUninitialized
	s.SetSeries(nil, nil)
	s.anchors = nil
	s.message = ""
	s.hover = -1
}

func (s *Surface) State() State {
	return s.state
}

func (s *Surface) ChartType() market.ChartType {
	return s.chartType
}

func (s *Surface) SetChartType(t market.ChartType) {
	s.chartType = t
}

func (s *Surface) Size() (float64, float64) {
	return s.width, s.height
}

func (s *Surface) Resize(width, height float64) {
	s.width = width
	s.height = height
	s.relayout()
}

// SetSeries replaces the primary and volume data and the overlays.
func (s *Surface) SetSeries(bars []market.Bar, mas []*indicator.MovingAverage) {
	s.bars = bars
	s.mas = mas
	s.volume = volumeBars(bars)
	s.relayout()
}

func (s *Surface) SetVisible(r viewport.Range) {
	s.visible = r
	s.relayout()
}

func (s *Surface) SetAnchors(a []marker.Anchor) {
	s.anchors = a
}

// SetMessage replaces the chart area with a status text. An empty message
// shows the series again.
func (s *Surface) SetMessage(msg string) {
	s.message = msg
}

func (s *Surface) Anchors() []marker.Anchor {
	return s.anchors
}

func (s *Surface) Volume() []VolumeBar {
	return s.volume
}

// Layout is the geometry of the current frame.
func (s *Surface) Layout() Layout {
	return s.layout
}

func (s *Surface) relayout() {
	s.layout = NewLayout(s.bars, s.visible, s.width, s.height)
	if s.hover >= len(s.bars) {
		s.hover = -1
	}
}

// PointerMove updates the hovered bar index.
func (s *Surface) PointerMove(x, y float64) {
	s.pointerX, s.pointerY = x, y
	if x < 0 || y < 0 || x > s.width || y > s.height {
		s.hover = -1
		return
	}

	i := s.layout.XToIndex(x)
	if i < 0 || i >= len(s.bars) || !s.visible.Contains(i) {
		s.hover = -1
		return
	}
	s.hover = i
}

func (s *Surface) PointerLeave() {
	s.hover = -1
}

// Hover returns the hovered bar index.
func (s *Surface) Hover() (int, bool) {
	return s.hover, s.hover >= 0
}

// volumeBars colors each bar against the previous close. The first bar is
// compared with its own open.
func volumeBars(bars []market.Bar) []VolumeBar {
	res := make([]VolumeBar, len(bars))
	for i, b := range bars {
		prev := b.Open
		if i > 0 {
			prev = bars[i-1].Close
		}
		res[i] = VolumeBar{Index: i, Volume: b.Volume, Up: b.Close.GreaterThanOrEqual(prev)}
	}
	return res
}
