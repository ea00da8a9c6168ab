package render

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/gamma-omg/kline-chart/internal/indicator"
	"github.com/gamma-omg/kline-chart/internal/market"
	"github.com/gamma-omg/kline-chart/internal/viewport"
	"github.com/pplcc/plotext"
	"github.com/pplcc/plotext/custplotter"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

var (
	colorUp     = color.RGBA{R: 0xef, G: 0x44, B: 0x44, A: 0xff}
	colorDown   = color.RGBA{R: 0x22, G: 0xc5, B: 0x5e, A: 0xff}
	colorLine   = color.RGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff}
	colorFrame  = color.RGBA{R: 0x71, G: 0x71, B: 0x7a, A: 0xff}
	colorsMA    = []color.Color{color.RGBA{R: 0x8b, G: 0x5c, B: 0xf6, A: 0xff}, color.RGBA{R: 0xf5, G: 0x9e, B: 0x0b, A: 0xff}}
	priceHeight = 1 - volumePaneTop
)

// ohlcvSeries uses the logical index as the time coordinate.
type ohlcvSeries struct {
	bars   []market.Bar
	offset int
}

func (s ohlcvSeries) Len() int {
	return len(s.bars)
}

func (s ohlcvSeries) TOHLCV(i int) (float64, float64, float64, float64, float64, float64) {
	b := s.bars[i]
	o, _ := b.Open.Float64()
	h, _ := b.High.Float64()
	l, _ := b.Low.Float64()
	c, _ := b.Close.Float64()
	return float64(s.offset + i), o, h, l, c, float64(b.Volume)
}

// volumeSeries encodes the precomputed direction in open and close so VBars
// picks the up color for close >= previous close.
type volumeSeries []VolumeBar

func (v volumeSeries) Len() int {
	return len(v)
}

func (v volumeSeries) TOHLCV(i int) (float64, float64, float64, float64, float64, float64) {
	o, c := 0.0, 1.0
	if !v[i].Up {
		o, c = 1.0, 0.0
	}
	return float64(v[i].Index), o, c, o, c, float64(v[i].Volume)
}

// Draw writes the current frame as a PNG.
func (s *Surface) Draw(w io.Writer) error {
	price, volume, err := s.plots()
	if err != nil {
		return err
	}

	plotext.UniteAxisRanges([]*plot.Axis{&price.X, &volume.X})

	tbl := plotext.Table{
		RowHeights: []float64{volumePaneTop, priceHeight},
		ColWidths:  []float64{1},
	}

	img := vgimg.New(vg.Points(s.width), vg.Points(s.height))
	dc := draw.New(img)

	canvases := tbl.Align([][]*plot.Plot{{price}, {volume}}, dc)
	price.Draw(canvases[0][0])
	volume.Draw(canvases[1][0])

	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write chart png: %w", err)
	}

	return nil
}

func (s *Surface) plots() (price *plot.Plot, volume *plot.Plot, err error) {
	price = plot.New()
	volume = plot.New()
	for _, p := range []*plot.Plot{price, volume} {
		p.X.LineStyle.Color = colorFrame
		p.Y.LineStyle.Color = colorFrame
	}

	r, ok := s.visible.Clamp(len(s.bars))
	switch {
	case s.state != StateReady:
		blankFrame(price, volume, "loading")
		return
	case s.message != "":
		blankFrame(price, volume, s.message)
		return
	case !ok:
		blankFrame(price, volume, "no data")
		return
	}

	price.X.Min, price.X.Max = float64(r.From)-0.5, float64(r.To)+0.5
	volume.X.Min, volume.X.Max = price.X.Min, price.X.Max
	price.X.Tick.Marker = s.keyTicks(r)
	volume.X.Tick.Marker = plot.TickerFunc(func(_, _ float64) []plot.Tick { return nil })
	price.Y.Min, price.Y.Max = s.layout.MinPrice, s.layout.MaxPrice

	visible := ohlcvSeries{bars: s.bars[r.From : r.To+1], offset: r.From}

	if err = s.addPrimary(price, visible); err != nil {
		return
	}

	for i, ma := range s.mas {
		if err = addMA(price, ma.Label, ma.Points(), colorsMA[i%len(colorsMA)], s.indexOf, r); err != nil {
			return
		}
	}

	if err = s.addAnchors(price, r); err != nil {
		return
	}

	vbars, err := custplotter.NewVBars(volumeSeries(s.volume[r.From : r.To+1]))
	if err != nil {
		err = fmt.Errorf("failed to create volume bars: %w", err)
		return
	}
	vbars.ColorUp = colorUp
	vbars.ColorDown = colorDown
	volume.Add(vbars)

	return
}

// blankFrame pins both panes to a unit range; empty plots have no data range
// to derive axes from.
func blankFrame(price, volume *plot.Plot, title string) {
	price.Title.Text = title
	for _, p := range []*plot.Plot{price, volume} {
		p.X.Min, p.X.Max = 0, 1
		p.Y.Min, p.Y.Max = 0, 1
		p.X.Tick.Marker = plot.ConstantTicks(nil)
		p.Y.Tick.Marker = plot.ConstantTicks(nil)
	}
}

func (s *Surface) addPrimary(p *plot.Plot, visible ohlcvSeries) error {
	if s.chartType == market.ChartLine {
		xys := make(plotter.XYs, visible.Len())
		for i, b := range visible.bars {
			xys[i].X = float64(visible.offset + i)
			xys[i].Y, _ = b.Close.Float64()
		}

		line, err := plotter.NewLine(xys)
		if err != nil {
			return fmt.Errorf("failed to create price line: %w", err)
		}
		line.LineStyle.Color = colorLine
		line.LineStyle.Width = vg.Points(1.5)
		p.Add(line)
		return nil
	}

	candles, err := custplotter.NewCandlesticks(visible)
	if err != nil {
		return fmt.Errorf("failed to create candlesticks: %w", err)
	}
	candles.ColorUp = colorUp
	candles.ColorDown = colorDown
	p.Add(candles)
	return nil
}

func addMA(p *plot.Plot, label string, points []indicator.Point, c color.Color, index func(string) (int, bool), r viewport.Range) error {
	var xys plotter.XYs
	for _, pt := range points {
		i, ok := index(pt.Time)
		if !ok || !r.Contains(i) {
			continue
		}
		xys = append(xys, plotter.XY{X: float64(i), Y: pt.Value})
	}
	if len(xys) < 2 {
		return nil
	}

	line, err := plotter.NewLine(xys)
	if err != nil {
		return fmt.Errorf("failed to create %s line: %w", label, err)
	}
	line.LineStyle.Color = c
	line.LineStyle.Width = vg.Points(1)
	line.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}

func (s *Surface) addAnchors(p *plot.Plot, r viewport.Range) error {
	for _, side := range []market.Side{market.SideBuy, market.SideSell} {
		var xys plotter.XYs
		var labels []string
		for _, a := range s.anchors {
			if a.Side != side || !r.Contains(a.Index) {
				continue
			}
			b := s.bars[a.Index]
			y, _ := b.Low.Float64()
			if side == market.SideSell {
				y, _ = b.High.Float64()
			}
			xys = append(xys, plotter.XY{X: float64(a.Index), Y: y})
			labels = append(labels, a.Badge())
		}
		if len(xys) == 0 {
			continue
		}

		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("failed to create %s markers: %w", side, err)
		}
		sc.GlyphStyle.Shape = draw.TriangleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(4)
		sc.GlyphStyle.Color = colorUp
		if side == market.SideSell {
			sc.GlyphStyle.Color = colorDown
		}
		p.Add(sc)

		lbl, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
		if err != nil {
			return fmt.Errorf("failed to create %s marker labels: %w", side, err)
		}
		p.Add(lbl)
	}
	return nil
}

func (s *Surface) indexOf(key string) (int, bool) {
	return slices.BinarySearchFunc(s.bars, key, func(b market.Bar, k string) int {
		return strings.Compare(b.Time, k)
	})
}

// keyTicks labels the index axis with bar keys.
func (s *Surface) keyTicks(r viewport.Range) plot.Ticker {
	return plot.TickerFunc(func(_, _ float64) []plot.Tick {
		step := max(1, int(math.Ceil(float64(r.Width())/6)))
		var ticks []plot.Tick
		for i := r.From; i <= r.To; i++ {
			t := plot.Tick{Value: float64(i)}
			if (i-r.From)%step == 0 {
				t.Label = s.bars[i].Time
			}
			ticks = append(ticks, t)
		}
		return ticks
	})
}
