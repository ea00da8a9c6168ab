package render

import (
	"math"

	"github.com/gamma-omg/kline-chart/internal/market"
	"github.com/gamma-omg/kline-chart/internal/viewport"
)

const (
	priceMarginTop    = 0.08
	priceMarginBottom = 0.28
	volumePaneTop     = 0.72
)

// Layout maps logical indices, prices and volumes of the visible window to
// pixel coordinates of a Width x Height container.
type Layout struct {
	Width   float64
	Height  float64
	Visible viewport.Range

	MinPrice  float64
	MaxPrice  float64
	MaxVolume float64
}

// NewLayout scales the price and volume panes to the visible bars.
func NewLayout(bars []market.Bar, visible viewport.Range, width, height float64) Layout {
	l := Layout{Width: width, Height: height, Visible: visible}

	r, ok := visible.Clamp(len(bars))
	if !ok {
		return l
	}

	l.MinPrice = math.Inf(1)
	l.MaxPrice = math.Inf(-1)
	for _, b := range bars[r.From : r.To+1] {
		low, _ := b.Low.Float64()
		high, _ := b.High.Float64()
		l.MinPrice = min(l.MinPrice, low)
		l.MaxPrice = max(l.MaxPrice, high)
		l.MaxVolume = max(l.MaxVolume, float64(b.Volume))
	}

	return l
}

// Spacing is the horizontal distance between two adjacent bars.
func (l Layout) Spacing() float64 {
	n := l.Visible.Width()
	if n <= 0 {
		return 0
	}
	return l.Width / float64(n)
}

func (l Layout) IndexToX(i int) float64 {
	return (float64(i-l.Visible.From) + 0.5) * l.Spacing()
}

func (l Layout) XToIndex(x float64) int {
	s := l.Spacing()
	if s == 0 {
		return l.Visible.From
	}
	return l.Visible.From + int(math.Floor(x/s))
}

func (l Layout) PriceToY(p float64) float64 {
	top := l.Height * priceMarginTop
	bottom := l.Height * (1 - priceMarginBottom)

	span := l.MaxPrice - l.MinPrice
	if span <= 0 || math.IsInf(span, 0) {
		return (top + bottom) / 2
	}
	return top + (l.MaxPrice-p)/span*(bottom-top)
}

func (l Layout) VolumeToY(v float64) float64 {
	top := l.Height * volumePaneTop
	if l.MaxVolume <= 0 {
		return l.Height
	}
	return l.Height - v/l.MaxVolume*(l.Height-top)
}
