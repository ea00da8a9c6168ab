package render

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/gamma-omg/kline-chart/internal/market"
)

const (
	tooltipOffset     = 15.0
	tooltipWidth      = 150.0
	tooltipLineHeight = 16.0
	tooltipPadding    = 8.0

	volumeAbbrevFrom = 10000
)

type MAValue struct {
	Label string
	Value string
}

type Tooltip struct {
	Time   string
	Open   string
	High   string
	Low    string
	Close  string
	Price  string
	Volume string
	MA     []MAValue

	X float64
	Y float64
}

func (t Tooltip) Lines() []string {
	lines := []string{t.Time}
	if t.Price != "" {
		lines = append(lines, "price "+t.Price)
	} else {
		lines = append(lines,
			fmt.Sprintf("O %s  C %s", t.Open, t.Close),
			fmt.Sprintf("H %s  L %s", t.High, t.Low))
	}

	lines = append(lines, "vol "+t.Volume)
	for _, m := range t.MA {
		lines = append(lines, m.Label+" "+m.Value)
	}
	return lines
}

func (t Tooltip) Size() (float64, float64) {
	return tooltipWidth, float64(len(t.Lines()))*tooltipLineHeight + 2*tooltipPadding
}

// Tooltip composes the payload of every series at the hovered index. It reports
// false when nothing is hovered.
func (s *Surface) Tooltip() (Tooltip, bool) {
	i, ok := s.Hover()
	if !ok {
		return Tooltip{}, false
	}
	b, ok := s.barAt(i)
	if !ok {
		return Tooltip{}, false
	}

	t := Tooltip{
		Time:   b.Time,
		Volume: FormatVolume(b.Volume),
	}
	if s.chartType == market.ChartLine {
		t.Price = b.Close.StringFixed(2)
	} else {
		t.Open = b.Open.StringFixed(2)
		t.High = b.High.StringFixed(2)
		t.Low = b.Low.StringFixed(2)
		t.Close = b.Close.StringFixed(2)
	}

	for _, ma := range s.mas {
		if v, ok := ma.ValueAt(b.Time); ok {
			t.MA = append(t.MA, MAValue{Label: ma.Label, Value: fmt.Sprintf("%.2f", v)})
		}
	}

	w, h := t.Size()
	t.X, t.Y = placeTooltip(s.pointerX, s.pointerY, w, h, s.width, s.height)
	return t, true
}

func (s *Surface) barAt(i int) (market.Bar, bool) {
	if i < 0 || i >= len(s.bars) {
		return market.Bar{}, false
	}
	return s.bars[i], true
}

// placeTooltip offsets the box from the pointer, flips it to the other side of
// the pointer on overflow and clamps it to the container.
func placeTooltip(px, py, w, h, cw, ch float64) (float64, float64) {
	x := px + tooltipOffset
	if x+w > cw {
		x = px - w - tooltipOffset
	}

	y := py + tooltipOffset
	if y+h > ch {
		y = py - h - tooltipOffset
	}

	x = max(min(x, cw-w), 0)
	y = max(min(y, ch-h), 0)
	return x, y
}

// FormatVolume abbreviates large volumes with an SI suffix.
func FormatVolume(v int64) string {
	if v >= volumeAbbrevFrom {
		value, prefix := humanize.ComputeSI(float64(v))
		return humanize.FtoaWithDigits(value, 2) + prefix
	}
	return humanize.Comma(v)
}
