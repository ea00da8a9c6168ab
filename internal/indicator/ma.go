package indicator

import (
	"fmt"

	"github.com/gamma-omg/kline-chart/internal/market"
	"github.com/shopspring/decimal"
)

type Point struct {
	Time  string
	Value float64
}

// ComputeMA returns the simple moving average of closes. The first period-1 bars
// have no entry.
func ComputeMA(bars []market.Bar, period int) (points []Point, err error) {
	if period <= 0 {
		err = fmt.Errorf("invalid moving average period: %d", period)
		return
	}

	n := len(bars)
	if n < period {
		points = []Point{}
		return
	}

	div := decimal.NewFromInt(int64(period))
	points = make([]Point, 0, n-period+1)
	sum := decimal.Zero
	for i, b := range bars {
		sum = sum.Add(b.Close)
		if i >= period {
			sum = sum.Sub(bars[i-period].Close)
		}
		if i < period-1 {
			continue
		}

		v, _ := sum.Div(div).Float64()
		points = append(points, Point{Time: b.Time, Value: v})
	}

	return
}

// MovingAverage is one overlay series. A disabled average holds no points.
type MovingAverage struct {
	Label   string
	Period  int
	Enabled bool

	points []Point
	byTime map[string]float64
}

func NewMovingAverage(period int, enabled bool) *MovingAverage {
	return &MovingAverage{
		Label:   fmt.Sprintf("MA%d", period),
		Period:  period,
		Enabled: enabled,
	}
}

func (m *MovingAverage) Update(bars []market.Bar) error {
	m.points = nil
	m.byTime = nil
	if !m.Enabled {
		return nil
	}

	points, err := ComputeMA(bars, m.Period)
	if err != nil {
		return fmt.Errorf("failed to compute %s: %w", m.Label, err)
	}

	m.points = points
	m.byTime = make(map[string]float64, len(points))
	for _, p := range points {
		m.byTime[p.Time] = p.Value
	}
	return nil
}

func (m *MovingAverage) Points() []Point {
	return m.points
}

func (m *MovingAverage) ValueAt(key string) (float64, bool) {
	v, ok := m.byTime[key]
	return v, ok
}
