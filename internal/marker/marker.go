package marker

import (
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gamma-omg/kline-chart/internal/market"
	"github.com/gamma-omg/kline-chart/internal/viewport"
)

// Offset is the vertical distance in pixels between an anchor and its bar extreme.
const Offset = 25.0

type Policy int

const (
	MatchExact Policy = iota
	MatchNearest
)

func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "", "exact":
		return MatchExact, true
	case "nearest":
		return MatchNearest, true
	default:
		return MatchExact, false
	}
}

// Group counts the trades of one date per side.
type Group struct {
	Date      string
	BuyCount  int
	SellCount int
}

// Anchor is one on-screen badge for the same-side trades of one bar.
type Anchor struct {
	Date  string
	Side  market.Side
	Count int
	Index int
	X     float64
	Y     float64
}

// Badge returns the count label, empty for a single trade.
func (a Anchor) Badge() string {
	if a.Count > 1 {
		return strconv.Itoa(a.Count)
	}
	return ""
}

type Geometry interface {
	IndexToX(i int) float64
	PriceToY(p float64) float64
	XToIndex(x float64) int
}

type barSeries interface {
	Bars() []market.Bar
	Index(key string) (int, bool)
	At(i int) (market.Bar, bool)
	Len() int
}

// GroupEvents aggregates events by date key, ordered by date.
func GroupEvents(events []market.TradeEvent) []Group {
	byDate := map[string]*Group{}
	for _, e := range events {
		g, ok := byDate[e.Date]
		if !ok {
			g = &Group{Date: e.Date}
			byDate[e.Date] = g
		}

		switch e.Side {
		case market.SideBuy:
			g.BuyCount++
		case market.SideSell:
			g.SellCount++
		}
	}

	res := make([]Group, 0, len(byDate))
	for _, g := range byDate {
		res = append(res, *g)
	}
	slices.SortFunc(res, func(a, b Group) int {
		return strings.Compare(a.Date, b.Date)
	})
	return res
}

// Index returns the events of every date.
func Index(events []market.TradeEvent) map[string][]market.TradeEvent {
	res := map[string][]market.TradeEvent{}
	for _, e := range events {
		res[e.Date] = append(res[e.Date], e)
	}
	return res
}

type Projector struct {
	log    *slog.Logger
	Policy Policy
}

func NewProjector(log *slog.Logger, policy Policy) *Projector {
	return &Projector{log: log, Policy: policy}
}

// Project places anchors for the trade groups that resolve to a visible bar.
// Groups without a bar are dropped.
func (p *Projector) Project(s barSeries, visible viewport.Range, g Geometry, events []market.TradeEvent) []Anchor {
	var anchors []Anchor
	misses := 0

	for _, grp := range GroupEvents(events) {
		i, ok := p.resolve(s, grp.Date)
		if !ok {
			misses++
			continue
		}
		if !visible.Contains(i) {
			continue
		}

		b, _ := s.At(i)
		x := g.IndexToX(i)
		if grp.BuyCount > 0 {
			low, _ := b.Low.Float64()
			anchors = append(anchors, Anchor{
				Date:  grp.Date,
				Side:  market.SideBuy,
				Count: grp.BuyCount,
				Index: i,
				X:     x,
				Y:     g.PriceToY(low) + Offset,
			})
		}
		if grp.SellCount > 0 {
			high, _ := b.High.Float64()
			anchors = append(anchors, Anchor{
				Date:  grp.Date,
				Side:  market.SideSell,
				Count: grp.SellCount,
				Index: i,
				X:     x,
				Y:     g.PriceToY(high) - Offset,
			})
		}
	}

	if misses > 0 {
		p.log.Debug("trade dates without bars", "count", misses)
	}

	return anchors
}

func (p *Projector) resolve(s barSeries, date string) (int, bool) {
	if i, ok := s.Index(date); ok {
		return i, true
	}
	if p.Policy != MatchNearest {
		return 0, false
	}
	return nearestDay(s.Bars(), date)
}

func nearestDay(bars []market.Bar, date string) (int, bool) {
	if len(bars) == 0 {
		return 0, false
	}

	target, err := market.ParseKey(date, time.UTC)
	if err != nil {
		return 0, false
	}

	i, _ := slices.BinarySearchFunc(bars, date, func(b market.Bar, key string) int {
		return strings.Compare(b.Time, key)
	})

	best, bestDiff := -1, time.Duration(0)
	for _, j := range []int{i - 1, i} {
		if j < 0 || j >= len(bars) {
			continue
		}
		t, err := market.ParseKey(bars[j].Time, time.UTC)
		if err != nil {
			continue
		}

		diff := t.Sub(target).Abs()
		if best < 0 || diff < bestDiff {
			best, bestDiff = j, diff
		}
	}

	return best, best >= 0
}

// HitTest resolves a pointer position to the key of the nearest bar.
func HitTest(s barSeries, g Geometry, x float64) (string, bool) {
	if s.Len() == 0 {
		return "", false
	}

	i := min(max(g.XToIndex(x), 0), s.Len()-1)
	b, ok := s.At(i)
	if !ok {
		return "", false
	}
	return b.Time, true
}
