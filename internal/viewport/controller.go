package viewport

import (
	"fmt"
	"math"
	"time"
)

const (
	LeftEdgeThreshold  = 20
	DefaultVisibleBars = 100
	ReentryCooldown    = time.Second
	minVisibleBars     = 2
)

// Range is an inclusive window of logical bar indices.
type Range struct {
	From int
	To   int
}

func (r Range) Width() int {
	return r.To - r.From + 1
}

func (r Range) Contains(i int) bool {
	return i >= r.From && i <= r.To
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d]", r.From, r.To)
}

// Controller owns the visible range and decides when older history is needed.
// It is not safe for concurrent use.
type Controller struct {
	Now func() time.Time

	r           Range
	n           int
	initialized bool
	exhausted   bool
	lastTrigger time.Time
}

func NewController() *Controller {
	return &Controller{Now: time.Now}
}

// OnRangeChange records a user driven range, moved inside the loaded bars, and
// reports whether a backward load should be requested.
func (c *Controller) OnRangeChange(r Range, historyInFlight bool) bool {
	if !c.initialized {
		return false
	}

	r = r.fit(c.n)
	c.r = r
	if r.From >= LeftEdgeThreshold || historyInFlight || c.exhausted {
		return false
	}

	now := c.Now()
	if !c.lastTrigger.IsZero() && now.Sub(c.lastTrigger) < ReentryCooldown {
		return false
	}

	c.lastTrigger = now
	return true
}

// OnHistoryMerged keeps the visible range as it was before the merge. A fetch
// that received fewer bars than requested ends backward loading until the
// dataset is replaced.
func (c *Controller) OnHistoryMerged(storeLen, received, requested int) {
	c.n = storeLen
	if received < requested {
		c.exhausted = true
	}
}

// OnDatasetReplaced shows the latest bars of a freshly loaded dataset.
func (c *Controller) OnDatasetReplaced(storeLen int) {
	c.n = storeLen
	c.exhausted = false
	c.lastTrigger = time.Time{}
	if storeLen == 0 {
		c.r = Range{}
		c.initialized = false
		return
	}

	c.r = Range{From: max(0, storeLen-DefaultVisibleBars), To: storeLen - 1}
	c.initialized = true
}

func (c *Controller) MarkExhausted() {
	c.exhausted = true
}

func (c *Controller) Exhausted() bool {
	return c.exhausted
}

func (c *Controller) Initialized() bool {
	return c.initialized
}

func (c *Controller) Range() Range {
	return c.r
}

func (c *Controller) Reset() {
	c.r = Range{}
	c.n = 0
	c.initialized = false
	c.exhausted = false
	c.lastTrigger = time.Time{}
}

// Pan shifts the current range by delta bars, keeping its width.
func (c *Controller) Pan(delta int) Range {
	w := c.r.Width()
	from := c.r.From + delta
	from = min(from, c.n-w)
	from = max(from, 0)
	return Range{From: from, To: min(from+w-1, max(c.n-1, 0))}
}

// Zoom scales the range width around its right edge. Factors above 1 show more bars.
func (c *Controller) Zoom(factor float64) Range {
	if factor <= 0 {
		return c.r
	}

	w := int(math.Round(float64(c.r.Width()) * factor))
	w = max(w, minVisibleBars)
	if c.n > 0 {
		w = min(w, c.n)
	}
	return Range{From: max(c.r.To-w+1, 0), To: c.r.To}
}

// Clamp returns the drawable part of the range for a store of n bars.
func (r Range) Clamp(n int) (Range, bool) {
	if n == 0 {
		return Range{}, false
	}

	from := max(r.From, 0)
	to := min(r.To, n-1)
	if from > to {
		return Range{}, false
	}
	return Range{From: from, To: to}, true
}

// fit moves r inside [0, n), keeping its width where the bars allow it.
func (r Range) fit(n int) Range {
	if r.From > r.To {
		r.From, r.To = r.To, r.From
	}

	w := min(r.Width(), n)
	switch {
	case r.To < 0:
		return Range{From: 0, To: w - 1}
	case r.From > n-1:
		return Range{From: n - w, To: n - 1}
	default:
		return Range{From: max(r.From, 0), To: min(r.To, n-1)}
	}
}
