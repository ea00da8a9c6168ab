package market

import (
	"errors"
	"slices"
	"strings"
)

// Dedupe removes bars with repeated keys, keeping the first occurrence, and sorts
// the result ascending by key.
func Dedupe(bars []Bar) []Bar {
	seen := make(map[string]struct{}, len(bars))
	res := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if _, ok := seen[b.Time]; ok {
			continue
		}
		seen[b.Time] = struct{}{}
		res = append(res, b)
	}

	slices.SortStableFunc(res, func(a, b Bar) int {
		return strings.Compare(a.Time, b.Time)
	})
	return res
}

// MergeOlder puts fetched ahead of existing and dedupes the result. On key
// collisions the fetched bar wins, being first in the concatenation.
func MergeOlder(existing, fetched []Bar) []Bar {
	if len(fetched) == 0 {
		return existing
	}

	all := make([]Bar, 0, len(fetched)+len(existing))
	all = append(all, fetched...)
	all = append(all, existing...)
	return Dedupe(all)
}

// Store is the ordered, deduplicated bar buffer of one series.
type Store struct {
	bars  []Bar
	index map[string]int
}

func NewStore() *Store {
	return &Store{index: map[string]int{}}
}

// Replace swaps the whole buffer.
func (s *Store) Replace(bars []Bar) {
	s.bars = Dedupe(bars)
	s.reindex()
}

// PrependOlder merges an older window into the buffer and returns how many new
// keys were added.
func (s *Store) PrependOlder(fetched []Bar) int {
	before := len(s.bars)
	s.bars = MergeOlder(s.bars, fetched)
	s.reindex()
	return len(s.bars) - before
}

func (s *Store) Reset() {
	s.bars = nil
	s.index = map[string]int{}
}

func (s *Store) Bars() []Bar {
	return s.bars
}

func (s *Store) Len() int {
	return len(s.bars)
}

func (s *Store) At(i int) (Bar, bool) {
	if i < 0 || i >= len(s.bars) {
		return Bar{}, false
	}
	return s.bars[i], true
}

// Index returns the logical index of the bar with the given key.
func (s *Store) Index(key string) (int, bool) {
	i, ok := s.index[key]
	return i, ok
}

func (s *Store) First() (Bar, error) {
	if len(s.bars) == 0 {
		return Bar{}, errors.New("insufficient data")
	}
	return s.bars[0], nil
}

func (s *Store) Last() (Bar, error) {
	if len(s.bars) == 0 {
		return Bar{}, errors.New("insufficient data")
	}
	return s.bars[len(s.bars)-1], nil
}

func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.bars))
	for i, b := range s.bars {
		s.index[b.Time] = i
	}
}
