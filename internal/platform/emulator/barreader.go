package emulator

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// tick is one raw row of a data file.
type tick struct {
	Time   time.Time
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

type tickFilter func(t tick) bool

type readResult struct {
	tick tick
	err  error
}

type barReader struct {
	path   string
	filter tickFilter
}

func newBarReader(dataPath string) (*barReader, error) {
	return newBarReaderWithFilter(dataPath, func(t tick) bool { return true })
}

func newBarReaderWithFilter(dataPath string, filter tickFilter) (*barReader, error) {
	if _, err := os.Stat(dataPath); err != nil {
		return nil, fmt.Errorf("unable to create bar reader: %w", err)
	}

	return &barReader{
		path:   dataPath,
		filter: filter,
	}, nil
}

// Read streams rows of the data file. The channel is closed after the last row,
// the first error or context cancellation.
func (b *barReader) Read(ctx context.Context) <-chan readResult {
	out := make(chan readResult, 64)

	go func() {
		defer close(out)

		send := func(r readResult) bool {
			select {
			case out <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}

		f, err := os.Open(b.path)
		if err != nil {
			send(readResult{err: fmt.Errorf("failed to open data file: %w", err)})
			return
		}
		defer f.Close()

		rdr := csv.NewReader(bufio.NewReader(f))
		if _, err := rdr.Read(); err != nil {
			send(readResult{err: fmt.Errorf("failed to read csv header: %w", err)})
			return
		}

		for {
			data, err := rdr.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				send(readResult{err: fmt.Errorf("failed to read bar data: %w", err)})
				return
			}

			t, err := parseTick(data)
			if err != nil {
				send(readResult{err: err})
				return
			}

			if b.filter(t) && !send(readResult{tick: t}) {
				return
			}
		}
	}()

	return out
}

func parseTick(data []string) (t tick, err error) {
	if len(data) < 6 {
		err = fmt.Errorf("expected 6 columns, got %d", len(data))
		return
	}

	timestamp, err := strconv.ParseFloat(data[0], 64)
	if err != nil {
		err = fmt.Errorf("failed to parse bar time: %w", err)
		return
	}
	t.Time = time.Unix(int64(timestamp), 0)

	fields := []struct {
		dst  *decimal.Decimal
		name string
	}{
		{&t.Open, "open price"},
		{&t.High, "high price"},
		{&t.Low, "low price"},
		{&t.Close, "close price"},
		{&t.Volume, "volume"},
	}
	for i, f := range fields {
		*f.dst, err = decimal.NewFromString(data[i+1])
		if err != nil {
			err = fmt.Errorf("failed to read %s: %w", f.name, err)
			return
		}
	}

	return
}
