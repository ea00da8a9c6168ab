package emulator

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readTicks(t *testing.T, ctx context.Context, br *barReader) []tick {
	t.Helper()

	var ticks []tick
	for r := range br.Read(ctx) {
		require.NoError(t, r.err)
		ticks = append(ticks, r.tick)
	}

	return ticks
}

func TestRead(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dataFile := writeCsv(t, "data", `timestamp,open,high,low,close,volume
1460413380.0,421.07,521.07,321.06,121.06,1.192`)
	br, err := newBarReader(dataFile)
	require.NoError(t, err)

	ticks := readTicks(t, ctx, br)
	require.Len(t, ticks, 1)
	assert.Equal(t, time.Unix(1460413380, 0), ticks[0].Time)
	assert.True(t, decimal.NewFromFloat(421.07).Equal(ticks[0].Open))
	assert.True(t, decimal.NewFromFloat(521.07).Equal(ticks[0].High))
	assert.True(t, decimal.NewFromFloat(321.06).Equal(ticks[0].Low))
	assert.True(t, decimal.NewFromFloat(121.06).Equal(ticks[0].Close))
	assert.True(t, decimal.NewFromFloat(1.192).Equal(ticks[0].Volume))
}

func TestReadFilter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dataFile := writeCsv(t, "data", `timestamp,open,high,low,close,volume
1390134600.0,800.0,800.0,800.0,800.0,0.0
1437452040.0,279.22,279.22,279.22,279.22,0.0
1460413380.0,421.07,521.07,321.06,121.06,1.192
1553889480.0,4080.0,4080.1,4080.0,4080.1,2.035854
1758127500.0,115510,115510,115482,115493,1.05828858
1758152940.0,116570,116577,116569,116574,1.60268598
`)
	br, err := newBarReaderWithFilter(dataFile, func(tk tick) bool {
		return tk.Time.After(time.Unix(1437452040, 0)) && tk.Time.Before(time.Unix(1758127500, 0))
	})
	require.NoError(t, err)

	ticks := readTicks(t, ctx, br)
	require.Len(t, ticks, 2)
	assert.Equal(t, time.Unix(1460413380, 0), ticks[0].Time)
	assert.Equal(t, time.Unix(1553889480, 0), ticks[1].Time)
}

func TestReadMalformed(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dataFile := writeCsv(t, "data", `timestamp,open,high,low,close,volume
1460413380.0,421.07,521.07,321.06,121.06,1.192
1460413440.0,abc,521.07,321.06,121.06,1.192
`)
	br, err := newBarReader(dataFile)
	require.NoError(t, err)

	var errs []error
	var n int
	for r := range br.Read(ctx) {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		n++
	}

	assert.Equal(t, 1, n)
	require.Len(t, errs, 1)
	assert.ErrorContains(t, errs[0], "open price")
}

func TestNewBarReader_missingFile(t *testing.T) {
	_, err := newBarReader("/does/not/exist.csv")
	require.Error(t, err)
}
