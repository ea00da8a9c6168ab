package session

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gamma-omg/kline-chart/internal/market"
	"github.com/parquet-go/parquet-go"
)

type barsDump interface {
	Dump(bars []market.Bar) error
}

type csvBarsDump struct {
	w *csv.Writer
}

func newCsvBarsDump(w io.Writer) *csvBarsDump {
	return &csvBarsDump{csv.NewWriter(w)}
}

func (d *csvBarsDump) Dump(bars []market.Bar) error {
	if err := d.w.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return fmt.Errorf("failed to write bars dump csv header: %w", err)
	}

	for _, bar := range bars {
		err := d.w.Write([]string{
			bar.Time,
			bar.Open.String(),
			bar.High.String(),
			bar.Low.String(),
			bar.Close.String(),
			strconv.FormatInt(bar.Volume, 10)})

		if err != nil {
			return fmt.Errorf("failed to dump bar: %w", err)
		}
	}

	d.w.Flush()
	return d.w.Error()
}

type parquetBar struct {
	Time   string  `parquet:"time"`
	Open   float64 `parquet:"open"`
	High   float64 `parquet:"high"`
	Low    float64 `parquet:"low"`
	Close  float64 `parquet:"close"`
	Volume int64   `parquet:"volume"`
}

type parquetBarsDump struct {
	path string
}

func (d *parquetBarsDump) Dump(bars []market.Bar) error {
	rows := make([]parquetBar, len(bars))
	for i, b := range bars {
		rows[i] = parquetBar{
			Time:   b.Time,
			Open:   b.Open.InexactFloat64(),
			High:   b.High.InexactFloat64(),
			Low:    b.Low.InexactFloat64(),
			Close:  b.Close.InexactFloat64(),
			Volume: b.Volume,
		}
	}

	if err := parquet.WriteFile(d.path, rows); err != nil {
		return fmt.Errorf("failed to write parquet dump: %w", err)
	}
	return nil
}

// dumpBars writes bars to path as parquet or csv depending on the extension.
func dumpBars(path string, bars []market.Bar) (err error) {
	var d barsDump
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		d = &parquetBarsDump{path: path}
	} else {
		f, cerr := os.Create(path)
		if cerr != nil {
			return fmt.Errorf("failed to create bars dump: %w", cerr)
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		d = newCsvBarsDump(f)
	}

	return d.Dump(bars)
}
