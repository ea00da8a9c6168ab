package ledger

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

var columnAliases = map[string]string{
	"stockcode":      "instrument",
	"stock_code":     "instrument",
	"code":           "instrument",
	"symbol":         "instrument",
	"instrument":     "instrument",
	"operationdate":  "date",
	"operation_date": "date",
	"date":           "date",
	"time":           "time",
	"operationtime":  "time",
	"operation_time": "time",
	"trade_time":     "time",
	"operationtype":  "type",
	"operation_type": "type",
	"type":           "type",
	"side":           "type",
	"price":          "price",
	"quantity":       "quantity",
	"qty":            "quantity",
	"amount":         "amount",
}

func readCsv(path, instrument string) ([]record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open ledger: %w", err)
	}
	defer f.Close()

	rdr := csv.NewReader(bufio.NewReader(f))
	rdr.FieldsPerRecord = -1
	rdr.TrimLeadingSpace = true

	header, err := rdr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	cols := make(map[string]int)
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if c, ok := columnAliases[name]; ok {
			cols[c] = i
		}
	}
	for _, req := range []string{"date", "type"} {
		if _, ok := cols[req]; !ok {
			return nil, fmt.Errorf("missing %s column", req)
		}
	}

	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var records []record
	for {
		row, err := rdr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger row: %w", err)
		}

		r := record{
			Instrument: field(row, "instrument"),
			Date:       field(row, "date"),
			Time:       field(row, "time"),
			Type:       field(row, "type"),
		}
		if instrument != "" && r.Instrument != "" && r.Instrument != instrument {
			continue
		}

		if r.Price, err = number(field(row, "price")); err != nil {
			return nil, fmt.Errorf("failed to read price: %w", err)
		}
		if r.Quantity, err = number(field(row, "quantity")); err != nil {
			return nil, fmt.Errorf("failed to read quantity: %w", err)
		}
		if r.Amount, err = number(field(row, "amount")); err != nil {
			return nil, fmt.Errorf("failed to read amount: %w", err)
		}

		records = append(records, r)
	}

	return records, nil
}

func number(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
