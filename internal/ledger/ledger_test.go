package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gamma-omg/kline-chart/internal/config"
	"github.com/gamma-omg/kline-chart/internal/market"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, src string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(src), 0o644))
	return p
}

func TestRead_csv(t *testing.T) {
	path := writeFile(t, "ops.csv", `StockCode,OperationDate,OperationType,Price,Quantity,Amount
600519,2024-01-03,买入,"1,650.50",100,165050
000001,2024-01-03,买入,10,100,1000
600519,2024-01-02 10:31:00,卖出,1700,50,
600519,someday,买入,1,1,1
600519,2024-01-04,hold,1,1,1
`)

	events, err := Read(context.Background(), slog.New(slog.DiscardHandler), config.TradesCsv{Path: path}, "600519", time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "2024-01-02", events[0].Date)
	assert.Equal(t, market.SideSell, events[0].Side)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 31, 0, 0, time.UTC), events[0].Timestamp)
	assert.True(t, decimal.NewFromInt(85000).Equal(events[0].Amount))

	assert.Equal(t, "2024-01-03", events[1].Date)
	assert.Equal(t, market.SideBuy, events[1].Side)
	assert.True(t, events[1].Timestamp.IsZero())
	assert.True(t, decimal.RequireFromString("1650.50").Equal(events[1].Price))
	assert.Equal(t, int64(100), events[1].Quantity)
}

func TestRead_csvTimeColumn(t *testing.T) {
	path := writeFile(t, "ops.csv", `symbol,date,time,side,price,qty
AAPL,2024/01/05,09:45,buy,185.2,10
AAPL,20240105,14:02:30,s,186,10
`)

	events, err := Read(context.Background(), slog.New(slog.DiscardHandler), config.TradesCsv{Path: path}, "AAPL", time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, time.Date(2024, 1, 5, 9, 45, 0, 0, time.UTC), events[0].Timestamp)
	assert.Equal(t, time.Date(2024, 1, 5, 14, 2, 30, 0, time.UTC), events[1].Timestamp)
	assert.Equal(t, market.SideSell, events[1].Side)
	assert.True(t, decimal.NewFromInt(1852).Equal(events[0].Amount))
}

func TestRead_csvErrors(t *testing.T) {
	tbl := []struct {
		src string
	}{
		{src: "StockCode,Price\n600519,1\n"},
		{src: "date,type,price\n2024-01-02,buy,abc\n"},
	}

	for i, c := range tbl {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			path := writeFile(t, "ops.csv", c.src)
			_, err := Read(context.Background(), slog.New(slog.DiscardHandler), config.TradesCsv{Path: path}, "600519", time.UTC)
			require.Error(t, err)
		})
	}

	_, err := Read(context.Background(), slog.New(slog.DiscardHandler), config.TradesCsv{Path: "/does/not/exist"}, "", time.UTC)
	require.Error(t, err)
}

func TestRead_sqlite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ops.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)

	_, err = db.Exec(`CREATE TABLE operations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		stock_code TEXT,
		operation_date TEXT,
		operation_type TEXT,
		price REAL,
		quantity INTEGER,
		amount REAL
	)`)
	require.NoError(t, err)

	rows := []struct {
		code, date, typ string
		price           float64
		qty             int64
		amount          any
	}{
		{"600519", "2024-01-05", "买入", 1650.5, 100, 165050.0},
		{"600519", "2024-01-02T13:05:00", "卖出", 1700, 50, nil},
		{"000001", "2024-01-03", "买入", 10, 100, 1000.0},
	}
	for _, r := range rows {
		_, err = db.Exec(`INSERT INTO operations (stock_code, operation_date, operation_type, price, quantity, amount) VALUES (?, ?, ?, ?, ?, ?)`,
			r.code, r.date, r.typ, r.price, r.qty, r.amount)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	events, err := Read(context.Background(), slog.New(slog.DiscardHandler), config.TradesSqlite{Path: path, Table: "operations"}, "600519", time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "2024-01-02", events[0].Date)
	assert.Equal(t, market.SideSell, events[0].Side)
	assert.Equal(t, time.Date(2024, 1, 2, 13, 5, 0, 0, time.UTC), events[0].Timestamp)
	assert.True(t, decimal.NewFromInt(85000).Equal(events[0].Amount))

	assert.Equal(t, "2024-01-05", events[1].Date)
	assert.True(t, decimal.NewFromFloat(1650.5).Equal(events[1].Price))
	assert.Equal(t, int64(100), events[1].Quantity)

	all, err := Read(context.Background(), slog.New(slog.DiscardHandler), config.TradesSqlite{Path: path, Table: "operations"}, "", time.UTC)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestRead_sqliteBadTable(t *testing.T) {
	_, err := Read(context.Background(), slog.New(slog.DiscardHandler), config.TradesSqlite{Path: ":memory:", Table: "ops; DROP TABLE x"}, "", time.UTC)
	require.Error(t, err)
}

func TestRead_noLedger(t *testing.T) {
	events, err := Read(context.Background(), slog.New(slog.DiscardHandler), nil, "AAPL", time.UTC)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestParseWhen(t *testing.T) {
	shanghai, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	tbl := []struct {
		date  string
		clock string
		day   string
		ts    time.Time
		err   bool
	}{
		{date: "2024-01-02", day: "2024-01-02"},
		{date: "20240102", day: "2024-01-02"},
		{date: "2024-01-02 09:31", day: "2024-01-02", ts: time.Date(2024, 1, 2, 9, 31, 0, 0, shanghai)},
		{date: "2024-01-01T18:00:00Z", day: "2024-01-02", ts: time.Date(2024, 1, 2, 2, 0, 0, 0, shanghai)},
		{date: "2024-01-02", clock: "14:55", day: "2024-01-02", ts: time.Date(2024, 1, 2, 14, 55, 0, 0, shanghai)},
		{date: "2024-01-02", clock: "2pm", err: true},
		{date: "Jan 2", err: true},
	}

	for i, c := range tbl {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			day, ts, err := parseWhen(c.date, c.clock, shanghai)
			if c.err {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, c.day, day)
			assert.True(t, c.ts.Equal(ts), "expected %v, got %v", c.ts, ts)
		})
	}
}
