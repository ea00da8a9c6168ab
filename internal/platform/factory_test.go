package platform

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gamma-omg/kline-chart/internal/config"
	"github.com/gamma-omg/kline-chart/internal/platform/alpaca"
	"github.com/gamma-omg/kline-chart/internal/platform/common"
	"github.com/gamma-omg/kline-chart/internal/platform/emulator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreate(t *testing.T) {
	data := filepath.Join(t.TempDir(), "btc.csv")
	require.NoError(t, os.WriteFile(data, []byte("timestamp,open,high,low,close,volume\n1704187800,1,1,1,1,1\n"), 0o644))

	log := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	cfg := &config.Config{Chart: config.Chart{Timezone: "UTC"}}
	cfg.SourceRef.Source = config.Emulator{Data: map[string]string{"BTC": data}}
	f, err := Create(ctx, log, cfg)
	require.NoError(t, err)
	assert.IsType(t, &emulator.MarketEmulator{}, f)

	cfg.IntradayCache = true
	f, err = Create(ctx, log, cfg)
	require.NoError(t, err)
	assert.IsType(t, &common.IntradayCache{}, f)

	cfg.IntradayCache = false
	cfg.SourceRef.Source = config.Alpaca{ApiKey: "key", Secret: "secret"}
	f, err = Create(ctx, log, cfg)
	require.NoError(t, err)
	assert.IsType(t, &alpaca.AlpacaSource{}, f)
}

func TestCreate_errors(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	_, err := Create(ctx, log, &config.Config{Chart: config.Chart{Timezone: "UTC"}})
	require.Error(t, err)

	cfg := &config.Config{Chart: config.Chart{Timezone: "Mars/Olympus"}}
	cfg.SourceRef.Source = config.Alpaca{}
	_, err = Create(ctx, log, cfg)
	require.Error(t, err)
}
