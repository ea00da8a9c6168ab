package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gamma-omg/kline-chart/internal/config"
	"github.com/gamma-omg/kline-chart/internal/platform"
	"github.com/gamma-omg/kline-chart/internal/session"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal(err)
	}

	cfg, err := config.ReadFromFile(os.Getenv("CONFIG"))
	if err != nil {
		log.Fatal(err)
	}

	if _, ok := cfg.SourceRef.Source.(config.Emulator); !ok {
		log.Fatal("unsupported source, expected emulator")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	opts, err := session.ChartOptions(cfg.Chart)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	src, err := platform.Create(ctx, logger, cfg)
	if err != nil {
		log.Fatal(err)
	}

	r := session.NewRunner(logger, src, opts, cfg.Session, session.LedgerTrades(logger, cfg.TradesRef.Trades, opts.Location))
	err = r.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}

	rep := r.Report()
	logger.Info("session finished",
		"params", rep.Params,
		"state", rep.State,
		"bars", rep.Bars,
		"history_merges", rep.Stats.HistoryMerges,
		"errors", len(rep.Errors))
}
