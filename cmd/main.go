package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gamma-omg/kline-chart/internal/config"
	"github.com/gamma-omg/kline-chart/internal/platform"
	"github.com/gamma-omg/kline-chart/internal/session"
	"github.com/joho/godotenv"
)

const settleTimeout = 30 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal(err)
	}

	cfg, err := config.ReadFromFile(os.Getenv("CONFIG"))
	if err != nil {
		log.Fatal(err)
	}
	cfg.ApplyEnv()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))

	opts, err := session.ChartOptions(cfg.Chart)
	if err != nil {
		log.Fatal(err)
	}

	src, err := platform.Create(ctx, logger, cfg)
	if err != nil {
		log.Fatal(err)
	}

	output := cfg.Output
	if output == "" {
		output = "chart.png"
	}

	// render the initial window once the first loads are done
	s := cfg.Session
	s.Refresh = ""
	s.Timeout = 0
	s.Steps = []config.StepReference{
		{Step: config.Settle(settleTimeout)},
		{Step: config.Draw(output)},
	}

	r := session.NewRunner(logger, src, opts, s, session.LedgerTrades(logger, cfg.TradesRef.Trades, opts.Location))
	if err := r.Run(ctx); err != nil {
		log.Fatal(err)
	}

	logger.Info("chart rendered", "path", output, "params", r.Report().Params, "bars", r.Report().Bars)
}
