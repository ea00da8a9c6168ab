package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel      string          `yaml:"log_level"`
	Chart         Chart           `yaml:"chart"`
	SourceRef     SourceReference `yaml:"source"`
	TradesRef     TradesReference `yaml:"trades"`
	IntradayCache bool            `yaml:"intraday_cache"`
	Output        string          `yaml:"output"`
	Session       Session         `yaml:"session"`
}

func Read(r io.Reader) (*Config, error) {
	cfg := Config{Chart: defaultChart()}
	d := yaml.NewDecoder(r)
	err := d.Decode(&cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}

	return &cfg, nil
}

func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// ApplyEnv overrides secrets with values from the environment.
func (c *Config) ApplyEnv() {
	a, ok := c.SourceRef.Source.(Alpaca)
	if !ok {
		return
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		a.ApiKey = v
	}
	if v := os.Getenv("ALPACA_SECRET"); v != "" {
		a.Secret = v
	}
	c.SourceRef.Source = a
}

func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type Chart struct {
	Instrument  string        `yaml:"instrument"`
	Interval    string        `yaml:"interval"`
	Adjustment  string        `yaml:"adjustment"`
	ChartType   string        `yaml:"chart_type"`
	Width       float64       `yaml:"width"`
	Height      float64       `yaml:"height"`
	Limit       int           `yaml:"limit"`
	MA          []MA          `yaml:"ma"`
	DailyMatch  string        `yaml:"daily_match"`
	Placeholder time.Duration `yaml:"placeholder"`
	Timezone    string        `yaml:"timezone"`
}

type MA struct {
	Period  int  `yaml:"period"`
	Enabled bool `yaml:"enabled"`
}

func defaultChart() Chart {
	return Chart{
		Interval:    "day",
		Adjustment:  "forward",
		ChartType:   "candlestick",
		Width:       1200,
		Height:      500,
		MA:          []MA{{Period: 5, Enabled: true}, {Period: 10, Enabled: true}},
		DailyMatch:  "exact",
		Placeholder: 1500 * time.Millisecond,
		Timezone:    "Asia/Shanghai",
	}
}

// source configs

type Source interface{}

type SourceReference struct {
	Source Source
}

type Emulator struct {
	Data     map[string]string `yaml:"data"`
	Interval string            `yaml:"interval"`
	Latency  time.Duration     `yaml:"latency"`
	Timezone string            `yaml:"timezone"`
}

type Alpaca struct {
	BaseUrl string `yaml:"base_url"`
	ApiKey  string `yaml:"api_key"`
	Secret  string `yaml:"secret"`
	Feed    string `yaml:"feed"`
}

func (w *SourceReference) UnmarshalYAML(value *yaml.Node) error {
	if len(value.Content) == 0 {
		return nil
	}

	if value.Kind != yaml.MappingNode || len(value.Content) != 2 {
		return errors.New("invalid source yaml format")
	}

	key := value.Content[0].Value
	switch key {
	case "emulator":
		var emu Emulator
		if err := value.Content[1].Decode(&emu); err != nil {
			return fmt.Errorf("failed parsing emulator source config: %w", err)
		}
		w.Source = emu
	case "alpaca":
		var alpaca Alpaca
		if err := value.Content[1].Decode(&alpaca); err != nil {
			return fmt.Errorf("failed parsing Alpaca source config: %w", err)
		}
		w.Source = alpaca
	default:
		return fmt.Errorf("unknown source type: %s", key)
	}

	return nil
}

// trade ledger configs

type Trades interface{}

type TradesReference struct {
	Trades Trades
}

type TradesCsv struct {
	Path string `yaml:"path"`
}

type TradesSqlite struct {
	Path  string `yaml:"path"`
	Table string `yaml:"table"`
}

func (w *TradesReference) UnmarshalYAML(value *yaml.Node) error {
	if len(value.Content) == 0 {
		return nil
	}

	if value.Kind != yaml.MappingNode || len(value.Content) != 2 {
		return errors.New("invalid trades yaml format")
	}

	key := value.Content[0].Value
	switch key {
	case "csv":
		var c TradesCsv
		if err := value.Content[1].Decode(&c); err != nil {
			return fmt.Errorf("failed parsing csv trades config: %w", err)
		}
		w.Trades = c
	case "sqlite":
		s := TradesSqlite{Table: "operations"}
		if err := value.Content[1].Decode(&s); err != nil {
			return fmt.Errorf("failed parsing sqlite trades config: %w", err)
		}
		w.Trades = s
	default:
		return fmt.Errorf("unknown trades type: %s", key)
	}

	return nil
}
