package config

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

type Session struct {
	Refresh string          `yaml:"refresh"`
	Report  string          `yaml:"report"`
	Dump    string          `yaml:"dump"`
	Timeout time.Duration   `yaml:"timeout"`
	Steps   []StepReference `yaml:"steps"`
}

// step configs

type Step interface{}

type StepReference struct {
	Step Step
}

type Scroll struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

type Pan int

type Zoom float64

type Pointer struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

type Click Pointer

type Resize struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

type Params struct {
	Instrument string `yaml:"instrument"`
	Interval   string `yaml:"interval"`
	Adjustment string `yaml:"adjustment"`
}

type ChartType string

type ToggleMA struct {
	Index   int  `yaml:"index"`
	Enabled bool `yaml:"enabled"`
}

type DrillDown string

type Wait time.Duration

// Settle waits until no load is pending, at most for the given duration.
type Settle time.Duration

type Draw string

func (w *StepReference) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode || len(value.Content) != 2 {
		return errors.New("invalid step yaml format")
	}

	key := value.Content[0].Value
	node := value.Content[1]

	var err error
	switch key {
	case "scroll":
		var s Scroll
		err = node.Decode(&s)
		w.Step = s
	case "pan":
		var p Pan
		err = node.Decode(&p)
		w.Step = p
	case "zoom":
		var z Zoom
		err = node.Decode(&z)
		w.Step = z
	case "pointer":
		var p Pointer
		err = node.Decode(&p)
		w.Step = p
	case "click":
		var c Click
		err = node.Decode(&c)
		w.Step = c
	case "resize":
		var r Resize
		err = node.Decode(&r)
		w.Step = r
	case "params":
		var p Params
		err = node.Decode(&p)
		w.Step = p
	case "chart_type":
		var c ChartType
		err = node.Decode(&c)
		w.Step = c
	case "ma":
		var m ToggleMA
		err = node.Decode(&m)
		w.Step = m
	case "drilldown":
		var d DrillDown
		err = node.Decode(&d)
		w.Step = d
	case "wait":
		var d time.Duration
		err = node.Decode(&d)
		w.Step = Wait(d)
	case "settle":
		var d time.Duration
		err = node.Decode(&d)
		w.Step = Settle(d)
	case "draw":
		var d Draw
		err = node.Decode(&d)
		w.Step = d
	default:
		return fmt.Errorf("unknown step type: %s", key)
	}

	if err != nil {
		return fmt.Errorf("failed parsing %s step: %w", key, err)
	}
	return nil
}
