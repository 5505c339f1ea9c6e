package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario describes one co-simulation run driven by the `run` command.
// All top-level keys must be listed to satisfy KnownFields(true) strict parsing.
type Scenario struct {
	FMU       string        `yaml:"fmu"`  // unpacked model directory
	GUID      string        `yaml:"guid"` // empty: taken from the model description
	Name      string        `yaml:"name"`
	Start     float64       `yaml:"start"`
	Stop      float64       `yaml:"stop"`
	Step      float64       `yaml:"step"` // 0: the model's fixed step
	Timeout   time.Duration `yaml:"timeout"`
	Instances int           `yaml:"instances"`
	// WorkDir holds one copy of the model per instance when Instances > 1.
	WorkDir string `yaml:"workdir"`
	// RealtimeFactor paces steps to that many simulated seconds per wall
	// clock second; 0 runs as fast as the companion allows.
	RealtimeFactor float64       `yaml:"realtime_factor"`
	Inputs         []InputSignal `yaml:"inputs"`
}

// InputSignal drives one model input by variable name.
type InputSignal struct {
	Name     string     `yaml:"name"`
	Value    float64    `yaml:"value"`    // used before the first schedule point
	Schedule []Setpoint `yaml:"schedule"` // piecewise constant
}

// Setpoint is the value an input takes from Time on.
type Setpoint struct {
	Time  float64 `yaml:"time"`
	Value float64 `yaml:"value"`
}

// LoadScenario reads and validates a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	return parseScenario(data)
}

func parseScenario(data []byte) (*Scenario, error) {
	sc := Scenario{Name: "eplus", Instances: 1, Timeout: time.Minute}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	for i := range sc.Inputs {
		s := sc.Inputs[i].Schedule
		sort.SliceStable(s, func(a, b int) bool { return s[a].Time < s[b].Time })
	}
	return &sc, nil
}

// Validate checks the scenario for consistency.
func (sc *Scenario) Validate() error {
	if sc.FMU == "" {
		return fmt.Errorf("fmu must be set")
	}
	if sc.Start < 0 {
		return fmt.Errorf("start must be >= 0, got %g", sc.Start)
	}
	if sc.Stop <= sc.Start {
		return fmt.Errorf("stop (%g) must be after start (%g)", sc.Stop, sc.Start)
	}
	if sc.Step < 0 {
		return fmt.Errorf("step must be >= 0, got %g", sc.Step)
	}
	if sc.Instances < 1 {
		return fmt.Errorf("instances must be >= 1, got %d", sc.Instances)
	}
	if sc.Instances > 1 && sc.WorkDir == "" {
		return fmt.Errorf("workdir must be set to run %d instances", sc.Instances)
	}
	if sc.RealtimeFactor < 0 {
		return fmt.Errorf("realtime_factor must be >= 0, got %g", sc.RealtimeFactor)
	}
	seen := make(map[string]bool, len(sc.Inputs))
	for _, in := range sc.Inputs {
		if in.Name == "" {
			return fmt.Errorf("input without a name")
		}
		if seen[in.Name] {
			return fmt.Errorf("input %q listed twice", in.Name)
		}
		seen[in.Name] = true
	}
	return nil
}

// valueAt returns the input value in effect at time t.
func (in InputSignal) valueAt(t float64) float64 {
	v := in.Value
	for _, sp := range in.Schedule {
		if sp.Time > t {
			break
		}
		v = sp.Value
	}
	return v
}
