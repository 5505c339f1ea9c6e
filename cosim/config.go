package cosim

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cosim-bridge/eplusfmu/cosim/runcfg"
	"github.com/cosim-bridge/eplusfmu/cosim/trace"
)

// Placeholders expanded in Companion.Args.
const (
	PlaceholderModel   = "{model}"
	PlaceholderWeather = "{weather}"
	PlaceholderInput   = "{input}"
)

// Config holds adapter-wide settings, loadable from a YAML file.
// Zero durations mean "no bound" except where noted.
type Config struct {
	MaxInstances int    `yaml:"max_instances"`
	ListenHost   string `yaml:"listen_host"`
	// DefaultAcceptTimeout bounds the rendezvous when Instantiate is given a
	// non-positive timeout.
	DefaultAcceptTimeout time.Duration `yaml:"default_accept_timeout"`
	ExchangeTimeout      time.Duration `yaml:"exchange_timeout"`
	// TerminateGrace bounds each teardown wait: the final read and each
	// signal sent to the companion.
	TerminateGrace time.Duration    `yaml:"terminate_grace"`
	Files          FileNames        `yaml:"files"`
	Companion      CompanionConfig  `yaml:"companion"`
	Cleanup        []string         `yaml:"cleanup"`
	Trace          trace.TraceLevel `yaml:"trace"`
}

// FileNames names the files the adapter reads from and writes into the
// model location.
type FileNames struct {
	ModelDescription string `yaml:"model_description"`
	Resources        string `yaml:"resources"`
	SocketConfig     string `yaml:"socket_config"`
	runcfg.Files     `yaml:",inline"`
}

// CompanionConfig describes the companion command line.
type CompanionConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	// ArgsWithoutWeather is used when the model ships no weather file.
	ArgsWithoutWeather []string `yaml:"args_without_weather"`
	Env                []string `yaml:"env"`
}

// DefaultConfig returns the settings for a stock EnergyPlus installation.
func DefaultConfig() Config {
	cfg := Config{
		MaxInstances:         10000,
		ListenHost:           "127.0.0.1",
		DefaultAcceptTimeout: 5 * time.Minute,
		TerminateGrace:       2 * time.Second,
		Files: FileNames{
			ModelDescription: "modelDescription.xml",
			Resources:        "resources",
			SocketConfig:     "socket.cfg",
			Files:            runcfg.DefaultFiles(),
		},
		Cleanup: []string{
			"eplusout.*", "eplusmtr.*", "eplustbl.*", "eplusssz.*", "epluszsz.*",
			"sqlite.err", "audit.out", "in.idf", "in.epw", "*.audit",
			"*.mdd", "*.mtd", "*.rdd", "*.shd", "*.bnd", "*.eio", "*.eso",
		},
		Trace: trace.TraceLevelNone,
	}
	if runtime.GOOS == "windows" {
		cfg.Companion = CompanionConfig{
			Command:            "Epl-run.bat",
			Args:               []string{PlaceholderModel, PlaceholderModel, "idf", PlaceholderWeather, "EP", "N", "nolimit", "Y", "Y", "N", "1"},
			ArgsWithoutWeather: []string{PlaceholderModel, PlaceholderModel, "idf", "", "NONE", "N", "nolimit", "Y", "Y", "N", "1"},
		}
	} else {
		cfg.Companion = CompanionConfig{
			Command:            "runenergyplus",
			Args:               []string{PlaceholderModel, PlaceholderWeather},
			ArgsWithoutWeather: []string{PlaceholderModel},
		}
	}
	return cfg
}

// LoadConfig reads a YAML file over DefaultConfig. Unknown keys are errors.
func LoadConfig(p string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(p)
	if err != nil {
		return cfg, fmt.Errorf("reading adapter config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing adapter config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.MaxInstances < 0 {
		return fmt.Errorf("max_instances must be >= 0, got %d", c.MaxInstances)
	}
	if c.DefaultAcceptTimeout < 0 || c.ExchangeTimeout < 0 || c.TerminateGrace < 0 {
		return fmt.Errorf("timeouts must be >= 0")
	}
	if c.Companion.Command == "" {
		return fmt.Errorf("companion.command must be set")
	}
	if !trace.IsValidTraceLevel(string(c.Trace)) {
		return fmt.Errorf("unknown trace level %q; valid: none, steps, exchanges", c.Trace)
	}
	for name, v := range map[string]string{
		"files.model_description": c.Files.ModelDescription,
		"files.resources":         c.Files.Resources,
		"files.socket_config":     c.Files.SocketConfig,
		"files.variables_config":  c.Files.VariablesConfig,
		"files.fixed_step":        c.Files.FixedStep,
		"files.weather_file":      c.Files.WeatherFile,
		"files.weather_dir":       c.Files.WeatherDir,
	} {
		if v == "" {
			return fmt.Errorf("%s must be set", name)
		}
		if strings.ContainsAny(v, `/\`) && name != "files.resources" {
			return fmt.Errorf("%s must be a plain file name, got %q", name, v)
		}
	}
	for _, g := range c.Cleanup {
		if _, err := path.Match(g, ""); err != nil {
			return fmt.Errorf("cleanup pattern %q: %w", g, err)
		}
	}
	return nil
}

// companionArgs expands the placeholders in the argument set selected by
// whether a weather file was staged.
func (c *Config) companionArgs(model, input, weather string) []string {
	src := c.Companion.Args
	if weather == "" {
		src = c.Companion.ArgsWithoutWeather
	}
	r := strings.NewReplacer(PlaceholderModel, model, PlaceholderWeather, weather, PlaceholderInput, input)
	args := make([]string, len(src))
	for i, a := range src {
		args[i] = r.Replace(a)
	}
	return args
}
