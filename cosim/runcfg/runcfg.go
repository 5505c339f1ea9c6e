// Package runcfg writes the run-configuration artifacts the companion
// consumes from its working directory: the input file with the run period
// derived from the simulation window, the fixed-step file, the staged weather
// file and the copied variable configuration.
package runcfg

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const secondsPerDay = 86400

// Files names the artifacts inside the resources and working directories.
type Files struct {
	VariablesConfig string `yaml:"variables_config"`
	FixedStep       string `yaml:"fixed_step"`
	WeatherFile     string `yaml:"weather_file"`
	WeatherDir      string `yaml:"weather_dir"`
}

// DefaultFiles returns the file names the EnergyPlus companion expects.
func DefaultFiles() Files {
	return Files{
		VariablesConfig: "variables.cfg",
		FixedStep:       "tstep.txt",
		WeatherFile:     "runweafile.epw",
		WeatherDir:      "WeatherData",
	}
}

// Params describes one preparation run.
type Params struct {
	WorkDir      string
	ResourcesDir string
	ModelID      string
	Start, Stop  float64
	Files        Files
}

// Result reports what Prepare produced.
type Result struct {
	InputFile        string
	TimestepsPerHour int
	WeatherFile      string   // staged weather file name, empty when the model ships none
	Env              []string // extra environment for the companion
}

// Prepare writes all run artifacts into p.WorkDir.
func Prepare(p Params) (*Result, error) {
	if p.Stop <= p.Start {
		return nil, fmt.Errorf("stop time %g must be after start time %g", p.Stop, p.Start)
	}
	if err := copyFile(
		filepath.Join(p.ResourcesDir, p.Files.VariablesConfig),
		filepath.Join(p.WorkDir, p.Files.VariablesConfig),
	); err != nil {
		return nil, fmt.Errorf("staging variable configuration: %w", err)
	}

	res := &Result{InputFile: p.ModelID + ".idf"}
	n, err := writeInputFile(p, res.InputFile)
	if err != nil {
		return nil, err
	}
	res.TimestepsPerHour = n
	if err := os.WriteFile(filepath.Join(p.WorkDir, p.Files.FixedStep), []byte(strconv.Itoa(n)+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("writing fixed-step file: %w", err)
	}

	weather, err := findWeather(p.ResourcesDir)
	if err != nil {
		return nil, err
	}
	if weather != "" {
		if err := copyFile(weather, filepath.Join(p.WorkDir, p.Files.WeatherFile)); err != nil {
			return nil, fmt.Errorf("staging weather file: %w", err)
		}
		wdir := filepath.Join(p.WorkDir, p.Files.WeatherDir)
		if err := os.MkdirAll(wdir, 0o755); err != nil {
			return nil, fmt.Errorf("creating weather directory: %w", err)
		}
		if err := copyFile(weather, filepath.Join(wdir, p.Files.WeatherFile)); err != nil {
			return nil, fmt.Errorf("staging weather file: %w", err)
		}
		res.WeatherFile = p.Files.WeatherFile
		res.Env = append(res.Env, "ENERGYPLUS_WEATHER="+p.Files.WeatherDir)
	}
	return res, nil
}

// ReadFixedStep reads the timesteps-per-hour written by Prepare and returns
// it together with the step size in seconds.
func ReadFixedStep(dir, name string) (int, float64, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return 0, 0, fmt.Errorf("reading fixed-step file: %w", err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, 0, fmt.Errorf("fixed-step file %s: %w", name, err)
	}
	if err := validTimesteps(n); err != nil {
		return 0, 0, err
	}
	return n, 3600 / float64(n), nil
}

// Cleanup removes files in dir matching any of the glob patterns and
// returns every failure.
func Cleanup(dir string, patterns []string) []error {
	var errs []error
	for _, pat := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pat))
		if err != nil {
			errs = append(errs, fmt.Errorf("cleanup pattern %q: %w", pat, err))
			continue
		}
		for _, m := range matches {
			if err := os.RemoveAll(m); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errs
}

func writeInputFile(p Params, name string) (int, error) {
	src := filepath.Join(p.ResourcesDir, name)
	data, err := os.ReadFile(src)
	if err != nil {
		return 0, fmt.Errorf("reading model input file: %w", err)
	}
	objs, err := ParseIDF(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", src, err)
	}

	n := -1
	runPeriod := -1
	for i, o := range objs {
		switch {
		case o.Is("Timestep"):
			if len(o.Fields) == 0 {
				return 0, fmt.Errorf("%s: Timestep object has no value", src)
			}
			if n, err = strconv.Atoi(o.Fields[0]); err != nil {
				return 0, fmt.Errorf("%s: Timestep %q: %w", src, o.Fields[0], err)
			}
		case o.Is("RunPeriod") && runPeriod < 0:
			runPeriod = i
		}
	}
	if n < 0 {
		return 0, fmt.Errorf("%s: no Timestep object", src)
	}
	if err := validTimesteps(n); err != nil {
		return 0, fmt.Errorf("%s: %w", src, err)
	}

	bm, bd, em, ed, err := runPeriodDates(p.Start, p.Stop)
	if err != nil {
		return 0, err
	}
	if runPeriod < 0 {
		objs = append(objs, Object{Class: "RunPeriod", Fields: make([]string, 5)})
		runPeriod = len(objs) - 1
	}
	rp := &objs[runPeriod]
	for len(rp.Fields) < 5 {
		rp.Fields = append(rp.Fields, "")
	}
	rp.Fields[1], rp.Fields[2] = strconv.Itoa(bm), strconv.Itoa(bd)
	rp.Fields[3], rp.Fields[4] = strconv.Itoa(em), strconv.Itoa(ed)

	f, err := os.Create(filepath.Join(p.WorkDir, name))
	if err != nil {
		return 0, fmt.Errorf("creating run input file: %w", err)
	}
	defer f.Close()
	if err := WriteIDF(f, objs); err != nil {
		return 0, fmt.Errorf("writing run input file: %w", err)
	}
	return n, f.Close()
}

func validTimesteps(n int) error {
	if n < 1 || n > 60 || 60%n != 0 {
		return fmt.Errorf("timesteps per hour %d must divide 60", n)
	}
	return nil
}

var monthDays = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

// runPeriodDates maps the simulation window (seconds from January 1st,
// non-leap year) to the first and last simulated calendar days.
func runPeriodDates(start, stop float64) (bm, bd, em, ed int, err error) {
	if start < 0 {
		return 0, 0, 0, 0, fmt.Errorf("start time %g is negative", start)
	}
	if stop > 365*secondsPerDay {
		return 0, 0, 0, 0, fmt.Errorf("stop time %g is beyond one year", stop)
	}
	first := int(math.Floor(start/secondsPerDay)) + 1
	last := int(math.Ceil(stop / secondsPerDay))
	if last < first {
		last = first
	}
	bm, bd = monthDay(first)
	em, ed = monthDay(last)
	return bm, bd, em, ed, nil
}

func monthDay(dayOfYear int) (int, int) {
	for m, n := range monthDays {
		if dayOfYear <= n {
			return m + 1, dayOfYear
		}
		dayOfYear -= n
	}
	return 12, 31
}

func findWeather(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.epw"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)
	return matches[0], nil
}

func copyFile(src, dst string) error {
	if filepath.Clean(src) == filepath.Clean(dst) {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
