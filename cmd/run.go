package cmd

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/cosim-bridge/eplusfmu/cosim"
	"github.com/cosim-bridge/eplusfmu/cosim/catalog"
	"github.com/cosim-bridge/eplusfmu/cosim/metrics"
	"github.com/cosim-bridge/eplusfmu/cosim/runcfg"
	"github.com/cosim-bridge/eplusfmu/cosim/trace"
)

var (
	scenarioPath string // Scenario YAML
	metricsAddr  string // Listen address of the prometheus endpoint
	traceLevel   string // Trace verbosity override
	outPath      string // CSV file receiving the outputs
)

const mimeType = "application/x-fmu-sharedlibrary"

// runCmd acts as a co-simulation master for the scenario.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive EnergyPlus slaves through a scenario",
	RunE: func(cmd *cobra.Command, args []string) error {
		if scenarioPath == "" {
			return fmt.Errorf("--scenario is required")
		}
		sc, err := LoadScenario(scenarioPath)
		if err != nil {
			return err
		}
		cfg, err := loadAdapterConfig()
		if err != nil {
			return err
		}
		if traceLevel != "" {
			if !trace.IsValidTraceLevel(traceLevel) {
				return fmt.Errorf("unknown trace level %q; valid: none, steps, exchanges", traceLevel)
			}
			cfg.Trace = trace.TraceLevel(traceLevel)
		}

		m := metrics.New()
		reg := prometheus.NewRegistry()
		if err := m.Register(reg); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if metricsAddr != "" {
			srv := serveMetrics(metricsAddr, reg)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		a, err := cosim.New(cfg, cosim.WithMetrics(m), cosim.WithLogger(logrus.WithField("component", "adapter")))
		if err != nil {
			return err
		}
		startTime := time.Now()
		results, runErr := runScenario(ctx, a, sc)
		logrus.WithFields(logrus.Fields{
			"instances": len(results),
			"elapsed":   time.Since(startTime).Round(time.Millisecond).String(),
		}).Info("Scenario complete.")

		if outPath != "" {
			if err := writeResultsFile(outPath, results); err != nil {
				return errors.Join(runErr, err)
			}
		}
		if cfg.Trace != trace.TraceLevelNone && cfg.Trace != "" {
			printTraceSummaries(cmd.OutOrStdout(), results)
		}
		return runErr
	},
}

// InstanceResult is what the master observed on one slave.
type InstanceResult struct {
	Name    string
	Outputs []string // output variable names in column order
	Rows    []Row
	Final   cosim.Status
	Trace   *trace.TraceSummary
}

// Row holds the outputs read at one communication point.
type Row struct {
	Time   float64
	Values []float64
}

// runScenario drives sc.Instances slaves concurrently. The first failure
// cancels the others; results of every instance that got started are
// returned regardless.
func runScenario(ctx context.Context, a *cosim.Adapter, sc *Scenario) ([]*InstanceResult, error) {
	g, gctx := errgroup.WithContext(ctx)
	results := make([]*InstanceResult, sc.Instances)
	for i := 0; i < sc.Instances; i++ {
		name := sc.Name
		if sc.Instances > 1 {
			name = fmt.Sprintf("%s-%d", sc.Name, i)
		}
		g.Go(func() error {
			dir, err := instanceDir(sc, name)
			if err != nil {
				return err
			}
			res, err := driveInstance(gctx, a, sc, name, dir)
			results[i] = res
			if err != nil {
				return fmt.Errorf("instance %s: %w", name, err)
			}
			return nil
		})
	}
	err := g.Wait()
	done := results[:0]
	for _, r := range results {
		if r != nil {
			done = append(done, r)
		}
	}
	return done, err
}

// instanceDir returns the working directory of one instance: the model
// itself for a single instance, a private copy otherwise.
func instanceDir(sc *Scenario, name string) (string, error) {
	if sc.WorkDir == "" {
		return sc.FMU, nil
	}
	dst := filepath.Join(sc.WorkDir, name)
	if err := copyTree(sc.FMU, dst); err != nil {
		return "", fmt.Errorf("preparing working directory: %w", err)
	}
	return dst, nil
}

func driveInstance(ctx context.Context, a *cosim.Adapter, sc *Scenario, name, dir string) (*InstanceResult, error) {
	cfg := a.Config()
	guid := sc.GUID
	if guid == "" {
		md, err := catalog.Load(filepath.Join(dir, cfg.Files.ModelDescription))
		if err != nil {
			return nil, err
		}
		guid = md.GUID
	}

	h, st := a.Instantiate(name, guid, dir, mimeType, float64(sc.Timeout.Milliseconds()), false, false, logrus.IsLevelEnabled(logrus.DebugLevel))
	if st != cosim.StatusOK {
		return nil, fmt.Errorf("instantiate: %s", st)
	}
	defer a.Free(h)
	in, err := a.Lookup(h)
	if err != nil {
		return nil, err
	}
	res := &InstanceResult{Name: name}
	defer func() { res.Trace = trace.Summarize(in.Trace()) }()

	if st := a.Initialize(h, sc.Start, true, sc.Stop); st != cosim.StatusOK {
		res.Final = st
		return res, fmt.Errorf("initialize: %s", st)
	}

	step := sc.Step
	if step == 0 {
		if _, step, err = runcfg.ReadFixedStep(dir, cfg.Files.FixedStep); err != nil {
			return res, err
		}
	}

	vars := in.Variables()
	inRefs, signals, err := bindInputs(vars, sc.Inputs)
	if err != nil {
		return res, err
	}
	outRefs := make([]uint32, 0, vars.NumOutputs())
	for _, v := range vars.Outputs() {
		outRefs = append(outRefs, v.ValueReference)
		res.Outputs = append(res.Outputs, v.Name)
	}

	var limiter *rate.Limiter
	if sc.RealtimeFactor > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Duration(step/sc.RealtimeFactor*float64(time.Second))), 1)
	}

	log := logrus.WithField("instance", name)
	inputs := make([]float64, len(inRefs))
	for t := sc.Start; ; t += step {
		if err := ctx.Err(); err != nil {
			res.Final = a.Terminate(h)
			return res, context.Cause(ctx)
		}
		out := make([]float64, len(outRefs))
		if st := a.GetReal(h, outRefs, out); st != cosim.StatusOK {
			res.Final = st
			return res, fmt.Errorf("reading outputs at t=%g: %s", t, st)
		}
		res.Rows = append(res.Rows, Row{Time: t, Values: out})

		lastPoint := math.Abs(t-sc.Stop) <= 1e-9
		if !lastPoint && t+step > sc.Stop+1e-9 {
			// the window is not a whole number of steps
			log.WithFields(logrus.Fields{"time": t, "stop": sc.Stop}).Warn("stopping before a partial step")
			res.Final = a.Terminate(h)
			return res, nil
		}
		for i, sig := range signals {
			inputs[i] = sig.valueAt(t)
		}
		if st := a.SetReal(h, inRefs, inputs); st != cosim.StatusOK {
			res.Final = st
			return res, fmt.Errorf("writing inputs at t=%g: %s", t, st)
		}
		if limiter != nil && !lastPoint {
			if err := limiter.Wait(ctx); err != nil {
				res.Final = a.Terminate(h)
				return res, err
			}
		}
		st := a.DoStep(h, t, step, true)
		res.Final = st
		switch st {
		case cosim.StatusOK:
		case cosim.StatusWarning:
			// the stop time was reached and the slave terminated itself
			log.WithField("steps", len(res.Rows)-1).Info("run finished")
			return res, nil
		default:
			return res, fmt.Errorf("step at t=%g: %s", t, st)
		}
	}
}

// bindInputs orders the scenario signals like the model inputs. Inputs the
// scenario does not mention are held at zero.
func bindInputs(vars *cosim.VariableMap, sigs []InputSignal) ([]uint32, []InputSignal, error) {
	byName := make(map[string]InputSignal, len(sigs))
	for _, s := range sigs {
		byName[s.Name] = s
	}
	refs := make([]uint32, 0, vars.NumInputs())
	bound := make([]InputSignal, 0, vars.NumInputs())
	for _, v := range vars.Inputs() {
		s, ok := byName[v.Name]
		if !ok {
			s = InputSignal{Name: v.Name}
		}
		delete(byName, v.Name)
		refs = append(refs, v.ValueReference)
		bound = append(bound, s)
	}
	if len(byName) > 0 {
		unknown := slices.Sorted(maps.Keys(byName))
		return nil, nil, fmt.Errorf("scenario inputs %q are not inputs of the model", unknown)
	}
	return refs, bound, nil
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("metrics endpoint: %v", err)
		}
	}()
	logrus.Infof("Serving metrics on %s/metrics", addr)
	return srv
}

func init() {
	runCmd.Flags().StringVar(&scenarioPath, "scenario", "", "Scenario YAML describing the run")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve prometheus metrics on this address (e.g. :9090)")
	runCmd.Flags().StringVar(&traceLevel, "trace", "", "Trace level (none, steps, exchanges); overrides the adapter config")
	runCmd.Flags().StringVar(&outPath, "out", "", "Write the outputs read at every communication point to this CSV file")
}
