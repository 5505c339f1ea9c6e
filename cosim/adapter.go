package cosim

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cosim-bridge/eplusfmu/cosim/catalog"
	"github.com/cosim-bridge/eplusfmu/cosim/launcher"
	"github.com/cosim-bridge/eplusfmu/cosim/metrics"
	"github.com/cosim-bridge/eplusfmu/cosim/registry"
)

const (
	platformName = "standard32"
	fmiVersion   = "1.0"
)

// Adapter exposes the FMI 1.0 co-simulation slave operations. It owns the
// instance registry; every operation addresses an instance by handle.
//
// Thread-safety: all methods are safe for concurrent use. Calls on the same
// handle are serialized; calls on different handles run in parallel.
type Adapter struct {
	cfg      Config
	reg      *registry.Registry[*Instance]
	launcher launcher.Launcher
	metrics  *metrics.Metrics
	log      *logrus.Entry
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithLauncher replaces the OS process launcher.
func WithLauncher(l launcher.Launcher) Option {
	return func(a *Adapter) { a.launcher = l }
}

// WithLogger sets the base log entry; instance fields are added to it.
func WithLogger(e *logrus.Entry) Option {
	return func(a *Adapter) { a.log = e }
}

// WithMetrics records adapter activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Adapter) { a.metrics = m }
}

// New creates an adapter with an empty registry.
func New(cfg Config, opts ...Option) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid adapter config: %w", err)
	}
	a := &Adapter{
		cfg: cfg,
		reg: registry.New[*Instance](cfg.MaxInstances),
		log: logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.launcher == nil {
		a.launcher = launcher.Exec{Grace: cfg.TerminateGrace}
	}
	return a, nil
}

// PlatformName returns the platform string of the binary interface.
func (a *Adapter) PlatformName() string { return platformName }

// Version returns the FMI version implemented.
func (a *Adapter) Version() string { return fmiVersion }

// Config returns the adapter configuration.
func (a *Adapter) Config() Config { return a.cfg }

// Lookup returns the instance behind h.
func (a *Adapter) Lookup(h Handle) (*Instance, error) {
	return a.reg.Resolve(h)
}

// report turns err into the status returned to the master, records it and
// logs every non-OK outcome.
func (a *Adapter) report(in *Instance, op string, err error) Status {
	st := StatusOf(err)
	a.metrics.ObserveCall(op, st.String())
	if err == nil {
		return st
	}
	log := a.log
	if in != nil {
		log = in.log
	}
	log = log.WithFields(logrus.Fields{"op": op, "status": st.String()}).WithError(err)
	switch st {
	case StatusWarning:
		log.Warn("operation completed with warning")
	case StatusDiscard, StatusPending:
		log.Info("operation result not available")
	default:
		log.Error("operation failed")
	}
	return st
}

// with resolves h, locks the instance and runs fn.
func (a *Adapter) with(h Handle, op string, fn func(in *Instance) error) Status {
	in, err := a.reg.Resolve(h)
	if err != nil {
		return a.report(nil, op, failure(op, fmt.Errorf("%w: %s", err, h)))
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return a.report(in, op, fn(in))
}

// Instantiate creates an instance rooted at location, which must be an
// existing directory (plain path or file URI) holding the model
// description. timeout is in milliseconds and bounds the rendezvous with
// the companion. On failure the returned handle is zero.
func (a *Adapter) Instantiate(name, guid, location, mimeType string, timeout float64, visible, interactive, loggingOn bool) (Handle, Status) {
	const op = "Instantiate"
	h, in, err := a.reg.Allocate(func(h Handle, _ int) *Instance {
		return newInstance(a, h, name, "", nil, nil)
	})
	if err != nil {
		return 0, a.report(nil, op, fatal(op, err))
	}
	a.metrics.ObserveAllocated(PhaseCreated.String())

	in.mu.Lock()
	defer in.mu.Unlock()
	in.timeout = time.Duration(timeout * float64(time.Millisecond))
	in.visible, in.interactive = visible, interactive
	in.setDebug(loggingOn)
	in.log = in.log.WithField("mime_type", mimeType)

	if err := in.load(guid, location); err != nil {
		in.advance(PhaseFailed)
		return 0, a.report(in, op, fatal(op, err))
	}
	in.log.WithFields(logrus.Fields{
		"model":       in.model.ModelIdentifier,
		"num_inputs":  in.vars.NumInputs(),
		"num_outputs": in.vars.NumOutputs(),
	}).Info("instance created")
	return h, a.report(in, op, nil)
}

// load resolves the working directory and the variable catalog.
func (in *Instance) load(guid, location string) error {
	dir, err := workingDir(location)
	if err != nil {
		return err
	}
	in.dir = dir
	in.log = in.log.WithField("working_dir", dir)

	md, err := catalog.Load(filepath.Join(dir, in.a.cfg.Files.ModelDescription))
	if err != nil {
		return err
	}
	if md.FMIVersion != fmiVersion {
		return fmt.Errorf("%w: model declares %q, want %q", ErrVersionMismatch, md.FMIVersion, fmiVersion)
	}
	if md.GUID != guid {
		return fmt.Errorf("%w: model declares %q, master passed %q", ErrGUIDMismatch, md.GUID, guid)
	}
	vars, err := NewVariableMap(md)
	if err != nil {
		return err
	}
	in.model, in.vars = md, vars
	return nil
}

// workingDir turns a model location into an absolute directory path.
func workingDir(location string) (string, error) {
	if location == "" {
		return "", fmt.Errorf("%w: empty location", ErrBadLocation)
	}
	p := location
	if strings.HasPrefix(location, "file:") {
		u, err := url.Parse(location)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrBadLocation, err)
		}
		p = filepath.FromSlash(u.Path)
		if u.Opaque != "" {
			p = filepath.FromSlash(u.Opaque)
		}
	}
	p, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadLocation, err)
	}
	fi, err := os.Stat(p)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadLocation, err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrBadLocation, p)
	}
	return p, nil
}

// Initialize writes the run configuration, launches the companion and
// waits for it to connect.
func (a *Adapter) Initialize(h Handle, start float64, stopDefined bool, stop float64) Status {
	return a.with(h, "Initialize", func(in *Instance) error {
		return in.initialize(start, stopDefined, stop)
	})
}

// DoStep advances the companion by one fixed step starting at current.
// Reaching the stop time terminates the instance and returns StatusWarning.
func (a *Adapter) DoStep(h Handle, current, size float64, accept bool) Status {
	return a.with(h, "DoStep", func(in *Instance) error {
		return in.doStep(current, size, accept)
	})
}

// CancelStep is not supported: steps are never asynchronous.
func (a *Adapter) CancelStep(h Handle) Status {
	return a.unsupported(h, "CancelStep", warning)
}

// Terminate ends the run. Terminating twice is a no-op.
func (a *Adapter) Terminate(h Handle) Status {
	return a.with(h, "Terminate", func(in *Instance) error {
		return in.terminate()
	})
}

func (in *Instance) terminate() error {
	switch in.phase {
	case PhaseTerminated, PhaseFreed, PhaseFailed:
		in.log.WithField("phase", in.phase.String()).Debug("terminate: nothing to do")
		return nil
	}
	in.teardown()
	in.advance(PhaseTerminated)
	in.log.Info("instance terminated")
	return nil
}

// Free releases the instance. It tears the run down first when the master
// skipped Terminate. Freeing twice is a no-op. The registry slot is not
// reused.
func (a *Adapter) Free(h Handle) {
	a.with(h, "Free", func(in *Instance) error {
		return in.free()
	})
}

func (in *Instance) free() error {
	switch in.phase {
	case PhaseFreed, PhaseFailed:
		in.log.WithField("phase", in.phase.String()).Debug("free: nothing to do")
		return nil
	}
	in.teardown()
	in.advance(PhaseFreed)
	in.io = exchangeState{}
	in.log.Info("instance freed")
	return nil
}

// Reset is not supported.
func (a *Adapter) Reset(h Handle) Status {
	return a.unsupported(h, "Reset", warning)
}

// SetDebugLogging switches debug logging of one instance.
func (a *Adapter) SetDebugLogging(h Handle, on bool) Status {
	return a.with(h, "SetDebugLogging", func(in *Instance) error {
		in.setDebug(on)
		return nil
	})
}

// SetReal writes input values by value reference.
func (a *Adapter) SetReal(h Handle, refs []uint32, values []float64) Status {
	return a.with(h, "SetReal", func(in *Instance) error {
		return in.setReal(refs, values)
	})
}

// GetReal reads output values by value reference. values[i] receives the
// output referenced by refs[i].
func (a *Adapter) GetReal(h Handle, refs []uint32, values []float64) Status {
	return a.with(h, "GetReal", func(in *Instance) error {
		return in.getReal(refs, values)
	})
}

// The model only exchanges reals; the other types accept empty requests.

func (a *Adapter) SetInteger(h Handle, refs []uint32, _ []int32) Status {
	return a.noValues(h, "SetInteger", refs)
}

func (a *Adapter) SetBoolean(h Handle, refs []uint32, _ []bool) Status {
	return a.noValues(h, "SetBoolean", refs)
}

func (a *Adapter) SetString(h Handle, refs []uint32, _ []string) Status {
	return a.noValues(h, "SetString", refs)
}

func (a *Adapter) GetInteger(h Handle, refs []uint32, _ []int32) Status {
	return a.noValues(h, "GetInteger", refs)
}

func (a *Adapter) GetBoolean(h Handle, refs []uint32, _ []bool) Status {
	return a.noValues(h, "GetBoolean", refs)
}

func (a *Adapter) GetString(h Handle, refs []uint32, _ []string) Status {
	return a.noValues(h, "GetString", refs)
}

func (a *Adapter) noValues(h Handle, op string, refs []uint32) Status {
	return a.with(h, op, func(in *Instance) error {
		if len(refs) == 0 {
			return nil
		}
		return failure(op, fmt.Errorf("%w: %d", ErrUnknownReference, refs[0]))
	})
}

// SetRealInputDerivatives is not supported.
func (a *Adapter) SetRealInputDerivatives(h Handle, _ []uint32, _ []int32, _ []float64) Status {
	return a.unsupported(h, "SetRealInputDerivatives", warning)
}

// GetRealOutputDerivatives is not supported.
func (a *Adapter) GetRealOutputDerivatives(h Handle, _ []uint32, _ []int32, _ []float64) Status {
	return a.unsupported(h, "GetRealOutputDerivatives", warning)
}

// StatusKind selects the status query of GetStatus.
type StatusKind int

const (
	DoStepStatus StatusKind = iota
	PendingStatus
	LastSuccessfulTime
)

// Status queries are meaningless for synchronous steps.

func (a *Adapter) GetStatus(h Handle, _ StatusKind) Status {
	return a.unsupported(h, "GetStatus", warning)
}

func (a *Adapter) GetRealStatus(h Handle, _ StatusKind) (float64, Status) {
	return 0, a.unsupported(h, "GetRealStatus", warning)
}

func (a *Adapter) GetIntegerStatus(h Handle, _ StatusKind) (int32, Status) {
	return 0, a.unsupported(h, "GetIntegerStatus", warning)
}

func (a *Adapter) GetBooleanStatus(h Handle, _ StatusKind) (bool, Status) {
	return false, a.unsupported(h, "GetBooleanStatus", discard)
}

func (a *Adapter) GetStringStatus(h Handle, _ StatusKind) (string, Status) {
	return "", a.unsupported(h, "GetStringStatus", warning)
}

func (a *Adapter) unsupported(h Handle, op string, as func(string, error) error) Status {
	return a.with(h, op, func(*Instance) error {
		return as(op, ErrUnsupported)
	})
}

// Instances returns every handle issued so far with its phase.
func (a *Adapter) Instances() map[Handle]Phase {
	out := make(map[Handle]Phase, a.reg.Len())
	a.reg.Each(func(h Handle, in *Instance) bool {
		out[h] = in.Phase()
		return true
	})
	return out
}
