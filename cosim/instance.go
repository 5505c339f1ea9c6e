package cosim

import (
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cosim-bridge/eplusfmu/cosim/bcvtb"
	"github.com/cosim-bridge/eplusfmu/cosim/catalog"
	"github.com/cosim-bridge/eplusfmu/cosim/launcher"
	"github.com/cosim-bridge/eplusfmu/cosim/registry"
	"github.com/cosim-bridge/eplusfmu/cosim/trace"
)

// Handle identifies an instance across the exported API.
type Handle = registry.Handle

// timeTolerance is the slack allowed when comparing communication points
// and step sizes.
const timeTolerance = 1e-10

// Instance is one slave: one working directory, one companion process and
// one socket. All fields are guarded by mu.
type Instance struct {
	mu sync.Mutex

	handle Handle
	id     uuid.UUID
	name   string
	dir    string // absolute working directory (the model location)

	timeout     time.Duration // rendezvous and first-exchange bound
	visible     bool
	interactive bool

	model *catalog.ModelDescription
	vars  *VariableMap
	phase Phase

	start, stop float64
	stopDefined bool

	clock stepClock
	io    exchangeState

	prepared bool // run artifacts were written into dir
	server   *bcvtb.Server
	conn     *bcvtb.Conn
	proc     launcher.Process
	logPipes []io.Closer

	a      *Adapter
	logger *logrus.Logger
	log    *logrus.Entry
	trace  *trace.InstanceTrace
}

// stepClock tracks the communication points of the run.
type stepClock struct {
	started      bool // at least one step was accepted
	fixedStep    float64
	perHour      int
	current      float64
	nextExpected float64
}

// exchangeState holds the two vectors and the per-step bookkeeping.
type exchangeState struct {
	inputs  []float64
	outputs []float64

	written  []bool // input positions written this step
	read     []bool // output positions read this step
	setCount int
	getCount int

	inputsWritten bool
	outputsRead   bool

	// pendingResult is set while the companion has sent (or owes) a result
	// vector that has not been read from the socket yet.
	pendingResult bool
	// peerDone is set once the companion ended the exchange itself.
	peerDone   bool
	resultTime float64
}

func (s *exchangeState) allocate(numIn, numOut int) {
	s.inputs = make([]float64, numIn)
	s.outputs = make([]float64, numOut)
	s.written = make([]bool, numIn)
	s.read = make([]bool, numOut)
	s.resetStep()
}

// resetStep clears the per-step flags. A direction with no variables is
// trivially complete.
func (s *exchangeState) resetStep() {
	clear(s.written)
	clear(s.read)
	s.setCount, s.getCount = 0, 0
	s.inputsWritten = len(s.inputs) == 0
	s.outputsRead = len(s.outputs) == 0
}

func newInstance(a *Adapter, h Handle, name, dir string, md *catalog.ModelDescription, vars *VariableMap) *Instance {
	in := &Instance{
		handle: h,
		id:     uuid.New(),
		name:   name,
		dir:    dir,
		model:  md,
		vars:   vars,
		phase:  PhaseCreated,
		a:      a,
		trace:  trace.NewInstanceTrace(a.cfg.Trace),
	}
	in.logger = instanceLogger(a.log.Logger)
	in.log = in.logger.WithFields(a.log.Data).WithFields(logrus.Fields{
		"instance": name,
		"id":       in.id.String(),
		"handle":   h.String(),
	})
	return in
}

// instanceLogger returns a logger writing where parent does, with its own
// level so debug logging can be switched per instance.
func instanceLogger(parent *logrus.Logger) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(parent.Out)
	l.SetFormatter(parent.Formatter)
	l.SetLevel(parent.GetLevel())
	l.SetReportCaller(parent.ReportCaller)
	l.ReplaceHooks(parent.Hooks)
	return l
}

func (in *Instance) setDebug(on bool) {
	level := in.a.log.Logger.GetLevel()
	if on && level < logrus.DebugLevel {
		level = logrus.DebugLevel
	}
	in.logger.SetLevel(level)
}

// advance moves the lifecycle forward and reports whether it did.
func (in *Instance) advance(next Phase) bool {
	if !in.phase.canAdvance(next) {
		return false
	}
	in.log.WithFields(logrus.Fields{"from": in.phase.String(), "to": next.String()}).Debug("phase change")
	in.a.metrics.ObservePhase(in.phase.String(), next.String())
	in.phase = next
	return true
}

// requireStepping guards set/get/step.
func (in *Instance) requireStepping(op string) error {
	if in.phase != PhaseStepping {
		return failure(op, ErrPhase)
	}
	return nil
}

// fail releases everything the instance holds and makes it Failed. It
// returns err so call sites can `return in.fail(err)`.
func (in *Instance) fail(err error) error {
	in.teardown()
	in.advance(PhaseFailed)
	return err
}

// Phase returns the current lifecycle phase.
func (in *Instance) Phase() Phase {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.phase
}

// Trace returns the instance trace, nil when tracing is off.
func (in *Instance) Trace() *trace.InstanceTrace {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.trace
}

// Variables returns the value reference tables, nil when instantiation
// failed before the catalog was read.
func (in *Instance) Variables() *VariableMap {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.vars
}

// Dir returns the working directory of the instance.
func (in *Instance) Dir() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.dir
}
