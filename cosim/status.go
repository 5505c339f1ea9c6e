package cosim

import (
	"errors"
	"fmt"

	"github.com/cosim-bridge/eplusfmu/cosim/registry"
)

// Status is the outcome code returned to the co-simulation master.
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusDiscard
	StatusError
	StatusFatal
	StatusPending
)

var statusNames = map[Status]string{
	StatusOK:      "ok",
	StatusWarning: "warning",
	StatusDiscard: "discard",
	StatusError:   "error",
	StatusFatal:   "fatal",
	StatusPending: "pending",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Sentinel errors. Match them with errors.Is.
var (
	ErrInvalidHandle    = registry.ErrInvalidHandle
	ErrTooManyInstances = registry.ErrTooManyInstances

	ErrBadLocation     = errors.New("bad model location")
	ErrVersionMismatch = errors.New("unsupported FMI version")
	ErrGUIDMismatch    = errors.New("GUID mismatch")
	ErrNoVariables     = errors.New("model has neither inputs nor outputs")

	ErrConnectTimeout   = errors.New("companion did not connect before the deadline")
	ErrCompanionExited  = errors.New("companion exited")
	ErrCompanionStopped = errors.New("companion ended the exchange")
	ErrChannel          = errors.New("socket exchange failed")

	ErrPhase            = errors.New("operation not allowed in this phase")
	ErrStepRejected     = errors.New("master rejected the previous step")
	ErrStepSize         = errors.New("step size differs from the fixed step")
	ErrStartTime        = errors.New("first communication point differs from the start time")
	ErrTimeMismatch     = errors.New("communication point differs from the expected one")
	ErrPastStop         = errors.New("step reaches beyond the stop time")
	ErrIONotReady       = errors.New("inputs not all written or outputs not all read")
	ErrUnknownReference = errors.New("unknown value reference")
	ErrShortValues      = errors.New("fewer values than value references")
	ErrUnsupported      = errors.New("operation not supported")
	ErrEndOfSimulation  = errors.New("stop time reached, simulation terminated")
)

// Error classifies a failure with the status it maps to.
type Error struct {
	Status Status
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(s Status, op string, err error) *Error {
	return &Error{Status: s, Op: op, Err: err}
}

func fatal(op string, err error) error   { return newError(StatusFatal, op, err) }
func failure(op string, err error) error { return newError(StatusError, op, err) }
func warning(op string, err error) error { return newError(StatusWarning, op, err) }
func discard(op string, err error) error { return newError(StatusDiscard, op, err) }

// StatusOf maps err to the status the master sees. Unclassified errors are
// StatusError.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Status
	}
	return StatusError
}
