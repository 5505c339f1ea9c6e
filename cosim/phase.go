package cosim

import "fmt"

// Phase is the lifecycle state of a slave instance.
//
//	Created -> Initializing -> Stepping -> Terminated -> Freed
//
// Failed is absorbing and reachable from every phase but Freed.
type Phase int

const (
	PhaseCreated Phase = iota
	PhaseInitializing
	PhaseStepping
	PhaseTerminated
	PhaseFreed
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseCreated:      "created",
	PhaseInitializing: "initializing",
	PhaseStepping:     "stepping",
	PhaseTerminated:   "terminated",
	PhaseFreed:        "freed",
	PhaseFailed:       "failed",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// canAdvance reports whether the machine may move from p to next.
// Transitions only move forward; Terminated and Freed may be entered
// directly from any earlier phase.
func (p Phase) canAdvance(next Phase) bool {
	switch {
	case p == PhaseFailed || p == PhaseFreed:
		return false
	case next == PhaseFailed:
		return true
	case next == PhaseTerminated || next == PhaseFreed:
		return next > p
	default:
		return next == p+1
	}
}
