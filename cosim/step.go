package cosim

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/cosim-bridge/eplusfmu/cosim/runcfg"
	"github.com/cosim-bridge/eplusfmu/cosim/trace"
)

func near(a, b float64) bool { return math.Abs(a-b) <= timeTolerance }

// doStep validates one communication step and, when it is acceptable,
// sends the inputs to the companion. The checks run in a fixed order; the
// first failing one decides the status.
func (in *Instance) doStep(current, size float64, accept bool) error {
	const op = "DoStep"
	err := in.checkStep(op, current, size, accept)
	st := StatusOf(err)
	rec := trace.StepRecord{Time: current, Size: size, Status: st.String()}
	if err != nil {
		rec.Reason = err.Error()
	}
	in.trace.RecordStep(rec)
	return err
}

func (in *Instance) checkStep(op string, current, size float64, accept bool) error {
	if err := in.requireStepping(op); err != nil {
		return err
	}
	if !accept {
		return in.fail(fatal(op, ErrStepRejected))
	}
	first := !in.clock.started
	if first {
		n, fixed, err := runcfg.ReadFixedStep(in.dir, in.a.cfg.Files.FixedStep)
		if err != nil {
			return in.fail(fatal(op, err))
		}
		in.clock.perHour, in.clock.fixedStep = n, fixed
	}
	if size == 0 || !near(size, in.clock.fixedStep) {
		return in.fail(fatal(op, fmt.Errorf("%w: got %g, want %g (%d per hour)", ErrStepSize, size, in.clock.fixedStep, in.clock.perHour)))
	}
	if first && !near(current, in.start) {
		return in.fail(fatal(op, fmt.Errorf("%w: got %g, want %g", ErrStartTime, current, in.start)))
	}
	if !first && !near(current, in.clock.nextExpected) {
		return failure(op, fmt.Errorf("%w: got %g, want %g", ErrTimeMismatch, current, in.clock.nextExpected))
	}
	if near(current, in.stop) {
		in.log.WithField("time", current).Info("stop time reached, terminating")
		in.teardown()
		in.advance(PhaseTerminated)
		return warning(op, ErrEndOfSimulation)
	}
	if current > in.stop {
		return failure(op, fmt.Errorf("%w: communication point %g, stop %g", ErrPastStop, current, in.stop))
	}
	if current+size > in.stop+timeTolerance {
		return failure(op, fmt.Errorf("%w: %g + %g > %g", ErrPastStop, current, size, in.stop))
	}
	if !first && !(in.io.inputsWritten && in.io.outputsRead) {
		return failure(op, fmt.Errorf("%w: inputs %d/%d, outputs %d/%d", ErrIONotReady,
			in.io.setCount, len(in.io.inputs), in.io.getCount, len(in.io.outputs)))
	}

	if in.io.pendingResult {
		// the master skipped reading this result; keep the stream aligned
		if err := in.pull(in.a.cfg.ExchangeTimeout); err != nil {
			return in.fail(fatal(op, err))
		}
	}
	if err := in.send(current); err != nil {
		return in.fail(fatal(op, err))
	}
	in.io.resetStep()
	in.io.pendingResult = true
	in.clock.started = true
	in.clock.current = current
	in.clock.nextExpected = current + size
	in.log.WithFields(logrus.Fields{"time": current, "size": size}).Debug("step accepted")
	return nil
}

// setReal writes inputs for the next step.
func (in *Instance) setReal(refs []uint32, values []float64) error {
	const op = "SetReal"
	if err := in.requireStepping(op); err != nil {
		return err
	}
	if len(values) < len(refs) {
		return failure(op, fmt.Errorf("%w: %d values for %d references", ErrShortValues, len(values), len(refs)))
	}
	pos, err := resolve(refs, in.vars.InputPosition)
	if err != nil {
		return failure(op, err)
	}
	s := &in.io
	for i, p := range pos {
		s.inputs[p] = values[i]
		if !s.written[p] {
			s.written[p] = true
			s.setCount++
		}
	}
	if s.setCount == len(s.inputs) {
		s.inputsWritten = true
	}
	return nil
}

// getReal reads outputs of the last step, pulling the result vector from
// the companion on the first read after a step.
func (in *Instance) getReal(refs []uint32, values []float64) error {
	const op = "GetReal"
	if err := in.requireStepping(op); err != nil {
		return err
	}
	if len(values) < len(refs) {
		return failure(op, fmt.Errorf("%w: %d values for %d references", ErrShortValues, len(values), len(refs)))
	}
	pos, err := resolve(refs, in.vars.OutputPosition)
	if err != nil {
		return failure(op, err)
	}
	if len(pos) == 0 {
		return nil
	}
	if in.io.pendingResult {
		if err := in.pull(in.a.cfg.ExchangeTimeout); err != nil {
			return in.fail(fatal(op, err))
		}
	}
	s := &in.io
	for i, p := range pos {
		values[i] = s.outputs[p]
		if !s.read[p] {
			s.read[p] = true
			s.getCount++
		}
	}
	if s.getCount == len(s.outputs) {
		s.outputsRead = true
	}
	return nil
}
