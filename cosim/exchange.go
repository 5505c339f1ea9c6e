package cosim

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cosim-bridge/eplusfmu/cosim/bcvtb"
	"github.com/cosim-bridge/eplusfmu/cosim/runcfg"
	"github.com/cosim-bridge/eplusfmu/cosim/trace"
)

// pull reads the pending result vector into the output buffer. Once the
// first vector is in, later reads and writes are bounded by next.
func (in *Instance) pull(next time.Duration) error {
	began := time.Now()
	msg, err := in.conn.Read()
	in.a.metrics.ObserveExchange(string(trace.Received), time.Since(began))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrChannel, err)
	}
	in.conn.SetTimeout(next)
	in.trace.RecordExchange(trace.ExchangeRecord{Direction: trace.Received, Time: msg.Time, Flag: msg.Flag, Values: msg.Doubles})
	if msg.Terminated() {
		in.io.peerDone = true
		in.io.pendingResult = false
		return fmt.Errorf("%w: flag %d at t=%g", ErrCompanionStopped, msg.Flag, msg.Time)
	}
	if len(msg.Doubles) != len(in.io.outputs) {
		return fmt.Errorf("%w: %w: got %d values, want %d", ErrChannel, bcvtb.ErrProtocol, len(msg.Doubles), len(in.io.outputs))
	}
	copy(in.io.outputs, msg.Doubles)
	in.io.resultTime = msg.Time
	in.io.pendingResult = false
	in.log.WithFields(logrus.Fields{"time": msg.Time, "values": msg.Doubles}).Debug("result received")
	return nil
}

// send writes the input vector tagged with t.
func (in *Instance) send(t float64) error {
	msg := bcvtb.Message{Flag: bcvtb.FlagContinue, Time: t, Doubles: in.io.inputs}
	began := time.Now()
	err := in.conn.Write(msg)
	in.a.metrics.ObserveExchange(string(trace.Sent), time.Since(began))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrChannel, err)
	}
	in.trace.RecordExchange(trace.ExchangeRecord{Direction: trace.Sent, Time: t, Flag: msg.Flag, Values: msg.Doubles})
	in.log.WithFields(logrus.Fields{"time": t, "values": msg.Doubles}).Debug("inputs sent")
	return nil
}

// teardown releases the socket, the companion and the scratch files. Every
// stage runs even when an earlier one failed; failures are logged only.
// Calling it again is a no-op.
func (in *Instance) teardown() {
	grace := in.a.cfg.TerminateGrace
	stopped := false
	if in.conn != nil {
		bound := in.a.cfg.ExchangeTimeout
		if grace > 0 {
			bound = grace
		}
		in.conn.SetTimeout(bound)
		if in.io.pendingResult && !in.io.peerDone {
			if err := in.pull(bound); err != nil && !errors.Is(err, ErrCompanionStopped) {
				in.log.WithError(err).Warn("reading final result")
			}
		}
		if !in.io.peerDone {
			stop := bcvtb.Message{Flag: bcvtb.FlagTerminate, Time: in.clock.nextExpected}
			if err := in.conn.Write(stop); err != nil {
				in.log.WithError(err).Warn("sending stop flag")
			} else {
				stopped = true
				in.trace.RecordExchange(trace.ExchangeRecord{Direction: trace.Sent, Time: stop.Time, Flag: stop.Flag})
			}
		}
		stopped = stopped || in.io.peerDone
		if err := in.conn.Close(); err != nil {
			in.log.WithError(err).Debug("closing connection")
		}
		in.conn = nil
	}
	if in.server != nil {
		if err := in.server.Close(); err != nil {
			in.log.WithError(err).Debug("closing listener")
		}
		in.server = nil
	}
	if in.proc != nil {
		if stopped {
			// a companion told to stop writes its results and exits on its own
			select {
			case <-in.proc.Done():
			case <-time.After(grace):
			}
		}
		if err := in.a.launcher.Terminate(in.proc); err != nil {
			in.log.WithError(err).Warn("stopping companion")
		} else {
			in.log.WithField("exit", in.proc.ExitErr()).Info("companion stopped")
		}
		in.proc = nil
	}
	for _, c := range in.logPipes {
		_ = c.Close()
	}
	in.logPipes = nil
	in.io.pendingResult = false
	if in.prepared {
		if errs := runcfg.Cleanup(in.dir, in.a.cfg.Cleanup); len(errs) > 0 {
			in.log.WithError(errors.Join(errs...)).Warn("removing scratch files")
		}
		in.prepared = false
	}
}
