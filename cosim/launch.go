package cosim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cosim-bridge/eplusfmu/cosim/bcvtb"
	"github.com/cosim-bridge/eplusfmu/cosim/launcher"
	"github.com/cosim-bridge/eplusfmu/cosim/runcfg"
)

// initialize prepares the run, launches the companion and waits for it to
// connect. Every failure is fatal and leaves nothing behind.
func (in *Instance) initialize(start float64, stopDefined bool, stop float64) error {
	const op = "Initialize"
	if in.phase != PhaseCreated {
		return failure(op, fmt.Errorf("%w: %s", ErrPhase, in.phase))
	}
	if start < 0 {
		return in.fail(fatal(op, fmt.Errorf("%w: negative start time %g", ErrStartTime, start)))
	}
	if !stopDefined {
		in.log.WithField("stop", stop).Warn("stop time not defined by the master, using the value passed")
	}
	if in.vars.NumInputs() == 0 && in.vars.NumOutputs() == 0 {
		return in.fail(fatal(op, ErrNoVariables))
	}
	in.start, in.stop, in.stopDefined = start, stop, stopDefined
	in.advance(PhaseInitializing)

	cfg := &in.a.cfg
	run, err := runcfg.Prepare(runcfg.Params{
		WorkDir:      in.dir,
		ResourcesDir: filepath.Join(in.dir, cfg.Files.Resources),
		ModelID:      in.model.ModelIdentifier,
		Start:        start,
		Stop:         stop,
		Files:        cfg.Files.Files,
	})
	if err != nil {
		return in.fail(fatal(op, err))
	}
	in.prepared = true
	in.log.WithFields(logrus.Fields{
		"input":         run.InputFile,
		"timesteps":     run.TimestepsPerHour,
		"weather":       run.WeatherFile,
		"num_inputs":    in.vars.NumInputs(),
		"num_outputs":   in.vars.NumOutputs(),
		"start":         start,
		"stop":          stop,
		"working_dir":   in.dir,
		"accept_within": in.acceptTimeout().String(),
	}).Debug("run configuration written")

	if err := in.listen(); err != nil {
		return in.fail(fatal(op, err))
	}
	if err := in.spawn(run); err != nil {
		in.a.metrics.ObserveLaunch(false)
		return in.fail(fatal(op, err))
	}
	in.a.metrics.ObserveLaunch(true)

	if err := in.rendezvous(); err != nil {
		return in.fail(fatal(op, err))
	}

	in.io.allocate(in.vars.NumInputs(), in.vars.NumOutputs())
	// the companion opens the exchange with its initial outputs
	in.io.pendingResult = true
	in.advance(PhaseStepping)
	return nil
}

func (in *Instance) acceptTimeout() time.Duration {
	if in.timeout > 0 {
		return in.timeout
	}
	return in.a.cfg.DefaultAcceptTimeout
}

// listen binds the socket and writes the descriptor the companion reads to
// find it.
func (in *Instance) listen() error {
	cfg := &in.a.cfg
	srv, err := bcvtb.Listen(cfg.ListenHost, cfg.ExchangeTimeout)
	if err != nil {
		return err
	}
	in.server = srv
	host := cfg.ListenHost
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		if host, err = os.Hostname(); err != nil {
			return fmt.Errorf("resolving host name for the socket descriptor: %w", err)
		}
	}
	p, err := bcvtb.WriteDescriptor(in.dir, cfg.Files.SocketConfig, host, srv.Port())
	if err != nil {
		return err
	}
	in.log.WithFields(logrus.Fields{"descriptor": p, "port": srv.Port()}).Debug("listening for companion")
	return nil
}

func (in *Instance) spawn(run *runcfg.Result) error {
	cfg := &in.a.cfg
	stdout := in.log.WithField("stream", "stdout").WriterLevel(logrus.DebugLevel)
	stderr := in.log.WithField("stream", "stderr").WriterLevel(logrus.WarnLevel)
	in.logPipes = []io.Closer{stdout, stderr}

	cmd := launcher.Command{
		Path:    cfg.Companion.Command,
		Args:    cfg.companionArgs(in.model.ModelIdentifier, run.InputFile, run.WeatherFile),
		Env:     append(append([]string(nil), cfg.Companion.Env...), run.Env...),
		Visible: in.visible,
		Stdout:  stdout,
		Stderr:  stderr,
	}
	proc, err := in.a.launcher.Spawn(in.dir, cmd)
	if err != nil {
		return fmt.Errorf("launching companion: %w", err)
	}
	in.proc = proc
	in.log.WithFields(logrus.Fields{"pid": proc.Pid(), "command": cmd.Path, "args": cmd.Args}).Info("companion started")
	return nil
}

// rendezvous accepts the companion's single connection. The wait ends
// early when the companion exits without connecting.
func (in *Instance) rendezvous() error {
	ctx, cancel := context.Background(), context.CancelFunc(func() {})
	if t := in.acceptTimeout(); t > 0 {
		ctx, cancel = context.WithTimeoutCause(ctx, t, ErrConnectTimeout)
	}
	defer cancel()
	ctx, cancelCause := context.WithCancelCause(ctx)
	defer cancelCause(nil)

	go func() {
		select {
		case <-in.proc.Done():
			cancelCause(fmt.Errorf("%w before connecting: %v", ErrCompanionExited, in.proc.ExitErr()))
		case <-ctx.Done():
		}
	}()

	conn, err := in.server.Accept(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrConnectTimeout
		}
		return err
	}
	in.conn = conn
	// the first result may take as long as the rendezvous did
	if t := in.acceptTimeout(); t <= 0 || (t > in.a.cfg.ExchangeTimeout && in.a.cfg.ExchangeTimeout > 0) {
		conn.SetTimeout(t)
	}
	in.log.Info("companion connected")
	return nil
}
