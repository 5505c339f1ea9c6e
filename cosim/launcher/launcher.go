// Package launcher starts and stops the companion simulation process.
//
// The working directory and the child's extra environment are always passed
// explicitly; nothing here touches the parent's current directory or
// environment.
package launcher

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// ErrNotReaped is returned when a process outlives its kill signal.
var ErrNotReaped = errors.New("companion process was not reaped")

// Command describes how to start the companion.
type Command struct {
	Path    string
	Args    []string
	Env     []string // KEY=VALUE pairs added to the parent environment
	Visible bool     // show a console window where the platform has one
	Stdout  io.Writer
	Stderr  io.Writer
}

// Process is a running (or exited) companion.
type Process interface {
	Pid() int
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
	// ExitErr is the result of waiting for the process; valid after Done.
	ExitErr() error
}

// Launcher abstracts process creation so the platform specifics and tests
// can substitute their own.
type Launcher interface {
	Spawn(workdir string, cmd Command) (Process, error)
	Terminate(p Process) error
}

// Exec launches companions as OS processes. On unix the companion runs in
// its own process group so that the wrapper scripts EnergyPlus ships with
// are stopped together with their children.
type Exec struct {
	// Grace is how long Terminate waits after the polite signal and again
	// after the kill signal.
	Grace time.Duration
}

type process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *process) Pid() int              { return p.cmd.Process.Pid }
func (p *process) Done() <-chan struct{} { return p.done }
func (p *process) ExitErr() error        { return p.err }

// Spawn starts cmd in workdir and returns immediately.
func (l Exec) Spawn(workdir string, c Command) (Process, error) {
	if c.Path == "" {
		return nil, fmt.Errorf("empty companion command")
	}
	if workdir == "" {
		return nil, fmt.Errorf("empty working directory")
	}
	cmd := exec.Command(c.Path, c.Args...)
	cmd.Dir = workdir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	cmd.WaitDelay = l.grace()
	configure(cmd, c)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", c.Path, err)
	}
	p := &process{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// Terminate stops p and waits until it is reaped. Terminating an exited
// process is a no-op.
func (l Exec) Terminate(p Process) error {
	proc, ok := p.(*process)
	if !ok {
		return fmt.Errorf("process %d was not started by this launcher", p.Pid())
	}
	select {
	case <-proc.done:
		return nil
	default:
	}

	if err := interrupt(proc.cmd); err != nil {
		return kill(proc.cmd, proc.done, l.grace())
	}
	select {
	case <-proc.done:
		return nil
	case <-time.After(l.grace()):
	}
	return kill(proc.cmd, proc.done, l.grace())
}

func kill(cmd *exec.Cmd, done <-chan struct{}, grace time.Duration) error {
	if err := forceKill(cmd); err != nil {
		select {
		case <-done:
			return nil
		default:
		}
		return fmt.Errorf("killing process %d: %w", cmd.Process.Pid, err)
	}
	select {
	case <-done:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("%w: pid %d", ErrNotReaped, cmd.Process.Pid)
	}
}

func (l Exec) grace() time.Duration {
	if l.Grace <= 0 {
		return 2 * time.Second
	}
	return l.Grace
}
