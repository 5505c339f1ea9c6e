package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cosim-bridge/eplusfmu/cosim/bcvtb"
	"github.com/cosim-bridge/eplusfmu/cosim/runcfg"
)

// EnvFakeCompanion selects the fake companion behaviour in a re-executed
// test binary. A test package opts in from TestMain:
//
//	if testutil.IsFakeCompanion() {
//		os.Exit(testutil.RunFakeCompanion())
//	}
const EnvFakeCompanion = "GO_WANT_FAKE_COMPANION"

// Fake companion modes.
const (
	// ModeEcho answers every input vector: output j is j plus the sum of
	// the inputs last received.
	ModeEcho = "echo"
	// ModeExit exits with status 3 without connecting.
	ModeExit = "exit"
	// ModeSilent never connects.
	ModeSilent = "silent"
	// ModeHangUp sends its initial outputs, then drops the connection as
	// soon as it receives inputs.
	ModeHangUp = "hangup"
	// ModeStop sends its initial outputs, then answers the first inputs
	// with a terminate flag.
	ModeStop = "stop"
)

// Files the fake companion leaves in its working directory.
const (
	ArgsFile    = "companion-args.txt"
	EnvFile     = "companion-env.txt"
	InputsFile  = "companion-inputs.txt"
	StoppedFile = "companion-stopped.txt"
)

// IsFakeCompanion reports whether this process was started as the fake.
func IsFakeCompanion() bool { return os.Getenv(EnvFakeCompanion) != "" }

// CompanionEnv returns the environment entry that starts mode.
func CompanionEnv(mode string) string { return EnvFakeCompanion + "=" + mode }

// RunFakeCompanion plays the companion side of the protocol in the current
// directory and returns the process exit status.
func RunFakeCompanion() int {
	mode := os.Getenv(EnvFakeCompanion)
	_ = os.WriteFile(ArgsFile, []byte(strings.Join(os.Args[1:], "\n")), 0o644)
	_ = os.WriteFile(EnvFile, []byte("ENERGYPLUS_WEATHER="+os.Getenv("ENERGYPLUS_WEATHER")), 0o644)

	switch mode {
	case ModeExit:
		return 3
	case ModeSilent:
		time.Sleep(time.Minute)
		return 0
	}

	if err := serve(mode); err != nil {
		fmt.Fprintln(os.Stderr, "fake companion:", err)
		return 2
	}
	return 0
}

func serve(mode string) error {
	host, port, err := bcvtb.ReadDescriptor("socket.cfg")
	if err != nil {
		return err
	}
	cfg, err := os.ReadFile("variables.cfg")
	if err != nil {
		return err
	}
	numOut := strings.Count(string(cfg), `source="EnergyPlus"`)
	_, step, err := runcfg.ReadFixedStep(".", "tstep.txt")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, err := bcvtb.Dial(ctx, host, port, 30*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	log, err := os.Create(InputsFile)
	if err != nil {
		return err
	}
	defer log.Close()

	var t, sum float64
	for {
		out := make([]float64, numOut)
		for j := range out {
			out[j] = float64(j) + sum
		}
		if err := conn.Write(bcvtb.Message{Time: t, Doubles: out}); err != nil {
			return err
		}
		in, err := conn.Read()
		if err != nil {
			return err
		}
		if in.Terminated() {
			return os.WriteFile(StoppedFile, []byte(fmt.Sprintf("flag=%d\n", in.Flag)), 0o644)
		}
		fmt.Fprintf(log, "%g %s\n", in.Time, strings.Trim(fmt.Sprint(in.Doubles), "[]"))
		switch mode {
		case ModeHangUp:
			return nil
		case ModeStop:
			return conn.Write(bcvtb.Message{Flag: bcvtb.FlagTerminate, Time: in.Time})
		}
		sum = 0
		for _, v := range in.Doubles {
			sum += v
		}
		t = in.Time + step
	}
}
