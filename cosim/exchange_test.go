package cosim

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosim-bridge/eplusfmu/cosim/bcvtb"
	"github.com/cosim-bridge/eplusfmu/internal/testutil"
)

// pipeInstance returns a stepping instance whose companion side is peer.
func pipeInstance(t *testing.T, cfg Config) (*Instance, *bcvtb.Conn) {
	t.Helper()
	ours, theirs := net.Pipe()
	t.Cleanup(func() { _ = theirs.Close() })
	a := quietAdapter(t, cfg)
	in := newInstance(a, 0, "office", t.TempDir(), nil, nil)
	in.conn = bcvtb.NewConn(ours, cfg.ExchangeTimeout)
	in.io.allocate(0, 1)
	in.io.pendingResult = true
	in.phase = PhaseStepping
	return in, bcvtb.NewConn(theirs, 0)
}

func TestTeardown_UnboundedExchanges_StopFlagBoundedByGrace(t *testing.T) {
	// GIVEN unbounded exchanges and a companion that sends its last result
	// and then stops reading
	cfg := DefaultConfig()
	cfg.ExchangeTimeout = 0
	cfg.TerminateGrace = 200 * time.Millisecond
	in, peer := pipeInstance(t, cfg)
	go func() { _ = peer.Write(bcvtb.Message{Time: 900, Doubles: []float64{21}}) }()

	// WHEN the instance is torn down
	done := make(chan struct{})
	go func() {
		in.teardown()
		close(done)
	}()

	// THEN the stop flag write gives up after the grace period
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("teardown blocked writing the stop flag")
	}
	assert.Equal(t, 21.0, in.io.outputs[0], "the final result was still read")
	assert.Nil(t, in.conn)
}

func TestPull_AppliesNextTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExchangeTimeout = 0
	in, peer := pipeInstance(t, cfg)
	go func() { _ = peer.Write(bcvtb.Message{Time: 0, Doubles: []float64{1}}) }()

	require.NoError(t, in.pull(100*time.Millisecond))

	// nobody reads on the other side, so the next write must time out
	start := time.Now()
	err := in.send(900)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChannel)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestInitialize_ZeroAcceptTimeout_WaitsWithoutDeadline(t *testing.T) {
	// GIVEN no accept bound from the config or the caller
	fmu := testutil.NewFMU(t, testutil.FMUOptions{Inputs: 1, Outputs: 1})
	cfg := fakeConfig(t, testutil.ModeEcho)
	cfg.DefaultAcceptTimeout = 0
	a := quietAdapter(t, cfg)
	h, st := a.Instantiate("office", fmu.GUID, fmu.Dir, "application/x-fmu-sharedlibrary", 0, false, false, false)
	require.Equal(t, StatusOK, st)
	t.Cleanup(func() { a.Free(h) })

	// WHEN initialized
	// THEN the companion gets to connect and the run proceeds
	require.Equal(t, StatusOK, a.Initialize(h, 0, true, 4*step))
	out := make([]float64, 1)
	require.Equal(t, StatusOK, a.GetReal(h, fmu.Outputs, out))
	require.Equal(t, StatusOK, a.SetReal(h, fmu.Inputs, []float64{2}))
	assert.Equal(t, StatusOK, a.DoStep(h, 0, step, true))
	require.Equal(t, StatusOK, a.GetReal(h, fmu.Outputs, out))
	assert.Equal(t, 2.0, out[0])
	assert.Equal(t, StatusOK, a.Terminate(h))
}

func TestInitialize_ZeroAcceptTimeout_StillEndsWhenCompanionExits(t *testing.T) {
	fmu := testutil.NewFMU(t, testutil.FMUOptions{Inputs: 1, Outputs: 1})
	cfg := fakeConfig(t, testutil.ModeExit)
	cfg.DefaultAcceptTimeout = 0
	a := quietAdapter(t, cfg)
	h, st := a.Instantiate("office", fmu.GUID, fmu.Dir, "application/x-fmu-sharedlibrary", 0, false, false, false)
	require.Equal(t, StatusOK, st)
	t.Cleanup(func() { a.Free(h) })

	assert.Equal(t, StatusFatal, a.Initialize(h, 0, true, 4*step))
	in, err := a.Lookup(h)
	require.NoError(t, err)
	assert.Equal(t, PhaseFailed, in.Phase())
}
