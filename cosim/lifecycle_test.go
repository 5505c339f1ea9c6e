package cosim

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cosim-bridge/eplusfmu/cosim/launcher"
	"github.com/cosim-bridge/eplusfmu/cosim/registry"
	"github.com/cosim-bridge/eplusfmu/internal/testutil"
)

type mockLauncher struct{ mock.Mock }

func (m *mockLauncher) Spawn(workdir string, cmd launcher.Command) (launcher.Process, error) {
	args := m.Called(workdir, cmd)
	p, _ := args.Get(0).(launcher.Process)
	return p, args.Error(1)
}

func (m *mockLauncher) Terminate(p launcher.Process) error {
	return m.Called(p).Error(0)
}

// exitedProcess has already exited with err.
type exitedProcess struct {
	done chan struct{}
	err  error
}

func newExitedProcess(err error) *exitedProcess {
	p := &exitedProcess{done: make(chan struct{}), err: err}
	close(p.done)
	return p
}

func (p *exitedProcess) Pid() int              { return 4242 }
func (p *exitedProcess) Done() <-chan struct{} { return p.done }
func (p *exitedProcess) ExitErr() error        { return p.err }

func quietAdapter(t *testing.T, cfg Config, opts ...Option) *Adapter {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.GetLevel())
	a, err := New(cfg, append([]Option{WithLogger(logrus.NewEntry(logger))}, opts...)...)
	require.NoError(t, err)
	return a
}

func TestInstantiate_BadLocations_AreFatal(t *testing.T) {
	fmu := testutil.NewFMU(t, testutil.FMUOptions{Inputs: 1, Outputs: 1})
	file := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := []struct {
		name     string
		location string
		guid     string
		want     error
	}{
		{name: "empty location", location: "", guid: fmu.GUID, want: ErrBadLocation},
		{name: "missing directory", location: filepath.Join(fmu.Dir, "nope"), guid: fmu.GUID, want: ErrBadLocation},
		{name: "location is a file", location: file, guid: fmu.GUID, want: ErrBadLocation},
		{name: "GUID mismatch", location: fmu.Dir, guid: "{other}", want: ErrGUIDMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, hook := logtest.NewNullLogger()
			a, err := New(fakeConfig(t, testutil.ModeEcho), WithLogger(logrus.NewEntry(logger)))
			require.NoError(t, err)
			h, st := a.Instantiate("office", tt.guid, tt.location, "", 0, false, false, false)

			assert.Equal(t, StatusFatal, st)
			assert.Zero(t, h)
			require.NotNil(t, hook.LastEntry())
			logged, _ := hook.LastEntry().Data[logrus.ErrorKey].(error)
			assert.ErrorIs(t, logged, tt.want)
			instances := a.Instances()
			require.Len(t, instances, 1, "the failed instance keeps its slot")
			for _, p := range instances {
				assert.Equal(t, PhaseFailed, p)
			}
		})
	}
}

func TestInstantiate_FileURILocation(t *testing.T) {
	fmu := testutil.NewFMU(t, testutil.FMUOptions{Inputs: 1})
	a := quietAdapter(t, fakeConfig(t, testutil.ModeEcho))

	h, st := a.Instantiate("office", fmu.GUID, "file://"+filepath.ToSlash(fmu.Dir), "", 0, false, false, false)
	require.Equal(t, StatusOK, st)
	in, err := a.Lookup(h)
	require.NoError(t, err)
	assert.Equal(t, fmu.Dir, in.dir)
}

func TestInstantiate_WrongFMIVersion_IsFatal(t *testing.T) {
	fmu := testutil.NewFMU(t, testutil.FMUOptions{Inputs: 1, FMIVersion: "2.0"})
	a := quietAdapter(t, fakeConfig(t, testutil.ModeEcho))

	h, st := a.Instantiate("office", fmu.GUID, fmu.Dir, "", 0, false, false, false)
	assert.Equal(t, StatusFatal, st)
	assert.Zero(t, h)
}

func TestInstantiate_BeyondMaxInstances_IsFatal(t *testing.T) {
	fmu := testutil.NewFMU(t, testutil.FMUOptions{Inputs: 1})
	cfg := fakeConfig(t, testutil.ModeEcho)
	cfg.MaxInstances = 2
	a := quietAdapter(t, cfg)

	for i := 0; i < 2; i++ {
		_, st := a.Instantiate(fmt.Sprint("office", i), fmu.GUID, fmu.Dir, "", 0, false, false, false)
		require.Equal(t, StatusOK, st)
	}
	h, st := a.Instantiate("office2", fmu.GUID, fmu.Dir, "", 0, false, false, false)
	assert.Equal(t, StatusFatal, st)
	assert.Zero(t, h)
	assert.Len(t, a.Instances(), 2)
}

func TestOperations_UnissuedHandle_AreErrors(t *testing.T) {
	a := quietAdapter(t, fakeConfig(t, testutil.ModeEcho))
	other := quietAdapter(t, fakeConfig(t, testutil.ModeEcho))
	fmu := testutil.NewFMU(t, testutil.FMUOptions{Inputs: 1})
	foreign, st := other.Instantiate("office", fmu.GUID, fmu.Dir, "", 0, false, false, false)
	require.Equal(t, StatusOK, st)

	for _, h := range []Handle{0, 12345, foreign} {
		assert.Equal(t, StatusError, a.Initialize(h, 0, true, 1), "handle %s", h)
		assert.Equal(t, StatusError, a.DoStep(h, 0, 1, true), "handle %s", h)
		assert.Equal(t, StatusError, a.SetReal(h, nil, nil), "handle %s", h)
		assert.Equal(t, StatusError, a.GetReal(h, nil, nil), "handle %s", h)
		assert.Equal(t, StatusError, a.Terminate(h), "handle %s", h)
		assert.Equal(t, StatusError, a.SetDebugLogging(h, true), "handle %s", h)
		assert.Equal(t, StatusError, a.Reset(h), "handle %s", h)
		assert.NotPanics(t, func() { a.Free(h) })
	}
	_, err := a.Lookup(foreign)
	assert.ErrorIs(t, err, registry.ErrInvalidHandle)
}

func TestUnsupportedOperations_ReturnWarningOrDiscard(t *testing.T) {
	fmu := testutil.NewFMU(t, testutil.FMUOptions{Inputs: 1})
	a := quietAdapter(t, fakeConfig(t, testutil.ModeEcho))
	h, st := a.Instantiate("office", fmu.GUID, fmu.Dir, "", 0, false, false, false)
	require.Equal(t, StatusOK, st)

	assert.Equal(t, StatusWarning, a.CancelStep(h))
	assert.Equal(t, StatusWarning, a.Reset(h))
	assert.Equal(t, StatusWarning, a.SetRealInputDerivatives(h, []uint32{fmu.Inputs[0]}, []int32{1}, []float64{0}))
	assert.Equal(t, StatusWarning, a.GetRealOutputDerivatives(h, nil, nil, nil))
	assert.Equal(t, StatusWarning, a.GetStatus(h, DoStepStatus))
	_, st = a.GetRealStatus(h, LastSuccessfulTime)
	assert.Equal(t, StatusWarning, st)
	_, st = a.GetIntegerStatus(h, DoStepStatus)
	assert.Equal(t, StatusWarning, st)
	_, st = a.GetBooleanStatus(h, DoStepStatus)
	assert.Equal(t, StatusDiscard, st)
	_, st = a.GetStringStatus(h, PendingStatus)
	assert.Equal(t, StatusWarning, st)
	assert.Equal(t, StatusOK, a.SetDebugLogging(h, true))
}

func TestNonRealAccess_OnlyEmptyRequestsSucceed(t *testing.T) {
	fmu := testutil.NewFMU(t, testutil.FMUOptions{Inputs: 1})
	a := quietAdapter(t, fakeConfig(t, testutil.ModeEcho))
	h, st := a.Instantiate("office", fmu.GUID, fmu.Dir, "", 0, false, false, false)
	require.Equal(t, StatusOK, st)

	assert.Equal(t, StatusOK, a.SetInteger(h, nil, nil))
	assert.Equal(t, StatusOK, a.GetBoolean(h, nil, nil))
	assert.Equal(t, StatusOK, a.GetString(h, nil, nil))
	assert.Equal(t, StatusError, a.SetInteger(h, []uint32{1}, []int32{1}))
	assert.Equal(t, StatusError, a.SetBoolean(h, []uint32{1}, []bool{true}))
	assert.Equal(t, StatusError, a.SetString(h, []uint32{1}, []string{"x"}))
	assert.Equal(t, StatusError, a.GetInteger(h, []uint32{1}, make([]int32, 1)))
}

func TestInitialize_SpawnFailure_IsFatalAndReleasesListener(t *testing.T) {
	// GIVEN a launcher that cannot start the companion
	fmu := testutil.NewFMU(t, testutil.FMUOptions{Inputs: 1, Outputs: 1})
	ml := new(mockLauncher)
	ml.On("Spawn", fmu.Dir, mock.Anything).Return(nil, errors.New("exec format error"))
	a := quietAdapter(t, fakeConfig(t, testutil.ModeEcho), WithLauncher(ml))
	h, st := a.Instantiate("office", fmu.GUID, fmu.Dir, "", 0, false, false, false)
	require.Equal(t, StatusOK, st)

	// WHEN the instance is initialized
	st = a.Initialize(h, 0, true, 3600)

	// THEN it fails fatally, nothing is left to terminate
	assert.Equal(t, StatusFatal, st)
	in, err := a.Lookup(h)
	require.NoError(t, err)
	assert.Equal(t, PhaseFailed, in.Phase())
	assert.Nil(t, in.server)
	ml.AssertExpectations(t)
	ml.AssertNotCalled(t, "Terminate", mock.Anything)
}

func TestInitialize_CompanionAlreadyExited_ReapsAndFails(t *testing.T) {
	fmu := testutil.NewFMU(t, testutil.FMUOptions{Inputs: 1, Outputs: 1, Weather: true})
	proc := newExitedProcess(errors.New("exit status 1"))
	ml := new(mockLauncher)
	ml.On("Spawn", fmu.Dir, mock.MatchedBy(func(c launcher.Command) bool {
		return len(c.Env) == 2 && c.Env[1] == "ENERGYPLUS_WEATHER=WeatherData"
	})).Return(proc, nil)
	ml.On("Terminate", proc).Return(nil).Once()
	a := quietAdapter(t, fakeConfig(t, testutil.ModeEcho), WithLauncher(ml))
	h, st := a.Instantiate("office", fmu.GUID, fmu.Dir, "", 60000, false, false, false)
	require.Equal(t, StatusOK, st)

	assert.Equal(t, StatusFatal, a.Initialize(h, 0, true, 3600))
	ml.AssertExpectations(t)

	// a later free does not tear down a second time
	a.Free(h)
	ml.AssertNumberOfCalls(t, "Terminate", 1)
}

func TestInitialize_NegativeStart_IsFatal(t *testing.T) {
	fmu := testutil.NewFMU(t, testutil.FMUOptions{Inputs: 1})
	ml := new(mockLauncher)
	a := quietAdapter(t, fakeConfig(t, testutil.ModeEcho), WithLauncher(ml))
	h, st := a.Instantiate("office", fmu.GUID, fmu.Dir, "", 0, false, false, false)
	require.Equal(t, StatusOK, st)

	assert.Equal(t, StatusFatal, a.Initialize(h, -1, true, 3600))
	ml.AssertNotCalled(t, "Spawn", mock.Anything, mock.Anything)
}

func TestAdapter_PlatformAndVersion(t *testing.T) {
	a := quietAdapter(t, DefaultConfig())
	assert.Equal(t, "standard32", a.PlatformName())
	assert.Equal(t, "1.0", a.Version())
}

func TestNew_InvalidConfig_Errors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Companion.Command = ""
	_, err := New(cfg)
	assert.Error(t, err)
}
