// Package testutil builds unpacked model directories and a fake companion
// process for the adapter tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

// Value references used by fixtures. Input i has InputRef0+i and output j
// has OutputRef0+j; both are declared in reverse order in the model
// description so that vector positions only come out right when sorted.
const (
	InputRef0  = 100
	OutputRef0 = 200
)

// FMUOptions shapes a fixture model.
type FMUOptions struct {
	ModelID          string // default "Office"
	FMIVersion       string // default "1.0"
	GUID             string // default a fresh UUID
	Inputs           int
	Outputs          int
	TimestepsPerHour int // default 4
	Weather          bool
	// OmitVariablesConfig leaves variables.cfg out of the resources.
	OmitVariablesConfig bool
}

// FMU is an unpacked model directory.
type FMU struct {
	Dir     string
	GUID    string
	ModelID string
	Inputs  []uint32 // in vector order
	Outputs []uint32 // in vector order
}

// NewFMU writes a model directory under t.TempDir().
func NewFMU(t testing.TB, opts FMUOptions) *FMU {
	t.Helper()
	if opts.ModelID == "" {
		opts.ModelID = "Office"
	}
	if opts.FMIVersion == "" {
		opts.FMIVersion = "1.0"
	}
	if opts.GUID == "" {
		opts.GUID = "{" + uuid.NewString() + "}"
	}
	if opts.TimestepsPerHour == 0 {
		opts.TimestepsPerHour = 4
	}

	f := &FMU{Dir: t.TempDir(), GUID: opts.GUID, ModelID: opts.ModelID}
	res := filepath.Join(f.Dir, "resources")
	mustMkdir(t, res)

	var vars, cfg strings.Builder
	for i := opts.Outputs - 1; i >= 0; i-- {
		vr := uint32(OutputRef0 + i)
		fmt.Fprintf(&vars, "    <ScalarVariable name=\"y%d\" valueReference=\"%d\" causality=\"output\"><Real/></ScalarVariable>\n", i, vr)
	}
	for i := opts.Inputs - 1; i >= 0; i-- {
		vr := uint32(InputRef0 + i)
		fmt.Fprintf(&vars, "    <ScalarVariable name=\"u%d\" valueReference=\"%d\" causality=\"input\"><Real/></ScalarVariable>\n", i, vr)
		fmt.Fprintf(&vars, "    <ScalarVariable name=\"u%dAlias\" valueReference=\"%d\" causality=\"input\" alias=\"alias\"><Real/></ScalarVariable>\n", i, vr)
	}
	for i := 0; i < opts.Inputs; i++ {
		f.Inputs = append(f.Inputs, uint32(InputRef0+i))
		fmt.Fprintf(&cfg, "  <variable source=\"Ptolemy\"><EnergyPlus schedule=\"u%d\"/></variable>\n", i)
	}
	for j := 0; j < opts.Outputs; j++ {
		f.Outputs = append(f.Outputs, uint32(OutputRef0+j))
		fmt.Fprintf(&cfg, "  <variable source=\"EnergyPlus\"><EnergyPlus name=\"ZONE\" type=\"y%d\"/></variable>\n", j)
	}

	mustWrite(t, filepath.Join(f.Dir, "modelDescription.xml"), fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<fmiModelDescription fmiVersion=%q modelName=%q modelIdentifier=%q guid=%q numberOfContinuousStates="0" numberOfEventIndicators="0">
  <ModelVariables>
%s  </ModelVariables>
</fmiModelDescription>
`, opts.FMIVersion, opts.ModelID, opts.ModelID, opts.GUID, vars.String()))

	mustWrite(t, filepath.Join(res, opts.ModelID+".idf"), fmt.Sprintf(`Version,8.0;
Timestep,%d;
RunPeriod,
    ,        !- Name
    1,       !- Begin Month
    1,       !- Begin Day of Month
    12,      !- End Month
    31,      !- End Day of Month
    Tuesday; !- Day of Week for Start Day
`, opts.TimestepsPerHour))

	if !opts.OmitVariablesConfig {
		mustWrite(t, filepath.Join(res, "variables.cfg"), `<?xml version="1.0" encoding="ISO-8859-1"?>
<!DOCTYPE BCVTB-variables SYSTEM "variables.dtd">
<BCVTB-variables>
`+cfg.String()+"</BCVTB-variables>\n")
	}
	if opts.Weather {
		mustWrite(t, filepath.Join(res, "USA_IL_Chicago.epw"), "LOCATION,Chicago Ohare Intl Ap,IL,USA\n")
	}
	return f
}

// StepSize is the fixed step in seconds for n timesteps per hour.
func StepSize(n int) float64 { return 3600 / float64(n) }

func mustMkdir(t testing.TB, dir string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating %s: %v", dir, err)
	}
}

func mustWrite(t testing.TB, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}
