package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cosim-bridge/eplusfmu/cosim"
	"github.com/cosim-bridge/eplusfmu/cosim/trace"
)

func TestWriteResults_OneRowPerPoint(t *testing.T) {
	results := []*InstanceResult{
		{Name: "a", Outputs: []string{"y0", "y1"}, Rows: []Row{{Time: 0, Values: []float64{0, 1}}, {Time: 900, Values: []float64{1.5, 2.5}}}},
		{Name: "b", Outputs: []string{"y0", "y1"}, Rows: []Row{{Time: 0, Values: []float64{0, 1}}}},
	}
	var buf bytes.Buffer
	require.NoError(t, writeResults(&buf, results))
	assert.Equal(t, "instance,time,y0,y1\na,0,0,1\na,900,1.5,2.5\nb,0,0,1\n", buf.String())
}

func TestWriteResultsFile_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, writeResultsFile(path, []*InstanceResult{{Name: "a"}}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "instance,time\n", string(data))
}

func TestPrintTraceSummaries_SkipsUntraced(t *testing.T) {
	results := []*InstanceResult{
		{Name: "traced", Final: cosim.StatusWarning, Trace: &trace.TraceSummary{TotalSteps: 4, AcceptedSteps: 3, RefusedSteps: 1, Sent: 3, Received: 4, LastAcceptedTime: 2700}},
		{Name: "untraced"},
	}
	var buf bytes.Buffer
	printTraceSummaries(&buf, results)
	out := buf.String()
	assert.Contains(t, out, "=== Trace Summary ===")
	assert.Contains(t, out, "traced")
	assert.Contains(t, out, "2700")
	assert.Contains(t, out, "warning")
	assert.NotContains(t, out, "untraced")
}
