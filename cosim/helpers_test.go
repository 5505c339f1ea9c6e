package cosim

import (
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/cosim-bridge/eplusfmu/cosim/bcvtb"
)

func readSocketConfig(t *testing.T, dir string) (string, int) {
	t.Helper()
	host, port, err := bcvtb.ReadDescriptor(filepath.Join(dir, "socket.cfg"))
	require.NoError(t, err)
	return host, port
}

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	return promtestutil.ToFloat64(c)
}
