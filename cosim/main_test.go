package cosim

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/cosim-bridge/eplusfmu/internal/testutil"
)

func TestMain(m *testing.M) {
	// The adapter tests launch this binary as their companion.
	if testutil.IsFakeCompanion() {
		os.Exit(testutil.RunFakeCompanion())
	}
	// Set DEBUG_TESTS=1 to see full logs: DEBUG_TESTS=1 go test ./cosim/... -v
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}
