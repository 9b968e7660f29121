// api_goroutine_test.go: Tests for verifying goroutine cleanup in API v2

package api

import (
	"testing"

	"go.uber.org/goleak"
)

// TestControllerShutdownCleansUpGoroutines verifies that background
// goroutines are properly cleaned up when the controller is shut down
func TestControllerShutdownCleansUpGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t,
		// Ignore goroutines from testing framework and other standard libraries
		goleak.IgnoreTopFunction("testing.(*T).Run"),
		goleak.IgnoreTopFunction("runtime.gopark"),
		goleak.IgnoreTopFunction("sync.runtime_notifyListWait"),
		// Ignore the go-cache janitor which we can't control
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
		// Ignore lumberjack logger goroutines
		goleak.IgnoreTopFunction("gopkg.in/natefinch/lumberjack%2ev2.(*Logger).millRun"),
		// SQLite driver keeps a connection pool goroutine until GC
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)

	_, _, controller := setupTestEnvironment(t)
	controller.Shutdown()
}
