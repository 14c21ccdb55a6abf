package indexer

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain guards Phase 1's errgroup fan-out (readAndHash) against
// goroutine leaks across every test in this package.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("sync.runtime_Semacquire"),
	)
}
