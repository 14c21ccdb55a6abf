package dispatcher

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain guards the dispatcher's blocking-work pool (submit) against
// goroutine leaks across every test in this package.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("sync.runtime_Semacquire"),
	)
}
