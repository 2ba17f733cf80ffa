package testutil

import (
	"runtime"
	"testing"
	"time"
)

const leakCheckDeadline = 5 * time.Second

// AssertNoGoroutineLeaks fails the test if the goroutine count does not
// return to within margin of baseline before the deadline. Used by the
// stream and session tests to prove stop/switch cycles release every
// render and encode goroutine.
func AssertNoGoroutineLeaks(t *testing.T, baseline, margin int) {
	t.Helper()
	deadline := time.Now().Add(leakCheckDeadline)
	for time.Now().Before(deadline) {
		if current := runtime.NumGoroutine(); current <= baseline+margin {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Errorf("goroutine leak: baseline=%d current=%d margin=%d",
		baseline, runtime.NumGoroutine(), margin)
}
