package testing

import (
	"runtime"
	"testing"
	"time"
)

// AssertNoLeaks fails the test at cleanup when more goroutines are running than when it
// was called. Background goroutines get up to timeout to exit.
//
// Usage:
//
//	func TestServer(t *testing.T) {
//	    utiltest.AssertNoLeaks(t, 2*time.Second)
//	    ...
//	}
func AssertNoLeaks(t testing.TB, timeout time.Duration) {
	t.Helper()
	before := runtime.NumGoroutine()

	t.Cleanup(func() {
		if WaitForGoroutineCount(before, timeout, 20*time.Millisecond) {
			return
		}
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		t.Errorf("goroutine leak detected: started with %d goroutines, ended with %d\n%s",
			before, runtime.NumGoroutine(), string(buf[:n]))
	})
}

// WaitForGoroutineCount polls until at most target goroutines run or timeout expires.
func WaitForGoroutineCount(target int, timeout, pollInterval time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if runtime.NumGoroutine() <= target {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(pollInterval)
	}
}
