package goroutine

import (
	"fmt"
	"os"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"petshop/metrics"
)

// StackTraceBufferSize bounds the stack captured for a recovered panic.
const StackTraceBufferSize = 4096

// Recover stops a panic from taking the process down. It must be deferred directly
// in the goroutine being protected.
func Recover(name string, logger *zap.SugaredLogger) {
	r := recover()
	if r == nil {
		return
	}
	metrics.GoroutinePanics.WithLabelValues(name).Inc()

	buf := make([]byte, StackTraceBufferSize)
	stack := string(buf[:runtime.Stack(buf, false)])
	if logger == nil {
		fmt.Fprintf(os.Stderr, "panic in background task %s: %v\n%s\n", name, r, stack)
		return
	}
	logger.Errorw("Background task panicked", "task", name, "panic", r, "stack", stack)
}

// Go runs fn in a goroutine tracked by wg, recovering any panic.
func Go(name string, wg *sync.WaitGroup, logger *zap.SugaredLogger, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer Recover(name, logger)
		fn()
	}()
}
