package signalhandler

import (
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
)

var (
	cleanupMu sync.Mutex
	cleanups  []func()
)

// OnShutdown registers fn to run when SIGINT or SIGTERM arrives. Hooks run
// in reverse registration order on the signal goroutine while workers may
// still be inside OpenCV calls, so they must not release gocv memory.
func OnShutdown(fn func()) {
	cleanupMu.Lock()
	defer cleanupMu.Unlock()
	cleanups = append(cleanups, fn)
}

// SetupHandler configures signal handling for safer interaction with C libraries
func SetupHandler() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		runCleanups()
		os.Exit(1)
	}()
}

func runCleanups() {
	cleanupMu.Lock()
	hooks := cleanups
	cleanups = nil
	cleanupMu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}

// GetOptimalProcs returns the optimal number of worker goroutines for the system
func GetOptimalProcs() int {
	numCPU := runtime.NumCPU()

	// For image processing with CGo, using too many goroutines can cause issues
	maxProcs := (numCPU * 3) / 4
	if maxProcs < 1 {
		maxProcs = 1
	}

	return maxProcs
}
