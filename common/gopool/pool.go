// Package gopool shares one bounded goroutine pool across the analysis
// workers instead of spawning a goroutine per method.
package gopool

import (
	"runtime"
	"time"

	"github.com/panjf2000/ants/v2"
)

const (
	// Idle workers are reclaimed after this long.
	workerExpiry = 10 * time.Second
	// Below this many tasks per worker, fewer workers are used.
	minTasksPerWorker = 5
)

var defaultPool, _ = ants.NewPool(ants.DefaultAntsPoolSize, ants.WithExpiryDuration(workerExpiry))

// Submit schedules task on the shared pool.
func Submit(task func()) error {
	return defaultPool.Submit(task)
}

// Threads sizes a worker count for the given number of independent tasks:
// one worker per few tasks, capped at the CPU count, at least one.
func Threads(tasks int) int {
	threads := tasks / minTasksPerWorker
	if threads > runtime.NumCPU() {
		threads = runtime.NumCPU()
	} else if threads == 0 {
		threads = 1
	}
	return threads
}
