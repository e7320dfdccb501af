package engine

import (
	"runtime"
	"time"
)

// Limit identifiers reported when an execution is terminated.
const (
	limitTime = "time"
	limitHeap = "heap"
)

// heapSampleInterval is how often the heap watchdog samples allocator
// statistics while a script runs.
const heapSampleInterval = 100 * time.Millisecond

// Limits are the resource bounds applied to a single execution. Immutable
// once an engine has been constructed with them.
//
// Wall-clock limits are exact: an external timer interrupts the engine at
// its next safepoint. Heap limits are approximate: goja does not account
// per-runtime allocations, so enforcement samples process-wide heap growth
// instead. Containing a hostile allocator for real requires running the
// engine in a child process, which this service does not do.
type Limits struct {
	// HeapBytes bounds heap growth during the execution. Zero disables it.
	HeapBytes int64

	// Time bounds wall-clock execution. Zero disables it.
	Time time.Duration
}

// arm starts the limit enforcers for one execution and returns a stop
// function. Both enforcers record which limit fired on the session before
// interrupting the engine and cancelling the execution context, so ops
// blocked in Go unwind too.
func (s *session) arm(limits Limits) (stop func()) {
	var timer *time.Timer
	if limits.Time > 0 {
		timer = time.AfterFunc(limits.Time, func() {
			s.terminate(limitTime)
		})
	}

	done := make(chan struct{})
	if limits.HeapBytes > 0 {
		var base runtime.MemStats
		runtime.ReadMemStats(&base)

		go func() {
			ticker := time.NewTicker(heapSampleInterval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					var now runtime.MemStats
					runtime.ReadMemStats(&now)
					if now.HeapAlloc > base.HeapAlloc &&
						int64(now.HeapAlloc-base.HeapAlloc) > limits.HeapBytes {
						s.terminate(limitHeap)
						return
					}
				}
			}
		}()
	}

	return func() {
		if timer != nil {
			timer.Stop()
		}
		close(done)
	}
}
