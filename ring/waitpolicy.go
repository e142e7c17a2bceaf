package ring

import (
	"runtime"
	"sync"
	"time"
)

// WaitPolicy is the strategy a caller applies between retries of a try_*
// operation that found the ring full or empty. The ring itself never
// blocks internally; Wait is invoked by the caller, not by the ring.
//
// Cancellation is cooperative: nothing prevents a caller from abandoning a
// wait loop at any point, since no ring state is touched until a
// subsequent claim/publish/consume call succeeds.
type WaitPolicy interface {
	// Wait is called once per failed retry, with the number of
	// consecutive failures observed so far (starting at 1). Implementers
	// use this to decide how aggressively to back off.
	Wait(iteration int)
}

// BusySpinWait never yields; the caller retries as fast as possible. Lowest
// latency, highest CPU cost — appropriate when a dedicated core is
// available for the waiting goroutine.
type BusySpinWait struct{}

func (BusySpinWait) Wait(int) {}

// YieldWait calls runtime.Gosched() between retries, yielding the processor
// while spin-waiting for a slot's sequence to become ready.
type YieldWait struct{}

func (YieldWait) Wait(int) { runtime.Gosched() }

// SleepWait sleeps a fixed duration between retries.
type SleepWait struct {
	Duration time.Duration
}

func (w SleepWait) Wait(int) { time.Sleep(w.Duration) }

// BlockWait parks the caller on a condition variable until Signal is
// called, typically from a publish/advance path elsewhere in the same
// process. It is the only WaitPolicy that can put the calling goroutine to
// sleep indefinitely rather than on a timer.
type BlockWait struct {
	mu   sync.Mutex
	cond *sync.Cond
}

// NewBlockWait returns a ready-to-use BlockWait.
func NewBlockWait() *BlockWait {
	b := &BlockWait{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *BlockWait) Wait(int) {
	b.mu.Lock()
	b.cond.Wait()
	b.mu.Unlock()
}

// Signal wakes every goroutine currently parked in Wait. Callers invoke
// this after a publish or an advance_consumer that might unblock a waiter.
func (b *BlockWait) Signal() {
	b.mu.Lock()
	b.cond.Broadcast()
	b.mu.Unlock()
}
