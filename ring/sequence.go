package ring

import "sync/atomic"

// CacheLine selects the padding granularity recorded for a ring, and, for
// a SharedRing, the value that must agree between the creating and the
// opening process.
type CacheLine uint32

const (
	CacheLine64  CacheLine = 64
	CacheLine128 CacheLine = 128
)

// uninitialized is the sentinel meaning "no sequence published/claimed/
// consumed yet": the all-ones bit pattern. Because it is all-ones, the
// first claim/publish after construction computes sentinel+1 == 0 by
// ordinary unsigned wraparound, so callers never need a first-time
// special case.
const uninitialized uint64 = ^uint64(0)

// PaddedSequence is a 64-bit atomic cursor padded to its own cache line so
// that independent cursors (producer cursor, producer claim, each consumer
// cursor) never false-share.
//
// Go's sync/atomic load/store/CAS operations are sequentially consistent,
// a strictly stronger guarantee than the Acquire/Release/Relaxed orderings
// this cursor logically needs; there is no portable weaker-ordering API in
// the standard library, so every call site below is annotated with the
// ordering it *logically* requires even though the underlying instruction
// is always seq-cst.
//
// The struct is always padded to 128 bytes: Go has no way to size a struct
// field at runtime, and 128 bytes safely isolates a cursor on every
// mainstream architecture regardless of whether the configured CacheLine
// is 64 or 128. The CacheLine value itself is still recorded and validated
// by SharedRing, since two processes mapping the same file must agree on
// the byte offsets even though the Go struct padding doesn't vary.
type PaddedSequence struct {
	v atomic.Uint64
	_ [120]byte
}

// newPaddedSequence returns a cursor initialized to the "uninitialized"
// sentinel.
func newPaddedSequence() *PaddedSequence {
	s := &PaddedSequence{}
	s.v.Store(uninitialized)
	return s
}

// Load reads the cursor with Relaxed semantics: used by the single
// producer reading its own cursor, or by introspection callers.
func (s *PaddedSequence) Load() uint64 { return s.v.Load() }

// LoadAcquire reads the cursor with Acquire semantics: a consumer reading
// producer_cursor, or a producer reading the gating cursor.
func (s *PaddedSequence) LoadAcquire() uint64 { return s.v.Load() }

// StoreRelease publishes a new cursor value with Release semantics: the
// producer advancing producer_cursor, or a consumer advancing its own
// cursor.
func (s *PaddedSequence) StoreRelease(val uint64) { s.v.Store(val) }

// CompareAndSwap attempts to move the cursor from old to new, used by the
// multi-producer claim loop (Acquire on success, Relaxed on failure —
// both collapse to the same seq-cst CAS here).
func (s *PaddedSequence) CompareAndSwap(old, new uint64) bool {
	return s.v.CompareAndSwap(old, new)
}
