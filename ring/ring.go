// Package ring implements a lock-free ring buffer in the LMAX Disruptor
// tradition: a fixed-capacity, power-of-two-sized slot array coordinated
// entirely through sequence cursors, supporting all four producer/consumer
// cardinalities (SPSC, MPSC, SPMC, MPMC).
//
// The protocol has three operations — try_claim_slots, publish, and
// try_consume_batch/advance_consumer — whose contract is documented on
// each method. None of them block; a caller that finds the ring full or
// empty applies a WaitPolicy between retries.
package ring

import (
	"fmt"
	"sync/atomic"
)

// Config configures a new Ring.
type Config struct {
	// Capacity is the number of slots; must be a power of two >= 2.
	Capacity uint64
	// ConsumerCount is the number of independently-gated consumers.
	// Must be 1 for SPSC/MPSC.
	ConsumerCount int
	// Mode selects the producer/consumer cardinality.
	Mode Mode
	// WaitPolicy is the default strategy handed to callers that don't
	// supply their own; it is never invoked by the Ring itself.
	WaitPolicy WaitPolicy
	// CacheLine records the padding granularity this ring was built
	// with. It does not change Go struct layout (see PaddedSequence);
	// it exists so SharedRing can validate cross-process agreement.
	CacheLine CacheLine
}

// DefaultConfig returns an SPSC ring of modest size with a yielding wait
// policy, mirroring disruptor.DefaultConfig()'s role as a sane starting
// point rather than a universally correct one.
func DefaultConfig() Config {
	return Config{
		Capacity:      8192,
		ConsumerCount: 1,
		Mode:          SPSC,
		WaitPolicy:    YieldWait{},
		CacheLine:     CacheLine64,
	}
}

// Ring is a fixed-capacity, power-of-two ring buffer generic over its slot
// type T. See the package doc for the coordination protocol.
type Ring[T any] struct {
	capacity uint64
	mask     uint64
	mode     Mode
	cacheLine CacheLine

	buffer []T

	// pubSeq is the per-slot "has this logical sequence been published"
	// marker used only in multi-producer modes: one published sequence
	// per slot index, kept in this array beside the buffer rather than
	// inside T (and not a bitmap). nil for single-producer modes.
	pubSeq []atomic.Uint64

	producerCursor *PaddedSequence
	producerClaim  *PaddedSequence // only meaningful for multi-producer modes

	consumerCursors []*PaddedSequence

	waitPolicy WaitPolicy

	producerTaken atomic.Bool // guards single-producer registration
	consumerTaken []atomic.Bool
}

// New validates cfg and constructs a Ring[T].
func New[T any](cfg Config) (*Ring[T], error) {
	if cfg.Capacity < 2 || cfg.Capacity&(cfg.Capacity-1) != 0 {
		return nil, ErrInvalidCapacity
	}
	if cfg.ConsumerCount < 1 {
		return nil, ErrInvalidConsumerCount
	}
	if cfg.Mode == SPSC || cfg.Mode == MPSC {
		if cfg.ConsumerCount != 1 {
			return nil, fmt.Errorf("ring: %s requires exactly one consumer, got %d", cfg.Mode, cfg.ConsumerCount)
		}
	}
	if cfg.WaitPolicy == nil {
		cfg.WaitPolicy = YieldWait{}
	}
	if cfg.CacheLine == 0 {
		cfg.CacheLine = CacheLine64
	}

	r := &Ring[T]{
		capacity:      cfg.Capacity,
		mask:          cfg.Capacity - 1,
		mode:          cfg.Mode,
		cacheLine:     cfg.CacheLine,
		buffer:        make([]T, cfg.Capacity),
		waitPolicy:    cfg.WaitPolicy,
		consumerTaken: make([]atomic.Bool, cfg.ConsumerCount),
	}

	r.producerCursor = newPaddedSequence()
	r.consumerCursors = make([]*PaddedSequence, cfg.ConsumerCount)
	for i := range r.consumerCursors {
		r.consumerCursors[i] = newPaddedSequence()
	}

	if cfg.Mode.multiProducer() {
		r.producerClaim = newPaddedSequence()
		r.pubSeq = make([]atomic.Uint64, cfg.Capacity)
		for i := range r.pubSeq {
			r.pubSeq[i].Store(uninitialized)
		}
	}

	return r, nil
}

// Capacity returns the ring's fixed capacity.
func (r *Ring[T]) Capacity() uint64 { return r.capacity }

// Mode returns the ring's producer/consumer cardinality.
func (r *Ring[T]) Mode() Mode { return r.mode }

// ConsumerCount returns the number of independently-gated consumers.
func (r *Ring[T]) ConsumerCount() int { return len(r.consumerCursors) }

// ProducerCursor returns the highest published sequence, or the
// uninitialized sentinel if nothing has been published yet. Intended for
// tests and metrics.
func (r *Ring[T]) ProducerCursor() uint64 { return r.producerCursor.Load() }

// ConsumerCursor returns consumer id's highest consumed sequence.
func (r *Ring[T]) ConsumerCursor(id int) (uint64, error) {
	if id < 0 || id >= len(r.consumerCursors) {
		return 0, ErrConsumerIDOutOfRange
	}
	return r.consumerCursors[id].Load(), nil
}

// gatingCursor is the minimum of all consumer cursors: the sequence a
// producer must not advance more than capacity past.
func (r *Ring[T]) gatingCursor() uint64 {
	// Cursors are compared as v+1 so that the uninitialized sentinel
	// (all-ones) wraps to 0 and sorts as the *smallest* value: a consumer
	// that hasn't consumed anything yet gates the producer at "nothing
	// consumed", exactly like a consumer stuck at any other position.
	min := r.consumerCursors[0].LoadAcquire() + 1
	for _, c := range r.consumerCursors[1:] {
		v := c.LoadAcquire() + 1
		if v < min {
			min = v
		}
	}
	return min - 1
}

// Producer is a registered producer handle.
type Producer[T any] struct {
	ring *Ring[T]
}

// Consumer is a registered consumer handle bound to one consumer id.
type Consumer[T any] struct {
	ring *Ring[T]
	id   int
}

// RegisterProducer returns a producer handle. Single-producer modes (SPSC,
// SPMC) allow exactly one outstanding handle at a time.
func (r *Ring[T]) RegisterProducer() (*Producer[T], error) {
	if r.mode == SPSC || r.mode == SPMC {
		if !r.producerTaken.CompareAndSwap(false, true) {
			return nil, ErrProducerAlreadyRegistered
		}
	}
	return &Producer[T]{ring: r}, nil
}

// ReleaseProducer relinquishes a single-producer handle so a new one may
// be registered. A no-op for multi-producer modes.
func (r *Ring[T]) ReleaseProducer(*Producer[T]) {
	if r.mode == SPSC || r.mode == SPMC {
		r.producerTaken.Store(false)
	}
}

// RegisterConsumer returns a handle bound to consumer id.
func (r *Ring[T]) RegisterConsumer(id int) (*Consumer[T], error) {
	if id < 0 || id >= len(r.consumerTaken) {
		return nil, ErrConsumerIDOutOfRange
	}
	if !r.consumerTaken[id].CompareAndSwap(false, true) {
		return nil, ErrConsumerAlreadyRegistered
	}
	return &Consumer[T]{ring: r, id: id}, nil
}

// ReleaseConsumer relinquishes a consumer handle so it may be
// re-registered (for example after a crashed consumer is replaced).
func (r *Ring[T]) ReleaseConsumer(c *Consumer[T]) {
	r.consumerTaken[c.id].Store(false)
}

// ID returns the consumer id this handle is bound to.
func (c *Consumer[T]) ID() int { return c.id }
