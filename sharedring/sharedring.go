package sharedring

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/edsrzf/mmap-go"
	"go.uber.org/zap"

	"github.com/bugthesystem/Flux/ring"
)

// Config configures Create/Open, mirroring ring.Config's
// struct-plus-DefaultConfig style rather than functional options.
type Config struct {
	// CacheLine selects the padding between the producer and consumer
	// cursor cells; must agree between the creating and opening process.
	CacheLine ring.CacheLine
	// LockPages requests the mapped region be locked into physical
	// memory (mlock) to prevent it from being swapped out. Best-effort:
	// failures are logged, not returned, since the ring is fully
	// functional without it.
	LockPages bool
	// Logger receives operational events (mapping failures, lock
	// failures, layout mismatches). A nil Logger falls back to a no-op.
	Logger *zap.Logger
}

// DefaultConfig returns a Config with 64-byte cursor padding, no page
// locking, and a no-op logger.
func DefaultConfig() Config {
	return Config{CacheLine: ring.CacheLine64, LockPages: false}
}

func (c Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// mappedCursor is a 64-bit atomic cell living at a fixed offset inside a
// memory-mapped file, standing in for ring.PaddedSequence (which cannot be
// aliased directly: ring.PaddedSequence is always padded to 128 bytes in
// Go's in-process layout, but the on-disk cursor stride is the configured
// 64 or 128 bytes, set independently per file).
type mappedCursor struct {
	ptr *uint64
}

func newMappedCursor(data mmap.MMap, offset int64) mappedCursor {
	return mappedCursor{ptr: (*uint64)(unsafe.Pointer(&data[offset]))}
}

func (c mappedCursor) Load() uint64         { return atomic.LoadUint64(c.ptr) }
func (c mappedCursor) LoadAcquire() uint64  { return atomic.LoadUint64(c.ptr) }
func (c mappedCursor) StoreRelease(v uint64) { atomic.StoreUint64(c.ptr, v) }
func (c mappedCursor) CompareAndSwap(old, newVal uint64) bool {
	return atomic.CompareAndSwapUint64(c.ptr, old, newVal)
}

// uninitialized mirrors ring.uninitialized: the sentinel meaning "nothing
// published/consumed yet".
const uninitialized uint64 = ^uint64(0)

// Ring is the shared state backing both the producer and the consumer
// handle of one mapped file. It is never used directly; obtain a
// *Producer[T] via Create or a *Consumer[T] via Open.
type Ring[T any] struct {
	file *os.File
	data mmap.MMap

	capacity uint64
	mask     uint64

	producerCursor mappedCursor
	consumerCursor mappedCursor

	slots []T

	logger *zap.Logger

	closed atomic.Bool
}

// Producer is the handle returned by Create.
type Producer[T any] struct {
	ring *Ring[T]
}

// Consumer is the handle returned by Open.
type Consumer[T any] struct {
	ring *Ring[T]
}

func slotSizeOf[T any]() uint32 {
	var zero T
	return uint32(unsafe.Sizeof(zero))
}

// Create creates (or truncates) the backing file at path, maps it, writes
// the header, and returns a producer-side handle: grow the file, map it
// shared read-write, zero the region, write the header, and initialize
// both cursors to the uninitialized sentinel.
func Create[T any](path string, capacity uint32, cfg Config) (*Producer[T], error) {
	log := cfg.logger()
	if capacity < 2 || capacity&(capacity-1) != 0 {
		return nil, ErrInvalidCapacity
	}
	if cfg.CacheLine == 0 {
		cfg.CacheLine = ring.CacheLine64
	}
	slotSize := slotSizeOf[T]()
	pad := uint32(cfg.CacheLine)
	size := fileSize(capacity, slotSize, pad)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sharedring: create %s: %w", path, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, fmt.Errorf("sharedring: truncate %s to %d: %w", path, size, err)
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sharedring: map %s: %w", path, err)
	}

	encodeHeader(data, header{
		version:      layoutVersion,
		slotSize:     slotSize,
		capacity:     capacity,
		padCacheLine: pad,
	})

	r := &Ring[T]{
		file:     f,
		data:     data,
		capacity: uint64(capacity),
		mask:     uint64(capacity) - 1,
		logger:   log,
	}
	r.producerCursor = newMappedCursor(data, cursorOffset(pad, 0))
	r.consumerCursor = newMappedCursor(data, cursorOffset(pad, 1))
	r.producerCursor.StoreRelease(uninitialized)
	r.consumerCursor.StoreRelease(uninitialized)

	slotsOff := slotArrayOffset(pad)
	r.slots = unsafe.Slice((*T)(unsafe.Pointer(&data[slotsOff])), capacity)

	if cfg.LockPages {
		if err := lockPages(data); err != nil {
			log.Warn("sharedring: mlock failed, continuing without page locking",
				zap.String("path", path), zap.Error(err))
		}
	}

	log.Info("sharedring: created", zap.String("path", path), zap.Uint32("capacity", capacity), zap.Uint32("slot_size", slotSize))
	return &Producer[T]{ring: r}, nil
}

// Open maps an existing file created by Create and returns a consumer-side
// handle, validating magic, version, slot size, capacity and padding
// against the caller's expectations. On mismatch the mapping is torn down
// and a descriptive error returned.
func Open[T any](path string, capacity uint32, cfg Config) (*Consumer[T], error) {
	log := cfg.logger()
	if cfg.CacheLine == 0 {
		cfg.CacheLine = ring.CacheLine64
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sharedring: open %s: %w", path, err)
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sharedring: map %s: %w", path, err)
	}

	h, err := decodeHeader(data)
	if err != nil {
		data.Unmap()
		f.Close()
		return nil, err
	}
	if h.version != layoutVersion {
		data.Unmap()
		f.Close()
		return nil, ErrVersionMismatch
	}
	wantSlotSize := slotSizeOf[T]()
	if h.slotSize != wantSlotSize {
		data.Unmap()
		f.Close()
		return nil, fmt.Errorf("%w: file has %d, want %d", ErrSlotSizeMismatch, h.slotSize, wantSlotSize)
	}
	if h.capacity != capacity {
		data.Unmap()
		f.Close()
		return nil, fmt.Errorf("%w: file has %d, want %d", ErrCapacityMismatch, h.capacity, capacity)
	}
	if h.padCacheLine != uint32(cfg.CacheLine) {
		data.Unmap()
		f.Close()
		return nil, fmt.Errorf("%w: file has %d, want %d", ErrPaddingMismatch, h.padCacheLine, uint32(cfg.CacheLine))
	}

	r := &Ring[T]{
		file:     f,
		data:     data,
		capacity: uint64(capacity),
		mask:     uint64(capacity) - 1,
		logger:   log,
	}
	pad := h.padCacheLine
	r.producerCursor = newMappedCursor(data, cursorOffset(pad, 0))
	r.consumerCursor = newMappedCursor(data, cursorOffset(pad, 1))

	slotsOff := slotArrayOffset(pad)
	r.slots = unsafe.Slice((*T)(unsafe.Pointer(&data[slotsOff])), capacity)

	if cfg.LockPages {
		if err := lockPages(data); err != nil {
			log.Warn("sharedring: mlock failed, continuing without page locking",
				zap.String("path", path), zap.Error(err))
		}
	}

	log.Info("sharedring: opened", zap.String("path", path), zap.Uint32("capacity", capacity))
	return &Consumer[T]{ring: r}, nil
}

// Unlink removes the backing file. It does not unmap any open handle.
func Unlink(path string) error {
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("sharedring: unlink %s: %w", path, err)
	}
	return nil
}

// Close unmaps the producer's view and closes the file descriptor. The
// file itself is left on disk.
func (p *Producer[T]) Close() error { return p.ring.close() }

// Close unmaps the consumer's view and closes the file descriptor.
func (c *Consumer[T]) Close() error { return c.ring.close() }

func (r *Ring[T]) close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := r.data.Unmap(); err != nil {
		return fmt.Errorf("sharedring: unmap: %w", err)
	}
	return r.file.Close()
}

func (r *Ring[T]) slice(seq, n uint64) (first, second []T) {
	idx := seq & r.mask
	avail := r.capacity - idx
	if n <= avail {
		return r.slots[idx : idx+n], nil
	}
	return r.slots[idx:r.capacity], r.slots[:n-avail]
}
