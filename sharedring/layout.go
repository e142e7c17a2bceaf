// Package sharedring implements a file-backed, memory-mapped SPSC channel:
// a ring buffer with ring.Ring[T]'s claim/publish/consume protocol whose
// cursors and slot array live in bytes shared between two unrelated OS
// processes, rather than in process-local memory.
package sharedring

import (
	"encoding/binary"
	"fmt"
)

// magic identifies a Flux shared ring file on disk.
var magic = [8]byte{'K', 'A', 'O', 'S', 'R', 'I', 'N', 'G'}

const layoutVersion uint32 = 1

// Fixed header field offsets, all little-endian, matching the on-disk
// layout: magic | version | slot_size | capacity | pad_cache_line |
// reserved (to 64) | producer_cursor (padded) | consumer_cursor (padded) |
// slot array.
const (
	offMagic         = 0
	offVersion       = 8
	offSlotSize      = 12
	offCapacity      = 16
	offPadCacheLine  = 20
	headerReservedTo = 64
)

// header describes the fixed preamble of a shared ring file, decoded from
// or encoded into the first 64 bytes of the mapping.
type header struct {
	version      uint32
	slotSize     uint32
	capacity     uint32
	padCacheLine uint32
}

func encodeHeader(buf []byte, h header) {
	copy(buf[offMagic:], magic[:])
	binary.LittleEndian.PutUint32(buf[offVersion:], h.version)
	binary.LittleEndian.PutUint32(buf[offSlotSize:], h.slotSize)
	binary.LittleEndian.PutUint32(buf[offCapacity:], h.capacity)
	binary.LittleEndian.PutUint32(buf[offPadCacheLine:], h.padCacheLine)
	for i := offPadCacheLine + 4; i < headerReservedTo; i++ {
		buf[i] = 0
	}
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerReservedTo {
		return header{}, fmt.Errorf("sharedring: file too small for header: %d bytes", len(buf))
	}
	if string(buf[offMagic:offMagic+8]) != string(magic[:]) {
		return header{}, ErrBadMagic
	}
	return header{
		version:      binary.LittleEndian.Uint32(buf[offVersion:]),
		slotSize:     binary.LittleEndian.Uint32(buf[offSlotSize:]),
		capacity:     binary.LittleEndian.Uint32(buf[offCapacity:]),
		padCacheLine: binary.LittleEndian.Uint32(buf[offPadCacheLine:]),
	}, nil
}

// cursorOffset returns the byte offset of the producer cursor (idx 0) or
// consumer cursor (idx 1) cell, given the header's recorded padding.
func cursorOffset(pad uint32, idx int) int64 {
	return headerReservedTo + int64(idx)*int64(pad)
}

// slotArrayOffset returns the byte offset where the slot array begins.
func slotArrayOffset(pad uint32) int64 {
	return headerReservedTo + 2*int64(pad)
}

// fileSize computes the total bytes required for a shared ring of the
// given capacity, slot size and cache-line padding.
func fileSize(capacity, slotSize, pad uint32) int64 {
	return slotArrayOffset(pad) + int64(capacity)*int64(slotSize)
}
