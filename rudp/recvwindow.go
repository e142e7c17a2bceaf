package rudp

// recvWindow implements a hybrid receive reassembly scheme: a fixed-size
// in-window ring for near-future packets, a bitmap over that window for
// gap detection, and an overflow map for packets arriving far ahead of
// nextExpected.
type recvWindow struct {
	nextExpected uint32
	size         uint32 // W, power of two
	mask         uint32

	slots   [][]byte // in-window ring, indexed by seq % size
	present []bool   // bitmap over the in-window ring

	overflow    map[uint32][]byte
	overflowMax int

	duplicates uint64
	dropped    uint64

	// gapAge counts in-window arrivals observed since each distinct
	// missing-range head was first detected: a packet-count trigger for
	// NAK generation.
	gapAge map[uint32]int
}

func newRecvWindow(size uint32, overflowMax int) *recvWindow {
	if size < 2 || size&(size-1) != 0 {
		panic("rudp: recv window size must be a power of two >= 2")
	}
	return &recvWindow{
		size:        size,
		mask:        size - 1,
		slots:       make([][]byte, size),
		present:     make([]bool, size),
		overflow:    make(map[uint32][]byte),
		overflowMax: overflowMax,
		gapAge:      make(map[uint32]int),
	}
}

// deliverFunc is invoked once per in-order payload; it must not retain buf
// beyond the call.
type deliverFunc func(seq uint32, buf []byte)

// arrivalResult reports what Arrive did, for transport-level stats/NAK
// decisions.
type arrivalResult struct {
	duplicate      bool
	overflowForced bool // accepted into overflow because seq lies beyond the window
	droppedOverflow bool // rejected: overflow map at capacity
}

// Arrive places an incoming data packet into the window or overflow map,
// then delivers everything now in order via deliver.
func (w *recvWindow) Arrive(seq uint32, payload []byte, deliver deliverFunc) arrivalResult {
	var res arrivalResult

	if seqLess(seq, w.nextExpected) {
		w.duplicates++
		res.duplicate = true
		return res
	}

	if seq-w.nextExpected < w.size {
		idx := seq & w.mask
		if !w.present[idx] {
			buf := make([]byte, len(payload))
			copy(buf, payload)
			w.slots[idx] = buf
			w.present[idx] = true
		} else if w.slots[idx] != nil {
			w.duplicates++
			res.duplicate = true
		}
	} else {
		if _, exists := w.overflow[seq]; !exists && len(w.overflow) >= w.overflowMax {
			w.dropped++
			res.droppedOverflow = true
			return res
		}
		buf := make([]byte, len(payload))
		copy(buf, payload)
		w.overflow[seq] = buf
		res.overflowForced = true
	}

	w.advance(deliver)
	return res
}

// advance delivers every contiguous present slot starting at nextExpected,
// then pulls any now-in-window overflow entries into the ring.
func (w *recvWindow) advance(deliver deliverFunc) {
	for {
		idx := w.nextExpected & w.mask
		if !w.present[idx] {
			break
		}
		buf := w.slots[idx]
		w.slots[idx] = nil
		w.present[idx] = false
		delete(w.gapAge, w.nextExpected)
		if deliver != nil {
			deliver(w.nextExpected, buf)
		}
		w.nextExpected++

		for seq, buf := range w.overflow {
			if seq-w.nextExpected < w.size {
				i := seq & w.mask
				w.slots[i] = buf
				w.present[i] = true
				delete(w.overflow, seq)
			}
		}
	}
}

// seqLess reports seq < other under 32-bit wraparound arithmetic.
func seqLess(seq, other uint32) bool {
	return int32(seq-other) < 0
}

// MissingRanges scans the in-window bitmap for contiguous gaps (missing
// sequences followed by a received one) and ages each gap by one per
// call, keyed by its first sequence. Every gap whose age has reached
// threshold is returned on every call; rate-limiting re-emission is left
// to the caller. The unreceived tail of the window is not a gap.
func (w *recvWindow) MissingRanges(threshold int) [][2]uint32 {
	var ranges [][2]uint32
	seq := w.nextExpected
	end := w.nextExpected + w.size
	for seq != end {
		idx := seq & w.mask
		if w.present[idx] {
			seq++
			continue
		}
		start := seq
		for seq != end {
			idx := seq & w.mask
			if w.present[idx] {
				break
			}
			seq++
		}
		if seq == end {
			break // nothing received past this point: not a gap
		}
		w.gapAge[start]++
		last := seq - 1
		if w.gapAge[start] >= threshold {
			ranges = append(ranges, [2]uint32{start, last})
		}
	}
	return ranges
}
