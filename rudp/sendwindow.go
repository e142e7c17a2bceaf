package rudp

import (
	"math/bits"
	"time"

	"github.com/bugthesystem/Flux/ring"
)

// sendSlotState tracks a sequence through Claimed -> InFlight ->
// Acked(removed), or InFlight -> Retransmit -> InFlight.
type sendSlotState uint8

const (
	slotClaimed sendSlotState = iota
	slotInFlight
	slotRetransmit
)

// sendSlot is the retained-until-acked record for one outbound sequence.
type sendSlot struct {
	seq       uint32
	payload   []byte
	state     sendSlotState
	sentAt    time.Time
	retransmitCount int
}

// sendWindow owns an SPSC Ring[sendSlot] whose capacity is the transport's
// Config.WindowSize rounded up to a power of two, retaining every
// claimed-but-unacked packet for retransmission.
type sendWindow struct {
	ring    *ring.Ring[sendSlot]
	prod    *ring.Producer[sendSlot]
	cons    *ring.Consumer[sendSlot]
	nextSeq uint32
}

func pow2Ceil(n uint32) uint64 {
	if n < 2 {
		return 2
	}
	return uint64(1) << bits.Len32(n-1)
}

func newSendWindow(maxWindow uint32) (*sendWindow, error) {
	r, err := ring.New[sendSlot](ring.Config{
		Capacity:      pow2Ceil(maxWindow),
		ConsumerCount: 1,
		Mode:          ring.SPSC,
		WaitPolicy:    ring.YieldWait{},
	})
	if err != nil {
		return nil, err
	}
	prod, err := r.RegisterProducer()
	if err != nil {
		return nil, err
	}
	cons, err := r.RegisterConsumer(0)
	if err != nil {
		return nil, err
	}
	return &sendWindow{ring: r, prod: prod, cons: cons}, nil
}

// claim reserves the next sequence for an outbound message, returning the
// slot to populate and its wire sequence, or ok=false if cwnd packets are
// already outstanding or the ring itself is full.
func (w *sendWindow) claim(cwnd uint32) (*sendSlot, uint32, bool, error) {
	produced := w.ring.ProducerCursor()
	consumed, _ := w.ring.ConsumerCursor(0)
	if produced != ^uint64(0) {
		outstanding := produced - consumed
		if outstanding >= uint64(cwnd) {
			return nil, 0, false, nil
		}
	}

	claim, ok, err := w.prod.TryClaimSlots(1)
	if err != nil || !ok {
		return nil, 0, ok, err
	}
	seq := w.nextSeq
	w.nextSeq++
	slot := claim.At(0)
	*slot = sendSlot{seq: seq, state: slotClaimed}
	claim.Publish()
	return slot, seq, true, nil
}

// lookup returns the retained slot for a wire sequence, translating the
// 32-bit wire sequence back to the 64-bit ring sequence space (they share
// the same monotonically-increasing counter, truncated on the wire).
func (w *sendWindow) lookup(wireSeq uint32) (*sendSlot, bool) {
	ringSeq := w.ringSeqFor(wireSeq)
	return w.ring.Peek(ringSeq)
}

// ringSeqFor reconstructs the full 64-bit ring sequence for a wire
// sequence by taking the ring sequence nearest the producer cursor with
// the same low 32 bits — correct as long as fewer than 2^32 packets are
// outstanding at once, which holds for any realistic window size.
func (w *sendWindow) ringSeqFor(wireSeq uint32) uint64 {
	produced := w.ring.ProducerCursor()
	if produced == ^uint64(0) {
		return uint64(wireSeq)
	}
	base := produced &^ 0xFFFFFFFF
	candidate := base | uint64(wireSeq)
	if candidate > produced {
		candidate -= 1 << 32
	}
	return candidate
}

// ackCumulative advances the window's consumer cursor to free every slot
// up to and including the wire sequence covered by a cumulative ACK.
func (w *sendWindow) ackCumulative(wireSeq uint32) {
	ringSeq := w.ringSeqFor(wireSeq)
	produced := w.ring.ProducerCursor()
	if produced == ^uint64(0) {
		return
	}
	if ringSeq > produced {
		ringSeq = produced
	}
	consumed, _ := w.ring.ConsumerCursor(0)
	if consumed != ^uint64(0) && ringSeq <= consumed {
		return // stale/duplicate ACK
	}
	w.cons.AdvanceConsumer(ringSeq)
}

// oldestUnacked returns the oldest retained-but-unacked sequence and
// whether one exists, for the retransmission-timeout timer.
func (w *sendWindow) oldestUnacked() (*sendSlot, bool) {
	consumed, _ := w.ring.ConsumerCursor(0)
	produced := w.ring.ProducerCursor()
	if produced == ^uint64(0) {
		return nil, false
	}
	next := consumed + 1
	return w.ring.Peek(next)
}
