package ring

import (
	"sync"
	"testing"
)

// TestRing_BasicOperations verifies capacity/mask bookkeeping.
func TestRing_BasicOperations(t *testing.T) {
	r, err := New[Slot8](Config{Capacity: 1024, ConsumerCount: 1, Mode: SPSC})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if r.Capacity() != 1024 {
		t.Errorf("Expected capacity 1024, got %d", r.Capacity())
	}

	size := r.capacity
	if size&(size-1) != 0 {
		t.Errorf("Capacity %d is not a power of 2", size)
	}

	expectedMask := size - 1
	if r.mask != expectedMask {
		t.Errorf("Expected mask %d, got %d", expectedMask, r.mask)
	}
}

func TestNew_RejectsNonPowerOfTwo(t *testing.T) {
	_, err := New[Slot8](Config{Capacity: 100, ConsumerCount: 1, Mode: SPSC})
	if err != ErrInvalidCapacity {
		t.Fatalf("expected ErrInvalidCapacity, got %v", err)
	}
}

func TestNew_RejectsZeroConsumers(t *testing.T) {
	_, err := New[Slot8](Config{Capacity: 8, ConsumerCount: 0, Mode: SPMC})
	if err != ErrInvalidConsumerCount {
		t.Fatalf("expected ErrInvalidConsumerCount, got %v", err)
	}
}

func TestNew_RejectsMultiConsumerOnSPSC(t *testing.T) {
	_, err := New[Slot8](Config{Capacity: 8, ConsumerCount: 2, Mode: SPSC})
	if err == nil {
		t.Fatal("expected error for SPSC with 2 consumers")
	}
}

// TestSPSCEcho is a minimal single-producer single-consumer round trip.
func TestSPSCEcho(t *testing.T) {
	r, err := New[int](Config{Capacity: 8, ConsumerCount: 1, Mode: SPSC})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	producer, err := r.RegisterProducer()
	if err != nil {
		t.Fatalf("RegisterProducer: %v", err)
	}
	consumer, err := r.RegisterConsumer(0)
	if err != nil {
		t.Fatalf("RegisterConsumer: %v", err)
	}

	claim, ok, err := producer.TryClaimSlots(1)
	if err != nil || !ok {
		t.Fatalf("TryClaimSlots: ok=%v err=%v", ok, err)
	}
	*claim.At(0) = 42
	claim.Publish()

	batch := consumer.TryConsumeBatch(10)
	if batch.Len() != 1 {
		t.Fatalf("expected 1 slot, got %d", batch.Len())
	}
	if *batch.At(0) != 42 {
		t.Fatalf("expected 42, got %d", *batch.At(0))
	}
	consumer.AdvanceConsumer(batch.End())

	if got := r.ProducerCursor(); got != 0 {
		t.Errorf("expected producer cursor 0 (sequence 0 published), got %d", got)
	}
	cc, _ := r.ConsumerCursor(0)
	if cc != 0 {
		t.Errorf("expected consumer cursor 0, got %d", cc)
	}
}

// TestFillAndDrain fills a ring to capacity, drains one slot, and
// verifies a subsequent claim succeeds.
func TestFillAndDrain(t *testing.T) {
	r, err := New[int](Config{Capacity: 4, ConsumerCount: 1, Mode: SPSC})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	producer, _ := r.RegisterProducer()
	consumer, _ := r.RegisterConsumer(0)

	claim, ok, err := producer.TryClaimSlots(4)
	if err != nil || !ok {
		t.Fatalf("claim 4: ok=%v err=%v", ok, err)
	}
	for i := 0; i < 4; i++ {
		*claim.At(i) = i
	}
	claim.Publish()

	if _, ok, _ := producer.TryClaimSlots(1); ok {
		t.Fatal("expected fifth claim to refuse on a full ring")
	}

	batch := consumer.TryConsumeBatch(1)
	if batch.Len() != 1 || *batch.At(0) != 0 {
		t.Fatalf("expected first slot value 0, got len=%d", batch.Len())
	}
	consumer.AdvanceConsumer(batch.Start()) // advance to sequence 0

	claim2, ok, err := producer.TryClaimSlots(1)
	if err != nil || !ok {
		t.Fatalf("expected claim to succeed after one consume: ok=%v err=%v", ok, err)
	}
	if claim2.Start() != 4 {
		t.Fatalf("expected next claim at sequence 4, got %d", claim2.Start())
	}
}

// TestClaimLargerThanCapacityAlwaysRefuses is a boundary behaviour check.
func TestClaimLargerThanCapacityAlwaysRefuses(t *testing.T) {
	r, _ := New[int](Config{Capacity: 4, ConsumerCount: 1, Mode: SPSC})
	producer, _ := r.RegisterProducer()
	if _, _, err := producer.TryClaimSlots(5); err != ErrClaimTooLarge {
		t.Fatalf("expected ErrClaimTooLarge, got %v", err)
	}
}

// TestMPSCInterleave runs two producers publishing concurrently into a
// multi-producer single-consumer ring.
func TestMPSCInterleave(t *testing.T) {
	r, err := New[int](Config{Capacity: 16, ConsumerCount: 1, Mode: MPSC})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	const perProducer = 8
	var wg sync.WaitGroup
	wg.Add(2)
	for p := 0; p < 2; p++ {
		go func(tag int) {
			defer wg.Done()
			producer, err := r.RegisterProducer()
			if err != nil {
				t.Errorf("RegisterProducer: %v", err)
				return
			}
			for i := 0; i < perProducer; i++ {
				for {
					claim, ok, err := producer.TryClaimSlots(1)
					if err != nil {
						t.Errorf("TryClaimSlots: %v", err)
						return
					}
					if !ok {
						continue
					}
					*claim.At(0) = tag
					claim.Publish()
					break
				}
			}
		}(p)
	}
	wg.Wait()

	consumer, err := r.RegisterConsumer(0)
	if err != nil {
		t.Fatalf("RegisterConsumer: %v", err)
	}
	total := 0
	for total < 2*perProducer {
		batch := consumer.TryConsumeBatch(2 * perProducer)
		if batch.Len() == 0 {
			continue
		}
		for i := 0; i < batch.Len(); i++ {
			total++
		}
		consumer.AdvanceConsumer(batch.End())
	}

	if got := r.ProducerCursor(); got != 2*perProducer-1 {
		t.Errorf("expected producer cursor %d, got %d", 2*perProducer-1, got)
	}
}

// TestSPMCFanOut verifies every registered consumer observes every
// published sequence in the same total order.
func TestSPMCFanOut(t *testing.T) {
	r, err := New[int](Config{Capacity: 16, ConsumerCount: 3, Mode: SPMC})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	producer, _ := r.RegisterProducer()
	claim, ok, err := producer.TryClaimSlots(5)
	if err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	for i := 0; i < 5; i++ {
		*claim.At(i) = i * 10
	}
	claim.Publish()

	for id := 0; id < 3; id++ {
		consumer, err := r.RegisterConsumer(id)
		if err != nil {
			t.Fatalf("RegisterConsumer(%d): %v", id, err)
		}
		batch := consumer.TryConsumeBatch(100)
		if batch.Len() != 5 {
			t.Fatalf("consumer %d: expected 5 slots, got %d", id, batch.Len())
		}
		for i := 0; i < 5; i++ {
			if *batch.At(i) != i*10 {
				t.Fatalf("consumer %d: slot %d mismatch: %d", id, i, *batch.At(i))
			}
		}
	}
}

// TestGatingPreventsOvertake checks that the producer never advances
// more than one full capacity past the slowest consumer.
func TestGatingPreventsOvertake(t *testing.T) {
	r, _ := New[int](Config{Capacity: 4, ConsumerCount: 2, Mode: SPMC})
	producer, _ := r.RegisterProducer()
	fast, _ := r.RegisterConsumer(0)
	_, _ = r.RegisterConsumer(1) // slow consumer never advances

	claim, ok, _ := producer.TryClaimSlots(4)
	if !ok {
		t.Fatal("expected initial fill to succeed")
	}
	claim.Publish()

	batch := fast.TryConsumeBatch(4)
	fast.AdvanceConsumer(batch.End())

	// The slow consumer still gates at -1 (nothing consumed), so even
	// though the fast consumer has drained everything, no new claim can
	// exceed capacity relative to the slowest consumer.
	if _, ok, _ := producer.TryClaimSlots(1); ok {
		t.Fatal("expected claim to refuse while the slow consumer has not advanced")
	}
}

func TestZeroLengthClaimIsNoop(t *testing.T) {
	r, _ := New[int](Config{Capacity: 4, ConsumerCount: 1, Mode: SPSC})
	producer, _ := r.RegisterProducer()
	claim, ok, err := producer.TryClaimSlots(0)
	if err != nil || !ok {
		t.Fatalf("zero claim should always succeed: ok=%v err=%v", ok, err)
	}
	if claim.Len() != 0 {
		t.Fatalf("expected empty claim, got %d", claim.Len())
	}
	claim.Publish() // must not panic or corrupt state

	if r.ProducerCursor() != uninitialized {
		t.Fatalf("zero-length publish should not advance producer cursor")
	}
}
