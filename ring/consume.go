package ring

// Batch is the immutable view returned by TryConsumeBatch, valid until
// AdvanceConsumer is called for the same consumer.
type Batch[T any] struct {
	start, end uint64 // inclusive; end < start means empty
	first      []T
	second     []T
}

// Start returns the first sequence number in this batch.
func (b *Batch[T]) Start() uint64 { return b.start }

// End returns the last (inclusive) sequence number in this batch.
func (b *Batch[T]) End() uint64 { return b.end }

// Len returns the number of slots in this batch.
func (b *Batch[T]) Len() int { return len(b.first) + len(b.second) }

// First returns the first contiguous segment.
func (b *Batch[T]) First() []T { return b.first }

// Second returns the second segment, non-empty only when the batch
// wrapped the physical end of the buffer.
func (b *Batch[T]) Second() []T { return b.second }

// At returns the slot at logical offset i (0-based) within the batch.
func (b *Batch[T]) At(i int) *T {
	if i < len(b.first) {
		return &b.first[i]
	}
	return &b.second[i-len(b.first)]
}

// TryConsumeBatch returns a view over at most maxN consecutive unconsumed
// slots starting right after this consumer's cursor. An empty batch
// (Len() == 0) is not an error: it means the ring currently has nothing
// new for this consumer.
//
// In multi-producer modes a slot is only visible once producer_cursor has
// advanced past it, which happens only after that slot's claim has been
// published — so a consumer that outruns a stalled multi-producer publish
// simply observes an empty batch until the stall clears or times out via
// its own WaitPolicy.
func (c *Consumer[T]) TryConsumeBatch(maxN uint64) *Batch[T] {
	r := c.ring
	produced := r.producerCursor.LoadAcquire()
	consumed := r.consumerCursors[c.id].Load()

	available := produced - consumed // unsigned wraparound; 0 if equal
	if available == 0 {
		return &Batch[T]{start: consumed + 1, end: consumed}
	}
	n := available
	if maxN < n {
		n = maxN
	}
	if n == 0 {
		return &Batch[T]{start: consumed + 1, end: consumed}
	}

	start := consumed + 1
	end := consumed + n
	first, second := r.slice(start, n)
	return &Batch[T]{start: start, end: end, first: first, second: second}
}

// AdvanceConsumer records that this consumer has finished with every slot
// up to and including lastConsumedSeq. The store is a Release so a
// producer that subsequently reuses the cell is guaranteed to see the
// consumer's reads complete first.
func (c *Consumer[T]) AdvanceConsumer(lastConsumedSeq uint64) {
	c.ring.consumerCursors[c.id].StoreRelease(lastConsumedSeq)
}
