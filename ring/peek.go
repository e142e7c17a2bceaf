package ring

// Peek returns a pointer to the slot at sequence seq and true, if seq has
// been published and not yet released by every consumer (i.e. it is still
// "in the window"). It returns (nil, false) for a sequence that was never
// published or has already been fully consumed — exactly the two cases a
// retained-window caller (rudp's send-side NAK handling) must treat as a
// no-op: a NAK for a sequence no longer in the window is ignored.
//
// Peek is an escape hatch beyond the claim/consume protocol for callers
// that need random-access lookup of a still-retained slot (rather than the
// sequential claim/batch views); it performs no synchronization beyond the
// Acquire loads already used by gatingCursor/producerCursor, so the caller
// must not mutate the returned slot concurrently with a producer that
// might still own it.
func (r *Ring[T]) Peek(seq uint64) (*T, bool) {
	produced := r.producerCursor.LoadAcquire()
	if produced == uninitialized || seq > produced {
		return nil, false
	}
	gating := r.gatingCursor()
	if gating != uninitialized && seq <= gating {
		return nil, false
	}
	idx := seq & r.mask
	return &r.buffer[idx], true
}
