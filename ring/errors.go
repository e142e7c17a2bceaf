package ring

import "errors"

// Construction / protocol errors. These are reported synchronously at the
// call site; none of them are retried internally.
var (
	// ErrInvalidCapacity is returned when Capacity is not a power of two,
	// or is smaller than 2.
	ErrInvalidCapacity = errors.New("ring: capacity must be a power of two >= 2")

	// ErrInvalidConsumerCount is returned when ConsumerCount is zero.
	ErrInvalidConsumerCount = errors.New("ring: consumer count must be >= 1")

	// ErrClaimTooLarge is returned by TryClaimSlots when n exceeds the
	// ring's capacity; a claim this large could never be satisfied.
	ErrClaimTooLarge = errors.New("ring: claim size exceeds capacity")

	// ErrConsumerIDOutOfRange is returned when a consumer id passed to
	// RegisterConsumer or ConsumerCursor is not in [0, consumer_count).
	ErrConsumerIDOutOfRange = errors.New("ring: consumer id out of range")

	// ErrProducerAlreadyRegistered is returned by RegisterProducer on a
	// single-producer-mode ring (SPSC, SPMC) when a producer handle has
	// already been issued.
	ErrProducerAlreadyRegistered = errors.New("ring: producer already registered for single-producer mode")

	// ErrConsumerAlreadyRegistered is returned by RegisterConsumer when
	// the given id already has a handle outstanding.
	ErrConsumerAlreadyRegistered = errors.New("ring: consumer id already registered")
)
