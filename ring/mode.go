package ring

// Mode selects one of the four producer/consumer cardinalities a Ring
// supports. The protocol (claim/publish/consume/advance) is identical
// across modes; only the producer-claim strategy and the publish-visibility
// strategy differ.
type Mode uint8

const (
	// SPSC is single-producer, single-consumer.
	SPSC Mode = iota
	// MPSC is multi-producer, single-consumer.
	MPSC
	// SPMC is single-producer, multi-consumer fan-out (every consumer
	// observes every published sequence; this is broadcast, not
	// competing consumption).
	SPMC
	// MPMC is multi-producer, multi-consumer fan-out.
	MPMC
)

func (m Mode) String() string {
	switch m {
	case SPSC:
		return "SPSC"
	case MPSC:
		return "MPSC"
	case SPMC:
		return "SPMC"
	case MPMC:
		return "MPMC"
	default:
		return "unknown"
	}
}

// multiProducer reports whether producer claims on this mode require the
// CAS-based producer_claim cursor and per-slot publish tracking.
func (m Mode) multiProducer() bool {
	return m == MPSC || m == MPMC
}
