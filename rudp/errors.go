package rudp

import "errors"

var (
	// ErrShortPacket is returned when a buffer is too small to hold a
	// valid header, or a control packet's declared payload is truncated.
	ErrShortPacket = errors.New("rudp: short packet")
	// ErrPayloadTooLarge is returned by Send when the message exceeds the
	// transport's configured MTU minus header.
	ErrPayloadTooLarge = errors.New("rudp: payload exceeds mtu")
	// ErrCongested is returned by Send when the congestion window is
	// saturated; this is transient absence, not a protocol error — the
	// caller retries per its own wait policy.
	ErrCongested = errors.New("rudp: congestion window saturated")
	// ErrClosed is returned by any call on a Transport after Close.
	ErrClosed = errors.New("rudp: transport closed")
)
