package ring

// Slot8, Slot16, Slot32 and Slot64 are fixed-size opaque payload slots for
// small messages. They carry no header of their own — sequencing lives in
// the Ring's cursors and, for multi-producer modes, in the Ring's
// side-channel publish-sequence array — so the byte layout is exactly the
// declared size, which is what SharedRing's on-disk slot array requires.
type (
	Slot8  [8]byte
	Slot16 [16]byte
	Slot32 [32]byte
	Slot64 [64]byte
)

// messageSlotPayload is the fixed payload length of MessageSlot128: 128
// total bytes minus a 4-byte length field and a 4-byte checksum field.
const messageSlotPayload = 120

// MessageSlot128 is a 128-byte variable-length message slot: a 4-byte
// length field, a 4-byte checksum field, and a 120-byte payload. Length is
// the number of meaningful bytes in Payload; Checksum is left for the
// caller to compute and verify (this package does not pick a checksum
// algorithm).
type MessageSlot128 struct {
	Length   uint32
	Checksum uint32
	Payload  [messageSlotPayload]byte
}

// SetPayload copies data into the slot, truncating to the 120-byte
// capacity, and records its length. It does not compute Checksum.
func (m *MessageSlot128) SetPayload(data []byte) {
	n := copy(m.Payload[:], data)
	m.Length = uint32(n)
}

// Bytes returns the meaningful portion of Payload per Length.
func (m *MessageSlot128) Bytes() []byte {
	n := m.Length
	if n > messageSlotPayload {
		n = messageSlotPayload
	}
	return m.Payload[:n]
}
