// Package rudp implements a NAK-based reliable transport over UDP: a
// retained send window for retransmission, a hybrid (in-window ring plus
// overflow map) receive reassembly, cumulative ACKs, and AIMD congestion
// control. The send window is a ring.Ring[sendSlot] in SPSC mode; the
// receive window is rudp's own recvWindow (a seq-mod-W slot array, a
// presence bitmap and an overflow map), not a ring.Ring.
package rudp

import "encoding/binary"

// Flag distinguishes data packets from the two control-packet variants.
type Flag uint8

const (
	FlagData Flag = 0x00
	FlagAck  Flag = 0x01
	FlagNak  Flag = 0x02
)

// headerSize is the fixed 8-byte wire header: seq:u32 | length:u16 |
// flags:u8 | reserved:u8.
const headerSize = 8

// DefaultMTU is the default maximum datagram size, header included; the
// wire payload never exceeds MTU - headerSize.
const DefaultMTU = 1400

// Packet is a decoded wire packet. For FlagData, Payload holds the
// message bytes. For FlagAck, Payload encodes a cumulative_seq:u32 LE.
// For FlagNak, Payload encodes missing_start:u32 LE | missing_end:u32 LE.
type Packet struct {
	Seq     uint32
	Flags   Flag
	Payload []byte
}

// Encode serializes p into the little-endian 8-byte-header wire format.
func Encode(p Packet) []byte {
	buf := make([]byte, headerSize+len(p.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], p.Seq)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(p.Payload)))
	buf[6] = byte(p.Flags)
	buf[7] = 0
	copy(buf[headerSize:], p.Payload)
	return buf
}

// Decode parses a wire packet out of buf, which must not be reused by the
// caller while the returned Packet is in use (its Payload aliases buf).
func Decode(buf []byte) (Packet, error) {
	if len(buf) < headerSize {
		return Packet{}, ErrShortPacket
	}
	seq := binary.LittleEndian.Uint32(buf[0:4])
	length := binary.LittleEndian.Uint16(buf[4:6])
	flags := Flag(buf[6])
	if int(length) > len(buf)-headerSize {
		return Packet{}, ErrShortPacket
	}
	return Packet{Seq: seq, Flags: flags, Payload: buf[headerSize : headerSize+int(length)]}, nil
}

// EncodeAck builds a cumulative-ACK control packet.
func EncodeAck(cumulativeSeq uint32) []byte {
	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, cumulativeSeq)
	return Encode(Packet{Flags: FlagAck, Payload: payload})
}

// DecodeAck extracts the cumulative sequence from an ACK packet's payload.
func DecodeAck(p Packet) (uint32, error) {
	if len(p.Payload) < 4 {
		return 0, ErrShortPacket
	}
	return binary.LittleEndian.Uint32(p.Payload), nil
}

// EncodeNak builds a NAK control packet covering the inclusive range
// [missingStart, missingEnd].
func EncodeNak(missingStart, missingEnd uint32) []byte {
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint32(payload[0:4], missingStart)
	binary.LittleEndian.PutUint32(payload[4:8], missingEnd)
	return Encode(Packet{Flags: FlagNak, Payload: payload})
}

// DecodeNak extracts the missing range from a NAK packet's payload.
func DecodeNak(p Packet) (start, end uint32, err error) {
	if len(p.Payload) < 8 {
		return 0, 0, ErrShortPacket
	}
	return binary.LittleEndian.Uint32(p.Payload[0:4]), binary.LittleEndian.Uint32(p.Payload[4:8]), nil
}
