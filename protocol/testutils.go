package protocol

import (
	"bytes"
	"crypto/rand"
)

// RandomBytes32 generates a random 32 byte value for testing.
func RandomBytes32() Bytes32 {
	var b Bytes32
	_, _ = rand.Read(b[:])
	return b
}

// NewTestPacket returns the reference packet used across tests:
// nonce 1 from eid 1 (sender 0x11..11) to eid 2 (receiver 0x22..22) carrying "hello".
func NewTestPacket() Packet {
	var sender, receiver Bytes32
	copy(sender[:], bytes.Repeat([]byte{0x11}, 32))
	copy(receiver[:], bytes.Repeat([]byte{0x22}, 32))
	return Packet{
		Nonce:    1,
		SrcEid:   1,
		Sender:   sender,
		DstEid:   2,
		Receiver: receiver,
		Message:  ByteSlice("hello"),
	}
}

// AssignmentFor returns assignment parameters that describe p.
func AssignmentFor(p Packet) AssignmentParams {
	return AssignmentParams{
		Nonce:       p.Nonce,
		SrcEid:      p.SrcEid,
		Sender:      p.Sender,
		DstEid:      p.DstEid,
		Receiver:    p.Receiver,
		PayloadHash: p.PayloadHash(),
	}
}
