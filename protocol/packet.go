package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

const (
	// PacketVersion is the only packet header version understood by this node.
	PacketVersion uint8 = 1
	// HeaderLength is version(1) + nonce(8) + srcEid(4) + sender(32) + dstEid(4) + receiver(32).
	HeaderLength = 1 + 8 + 4 + 32 + 4 + 32
	// guidOffset is where the 32 byte GUID starts in an encoded packet.
	guidOffset = HeaderLength
	// messageOffset is where the application message starts in an encoded packet.
	messageOffset = guidOffset + 32
)

// PacketHeader is the fixed size routing part of a packet.
type PacketHeader struct {
	Version  uint8   `json:"version"`
	Nonce    Nonce   `json:"nonce"`
	SrcEid   ChainID `json:"srcEid"`
	Sender   Bytes32 `json:"sender"`
	DstEid   ChainID `json:"dstEid"`
	Receiver Bytes32 `json:"receiver"`
}

// Packet is a cross-chain message as emitted by the source endpoint.
// GUID is carried for correlation only and is not part of the message id.
type Packet struct {
	Nonce    Nonce     `json:"nonce"`
	SrcEid   ChainID   `json:"srcEid"`
	Sender   Bytes32   `json:"sender"`
	DstEid   ChainID   `json:"dstEid"`
	Receiver Bytes32   `json:"receiver"`
	GUID     Bytes32   `json:"guid"`
	Message  ByteSlice `json:"message"`
}

// StoredPacket is what the capture phase persists for the process phase.
type StoredPacket struct {
	Packet     Packet    `json:"packet"`
	Options    ByteSlice `json:"options"`
	CapturedAt time.Time `json:"capturedAt"`
}

// SameContent reports whether two stored packets describe the same capture,
// ignoring when each was captured.
func (s StoredPacket) SameContent(other StoredPacket) bool {
	return s.Packet.Equal(other.Packet) && bytes.Equal(s.Options, other.Options)
}

// Header returns the routing header of the packet.
func (p Packet) Header() PacketHeader {
	return PacketHeader{
		Version:  PacketVersion,
		Nonce:    p.Nonce,
		SrcEid:   p.SrcEid,
		Sender:   p.Sender,
		DstEid:   p.DstEid,
		Receiver: p.Receiver,
	}
}

// PayloadHash is Keccak256 of the application message.
func (p Packet) PayloadHash() Bytes32 {
	return Keccak256(p.Message)
}

// Equal compares every field, including the GUID.
func (p Packet) Equal(other Packet) bool {
	return p.Nonce == other.Nonce &&
		p.SrcEid == other.SrcEid &&
		p.Sender == other.Sender &&
		p.DstEid == other.DstEid &&
		p.Receiver == other.Receiver &&
		p.GUID == other.GUID &&
		bytes.Equal(p.Message, other.Message)
}

// Encode returns the big-endian header encoding, HeaderLength bytes long.
func (h PacketHeader) Encode() []byte {
	buf := make([]byte, 0, HeaderLength)
	buf = append(buf, h.Version)
	buf = binary.BigEndian.AppendUint64(buf, uint64(h.Nonce))
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.SrcEid))
	buf = append(buf, h.Sender[:]...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.DstEid))
	buf = append(buf, h.Receiver[:]...)
	return buf
}

// Hash is Keccak256 of the encoded header.
func (h PacketHeader) Hash() Bytes32 {
	return Keccak256(h.Encode())
}

// EncodeHeader is shorthand for p.Header().Encode().
func EncodeHeader(p Packet) []byte {
	return p.Header().Encode()
}

// DecodeHeader parses exactly HeaderLength bytes.
func DecodeHeader(data []byte) (PacketHeader, error) {
	if len(data) != HeaderLength {
		return PacketHeader{}, fmt.Errorf("%w: header must be %d bytes, got %d", ErrDecode, HeaderLength, len(data))
	}
	return readHeader(bytes.NewReader(data))
}

func readHeader(reader *bytes.Reader) (PacketHeader, error) {
	var h PacketHeader

	version, err := reader.ReadByte()
	if err != nil {
		return PacketHeader{}, fmt.Errorf("%w: failed to read version: %w", ErrDecode, err)
	}
	if version != PacketVersion {
		return PacketHeader{}, fmt.Errorf("%w: unsupported packet version %d", ErrDecode, version)
	}
	h.Version = version

	var nonce uint64
	if err := binary.Read(reader, binary.BigEndian, &nonce); err != nil {
		return PacketHeader{}, fmt.Errorf("%w: failed to read nonce: %w", ErrDecode, err)
	}
	h.Nonce = Nonce(nonce)

	var srcEid, dstEid uint32
	if err := binary.Read(reader, binary.BigEndian, &srcEid); err != nil {
		return PacketHeader{}, fmt.Errorf("%w: failed to read source eid: %w", ErrDecode, err)
	}
	if _, err := io.ReadFull(reader, h.Sender[:]); err != nil {
		return PacketHeader{}, fmt.Errorf("%w: failed to read sender: %w", ErrDecode, err)
	}
	if err := binary.Read(reader, binary.BigEndian, &dstEid); err != nil {
		return PacketHeader{}, fmt.Errorf("%w: failed to read destination eid: %w", ErrDecode, err)
	}
	if _, err := io.ReadFull(reader, h.Receiver[:]); err != nil {
		return PacketHeader{}, fmt.Errorf("%w: failed to read receiver: %w", ErrDecode, err)
	}
	h.SrcEid = ChainID(srcEid)
	h.DstEid = ChainID(dstEid)

	return h, nil
}

// EncodePacket returns header ‖ guid ‖ message, the encodedPayload format of
// the endpoint's PacketSent event.
func EncodePacket(p Packet) []byte {
	buf := make([]byte, 0, messageOffset+len(p.Message))
	buf = append(buf, EncodeHeader(p)...)
	buf = append(buf, p.GUID[:]...)
	buf = append(buf, p.Message...)
	return buf
}

// DecodePacket parses an encoded payload. Everything after the GUID is the
// application message, which may be empty.
func DecodePacket(data []byte) (Packet, error) {
	if len(data) < messageOffset {
		return Packet{}, fmt.Errorf("%w: encoded packet too short: %d bytes", ErrDecode, len(data))
	}

	reader := bytes.NewReader(data)
	h, err := readHeader(reader)
	if err != nil {
		return Packet{}, err
	}

	p := Packet{
		Nonce:    h.Nonce,
		SrcEid:   h.SrcEid,
		Sender:   h.Sender,
		DstEid:   h.DstEid,
		Receiver: h.Receiver,
	}
	if _, err := io.ReadFull(reader, p.GUID[:]); err != nil {
		return Packet{}, fmt.Errorf("%w: failed to read guid: %w", ErrDecode, err)
	}
	p.Message = make(ByteSlice, reader.Len())
	if _, err := io.ReadFull(reader, p.Message); err != nil {
		return Packet{}, fmt.Errorf("%w: failed to read message: %w", ErrDecode, err)
	}

	return p, nil
}
