package protocol

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ChainID is a LayerZero endpoint id (eid).
type ChainID uint32

func (c ChainID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// Nonce is the per-path outbound counter assigned by the source endpoint.
type Nonce uint64

func (n Nonce) String() string {
	return strconv.FormatUint(uint64(n), 10)
}

// Bytes32 is a fixed 32 byte value: hashes, GUIDs and chain-agnostic addresses.
type Bytes32 [32]byte

// MessageID is the content-derived identifier of a packet.
type MessageID = Bytes32

// NewBytes32FromString parses a 0x-prefixed hex string of at most 32 bytes.
// Shorter inputs are left padded, matching how EVM addresses are widened.
func NewBytes32FromString(s string) (Bytes32, error) {
	if !strings.HasPrefix(s, "0x") {
		return Bytes32{}, fmt.Errorf("Bytes32 must start with '0x' prefix: %s", s)
	}
	if len(s) > 66 {
		return Bytes32{}, fmt.Errorf("Bytes32 must be at most 32 bytes long: %s", s)
	}

	raw := s[2:]
	if len(raw)%2 == 1 {
		raw = "0" + raw
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return Bytes32{}, fmt.Errorf("failed to decode hex: %w", err)
	}

	var res Bytes32
	copy(res[32-len(b):], b)
	return res, nil
}

// AddressToBytes32 left pads an EVM address to 32 bytes.
func AddressToBytes32(a common.Address) Bytes32 {
	var res Bytes32
	copy(res[12:], a.Bytes())
	return res
}

// ToAddress returns the low 20 bytes as an EVM address.
func (b Bytes32) ToAddress() common.Address {
	return common.BytesToAddress(b[12:])
}

func (b Bytes32) String() string {
	return "0x" + hex.EncodeToString(b[:])
}

func (b Bytes32) IsEmpty() bool {
	return b == Bytes32{}
}

func (b Bytes32) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf(`"%s"`, b.String())), nil
}

func (b *Bytes32) UnmarshalJSON(data []byte) error {
	v := string(data)
	if len(v) < 4 || v[0] != '"' || v[len(v)-1] != '"' {
		return fmt.Errorf("invalid Bytes32: %s", v)
	}
	parsed, err := NewBytes32FromString(v[1 : len(v)-1])
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// ByteSlice is a []byte that marshals to and from 0x-prefixed hex instead of base64.
type ByteSlice []byte

// NewByteSliceFromHex decodes hex with or without the 0x prefix.
func NewByteSliceFromHex(s string) (ByteSlice, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hex: %w", err)
	}
	return ByteSlice(b), nil
}

func (h ByteSlice) MarshalJSON() ([]byte, error) {
	if h == nil {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf(`"%s"`, h.String())), nil
}

func (h *ByteSlice) UnmarshalJSON(data []byte) error {
	v := string(data)
	if v == "null" {
		*h = nil
		return nil
	}
	if len(v) < 2 || v[0] != '"' || v[len(v)-1] != '"' {
		return fmt.Errorf("invalid ByteSlice: %s", v)
	}

	v = v[1 : len(v)-1]
	if v == "" || v == "0x" {
		*h = ByteSlice{}
		return nil
	}
	b, err := NewByteSliceFromHex(v)
	if err != nil {
		return err
	}
	*h = b
	return nil
}

// String returns the hex representation with 0x prefix.
func (h ByteSlice) String() string {
	return "0x" + hex.EncodeToString(h)
}
