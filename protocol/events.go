package protocol

import (
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

// TxRef points at the transaction that emitted an event.
type TxRef struct {
	Hash        common.Hash `json:"hash"`
	BlockNumber uint64      `json:"blockNumber"`
}

// PacketSentEvent is the endpoint's PacketSent log.
type PacketSentEvent struct {
	SrcEid         ChainID        `json:"srcEid"`
	EncodedPayload ByteSlice      `json:"encodedPayload"`
	Options        ByteSlice      `json:"options"`
	SendLibrary    common.Address `json:"sendLibrary"`
	Tx             TxRef          `json:"tx"`
}

// DVNAssignedEvent is the send library's DVNFeePaid log naming the verifiers
// selected for a packet.
type DVNAssignedEvent struct {
	SrcEid            ChainID          `json:"srcEid"`
	RequiredVerifiers []common.Address `json:"requiredVerifiers"`
	OptionalVerifiers []common.Address `json:"optionalVerifiers"`
	Tx                TxRef            `json:"tx"`
	// Ordinal is the position of this assignment among the DVNFeePaid events
	// of Tx, matching the packet sent at the same position.
	Ordinal int `json:"ordinal"`
}

// Selects reports whether dvn is one of the required or optional verifiers.
func (e DVNAssignedEvent) Selects(dvn common.Address) bool {
	return slices.Contains(e.RequiredVerifiers, dvn) || slices.Contains(e.OptionalVerifiers, dvn)
}

// VerificationRequest is what gets submitted to the destination receive library.
type VerificationRequest struct {
	MessageID     MessageID
	DstEid        ChainID
	Header        []byte
	PayloadHash   Bytes32
	Confirmations uint64
}

// HeaderHash is Keccak256 of the encoded header, the key the receive library stores verifications under.
func (r VerificationRequest) HeaderHash() Bytes32 {
	return Keccak256(r.Header)
}

// ConfirmationStatus is a single poll result for a chain.
type ConfirmationStatus struct {
	CurrentBlock  uint64
	Confirmations uint64
}
