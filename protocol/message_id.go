package protocol

import (
	"github.com/ethereum/go-ethereum/common"
)

// AssignmentParams are the job parameters a send library hands to a DVN,
// decoded from the assignment transaction's call data.
type AssignmentParams struct {
	Nonce         Nonce
	SrcEid        ChainID
	Sender        Bytes32
	DstEid        ChainID
	Receiver      Bytes32
	PayloadHash   Bytes32
	Confirmations uint64
	// JobSender is the send library that called assignJob.
	JobSender common.Address
}

// Header returns the routing header the assignment refers to.
func (a AssignmentParams) Header() PacketHeader {
	return PacketHeader{
		Version:  PacketVersion,
		Nonce:    a.Nonce,
		SrcEid:   a.SrcEid,
		Sender:   a.Sender,
		DstEid:   a.DstEid,
		Receiver: a.Receiver,
	}
}

// DeriveMessageID computes Keccak256(header ‖ Keccak256(message)).
func DeriveMessageID(p Packet) MessageID {
	return messageID(p.Header(), p.PayloadHash())
}

// DeriveMessageIDFromAssignment computes the same id as DeriveMessageID
// using the payload hash supplied by the assignment instead of the message.
func DeriveMessageIDFromAssignment(a AssignmentParams) MessageID {
	return messageID(a.Header(), a.PayloadHash)
}

func messageID(h PacketHeader, payloadHash Bytes32) MessageID {
	return Keccak256(h.Encode(), payloadHash[:])
}
