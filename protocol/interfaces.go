package protocol

import (
	"context"
)

// PacketStore maps message ids to captured packets.
type PacketStore interface {
	// Put stores sp under id. Storing identical content again is a no-op,
	// different content under an existing id fails with ErrDuplicateKey.
	Put(ctx context.Context, id MessageID, sp StoredPacket) error
	// Get returns the packet stored under id. The bool is false when absent.
	Get(ctx context.Context, id MessageID) (StoredPacket, bool, error)
	// GetByHeader returns the first packet captured with the given header hash.
	GetByHeader(ctx context.Context, headerHash Bytes32) (StoredPacket, bool, error)
}

// CallDataReader resolves the assignment parameters of an assignment transaction.
// ordinal selects the n-th packet sent by tx, counting from zero.
type CallDataReader interface {
	AssignmentParams(ctx context.Context, chain ChainID, tx TxRef, ordinal int) (AssignmentParams, error)
}

// ConfirmationReader reports how deep the referenced transaction is on a chain.
type ConfirmationReader interface {
	ConfirmationStatus(ctx context.Context, chain ChainID, ref TxRef) (ConfirmationStatus, error)
}

// VerifiedStateReader answers whether the destination already holds this node's verification.
type VerifiedStateReader interface {
	IsVerified(ctx context.Context, req VerificationRequest) (bool, error)
}

// VerificationSubmitter marks a message verified on the destination chain.
// Implementations must tolerate resubmission of an already verified message.
type VerificationSubmitter interface {
	SubmitVerification(ctx context.Context, req VerificationRequest) (bool, error)
}

// EvidenceProvider supplies the side-channel evidence for a message.
type EvidenceProvider interface {
	Evidence(ctx context.Context, id MessageID) ([]byte, error)
}
