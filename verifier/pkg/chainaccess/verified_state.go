package chainaccess

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

var _ protocol.VerifiedStateReader = (*VerifiedStateReader)(nil)

// VerifiedStateReader reads the receive library's hashLookup for this DVN.
type VerifiedStateReader struct {
	registry *Registry
	dvn      common.Address
}

func NewVerifiedStateReader(registry *Registry, dvn common.Address) *VerifiedStateReader {
	return &VerifiedStateReader{registry: registry, dvn: dvn}
}

// IsVerified reports whether this DVN already submitted the payload hash for
// the header with at least the requested confirmations.
func (r *VerifiedStateReader) IsVerified(ctx context.Context, req protocol.VerificationRequest) (bool, error) {
	c, err := r.registry.Chain(req.DstEid)
	if err != nil {
		return false, err
	}

	headerHash := req.HeaderHash()
	data, err := ReceiveLibraryABI.Pack("hashLookup", [32]byte(headerHash), [32]byte(req.PayloadHash), r.dvn)
	if err != nil {
		return false, fmt.Errorf("failed to pack hashLookup: %w", err)
	}
	out, err := c.Backend.CallContract(ctx, ethereum.CallMsg{To: &c.ReceiveLibrary, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("hashLookup on chain %s: %w", c.ID, err)
	}
	return decodeHashLookup(out, req.Confirmations)
}

func decodeHashLookup(out []byte, required uint64) (bool, error) {
	values, err := ReceiveLibraryABI.Unpack("hashLookup", out)
	if err != nil {
		return false, fmt.Errorf("failed to unpack hashLookup: %w", err)
	}
	submitted, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected hashLookup output %T", values[0])
	}
	confirmations, ok := values[1].(uint64)
	if !ok {
		return false, fmt.Errorf("unexpected hashLookup output %T", values[1])
	}
	return submitted && confirmations >= required, nil
}
