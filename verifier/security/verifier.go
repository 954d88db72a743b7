// Package security implements the interchangeable security strategies a DVN
// applies before attesting to a packet.
package security

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

// StrategyKind names a security strategy.
type StrategyKind string

const (
	KindSignature StrategyKind = "signature"
	KindOracle    StrategyKind = "oracle"
	KindMPC       StrategyKind = "mpc"
	KindZKProof   StrategyKind = "zk_proof"
)

// VerificationContext is built per verification attempt and never persisted.
type VerificationContext struct {
	ChainID          protocol.ChainID
	VerifierIdentity common.Address
	// Evidence is strategy specific: signatures, oracle reports, an MPC proof or a ZK proof.
	Evidence []byte
}

// SecurityVerifier checks evidence attesting to data.
//
// Verify returns false when well formed evidence does not satisfy the
// strategy and an error wrapping protocol.ErrVerification when the evidence
// or configuration is malformed. It never returns true on a parse failure.
type SecurityVerifier interface {
	Kind() StrategyKind
	Verify(ctx context.Context, data []byte, vc VerificationContext) (bool, error)
}

func verificationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", protocol.ErrVerification, fmt.Sprintf(format, args...))
}

// addressSet deduplicates addresses and checks the quorum threshold against the distinct count.
func addressSet(addrs []common.Address, threshold int, what string) (map[common.Address]struct{}, error) {
	set := make(map[common.Address]struct{}, len(addrs))
	for _, a := range addrs {
		if a == (common.Address{}) {
			return nil, fmt.Errorf("zero address in %s", what)
		}
		set[a] = struct{}{}
	}
	if err := checkThreshold(threshold, len(set), what); err != nil {
		return nil, err
	}
	return set, nil
}

func checkThreshold(threshold, size int, what string) error {
	if size == 0 {
		return fmt.Errorf("%s must not be empty", what)
	}
	if threshold < 1 {
		return fmt.Errorf("threshold must be at least 1, got %d", threshold)
	}
	if threshold > size {
		return fmt.Errorf("threshold %d exceeds the %d configured %s", threshold, size, what)
	}
	return nil
}
