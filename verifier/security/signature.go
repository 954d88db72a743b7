package security

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

var _ SecurityVerifier = (*SignatureVerifier)(nil)

// SignatureVerifier accepts data once threshold distinct required signers
// have signed Keccak256(data).
//
// Evidence is a concatenation of records, each r ‖ s ‖ v (65 bytes)
// followed by the authoritative recovery id (1 byte).
type SignatureVerifier struct {
	signers   map[common.Address]struct{}
	threshold int
}

func NewSignatureVerifier(requiredSigners []common.Address, threshold int) (*SignatureVerifier, error) {
	signers, err := addressSet(requiredSigners, threshold, "required signers")
	if err != nil {
		return nil, err
	}
	return &SignatureVerifier{signers: signers, threshold: threshold}, nil
}

func (v *SignatureVerifier) Kind() StrategyKind {
	return KindSignature
}

func (v *SignatureVerifier) Verify(_ context.Context, data []byte, vc VerificationContext) (bool, error) {
	evidence := vc.Evidence
	if len(evidence)%protocol.SignatureRecordLength != 0 {
		return false, verificationErr("signature evidence length %d is not a multiple of %d",
			len(evidence), protocol.SignatureRecordLength)
	}

	digest := protocol.Keccak256(data)
	seen := make(map[common.Address]struct{})
	for i := 0; i < len(evidence); i += protocol.SignatureRecordLength {
		record := evidence[i : i+protocol.SignatureRecordLength]
		signer, err := protocol.RecoverSigner(digest, record[:64], record[protocol.SignatureLength])
		if err != nil {
			return false, verificationErr("record %d: %v", i/protocol.SignatureRecordLength, err)
		}
		if _, ok := v.signers[signer]; ok {
			seen[signer] = struct{}{}
		}
	}

	return len(seen) >= v.threshold, nil
}

// String is used in logs.
func (v *SignatureVerifier) String() string {
	return fmt.Sprintf("signature(%d-of-%d)", v.threshold, len(v.signers))
}
