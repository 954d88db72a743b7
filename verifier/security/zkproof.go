package security

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

// ProofSystem names a zero-knowledge proof system.
type ProofSystem string

const (
	ProofSystemGroth16 ProofSystem = "groth16"
	ProofSystemPlonk   ProofSystem = "plonk"
)

// ParseProofSystem normalizes a configured proof system name.
func ParseProofSystem(s string) ProofSystem {
	return ProofSystem(strings.ToLower(strings.TrimSpace(s)))
}

// ProofChecker verifies proofs against one parsed verification key.
type ProofChecker interface {
	// Verify decodes publicInputs and checks proof against them. It returns
	// the decoded public inputs so callers can bind them to the attested data.
	Verify(proof, publicInputs []byte) (bool, []*big.Int, error)
	// ScalarField is the field the public inputs live in.
	ScalarField() *big.Int
}

// ProofBackend parses a verification key into a checker.
type ProofBackend func(verificationKey []byte) (ProofChecker, error)

// ProofBackends maps proof systems to their backends.
type ProofBackends map[ProofSystem]ProofBackend

// DefaultProofBackends returns the gnark backends on BN254.
func DefaultProofBackends() ProofBackends {
	return ProofBackends{
		ProofSystemGroth16: NewGroth16Checker,
		ProofSystemPlonk:   NewPlonkChecker,
	}
}

var _ SecurityVerifier = (*ZKProofVerifier)(nil)

// ZKProofVerifier accepts data when the evidence carries a valid proof under
// the configured verification key.
//
// Evidence is proof_length (4 bytes, big-endian) ‖ proof ‖ public_inputs.
// With data binding enabled the first public input must equal Keccak256(data)
// reduced into the scalar field.
type ZKProofVerifier struct {
	system   ProofSystem
	checker  ProofChecker
	bindData bool
}

// NewZKProofVerifier parses verificationKey with the backend registered for
// system. An unregistered system fails with protocol.ErrUnsupportedProofSystem.
func NewZKProofVerifier(system ProofSystem, verificationKey []byte, backends ProofBackends, bindData bool) (*ZKProofVerifier, error) {
	backend, ok := backends[system]
	if !ok {
		return nil, fmt.Errorf("%w: %w: %q", protocol.ErrVerification, protocol.ErrUnsupportedProofSystem, system)
	}
	if len(verificationKey) == 0 {
		return nil, fmt.Errorf("verification key must not be empty")
	}
	checker, err := backend(verificationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s verification key: %w", system, err)
	}
	return &ZKProofVerifier{system: system, checker: checker, bindData: bindData}, nil
}

func (v *ZKProofVerifier) Kind() StrategyKind {
	return KindZKProof
}

// ProofSystem returns the configured proof system.
func (v *ZKProofVerifier) ProofSystem() ProofSystem {
	return v.system
}

func (v *ZKProofVerifier) Verify(_ context.Context, data []byte, vc VerificationContext) (bool, error) {
	proof, publicInputs, err := SplitZKEvidence(vc.Evidence)
	if err != nil {
		return false, err
	}

	valid, inputs, err := v.checker.Verify(proof, publicInputs)
	if err != nil {
		return false, verificationErr("%s: %v", v.system, err)
	}
	if !valid {
		return false, nil
	}

	if v.bindData {
		if len(inputs) == 0 {
			return false, verificationErr("%s: proof has no public inputs to bind data to", v.system)
		}
		if inputs[0].Cmp(DataDigestInput(data, v.checker.ScalarField())) != 0 {
			return false, nil
		}
	}
	return true, nil
}

// SplitZKEvidence separates proof_length ‖ proof ‖ public_inputs.
func SplitZKEvidence(evidence []byte) (proof, publicInputs []byte, err error) {
	if len(evidence) < 4 {
		return nil, nil, verificationErr("zk evidence too short: %d bytes", len(evidence))
	}
	proofLen := binary.BigEndian.Uint32(evidence[:4])
	rest := evidence[4:]
	if uint64(proofLen) > uint64(len(rest)) {
		return nil, nil, verificationErr("zk proof length %d exceeds the %d bytes available", proofLen, len(rest))
	}
	return rest[:proofLen], rest[proofLen:], nil
}

// EncodeZKEvidence is the inverse of SplitZKEvidence.
func EncodeZKEvidence(proof, publicInputs []byte) []byte {
	out := binary.BigEndian.AppendUint32(make([]byte, 0, 4+len(proof)+len(publicInputs)), uint32(len(proof)))
	out = append(out, proof...)
	return append(out, publicInputs...)
}

// DataDigestInput maps Keccak256(data) into the scalar field.
func DataDigestInput(data []byte, field *big.Int) *big.Int {
	digest := protocol.Keccak256(data)
	v := new(big.Int).SetBytes(digest[:])
	return v.Mod(v, field)
}
