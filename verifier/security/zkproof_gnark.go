package security

import (
	"bytes"
	"fmt"
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/backend/witness"
)

// gnarkChecker verifies gnark proofs on BN254. Keys, proofs and public
// witnesses use gnark's binary encodings.
type gnarkChecker struct {
	newProof func() proofReader
	verify   func(proof any, w witness.Witness) error
}

type proofReader interface {
	ReadFrom(r io.Reader) (int64, error)
}

func (c *gnarkChecker) ScalarField() *big.Int {
	return ecc.BN254.ScalarField()
}

func (c *gnarkChecker) Verify(proofBytes, publicInputs []byte) (bool, []*big.Int, error) {
	proof := c.newProof()
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return false, nil, fmt.Errorf("failed to decode proof: %w", err)
	}

	w, err := witness.New(ecc.BN254.ScalarField())
	if err != nil {
		return false, nil, fmt.Errorf("failed to create witness: %w", err)
	}
	if err := w.UnmarshalBinary(publicInputs); err != nil {
		return false, nil, fmt.Errorf("failed to decode public inputs: %w", err)
	}
	vec, ok := w.Vector().(fr.Vector)
	if !ok {
		return false, nil, fmt.Errorf("unexpected public input vector type %T", w.Vector())
	}

	inputs := make([]*big.Int, len(vec))
	for i := range vec {
		inputs[i] = vec[i].BigInt(new(big.Int))
	}

	// gnark reports an invalid proof as an error once decoding succeeded.
	if err := c.verify(proof, w); err != nil {
		return false, inputs, nil
	}
	return true, inputs, nil
}

// NewGroth16Checker parses a Groth16 verifying key on BN254.
func NewGroth16Checker(verificationKey []byte) (ProofChecker, error) {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(verificationKey)); err != nil {
		return nil, err
	}
	return &gnarkChecker{
		newProof: func() proofReader { return groth16.NewProof(ecc.BN254) },
		verify: func(proof any, w witness.Witness) error {
			p, ok := proof.(groth16.Proof)
			if !ok {
				return fmt.Errorf("unexpected proof type %T", proof)
			}
			return groth16.Verify(p, vk, w)
		},
	}, nil
}

// NewPlonkChecker parses a PLONK verifying key on BN254.
func NewPlonkChecker(verificationKey []byte) (ProofChecker, error) {
	vk := plonk.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(verificationKey)); err != nil {
		return nil, err
	}
	return &gnarkChecker{
		newProof: func() proofReader { return plonk.NewProof(ecc.BN254) },
		verify: func(proof any, w witness.Witness) error {
			p, ok := proof.(plonk.Proof)
			if !ok {
				return fmt.Errorf("unexpected proof type %T", proof)
			}
			return plonk.Verify(p, vk, w)
		},
	}, nil
}
