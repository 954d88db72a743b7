package security

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/ethereum/go-ethereum/common"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

var (
	// MPCSignatureDST domain-separates MPC result signatures from any other use of the participants' keys.
	MPCSignatureDST = []byte("LZDVN-MPC-V01-CS01-with-BN254G1_XMD:SHA-256_SVDW_RO_")
	// MPCPossessionDST domain-separates proofs of possession from result signatures.
	MPCPossessionDST = []byte("LZDVN-MPC-POP-V01-CS01-with-BN254G1_XMD:SHA-256_SVDW_RO_")
)

const (
	// mpcOpeningLength is the size of one commitment opening in the computation proof.
	mpcOpeningLength = 32
	// mpcSignatureLength is a compressed BN254 G1 point.
	mpcSignatureLength = bn254.SizeOfG1AffineCompressed
)

var _ SecurityVerifier = (*MPCVerifier)(nil)

// MPCParticipant is a committee member: its address, BLS public key on BN254
// G2 and a proof of possession of the matching secret key.
type MPCParticipant struct {
	Address           common.Address
	PublicKey         bn254.G2Affine
	ProofOfPossession bn254.G1Affine
}

// MPCEvidence is the JSON evidence of the MPC strategy.
//
// ThresholdSignature is signer_bitmap ‖ aggregate_signature where bit i
// (LSB first within each byte) selects participant i and the signature is
// a compressed G1 point. Commitments holds one commitment per selected
// signer in ascending participant order, and ComputationProof concatenates
// the matching 32 byte openings, with commitment_i = Keccak256(opening_i ‖ result).
// The aggregate signature covers MPCSigningMessage(result, commitments).
type MPCEvidence struct {
	Result             protocol.ByteSlice `json:"result"`
	Commitments        []protocol.Bytes32 `json:"commitments"`
	ComputationProof   protocol.ByteSlice `json:"computation_proof"`
	ThresholdSignature protocol.ByteSlice `json:"threshold_signature"`
}

// MPCVerifier accepts data when a committee's MPC result equals data, is
// signed by at least threshold participants with an aggregate BLS
// signature, and every signer contributed a distinct opened commitment
// that the aggregate signature covers.
type MPCVerifier struct {
	participants []MPCParticipant
	threshold    int
	g2Gen        bn254.G2Affine
}

func NewMPCVerifier(participants []MPCParticipant, threshold int) (*MPCVerifier, error) {
	_, _, _, g2 := bn254.Generators()

	seen := make(map[common.Address]struct{}, len(participants))
	for i, p := range participants {
		if p.Address == (common.Address{}) {
			return nil, fmt.Errorf("participant %d has a zero address", i)
		}
		if _, dup := seen[p.Address]; dup {
			return nil, fmt.Errorf("participant %s listed twice", p.Address)
		}
		seen[p.Address] = struct{}{}
		if p.PublicKey.IsInfinity() || !p.PublicKey.IsInSubGroup() {
			return nil, fmt.Errorf("participant %s has an invalid BLS public key", p.Address)
		}
		ok, err := verifyPossession(g2, p)
		if err != nil {
			return nil, fmt.Errorf("participant %s: %w", p.Address, err)
		}
		if !ok {
			return nil, fmt.Errorf("participant %s has an invalid proof of possession", p.Address)
		}
	}
	if err := checkThreshold(threshold, len(participants), "mpc participants"); err != nil {
		return nil, err
	}

	return &MPCVerifier{
		participants: participants,
		threshold:    threshold,
		g2Gen:        g2,
	}, nil
}

func verifyPossession(g2 bn254.G2Affine, p MPCParticipant) (bool, error) {
	if p.ProofOfPossession.IsInfinity() || !p.ProofOfPossession.IsInSubGroup() {
		return false, nil
	}
	pkBytes := p.PublicKey.Bytes()
	return pairingCheck(g2, p.ProofOfPossession, pkBytes[:], MPCPossessionDST, p.PublicKey)
}

// pairingCheck reports whether e(sig, g2) == e(H(msg), pk).
func pairingCheck(g2 bn254.G2Affine, sig bn254.G1Affine, msg, dst []byte, pk bn254.G2Affine) (bool, error) {
	h, err := bn254.HashToG1(msg, dst)
	if err != nil {
		return false, fmt.Errorf("failed to hash to curve: %w", err)
	}
	var negH bn254.G1Affine
	negH.Neg(&h)
	return bn254.PairingCheck([]bn254.G1Affine{sig, negH}, []bn254.G2Affine{g2, pk})
}

func (v *MPCVerifier) Kind() StrategyKind {
	return KindMPC
}

func (v *MPCVerifier) Verify(_ context.Context, data []byte, vc VerificationContext) (bool, error) {
	var ev MPCEvidence
	if err := json.Unmarshal(vc.Evidence, &ev); err != nil {
		return false, verificationErr("failed to decode mpc evidence: %v", err)
	}

	if !bytes.Equal(ev.Result, data) {
		return false, nil
	}

	signers, err := v.signers(ev.ThresholdSignature)
	if err != nil {
		return false, err
	}
	if len(signers) < v.threshold || len(ev.Commitments) != len(signers) {
		return false, nil
	}

	opened, err := v.verifyComputationProof(ev.Result, ev.Commitments, ev.ComputationProof)
	if err != nil || !opened {
		return false, err
	}

	return v.verifyThresholdSignature(MPCSigningMessage(ev.Result, ev.Commitments), signers, ev.ThresholdSignature)
}

func (v *MPCVerifier) bitmapLength() int {
	return (len(v.participants) + 7) / 8
}

// signers decodes the signer bitmap of a threshold signature into ascending participant indices.
func (v *MPCVerifier) signers(thresholdSig []byte) ([]int, error) {
	bitmapLen := v.bitmapLength()
	if len(thresholdSig) != bitmapLen+mpcSignatureLength {
		return nil, verificationErr("threshold signature must be %d bytes, got %d",
			bitmapLen+mpcSignatureLength, len(thresholdSig))
	}
	var out []int
	for i := 0; i < bitmapLen*8; i++ {
		if thresholdSig[i/8]&(1<<(i%8)) == 0 {
			continue
		}
		if i >= len(v.participants) {
			return nil, verificationErr("signer bitmap selects unknown participant %d", i)
		}
		out = append(out, i)
	}
	return out, nil
}

func (v *MPCVerifier) verifyThresholdSignature(msg []byte, signers []int, thresholdSig []byte) (bool, error) {
	var aggPK bn254.G2Jac
	for _, i := range signers {
		aggPK.AddMixed(&v.participants[i].PublicKey)
	}

	var sig bn254.G1Affine
	if _, err := sig.SetBytes(thresholdSig[v.bitmapLength():]); err != nil {
		return false, verificationErr("invalid aggregate signature: %v", err)
	}

	var pk bn254.G2Affine
	pk.FromJacobian(&aggPK)

	ok, err := pairingCheck(v.g2Gen, sig, msg, MPCSignatureDST, pk)
	if err != nil {
		return false, verificationErr("pairing check failed: %v", err)
	}
	return ok, nil
}

func (v *MPCVerifier) verifyComputationProof(result []byte, commitments []protocol.Bytes32, proof []byte) (bool, error) {
	if len(proof) != len(commitments)*mpcOpeningLength {
		return false, verificationErr("computation proof must hold %d openings of %d bytes, got %d bytes",
			len(commitments), mpcOpeningLength, len(proof))
	}

	distinct := make(map[protocol.Bytes32]struct{}, len(commitments))
	for i, c := range commitments {
		opening := proof[i*mpcOpeningLength : (i+1)*mpcOpeningLength]
		if protocol.Keccak256(opening, result) != c {
			return false, nil
		}
		if _, dup := distinct[c]; dup {
			return false, nil
		}
		distinct[c] = struct{}{}
	}
	return true, nil
}

// MPCSigningMessage is the message participants sign: result ‖ Keccak256(commitment_0 ‖ … ‖ commitment_n).
func MPCSigningMessage(result []byte, commitments []protocol.Bytes32) []byte {
	parts := make([][]byte, len(commitments))
	for i := range commitments {
		parts[i] = commitments[i][:]
	}
	digest := protocol.Keccak256(parts...)
	return append(bytes.Clone(result), digest[:]...)
}

// MPCPublicKey derives the G2 public key of a BLS secret key.
func MPCPublicKey(secret *big.Int) bn254.G2Affine {
	_, _, _, g2 := bn254.Generators()
	var pk bn254.G2Affine
	pk.ScalarMultiplication(&g2, secret)
	return pk
}

// MPCProofOfPossession signs the compressed public key of secret under MPCPossessionDST.
func MPCProofOfPossession(secret *big.Int) (bn254.G1Affine, error) {
	pk := MPCPublicKey(secret)
	pkBytes := pk.Bytes()
	return blsSign(secret, pkBytes[:], MPCPossessionDST)
}

// SignMPCResult produces one participant's BLS signature over the result and
// the commitments of all signers.
func SignMPCResult(secret *big.Int, result []byte, commitments []protocol.Bytes32) (bn254.G1Affine, error) {
	return blsSign(secret, MPCSigningMessage(result, commitments), MPCSignatureDST)
}

func blsSign(secret *big.Int, msg, dst []byte) (bn254.G1Affine, error) {
	h, err := bn254.HashToG1(msg, dst)
	if err != nil {
		return bn254.G1Affine{}, err
	}
	var sig bn254.G1Affine
	sig.ScalarMultiplication(&h, secret)
	return sig, nil
}

// EncodeMPCThresholdSignature aggregates the signatures of the participants at
// the given indices into signer_bitmap ‖ aggregate_signature.
func EncodeMPCThresholdSignature(numParticipants int, signers map[int]bn254.G1Affine) ([]byte, error) {
	bitmap := make([]byte, (numParticipants+7)/8)
	var agg bn254.G1Jac
	for idx, sig := range signers {
		if idx < 0 || idx >= numParticipants {
			return nil, fmt.Errorf("signer index %d out of range", idx)
		}
		bitmap[idx/8] |= 1 << (idx % 8)
		agg.AddMixed(&sig)
	}
	var aggAff bn254.G1Affine
	aggAff.FromJacobian(&agg)
	compressed := aggAff.Bytes()
	return append(bitmap, compressed[:]...), nil
}

// MPCCommitment commits to result with a 32 byte opening.
func MPCCommitment(opening [32]byte, result []byte) protocol.Bytes32 {
	return protocol.Keccak256(opening[:], result)
}
