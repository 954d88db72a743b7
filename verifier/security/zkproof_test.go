package security

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/frontend/cs/scs"
	"github.com/consensys/gnark/test/unsafekzg"
	"github.com/stretchr/testify/require"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

// sumCircuit proves knowledge of A and B summing to the public Digest.
type sumCircuit struct {
	Digest frontend.Variable `gnark:",public"`
	A      frontend.Variable
	B      frontend.Variable
}

func (c *sumCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.Digest, api.Add(c.A, c.B))
	return nil
}

type zkFixture struct {
	vk       []byte
	evidence []byte
}

func sumWitness(t *testing.T, data []byte) witness.Witness {
	t.Helper()
	field := ecc.BN254.ScalarField()
	digest := DataDigestInput(data, field)
	b := big.NewInt(5)
	a := new(big.Int).Sub(digest, b)
	a.Mod(a, field)

	w, err := frontend.NewWitness(&sumCircuit{Digest: digest, A: a, B: b}, field)
	require.NoError(t, err)
	return w
}

func serialize(t *testing.T, w io.WriterTo) []byte {
	t.Helper()
	var buf bytes.Buffer
	_, err := w.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func buildFixture(t *testing.T, vk, proof io.WriterTo, full witness.Witness) zkFixture {
	t.Helper()
	public, err := full.Public()
	require.NoError(t, err)
	publicBytes, err := public.MarshalBinary()
	require.NoError(t, err)
	return zkFixture{
		vk:       serialize(t, vk),
		evidence: EncodeZKEvidence(serialize(t, proof), publicBytes),
	}
}

func groth16Fixture(t *testing.T, data []byte) zkFixture {
	t.Helper()
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &sumCircuit{})
	require.NoError(t, err)
	pk, vk, err := groth16.Setup(ccs)
	require.NoError(t, err)

	full := sumWitness(t, data)
	proof, err := groth16.Prove(ccs, pk, full)
	require.NoError(t, err)

	return buildFixture(t, vk, proof, full)
}

func plonkFixture(t *testing.T, data []byte) zkFixture {
	t.Helper()
	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), scs.NewBuilder, &sumCircuit{})
	require.NoError(t, err)
	srs, srsLagrange, err := unsafekzg.NewSRS(ccs)
	require.NoError(t, err)
	pk, vk, err := plonk.Setup(ccs, srs, srsLagrange)
	require.NoError(t, err)

	full := sumWitness(t, data)
	proof, err := plonk.Prove(ccs, pk, full)
	require.NoError(t, err)

	return buildFixture(t, vk, proof, full)
}

func TestZKProofVerifier_Gnark(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping proof generation in short mode")
	}
	data := []byte("hello")

	fixtures := map[ProofSystem]func(*testing.T, []byte) zkFixture{
		ProofSystemGroth16: groth16Fixture,
		ProofSystemPlonk:   plonkFixture,
	}
	for system, build := range fixtures {
		t.Run(string(system), func(t *testing.T) {
			f := build(t, data)

			v, err := NewZKProofVerifier(system, f.vk, DefaultProofBackends(), true)
			require.NoError(t, err)
			require.Equal(t, KindZKProof, v.Kind())
			require.Equal(t, system, v.ProofSystem())

			ok, err := v.Verify(context.Background(), data, VerificationContext{Evidence: f.evidence})
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = v.Verify(context.Background(), []byte("other"), VerificationContext{Evidence: f.evidence})
			require.NoError(t, err)
			require.False(t, ok, "proof is bound to a different message")

			unbound, err := NewZKProofVerifier(system, f.vk, DefaultProofBackends(), false)
			require.NoError(t, err)
			ok, err = unbound.Verify(context.Background(), []byte("other"), VerificationContext{Evidence: f.evidence})
			require.NoError(t, err)
			require.True(t, ok)

			proof, public, err := SplitZKEvidence(f.evidence)
			require.NoError(t, err)
			tampered := bytes.Clone(public)
			tampered[len(tampered)-1] ^= 0x01
			ok, err = v.Verify(context.Background(), data, VerificationContext{Evidence: EncodeZKEvidence(proof, tampered)})
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

// stubChecker accepts a proof equal to its expected bytes.
type stubChecker struct {
	expected []byte
	inputs   []*big.Int
	err      error
}

func (s stubChecker) Verify(proof, _ []byte) (bool, []*big.Int, error) {
	if s.err != nil {
		return false, nil, s.err
	}
	return bytes.Equal(proof, s.expected), s.inputs, nil
}

func (s stubChecker) ScalarField() *big.Int {
	return ecc.BN254.ScalarField()
}

func stubBackends(c stubChecker) ProofBackends {
	return ProofBackends{
		ProofSystemGroth16: func([]byte) (ProofChecker, error) { return c, nil },
	}
}

func TestZKProofVerifier_Binding(t *testing.T) {
	data := []byte("hello")
	digest := DataDigestInput(data, ecc.BN254.ScalarField())
	proof := []byte("proof")

	tests := []struct {
		name    string
		checker stubChecker
		bind    bool
		proof   []byte
		want    bool
		wantErr bool
	}{
		{"bound digest", stubChecker{expected: proof, inputs: []*big.Int{digest}}, true, proof, true, false},
		{"wrong digest", stubChecker{expected: proof, inputs: []*big.Int{big.NewInt(1)}}, true, proof, false, false},
		{"wrong digest unbound", stubChecker{expected: proof, inputs: []*big.Int{big.NewInt(1)}}, false, proof, true, false},
		{"invalid proof", stubChecker{expected: proof, inputs: []*big.Int{digest}}, true, []byte("forged"), false, false},
		{"no public inputs", stubChecker{expected: proof}, true, proof, false, true},
		{"checker error", stubChecker{err: errors.New("bad encoding")}, true, proof, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewZKProofVerifier(ProofSystemGroth16, []byte{0x01}, stubBackends(tt.checker), tt.bind)
			require.NoError(t, err)

			ok, err := v.Verify(context.Background(), data, VerificationContext{Evidence: EncodeZKEvidence(tt.proof, nil)})
			if tt.wantErr {
				require.ErrorIs(t, err, protocol.ErrVerification)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.want, ok)
		})
	}
}

func TestNewZKProofVerifier_UnsupportedSystem(t *testing.T) {
	_, err := NewZKProofVerifier(ProofSystem("stark"), []byte{0x01}, DefaultProofBackends(), true)
	require.ErrorIs(t, err, protocol.ErrUnsupportedProofSystem)
	require.ErrorIs(t, err, protocol.ErrVerification)

	_, err = NewZKProofVerifier(ProofSystemGroth16, nil, DefaultProofBackends(), true)
	require.ErrorContains(t, err, "must not be empty")

	_, err = NewZKProofVerifier(ProofSystemGroth16, []byte{0x01, 0x02}, DefaultProofBackends(), true)
	require.Error(t, err)
}

func TestSplitZKEvidence(t *testing.T) {
	proof, public, err := SplitZKEvidence(EncodeZKEvidence([]byte{1, 2, 3}, []byte{4, 5}))
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, proof)
	require.Equal(t, []byte{4, 5}, public)

	_, _, err = SplitZKEvidence([]byte{0, 0})
	require.ErrorIs(t, err, protocol.ErrVerification)

	_, _, err = SplitZKEvidence([]byte{0, 0, 0, 9, 1, 2})
	require.ErrorIs(t, err, protocol.ErrVerification)
}

func TestParseProofSystem(t *testing.T) {
	require.Equal(t, ProofSystemGroth16, ParseProofSystem(" Groth16 "))
	require.Equal(t, ProofSystemPlonk, ParseProofSystem("PLONK"))
}
