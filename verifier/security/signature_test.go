package security

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

func signatureEvidence(t *testing.T, data []byte, keys ...*ecdsa.PrivateKey) []byte {
	t.Helper()
	var out []byte
	for _, key := range keys {
		record, err := protocol.SignatureRecord(protocol.Keccak256(data), key)
		require.NoError(t, err)
		out = append(out, record...)
	}
	return out
}

func TestNewSignatureVerifier_RejectsInvalidConfig(t *testing.T) {
	_, addrs := newKeys(t, 3)

	_, err := NewSignatureVerifier(addrs, 4)
	require.ErrorContains(t, err, "exceeds")

	_, err = NewSignatureVerifier(addrs, 0)
	require.ErrorContains(t, err, "at least 1")

	_, err = NewSignatureVerifier(nil, 1)
	require.ErrorContains(t, err, "must not be empty")

	// duplicates collapse, so 3 entries of 2 distinct signers cannot carry threshold 3
	_, err = NewSignatureVerifier([]common.Address{addrs[0], addrs[0], addrs[1]}, 3)
	require.ErrorContains(t, err, "exceeds")
}

func TestSignatureVerifier_Quorum(t *testing.T) {
	keys, addrs := newKeys(t, 3)
	a, b := keys[0], keys[1]
	data := []byte("hello")

	v, err := NewSignatureVerifier(addrs, 2)
	require.NoError(t, err)
	require.Equal(t, KindSignature, v.Kind())

	tests := []struct {
		name     string
		evidence []byte
		want     bool
	}{
		{"same signer twice counts once", signatureEvidence(t, data, a, a), false},
		{"two distinct signers", signatureEvidence(t, data, a, b), true},
		{"all signers", signatureEvidence(t, data, keys...), true},
		{"single signer", signatureEvidence(t, data, b), false},
		{"empty evidence", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := v.Verify(context.Background(), data, VerificationContext{Evidence: tt.evidence})
			require.NoError(t, err)
			require.Equal(t, tt.want, ok)
		})
	}
}

func TestSignatureVerifier_IgnoresOutsiders(t *testing.T) {
	keys, addrs := newKeys(t, 2)
	outsiders, _ := newKeys(t, 2)
	data := []byte("hello")

	v, err := NewSignatureVerifier(addrs, 2)
	require.NoError(t, err)

	ok, err := v.Verify(context.Background(), data, VerificationContext{
		Evidence: signatureEvidence(t, data, keys[0], outsiders[0], outsiders[1]),
	})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSignatureVerifier_SignatureOverOtherData(t *testing.T) {
	keys, addrs := newKeys(t, 1)
	v, err := NewSignatureVerifier(addrs, 1)
	require.NoError(t, err)

	ok, err := v.Verify(context.Background(), []byte("hello"), VerificationContext{
		Evidence: signatureEvidence(t, []byte("tampered"), keys[0]),
	})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSignatureVerifier_AcceptsLegacyRecoveryID(t *testing.T) {
	keys, addrs := newKeys(t, 1)
	data := []byte("hello")
	v, err := NewSignatureVerifier(addrs, 1)
	require.NoError(t, err)

	evidence := signatureEvidence(t, data, keys[0])
	evidence[protocol.SignatureLength] += 27

	ok, err := v.Verify(context.Background(), data, VerificationContext{Evidence: evidence})
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSignatureVerifier_FailsClosedOnMalformedEvidence(t *testing.T) {
	keys, addrs := newKeys(t, 1)
	data := []byte("hello")
	v, err := NewSignatureVerifier(addrs, 1)
	require.NoError(t, err)

	valid := signatureEvidence(t, data, keys[0])

	t.Run("truncated record", func(t *testing.T) {
		ok, err := v.Verify(context.Background(), data, VerificationContext{Evidence: valid[:65]})
		require.ErrorIs(t, err, protocol.ErrVerification)
		require.False(t, ok)
	})

	t.Run("valid record plus trailing bytes", func(t *testing.T) {
		ok, err := v.Verify(context.Background(), data, VerificationContext{Evidence: append(bytes.Clone(valid), 0x01)})
		require.ErrorIs(t, err, protocol.ErrVerification)
		require.False(t, ok)
	})

	t.Run("invalid recovery id", func(t *testing.T) {
		bad := bytes.Clone(valid)
		bad[protocol.SignatureLength] = 9
		ok, err := v.Verify(context.Background(), data, VerificationContext{Evidence: bad})
		require.ErrorIs(t, err, protocol.ErrVerification)
		require.False(t, ok)
	})

	t.Run("zero signature", func(t *testing.T) {
		ok, err := v.Verify(context.Background(), data, VerificationContext{Evidence: make([]byte, protocol.SignatureRecordLength)})
		require.ErrorIs(t, err, protocol.ErrVerification)
		require.False(t, ok)
	})
}
