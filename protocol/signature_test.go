package protocol

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestRecoverSignature(t *testing.T) {
	key := mustKey(t)
	digest := Keccak256([]byte("hello"))

	sig, err := Sign(digest, key)
	require.NoError(t, err)
	require.Len(t, sig, SignatureLength)

	signer, err := RecoverSignature(digest, sig)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)

	sig[64] += 27
	signer, err = RecoverSignature(digest, sig)
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)
}

func TestRecoverSigner_Errors(t *testing.T) {
	key := mustKey(t)
	digest := Keccak256([]byte("hello"))
	sig, err := Sign(digest, key)
	require.NoError(t, err)

	_, err = RecoverSigner(digest, sig[:63], 0)
	require.Error(t, err)

	_, err = RecoverSigner(digest, sig[:64], 5)
	require.ErrorContains(t, err, "invalid recovery id")

	_, err = RecoverSigner(digest, make([]byte, 64), 0)
	require.ErrorContains(t, err, "invalid r or s")

	_, err = RecoverSignature(digest, sig[:64])
	require.ErrorContains(t, err, "65 bytes")
}

func TestSignatureRecord(t *testing.T) {
	key := mustKey(t)
	digest := Keccak256([]byte("record"))

	record, err := SignatureRecord(digest, key)
	require.NoError(t, err)
	require.Len(t, record, SignatureRecordLength)
	require.Equal(t, record[64], record[65])

	signer, err := RecoverSigner(digest, record[:64], record[65])
	require.NoError(t, err)
	require.Equal(t, crypto.PubkeyToAddress(key.PublicKey), signer)
}
