package protocol

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// SignatureLength is r(32) ‖ s(32) ‖ v(1).
	SignatureLength = 65
	// SignatureRecordLength is a signature followed by an explicit recovery id byte.
	SignatureRecordLength = SignatureLength + 1
)

// curve order n for secp256k1.
var secpN = crypto.S256().Params().N

// NormalizeRecoveryID accepts both the 0/1 and the 27/28 conventions and returns 0 or 1.
func NormalizeRecoveryID(v byte) (byte, error) {
	switch v {
	case 0, 1:
		return v, nil
	case 27, 28:
		return v - 27, nil
	default:
		return 0, fmt.Errorf("invalid recovery id %d (expected 0/1/27/28)", v)
	}
}

// RecoverSigner recovers the address that produced the 64 byte r ‖ s
// signature over digest with the given recovery id.
func RecoverSigner(digest Bytes32, rs []byte, recoveryID byte) (common.Address, error) {
	if len(rs) != 64 {
		return common.Address{}, errors.New("r and s must be 64 bytes")
	}
	v, err := NormalizeRecoveryID(recoveryID)
	if err != nil {
		return common.Address{}, err
	}

	r := new(big.Int).SetBytes(rs[:32])
	s := new(big.Int).SetBytes(rs[32:])
	if r.Sign() == 0 || s.Sign() == 0 || r.Cmp(secpN) >= 0 || s.Cmp(secpN) >= 0 {
		return common.Address{}, errors.New("invalid r or s")
	}

	sig := make([]byte, SignatureLength)
	copy(sig, rs)
	sig[64] = v

	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// RecoverSignature recovers the signer of a 65 byte r ‖ s ‖ v signature.
func RecoverSignature(digest Bytes32, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(sig))
	}
	return RecoverSigner(digest, sig[:64], sig[64])
}

// Sign signs digest with priv and returns r ‖ s ‖ v with v in {0, 1}.
func Sign(digest Bytes32, priv *ecdsa.PrivateKey) ([]byte, error) {
	return crypto.Sign(digest[:], priv)
}

// SignatureRecord signs digest and appends the recovery id, producing one
// record of a concatenated signature evidence blob.
func SignatureRecord(digest Bytes32, priv *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := Sign(digest, priv)
	if err != nil {
		return nil, err
	}
	return append(sig, sig[64]), nil
}
