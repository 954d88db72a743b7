// Package keys loads the key the DVN signs destination transactions with.
package keys

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNoKey is returned when neither a hex key nor a keystore file is configured.
var ErrNoKey = errors.New("no private key configured")

// Source says where the signing key comes from. HexKey wins over KeystoreFile.
type Source struct {
	// HexKey is a hex encoded secp256k1 private key, with or without 0x prefix.
	HexKey string
	// KeystoreFile is an encrypted JSON key file in the go-ethereum keystore format.
	KeystoreFile string
	// Password decrypts KeystoreFile.
	Password string
}

// Load returns the private key described by src.
func Load(src Source) (*ecdsa.PrivateKey, error) {
	if src.HexKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(src.HexKey), "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid hex private key: %w", err)
		}
		return key, nil
	}
	if src.KeystoreFile != "" {
		return loadKeystore(src.KeystoreFile, src.Password)
	}
	return nil, ErrNoKey
}

func loadKeystore(path, password string) (*ecdsa.PrivateKey, error) {
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore file: %w", err)
	}
	key, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt keystore file: %w", err)
	}
	return key.PrivateKey, nil
}

// Address is the Ethereum address of key.
func Address(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
