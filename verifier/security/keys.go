package security

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func addressOf(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// parseAddresses converts configured hex strings into addresses.
func parseAddresses(values []string, what string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(values))
	for _, s := range values {
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("%s entry %q is not a hex address", what, s)
		}
		out = append(out, common.HexToAddress(s))
	}
	return out, nil
}
