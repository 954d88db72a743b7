package keys

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestLoad_HexKey(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	raw := hex.EncodeToString(crypto.FromECDSA(key))

	for _, input := range []string{raw, "0x" + raw, " 0x" + raw + "\n"} {
		loaded, err := Load(Source{HexKey: input})
		require.NoError(t, err)
		require.Equal(t, Address(key), Address(loaded))
	}
}

func TestLoad_InvalidHexKey(t *testing.T) {
	_, err := Load(Source{HexKey: "0xnothex"})
	require.ErrorContains(t, err, "invalid hex private key")
}

func TestLoad_NoKey(t *testing.T) {
	_, err := Load(Source{})
	require.ErrorIs(t, err, ErrNoKey)
}

func writeKeystore(t *testing.T, password string) (string, *keystore.Key) {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	key := &keystore.Key{
		Id:         uuid.New(),
		Address:    crypto.PubkeyToAddress(priv.PublicKey),
		PrivateKey: priv,
	}
	keyJSON, err := keystore.EncryptKey(key, password, keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "dvn.json")
	require.NoError(t, os.WriteFile(path, keyJSON, 0o600))
	return path, key
}

func TestLoad_Keystore(t *testing.T) {
	path, key := writeKeystore(t, "correct horse")

	loaded, err := Load(Source{KeystoreFile: path, Password: "correct horse"})
	require.NoError(t, err)
	require.Equal(t, key.Address, Address(loaded))

	_, err = Load(Source{KeystoreFile: path, Password: "wrong"})
	require.ErrorContains(t, err, "failed to decrypt keystore file")

	_, err = Load(Source{KeystoreFile: filepath.Join(t.TempDir(), "missing.json")})
	require.ErrorContains(t, err, "failed to read keystore file")
}

func TestLoad_HexKeyTakesPrecedence(t *testing.T) {
	path, _ := writeKeystore(t, "pw")
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	loaded, err := Load(Source{HexKey: hex.EncodeToString(crypto.FromECDSA(key)), KeystoreFile: path, Password: "pw"})
	require.NoError(t, err)
	require.Equal(t, Address(key), Address(loaded))
}
