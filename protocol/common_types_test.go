package protocol

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func TestBytes32_RoundTrip(t *testing.T) {
	original, err := NewBytes32FromString("0x0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20")
	require.NoError(t, err)

	parsed, err := NewBytes32FromString(original.String())
	require.NoError(t, err)
	require.Equal(t, original, parsed)

	jsonBytes, err := json.Marshal(original)
	require.NoError(t, err)
	var unmarshaled Bytes32
	require.NoError(t, json.Unmarshal(jsonBytes, &unmarshaled))
	require.Equal(t, original, unmarshaled)
}

func TestNewBytes32FromString_Errors(t *testing.T) {
	_, err := NewBytes32FromString("0102")
	require.ErrorContains(t, err, "0x")

	_, err = NewBytes32FromString("0x" + string(make([]byte, 66)))
	require.ErrorContains(t, err, "at most 32 bytes")

	_, err = NewBytes32FromString("0xzz")
	require.ErrorContains(t, err, "failed to decode hex")
}

func TestBytes32_AddressPadding(t *testing.T) {
	addr := common.HexToAddress("0x1111111111111111111111111111111111111111")

	b := AddressToBytes32(addr)
	require.Equal(t, "0x0000000000000000000000001111111111111111111111111111111111111111", b.String())
	require.Equal(t, addr, b.ToAddress())

	short, err := NewBytes32FromString(addr.Hex())
	require.NoError(t, err)
	require.Equal(t, b, short)
}

func TestByteSlice_JSON(t *testing.T) {
	var empty ByteSlice
	out, err := json.Marshal(empty)
	require.NoError(t, err)
	require.Equal(t, "null", string(out))

	out, err = json.Marshal(ByteSlice{0xde, 0xad})
	require.NoError(t, err)
	require.Equal(t, `"0xdead"`, string(out))

	var decoded ByteSlice
	require.NoError(t, json.Unmarshal([]byte(`"0xbeef"`), &decoded))
	require.Equal(t, ByteSlice{0xbe, 0xef}, decoded)

	require.NoError(t, json.Unmarshal([]byte(`"0x"`), &decoded))
	require.Equal(t, ByteSlice{}, decoded)

	require.Error(t, json.Unmarshal([]byte(`"0xnothex"`), &decoded))
}
