package solana

import (
	"crypto/ed25519"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicKeyRoundTrip(t *testing.T) {
	pk, err := PublicKeyFromBase58("9JdV5XY6sTESp9NUcx7uVPXG8J1ypPxdr5LNsCTgFtEi")
	require.NoError(t, err)
	assert.Equal(t, "9JdV5XY6sTESp9NUcx7uVPXG8J1ypPxdr5LNsCTgFtEi", pk.String())
	assert.False(t, pk.IsZero())

	assert.True(t, SystemProgramID.IsZero())
	assert.Equal(t, "11111111111111111111111111111111", SystemProgramID.String())
}

func TestPublicKeyFromBase58Errors(t *testing.T) {
	for _, in := range []string{"", "0OIl", "abc"} {
		_, err := PublicKeyFromBase58(in)
		assert.ErrorIs(t, err, ErrInvalidPublicKey, in)
	}
}

func TestPublicKeyJSON(t *testing.T) {
	type wrapper struct {
		Key PublicKey `json:"key"`
	}
	in := wrapper{Key: TokenProgramID}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"}`, string(b))

	var out wrapper
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}

func TestKeypairFromSecretFormats(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	want, err := KeypairFromSeed(seed)
	require.NoError(t, err)

	full := want.Secret()
	ints := make([]int, len(full))
	for i, b := range full {
		ints[i] = int(b)
	}
	arr, err := json.Marshal(ints)
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
	}{
		{"json array", string(arr)},
		{"json array with whitespace", "  " + string(arr) + "\n"},
		{"base58 secret key", base58.Encode(full)},
		{"base58 seed", base58.Encode(seed)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kp, err := KeypairFromSecret(tt.secret)
			require.NoError(t, err)
			assert.Equal(t, want.PublicKey(), kp.PublicKey())
		})
	}
}

func TestKeypairFromSecretRejects(t *testing.T) {
	good, err := NewKeypair()
	require.NoError(t, err)
	tampered := good.Secret()
	tampered[40] ^= 0xff

	tests := []struct {
		name   string
		secret string
	}{
		{"empty", ""},
		{"bad json", "[1,2,"},
		{"out of range", "[" + strings.Repeat("300,", 31) + "300]"},
		{"wrong length", base58.Encode([]byte{1, 2, 3})},
		{"mismatched public half", base58.Encode(tampered)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := KeypairFromSecret(tt.secret)
			assert.ErrorIs(t, err, ErrInvalidSecret)
		})
	}
}

func TestKeypairSign(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)
	msg := []byte("hello")
	sig := kp.Sign(msg)
	pk := kp.PublicKey()
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pk[:]), msg, sig[:]))

	var parsed Signature
	require.NoError(t, parsed.UnmarshalText([]byte(sig.String())))
	assert.Equal(t, sig, parsed)
}
