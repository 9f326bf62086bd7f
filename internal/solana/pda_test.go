package solana

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsOnCurve(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)
	pk := kp.PublicKey()
	assert.True(t, IsOnCurve(pk[:]))
	assert.False(t, IsOnCurve([]byte{1, 2, 3}))
}

func TestFindProgramAddress(t *testing.T) {
	seeds := [][]byte{[]byte("metadata"), TokenProgramID[:]}
	addr, bump, err := FindProgramAddress(seeds, AssociatedTokenProgramID)
	require.NoError(t, err)
	assert.False(t, IsOnCurve(addr[:]))

	again, err := CreateProgramAddress(append(seeds, []byte{bump}), AssociatedTokenProgramID)
	require.NoError(t, err)
	assert.Equal(t, addr, again)

	addr2, bump2, err := FindProgramAddress(seeds, AssociatedTokenProgramID)
	require.NoError(t, err)
	assert.Equal(t, addr, addr2)
	assert.Equal(t, bump, bump2)
}

func TestCreateProgramAddressLimits(t *testing.T) {
	_, err := CreateProgramAddress([][]byte{bytes.Repeat([]byte{1}, 33)}, SystemProgramID)
	assert.ErrorIs(t, err, ErrMaxSeedLength)

	seeds := make([][]byte, 17)
	for i := range seeds {
		seeds[i] = []byte{byte(i)}
	}
	_, err = CreateProgramAddress(seeds, SystemProgramID)
	assert.ErrorIs(t, err, ErrTooManySeeds)
}

func TestFindAssociatedTokenAddress(t *testing.T) {
	wallet := MustPublicKey("9JdV5XY6sTESp9NUcx7uVPXG8J1ypPxdr5LNsCTgFtEi")
	mintA, err := NewKeypair()
	require.NoError(t, err)
	mintB, err := NewKeypair()
	require.NoError(t, err)

	ataA, err := FindAssociatedTokenAddress(wallet, mintA.PublicKey())
	require.NoError(t, err)
	ataB, err := FindAssociatedTokenAddress(wallet, mintB.PublicKey())
	require.NoError(t, err)
	assert.NotEqual(t, ataA, ataB)

	ix, ata, err := CreateAssociatedTokenAccount(wallet, wallet, mintA.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, ataA, ata)
	assert.Equal(t, AssociatedTokenProgramID, ix.ProgramID)
	assert.Len(t, ix.Accounts, 6)
	assert.Empty(t, ix.Data)
}
