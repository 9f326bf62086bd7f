package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32
)

var (
	ErrMaxSeedLength = errors.New("seed exceeds 32 bytes")
	ErrTooManySeeds  = errors.New("more than 16 seeds")
	ErrOnCurve       = errors.New("derived address is on the ed25519 curve")
	ErrNoViableBump  = errors.New("unable to find a viable program address bump")
	pdaMarker        = []byte("ProgramDerivedAddress")
)

// IsOnCurve reports whether b decodes to a point on the ed25519 curve.
func IsOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}

// CreateProgramAddress derives an address from seeds. Addresses that land on
// the curve are rejected since they could have a private key.
func CreateProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, error) {
	if len(seeds) > maxSeeds {
		return PublicKey{}, ErrTooManySeeds
	}
	h := sha256.New()
	for _, s := range seeds {
		if len(s) > maxSeedLength {
			return PublicKey{}, ErrMaxSeedLength
		}
		h.Write(s)
	}
	h.Write(program[:])
	h.Write(pdaMarker)

	var pk PublicKey
	copy(pk[:], h.Sum(nil))
	if IsOnCurve(pk[:]) {
		return PublicKey{}, ErrOnCurve
	}
	return pk, nil
}

// FindProgramAddress searches bumps from 255 down for the first off-curve
// address.
func FindProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		pk, err := CreateProgramAddress(withBump, program)
		if err == nil {
			return pk, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return PublicKey{}, 0, err
		}
	}
	return PublicKey{}, 0, ErrNoViableBump
}

// FindAssociatedTokenAddress returns the associated token account holding
// mint for wallet.
func FindAssociatedTokenAddress(wallet, mint PublicKey) (PublicKey, error) {
	pk, _, err := FindProgramAddress(
		[][]byte{wallet[:], TokenProgramID[:], mint[:]},
		AssociatedTokenProgramID,
	)
	if err != nil {
		return PublicKey{}, fmt.Errorf("deriving associated token address: %w", err)
	}
	return pk, nil
}
