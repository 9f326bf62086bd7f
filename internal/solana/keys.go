package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

const (
	PublicKeyLength = 32
	SignatureLength = 64
)

var (
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrInvalidSecret    = errors.New("invalid secret key")
)

// PublicKey is an ed25519 public key or program-derived address.
type PublicKey [PublicKeyLength]byte

// PublicKeyFromBase58 parses a base58 encoded address.
func PublicKeyFromBase58(s string) (PublicKey, error) {
	var pk PublicKey
	b, err := base58.Decode(strings.TrimSpace(s))
	if err != nil {
		return pk, fmt.Errorf("%w: %q: %v", ErrInvalidPublicKey, s, err)
	}
	if len(b) != PublicKeyLength {
		return pk, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidPublicKey, s, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// MustPublicKey is PublicKeyFromBase58 for compile-time constants.
func MustPublicKey(s string) PublicKey {
	pk, err := PublicKeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

func (p PublicKey) String() string { return base58.Encode(p[:]) }

func (p PublicKey) Bytes() []byte { return p[:] }

func (p PublicKey) IsZero() bool { return p == PublicKey{} }

func (p PublicKey) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *PublicKey) UnmarshalText(text []byte) error {
	pk, err := PublicKeyFromBase58(string(text))
	if err != nil {
		return err
	}
	*p = pk
	return nil
}

// Signature is an ed25519 transaction signature.
type Signature [SignatureLength]byte

func (s Signature) String() string { return base58.Encode(s[:]) }

func (s Signature) IsZero() bool { return s == Signature{} }

func (s Signature) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Signature) UnmarshalText(text []byte) error {
	b, err := base58.Decode(string(text))
	if err != nil {
		return fmt.Errorf("invalid signature %q: %w", text, err)
	}
	if len(b) != SignatureLength {
		return fmt.Errorf("invalid signature %q: %d bytes", text, len(b))
	}
	copy(s[:], b)
	return nil
}

// Keypair is an ed25519 signing key.
type Keypair struct {
	priv ed25519.PrivateKey
}

// NewKeypair generates a random keypair.
func NewKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromSeed derives a keypair from a 32 byte seed.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed must be %d bytes", ErrInvalidSecret, ed25519.SeedSize)
	}
	return &Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// KeypairFromSecret parses a secret in solana-keygen JSON array form
// ("[12,34,...]") or as a base58 string. Both 64 byte secret keys and
// 32 byte seeds are accepted.
func KeypairFromSecret(secret string) (*Keypair, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidSecret)
	}
	var raw []byte
	if strings.HasPrefix(secret, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(secret), &ints); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("%w: byte %d out of range", ErrInvalidSecret, i)
			}
			raw[i] = byte(v)
		}
	} else {
		b, err := base58.Decode(secret)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
		}
		raw = b
	}

	switch len(raw) {
	case ed25519.SeedSize:
		return KeypairFromSeed(raw)
	case ed25519.PrivateKeySize:
		kp, err := KeypairFromSeed(raw[:ed25519.SeedSize])
		if err != nil {
			return nil, err
		}
		if string(kp.priv[ed25519.SeedSize:]) != string(raw[ed25519.SeedSize:]) {
			return nil, fmt.Errorf("%w: public half does not match seed", ErrInvalidSecret)
		}
		return kp, nil
	default:
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidSecret, len(raw))
	}
}

func (k *Keypair) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], k.priv[ed25519.SeedSize:])
	return pk
}

// Sign signs message with the keypair.
func (k *Keypair) Sign(message []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(k.priv, message))
	return sig
}

// Secret returns the 64 byte secret key.
func (k *Keypair) Secret() []byte {
	out := make([]byte, len(k.priv))
	copy(out, k.priv)
	return out
}
