// Package keys implements the asymmetric identity used to authenticate with a
// threaddb service: an Ed25519 keypair whose private half signs server
// challenges and whose public half is shared as a multibase string.
package keys

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/multiformats/go-multibase"
)

// Identity can prove ownership of a public key by signing challenge bytes.
type Identity interface {
	// Sign returns a signature over data.
	Sign(data []byte) []byte
	// Public returns the verifying half.
	Public() PublicKey
	// Bytes returns the raw key material.
	Bytes() []byte
}

// PrivateKey is an Ed25519 signing key. It implements Identity.
type PrivateKey struct {
	key ed25519.PrivateKey
}

// PublicKey is the verifying half of a PrivateKey.
type PublicKey struct {
	key ed25519.PublicKey
}

// NewPrivateKey generates a fresh keypair from crypto/rand.
func NewPrivateKey() (PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("keys: generating keypair: %w", err)
	}
	return PrivateKey{key: priv}, nil
}

// PrivateKeyFromSeed derives the keypair for a 32-byte seed. The derivation
// is deterministic, so a stored seed recovers the same identity.
func PrivateKeyFromSeed(seed []byte) (PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return PrivateKey{}, fmt.Errorf("keys: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return PrivateKey{key: ed25519.NewKeyFromSeed(seed)}, nil
}

// PrivateKeyFromString parses the multibase form produced by String.
func PrivateKeyFromString(s string) (PrivateKey, error) {
	_, data, err := multibase.Decode(s)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("keys: decoding multibase: %w", err)
	}
	if len(data) != ed25519.PrivateKeySize {
		return PrivateKey{}, fmt.Errorf("keys: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(data))
	}
	return PrivateKey{key: ed25519.PrivateKey(data)}, nil
}

// Sign returns the Ed25519 signature over data. The signature is
// deterministic per key/data pair.
func (p PrivateKey) Sign(data []byte) []byte {
	return ed25519.Sign(p.key, data)
}

// Public returns the verifying half.
func (p PrivateKey) Public() PublicKey {
	return PublicKey{key: p.key.Public().(ed25519.PublicKey)}
}

// Bytes returns the raw private key material.
func (p PrivateKey) Bytes() []byte { return append([]byte(nil), p.key...) }

// String returns the base32 multibase form of the raw key bytes.
func (p PrivateKey) String() string {
	s, err := multibase.Encode(multibase.Base32, p.key)
	if err != nil {
		return ""
	}
	return s
}

// PublicKeyFromString parses the multibase form produced by String.
func PublicKeyFromString(s string) (PublicKey, error) {
	_, data, err := multibase.Decode(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("keys: decoding multibase: %w", err)
	}
	if len(data) != ed25519.PublicKeySize {
		return PublicKey{}, fmt.Errorf("keys: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(data))
	}
	return PublicKey{key: ed25519.PublicKey(data)}, nil
}

// Verify reports whether signature is a valid signature over data by the
// matching private key.
func (p PublicKey) Verify(data, signature []byte) bool {
	if len(p.key) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(p.key, data, signature)
}

// Bytes returns the raw public key material.
func (p PublicKey) Bytes() []byte { return append([]byte(nil), p.key...) }

// String returns the base32 multibase form of the raw key bytes.
func (p PublicKey) String() string {
	s, err := multibase.Encode(multibase.Base32, p.key)
	if err != nil {
		return ""
	}
	return s
}
