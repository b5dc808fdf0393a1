package solana

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mr-tron/base58"
)

// Keypair holds an ed25519 signing key and its public address.
type Keypair struct {
	priv ed25519.PrivateKey
	pub  PublicKey
}

// NewKeypairFromBytes builds a Keypair from a 64-byte Solana secret key
// (32-byte seed followed by the 32-byte public key).
func NewKeypairFromBytes(secret []byte) (*Keypair, error) {
	if len(secret) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("secret key: expected %d bytes, got %d", ed25519.PrivateKeySize, len(secret))
	}

	priv := ed25519.PrivateKey(make([]byte, ed25519.PrivateKeySize))
	copy(priv, secret)

	var pub PublicKey
	copy(pub[:], priv.Public().(ed25519.PublicKey))

	// The trailing half of the secret must match the derived pubkey,
	// otherwise the file is corrupt or hand-edited.
	for i := 0; i < 32; i++ {
		if secret[32+i] != pub[i] {
			return nil, fmt.Errorf("secret key: embedded public key mismatch")
		}
	}

	return &Keypair{priv: priv, pub: pub}, nil
}

// NewKeypairFromBase58 builds a Keypair from a base58-encoded 64-byte
// secret key.
func NewKeypairFromBase58(s string) (*Keypair, error) {
	decoded, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	return NewKeypairFromBytes(decoded)
}

// LoadKeypairFile reads a Solana CLI keypair file (a JSON array of 64
// byte values).
func LoadKeypairFile(path string) (*Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair file: %w", err)
	}

	// The file is a JSON array of byte values, not a base64 string.
	var raw []int
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse keypair file %s: %w", path, err)
	}

	secret := make([]byte, len(raw))
	for i, v := range raw {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("keypair file %s: value %d out of byte range", path, v)
		}
		secret[i] = byte(v)
	}

	return NewKeypairFromBytes(secret)
}

// GenerateKeypair creates a fresh random keypair.
func GenerateKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return NewKeypairFromBytes(priv)
}

// PublicKey returns the signer address.
func (k *Keypair) PublicKey() PublicKey {
	return k.pub
}

// Sign signs a serialized transaction message.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.priv, message)
}
