package solana

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Well-known program addresses.
const (
	SystemProgram          = "11111111111111111111111111111111"
	TokenProgram           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	AssociatedTokenProgram = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	ComputeBudgetProgram   = "ComputeBudget111111111111111111111111111111"
	WrappedSOLMint         = "So11111111111111111111111111111111111111112"
)

// PublicKey is a 32-byte Solana account address.
type PublicKey [32]byte

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	decoded, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("decode pubkey %q: %w", s, err)
	}
	if len(decoded) != 32 {
		return pk, fmt.Errorf("pubkey %q: expected 32 bytes, got %d", s, len(decoded))
	}
	copy(pk[:], decoded)
	return pk, nil
}

// MustPublicKey parses a base58 address and panics on failure.
// Only for package-level constants known to be valid.
func MustPublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 encoding.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// IsZero reports whether the key is all zeroes.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// FindProgramAddress derives a Program Derived Address for the given
// seeds, returning the address and the bump seed that took it off the
// ed25519 curve.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, byte, error) {
	for bump := byte(255); bump > 0; bump-- {
		addr, err := createProgramAddress(seeds, bump, programID)
		if err != nil {
			continue
		}
		return addr, bump, nil
	}
	return PublicKey{}, 0, fmt.Errorf("no viable bump seed found")
}

// createProgramAddress hashes seeds+bump+programID and rejects on-curve
// results, mirroring the Solana runtime derivation.
func createProgramAddress(seeds [][]byte, bump byte, programID PublicKey) (PublicKey, error) {
	data := make([]byte, 0, 128)
	for _, seed := range seeds {
		if len(seed) > 32 {
			return PublicKey{}, fmt.Errorf("seed exceeds 32 bytes")
		}
		data = append(data, seed...)
	}
	data = append(data, bump)
	data = append(data, programID[:]...)
	data = append(data, []byte("ProgramDerivedAddress")...)

	hash := sha256.Sum256(data)

	if isOnCurve(hash[:]) {
		return PublicKey{}, fmt.Errorf("derived address is on curve")
	}

	var pk PublicKey
	copy(pk[:], hash[:])
	return pk, nil
}

// AssociatedTokenAddress derives the associated token account for a
// wallet and mint.
func AssociatedTokenAddress(wallet, mint PublicKey) (PublicKey, error) {
	tokenProgram := MustPublicKey(TokenProgram)
	ataProgram := MustPublicKey(AssociatedTokenProgram)

	seeds := [][]byte{wallet[:], tokenProgram[:], mint[:]}
	addr, _, err := FindProgramAddress(seeds, ataProgram)
	if err != nil {
		return PublicKey{}, fmt.Errorf("derive associated token address: %w", err)
	}
	return addr, nil
}

func isOnCurve(point []byte) bool {
	if len(point) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(point)
	return err == nil
}
