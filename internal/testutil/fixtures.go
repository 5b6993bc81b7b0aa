package testutil

import (
	"crypto/sha256"
	"encoding/hex"

	"tv-go/internal/encryption"
	"tv-go/internal/vault"
)

// NewTestVault returns an empty in-memory vault.
func NewTestVault() *vault.MemoryVault {
	return vault.NewMemoryVault("test-vault")
}

// NewTestEncryptor returns the deterministic XOR encryptor. It needs no key
// setup and unlocks with any passphrase.
func NewTestEncryptor() *encryption.TestEncryptor {
	return encryption.NewTestEncryptor()
}

// SHA256Hex returns the SHA-256 digest of data as a lowercase hex string,
// the form stored in FileVersion.ContentHash.
func SHA256Hex(data string) string {
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}
