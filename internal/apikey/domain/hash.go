package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SecretPrefix marks school API key secrets: sk_school_<key id>_<random hex>.
const SecretPrefix = "sk_school_"

const secretBytes = 32

// NewSecret mints a plaintext secret for keyID and the hash that is stored.
// The plaintext is shown to the caller once and never persisted.
func NewSecret(keyID string) (plain string, hash string, err error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	id := strings.ToLower(strings.TrimPrefix(keyID, "key_"))
	plain = SecretPrefix + id + "_" + hex.EncodeToString(buf)
	return plain, HashSecret(plain), nil
}

// HashSecret is the lookup hash for a plaintext secret.
func HashSecret(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}
