package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
)

// SecretPrefix marks payoutd keys so stray secrets are recognizable in
// logs and secret scanners.
const SecretPrefix = "pk_live_"

const secretBytes = 32

// NewKeyID derives the public key id from the row id.
func NewKeyID(id snowflake.ID) string {
	return "key_" + strings.ToUpper(strconv.FormatInt(int64(id), 36))
}

// NewSecret returns the plaintext key shown once to the caller and the hash
// that is stored. The key id is embedded so an operator can tell which key
// leaked from the secret alone.
func NewSecret(keyID string) (plain, hash string, err error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	plain = SecretPrefix + strings.TrimPrefix(keyID, "key_") + "_" + hex.EncodeToString(buf)
	return plain, HashSecret(plain), nil
}

// HashSecret is the lookup hash of a plaintext key.
func HashSecret(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}
