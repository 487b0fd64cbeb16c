package signature

import (
	"crypto/rand"
	"encoding/hex"
)

// KeyPrefix marks a subscription signing key.
const KeyPrefix = "ewhk_"

// GenerateKey creates a random signing key: KeyPrefix followed by 32 bytes hex.
func GenerateKey() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("notify: failed to generate signing key: " + err.Error())
	}
	return KeyPrefix + hex.EncodeToString(b)
}
