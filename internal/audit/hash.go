// Package audit provides the persistence/audit sink for abusive verdicts:
// one PENDING flag record per flag, plus a privacy-preserving audit entry
// whose actor and target identifiers are one-way hashed.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// hashLength is the number of hex characters kept from the digest. The hash
// is operational telemetry, not access control; truncation is acceptable.
const hashLength = 16

// Hasher produces deterministic, non-reversible identifiers for audit
// entries. With a key it uses HMAC-SHA256, otherwise plain SHA-256.
type Hasher struct {
	key []byte
}

// NewHasher creates a hasher. key may be empty.
func NewHasher(key string) *Hasher {
	return &Hasher{key: []byte(key)}
}

// HashID returns a stable 16-hex-character digest of id. Empty input hashes
// to the empty string so optional targets stay optional.
func (h *Hasher) HashID(id string) string {
	if id == "" {
		return ""
	}

	var sum []byte
	if len(h.key) > 0 {
		mac := hmac.New(sha256.New, h.key)
		mac.Write([]byte(id))
		sum = mac.Sum(nil)
	} else {
		digest := sha256.Sum256([]byte(id))
		sum = digest[:]
	}

	return hex.EncodeToString(sum)[:hashLength]
}
