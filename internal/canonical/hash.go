package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix
// leaves room for algorithm migration.
const (
	DomainSnapshot = "netcore/snapshot/v1"
	DomainTrace    = "netcore/trace/v1"
)

// HashWithDomain returns hex(SHA256(domain || 0x00 || data)).
// The null separator keeps the domain/data boundary unambiguous.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash marshals v canonically and hashes it under domain.
func Hash(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical hash (%s): %w", domain, err)
	}
	return HashWithDomain(domain, data), nil
}

// MustHash is like Hash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustHash(domain string, v any) string {
	id, err := Hash(domain, v)
	if err != nil {
		panic(err)
	}
	return id
}
