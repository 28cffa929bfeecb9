package utils

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// ContentHash returns the base64 sha256 of raw content (44 chars).
// Used as the idempotency key for uploaded files and submitted records.
func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// RowHash derives a per-row dedup hash from the parent content hash and the
// row's identifying parts. Deterministic: same file + same row = same hash.
func RowHash(parentHash string, parts ...string) string {
	var b strings.Builder
	b.WriteString(parentHash)
	for _, p := range parts {
		b.WriteString("|")
		b.WriteString(p)
	}
	return ContentHash([]byte(b.String()))
}
