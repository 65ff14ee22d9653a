// Package urlhash provides content-addressed fingerprints for article
// URLs. Fingerprints are the dedup and upsert key for persisted
// articles, so they must be stable across process restarts.
package urlhash

import (
	"crypto/sha256"
	"encoding/hex"
)

// Length is the number of hex characters kept from the digest.
// Truncation collisions are acceptable at dedup granularity.
const Length = 16

// Fingerprint hashes a canonical URL into a short stable token.
func Fingerprint(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:Length]
}
