// Package change computes stable content hashes over canonicalized
// schedule texts and decides whether a group materially changed.
package change

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hash digests the canonical serialization of a group's per-day schedule
// texts. Canonicalization keeps only the ordered texts themselves, so
// re-fetches that differ in fetch timestamps or labels hash identically.
func Hash(texts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(texts, "|")))
	return hex.EncodeToString(sum[:])
}

// Result reports the outcome of one detection.
type Result struct {
	Hash         string
	PreviousHash string
	Changed      bool
}

// Detect compares the canonical hash of the given texts against the stored
// hash. Changed is true only when a stored hash already existed and
// differs: the first-ever observation of a group is persisted but never
// notifies, since there is nothing to diff against.
func Detect(storedHash string, texts ...string) Result {
	h := Hash(texts...)
	return Result{
		Hash:         h,
		PreviousHash: storedHash,
		Changed:      storedHash != "" && storedHash != h,
	}
}
