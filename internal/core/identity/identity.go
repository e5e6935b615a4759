// Package identity derives stable short identifiers for story paths from
// their materialized content. Identical content always produces the same ID
// regardless of build order; any passage edit in the traversal changes it.
//
// IDs are the first 8 hex chars (32 bits) of a SHA-256 digest. At tens to
// low hundreds of paths the birthday collision odds are negligible; past the
// low thousands this should grow to 12 chars.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
)

// IDLength is the number of hex characters in a path identifier.
const IDLength = 8

// PathID computes the identifier for a path materialized as an ordered
// sequence of passage contents. Passages are separated by a null byte so
// that segment boundaries cannot alias ("ab","c" never collides with
// "a","bc").
func PathID(segments []string) string {
	h := sha256.New()
	for i, seg := range segments {
		if i > 0 {
			h.Write([]byte{0x00})
		}
		h.Write([]byte(seg))
	}
	return hex.EncodeToString(h.Sum(nil))[:IDLength]
}

// PathIDFromContent computes the identifier for already-flattened path text,
// as produced by the build pipeline's per-path files.
func PathIDFromContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:IDLength]
}
