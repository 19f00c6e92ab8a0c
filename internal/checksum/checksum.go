// Package checksum fingerprints note content. The digest rides on every
// indexed note: it short-circuits reindexing when a file is unchanged and
// lets a renamed file keep its identity by content match.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 fingerprint of content.
func Sum(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}
