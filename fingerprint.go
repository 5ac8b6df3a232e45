package lore

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns a deterministic content hash of the text's bytes,
// used for deduplication, change detection, and embedding-cache keys.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
