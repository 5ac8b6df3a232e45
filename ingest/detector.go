package ingest

import lore "github.com/maretho/lore"

// NeedsReprocessing reports whether a document must go through the full
// pipeline again. True when no fingerprint is stored yet, when the new
// content hashes differently, or when the embedding model changed —
// vectors from different models are not comparable, so a model change
// invalidates everything derived from the old one.
func NeedsReprocessing(newContent, storedHash, storedModel, currentModel string) bool {
	if storedHash == "" {
		return true
	}
	if lore.Fingerprint(newContent) != storedHash {
		return true
	}
	return storedModel != currentModel
}
