package memcache

import (
	"crypto/sha256"
	"encoding/hex"
)

// EmbeddingKey derives the embedding-cache key as a hash of text and
// mode (e.g. "document" vs "query").
func EmbeddingKey(text, mode string) string {
	h := sha256.Sum256([]byte(mode + "\x00" + text))
	return hex.EncodeToString(h[:])
}
