package memcache

import (
	"bytes"
	"strings"
	"testing"
)

func TestCompressedCache_SetGet_HotTier(t *testing.T) {
	t.Parallel()

	c := NewCompressedCache(CompressedCacheOptions{MaxUncompressed: 2, MinCompressionSize: 0, MinCompressionRatio: 0})
	c.Set("a", []byte("payload-a"))

	got, ok := c.Get("a")
	if !ok || !bytes.Equal(got, []byte("payload-a")) {
		t.Fatalf("Get(a) = %q, %v; want %q, true", got, ok, "payload-a")
	}
}

func TestCompressedCache_OverflowCompressesLRUEntry(t *testing.T) {
	t.Parallel()

	payload := []byte(strings.Repeat("hiking mountains ", 200))
	c := NewCompressedCache(CompressedCacheOptions{MaxUncompressed: 1, MinCompressionSize: 10, MinCompressionRatio: 1.0})

	c.Set("first", payload)
	c.Set("second", payload) // evicts "first" from the hot tier

	got, ok := c.Get("first")
	if !ok {
		t.Fatal("expected 'first' to still be retrievable from the cold (compressed) tier")
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("decompressed payload must round-trip exactly")
	}
}

func TestCompressedCache_TooSmallPayloadIsDroppedOnEviction(t *testing.T) {
	t.Parallel()

	c := NewCompressedCache(CompressedCacheOptions{MaxUncompressed: 1, MinCompressionSize: 1000, MinCompressionRatio: 1.0})
	c.Set("tiny", []byte("x"))
	c.Set("other", []byte("y")) // evicts "tiny", which is too small to archive

	if _, ok := c.Get("tiny"); ok {
		t.Fatal("a payload below MinCompressionSize must be dropped, not archived, on eviction")
	}
}

func TestCompressedCache_Remove(t *testing.T) {
	t.Parallel()

	c := NewCompressedCache(CompressedCacheOptions{MaxUncompressed: 2, MinCompressionSize: 0, MinCompressionRatio: 0})
	c.Set("a", []byte("payload"))
	c.Remove("a")
	if _, ok := c.Get("a"); ok {
		t.Fatal("expected 'a' to be gone after Remove")
	}
}
