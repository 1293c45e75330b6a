package memcache

import (
	"bytes"
	"container/list"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
)

// CompressedCache keeps the hottest N archived entities uncompressed and
// Brotli-compresses the rest.
// Its cold tier never accepts a payload below minCompressionSize or one whose
// achievable compression ratio falls short of minCompressionRatio —
// candidates that fail either check are evicted outright rather than
// held uncompressed forever, since the whole point of the cold tier is
// the space saving.
type CompressedCache struct {
	mu sync.Mutex

	hotMax              int
	minCompressionSize  int
	minCompressionRatio float64

	hotOrder *list.List // front = most recently used
	hotElems map[string]*list.Element
	hotData  map[string][]byte

	cold map[string][]byte // brotli-compressed payloads
}

type hotEntry struct {
	key     string
	payload []byte
}

// CompressedCacheOptions configures a CompressedCache.
type CompressedCacheOptions struct {
	MaxUncompressed     int
	MinCompressionSize  int
	MinCompressionRatio float64
}

// NewCompressedCache constructs a CompressedCache per opts.
func NewCompressedCache(opts CompressedCacheOptions) *CompressedCache {
	return &CompressedCache{
		hotMax:              opts.MaxUncompressed,
		minCompressionSize:  opts.MinCompressionSize,
		minCompressionRatio: opts.MinCompressionRatio,
		hotOrder:            list.New(),
		hotElems:            make(map[string]*list.Element),
		hotData:             make(map[string][]byte),
		cold:                make(map[string][]byte),
	}
}

// Set stores payload under key. It is kept in the hot (uncompressed)
// tier until the hot tier overflows, at which point the least-recently-
// used hot entry is compressed (or dropped, if it doesn't qualify) to
// make room.
func (c *CompressedCache) Set(key string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.cold, key)
	if elem, ok := c.hotElems[key]; ok {
		c.hotOrder.Remove(elem)
		delete(c.hotElems, key)
		delete(c.hotData, key)
	}

	c.hotData[key] = append([]byte(nil), payload...)
	c.hotElems[key] = c.hotOrder.PushFront(key)

	for c.hotOrder.Len() > c.hotMax {
		c.evictOldestHotLocked()
	}
}

func (c *CompressedCache) evictOldestHotLocked() {
	back := c.hotOrder.Back()
	if back == nil {
		return
	}
	key := back.Value.(string)
	payload := c.hotData[key]
	c.hotOrder.Remove(back)
	delete(c.hotElems, key)
	delete(c.hotData, key)

	if len(payload) < c.minCompressionSize {
		return // too small to bother archiving compressed
	}
	compressed := brotliCompress(payload)
	ratio := float64(len(payload)) / float64(len(compressed))
	if ratio < c.minCompressionRatio {
		return // not worth keeping
	}
	c.cold[key] = compressed
}

// Get returns the (decompressed) payload for key, if present in either
// tier.
func (c *CompressedCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if payload, ok := c.hotData[key]; ok {
		if elem, ok := c.hotElems[key]; ok {
			c.hotOrder.MoveToFront(elem)
		}
		return append([]byte(nil), payload...), true
	}
	if compressed, ok := c.cold[key]; ok {
		data, err := brotliDecompress(compressed)
		if err != nil {
			return nil, false
		}
		return data, true
	}
	return nil, false
}

// Remove deletes key from both tiers.
func (c *CompressedCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.hotElems[key]; ok {
		c.hotOrder.Remove(elem)
		delete(c.hotElems, key)
		delete(c.hotData, key)
	}
	delete(c.cold, key)
}

func brotliCompress(data []byte) []byte {
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	_, _ = w.Write(data)
	_ = w.Close()
	return buf.Bytes()
}

func brotliDecompress(data []byte) ([]byte, error) {
	r := brotli.NewReader(bytes.NewReader(data))
	return io.ReadAll(r)
}
