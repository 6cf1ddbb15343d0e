package chain

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log"

	"github.com/cockroachdb/pebble/v2"
	"github.com/klauspost/compress/zstd"
)

// CachedClient wraps Client and caches full blocks forever. Confirmed
// blocks are immutable, so a tick that fails after fetching its range
// re-scans on the next tick without hitting the node again. The cache
// directory can be deleted at any time to force re-fetch.
type CachedClient struct {
	*Client
	cache *pebble.DB
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// NewCachedClient opens (or creates) a pebble cache in cacheDir.
func NewCachedClient(client *Client, cacheDir string) (*CachedClient, error) {
	cache, err := pebble.Open(cacheDir, &pebble.Options{Logger: quietPebbleLogger{}})
	if err != nil {
		return nil, err
	}
	enc, _ := zstd.NewWriter(nil)
	dec, _ := zstd.NewReader(nil)
	return &CachedClient{Client: client, cache: cache, enc: enc, dec: dec}, nil
}

// Close closes the cache database.
func (c *CachedClient) Close() error {
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}

func blockKey(height uint64) []byte {
	key := make([]byte, 4+8)
	copy(key, "blk:")
	binary.BigEndian.PutUint64(key[4:], height)
	return key
}

// GetBlock returns the block at height, from cache when present.
func (c *CachedClient) GetBlock(ctx context.Context, height uint64) (*Block, error) {
	key := blockKey(height)

	if val, closer, err := c.cache.Get(key); err == nil {
		raw, derr := c.dec.DecodeAll(val, nil)
		closer.Close()
		if derr == nil {
			var blk Block
			if json.Unmarshal(raw, &blk) == nil {
				return &blk, nil
			}
		}
		// Corrupt entry: fall through and re-fetch.
	}

	blk, err := c.Client.GetBlock(ctx, height)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(blk); err == nil {
		c.cache.Set(key, c.enc.EncodeAll(raw, nil), pebble.NoSync)
	}
	return blk, nil
}

// quietPebbleLogger silences pebble info logs, keeps errors.
type quietPebbleLogger struct{}

func (quietPebbleLogger) Infof(format string, args ...interface{}) {}
func (quietPebbleLogger) Errorf(format string, args ...interface{}) {
	log.Printf("[pebble] "+format, args...)
}
func (quietPebbleLogger) Fatalf(format string, args ...interface{}) {
	log.Fatalf("[pebble] "+format, args...)
}
