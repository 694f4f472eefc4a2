package hls

import (
	"container/list"
	"context"
	"crypto/aes"
	"fmt"
	"io"
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/streamkit/segmented/logging"
	"github.com/streamkit/segmented/stream/common"
)

// keyCacheSize bounds the number of decryption keys kept in memory
const keyCacheSize = 16

// keyCache is an LRU cache of AES keys keyed by absolute key URI. Live
// streams rotate keys, so old entries age out instead of accumulating.
type keyCache struct {
	mu      sync.Mutex
	client  *http.Client
	opts    common.HTTPOptions
	entries map[string]*list.Element
	order   *list.List
	group   singleflight.Group
}

type keyCacheEntry struct {
	uri string
	key []byte
}

func newKeyCache(client *http.Client, opts common.HTTPOptions) *keyCache {
	return &keyCache{
		client:  client,
		opts:    opts,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the key at the given absolute URI, fetching it on a miss.
// Concurrent misses on one URI share a single fetch.
func (c *keyCache) Get(ctx context.Context, uri string) ([]byte, error) {
	if key, ok := c.lookup(uri); ok {
		return key, nil
	}

	v, err, _ := c.group.Do(uri, func() (any, error) {
		if key, ok := c.lookup(uri); ok {
			return key, nil
		}
		key, err := c.fetch(ctx, uri)
		if err != nil {
			return nil, err
		}
		c.store(uri, key)
		return key, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *keyCache) lookup(uri string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if element, ok := c.entries[uri]; ok {
		c.order.MoveToFront(element)
		return element.Value.(*keyCacheEntry).key, true
	}
	return nil, false
}

func (c *keyCache) store(uri string, key []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[uri]; ok {
		return
	}
	c.entries[uri] = c.order.PushFront(&keyCacheEntry{uri: uri, key: key})
	for c.order.Len() > keyCacheSize {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*keyCacheEntry).uri)
	}
}

func (c *keyCache) fetch(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, common.NewStreamError(common.StreamTypeHLS, uri,
			common.ErrCodeSegment, "invalid key URI", err)
	}
	common.ApplyRequestOptions(req, c.opts)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, common.NewStreamError(common.StreamTypeHLS, uri,
			common.ErrCodeConnection, "key request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, common.NewStreamError(common.StreamTypeHLS, uri,
			common.ErrCodeSegment,
			fmt.Sprintf("key request returned HTTP %d", resp.StatusCode), nil)
	}

	key, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, common.NewStreamError(common.StreamTypeHLS, uri,
			common.ErrCodeConnection, "reading key failed", err)
	}
	if len(key) != aes.BlockSize {
		return nil, common.NewStreamError(common.StreamTypeHLS, uri,
			common.ErrCodeSegment,
			fmt.Sprintf("key has invalid length %d", len(key)), nil)
	}

	logging.Debug("fetched decryption key", logging.Fields{
		"component": "hls_writer",
		"uri":       uri,
	})
	return key, nil
}
