package annotation

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cuemby/custodian/pkg/objectstore"
)

const annotationsSegment = "/annotations/"

// CloudStore keys annotations under a server's remote prefix:
// "{prefix}/{server}/base/{backupID}/annotations/{key}". A presence
// cache, built once by listing the base/ tree, lets repeated lookups
// across many backups avoid a remote round trip per key; callers that
// only care about one backup disable it.
type CloudStore struct {
	store  objectstore.Store
	prefix string
	server string

	mu        sync.Mutex
	cache     map[string]bool // "backupID/key" -> present
	populated bool
}

// NewCloudStore builds a CloudStore for server under the given store,
// with keys rooted at "{prefix}/{server}/".
func NewCloudStore(store objectstore.Store, prefix, server string) *CloudStore {
	return &CloudStore{store: store, prefix: prefix, server: server}
}

func (c *CloudStore) basePrefix() string {
	if c.prefix == "" {
		return c.server + "/base/"
	}
	return strings.TrimSuffix(c.prefix, "/") + "/" + c.server + "/base/"
}

func (c *CloudStore) key(backupID, annotationKey string) string {
	return c.basePrefix() + backupID + "/annotations/" + annotationKey
}

func cacheKey(backupID, annotationKey string) string {
	return backupID + "/" + annotationKey
}

// populate lists the base/ tree once and records every (backupID, key)
// pair whose object key matches the annotations suffix.
func (c *CloudStore) populate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.populated {
		return nil
	}
	keys, err := c.store.ListPrefix(ctx, c.basePrefix(), "")
	if err != nil {
		return fmt.Errorf("annotation: listing %s for presence cache: %w", c.basePrefix(), err)
	}
	cache := make(map[string]bool)
	for _, k := range keys {
		rest := strings.TrimPrefix(k, c.basePrefix())
		idx := strings.Index(rest, annotationsSegment)
		if idx < 0 {
			continue
		}
		backupID := rest[:idx]
		annotationKey := rest[idx+len(annotationsSegment):]
		if backupID == "" || annotationKey == "" {
			continue
		}
		cache[cacheKey(backupID, annotationKey)] = true
	}
	c.cache = cache
	c.populated = true
	return nil
}

func (c *CloudStore) Put(ctx context.Context, backupID, key string, value []byte) error {
	if err := c.store.Put(ctx, c.key(backupID, key), value); err != nil {
		return fmt.Errorf("annotation: putting %s: %w", c.key(backupID, key), err)
	}
	c.mu.Lock()
	if c.cache != nil {
		c.cache[cacheKey(backupID, key)] = true
	}
	c.mu.Unlock()
	return nil
}

// Get consults the presence cache when useCache is true. If the cache
// is populated and lacks the (backupID, key) pair, it returns absent
// without a remote fetch. Otherwise it issues a remote get and decodes
// the first line as UTF-8.
func (c *CloudStore) Get(ctx context.Context, backupID, key string, useCache bool) ([]byte, bool, error) {
	if useCache {
		if err := c.populate(ctx); err != nil {
			return nil, false, err
		}
		c.mu.Lock()
		present := c.cache[cacheKey(backupID, key)]
		c.mu.Unlock()
		if !present {
			return nil, false, nil
		}
	}

	rc, found, err := c.store.Get(ctx, c.key(backupID, key))
	if err != nil {
		return nil, false, fmt.Errorf("annotation: getting %s: %w", c.key(backupID, key), err)
	}
	if !found {
		return nil, false, nil
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, false, fmt.Errorf("annotation: reading %s: %w", c.key(backupID, key), err)
	}
	if line, _, ok := strings.Cut(string(data), "\n"); ok {
		return []byte(line), true, nil
	}
	return data, true, nil
}

func (c *CloudStore) Delete(ctx context.Context, backupID, key string) error {
	if err := c.store.DeleteObjects(ctx, []string{c.key(backupID, key)}); err != nil {
		return fmt.Errorf("annotation: deleting %s: %w", c.key(backupID, key), err)
	}
	c.mu.Lock()
	if c.cache != nil {
		delete(c.cache, cacheKey(backupID, key))
	}
	c.mu.Unlock()
	return nil
}
