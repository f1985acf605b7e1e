// Package objectstore defines the ObjectStore contract the engine is
// built against and the small set of capability sentinels a
// backend may decline. Concrete backends live in the s3/ and
// localstore/ subpackages; the engine itself only depends on the
// Store interface defined here.
package objectstore

import (
	"context"
	"io"
)

// Store is the flat keyed blob store the engine reads and writes
// through. A delimiter-aware listing and a delete-prefix shortcut are
// optional; backends that can't support them return errs.ErrNotSupported
// (see pkg/errs) and callers fall back to a per-key path.
type Store interface {
	// ListPrefix lists keys under prefix. When delimiter is empty it
	// lists every key recursively; when delimiter is "/" it returns
	// one-level common prefixes instead of descending further.
	ListPrefix(ctx context.Context, prefix, delimiter string) ([]string, error)

	// Get returns the contents of key. It returns (nil, false, nil) if
	// the key does not exist; any other error is a store failure.
	Get(ctx context.Context, key string) (io.ReadCloser, bool, error)

	// Put uploads data to key, overwriting any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// DeleteObjects deletes a batch of keys. Absence of a key is not an
	// error. The backend splits the batch into requests the provider
	// accepts (the s3 backend uses DeleteBatchSize, 1000 by default);
	// callers pass the whole set in one call.
	DeleteObjects(ctx context.Context, keys []string) error

	// DeletePrefix deletes every object under prefix. Both bundled
	// backends list the prefix and batch-delete its keys. A backend
	// without this capability returns errs.ErrNotSupported; the deletion
	// executor then falls back to ListPrefix + DeleteObjects.
	DeletePrefix(ctx context.Context, prefix string) error

	// BucketExists reports whether the configured bucket/container is
	// reachable and present.
	BucketExists(ctx context.Context) (bool, error)

	// TestConnectivity performs a cheap round trip to the backend,
	// independent of bucket existence.
	TestConnectivity(ctx context.Context) error
}
