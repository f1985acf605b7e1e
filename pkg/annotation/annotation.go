// Package annotation implements the AnnotationStore contract:
// small key-value metadata attached to a backup id, with a filesystem
// backend and a cloud backend sharing the same interface. KeepRegistry
// is the only current consumer.
package annotation

import "context"

// Store is the key-value annotation contract. get returns (nil,
// false, nil) when the annotation is absent; delete is idempotent on
// absence. Any other backend error propagates.
type Store interface {
	Put(ctx context.Context, backupID, key string, value []byte) error
	Get(ctx context.Context, backupID, key string, useCache bool) ([]byte, bool, error)
	Delete(ctx context.Context, backupID, key string) error
}
