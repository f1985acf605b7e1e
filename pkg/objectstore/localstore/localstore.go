// Package localstore is a single-file embedded ObjectStore backend used
// for local development and as the test double the rest of the engine's
// test suites exercise instead of a live bucket. It plays the role
// BoltDB plays for the teacher's cluster state, repurposed here as one
// flat bucket of keys and bytes instead of per-entity buckets.
package localstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/custodian/pkg/errs"
)

var bucketObjects = []byte("objects")

// Store is a bbolt-backed objectstore.Store implementation.
type Store struct {
	db *bolt.DB
}

// Open creates or opens a local object-store file under dataDir.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "custodian.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("localstore: opening %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketObjects)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("localstore: creating bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListPrefix(_ context.Context, prefix, delimiter string) ([]string, error) {
	var keys []string
	seen := make(map[string]bool)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketObjects).Cursor()
		prefixBytes := []byte(prefix)
		for k, _ := c.Seek(prefixBytes); k != nil && bytes.HasPrefix(k, prefixBytes); k, _ = c.Next() {
			key := string(k)
			if delimiter == "" {
				keys = append(keys, key)
				continue
			}
			rest := key[len(prefix):]
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				common := prefix + rest[:idx+len(delimiter)]
				if !seen[common] {
					seen[common] = true
					keys = append(keys, common)
				}
				continue
			}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, errs.New(errs.StoreFailure, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, bool, error) {
	var data []byte
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketObjects).Get([]byte(key))
		if v != nil {
			found = true
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, errs.New(errs.StoreFailure, err)
	}
	if !found {
		return nil, false, nil
	}
	return io.NopCloser(bytes.NewReader(data)), true, nil
}

func (s *Store) Put(_ context.Context, key string, data []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketObjects).Put([]byte(key), data)
	})
	if err != nil {
		return errs.New(errs.StoreFailure, fmt.Errorf("localstore: put %q: %w", key, err))
	}
	return nil
}

func (s *Store) DeleteObjects(_ context.Context, keys []string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketObjects)
		for _, key := range keys {
			if err := b.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errs.New(errs.StoreFailure, fmt.Errorf("localstore: batch delete: %w", err))
	}
	return nil
}

func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := s.ListPrefix(ctx, prefix, "")
	if err != nil {
		return err
	}
	return s.DeleteObjects(ctx, keys)
}

func (s *Store) BucketExists(context.Context) (bool, error) {
	return true, nil
}

func (s *Store) TestConnectivity(context.Context) error {
	return nil
}
