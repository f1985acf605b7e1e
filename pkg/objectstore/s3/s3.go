// Package s3 is the production ObjectStore backend: an S3-compatible
// client built on minio-go.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/cuemby/custodian/pkg/errs"
	"github.com/cuemby/custodian/pkg/metrics"
)

const backendName = "s3"

// instrument times one store operation and records it to
// StoreRequestDuration, incrementing StoreErrorsTotal on failure.
func instrument(operation string, fn func() error) error {
	timer := metrics.NewTimer()
	err := fn()
	timer.ObserveDurationVec(metrics.StoreRequestDuration, backendName, operation)
	if err != nil {
		metrics.StoreErrorsTotal.WithLabelValues(backendName, operation).Inc()
	}
	return err
}

// Config holds connection settings for an S3-compatible endpoint.
type Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	UseSSL          bool
	Bucket          string
	// DeleteBatchSize caps the number of keys removed per RemoveObjects
	// call. Zero means "no cap beyond the provider's own limit".
	DeleteBatchSize int
}

// Store is an S3-compatible objectstore.Store implementation.
type Store struct {
	mc     *minio.Client
	bucket string
	batch  int
}

// New builds a Store from cfg.
func New(cfg Config) (*Store, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("s3: building minio client: %w", err)
	}
	return &Store{mc: mc, bucket: cfg.Bucket, batch: cfg.DeleteBatchSize}, nil
}

func (s *Store) ListPrefix(ctx context.Context, prefix, delimiter string) ([]string, error) {
	var keys []string
	err := instrument("list", func() error {
		opts := minio.ListObjectsOptions{
			Prefix:    prefix,
			Recursive: delimiter == "",
		}
		for obj := range s.mc.ListObjects(ctx, s.bucket, opts) {
			if obj.Err != nil {
				return errs.New(errs.StoreFailure, fmt.Errorf("s3: listing %q: %w", prefix, obj.Err))
			}
			if obj.Prefix != "" {
				// Common-prefix entry, returned when Recursive is false.
				keys = append(keys, obj.Prefix)
				continue
			}
			keys = append(keys, obj.Key)
		}
		return nil
	})
	return keys, err
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, bool, error) {
	var obj io.ReadCloser
	var found bool
	err := instrument("get", func() error {
		o, err := s.mc.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return errs.New(errs.StoreFailure, fmt.Errorf("s3: get %q: %w", key, err))
		}
		// minio-go defers the network round trip to the first read/stat, so
		// a missing object only surfaces once we probe it.
		if _, err := o.Stat(); err != nil {
			o.Close()
			if isNotFound(err) {
				return nil
			}
			return errs.New(errs.StoreFailure, fmt.Errorf("s3: stat %q: %w", key, err))
		}
		obj, found = o, true
		return nil
	})
	return obj, found, err
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	return instrument("put", func() error {
		_, err := s.mc.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
		if err != nil {
			return errs.New(errs.StoreFailure, fmt.Errorf("s3: put %q: %w", key, err))
		}
		return nil
	})
}

func (s *Store) DeleteObjects(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return instrument("delete", func() error {
		batchSize := s.batch
		if batchSize <= 0 {
			batchSize = 1000
		}
		for start := 0; start < len(keys); start += batchSize {
			end := start + batchSize
			if end > len(keys) {
				end = len(keys)
			}
			objectsCh := make(chan minio.ObjectInfo, end-start)
			for _, k := range keys[start:end] {
				objectsCh <- minio.ObjectInfo{Key: k}
			}
			close(objectsCh)
			for result := range s.mc.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
				if result.Err != nil {
					return errs.New(errs.StoreFailure, fmt.Errorf("s3: deleting %q: %w", result.ObjectName, result.Err))
				}
			}
		}
		return nil
	})
}

func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	return instrument("delete_prefix", func() error {
		keys, err := s.ListPrefix(ctx, prefix, "")
		if err != nil {
			return err
		}
		return s.DeleteObjects(ctx, keys)
	})
}

func (s *Store) BucketExists(ctx context.Context) (bool, error) {
	var ok bool
	err := instrument("bucket_exists", func() error {
		exists, err := s.mc.BucketExists(ctx, s.bucket)
		if err != nil {
			return errs.New(errs.StoreFailure, fmt.Errorf("s3: checking bucket %q: %w", s.bucket, err))
		}
		ok = exists
		return nil
	})
	return ok, err
}

func (s *Store) TestConnectivity(ctx context.Context) error {
	return instrument("connectivity_check", func() error {
		_, err := s.mc.BucketExists(ctx, s.bucket)
		if err != nil {
			return errs.New(errs.StoreFailure, fmt.Errorf("s3: connectivity check: %w", err))
		}
		return nil
	})
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NotFound"
}
