// Package keep implements the thin semantic layer over an
// annotation.Store that the source expressed as a mixin shared across
// two unrelated catalog types; here it's explicit composition instead —
// the deletion executor and the WAL-cleanup planner each hold a
// Registry next to the Catalog, and the Catalog itself holds none.
package keep

import (
	"context"
	"fmt"

	"github.com/cuemby/custodian/pkg/annotation"
	"github.com/cuemby/custodian/pkg/errs"
)

const (
	// AnnotationKey is the annotation namespace key an archival pin is
	// stored under.
	AnnotationKey = "keep"

	// TargetFull requires only the backup itself to be retained.
	TargetFull = "full"
	// TargetStandalone additionally requires the WAL range
	// [beginWal, endWal] to be retained.
	TargetStandalone = "standalone"

	// TargetNone is returned by Target when a backup carries no pin.
	TargetNone = "none"
)

var supportedTargets = map[string]bool{
	TargetFull:       true,
	TargetStandalone: true,
}

// Registry exposes pin/target/unpin over an AnnotationStore. It does
// not interpret what "full" or "standalone" mean operationally — that
// is WalCleanupPlanner's job.
type Registry struct {
	store annotation.Store
}

// NewRegistry builds a Registry over the given annotation store.
func NewRegistry(store annotation.Store) *Registry {
	return &Registry{store: store}
}

// IsPinned reports whether backupID carries a keep annotation.
func (r *Registry) IsPinned(ctx context.Context, backupID string, useCache bool) (bool, error) {
	_, found, err := r.store.Get(ctx, backupID, AnnotationKey, useCache)
	if err != nil {
		return false, fmt.Errorf("keep: checking pin for %s: %w", backupID, err)
	}
	return found, nil
}

// Target returns the pin target for backupID, or TargetNone if it is
// not pinned.
func (r *Registry) Target(ctx context.Context, backupID string, useCache bool) (string, error) {
	value, found, err := r.store.Get(ctx, backupID, AnnotationKey, useCache)
	if err != nil {
		return "", fmt.Errorf("keep: reading target for %s: %w", backupID, err)
	}
	if !found {
		return TargetNone, nil
	}
	return string(value), nil
}

// Pin sets backupID's archival target. target must be TargetFull or
// TargetStandalone.
func (r *Registry) Pin(ctx context.Context, backupID, target string) error {
	if !supportedTargets[target] {
		return errs.New(errs.UnsupportedKeepTarget, fmt.Errorf("unsupported recovery target: %s", target))
	}
	if err := r.store.Put(ctx, backupID, AnnotationKey, []byte(target)); err != nil {
		return fmt.Errorf("keep: pinning %s as %s: %w", backupID, target, err)
	}
	return nil
}

// Unpin removes backupID's archival pin. It is idempotent.
func (r *Registry) Unpin(ctx context.Context, backupID string) error {
	if err := r.store.Delete(ctx, backupID, AnnotationKey); err != nil {
		return fmt.Errorf("keep: unpinning %s: %w", backupID, err)
	}
	return nil
}
