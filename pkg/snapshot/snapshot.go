// Package snapshot declares the external collaborator DeletionExecutor
// delegates to when a backup stores its data as provider-managed
// volume snapshots rather than object-store tar files.
package snapshot

import (
	"context"
	"fmt"

	"github.com/cuemby/custodian/pkg/catalog"
	"github.com/cuemby/custodian/pkg/errs"
)

// Collaborator disposes of a snapshot-based backup's underlying disk
// snapshots. DeletionExecutor calls it only when the backup carries
// SnapshotsInfo, before it removes the backup's remote backup_label
// object.
type Collaborator interface {
	DeleteSnapshotBackup(ctx context.Context, backup *catalog.Backup) error
}

// Unsupported is the default Collaborator for deployments with no
// snapshot provider wired in: it fails any snapshot-backup deletion
// rather than silently leaving orphaned disk snapshots behind.
type Unsupported struct{}

func (Unsupported) DeleteSnapshotBackup(_ context.Context, backup *catalog.Backup) error {
	return errs.New(errs.NotSupported, fmt.Errorf("snapshot: no provider collaborator configured, cannot dispose of %s's snapshots", backup.ID))
}
