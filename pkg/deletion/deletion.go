// Package deletion implements DeletionExecutor: the
// ordered precondition checks, snapshot-vs-tar-file deletion branching,
// and the single-backup state machine
// (Loaded→Validated→FilesDeleted→InfoDeleted→WalPlanned→WalApplied→Evicted)
// that drives WalCleanupPlanner once a backup's own artifacts are gone.
package deletion

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/cuemby/custodian/pkg/catalog"
	"github.com/cuemby/custodian/pkg/errs"
	"github.com/cuemby/custodian/pkg/keep"
	"github.com/cuemby/custodian/pkg/log"
	"github.com/cuemby/custodian/pkg/metrics"
	"github.com/cuemby/custodian/pkg/objectstore"
	"github.com/cuemby/custodian/pkg/retention"
	"github.com/cuemby/custodian/pkg/snapshot"
	"github.com/cuemby/custodian/pkg/walcleanup"
)

// Options configures one deleteOne call.
type Options struct {
	// DryRun prints every would-be deletion to Sink instead of touching
	// the store or mutating the catalog.
	DryRun bool

	// SingleBackupRequest distinguishes a manually targeted deletion
	// from one driven by DeleteByPolicy; it gates the minimum-redundancy
	// precondition and the WAL-cleanup conservatism default.
	SingleBackupRequest bool

	// MinimumRedundancy is only enforced when SingleBackupRequest is
	// true; policy-driven runs already bake the floor into
	// RetentionEvaluator's verdicts.
	MinimumRedundancy int

	// SkipWalCleanupIfStandalone is passed through to WalCleanupPlanner.
	// The CLI defaults it to true for single-backup requests;
	// DeleteByPolicy always sets it to false.
	SkipWalCleanupIfStandalone bool
}

// Executor deletes backups and the WAL segments that become reclaimable
// as a result, against a single server's catalog.
type Executor struct {
	Catalog  *catalog.Catalog
	Keep     *keep.Registry
	Store    objectstore.Store
	Planner  *walcleanup.Planner
	Snapshot snapshot.Collaborator

	// Sink receives dry-run and progress output; defaults to io.Discard
	// when nil.
	Sink io.Writer
}

func (e *Executor) sink() io.Writer {
	if e.Sink == nil {
		return io.Discard
	}
	return e.Sink
}

func (e *Executor) printf(format string, args ...any) {
	fmt.Fprintf(e.sink(), format, args...)
}

// DeleteOne implements deleteOne(id, opts).
func (e *Executor) DeleteOne(ctx context.Context, id string, opts Options) error {
	// Loaded, Validated.
	if _, err := e.Catalog.ListBackups(ctx); err != nil {
		return err
	}
	if unreadable := e.Catalog.UnreadableBackups(); len(unreadable) > 0 {
		return errs.New(errs.CatalogUnreadable, fmt.Errorf("deletion: catalog has unreadable backups: %v", unreadable))
	}

	backup, ok, err := e.Catalog.GetBackup(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		log.Logger.Warn().Str("backup_id", id).Msg("backup already absent, treating deletion as a no-op")
		return nil
	}

	pinned, err := e.Keep.IsPinned(ctx, id, false)
	if err != nil {
		return err
	}
	if pinned {
		return errs.New(errs.BackupPinned, fmt.Errorf("deletion: backup %s carries an archival pin", id))
	}

	if opts.SingleBackupRequest && opts.MinimumRedundancy > 0 {
		done, err := e.Catalog.SortedDoneBackups(ctx)
		if err != nil {
			return err
		}
		if len(done) <= opts.MinimumRedundancy {
			return errs.New(errs.MinimumRedundancyViolation, fmt.Errorf(
				"deletion: deleting %s would drop the DONE backup count to %d, below the floor of %d",
				id, len(done)-1, opts.MinimumRedundancy))
		}
	}

	if err := e.deleteArtifacts(ctx, backup, opts); err != nil {
		return err
	}
	// InfoDeleted.

	if err := e.cleanupWals(ctx, backup, opts); err != nil {
		// WalPlanned/WalApplied failure is safe to leave unresolved: the
		// backup itself is already gone, surplus WALs linger until the
		// next deletion reconsiders them.
		return err
	}

	if !opts.DryRun {
		e.Catalog.EvictBackup(id)
	}
	return nil
}

// deleteArtifacts implements the SnapshotDisposed?/FilesDeleted branch.
func (e *Executor) deleteArtifacts(ctx context.Context, backup *catalog.Backup, opts Options) error {
	if backup.IsSnapshot() {
		if opts.DryRun {
			e.printf("dry-run: would delete snapshot backup %s via the snapshot collaborator\n", backup.ID)
		} else if err := e.Snapshot.DeleteSnapshotBackup(ctx, backup); err != nil {
			return errs.New(errs.StoreFailure, fmt.Errorf("deletion: disposing snapshots for %s: %w", backup.ID, err))
		}
		labelKey := e.labelKey(backup.ID)
		if opts.DryRun {
			e.printf("dry-run: would delete %s\n", labelKey)
			return nil
		}
		if err := e.Store.DeleteObjects(ctx, []string{labelKey}); err != nil {
			return errs.New(errs.StoreFailure, fmt.Errorf("deletion: deleting %s: %w", labelKey, err))
		}
		return e.deleteBackupInfo(ctx, backup, opts)
	}

	files, err := e.Catalog.ListBackupFiles(ctx, backup, true)
	if err != nil {
		return err
	}
	keys := sortedFileKeys(files)

	if opts.DryRun {
		for _, k := range keys {
			e.printf("dry-run: would delete %s\n", k)
		}
	} else if len(keys) > 0 {
		if err := e.Store.DeleteObjects(ctx, keys); err != nil {
			return errs.New(errs.StoreFailure, fmt.Errorf("deletion: batched delete of %s's files: %w", backup.ID, err))
		}
	}

	return e.deleteBackupInfo(ctx, backup, opts)
}

func (e *Executor) deleteBackupInfo(ctx context.Context, backup *catalog.Backup, opts Options) error {
	infoKey := e.infoKey(backup.ID)
	if opts.DryRun {
		e.printf("dry-run: would delete %s\n", infoKey)
		return nil
	}
	if err := e.Store.DeleteObjects(ctx, []string{infoKey}); err != nil {
		return errs.New(errs.StoreFailure, fmt.Errorf("deletion: deleting %s: %w", infoKey, err))
	}
	return nil
}

func (e *Executor) labelKey(backupID string) string {
	return e.Catalog.BackupDirPrefix(backupID) + "backup_label"
}

func (e *Executor) infoKey(backupID string) string {
	return e.Catalog.BackupDirPrefix(backupID) + "backup.info"
}

// sortedFileKeys orders a backup's file set deterministically: PGDATA
// first, then tablespaces ascending by oid; within each entry the
// primary file precedes its additional parts, each sorted by path.
func sortedFileKeys(files map[string]catalog.BackupFile) []string {
	oids := make([]string, 0, len(files))
	for oid := range files {
		oids = append(oids, oid)
	}
	sort.Slice(oids, func(i, j int) bool {
		if oids[i] == catalog.PGDATASentinel {
			return oids[j] != catalog.PGDATASentinel
		}
		if oids[j] == catalog.PGDATASentinel {
			return false
		}
		return oids[i] < oids[j]
	})

	var keys []string
	for _, oid := range oids {
		entry := files[oid]
		if entry.PrimaryPath != nil {
			keys = append(keys, *entry.PrimaryPath)
		}
		additional := append([]string(nil), entry.AdditionalPaths...)
		sort.Strings(additional)
		keys = append(keys, additional...)
	}
	return keys
}

// cleanupWals implements WalPlanned/WalApplied/Evicted.
func (e *Executor) cleanupWals(ctx context.Context, backup *catalog.Backup, opts Options) error {
	plan, err := e.Planner.Plan(ctx, backup, opts.SkipWalCleanupIfStandalone)
	if err != nil {
		return err
	}
	if plan.Empty() {
		return nil
	}

	if opts.DryRun {
		for _, prefix := range plan.PrefixKeys {
			e.printf("dry-run: would delete prefix %s\n", prefix)
		}
		for _, w := range plan.Wals {
			e.printf("dry-run: would delete %s\n", w.StorageKey)
		}
		return nil
	}

	// Ordering: prefix deletions before individual-key deletions.
	for _, prefix := range plan.PrefixKeys {
		err := e.Store.DeletePrefix(ctx, prefix)
		if errs.Is(err, errs.NotSupported) {
			// No bulk primitive: list the prefix and delete its keys.
			var keys []string
			if keys, err = e.Store.ListPrefix(ctx, prefix, ""); err == nil {
				err = e.Store.DeleteObjects(ctx, keys)
			}
		}
		if err != nil {
			log.Logger.Error().Err(err).Str("prefix", prefix).Msg("WAL prefix deletion failed, aborting WAL cleanup for this backup")
			return errs.New(errs.StoreFailure, fmt.Errorf("deletion: deleting WAL prefix %s: %w", prefix, err))
		}
	}
	metrics.WalPrefixesDeletedTotal.WithLabelValues(backup.Name).Add(float64(len(plan.PrefixKeys)))

	if len(plan.Wals) > 0 {
		keys := make([]string, len(plan.Wals))
		for i, w := range plan.Wals {
			keys[i] = w.StorageKey
		}
		if err := e.Store.DeleteObjects(ctx, keys); err != nil {
			log.Logger.Error().Err(err).Msg("batched WAL deletion failed, aborting WAL cleanup for this backup")
			return errs.New(errs.StoreFailure, fmt.Errorf("deletion: batched WAL delete: %w", err))
		}
		metrics.WalsDeletedTotal.WithLabelValues(backup.Name).Add(float64(len(keys)))
	}

	for _, w := range plan.Wals {
		e.Catalog.EvictWal(w.Name)
	}
	return nil
}

// DeleteByPolicy implements deleteByPolicy(policy): evaluate
// retention, then delete every OBSOLETE backup ascending by id. The run
// aborts after the first failure.
func (e *Executor) DeleteByPolicy(ctx context.Context, eval *retention.Evaluator, opts Options) error {
	done, err := e.Catalog.SortedDoneBackups(ctx)
	if err != nil {
		return err
	}

	pins := make(map[string]bool, len(done))
	for _, b := range done {
		pinned, err := e.Keep.IsPinned(ctx, b.ID, true)
		if err != nil {
			return err
		}
		pins[b.ID] = pinned
	}

	verdicts := eval.Evaluate(done, func(id string) bool { return pins[id] })

	var obsolete []string
	for _, b := range done {
		if verdicts[b.ID] == retention.Obsolete {
			obsolete = append(obsolete, b.ID)
		}
	}
	sort.Strings(obsolete)

	opts.SingleBackupRequest = false
	opts.SkipWalCleanupIfStandalone = false

	for _, id := range obsolete {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.DeleteOne(ctx, id, opts); err != nil {
			log.Logger.Error().Err(err).Str("backup_id", id).Msg("policy-driven deletion aborted")
			return err
		}
	}
	return nil
}
