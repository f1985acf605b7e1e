// Package catalog is the authoritative in-memory view of a server's
// remote backup set and WAL set: it lists backup metadata,
// enumerates files per backup, enumerates WAL object keys, and
// maintains a small cache. The object store, never the catalog, is the
// source of truth — the catalog is a caching projection rebuilt on
// demand.
package catalog

import (
	"regexp"
	"time"

	"github.com/cuemby/custodian/pkg/walname"
)

// Status is one of a backup's lifecycle states.
type Status string

const (
	StatusStarted         Status = "STARTED"
	StatusWaitingForWals  Status = "WAITING_FOR_WALS"
	StatusDone            Status = "DONE"
	StatusFailed          Status = "FAILED"
)

// Mode is the Postgres base-backup mode used to take a backup.
type Mode string

const (
	ModeConcurrent Mode = "concurrent"
	ModeExclusive  Mode = "exclusive"
)

// PGDATASentinel is the pseudo-oid used to key the PGDATA entry in a
// backup's file map, distinct from any real tablespace oid.
const PGDATASentinel = "PGDATA"

// Snapshot identifies one disk's snapshot handle within a
// snapshot-based backup.
type Snapshot struct {
	Identifier string
	Provider   string
	DeviceName string
}

// SnapshotsInfo is present iff the backup is a snapshot-based backup;
// it identifies the provider and per-volume snapshot handles. A
// snapshot backup has no object-store file entries for data or
// tablespaces — only a backup_label exists remotely.
type SnapshotsInfo struct {
	Provider  string
	Snapshots []Snapshot
}

// BackupFile is one member of a backup's file set: a primary archive
// path (a full tar, or absent when listed with allowMissing) plus any
// overflow parts discovered alongside it.
type BackupFile struct {
	// OID is the tablespace oid as a string, or PGDATASentinel for the
	// base data directory archive.
	OID string
	// PrimaryPath is nil when listed with allowMissing and the primary
	// archive could not be found; such entries are silently skipped on
	// delete, per the Open Question decision documented on
	// Catalog.ListBackupFiles.
	PrimaryPath     *string
	AdditionalPaths []string
}

// Backup is one entry in a server's backup catalog.
type Backup struct {
	ID   string
	Name string

	Status Status

	BeginWAL string
	EndWAL   string
	Timeline uint32

	Mode Mode

	BeginTime time.Time
	EndTime   time.Time

	SnapshotsInfo *SnapshotsInfo

	// Files is populated lazily via Catalog.ListBackupFiles; it is not
	// necessarily present on every Backup value returned by ListBackups.
	Files []BackupFile
}

// IsSnapshot reports whether this backup stores its data as
// provider-managed volume snapshots rather than tar files.
func (b *Backup) IsSnapshot() bool {
	return b.SnapshotsInfo != nil
}

var backupIDRe = regexp.MustCompile(`^\d{8}T\d{6}$`)

// IsBackupID reports whether ref has the YYYYMMDDTHHMMSS id grammar.
func IsBackupID(ref string) bool {
	return backupIDRe.MatchString(ref)
}

// reservedNames are tokens that cannot be assigned as a backup's human
// name because they're resolved specially by ParseBackupID.
var reservedNames = map[string]bool{
	"latest":      true,
	"last":        true,
	"oldest":      true,
	"first":       true,
	"last-failed": true,
}

// deriveTimeline extracts the timeline field from a beginWAL segment
// name, returning 0 if it doesn't parse.
func deriveTimeline(beginWAL string) uint32 {
	seg, err := walname.Decode(walname.Base(beginWAL))
	if err != nil {
		return 0
	}
	return seg.Timeline
}
