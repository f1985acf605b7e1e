package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/custodian/pkg/errs"
	"github.com/cuemby/custodian/pkg/objectstore"
)

// WalEntry is one WAL segment's logical name paired with the storage
// key it was actually uploaded under, which may carry a compression
// suffix (.gz, .bz2, .snappy, .zst) distinct from the logical name.
type WalEntry struct {
	Name       string
	StorageKey string
}

// Catalog is the authoritative in-memory view of one server's remote
// backup set and WAL set.
type Catalog struct {
	store  objectstore.Store
	prefix string
	server string

	mu                 sync.Mutex
	backups            map[string]*Backup
	backupsLoaded      bool
	unreadableBackups  []string
	walEntries         map[string]WalEntry
	walEntriesLoaded   bool
}

// New builds a Catalog for server, keyed under "{prefix}/{server}/" in
// store.
func New(store objectstore.Store, prefix, server string) *Catalog {
	return &Catalog{store: store, prefix: prefix, server: server}
}

func (c *Catalog) basePrefix() string {
	return c.serverPrefix() + "base/"
}

// BackupDirPrefix returns the remote key prefix a backup's files,
// backup.info, backup_label, and annotations live under.
func (c *Catalog) BackupDirPrefix(backupID string) string {
	return c.basePrefix() + backupID + "/"
}

func (c *Catalog) walPrefix() string {
	return c.serverPrefix() + "wals/"
}

func (c *Catalog) serverPrefix() string {
	if c.prefix == "" {
		return c.server + "/"
	}
	return strings.TrimSuffix(c.prefix, "/") + "/" + c.server + "/"
}

// backupInfoJSON mirrors Backup for serialization on the wire; an
// uploader writes this shape as backup.info and this engine only ever
// reads it.
type backupInfoJSON struct {
	ID            string         `json:"backup_id"`
	Name          string         `json:"backup_name,omitempty"`
	Status        Status         `json:"status"`
	BeginWAL      string         `json:"begin_wal"`
	EndWAL        string         `json:"end_wal"`
	Mode          Mode           `json:"mode"`
	BeginTime     *time.Time     `json:"begin_time,omitempty"`
	EndTime       *time.Time     `json:"end_time,omitempty"`
	SnapshotsInfo *SnapshotsInfo `json:"snapshots_info,omitempty"`
}

// ListBackups lists "{base}/" one level and reads backup.info for each
// backup-id subdirectory. A read or parse failure records the id in
// UnreadableBackups and processing continues with the rest. The result
// is cached; call Invalidate to force a re-list.
func (c *Catalog) ListBackups(ctx context.Context) (map[string]*Backup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backupsLoaded {
		return c.backups, nil
	}

	prefixes, err := c.store.ListPrefix(ctx, c.basePrefix(), "/")
	if err != nil {
		return nil, errs.New(errs.StoreFailure, fmt.Errorf("catalog: listing %s: %w", c.basePrefix(), err))
	}

	backups := make(map[string]*Backup)
	var unreadable []string
	for _, p := range prefixes {
		id := strings.TrimSuffix(strings.TrimPrefix(p, c.basePrefix()), "/")
		if id == "" {
			continue
		}
		backup, err := c.readBackupInfo(ctx, id)
		if err != nil {
			unreadable = append(unreadable, id)
			continue
		}
		backups[id] = backup
	}

	sort.Strings(unreadable)
	c.backups = backups
	c.unreadableBackups = unreadable
	c.backupsLoaded = true
	return backups, nil
}

func (c *Catalog) readBackupInfo(ctx context.Context, id string) (*Backup, error) {
	key := c.basePrefix() + id + "/backup.info"
	rc, found, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	if !found {
		return nil, fmt.Errorf("%s does not exist", key)
	}
	defer rc.Close()

	var raw backupInfoJSON
	if err := json.NewDecoder(rc).Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", key, err)
	}

	b := &Backup{
		ID:            raw.ID,
		Name:          raw.Name,
		Status:        raw.Status,
		BeginWAL:      raw.BeginWAL,
		EndWAL:        raw.EndWAL,
		Mode:          raw.Mode,
		SnapshotsInfo: raw.SnapshotsInfo,
	}
	if raw.BeginTime != nil {
		b.BeginTime = *raw.BeginTime
	}
	if raw.EndTime != nil {
		b.EndTime = *raw.EndTime
	}
	if b.ID == "" {
		b.ID = id
	}
	b.Timeline = deriveTimeline(b.BeginWAL)
	return b, nil
}

// UnreadableBackups returns the ids whose metadata failed to load on
// the most recent ListBackups call. Destructive operations must refuse
// to proceed while this is non-empty.
func (c *Catalog) UnreadableBackups() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.unreadableBackups...)
}

// GetBackup returns the cached Backup for id, loading the catalog first
// if it hasn't been loaded yet.
func (c *Catalog) GetBackup(ctx context.Context, id string) (*Backup, bool, error) {
	backups, err := c.ListBackups(ctx)
	if err != nil {
		return nil, false, err
	}
	b, ok := backups[id]
	return b, ok, nil
}

// ListBackupFiles enumerates the data tar and tablespace tars (plus any
// overflow parts) for info. With allowMissing, entries whose primary
// archive cannot be found come back with a nil PrimaryPath rather than
// failing the whole call — this engine preserves that pattern
// (deleting only the additional files, silently skipping the absent
// primary) without re-validating it; see DESIGN.md's Open Question
// decisions for why.
func (c *Catalog) ListBackupFiles(ctx context.Context, info *Backup, allowMissing bool) (map[string]BackupFile, error) {
	if info.IsSnapshot() {
		// Snapshot backups store no data/tablespace files remotely;
		// only backup_label exists and is handled separately by the
		// deletion executor.
		return map[string]BackupFile{}, nil
	}

	backupDir := c.basePrefix() + info.ID + "/"
	keys, err := c.store.ListPrefix(ctx, backupDir, "")
	if err != nil {
		return nil, errs.New(errs.StoreFailure, fmt.Errorf("catalog: listing files for %s: %w", info.ID, err))
	}

	files := make(map[string]BackupFile)
	for _, key := range keys {
		name := strings.TrimPrefix(key, backupDir)
		if name == "backup.info" || name == "backup_label" || strings.HasPrefix(name, "annotations/") {
			continue
		}
		oid, isOverflow := parseDataFileName(name)
		entry := files[oid]
		entry.OID = oid
		pathCopy := key
		if isOverflow {
			entry.AdditionalPaths = append(entry.AdditionalPaths, pathCopy)
		} else {
			entry.PrimaryPath = &pathCopy
		}
		files[oid] = entry
	}

	// allowMissing has no effect on this backend: a primary path that
	// exists remotely is always discoverable by listing, so entries
	// only ever come back with a nil PrimaryPath when no such archive
	// was ever uploaded for that oid — the same state allowMissing asks
	// the caller to tolerate rather than error on.
	_ = allowMissing
	return files, nil
}

// parseDataFileName maps a backup directory member's file name to its
// oid (or PGDATASentinel) and reports whether it is an overflow part
// rather than the primary archive for that oid.
func parseDataFileName(name string) (oid string, isOverflow bool) {
	base := name
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	stem := strings.TrimSuffix(strings.TrimSuffix(base, ".tar"), ".tar.gz")
	parts := strings.SplitN(stem, "_", 2)
	if parts[0] == "data" {
		oid = PGDATASentinel
	} else {
		oid = parts[0]
	}
	isOverflow = len(parts) > 1 && parts[1] != ""
	return oid, isOverflow
}

// ListWalKeys enumerates "{wals}/" recursively. The result is cached;
// call Invalidate to force a re-list.
func (c *Catalog) ListWalKeys(ctx context.Context) (map[string]WalEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.walEntriesLoaded {
		return c.walEntries, nil
	}

	keys, err := c.store.ListPrefix(ctx, c.walPrefix(), "")
	if err != nil {
		return nil, errs.New(errs.StoreFailure, fmt.Errorf("catalog: listing %s: %w", c.walPrefix(), err))
	}

	entries := make(map[string]WalEntry, len(keys))
	for _, key := range keys {
		rel := strings.TrimPrefix(key, c.walPrefix())
		name := path.Base(rel)
		logical := stripCompressionSuffix(name)
		entries[logical] = WalEntry{Name: logical, StorageKey: key}
	}
	c.walEntries = entries
	c.walEntriesLoaded = true
	return entries, nil
}

var compressionSuffixes = []string{".gz", ".bz2", ".snappy", ".zst"}

func stripCompressionSuffix(name string) string {
	for _, suffix := range compressionSuffixes {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}

// ListWalPrefixes is the optional fast path for one-level common-prefix
// listing at the WAL root, yielding per-{timeline,log} prefixes. It
// returns errs.ErrNotSupported when the backend declines, which
// WalCleanupPlanner treats as "no shortcut available" and falls back
// to enumerating individual WALs.
func (c *Catalog) ListWalPrefixes(ctx context.Context) ([]string, error) {
	prefixes, err := c.store.ListPrefix(ctx, c.walPrefix(), "/")
	if err != nil {
		if errs.Is(err, errs.NotSupported) {
			return nil, err
		}
		return nil, errs.New(errs.StoreFailure, fmt.Errorf("catalog: listing WAL prefixes: %w", err))
	}
	return prefixes, nil
}

// ParseBackupID resolves ref to a concrete backup id. If ref already
// has the id grammar it's returned verbatim; otherwise it's resolved
// as a backup name, or one of the reserved tokens (latest, last,
// oldest, first, last-failed) against the current backup list.
func (c *Catalog) ParseBackupID(ctx context.Context, ref string) (string, error) {
	if IsBackupID(ref) {
		return ref, nil
	}

	backups, err := c.ListBackups(ctx)
	if err != nil {
		return "", err
	}

	if reservedNames[ref] {
		return resolveReservedToken(ref, backups)
	}

	for id, b := range backups {
		if b.Name == ref {
			return id, nil
		}
	}
	return "", errs.New(errs.BackupNotFound, fmt.Errorf("no backup matches %q", ref))
}

func resolveReservedToken(token string, backups map[string]*Backup) (string, error) {
	ids := sortedIDs(backups)
	switch token {
	case "oldest", "first":
		for _, id := range ids {
			if backups[id].Status == StatusDone {
				return id, nil
			}
		}
	case "latest", "last":
		for i := len(ids) - 1; i >= 0; i-- {
			if backups[ids[i]].Status == StatusDone {
				return ids[i], nil
			}
		}
	case "last-failed":
		for i := len(ids) - 1; i >= 0; i-- {
			if backups[ids[i]].Status == StatusFailed {
				return ids[i], nil
			}
		}
	}
	return "", errs.New(errs.BackupNotFound, fmt.Errorf("no backup resolves reserved token %q", token))
}

func sortedIDs(backups map[string]*Backup) []string {
	ids := make([]string, 0, len(backups))
	for id := range backups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SortedDoneBackups returns every DONE backup, ascending by id.
func (c *Catalog) SortedDoneBackups(ctx context.Context) ([]*Backup, error) {
	backups, err := c.ListBackups(ctx)
	if err != nil {
		return nil, err
	}
	ids := sortedIDs(backups)
	out := make([]*Backup, 0, len(ids))
	for _, id := range ids {
		if backups[id].Status == StatusDone {
			out = append(out, backups[id])
		}
	}
	return out, nil
}

// EvictBackup removes id from the cached backup list without touching
// the remote store.
func (c *Catalog) EvictBackup(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.backups, id)
}

// EvictWal removes name from the cached WAL list without touching the
// remote store.
func (c *Catalog) EvictWal(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.walEntries, name)
}

// Invalidate drops both caches, forcing the next ListBackups/
// ListWalKeys call to re-list the remote store. The catalog is a
// caching projection, never the source of truth.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backupsLoaded = false
	c.walEntriesLoaded = false
	c.backups = nil
	c.walEntries = nil
	c.unreadableBackups = nil
}

// CheckWalArchive is a sanity check, supplemented from
// cloud_check_wal_archive.py: it fails if the WAL archive for this
// server is non-empty but the server has no backups yet, which guards
// against archiving into a prefix that collides with an existing,
// unrelated archive.
func (c *Catalog) CheckWalArchive(ctx context.Context) error {
	backups, err := c.ListBackups(ctx)
	if err != nil {
		return err
	}
	if len(backups) > 0 {
		return nil
	}
	wals, err := c.ListWalKeys(ctx)
	if err != nil {
		return err
	}
	if len(wals) > 0 {
		return errs.New(errs.StoreFailure, fmt.Errorf(
			"catalog: WAL archive for %s is not empty but no backups exist; "+
				"refusing to archive into what may be an unrelated server's prefix", c.server))
	}
	return nil
}

// ValidateBackupName rejects a name matching a reserved token, the
// backup-id grammar, or an existing backup's name (Testable
// Property 8).
func ValidateBackupName(name string, existing map[string]*Backup) error {
	if name == "" {
		return nil
	}
	if reservedNames[name] {
		return errs.New(errs.ReservedBackupName, fmt.Errorf("%q is a reserved backup name", name))
	}
	if IsBackupID(name) {
		return errs.New(errs.ReservedBackupName, fmt.Errorf("%q looks like a backup id and cannot be used as a name", name))
	}
	for _, b := range existing {
		if b.Name == name {
			return errs.New(errs.ReservedBackupName, fmt.Errorf("%q is already in use by backup %s", name, b.ID))
		}
	}
	return nil
}
