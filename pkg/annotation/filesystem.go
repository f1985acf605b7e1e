package annotation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FilesystemStore stores each annotation as a regular file named
// "{backupID}-{key}" in a single flat directory. It also understands a
// legacy layout, "{legacyBackupDir}/{backupID}/annotations/{key}", and
// migrates lazily: before any read or delete of (backupID, key), if the
// legacy path exists it is moved to the new path. If both exist, the
// legacy path wins the move — the new path is removed first so the
// rename's precondition (destination absent) always holds. See
// DESIGN.md's Open Question decisions for why this collision policy was
// chosen over silently preferring whichever path happens to be newer.
type FilesystemStore struct {
	basePath        string
	legacyBackupDir string
}

// NewFilesystemStore builds a FilesystemStore rooted at basePath. When
// legacyBackupDir is non-empty, reads and deletes also check for and
// migrate the pre-existing per-backup annotations directory layout.
func NewFilesystemStore(basePath, legacyBackupDir string) *FilesystemStore {
	return &FilesystemStore{basePath: basePath, legacyBackupDir: legacyBackupDir}
}

func (f *FilesystemStore) path(backupID, key string) string {
	return filepath.Join(f.basePath, fmt.Sprintf("%s-%s", backupID, key))
}

func (f *FilesystemStore) legacyPath(backupID, key string) string {
	if f.legacyBackupDir == "" {
		return ""
	}
	return filepath.Join(f.legacyBackupDir, backupID, "annotations", key)
}

func (f *FilesystemStore) legacyDir(backupID string) string {
	if f.legacyBackupDir == "" {
		return ""
	}
	return filepath.Join(f.legacyBackupDir, backupID, "annotations")
}

// migrate relocates a legacy annotation into the new flat layout, if
// one exists. It is a no-op when there's no legacy path configured or
// no legacy file present.
func (f *FilesystemStore) migrate(backupID, key string) error {
	legacy := f.legacyPath(backupID, key)
	if legacy == "" {
		return nil
	}
	if _, err := os.Stat(legacy); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("annotation: stat legacy path %s: %w", legacy, err)
	}

	newPath := f.path(backupID, key)
	// The legacy path wins the move: clear the new path first so the
	// rename below never fails because the destination already exists.
	if err := os.Remove(newPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("annotation: clearing %s before legacy migration: %w", newPath, err)
	}
	if err := os.MkdirAll(filepath.Dir(newPath), 0755); err != nil {
		return fmt.Errorf("annotation: creating %s: %w", filepath.Dir(newPath), err)
	}
	if err := os.Rename(legacy, newPath); err != nil {
		return fmt.Errorf("annotation: migrating %s to %s: %w", legacy, newPath, err)
	}

	// Best-effort prune of the now possibly-empty legacy directory.
	if dir := f.legacyDir(backupID); dir != "" {
		_ = os.Remove(dir)
	}
	return nil
}

func (f *FilesystemStore) Put(_ context.Context, backupID, key string, value []byte) error {
	if err := f.migrate(backupID, key); err != nil {
		return err
	}
	path := f.path(backupID, key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("annotation: creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, value, 0644); err != nil {
		return fmt.Errorf("annotation: writing %s: %w", path, err)
	}
	return nil
}

func (f *FilesystemStore) Get(_ context.Context, backupID, key string, _ bool) ([]byte, bool, error) {
	if err := f.migrate(backupID, key); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(f.path(backupID, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("annotation: reading %s: %w", f.path(backupID, key), err)
	}
	return data, true, nil
}

func (f *FilesystemStore) Delete(_ context.Context, backupID, key string) error {
	if err := f.migrate(backupID, key); err != nil {
		return err
	}
	path := f.path(backupID, key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("annotation: deleting %s: %w", path, err)
	}
	return nil
}
