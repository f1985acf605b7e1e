package annotation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFilesystemPutGetDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := NewFilesystemStore(dir, "")

	if err := store.Put(ctx, "B0", "keep", []byte("full")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	value, found, err := store.Get(ctx, "B0", "keep", true)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if string(value) != "full" {
		t.Errorf("Get returned %q, want %q", value, "full")
	}

	if err := store.Delete(ctx, "B0", "keep"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, found, _ = store.Get(ctx, "B0", "keep", true)
	if found {
		t.Error("annotation should be gone after delete")
	}
}

func TestFilesystemDeleteIsIdempotentOnAbsence(t *testing.T) {
	store := NewFilesystemStore(t.TempDir(), "")
	if err := store.Delete(context.Background(), "B0", "keep"); err != nil {
		t.Errorf("deleting an absent annotation should not error, got %v", err)
	}
}

func TestFilesystemEmptyValueAllowed(t *testing.T) {
	ctx := context.Background()
	store := NewFilesystemStore(t.TempDir(), "")
	if err := store.Put(ctx, "B0", "keep", []byte{}); err != nil {
		t.Fatalf("Put empty value: %v", err)
	}
	value, found, err := store.Get(ctx, "B0", "keep", true)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if len(value) != 0 {
		t.Errorf("expected empty value, got %q", value)
	}
}

func TestFilesystemLegacyMigrationOnRead(t *testing.T) {
	ctx := context.Background()
	newDir := t.TempDir()
	legacyRoot := t.TempDir()
	store := NewFilesystemStore(newDir, legacyRoot)

	legacyAnnDir := filepath.Join(legacyRoot, "B0", "annotations")
	if err := os.MkdirAll(legacyAnnDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(legacyAnnDir, "keep"), []byte("standalone"), 0644); err != nil {
		t.Fatal(err)
	}

	value, found, err := store.Get(ctx, "B0", "keep", true)
	if err != nil || !found {
		t.Fatalf("Get after migration: found=%v err=%v", found, err)
	}
	if string(value) != "standalone" {
		t.Errorf("Get returned %q, want %q", value, "standalone")
	}

	if _, err := os.Stat(filepath.Join(legacyAnnDir, "keep")); !os.IsNotExist(err) {
		t.Error("legacy annotation file should have been moved away")
	}
	if _, err := os.Stat(filepath.Join(newDir, "B0-keep")); err != nil {
		t.Errorf("new-layout file should exist after migration: %v", err)
	}
}

func TestFilesystemLegacyWinsOnCollision(t *testing.T) {
	ctx := context.Background()
	newDir := t.TempDir()
	legacyRoot := t.TempDir()
	store := NewFilesystemStore(newDir, legacyRoot)

	// Pre-seed both the new path and the legacy path with conflicting values.
	if err := os.WriteFile(filepath.Join(newDir, "B0-keep"), []byte("new-value"), 0644); err != nil {
		t.Fatal(err)
	}
	legacyAnnDir := filepath.Join(legacyRoot, "B0", "annotations")
	if err := os.MkdirAll(legacyAnnDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(legacyAnnDir, "keep"), []byte("legacy-value"), 0644); err != nil {
		t.Fatal(err)
	}

	value, found, err := store.Get(ctx, "B0", "keep", true)
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if string(value) != "legacy-value" {
		t.Errorf("on collision the legacy value should win the move, got %q", value)
	}
}
