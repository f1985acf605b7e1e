package catalog

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cuemby/custodian/pkg/objectstore"
	"github.com/cuemby/custodian/pkg/objectstore/localstore"
)

func newTestCatalog(t *testing.T) (*Catalog, objectstore.Store, func()) {
	t.Helper()
	store, err := localstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("localstore.Open: %v", err)
	}
	return New(store, "", "myserver"), store, func() { store.Close() }
}

func putBackupInfo(t *testing.T, store objectstore.Store, server, id string, info backupInfoJSON) {
	t.Helper()
	if info.ID == "" {
		info.ID = id
	}
	data, err := json.Marshal(info)
	if err != nil {
		t.Fatal(err)
	}
	key := server + "/base/" + id + "/backup.info"
	if err := store.Put(context.Background(), key, data); err != nil {
		t.Fatal(err)
	}
}

func TestListBackupsParsesAndCaches(t *testing.T) {
	ctx := context.Background()
	cat, store, cleanup := newTestCatalog(t)
	defer cleanup()

	putBackupInfo(t, store, "myserver", "20210722T000000", backupInfoJSON{
		Status: StatusDone, BeginWAL: "000000010000000000000073", EndWAL: "000000010000000000000074", Mode: ModeConcurrent,
	})
	putBackupInfo(t, store, "myserver", "20210723T000000", backupInfoJSON{
		Status: StatusDone, BeginWAL: "000000010000000000000076", EndWAL: "000000010000000000000077", Mode: ModeConcurrent,
	})

	backups, err := cat.ListBackups(ctx)
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("got %d backups, want 2", len(backups))
	}
	if backups["20210722T000000"].Timeline != 1 {
		t.Errorf("timeline = %d, want 1", backups["20210722T000000"].Timeline)
	}
	if len(cat.UnreadableBackups()) != 0 {
		t.Errorf("unexpected unreadable backups: %v", cat.UnreadableBackups())
	}

	// A second call must be served from cache: writing a new backup and
	// calling again should not see it until Invalidate.
	putBackupInfo(t, store, "myserver", "20210724T000000", backupInfoJSON{Status: StatusDone})
	backups, err = cat.ListBackups(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 2 {
		t.Fatalf("cache should still report 2 backups, got %d", len(backups))
	}

	cat.Invalidate()
	backups, err = cat.ListBackups(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 3 {
		t.Fatalf("after Invalidate, expected 3 backups, got %d", len(backups))
	}
}

func TestListBackupsRecordsUnreadable(t *testing.T) {
	ctx := context.Background()
	cat, store, cleanup := newTestCatalog(t)
	defer cleanup()

	if err := store.Put(ctx, "myserver/base/20210722T000000/backup.info", []byte("not json")); err != nil {
		t.Fatal(err)
	}

	backups, err := cat.ListBackups(ctx)
	if err != nil {
		t.Fatalf("ListBackups: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("malformed backup should not appear in the readable set")
	}
	unreadable := cat.UnreadableBackups()
	if len(unreadable) != 1 || unreadable[0] != "20210722T000000" {
		t.Errorf("UnreadableBackups = %v, want [20210722T000000]", unreadable)
	}
}

func TestListWalKeysStripsCompressionSuffix(t *testing.T) {
	ctx := context.Background()
	cat, store, cleanup := newTestCatalog(t)
	defer cleanup()

	store.Put(ctx, "myserver/wals/0000000100000000/000000010000000000000073.gz", []byte("x"))
	store.Put(ctx, "myserver/wals/0000000100000000/000000010000000000000074", []byte("x"))

	entries, err := cat.ListWalKeys(ctx)
	if err != nil {
		t.Fatalf("ListWalKeys: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	e := entries["000000010000000000000073"]
	if e.StorageKey != "myserver/wals/0000000100000000/000000010000000000000073.gz" {
		t.Errorf("unexpected storage key %q", e.StorageKey)
	}
}

func TestParseBackupIDResolvesNameAndReservedTokens(t *testing.T) {
	ctx := context.Background()
	cat, store, cleanup := newTestCatalog(t)
	defer cleanup()

	putBackupInfo(t, store, "myserver", "20210722T000000", backupInfoJSON{Status: StatusDone, Name: "nightly"})
	putBackupInfo(t, store, "myserver", "20210723T000000", backupInfoJSON{Status: StatusDone})

	if id, err := cat.ParseBackupID(ctx, "20210722T000000"); err != nil || id != "20210722T000000" {
		t.Errorf("id-shaped ref should pass through verbatim, got %q, %v", id, err)
	}
	if id, err := cat.ParseBackupID(ctx, "nightly"); err != nil || id != "20210722T000000" {
		t.Errorf("name resolution failed: got %q, %v", id, err)
	}
	if id, err := cat.ParseBackupID(ctx, "latest"); err != nil || id != "20210723T000000" {
		t.Errorf("latest should resolve to newest DONE backup, got %q, %v", id, err)
	}
	if id, err := cat.ParseBackupID(ctx, "oldest"); err != nil || id != "20210722T000000" {
		t.Errorf("oldest should resolve to earliest DONE backup, got %q, %v", id, err)
	}
	if _, err := cat.ParseBackupID(ctx, "does-not-exist"); err == nil {
		t.Error("expected an error resolving an unknown name")
	}
}

func TestValidateBackupName(t *testing.T) {
	existing := map[string]*Backup{"20210722T000000": {ID: "20210722T000000", Name: "nightly"}}

	cases := []struct {
		name    string
		wantErr bool
	}{
		{"weekly", false},
		{"latest", true},
		{"last-failed", true},
		{"20210722T000000", true},
		{"nightly", true},
	}
	for _, c := range cases {
		err := ValidateBackupName(c.name, existing)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateBackupName(%q) error=%v, wantErr=%v", c.name, err, c.wantErr)
		}
	}
}

func TestCheckWalArchiveRejectsForeignArchive(t *testing.T) {
	ctx := context.Background()
	cat, store, cleanup := newTestCatalog(t)
	defer cleanup()

	store.Put(ctx, "myserver/wals/0000000100000000/000000010000000000000073", []byte("x"))

	if err := cat.CheckWalArchive(ctx); err == nil {
		t.Error("expected CheckWalArchive to reject a populated archive with zero backups")
	}
}

func TestCheckWalArchiveAllowsEmptyServer(t *testing.T) {
	cat, _, cleanup := newTestCatalog(t)
	defer cleanup()
	if err := cat.CheckWalArchive(context.Background()); err != nil {
		t.Errorf("an entirely empty server should pass the check, got %v", err)
	}
}

func TestListBackupFilesSkipsAnnotationsAndGroupsOverflow(t *testing.T) {
	ctx := context.Background()
	cat, store, cleanup := newTestCatalog(t)
	defer cleanup()

	b := &Backup{ID: "20210722T000000"}
	store.Put(ctx, "myserver/base/20210722T000000/data.tar", []byte("x"))
	store.Put(ctx, "myserver/base/20210722T000000/data_0001.tar", []byte("x"))
	store.Put(ctx, "myserver/base/20210722T000000/16401.tar", []byte("x"))
	store.Put(ctx, "myserver/base/20210722T000000/backup.info", []byte("{}"))
	store.Put(ctx, "myserver/base/20210722T000000/annotations/keep", []byte("full"))

	files, err := cat.ListBackupFiles(ctx, b, true)
	if err != nil {
		t.Fatalf("ListBackupFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d file groups, want 2 (PGDATA, 16401)", len(files))
	}
	pgdata := files[PGDATASentinel]
	if pgdata.PrimaryPath == nil || len(pgdata.AdditionalPaths) != 1 {
		t.Errorf("PGDATA entry = %+v, want primary + 1 overflow part", pgdata)
	}
}
