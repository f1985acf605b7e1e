package keep

import (
	"context"
	"testing"

	"github.com/cuemby/custodian/pkg/annotation"
	"github.com/cuemby/custodian/pkg/errs"
)

func TestPinTargetUnpin(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(annotation.NewFilesystemStore(t.TempDir(), ""))

	pinned, err := reg.IsPinned(ctx, "B0", true)
	if err != nil || pinned {
		t.Fatalf("fresh backup should be unpinned, got pinned=%v err=%v", pinned, err)
	}

	if err := reg.Pin(ctx, "B0", TargetStandalone); err != nil {
		t.Fatalf("Pin: %v", err)
	}
	target, err := reg.Target(ctx, "B0", true)
	if err != nil || target != TargetStandalone {
		t.Fatalf("Target = %q, err=%v", target, err)
	}

	if err := reg.Unpin(ctx, "B0"); err != nil {
		t.Fatalf("Unpin: %v", err)
	}
	target, err = reg.Target(ctx, "B0", true)
	if err != nil || target != TargetNone {
		t.Fatalf("Target after unpin = %q, err=%v", target, err)
	}
}

func TestPinRejectsUnsupportedTarget(t *testing.T) {
	reg := NewRegistry(annotation.NewFilesystemStore(t.TempDir(), ""))
	err := reg.Pin(context.Background(), "B0", "bogus")
	if err == nil {
		t.Fatal("expected an error for an unsupported target")
	}
	if !errs.Is(err, errs.UnsupportedKeepTarget) {
		t.Errorf("expected UnsupportedKeepTarget, got %v", err)
	}
}

func TestUnpinIsIdempotent(t *testing.T) {
	reg := NewRegistry(annotation.NewFilesystemStore(t.TempDir(), ""))
	if err := reg.Unpin(context.Background(), "never-pinned"); err != nil {
		t.Errorf("Unpin of an unpinned backup should not error, got %v", err)
	}
}
