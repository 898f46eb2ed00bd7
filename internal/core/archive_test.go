package core

import (
	"context"
	"testing"
	"time"

	blobmem "vivarium/internal/infra/blob/memory"
)

func TestArchiverSnapshotAndRestore(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	rack, _ := mustAddRack(t, svc, "Rack A", 2)

	archiver := NewArchiver(svc.Store(), blobmem.New(), nil)
	archiver.SetNow(func() time.Time { return testClock })

	key, err := archiver.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if key != "snapshots/20250601T090000Z.json" {
		t.Fatalf("key %q", key)
	}

	// Mutate after the snapshot, then restore on top.
	if _, err := svc.DeleteRack(ctx, rack.ID); err != nil {
		t.Fatalf("delete rack: %v", err)
	}
	if racks, _ := svc.Racks(ctx); len(racks) != 0 {
		t.Fatal("rack should be gone before restore")
	}

	if err := archiver.Restore(ctx, key); err != nil {
		t.Fatalf("restore: %v", err)
	}
	restored, err := svc.RackByID(ctx, rack.ID)
	if err != nil {
		t.Fatalf("rack after restore: %v", err)
	}
	if restored.Name != "Rack A" {
		t.Fatalf("name %q", restored.Name)
	}
	cages, err := svc.CagesByRack(ctx, rack.ID)
	if err != nil {
		t.Fatalf("cages after restore: %v", err)
	}
	if len(cages) != 2 {
		t.Fatalf("cages %d, want 2", len(cages))
	}
}

func TestArchiverRestoreEmptyKeyUsesLatest(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	mustAddRack(t, svc, "Rack A", 1)

	shared := blobmem.New()
	writer := NewArchiver(svc.Store(), shared, nil)
	writer.SetNow(func() time.Time { return testClock })
	if _, err := writer.Snapshot(ctx); err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	fresh, _ := newTestService(t)
	if err := NewArchiver(fresh.Store(), blobmem.New(), nil).Restore(ctx, ""); err == nil {
		t.Fatal("restore from an empty archive should fail")
	}

	reader := NewArchiver(fresh.Store(), shared, nil)
	if err := reader.Restore(ctx, ""); err != nil {
		t.Fatalf("restore latest: %v", err)
	}
	if racks, _ := fresh.Racks(ctx); len(racks) != 1 {
		t.Fatalf("racks %d, want 1", len(racks))
	}
}

func TestArchiverListNewestFirst(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	mustAddRack(t, svc, "Rack A", 1)

	archiver := NewArchiver(svc.Store(), blobmem.New(), nil)
	times := []time.Time{
		testClock,
		testClock.Add(1 * time.Hour),
		testClock.Add(2 * time.Hour),
	}
	for _, at := range times {
		at := at
		archiver.SetNow(func() time.Time { return at })
		if _, err := archiver.Snapshot(ctx); err != nil {
			t.Fatalf("snapshot at %v: %v", at, err)
		}
	}

	infos, err := archiver.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("snapshots %d, want 3 (latest key excluded)", len(infos))
	}
	for i := 1; i < len(infos); i++ {
		if infos[i-1].Key < infos[i].Key {
			t.Fatalf("not newest first: %q before %q", infos[i-1].Key, infos[i].Key)
		}
	}
}
