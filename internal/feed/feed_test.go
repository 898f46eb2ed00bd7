package feed

import (
	"context"
	"testing"
	"time"

	"vivarium/pkg/domain"
)

func TestNewChangeRecordResolvesEntityID(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	created := NewChangeRecord(domain.Change{
		Entity: domain.EntityRack,
		Action: domain.ActionCreate,
		After:  domain.Rack{Base: domain.Base{ID: "r1"}},
	}, now)
	if created.ID != "r1" || created.Entity != domain.EntityRack || created.Action != domain.ActionCreate {
		t.Fatalf("record %+v", created)
	}
	if created.Timestamp != now.Unix() {
		t.Fatalf("timestamp %d, want %d", created.Timestamp, now.Unix())
	}

	// Deletions only carry the before image.
	deleted := NewChangeRecord(domain.Change{
		Entity: domain.EntityAnimal,
		Action: domain.ActionDelete,
		Before: domain.Animal{Base: domain.Base{ID: "a1"}},
	}, now)
	if deleted.ID != "a1" {
		t.Fatalf("deleted id %q, want a1", deleted.ID)
	}
}

func TestMemoryBusFanOut(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := bus.Subscribe(ctx)
	second := bus.Subscribe(ctx)

	record := ChangeRecord{Entity: domain.EntityCage, Action: domain.ActionUpdate, ID: "c1"}
	if err := bus.Publish(ctx, record); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for i, ch := range []<-chan ChangeRecord{first, second} {
		select {
		case got := <-ch:
			if got.ID != "c1" {
				t.Fatalf("subscriber %d got %+v", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d got nothing", i)
		}
	}
}

func TestMemoryBusUnsubscribeOnContextCancel(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch := bus.Subscribe(ctx)
	cancel()

	// The subscription channel closes once the context is done.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel never closed after cancel")
		}
	}
}

func TestMemoryBusCloseClosesSubscribers(t *testing.T) {
	bus := NewMemoryBus()
	ch := bus.Subscribe(context.Background())

	if err := bus.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel never closed")
	}

	// Subscribing after close yields an already-closed channel.
	late := bus.Subscribe(context.Background())
	if _, ok := <-late; ok {
		t.Fatal("late subscription should be closed")
	}
}

func TestOpenBusWithConfigDefaults(t *testing.T) {
	bus, err := OpenBusWithConfig(Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := bus.(*MemoryBus); !ok {
		t.Fatalf("bus %T, want *MemoryBus", bus)
	}

	if _, err := OpenBusWithConfig(Config{Driver: "carrier-pigeon"}); err == nil {
		t.Fatal("unknown driver should error")
	}
}

func TestOpenBusWithConfigBadRedisURL(t *testing.T) {
	_, err := OpenBusWithConfig(Config{Driver: DriverRedis, RedisURL: "://bad"})
	if err == nil {
		t.Fatal("invalid redis url should error")
	}
}
