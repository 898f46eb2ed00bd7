package feed

import (
	"context"
	"sync"
)

// MemoryBus fans records out to in-process subscribers over buffered
// channels. Slow subscribers drop records rather than block publishers.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[chan ChangeRecord]struct{}
	closed bool
}

// NewMemoryBus constructs an in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[chan ChangeRecord]struct{})}
}

func (b *MemoryBus) Publish(_ context.Context, record ChangeRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- record:
		default:
		}
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context) <-chan ChangeRecord {
	ch := make(chan ChangeRecord, 100)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}()
	return ch
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	return nil
}
