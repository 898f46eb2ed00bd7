package feed

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// Channel is the pub/sub channel change records are published on.
const Channel = "vivarium:changes"

// RedisBus publishes change records over Redis pub/sub so out-of-process
// consumers can follow the inventory.
type RedisBus struct {
	client redis.UniversalClient
}

// NewRedisBus wraps an existing Redis client.
func NewRedisBus(client redis.UniversalClient) *RedisBus {
	return &RedisBus{client: client}
}

func (b *RedisBus) Publish(ctx context.Context, record ChangeRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, Channel, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context) <-chan ChangeRecord {
	sub := b.client.Subscribe(ctx, Channel)
	ch := make(chan ChangeRecord, 100)

	go func() {
		defer close(ch)
		for msg := range sub.Channel() {
			var record ChangeRecord
			if err := json.Unmarshal([]byte(msg.Payload), &record); err != nil {
				continue
			}
			ch <- record
		}
	}()

	go func() {
		<-ctx.Done()
		_ = sub.Close()
	}()

	return ch
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
