package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher publishes events on a pub/sub channel so several adapter
// processes can subscribe.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, b).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// EntryWriter is satisfied by journal.Writer.
type EntryWriter interface {
	Write(v any) error
}

// JournalSink records every event in the world journal.
type JournalSink struct {
	w EntryWriter
}

func NewJournalSink(w EntryWriter) *JournalSink {
	return &JournalSink{w: w}
}

func (s *JournalSink) Publish(_ context.Context, event Event) error {
	return s.w.Write(event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}
