// Package publisher adapts the outbox relay to Redis Streams. XADD is the
// publish-confirm contract: a returned entry id is the acknowledgment.
package publisher

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(ctx context.Context, addr string) (*RedisPublisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("publisher: failed to ping redis: %w", err)
	}

	log.Info().Str("addr", addr).Msg("Connected to Redis")
	return &RedisPublisher{client: client}, nil
}

// Publish appends the event to the topic's stream. The event id travels as a
// separate field so consumers can de-duplicate without parsing the payload.
func (p *RedisPublisher) Publish(ctx context.Context, topic string, eventID uuid.UUID, payload []byte) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]any{
			"event_id": eventID.String(),
			"payload":  payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("publisher: failed to publish to %s: %w", topic, err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
