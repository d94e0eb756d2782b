package navigation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ent0n29/civicvoice/internal/reliability"
)

const DefaultChannelPrefix = "civicvoice:navigation"

// RedisPublisher fans navigation events out over Redis pub/sub so routers in
// other processes can follow a session.
type RedisPublisher struct {
	client *redis.Client
	prefix string
	retry  reliability.Policy
}

var defaultPublishRetry = reliability.Policy{
	Attempts: 3,
	Base:     25 * time.Millisecond,
	Cap:      200 * time.Millisecond,
}

func NewRedisPublisher(ctx context.Context, redisURL, prefix string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return NewRedisPublisherWithClient(client, prefix), nil
}

func NewRedisPublisherWithClient(client *redis.Client, prefix string) *RedisPublisher {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix, retry: defaultPublishRetry}
}

// Channel is the pub/sub channel carrying events for sessionID.
func (p *RedisPublisher) Channel(sessionID string) string {
	return p.prefix + ":" + sessionID
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev.Message())
	if err != nil {
		return fmt.Errorf("encode navigation event: %w", err)
	}
	channel := p.Channel(ev.SessionID)
	err = p.retry.Do(ctx, func(ctx context.Context) error {
		return p.client.Publish(ctx, channel, payload).Err()
	})
	if err != nil {
		return fmt.Errorf("publish navigation event: %w", err)
	}
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
