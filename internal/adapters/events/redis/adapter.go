package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"zeroone.host/internal/core/domain"
	"zeroone.host/internal/core/ports"
)

const (
	EventChannel  = "agent:events"
	statsKey      = "agent:stats:"
	statsCacheTTL = 30 * time.Second
)

type RedisAdapter struct {
	client *redis.Client
}

var _ ports.EventBus = (*RedisAdapter)(nil)

func NewRedisAdapter(url string) (*RedisAdapter, *redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	return &RedisAdapter{client: client}, client, nil
}

func (r *RedisAdapter) PublishAgentEvent(ctx context.Context, ev domain.AgentEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, EventChannel, data).Err()
}

// SubscribeAgentEvents streams lifecycle events until ctx is canceled. The
// returned channel is closed when the subscription ends.
func (r *RedisAdapter) SubscribeAgentEvents(ctx context.Context) (<-chan domain.AgentEvent, error) {
	pubsub := r.client.Subscribe(ctx, EventChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	ch := make(chan domain.AgentEvent)
	go func() {
		defer pubsub.Close()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				var ev domain.AgentEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// CacheStats keeps the latest snapshot per agent under a short TTL so the
// stats endpoint can answer without hitting the Docker API on every request.
func (r *RedisAdapter) CacheStats(ctx context.Context, agentID string, s domain.StatsSnapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, statsKey+agentID, data, statsCacheTTL).Err()
}

// CachedStats returns nil without error on a cache miss.
func (r *RedisAdapter) CachedStats(ctx context.Context, agentID string) (*domain.StatsSnapshot, error) {
	data, err := r.client.Get(ctx, statsKey+agentID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s domain.StatsSnapshot
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return nil, err
	}
	return &s, nil
}
