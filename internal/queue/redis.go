package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const tickQueueKey = "scout:tick_queue"

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL(%q): %w", redisURL, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// RedisTrigger delivers tick triggers through a Redis list. Delivery is
// at-least-once: a consumer crash after BRPOP loses nothing the reaper
// cannot recover, and a re-pushed id is harmless.
type RedisTrigger struct {
	rdb *redis.Client
}

// NewRedisTrigger wraps an existing client.
func NewRedisTrigger(rdb *redis.Client) *RedisTrigger {
	return &RedisTrigger{rdb: rdb}
}

func (t *RedisTrigger) Enqueue(ctx context.Context, jobID string) error {
	if err := t.rdb.LPush(ctx, tickQueueKey, jobID).Err(); err != nil {
		return fmt.Errorf("enqueue tick for %s: %w", jobID, err)
	}
	return nil
}

// Consume blocks on the queue and invokes handler for each delivered job
// id until ctx is cancelled. Handler invocations are serialized per
// consumer; run one consumer per process.
func (t *RedisTrigger) Consume(ctx context.Context, handler TickHandler) {
	log.Printf("[queue] Tick consumer started on %s", tickQueueKey)
	for {
		if ctx.Err() != nil {
			log.Println("[queue] Tick consumer stopped")
			return
		}

		res, err := t.rdb.BRPop(ctx, 5*time.Second, tickQueueKey).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			log.Printf("[queue] BRPOP error: %v — backing off", err)
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
			continue
		}
		if len(res) != 2 {
			continue
		}
		handler(ctx, res[1])
	}
}

// PublishEvent emits a job lifecycle event for dashboard consumers
// (non-fatal; callers log and continue on error).
func (t *RedisTrigger) PublishEvent(ctx context.Context, channel string, payload []byte) error {
	return t.rdb.Publish(ctx, channel, payload).Err()
}
