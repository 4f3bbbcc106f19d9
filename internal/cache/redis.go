package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisAttempts remembers which payments were already charged once so the
// fake gateway's FAIL_ONCE_THEN_SUCCESS mode survives restarts and is shared
// by every instance. Entries expire after ttl.
type RedisAttempts struct {
	client      *redis.Client
	serviceName string
	ttl         time.Duration
}

func NewRedisAttempts(ctx context.Context, addr, serviceName string, ttl time.Duration) (*RedisAttempts, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisAttempts{client: client, serviceName: serviceName, ttl: ttl}, nil
}

// FirstAttempt reports whether this is the first charge seen for paymentID.
func (r *RedisAttempts) FirstAttempt(ctx context.Context, paymentID string) (bool, error) {
	first, err := r.client.SetNX(ctx, r.GenerateKey("gateway-attempt", paymentID), 1, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("record gateway attempt: %w", err)
	}
	return first, nil
}

func (r *RedisAttempts) GenerateKey(operation, key string) string {
	return fmt.Sprintf("%s:%s:%s", r.serviceName, operation, key)
}

func (r *RedisAttempts) Close() error {
	return r.client.Close()
}
