package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is a fixed-window counter shared by every API instance.
type Redis struct {
	client *redis.Client
	rules  Rules
	prefix string
}

// NewRedis builds a distributed limiter.
func NewRedis(client *redis.Client, rules Rules, prefix string) *Redis {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &Redis{client: client, rules: rules, prefix: prefix}
}

// Key returns the counter key for a class and caller.
func (r *Redis) Key(class, key string) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, class, key)
}

// Allow implements Limiter. INCR and EXPIRE NX run in one MULTI so the
// increment-and-check cannot interleave with another request.
func (r *Redis) Allow(ctx context.Context, class, key string) (Decision, error) {
	rule, ok := r.rules.lookup(class)
	if !ok {
		return Decision{Allowed: true, Remaining: -1}, nil
	}
	counterKey := r.Key(class, key)

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, counterKey)
		pipe.ExpireNX(ctx, counterKey, rule.Window)
		ttl = pipe.PTTL(ctx, counterKey)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit %s: %w", counterKey, err)
	}

	count := int(incr.Val())
	if count > rule.Limit {
		wait := ttl.Val()
		if wait <= 0 {
			wait = rule.Window
		}
		return Decision{Allowed: false, RetryAfter: wait}, nil
	}
	return Decision{Allowed: true, Remaining: rule.Limit - count}, nil
}

var _ Limiter = (*Redis)(nil)
var _ Limiter = (*Memory)(nil)
