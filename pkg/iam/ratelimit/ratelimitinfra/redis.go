package ratelimitinfra

import (
	"context"
	"time"

	"github.com/keyward-io/keyward/pkg/iam/ratelimit"
	"github.com/keyward-io/keyward/pkg/kernel"
	"github.com/redis/go-redis/v9"
)

// incrScript counts the attempt and stamps the window TTL in one atomic step.
// Returns {count, ttl_ms}.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// RedisLimiter is a fixed-window limiter shared across nodes.
type RedisLimiter struct {
	rdb   *redis.Client
	rules map[ratelimit.Namespace]ratelimit.Rule
}

func NewRedisLimiter(rdb *redis.Client, rules map[ratelimit.Namespace]ratelimit.Rule) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, rules: rules}
}

func (l *RedisLimiter) CheckAndIncrement(ctx context.Context, ns ratelimit.Namespace, tenantID kernel.TenantID, key string) (ratelimit.Decision, error) {
	rule, ok := l.rules[ns]
	if !ok || rule.Limit <= 0 {
		return ratelimit.Decision{Allowed: true}, nil
	}

	k := ratelimit.Key(ns, tenantID, key)
	res, err := incrScript.Run(ctx, l.rdb, []string{k}, rule.Window.Milliseconds()).Slice()
	if err != nil {
		// Callers on login paths must treat this as Limited, not Allowed.
		return ratelimit.Decision{}, ratelimit.ErrRegistry.NewWithCause(ratelimit.CodeBackendUnavailable, err)
	}

	count, _ := res[0].(int64)
	ttlMillis, _ := res[1].(int64)

	if int(count) > rule.Limit {
		retryAfter := time.Duration(ttlMillis) * time.Millisecond
		if retryAfter < 0 {
			retryAfter = rule.Window
		}
		return ratelimit.Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}
	return ratelimit.Decision{Allowed: true}, nil
}
