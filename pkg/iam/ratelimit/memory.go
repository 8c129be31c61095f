package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/keyward-io/keyward/pkg/kernel"
)

// MemoryLimiter is an in-process fixed-window limiter. Suitable for single
// node deployments and tests; multi-node deployments use the Redis limiter.
type MemoryLimiter struct {
	rules map[Namespace]Rule

	mu       sync.Mutex
	counters map[string]*window
	now      func() time.Time
}

type window struct {
	count int
	start time.Time
}

// NewMemoryLimiter creates a limiter with one Rule per namespace.
func NewMemoryLimiter(rules map[Namespace]Rule) *MemoryLimiter {
	return &MemoryLimiter{
		rules:    rules,
		counters: make(map[string]*window),
		now:      time.Now,
	}
}

func (l *MemoryLimiter) CheckAndIncrement(_ context.Context, ns Namespace, tenantID kernel.TenantID, key string) (Decision, error) {
	rule, ok := l.rules[ns]
	if !ok || rule.Limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	k := Key(ns, tenantID, key)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.counters[k]
	if !ok || now.Sub(w.start) >= rule.Window {
		l.counters[k] = &window{count: 1, start: now}
		return Decision{Allowed: true}, nil
	}

	w.count++
	if w.count > rule.Limit {
		return Decision{
			Allowed:    false,
			RetryAfter: rule.Window - now.Sub(w.start),
		}, nil
	}
	return Decision{Allowed: true}, nil
}

// Cleanup drops counters whose window has long passed. Run periodically.
func (l *MemoryLimiter) Cleanup() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, w := range l.counters {
		ns := namespaceOf(k)
		rule, ok := l.rules[ns]
		if !ok || now.Sub(w.start) >= 2*rule.Window {
			delete(l.counters, k)
		}
	}
}

func namespaceOf(key string) Namespace {
	// key layout: ratelimit:<ns>:<tenant>:<key>
	const prefix = "ratelimit:"
	rest := key[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == ':' {
			return Namespace(rest[:i])
		}
	}
	return Namespace(rest)
}
