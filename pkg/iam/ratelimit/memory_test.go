package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/keyward-io/keyward/pkg/kernel"
)

func newTestLimiter(limit int, window time.Duration) (*MemoryLimiter, *time.Time) {
	l := NewMemoryLimiter(map[Namespace]Rule{
		NamespaceLogin: {Limit: limit, Window: window},
	})
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestMemoryLimiter_DeniesAboveLimit(t *testing.T) {
	l, _ := newTestLimiter(5, time.Minute)
	tenant := kernel.NewTenantID("t1")

	for i := 0; i < 5; i++ {
		d, err := l.CheckAndIncrement(context.Background(), NamespaceLogin, tenant, "1.2.3.4")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}

	d, err := l.CheckAndIncrement(context.Background(), NamespaceLogin, tenant, "1.2.3.4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Fatal("sixth attempt should be denied")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry after: %v", d.RetryAfter)
	}
}

func TestMemoryLimiter_WindowRollover(t *testing.T) {
	l, now := newTestLimiter(2, time.Minute)
	tenant := kernel.NewTenantID("t1")

	for i := 0; i < 3; i++ {
		l.CheckAndIncrement(context.Background(), NamespaceLogin, tenant, "k")
	}

	*now = now.Add(time.Minute)
	d, _ := l.CheckAndIncrement(context.Background(), NamespaceLogin, tenant, "k")
	if !d.Allowed {
		t.Fatal("attempt in new window should be allowed")
	}
}

func TestMemoryLimiter_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	t1 := kernel.NewTenantID("t1")
	t2 := kernel.NewTenantID("t2")

	l.CheckAndIncrement(context.Background(), NamespaceLogin, t1, "k")
	if d, _ := l.CheckAndIncrement(context.Background(), NamespaceLogin, t1, "k"); d.Allowed {
		t.Fatal("same key should be exhausted")
	}
	if d, _ := l.CheckAndIncrement(context.Background(), NamespaceLogin, t2, "k"); !d.Allowed {
		t.Fatal("other tenant must have its own budget")
	}
	if d, _ := l.CheckAndIncrement(context.Background(), NamespaceLogin, t1, "other"); !d.Allowed {
		t.Fatal("other key must have its own budget")
	}
}

func TestMemoryLimiter_UnknownNamespaceAllows(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	d, err := l.CheckAndIncrement(context.Background(), NamespaceReset, kernel.NewTenantID("t1"), "k")
	if err != nil || !d.Allowed {
		t.Fatalf("namespace without a rule should allow, got %+v err %v", d, err)
	}
}

func TestMemoryLimiter_ConcurrentExactBudget(t *testing.T) {
	const limit = 10
	const callers = 50

	l, _ := newTestLimiter(limit, time.Minute)
	tenant := kernel.NewTenantID("t1")

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.CheckAndIncrement(context.Background(), NamespaceLogin, tenant, "k")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != limit {
		t.Fatalf("expected exactly %d allowed, got %d", limit, allowed)
	}
}

func TestMemoryLimiter_CleanupDropsStaleCounters(t *testing.T) {
	l, now := newTestLimiter(5, time.Minute)
	tenant := kernel.NewTenantID("t1")

	l.CheckAndIncrement(context.Background(), NamespaceLogin, tenant, "k")
	*now = now.Add(3 * time.Minute)
	l.Cleanup()

	l.mu.Lock()
	remaining := len(l.counters)
	l.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected stale counters removed, %d left", remaining)
	}
}
