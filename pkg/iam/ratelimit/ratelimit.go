// Package ratelimit throttles authentication attempts with a fixed window
// per (namespace, tenant, key). Each flow uses its own namespace so abuse of
// one flow cannot exhaust another's budget.
//
// The limiter is a security control: callers on login paths must treat a
// limiter error the same as Limited, never as Allowed.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/keyward-io/keyward/pkg/errx"
	"github.com/keyward-io/keyward/pkg/kernel"
)

// Namespace partitions rate-limit budgets by flow.
type Namespace string

const (
	NamespaceLogin Namespace = "login"
	NamespaceOAuth Namespace = "oauth"
	NamespaceReset Namespace = "reset"
)

// Rule is the budget for one namespace: at most Limit attempts per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one check-and-increment.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter atomically counts an attempt and decides whether it may proceed.
// Two concurrent calls for the same key must never both be allowed when only
// one slot remains.
type Limiter interface {
	CheckAndIncrement(ctx context.Context, ns Namespace, tenantID kernel.TenantID, key string) (Decision, error)
}

// Key builds the storage key for one counter.
func Key(ns Namespace, tenantID kernel.TenantID, key string) string {
	return fmt.Sprintf("ratelimit:%s:%s:%s", ns, tenantID.String(), key)
}

var ErrRegistry = errx.NewRegistry("RATELIMIT")

var (
	CodeBackendUnavailable = ErrRegistry.Register("BACKEND_UNAVAILABLE", errx.TypeUnavailable, http.StatusServiceUnavailable, "Rate limiter unavailable")
	CodeLimited            = ErrRegistry.Register("LIMITED", errx.TypeRateLimit, http.StatusTooManyRequests, "Too many attempts, try again later")
)

// ErrLimited builds the throttled error returned to callers of any flow.
func ErrLimited(retryAfter time.Duration) *errx.Error {
	e := ErrRegistry.New(CodeLimited)
	if retryAfter > 0 {
		e = e.WithDetail("retry_after_seconds", int(retryAfter.Seconds()+0.5))
	}
	return e
}
