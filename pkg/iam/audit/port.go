package audit

import (
	"context"
	"time"

	"github.com/keyward-io/keyward/pkg/kernel"
)

// Repository is the append-only persistence contract for attempt records.
type Repository interface {
	Insert(ctx context.Context, a *LoginAttempt) error
	ListByPrincipal(ctx context.Context, tenantID kernel.TenantID, principalID kernel.PrincipalID, limit, offset int) ([]LoginAttempt, error)
	ListByDateRange(ctx context.Context, tenantID kernel.TenantID, from, to time.Time, limit, offset int) ([]LoginAttempt, error)
	ListFailed(ctx context.Context, tenantID kernel.TenantID, since time.Time, limit int) ([]LoginAttempt, error)
	Stats(ctx context.Context, tenantID kernel.TenantID, from, to time.Time) (*Stats, error)
}
