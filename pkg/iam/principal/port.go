package principal

import (
	"context"
	"time"

	"github.com/keyward-io/keyward/pkg/iam"
	"github.com/keyward-io/keyward/pkg/kernel"
)

// Repository is the persistence contract for principals. Every lookup takes
// the tenant explicitly; there is no way to query across tenants.
type Repository interface {
	Create(ctx context.Context, p *Principal) error
	FindByID(ctx context.Context, tenantID kernel.TenantID, id kernel.PrincipalID) (*Principal, error)
	FindByEmail(ctx context.Context, tenantID kernel.TenantID, email string) (*Principal, error)
	FindByOAuth(ctx context.Context, tenantID kernel.TenantID, provider iam.Provider, providerID string) (*Principal, error)
	UpdateLastLogin(ctx context.Context, tenantID kernel.TenantID, id kernel.PrincipalID, at time.Time) error
}
