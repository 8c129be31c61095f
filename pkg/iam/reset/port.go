package reset

import (
	"context"

	"github.com/keyward-io/keyward/pkg/kernel"
)

// Repository is the persistence contract for reset tokens. Issue and
// ConsumeAndSetPassword are transactional so the at-most-one-usable-token
// rule holds under concurrent requests.
type Repository interface {
	// Issue invalidates every unused token of the principal and persists the
	// new one in a single transaction.
	Issue(ctx context.Context, t *ResetToken) error

	Find(ctx context.Context, tenantID kernel.TenantID, tokenValue string) (*ResetToken, error)

	// ConsumeAndSetPassword atomically marks the token used, writes the new
	// password hash on its principal, and invalidates the principal's other
	// unused tokens. When the token was already used, expired, or unknown it
	// returns CodeInvalidOrExpired and changes nothing.
	ConsumeAndSetPassword(ctx context.Context, tenantID kernel.TenantID, tokenValue string, newHash string) (*ResetToken, error)

	DeleteExpired(ctx context.Context) (int64, error)
}
