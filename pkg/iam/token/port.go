package token

import (
	"context"

	"github.com/keyward-io/keyward/pkg/kernel"
)

// Repository is the persistence contract for refresh tokens.
type Repository interface {
	Save(ctx context.Context, t *RefreshToken) error
	Find(ctx context.Context, tenantID kernel.TenantID, tokenValue string) (*RefreshToken, error)

	// Rotate marks old as replaced by successor and persists the successor in
	// one atomic step. When old was already rotated or revoked by a concurrent
	// caller it returns CodeAlreadyRotated and persists nothing.
	Rotate(ctx context.Context, old *RefreshToken, successor *RefreshToken) error

	// RevokeChain revokes every token in the rotation lineage containing the
	// given token id, walking ReplacedBy links in both directions. Returns the
	// number of tokens revoked.
	RevokeChain(ctx context.Context, tenantID kernel.TenantID, tokenID string) (int, error)

	// Revoke marks a single token revoked. Unknown or already-revoked tokens
	// are not an error.
	Revoke(ctx context.Context, tenantID kernel.TenantID, tokenValue string) error

	RevokeAllForPrincipal(ctx context.Context, tenantID kernel.TenantID, principalID kernel.PrincipalID) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// Signer is the signing authority for access tokens. Cryptographic validity
// and the aud/iss/exp checks live behind this interface; liveness of the
// referenced principal is checked by the lifecycle service on every call.
type Signer interface {
	Sign(claims AccessClaims) (string, error)
	Verify(tokenString string) (*AccessClaims, error)
}
