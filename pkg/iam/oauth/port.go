package oauth

import (
	"context"

	"github.com/keyward-io/keyward/pkg/kernel"
)

// StateStore persists pending authorization states. Consume must be atomic:
// two concurrent callbacks with the same state get at most one session back.
type StateStore interface {
	Save(ctx context.Context, s *StateSession) error

	// Consume returns the session and removes it in one step. Unknown and
	// expired states return CodeInvalidState.
	Consume(ctx context.Context, tenantID kernel.TenantID, state string) (*StateSession, error)
}

// ProviderClient is one configured external identity provider.
type ProviderClient interface {
	// AuthURL builds the provider authorization URL carrying the state.
	AuthURL(state string) string

	// Exchange redeems an authorization code for the normalized identity.
	Exchange(ctx context.Context, code string) (*UserInfo, error)
}
