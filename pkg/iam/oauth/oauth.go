// Package oauth implements federated login against external identity
// providers. The state handshake is consume-once: a state value authorizes
// exactly one callback.
package oauth

import (
	"net/http"
	"time"

	"github.com/keyward-io/keyward/pkg/errx"
	"github.com/keyward-io/keyward/pkg/iam"
	"github.com/keyward-io/keyward/pkg/iam/token"
	"github.com/keyward-io/keyward/pkg/kernel"
)

// StateSession binds a pending authorization to the tenant and provider that
// started it.
type StateSession struct {
	State     string          `json:"state"`
	TenantID  kernel.TenantID `json:"tenant_id"`
	Provider  iam.Provider    `json:"provider"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func (s *StateSession) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// NewStateSession mints a random state for one authorization round trip.
func NewStateSession(tenantID kernel.TenantID, provider iam.Provider, ttl time.Duration) (*StateSession, error) {
	state, err := token.NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &StateSession{
		State:     state,
		TenantID:  tenantID,
		Provider:  provider,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}, nil
}

// UserInfo is the canonical identity shape every provider response is
// normalized into before it touches the principal store.
type UserInfo struct {
	ProviderID    string  `json:"provider_id"`
	Email         string  `json:"email"`
	EmailVerified bool    `json:"email_verified"`
	Name          *string `json:"name,omitempty"`
	Picture       *string `json:"picture,omitempty"`
}

var ErrRegistry = errx.NewRegistry("OAUTH")

var (
	// CodeInvalidState covers unknown, expired, consumed and wrong-provider
	// states alike so the handshake cannot be probed.
	CodeInvalidState = ErrRegistry.Register("INVALID_STATE", errx.TypeValidation, http.StatusBadRequest, "Invalid or expired OAuth state")

	CodeExchangeFailed      = ErrRegistry.Register("EXCHANGE_FAILED", errx.TypeExternal, http.StatusBadGateway, "Provider code exchange failed")
	CodeUnsupportedProvider = ErrRegistry.Register("UNSUPPORTED_PROVIDER", errx.TypeValidation, http.StatusBadRequest, "Unsupported OAuth provider")
)

func ErrInvalidState() *errx.Error        { return ErrRegistry.New(CodeInvalidState) }
func ErrExchangeFailed() *errx.Error      { return ErrRegistry.New(CodeExchangeFailed) }
func ErrUnsupportedProvider() *errx.Error { return ErrRegistry.New(CodeUnsupportedProvider) }
