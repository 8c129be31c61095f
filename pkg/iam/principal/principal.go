// Package principal defines the authenticatable identity and its persistence
// contract. A principal lives in exactly one tenant; the same email may exist
// independently under different tenants.
package principal

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/keyward-io/keyward/pkg/errx"
	"github.com/keyward-io/keyward/pkg/iam"
	"github.com/keyward-io/keyward/pkg/kernel"
)

// DefaultRole is assigned when no roles are given.
const DefaultRole = "user"

// Principal is one authenticatable identity.
//
// Exactly one credential path decides authentication: a bcrypt password hash,
// or a federated (provider, provider id) pair. OAuth-created principals carry
// no password hash and must fail password login rather than crash.
type Principal struct {
	ID       kernel.PrincipalID `db:"id" json:"id"`
	TenantID kernel.TenantID    `db:"tenant_id" json:"tenant_id"`
	Email    string             `db:"email" json:"email"`

	PasswordHash *string       `db:"password_hash" json:"-"`
	Provider     *iam.Provider `db:"oauth_provider" json:"oauth_provider,omitempty"`
	ProviderID   *string       `db:"oauth_id" json:"-"`

	Roles         []string `db:"roles" json:"roles"`
	Active        bool     `db:"active" json:"active"`
	EmailVerified bool     `db:"email_verified" json:"email_verified"`

	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
	LastLoginAt *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
}

// New creates a password principal.
func New(tenantID kernel.TenantID, email, passwordHash string) *Principal {
	now := time.Now().UTC()
	return &Principal{
		ID:           kernel.NewPrincipalID(uuid.NewString()),
		TenantID:     tenantID,
		Email:        email,
		PasswordHash: &passwordHash,
		Roles:        []string{DefaultRole},
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewFederated creates a principal from an OAuth identity. The provider has
// asserted the email, so it is verified from the start and no password exists.
func NewFederated(tenantID kernel.TenantID, email string, provider iam.Provider, providerID string) *Principal {
	now := time.Now().UTC()
	return &Principal{
		ID:            kernel.NewPrincipalID(uuid.NewString()),
		TenantID:      tenantID,
		Email:         email,
		Provider:      &provider,
		ProviderID:    &providerID,
		Roles:         []string{DefaultRole},
		Active:        true,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// HasPassword reports whether password authentication is possible at all.
func (p *Principal) HasPassword() bool {
	return p.PasswordHash != nil && *p.PasswordHash != ""
}

// IsFederated reports whether the principal holds an OAuth identity.
func (p *Principal) IsFederated() bool {
	return p.Provider != nil && p.ProviderID != nil
}

// HasRole reports whether the principal carries the given role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Summary is the caller-facing projection of a principal, embedded in the
// authentication result.
type Summary struct {
	ID            kernel.PrincipalID `json:"id"`
	TenantID      kernel.TenantID    `json:"tenant_id"`
	Email         string             `json:"email"`
	Roles         []string           `json:"roles"`
	EmailVerified bool               `json:"email_verified"`
}

// Summarize builds the caller-facing projection.
func (p *Principal) Summarize() Summary {
	roles := make([]string, len(p.Roles))
	copy(roles, p.Roles)
	return Summary{
		ID:            p.ID,
		TenantID:      p.TenantID,
		Email:         p.Email,
		Roles:         roles,
		EmailVerified: p.EmailVerified,
	}
}

var ErrRegistry = errx.NewRegistry("PRINCIPAL")

var (
	CodeNotFound      = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Principal not found")
	CodeAlreadyExists = ErrRegistry.Register("ALREADY_EXISTS", errx.TypeConflict, http.StatusConflict, "Email already registered for this tenant")
)

func ErrNotFound() *errx.Error      { return ErrRegistry.New(CodeNotFound) }
func ErrAlreadyExists() *errx.Error { return ErrRegistry.New(CodeAlreadyExists) }
