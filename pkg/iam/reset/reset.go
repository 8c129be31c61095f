// Package reset implements single-use password reset tokens. A principal has
// at most one usable token at a time; issuing a new one invalidates the rest.
package reset

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/keyward-io/keyward/pkg/errx"
	"github.com/keyward-io/keyward/pkg/iam/token"
	"github.com/keyward-io/keyward/pkg/kernel"
)

// ResetToken is a single-use credential for the password reset flow. The
// token value is opaque and only ever delivered out of band.
type ResetToken struct {
	ID          string             `db:"id" json:"id"`
	Token       string             `db:"token" json:"token"`
	PrincipalID kernel.PrincipalID `db:"principal_id" json:"principal_id"`
	TenantID    kernel.TenantID    `db:"tenant_id" json:"tenant_id"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	ExpiresAt   time.Time          `db:"expires_at" json:"expires_at"`
	Used        bool               `db:"used" json:"used"`
	UsedAt      *time.Time         `db:"used_at" json:"used_at,omitempty"`
}

func (t *ResetToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsUsable reports whether the token can still redeem a password change.
func (t *ResetToken) IsUsable() bool {
	return !t.Used && !t.IsExpired()
}

// NewResetToken mints a token for a principal.
func NewResetToken(principalID kernel.PrincipalID, tenantID kernel.TenantID, ttl time.Duration) (*ResetToken, error) {
	value, err := token.NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &ResetToken{
		ID:          uuid.NewString(),
		Token:       value,
		PrincipalID: principalID,
		TenantID:    tenantID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}, nil
}

var ErrRegistry = errx.NewRegistry("RESET")

// CodeInvalidOrExpired is deliberately the only failure a client ever sees
// for a bad token: used, expired, unknown and wrong-tenant all collapse into
// it so the token state cannot be probed.
var CodeInvalidOrExpired = ErrRegistry.Register("INVALID_OR_EXPIRED", errx.TypeValidation, http.StatusBadRequest, "Invalid or expired reset token")

func ErrInvalidOrExpired() *errx.Error { return ErrRegistry.New(CodeInvalidOrExpired) }
