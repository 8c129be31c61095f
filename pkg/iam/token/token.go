// Package token owns the session-token lifecycle: signed access tokens and
// rotating, revocable refresh tokens with reuse detection.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/keyward-io/keyward/pkg/errx"
	"github.com/keyward-io/keyward/pkg/kernel"
)

// RefreshToken is the long-lived session continuation credential. The token
// value is opaque and stored server-side; rotation links each token to its
// successor via ReplacedBy, forming the chain walked on reuse detection.
type RefreshToken struct {
	ID          string             `db:"id" json:"id"`
	Token       string             `db:"token" json:"token"`
	PrincipalID kernel.PrincipalID `db:"principal_id" json:"principal_id"`
	TenantID    kernel.TenantID    `db:"tenant_id" json:"tenant_id"`
	IssuedAt    time.Time          `db:"issued_at" json:"issued_at"`
	ExpiresAt   time.Time          `db:"expires_at" json:"expires_at"`
	Revoked     bool               `db:"revoked" json:"revoked"`
	ReplacedBy  *string            `db:"replaced_by" json:"replaced_by,omitempty"`
}

// IsExpired reports whether the token's lifetime has passed.
func (t *RefreshToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// WasRotated reports whether a successor exists. Presenting a rotated token
// is treated as theft.
func (t *RefreshToken) WasRotated() bool {
	return t.ReplacedBy != nil
}

// NewRefreshToken mints a fresh token for a principal.
func NewRefreshToken(principalID kernel.PrincipalID, tenantID kernel.TenantID, ttl time.Duration) (*RefreshToken, error) {
	value, err := NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &RefreshToken{
		ID:          uuid.NewString(),
		Token:       value,
		PrincipalID: principalID,
		TenantID:    tenantID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}, nil
}

// NewOpaqueToken returns a 256-bit random hex string.
func NewOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errx.Wrap(err, "failed to read random bytes", errx.TypeInternal)
	}
	return hex.EncodeToString(buf), nil
}

// AccessClaims is the fixed claim set of an access token. Access tokens never
// carry an open claims map; every field here is validated on verification.
type AccessClaims struct {
	Subject   kernel.PrincipalID `json:"sub"`
	TenantID  kernel.TenantID    `json:"tenant_id"`
	Email     string             `json:"email"`
	Roles     []string           `json:"roles"`
	Active    bool               `json:"active"`
	JTI       string             `json:"jti"`
	Audience  string             `json:"aud"`
	Issuer    string             `json:"iss"`
	IssuedAt  time.Time          `json:"iat"`
	ExpiresAt time.Time          `json:"exp"`
}

var ErrRegistry = errx.NewRegistry("TOKEN")

var (
	CodeInvalidRefresh   = ErrRegistry.Register("INVALID_REFRESH", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid refresh token")
	CodeExpired          = ErrRegistry.Register("EXPIRED", errx.TypeAuthorization, http.StatusUnauthorized, "Token expired")
	CodeReuseDetected    = ErrRegistry.Register("REUSE_DETECTED", errx.TypeAuthorization, http.StatusUnauthorized, "Refresh token reuse detected")
	CodeAlreadyRotated   = ErrRegistry.Register("ALREADY_ROTATED", errx.TypeConflict, http.StatusConflict, "Refresh token already rotated")
	CodeSigningFailed    = ErrRegistry.Register("SIGNING_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Token signing failed")
	CodeValidationFailed = ErrRegistry.Register("VALIDATION_FAILED", errx.TypeAuthorization, http.StatusUnauthorized, "Token validation failed")
)

func ErrInvalidRefresh() *errx.Error   { return ErrRegistry.New(CodeInvalidRefresh) }
func ErrExpired() *errx.Error          { return ErrRegistry.New(CodeExpired) }
func ErrReuseDetected() *errx.Error    { return ErrRegistry.New(CodeReuseDetected) }
func ErrAlreadyRotated() *errx.Error   { return ErrRegistry.New(CodeAlreadyRotated) }
func ErrSigningFailed() *errx.Error    { return ErrRegistry.New(CodeSigningFailed) }
func ErrValidationFailed() *errx.Error { return ErrRegistry.New(CodeValidationFailed) }
