// Package tokensrv implements the token lifecycle: issuing access and refresh
// tokens, rotating refresh tokens with reuse detection, and validating access
// tokens against the live principal record.
package tokensrv

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/keyward-io/keyward/pkg/errx"
	"github.com/keyward-io/keyward/pkg/iam"
	"github.com/keyward-io/keyward/pkg/iam/principal"
	"github.com/keyward-io/keyward/pkg/iam/token"
	"github.com/keyward-io/keyward/pkg/kernel"
	"github.com/keyward-io/keyward/pkg/logx"
	"github.com/keyward-io/keyward/pkg/metrics"
)

type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	Audience   string
}

type Service struct {
	tokens     token.Repository
	principals principal.Repository
	signer     token.Signer
	cfg        Config
}

func NewService(tokens token.Repository, principals principal.Repository, signer token.Signer, cfg Config) *Service {
	return &Service{
		tokens:     tokens,
		principals: principals,
		signer:     signer,
		cfg:        cfg,
	}
}

// IssueAccess signs a short-lived access token carrying the principal's
// identity snapshot and a unique jti.
func (s *Service) IssueAccess(_ context.Context, p *principal.Principal) (string, *token.AccessClaims, error) {
	now := time.Now().UTC()
	claims := token.AccessClaims{
		Subject:   p.ID,
		TenantID:  p.TenantID,
		Email:     p.Email,
		Roles:     p.Roles,
		Active:    p.Active,
		JTI:       uuid.NewString(),
		Audience:  s.cfg.Audience,
		Issuer:    s.cfg.Issuer,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.cfg.AccessTTL),
	}

	signed, err := s.signer.Sign(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, &claims, nil
}

// Session is a complete authentication result: a signed access token, the
// opaque refresh token, and the principal projection.
type Session struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	TokenType    string            `json:"token_type"`
	ExpiresIn    int64             `json:"expires_in"`
	Principal    principal.Summary `json:"principal"`
}

// IssueSession mints the access and refresh token pair for a freshly
// authenticated principal.
func (s *Service) IssueSession(ctx context.Context, p *principal.Principal) (*Session, error) {
	access, claims, err := s.IssueAccess(ctx, p)
	if err != nil {
		return nil, err
	}
	refresh, err := s.IssueRefresh(ctx, p)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken:  access,
		RefreshToken: refresh.Token,
		TokenType:    "Bearer",
		ExpiresIn:    int64(claims.ExpiresAt.Sub(claims.IssuedAt).Seconds()),
		Principal:    p.Summarize(),
	}, nil
}

// IssueRefresh mints and persists a fresh opaque refresh token.
func (s *Service) IssueRefresh(ctx context.Context, p *principal.Principal) (*token.RefreshToken, error) {
	rt, err := token.NewRefreshToken(p.ID, p.TenantID, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Save(ctx, rt); err != nil {
		return nil, err
	}
	return rt, nil
}

// Rotate exchanges a presented refresh token for its successor. Under
// concurrent presentation of the same token exactly one caller wins the swap;
// every other path, including a token already rotated or revoked, revokes the
// whole chain and reports reuse.
func (s *Service) Rotate(ctx context.Context, tenantID kernel.TenantID, presented string) (*token.RefreshToken, error) {
	current, err := s.tokens.Find(ctx, tenantID, presented)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return nil, token.ErrInvalidRefresh()
		}
		return nil, err
	}

	if current.Revoked || current.WasRotated() {
		return nil, s.reportReuse(ctx, current)
	}
	if current.IsExpired() {
		return nil, token.ErrExpired()
	}

	successor, err := token.NewRefreshToken(current.PrincipalID, tenantID, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Rotate(ctx, current, successor); err != nil {
		// Lost the swap: a concurrent caller already rotated or revoked this
		// token, so two parties held the same credential.
		if errx.IsType(err, errx.TypeConflict) {
			return nil, s.reportReuse(ctx, current)
		}
		return nil, err
	}
	return successor, nil
}

func (s *Service) reportReuse(ctx context.Context, current *token.RefreshToken) error {
	metrics.TokenReuse.Inc()

	revoked, err := s.tokens.RevokeChain(ctx, current.TenantID, current.ID)
	if err != nil {
		logx.WithFields(logx.Fields{
			"tenant_id":    current.TenantID.String(),
			"principal_id": current.PrincipalID.String(),
			"token_id":     current.ID,
		}).WithError(err).Error("failed to revoke refresh token chain after reuse")
	} else {
		logx.WithFields(logx.Fields{
			"tenant_id":    current.TenantID.String(),
			"principal_id": current.PrincipalID.String(),
			"token_id":     current.ID,
			"revoked":      revoked,
		}).Warn("refresh token reuse detected, chain revoked")
	}
	return token.ErrReuseDetected()
}

// ValidateAccess verifies an access token and confirms the referenced
// principal still exists and is active. Deactivation takes effect on the next
// protected request, not at token expiry.
func (s *Service) ValidateAccess(ctx context.Context, tokenString string) (*kernel.AuthContext, error) {
	claims, err := s.signer.Verify(tokenString)
	if err != nil {
		return nil, err
	}

	p, err := s.principals.FindByID(ctx, claims.TenantID, claims.Subject)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return nil, iam.ErrInvalidToken()
		}
		return nil, err
	}
	if !p.Active {
		return nil, iam.ErrInvalidToken().WithDetail("reason", "principal_inactive")
	}

	return &kernel.AuthContext{
		PrincipalID: p.ID,
		TenantID:    p.TenantID,
		Email:       p.Email,
		Roles:       p.Roles,
		Active:      p.Active,
	}, nil
}

// Revoke invalidates a single refresh token. Idempotent: revoking an unknown
// or already-revoked token succeeds.
func (s *Service) Revoke(ctx context.Context, tenantID kernel.TenantID, tokenValue string) error {
	return s.tokens.Revoke(ctx, tenantID, tokenValue)
}

// RevokeAllForPrincipal invalidates every refresh token of a principal, e.g.
// after a password reset.
func (s *Service) RevokeAllForPrincipal(ctx context.Context, tenantID kernel.TenantID, principalID kernel.PrincipalID) error {
	return s.tokens.RevokeAllForPrincipal(ctx, tenantID, principalID)
}
