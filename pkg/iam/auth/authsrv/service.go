// Package authsrv implements password login, session refresh and logout.
package authsrv

import (
	"context"
	"errors"
	"time"

	"github.com/keyward-io/keyward/pkg/errx"
	"github.com/keyward-io/keyward/pkg/iam"
	"github.com/keyward-io/keyward/pkg/iam/audit"
	"github.com/keyward-io/keyward/pkg/iam/audit/auditsrv"
	"github.com/keyward-io/keyward/pkg/iam/auth"
	"github.com/keyward-io/keyward/pkg/iam/password"
	"github.com/keyward-io/keyward/pkg/iam/principal"
	"github.com/keyward-io/keyward/pkg/iam/ratelimit"
	"github.com/keyward-io/keyward/pkg/iam/token"
	"github.com/keyward-io/keyward/pkg/iam/token/tokensrv"
	"github.com/keyward-io/keyward/pkg/kernel"
	"github.com/keyward-io/keyward/pkg/logx"
	"github.com/keyward-io/keyward/pkg/metrics"
)

// dummyHash is a bcrypt hash of random bytes. Login burns a verification
// against it when the email is unknown so both paths cost one bcrypt.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

type Service struct {
	principals principal.Repository
	hasher     password.Hasher
	tokens     *tokensrv.Service
	limiter    ratelimit.Limiter
	audit      *auditsrv.Service
}

func NewService(
	principals principal.Repository,
	hasher password.Hasher,
	tokens *tokensrv.Service,
	limiter ratelimit.Limiter,
	auditSrv *auditsrv.Service,
) *Service {
	return &Service{
		principals: principals,
		hasher:     hasher,
		tokens:     tokens,
		limiter:    limiter,
		audit:      auditSrv,
	}
}

// Register creates a password principal. The email must be unused within the
// tenant; other tenants are not consulted.
func (s *Service) Register(ctx context.Context, tenantID kernel.TenantID, email, plaintext string) (*principal.Summary, error) {
	email = auth.NormalizeEmail(email)
	if email == "" {
		return nil, errx.Validation("email is required")
	}
	if err := password.CheckPolicy(plaintext); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return nil, err
	}

	p := principal.New(tenantID, email, hash)
	if err := s.principals.Create(ctx, p); err != nil {
		return nil, err
	}

	logx.WithFields(logx.Fields{
		"tenant_id":    tenantID.String(),
		"principal_id": p.ID.String(),
	}).Info("principal registered")

	summary := p.Summarize()
	return &summary, nil
}

// AuthenticatePassword runs the password login flow. The limiter is consulted
// before any credential work and a limiter outage denies the attempt.
func (s *Service) AuthenticatePassword(ctx context.Context, tenantID kernel.TenantID, email, plaintext string, ip, userAgent *string) (*tokensrv.Session, error) {
	email = auth.NormalizeEmail(email)
	attempt := audit.NewAttempt(tenantID, email, audit.FlowPassword, ip, userAgent)

	key := email
	if ip != nil && *ip != "" {
		key = *ip
	}
	decision, err := s.limiter.CheckAndIncrement(ctx, ratelimit.NamespaceLogin, tenantID, key)
	if err != nil {
		logx.WithError(err).Error("login rate limiter unavailable, denying attempt")
		metrics.RateLimited.WithLabelValues(string(ratelimit.NamespaceLogin)).Inc()
		s.fail(ctx, attempt, audit.ReasonRateLimited)
		return nil, ratelimit.ErrLimited(0)
	}
	if !decision.Allowed {
		metrics.RateLimited.WithLabelValues(string(ratelimit.NamespaceLogin)).Inc()
		s.fail(ctx, attempt, audit.ReasonRateLimited)
		return nil, ratelimit.ErrLimited(decision.RetryAfter)
	}

	p, err := s.principals.FindByEmail(ctx, tenantID, email)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			s.hasher.Verify(plaintext, dummyHash)
			s.fail(ctx, attempt, audit.ReasonUnknownEmail)
			return nil, auth.ErrInvalidCredentials()
		}
		return nil, err
	}

	if !p.HasPassword() {
		s.hasher.Verify(plaintext, dummyHash)
		s.fail(ctx, attempt, audit.ReasonOAuthOnlyAccount)
		return nil, auth.ErrInvalidCredentials()
	}
	if !s.hasher.Verify(plaintext, *p.PasswordHash) {
		s.fail(ctx, attempt, audit.ReasonWrongPassword)
		return nil, auth.ErrInvalidCredentials()
	}
	if !p.Active {
		s.fail(ctx, attempt, audit.ReasonAccountInactive)
		return nil, auth.ErrInvalidCredentials()
	}

	if err := s.principals.UpdateLastLogin(ctx, tenantID, p.ID, time.Now().UTC()); err != nil {
		logx.WithFields(logx.Fields{
			"tenant_id":    tenantID.String(),
			"principal_id": p.ID.String(),
		}).WithError(err).Error("failed to update last login")
	}

	session, err := s.tokens.IssueSession(ctx, p)
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, attempt.MarkSuccess(p.ID, true, true))
	metrics.LoginAttempts.WithLabelValues(string(audit.FlowPassword), "success").Inc()
	return session, nil
}

// Refresh exchanges a refresh token for a new session. Reuse of a rotated
// token is surfaced as its own error after the whole chain is revoked.
func (s *Service) Refresh(ctx context.Context, tenantID kernel.TenantID, refreshToken string, ip, userAgent *string) (*tokensrv.Session, error) {
	attempt := audit.NewAttempt(tenantID, "", audit.FlowRefresh, ip, userAgent)

	successor, err := s.tokens.Rotate(ctx, tenantID, refreshToken)
	if err != nil {
		s.fail(ctx, attempt, refreshFailureReason(err))
		return nil, err
	}

	p, err := s.principals.FindByID(ctx, tenantID, successor.PrincipalID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			s.fail(ctx, attempt, audit.ReasonInvalidToken)
			return nil, iam.ErrInvalidToken()
		}
		return nil, err
	}
	if !p.Active {
		// The successor was just minted; kill it before reporting.
		if err := s.tokens.Revoke(ctx, tenantID, successor.Token); err != nil {
			logx.WithError(err).Error("failed to revoke successor token for inactive principal")
		}
		s.fail(ctx, attempt, audit.ReasonAccountInactive)
		return nil, iam.ErrInvalidToken()
	}

	access, claims, err := s.tokens.IssueAccess(ctx, p)
	if err != nil {
		return nil, err
	}

	attempt.Email = p.Email
	s.audit.Record(ctx, attempt.MarkSuccess(p.ID, true, true))
	metrics.LoginAttempts.WithLabelValues(string(audit.FlowRefresh), "success").Inc()

	return &tokensrv.Session{
		AccessToken:  access,
		RefreshToken: successor.Token,
		TokenType:    "Bearer",
		ExpiresIn:    int64(claims.ExpiresAt.Sub(claims.IssuedAt).Seconds()),
		Principal:    p.Summarize(),
	}, nil
}

// Logout revokes the presented refresh token. Unknown tokens succeed so a
// client can always log out.
func (s *Service) Logout(ctx context.Context, tenantID kernel.TenantID, refreshToken string) error {
	return s.tokens.Revoke(ctx, tenantID, refreshToken)
}

func (s *Service) fail(ctx context.Context, attempt *audit.LoginAttempt, reason string) {
	s.audit.Record(ctx, attempt.MarkFailure(reason))
	metrics.LoginAttempts.WithLabelValues(string(attempt.Flow), "failure").Inc()
}

func refreshFailureReason(err error) string {
	switch {
	case errors.Is(err, token.ErrReuseDetected()):
		return audit.ReasonTokenReuse
	case errors.Is(err, token.ErrExpired()):
		return audit.ReasonTokenExpired
	default:
		return audit.ReasonInvalidToken
	}
}
