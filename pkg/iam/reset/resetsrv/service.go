// Package resetsrv implements the password reset flow: request, validate,
// confirm. Request responses are identical whether or not the email belongs
// to an account.
package resetsrv

import (
	"context"
	"time"

	"github.com/keyward-io/keyward/pkg/errx"
	"github.com/keyward-io/keyward/pkg/iam/password"
	"github.com/keyward-io/keyward/pkg/iam/principal"
	"github.com/keyward-io/keyward/pkg/iam/ratelimit"
	"github.com/keyward-io/keyward/pkg/iam/reset"
	"github.com/keyward-io/keyward/pkg/kernel"
	"github.com/keyward-io/keyward/pkg/logx"
	"github.com/keyward-io/keyward/pkg/metrics"
	"github.com/keyward-io/keyward/pkg/notify"
)

// TemplateName is the registered notify template for reset email bodies.
const TemplateName = "password_reset"

// SessionRevoker invalidates every active session of a principal after a
// successful password change.
type SessionRevoker interface {
	RevokeAllForPrincipal(ctx context.Context, tenantID kernel.TenantID, principalID kernel.PrincipalID) error
}

type Config struct {
	TokenTTL     time.Duration
	ResetBaseURL string
}

type Service struct {
	resets     reset.Repository
	principals principal.Repository
	hasher     password.Hasher
	sessions   SessionRevoker
	limiter    ratelimit.Limiter
	mailer     *notify.Client
	cfg        Config
}

func NewService(
	resets reset.Repository,
	principals principal.Repository,
	hasher password.Hasher,
	sessions SessionRevoker,
	limiter ratelimit.Limiter,
	mailer *notify.Client,
	cfg Config,
) *Service {
	return &Service{
		resets:     resets,
		principals: principals,
		hasher:     hasher,
		sessions:   sessions,
		limiter:    limiter,
		mailer:     mailer,
		cfg:        cfg,
	}
}

// RequestReset issues a reset token and emails it to the account holder. The
// caller learns nothing about whether the email matched an account: unknown
// and inactive addresses return the same nil as a successful issue.
func (s *Service) RequestReset(ctx context.Context, tenantID kernel.TenantID, email, ip string) error {
	decision, err := s.limiter.CheckAndIncrement(ctx, ratelimit.NamespaceReset, tenantID, ip)
	if err != nil {
		// A broken limiter throttles, it never waves requests through.
		logx.WithError(err).Error("reset rate limiter unavailable, denying request")
		metrics.RateLimited.WithLabelValues(string(ratelimit.NamespaceReset)).Inc()
		return ratelimit.ErrLimited(0)
	}
	if !decision.Allowed {
		metrics.RateLimited.WithLabelValues(string(ratelimit.NamespaceReset)).Inc()
		return ratelimit.ErrLimited(decision.RetryAfter)
	}

	p, err := s.principals.FindByEmail(ctx, tenantID, email)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			logx.WithFields(logx.Fields{"tenant_id": tenantID.String(), "ip": ip}).
				Debug("reset requested for unknown email")
			return nil
		}
		return err
	}
	if !p.Active {
		logx.WithFields(logx.Fields{
			"tenant_id":    tenantID.String(),
			"principal_id": p.ID.String(),
			"ip":           ip,
		}).Debug("reset requested for inactive principal")
		return nil
	}

	t, err := reset.NewResetToken(p.ID, tenantID, s.cfg.TokenTTL)
	if err != nil {
		return err
	}
	if err := s.resets.Issue(ctx, t); err != nil {
		return err
	}

	if err := s.sendResetEmail(ctx, p.Email, t); err != nil {
		// The token is live; failing here would leak that the email exists.
		logx.WithFields(logx.Fields{
			"tenant_id":    tenantID.String(),
			"principal_id": p.ID.String(),
		}).WithError(err).Error("failed to send reset email")
	}

	logx.WithFields(logx.Fields{
		"tenant_id":    tenantID.String(),
		"principal_id": p.ID.String(),
		"ip":           ip,
	}).Info("password reset token issued")
	return nil
}

func (s *Service) sendResetEmail(ctx context.Context, to string, t *reset.ResetToken) error {
	data := map[string]any{
		"Link":           s.cfg.ResetBaseURL + "?token=" + t.Token,
		"ExpiresMinutes": int(s.cfg.TokenTTL.Minutes()),
	}
	return s.mailer.SendTemplated(ctx, TemplateName, data, notify.EmailMessage{
		To:      []string{to},
		Subject: "Reset your password",
	})
}

// Validation is the read-only view of a usable token, for the reset form.
type Validation struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Validate checks a token without consuming it, so a reset form can be shown
// before the user commits to a new password.
func (s *Service) Validate(ctx context.Context, tenantID kernel.TenantID, tokenValue string) (*Validation, error) {
	t, err := s.resets.Find(ctx, tenantID, tokenValue)
	if err != nil {
		return nil, err
	}
	if !t.IsUsable() {
		return nil, reset.ErrInvalidOrExpired()
	}

	p, err := s.principals.FindByID(ctx, tenantID, t.PrincipalID)
	if err != nil {
		if errx.IsType(err, errx.TypeNotFound) {
			return nil, reset.ErrInvalidOrExpired()
		}
		return nil, err
	}
	return &Validation{Email: p.Email, ExpiresAt: t.ExpiresAt}, nil
}

// Confirm redeems a token for a new password. The token is consumed exactly
// once, and every refresh token of the principal is revoked so stolen
// sessions die with the old password.
func (s *Service) Confirm(ctx context.Context, tenantID kernel.TenantID, tokenValue, newPassword string) error {
	if err := password.CheckPolicy(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	consumed, err := s.resets.ConsumeAndSetPassword(ctx, tenantID, tokenValue, hash)
	if err != nil {
		return err
	}

	if err := s.sessions.RevokeAllForPrincipal(ctx, tenantID, consumed.PrincipalID); err != nil {
		logx.WithFields(logx.Fields{
			"tenant_id":    tenantID.String(),
			"principal_id": consumed.PrincipalID.String(),
		}).WithError(err).Error("password changed but session revocation failed")
		return err
	}

	logx.WithFields(logx.Fields{
		"tenant_id":    tenantID.String(),
		"principal_id": consumed.PrincipalID.String(),
	}).Info("password reset completed, sessions revoked")
	return nil
}
