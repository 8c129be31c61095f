// Package oauthsrv implements federated login: begin hands out a provider
// authorization URL bound to a single-use state, complete redeems the
// callback into a session.
package oauthsrv

import (
	"context"
	"time"

	"github.com/keyward-io/keyward/pkg/errx"
	"github.com/keyward-io/keyward/pkg/iam"
	"github.com/keyward-io/keyward/pkg/iam/audit"
	"github.com/keyward-io/keyward/pkg/iam/audit/auditsrv"
	"github.com/keyward-io/keyward/pkg/iam/oauth"
	"github.com/keyward-io/keyward/pkg/iam/principal"
	"github.com/keyward-io/keyward/pkg/iam/ratelimit"
	"github.com/keyward-io/keyward/pkg/iam/token/tokensrv"
	"github.com/keyward-io/keyward/pkg/kernel"
	"github.com/keyward-io/keyward/pkg/logx"
	"github.com/keyward-io/keyward/pkg/metrics"
)

type Config struct {
	StateTTL time.Duration
}

type Service struct {
	states     oauth.StateStore
	providers  map[iam.Provider]oauth.ProviderClient
	principals principal.Repository
	tokens     *tokensrv.Service
	limiter    ratelimit.Limiter
	audit      *auditsrv.Service
	cfg        Config
}

func NewService(
	states oauth.StateStore,
	providers map[iam.Provider]oauth.ProviderClient,
	principals principal.Repository,
	tokens *tokensrv.Service,
	limiter ratelimit.Limiter,
	auditSrv *auditsrv.Service,
	cfg Config,
) *Service {
	return &Service{
		states:     states,
		providers:  providers,
		principals: principals,
		tokens:     tokens,
		limiter:    limiter,
		audit:      auditSrv,
		cfg:        cfg,
	}
}

// Begin mints a single-use state and returns the provider authorization URL.
func (s *Service) Begin(ctx context.Context, tenantID kernel.TenantID, provider iam.Provider, ip string) (string, error) {
	client, ok := s.providers[provider]
	if !ok {
		return "", oauth.ErrUnsupportedProvider().WithDetail("provider", provider.String())
	}

	decision, err := s.limiter.CheckAndIncrement(ctx, ratelimit.NamespaceOAuth, tenantID, ip)
	if err != nil {
		logx.WithError(err).Error("oauth rate limiter unavailable, denying request")
		metrics.RateLimited.WithLabelValues(string(ratelimit.NamespaceOAuth)).Inc()
		return "", ratelimit.ErrLimited(0)
	}
	if !decision.Allowed {
		metrics.RateLimited.WithLabelValues(string(ratelimit.NamespaceOAuth)).Inc()
		return "", ratelimit.ErrLimited(decision.RetryAfter)
	}

	sess, err := oauth.NewStateSession(tenantID, provider, s.cfg.StateTTL)
	if err != nil {
		return "", err
	}
	if err := s.states.Save(ctx, sess); err != nil {
		return "", err
	}
	return client.AuthURL(sess.State), nil
}

// Complete redeems a provider callback. The state is consumed before anything
// else: replaying a callback fails even when the code is still valid.
func (s *Service) Complete(ctx context.Context, tenantID kernel.TenantID, provider iam.Provider, state, code string, ip, userAgent *string) (*tokensrv.Session, error) {
	client, ok := s.providers[provider]
	if !ok {
		return nil, oauth.ErrUnsupportedProvider().WithDetail("provider", provider.String())
	}

	flow := flowFor(provider)
	attempt := audit.NewAttempt(tenantID, "", flow, ip, userAgent)

	sess, err := s.states.Consume(ctx, tenantID, state)
	if err != nil {
		s.fail(ctx, attempt, flow, audit.ReasonInvalidState)
		return nil, err
	}
	if sess.Provider != provider {
		s.fail(ctx, attempt, flow, audit.ReasonInvalidState)
		return nil, oauth.ErrInvalidState()
	}

	info, err := client.Exchange(ctx, code)
	if err != nil {
		s.fail(ctx, attempt, flow, audit.ReasonProviderFailed)
		return nil, err
	}
	attempt.Email = info.Email

	p, err := s.resolvePrincipal(ctx, tenantID, provider, info)
	if err != nil {
		reason := audit.ReasonEmailConflict
		if errx.IsType(err, errx.TypeAuthorization) {
			reason = audit.ReasonAccountInactive
		}
		s.fail(ctx, attempt, flow, reason)
		return nil, err
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
	metrics.LoginAttempts.WithLabelValues(string(flow), "success").Inc()
	return session, nil
}

// resolvePrincipal finds the federated principal or creates it on first
// login. There is no linking by email: an existing password account with the
// same address stays untouched and the login is rejected as a conflict.
func (s *Service) resolvePrincipal(ctx context.Context, tenantID kernel.TenantID, provider iam.Provider, info *oauth.UserInfo) (*principal.Principal, error) {
	p, err := s.principals.FindByOAuth(ctx, tenantID, provider, info.ProviderID)
	if err == nil {
		if !p.Active {
			return nil, iam.ErrAccessDenied().WithDetail("reason", "account_inactive")
		}
		return p, nil
	}
	if !errx.IsType(err, errx.TypeNotFound) {
		return nil, err
	}

	created := principal.NewFederated(tenantID, info.Email, provider, info.ProviderID)
	if err := s.principals.Create(ctx, created); err != nil {
		return nil, err
	}

	logx.WithFields(logx.Fields{
		"tenant_id":    tenantID.String(),
		"principal_id": created.ID.String(),
		"provider":     provider.String(),
	}).Info("federated principal created")
	return created, nil
}

func (s *Service) fail(ctx context.Context, attempt *audit.LoginAttempt, flow audit.Flow, reason string) {
	s.audit.Record(ctx, attempt.MarkFailure(reason))
	metrics.LoginAttempts.WithLabelValues(string(flow), "failure").Inc()
}

func flowFor(provider iam.Provider) audit.Flow {
	if provider == iam.ProviderApple {
		return audit.FlowOAuthApple
	}
	return audit.FlowOAuthGoogle
}
