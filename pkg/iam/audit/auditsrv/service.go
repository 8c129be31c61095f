// Package auditsrv records and queries authentication attempts. Recording is
// best effort: an audit outage must never block a login.
package auditsrv

import (
	"context"
	"time"

	"github.com/keyward-io/keyward/pkg/iam/audit"
	"github.com/keyward-io/keyward/pkg/kernel"
	"github.com/keyward-io/keyward/pkg/logx"
	"github.com/keyward-io/keyward/pkg/metrics"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type Service struct {
	records audit.Repository
}

func NewService(records audit.Repository) *Service {
	return &Service{records: records}
}

// Record persists an attempt. Failures are logged and counted, never
// returned: callers on authentication paths do not handle them.
func (s *Service) Record(ctx context.Context, a *audit.LoginAttempt) {
	if err := s.records.Insert(ctx, a); err != nil {
		metrics.AuditSinkFailures.Inc()
		logx.WithFields(logx.Fields{
			"tenant_id": a.TenantID.String(),
			"flow":      string(a.Flow),
			"success":   a.Success,
		}).WithError(err).Error("failed to record login attempt")
	}
}

func (s *Service) QueryByPrincipal(ctx context.Context, tenantID kernel.TenantID, principalID kernel.PrincipalID, limit, offset int) ([]audit.LoginAttempt, error) {
	return s.records.ListByPrincipal(ctx, tenantID, principalID, clampLimit(limit), max(offset, 0))
}

func (s *Service) QueryByDateRange(ctx context.Context, tenantID kernel.TenantID, from, to time.Time, limit, offset int) ([]audit.LoginAttempt, error) {
	return s.records.ListByDateRange(ctx, tenantID, from, to, clampLimit(limit), max(offset, 0))
}

// QueryFailed returns recent failed attempts, newest first.
func (s *Service) QueryFailed(ctx context.Context, tenantID kernel.TenantID, since time.Time, limit int) ([]audit.LoginAttempt, error) {
	return s.records.ListFailed(ctx, tenantID, since, clampLimit(limit))
}

// Stats aggregates attempts over the given period.
func (s *Service) Stats(ctx context.Context, tenantID kernel.TenantID, from, to time.Time) (*audit.Stats, error) {
	return s.records.Stats(ctx, tenantID, from, to)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
