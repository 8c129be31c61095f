// Package cleanup removes expired token rows on a fixed interval. Expiry is
// enforced at read time everywhere else; this keeps the tables from growing
// without bound.
package cleanup

import (
	"context"
	"time"

	"github.com/keyward-io/keyward/pkg/iam/reset"
	"github.com/keyward-io/keyward/pkg/iam/token"
	"github.com/keyward-io/keyward/pkg/logx"
)

// Sweeper is an in-process store that drops its own expired entries, e.g. the
// memory limiter and memory OAuth state used when Redis is absent.
type Sweeper interface {
	Cleanup()
}

type Service struct {
	tokens   token.Repository
	resets   reset.Repository
	sweepers []Sweeper
	interval time.Duration
}

func NewService(tokens token.Repository, resets reset.Repository, interval time.Duration, sweepers ...Sweeper) *Service {
	return &Service{tokens: tokens, resets: resets, sweepers: sweepers, interval: interval}
}

// Run sweeps until the context is cancelled. Call it in a goroutine.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logx.WithField("interval", s.interval.String()).Info("cleanup service started")
	for {
		select {
		case <-ctx.Done():
			logx.Info("cleanup service stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	refresh, err := s.tokens.DeleteExpired(ctx)
	if err != nil {
		logx.WithError(err).Error("failed to delete expired refresh tokens")
	}
	resets, err := s.resets.DeleteExpired(ctx)
	if err != nil {
		logx.WithError(err).Error("failed to delete expired reset tokens")
	}
	if refresh > 0 || resets > 0 {
		logx.WithFields(logx.Fields{
			"refresh_tokens": refresh,
			"reset_tokens":   resets,
		}).Info("expired tokens removed")
	}

	for _, s := range s.sweepers {
		s.Cleanup()
	}
}
