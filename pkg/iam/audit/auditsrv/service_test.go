package auditsrv_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/keyward-io/keyward/pkg/iam/audit"
	"github.com/keyward-io/keyward/pkg/iam/audit/auditsrv"
	"github.com/keyward-io/keyward/pkg/kernel"
)

type capturingRepo struct {
	insertErr error
	inserted  []*audit.LoginAttempt

	lastLimit  int
	lastOffset int
}

func (r *capturingRepo) Insert(_ context.Context, a *audit.LoginAttempt) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.inserted = append(r.inserted, a)
	return nil
}

func (r *capturingRepo) ListByPrincipal(_ context.Context, _ kernel.TenantID, _ kernel.PrincipalID, limit, offset int) ([]audit.LoginAttempt, error) {
	r.lastLimit, r.lastOffset = limit, offset
	return nil, nil
}

func (r *capturingRepo) ListByDateRange(_ context.Context, _ kernel.TenantID, _, _ time.Time, limit, offset int) ([]audit.LoginAttempt, error) {
	r.lastLimit, r.lastOffset = limit, offset
	return nil, nil
}

func (r *capturingRepo) ListFailed(_ context.Context, _ kernel.TenantID, _ time.Time, limit int) ([]audit.LoginAttempt, error) {
	r.lastLimit = limit
	return nil, nil
}

func (r *capturingRepo) Stats(context.Context, kernel.TenantID, time.Time, time.Time) (*audit.Stats, error) {
	return &audit.Stats{}, nil
}

func TestRecord(t *testing.T) {
	repo := &capturingRepo{}
	svc := auditsrv.NewService(repo)

	svc.Record(context.Background(), audit.NewAttempt(kernel.NewTenantID("t1"), "a@example.com", audit.FlowPassword, nil, nil))
	if len(repo.inserted) != 1 {
		t.Fatalf("expected one record, got %d", len(repo.inserted))
	}
}

// A broken audit sink is logged and counted, never surfaced to the login path.
func TestRecord_SinkFailureIsSwallowed(t *testing.T) {
	repo := &capturingRepo{insertErr: errors.New("sink down")}
	svc := auditsrv.NewService(repo)

	svc.Record(context.Background(), audit.NewAttempt(kernel.NewTenantID("t1"), "a@example.com", audit.FlowPassword, nil, nil))
}

func TestQueryClampsPaging(t *testing.T) {
	repo := &capturingRepo{}
	svc := auditsrv.NewService(repo)
	tenant := kernel.NewTenantID("t1")
	pid := kernel.NewPrincipalID("p1")

	cases := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{limit: 0, offset: 0, wantLimit: 50, wantOffset: 0},
		{limit: -5, offset: -3, wantLimit: 50, wantOffset: 0},
		{limit: 25, offset: 10, wantLimit: 25, wantOffset: 10},
		{limit: 9999, offset: 0, wantLimit: 500, wantOffset: 0},
	}
	for _, tt := range cases {
		if _, err := svc.QueryByPrincipal(context.Background(), tenant, pid, tt.limit, tt.offset); err != nil {
			t.Fatalf("query: %v", err)
		}
		if repo.lastLimit != tt.wantLimit || repo.lastOffset != tt.wantOffset {
			t.Fatalf("limit %d offset %d: got (%d, %d), want (%d, %d)",
				tt.limit, tt.offset, repo.lastLimit, repo.lastOffset, tt.wantLimit, tt.wantOffset)
		}
	}

	if _, err := svc.QueryFailed(context.Background(), tenant, time.Now().Add(-time.Hour), 0); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if repo.lastLimit != 50 {
		t.Fatalf("failed query limit: %d", repo.lastLimit)
	}
}
