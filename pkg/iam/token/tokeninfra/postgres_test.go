package tokeninfra_test

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/keyward-io/keyward/pkg/iam/token"
	"github.com/keyward-io/keyward/pkg/iam/token/tokeninfra"
	"github.com/keyward-io/keyward/pkg/kernel"
)

func newMockRepo(t *testing.T) (token.Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return tokeninfra.NewPostgresRepository(sqlx.NewDb(db, "postgres")), mock
}

func mustToken(t *testing.T, tenantID kernel.TenantID) *token.RefreshToken {
	t.Helper()
	rt, err := token.NewRefreshToken(kernel.NewPrincipalID("p1"), tenantID, time.Hour)
	if err != nil {
		t.Fatalf("new refresh token: %v", err)
	}
	return rt
}

func TestPostgresRotate_Commits(t *testing.T) {
	repo, mock := newMockRepo(t)
	tenant := kernel.NewTenantID("t1")
	old := mustToken(t, tenant)
	successor := mustToken(t, tenant)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens")).
		WithArgs(successor.ID, old.ID, tenant.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO refresh_tokens")).
		WithArgs(successor.ID, successor.Token, "p1", tenant.String(),
			successor.IssuedAt, successor.ExpiresAt, false, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.Rotate(context.Background(), old, successor); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresRotate_LostClaimRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)
	tenant := kernel.NewTenantID("t1")
	old := mustToken(t, tenant)
	successor := mustToken(t, tenant)

	// Zero rows claimed: a concurrent rotation got there first. The successor
	// must never be inserted.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens")).
		WithArgs(successor.ID, old.ID, tenant.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Rotate(context.Background(), old, successor)
	if !errors.Is(err, token.ErrAlreadyRotated()) {
		t.Fatalf("expected already-rotated conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresFind_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	tenant := kernel.NewTenantID("t1")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM refresh_tokens")).
		WithArgs("missing", tenant.String()).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Find(context.Background(), tenant, "missing")
	if !errors.Is(err, token.ErrInvalidRefresh()) {
		t.Fatalf("expected invalid refresh, got %v", err)
	}
}

func TestPostgresFind_MapsRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	tenant := kernel.NewTenantID("t1")
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "token", "principal_id", "tenant_id",
		"issued_at", "expires_at", "revoked", "replaced_by",
	}).AddRow("rt1", "opaque", "p1", "t1", now, now.Add(time.Hour), false, "rt2")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM refresh_tokens")).
		WithArgs("opaque", tenant.String()).
		WillReturnRows(rows)

	got, err := repo.Find(context.Background(), tenant, "opaque")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.ID != "rt1" || got.PrincipalID.String() != "p1" {
		t.Fatalf("row mapping: %+v", got)
	}
	if got.ReplacedBy == nil || *got.ReplacedBy != "rt2" {
		t.Fatalf("replaced_by mapping: %+v", got.ReplacedBy)
	}
	if !got.WasRotated() {
		t.Fatal("token with successor should report rotated")
	}
}

func TestPostgresRevokeChain_CountsAffected(t *testing.T) {
	repo, mock := newMockRepo(t)
	tenant := kernel.NewTenantID("t1")

	mock.ExpectExec(regexp.QuoteMeta("WITH RECURSIVE chain")).
		WithArgs("rt1", tenant.String()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.RevokeChain(context.Background(), tenant, "rt1")
	if err != nil {
		t.Fatalf("revoke chain: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 revoked, got %d", n)
	}
}

func TestPostgresRevoke_UnknownTokenIsNotAnError(t *testing.T) {
	repo, mock := newMockRepo(t)
	tenant := kernel.NewTenantID("t1")

	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = true")).
		WithArgs("unknown", tenant.String()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Revoke(context.Background(), tenant, "unknown"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
}

func TestPostgresDeleteExpired(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := repo.DeleteExpired(context.Background())
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 7 {
		t.Fatalf("expected 7 deleted, got %d", n)
	}
}
