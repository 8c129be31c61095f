package auditinfra

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/keyward-io/keyward/pkg/errx"
	"github.com/keyward-io/keyward/pkg/iam/audit"
	"github.com/keyward-io/keyward/pkg/kernel"
)

// PostgresRepository is the Postgres implementation of audit.Repository.
// There are no UPDATE or DELETE statements in this file on purpose.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) audit.Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, a *audit.LoginAttempt) error {
	query := `
		INSERT INTO login_attempts (
			id, tenant_id, principal_id, email, flow, success, failure_reason,
			ip, user_agent, device_type, browser, os,
			token_issued, refresh_issued, created_at
		) VALUES (
			:id, :tenant_id, :principal_id, :email, :flow, :success, :failure_reason,
			:ip, :user_agent, :device_type, :browser, :os,
			:token_issued, :refresh_issued, :created_at
		)`
	if _, err := r.db.NamedExecContext(ctx, query, toPersistence(a)); err != nil {
		return errx.Wrap(err, "failed to insert login attempt", errx.TypeUnavailable)
	}
	return nil
}

func (r *PostgresRepository) ListByPrincipal(ctx context.Context, tenantID kernel.TenantID, principalID kernel.PrincipalID, limit, offset int) ([]audit.LoginAttempt, error) {
	query := `
		SELECT * FROM login_attempts
		WHERE tenant_id = $1 AND principal_id = $2
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`
	return r.list(ctx, query, tenantID.String(), principalID.String(), limit, offset)
}

func (r *PostgresRepository) ListByDateRange(ctx context.Context, tenantID kernel.TenantID, from, to time.Time, limit, offset int) ([]audit.LoginAttempt, error) {
	query := `
		SELECT * FROM login_attempts
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`
	return r.list(ctx, query, tenantID.String(), from, to, limit, offset)
}

func (r *PostgresRepository) ListFailed(ctx context.Context, tenantID kernel.TenantID, since time.Time, limit int) ([]audit.LoginAttempt, error) {
	query := `
		SELECT * FROM login_attempts
		WHERE tenant_id = $1 AND success = false AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3`
	return r.list(ctx, query, tenantID.String(), since, limit)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]audit.LoginAttempt, error) {
	var rows []loginAttemptRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errx.Wrap(err, "failed to query login attempts", errx.TypeUnavailable)
	}
	out := make([]audit.LoginAttempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, *toDomain(row))
	}
	return out, nil
}

func (r *PostgresRepository) Stats(ctx context.Context, tenantID kernel.TenantID, from, to time.Time) (*audit.Stats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE success) AS successes,
			COUNT(*) FILTER (WHERE NOT success) AS failures
		FROM login_attempts
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3`

	var row struct {
		Total     int64 `db:"total"`
		Successes int64 `db:"successes"`
		Failures  int64 `db:"failures"`
	}
	if err := r.db.GetContext(ctx, &row, query, tenantID.String(), from, to); err != nil {
		return nil, errx.Wrap(err, "failed to aggregate login stats", errx.TypeUnavailable)
	}

	stats := &audit.Stats{
		TotalAttempts:    row.Total,
		SuccessfulLogins: row.Successes,
		FailedLogins:     row.Failures,
		From:             from,
		To:               to,
	}
	if row.Total > 0 {
		stats.SuccessRate = float64(row.Successes) / float64(row.Total) * 100
	}
	return stats, nil
}

type loginAttemptRow struct {
	ID            string         `db:"id"`
	TenantID      string         `db:"tenant_id"`
	PrincipalID   sql.NullString `db:"principal_id"`
	Email         string         `db:"email"`
	Flow          string         `db:"flow"`
	Success       bool           `db:"success"`
	FailureReason sql.NullString `db:"failure_reason"`
	IP            sql.NullString `db:"ip"`
	UserAgent     sql.NullString `db:"user_agent"`
	DeviceType    sql.NullString `db:"device_type"`
	Browser       sql.NullString `db:"browser"`
	OS            sql.NullString `db:"os"`
	TokenIssued   bool           `db:"token_issued"`
	RefreshIssued bool           `db:"refresh_issued"`
	CreatedAt     time.Time      `db:"created_at"`
}

func toPersistence(a *audit.LoginAttempt) loginAttemptRow {
	row := loginAttemptRow{
		ID:            a.ID,
		TenantID:      a.TenantID.String(),
		Email:         a.Email,
		Flow:          string(a.Flow),
		Success:       a.Success,
		TokenIssued:   a.TokenIssued,
		RefreshIssued: a.RefreshIssued,
		CreatedAt:     a.CreatedAt,
	}
	if a.PrincipalID != nil {
		row.PrincipalID = sql.NullString{String: a.PrincipalID.String(), Valid: true}
	}
	row.FailureReason = nullable(a.FailureReason)
	row.IP = nullable(a.IP)
	row.UserAgent = nullable(a.UserAgent)
	row.DeviceType = nullable(a.DeviceType)
	row.Browser = nullable(a.Browser)
	row.OS = nullable(a.OS)
	return row
}

func toDomain(row loginAttemptRow) *audit.LoginAttempt {
	a := &audit.LoginAttempt{
		ID:            row.ID,
		TenantID:      kernel.NewTenantID(row.TenantID),
		Email:         row.Email,
		Flow:          audit.Flow(row.Flow),
		Success:       row.Success,
		TokenIssued:   row.TokenIssued,
		RefreshIssued: row.RefreshIssued,
		CreatedAt:     row.CreatedAt,
	}
	if row.PrincipalID.Valid {
		id := kernel.NewPrincipalID(row.PrincipalID.String)
		a.PrincipalID = &id
	}
	a.FailureReason = optional(row.FailureReason)
	a.IP = optional(row.IP)
	a.UserAgent = optional(row.UserAgent)
	a.DeviceType = optional(row.DeviceType)
	a.Browser = optional(row.Browser)
	a.OS = optional(row.OS)
	return a
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func optional(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
