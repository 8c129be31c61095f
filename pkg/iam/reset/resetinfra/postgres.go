package resetinfra

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/keyward-io/keyward/pkg/errx"
	"github.com/keyward-io/keyward/pkg/iam/reset"
	"github.com/keyward-io/keyward/pkg/kernel"
)

// PostgresRepository is the Postgres implementation of reset.Repository.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) reset.Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Issue(ctx context.Context, t *reset.ResetToken) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin reset issue transaction", errx.TypeUnavailable)
	}
	defer tx.Rollback()

	invalidate := `
		UPDATE reset_tokens SET used = true, used_at = $1
		WHERE principal_id = $2 AND tenant_id = $3 AND used = false`
	if _, err := tx.ExecContext(ctx, invalidate, time.Now().UTC(), t.PrincipalID.String(), t.TenantID.String()); err != nil {
		return errx.Wrap(err, "failed to invalidate prior reset tokens", errx.TypeUnavailable)
	}

	insert := `
		INSERT INTO reset_tokens (
			id, token, principal_id, tenant_id, created_at, expires_at, used, used_at
		) VALUES (
			:id, :token, :principal_id, :tenant_id, :created_at, :expires_at, :used, :used_at
		)`
	if _, err := tx.NamedExecContext(ctx, insert, toPersistence(t)); err != nil {
		return errx.Wrap(err, "failed to persist reset token", errx.TypeUnavailable)
	}

	if err := tx.Commit(); err != nil {
		return errx.Wrap(err, "failed to commit reset issue", errx.TypeUnavailable)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, tenantID kernel.TenantID, tokenValue string) (*reset.ResetToken, error) {
	var row resetTokenRow
	query := `SELECT * FROM reset_tokens WHERE token = $1 AND tenant_id = $2`
	if err := r.db.GetContext(ctx, &row, query, tokenValue, tenantID.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reset.ErrInvalidOrExpired()
		}
		return nil, errx.Wrap(err, "failed to find reset token", errx.TypeUnavailable)
	}
	return toDomain(row), nil
}

// ConsumeAndSetPassword claims the token with a compare-and-set so a token
// redeemed twice concurrently changes the password exactly once.
func (r *PostgresRepository) ConsumeAndSetPassword(ctx context.Context, tenantID kernel.TenantID, tokenValue string, newHash string) (*reset.ResetToken, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errx.Wrap(err, "failed to begin reset consume transaction", errx.TypeUnavailable)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	var row resetTokenRow
	consume := `
		UPDATE reset_tokens SET used = true, used_at = $1
		WHERE token = $2 AND tenant_id = $3 AND used = false AND expires_at > $1
		RETURNING *`
	if err := tx.GetContext(ctx, &row, consume, now, tokenValue, tenantID.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, reset.ErrInvalidOrExpired()
		}
		return nil, errx.Wrap(err, "failed to consume reset token", errx.TypeUnavailable)
	}

	setPassword := `
		UPDATE principals SET password_hash = $1, updated_at = $2
		WHERE id = $3 AND tenant_id = $4`
	res, err := tx.ExecContext(ctx, setPassword, newHash, now, row.PrincipalID, tenantID.String())
	if err != nil {
		return nil, errx.Wrap(err, "failed to set new password", errx.TypeUnavailable)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, errx.Wrap(err, "failed to read password update result", errx.TypeUnavailable)
	}
	if affected == 0 {
		return nil, reset.ErrInvalidOrExpired()
	}

	invalidate := `
		UPDATE reset_tokens SET used = true, used_at = $1
		WHERE principal_id = $2 AND tenant_id = $3 AND used = false`
	if _, err := tx.ExecContext(ctx, invalidate, now, row.PrincipalID, tenantID.String()); err != nil {
		return nil, errx.Wrap(err, "failed to invalidate sibling reset tokens", errx.TypeUnavailable)
	}

	if err := tx.Commit(); err != nil {
		return nil, errx.Wrap(err, "failed to commit reset consume", errx.TypeUnavailable)
	}
	return toDomain(row), nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM reset_tokens WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, errx.Wrap(err, "failed to delete expired reset tokens", errx.TypeUnavailable)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errx.Wrap(err, "failed to read expired reset cleanup result", errx.TypeUnavailable)
	}
	return affected, nil
}

type resetTokenRow struct {
	ID          string     `db:"id"`
	Token       string     `db:"token"`
	PrincipalID string     `db:"principal_id"`
	TenantID    string     `db:"tenant_id"`
	CreatedAt   time.Time  `db:"created_at"`
	ExpiresAt   time.Time  `db:"expires_at"`
	Used        bool       `db:"used"`
	UsedAt      *time.Time `db:"used_at"`
}

func toPersistence(t *reset.ResetToken) resetTokenRow {
	return resetTokenRow{
		ID:          t.ID,
		Token:       t.Token,
		PrincipalID: t.PrincipalID.String(),
		TenantID:    t.TenantID.String(),
		CreatedAt:   t.CreatedAt,
		ExpiresAt:   t.ExpiresAt,
		Used:        t.Used,
		UsedAt:      t.UsedAt,
	}
}

func toDomain(row resetTokenRow) *reset.ResetToken {
	return &reset.ResetToken{
		ID:          row.ID,
		Token:       row.Token,
		PrincipalID: kernel.NewPrincipalID(row.PrincipalID),
		TenantID:    kernel.NewTenantID(row.TenantID),
		CreatedAt:   row.CreatedAt,
		ExpiresAt:   row.ExpiresAt,
		Used:        row.Used,
		UsedAt:      row.UsedAt,
	}
}
