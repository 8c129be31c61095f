package tokeninfra

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/keyward-io/keyward/pkg/errx"
	"github.com/keyward-io/keyward/pkg/iam/token"
	"github.com/keyward-io/keyward/pkg/kernel"
)

// PostgresRepository is the Postgres implementation of token.Repository.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) token.Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Save(ctx context.Context, t *token.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (
			id, token, principal_id, tenant_id, issued_at, expires_at, revoked, replaced_by
		) VALUES (
			:id, :token, :principal_id, :tenant_id, :issued_at, :expires_at, :revoked, :replaced_by
		)`

	if _, err := r.db.NamedExecContext(ctx, query, toPersistence(t)); err != nil {
		return errx.Wrap(err, "failed to save refresh token", errx.TypeUnavailable)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, tenantID kernel.TenantID, tokenValue string) (*token.RefreshToken, error) {
	var row refreshTokenRow
	query := `SELECT * FROM refresh_tokens WHERE token = $1 AND tenant_id = $2`
	if err := r.db.GetContext(ctx, &row, query, tokenValue, tenantID.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, token.ErrRegistry.New(token.CodeInvalidRefresh).
				WithDetail("reason", "not_found")
		}
		return nil, errx.Wrap(err, "failed to find refresh token", errx.TypeUnavailable)
	}
	return toDomain(row), nil
}

// Rotate is the single-winner swap: the predecessor is claimed only if it has
// no successor and is not revoked. Both statements run in one transaction so
// a successor row can never exist without its predecessor pointing at it.
func (r *PostgresRepository) Rotate(ctx context.Context, old *token.RefreshToken, successor *token.RefreshToken) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin rotation transaction", errx.TypeUnavailable)
	}
	defer tx.Rollback()

	claim := `
		UPDATE refresh_tokens
		SET replaced_by = $1
		WHERE id = $2 AND tenant_id = $3 AND replaced_by IS NULL AND revoked = false`

	res, err := tx.ExecContext(ctx, claim, successor.ID, old.ID, old.TenantID.String())
	if err != nil {
		return errx.Wrap(err, "failed to claim refresh token for rotation", errx.TypeUnavailable)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to read rotation result", errx.TypeUnavailable)
	}
	if affected == 0 {
		return token.ErrAlreadyRotated()
	}

	insert := `
		INSERT INTO refresh_tokens (
			id, token, principal_id, tenant_id, issued_at, expires_at, revoked, replaced_by
		) VALUES (
			:id, :token, :principal_id, :tenant_id, :issued_at, :expires_at, :revoked, :replaced_by
		)`
	if _, err := tx.NamedExecContext(ctx, insert, toPersistence(successor)); err != nil {
		return errx.Wrap(err, "failed to persist successor token", errx.TypeUnavailable)
	}

	if err := tx.Commit(); err != nil {
		return errx.Wrap(err, "failed to commit rotation", errx.TypeUnavailable)
	}
	return nil
}

// RevokeChain walks ReplacedBy links from the given token in both directions
// and revokes every member of the lineage.
func (r *PostgresRepository) RevokeChain(ctx context.Context, tenantID kernel.TenantID, tokenID string) (int, error) {
	query := `
		WITH RECURSIVE chain AS (
			SELECT id, replaced_by FROM refresh_tokens
			WHERE id = $1 AND tenant_id = $2
			UNION
			SELECT t.id, t.replaced_by FROM refresh_tokens t
			JOIN chain c ON t.id = c.replaced_by OR t.replaced_by = c.id
			WHERE t.tenant_id = $2
		)
		UPDATE refresh_tokens
		SET revoked = true
		WHERE tenant_id = $2 AND id IN (SELECT id FROM chain)`

	res, err := r.db.ExecContext(ctx, query, tokenID, tenantID.String())
	if err != nil {
		return 0, errx.Wrap(err, "failed to revoke refresh token chain", errx.TypeUnavailable)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errx.Wrap(err, "failed to read chain revocation result", errx.TypeUnavailable)
	}
	return int(affected), nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, tenantID kernel.TenantID, tokenValue string) error {
	query := `UPDATE refresh_tokens SET revoked = true WHERE token = $1 AND tenant_id = $2`
	if _, err := r.db.ExecContext(ctx, query, tokenValue, tenantID.String()); err != nil {
		return errx.Wrap(err, "failed to revoke refresh token", errx.TypeUnavailable)
	}
	return nil
}

func (r *PostgresRepository) RevokeAllForPrincipal(ctx context.Context, tenantID kernel.TenantID, principalID kernel.PrincipalID) error {
	query := `
		UPDATE refresh_tokens SET revoked = true
		WHERE principal_id = $1 AND tenant_id = $2 AND revoked = false`
	if _, err := r.db.ExecContext(ctx, query, principalID.String(), tenantID.String()); err != nil {
		return errx.Wrap(err, "failed to revoke principal refresh tokens", errx.TypeUnavailable)
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, errx.Wrap(err, "failed to delete expired refresh tokens", errx.TypeUnavailable)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errx.Wrap(err, "failed to read expired token cleanup result", errx.TypeUnavailable)
	}
	return affected, nil
}

type refreshTokenRow struct {
	ID          string         `db:"id"`
	Token       string         `db:"token"`
	PrincipalID string         `db:"principal_id"`
	TenantID    string         `db:"tenant_id"`
	IssuedAt    time.Time      `db:"issued_at"`
	ExpiresAt   time.Time      `db:"expires_at"`
	Revoked     bool           `db:"revoked"`
	ReplacedBy  sql.NullString `db:"replaced_by"`
}

func toPersistence(t *token.RefreshToken) refreshTokenRow {
	row := refreshTokenRow{
		ID:          t.ID,
		Token:       t.Token,
		PrincipalID: t.PrincipalID.String(),
		TenantID:    t.TenantID.String(),
		IssuedAt:    t.IssuedAt,
		ExpiresAt:   t.ExpiresAt,
		Revoked:     t.Revoked,
	}
	if t.ReplacedBy != nil {
		row.ReplacedBy = sql.NullString{String: *t.ReplacedBy, Valid: true}
	}
	return row
}

func toDomain(row refreshTokenRow) *token.RefreshToken {
	t := &token.RefreshToken{
		ID:          row.ID,
		Token:       row.Token,
		PrincipalID: kernel.NewPrincipalID(row.PrincipalID),
		TenantID:    kernel.NewTenantID(row.TenantID),
		IssuedAt:    row.IssuedAt,
		ExpiresAt:   row.ExpiresAt,
		Revoked:     row.Revoked,
	}
	if row.ReplacedBy.Valid {
		id := row.ReplacedBy.String
		t.ReplacedBy = &id
	}
	return t
}
