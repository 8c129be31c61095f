package principalinfra

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/keyward-io/keyward/pkg/errx"
	"github.com/keyward-io/keyward/pkg/iam"
	"github.com/keyward-io/keyward/pkg/iam/principal"
	"github.com/keyward-io/keyward/pkg/kernel"
	"github.com/lib/pq"
)

// PostgresRepository is the Postgres implementation of principal.Repository.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) principal.Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, p *principal.Principal) error {
	query := `
		INSERT INTO principals (
			id, tenant_id, email, password_hash, oauth_provider, oauth_id,
			roles, active, email_verified, created_at, updated_at, last_login_at
		) VALUES (
			:id, :tenant_id, :email, :password_hash, :oauth_provider, :oauth_id,
			:roles, :active, :email_verified, :created_at, :updated_at, :last_login_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, toPersistence(p))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation on (tenant_id, email)
			return principal.ErrAlreadyExists().WithDetail("email", p.Email)
		}
		return errx.Wrap(err, "failed to create principal", errx.TypeUnavailable)
	}
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, tenantID kernel.TenantID, id kernel.PrincipalID) (*principal.Principal, error) {
	var row principalRow
	query := `SELECT * FROM principals WHERE id = $1 AND tenant_id = $2`
	if err := r.db.GetContext(ctx, &row, query, id.String(), tenantID.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, principal.ErrNotFound()
		}
		return nil, errx.Wrap(err, "failed to find principal by id", errx.TypeUnavailable)
	}
	return toDomain(row), nil
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, tenantID kernel.TenantID, email string) (*principal.Principal, error) {
	var row principalRow
	query := `SELECT * FROM principals WHERE tenant_id = $1 AND email = $2`
	if err := r.db.GetContext(ctx, &row, query, tenantID.String(), email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, principal.ErrNotFound()
		}
		return nil, errx.Wrap(err, "failed to find principal by email", errx.TypeUnavailable)
	}
	return toDomain(row), nil
}

func (r *PostgresRepository) FindByOAuth(ctx context.Context, tenantID kernel.TenantID, provider iam.Provider, providerID string) (*principal.Principal, error) {
	var row principalRow
	query := `SELECT * FROM principals WHERE tenant_id = $1 AND oauth_provider = $2 AND oauth_id = $3`
	if err := r.db.GetContext(ctx, &row, query, tenantID.String(), provider.String(), providerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, principal.ErrNotFound()
		}
		return nil, errx.Wrap(err, "failed to find principal by oauth identity", errx.TypeUnavailable)
	}
	return toDomain(row), nil
}

func (r *PostgresRepository) UpdateLastLogin(ctx context.Context, tenantID kernel.TenantID, id kernel.PrincipalID, at time.Time) error {
	query := `UPDATE principals SET last_login_at = $1, updated_at = $1 WHERE id = $2 AND tenant_id = $3`
	if _, err := r.db.ExecContext(ctx, query, at, id.String(), tenantID.String()); err != nil {
		return errx.Wrap(err, "failed to update last login", errx.TypeUnavailable)
	}
	return nil
}

// principalRow maps database column types.
type principalRow struct {
	ID            string         `db:"id"`
	TenantID      string         `db:"tenant_id"`
	Email         string         `db:"email"`
	PasswordHash  sql.NullString `db:"password_hash"`
	OAuthProvider sql.NullString `db:"oauth_provider"`
	OAuthID       sql.NullString `db:"oauth_id"`
	Roles         pq.StringArray `db:"roles"`
	Active        bool           `db:"active"`
	EmailVerified bool           `db:"email_verified"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
	LastLoginAt   *time.Time     `db:"last_login_at"`
}

func toPersistence(p *principal.Principal) principalRow {
	row := principalRow{
		ID:            p.ID.String(),
		TenantID:      p.TenantID.String(),
		Email:         p.Email,
		Roles:         p.Roles,
		Active:        p.Active,
		EmailVerified: p.EmailVerified,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
		LastLoginAt:   p.LastLoginAt,
	}
	if p.PasswordHash != nil {
		row.PasswordHash = sql.NullString{String: *p.PasswordHash, Valid: true}
	}
	if p.Provider != nil {
		row.OAuthProvider = sql.NullString{String: p.Provider.String(), Valid: true}
	}
	if p.ProviderID != nil {
		row.OAuthID = sql.NullString{String: *p.ProviderID, Valid: true}
	}
	return row
}

func toDomain(row principalRow) *principal.Principal {
	p := &principal.Principal{
		ID:            kernel.NewPrincipalID(row.ID),
		TenantID:      kernel.NewTenantID(row.TenantID),
		Email:         row.Email,
		Roles:         row.Roles,
		Active:        row.Active,
		EmailVerified: row.EmailVerified,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
		LastLoginAt:   row.LastLoginAt,
	}
	if row.PasswordHash.Valid {
		hash := row.PasswordHash.String
		p.PasswordHash = &hash
	}
	if row.OAuthProvider.Valid {
		provider := iam.Provider(row.OAuthProvider.String)
		p.Provider = &provider
	}
	if row.OAuthID.Valid {
		id := row.OAuthID.String
		p.ProviderID = &id
	}
	return p
}
