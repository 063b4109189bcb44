package directory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/sso-hub/internal/errors"
	_ "github.com/lib/pq"
)

// OpenPostgres opens and pings a lib/pq connection pool.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

type PostgresRepo struct {
	db *sql.DB
}

var _ Repo = (*PostgresRepo)(nil)

func NewPostgresRepo(db *sql.DB) (*PostgresRepo, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	r := &PostgresRepo{db: db}
	if err := r.ensureSchema(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PostgresRepo) ensureSchema() error {
	const q = `
CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY,
	email TEXT,
	full_name TEXT NOT NULL DEFAULT '',
	account_type TEXT NOT NULL DEFAULT 'normal',
	is_first_login BOOLEAN NOT NULL DEFAULT FALSE,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS profiles_email_idx ON profiles (email);
ALTER TABLE profiles ADD COLUMN IF NOT EXISTS accepted_terms_at TIMESTAMPTZ;
ALTER TABLE profiles ADD COLUMN IF NOT EXISTS terms_version TEXT NOT NULL DEFAULT '';
ALTER TABLE profiles ADD COLUMN IF NOT EXISTS marketing_consent BOOLEAN NOT NULL DEFAULT FALSE;
ALTER TABLE profiles ADD COLUMN IF NOT EXISTS ip_address TEXT NOT NULL DEFAULT '';
CREATE TABLE IF NOT EXISTS memberships (
	user_id TEXT NOT NULL,
	organization_id TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'member',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, organization_id)
);
CREATE TABLE IF NOT EXISTS operational_roles (
	user_id TEXT NOT NULL,
	app TEXT NOT NULL,
	role TEXT NOT NULL,
	PRIMARY KEY (user_id, app)
);
CREATE TABLE IF NOT EXISTS applications (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	domain_url TEXT NOT NULL,
	api_url TEXT NOT NULL DEFAULT '',
	is_free BOOLEAN NOT NULL DEFAULT FALSE,
	is_active BOOLEAN NOT NULL DEFAULT TRUE
)`
	if _, err := r.db.Exec(q); err != nil {
		return fmt.Errorf("ensure directory schema: %w", err)
	}
	return nil
}

const profileColumns = `id, COALESCE(email, ''), full_name, account_type, is_first_login, is_active, updated_at,
	accepted_terms_at, terms_version, marketing_consent, ip_address`

func scanProfile(row *sql.Row) (*Profile, error) {
	var p Profile
	var accountType string
	var acceptedAt sql.NullTime
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &accountType, &p.MustResetCredentials, &p.IsActive, &p.UpdatedAt,
		&acceptedAt, &p.TermsVersion, &p.MarketingConsent, &p.IPAddress)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNotFound
		}
		return nil, err
	}
	p.AccountType = AccountType(accountType)
	if acceptedAt.Valid {
		p.AcceptedTermsAt = &acceptedAt.Time
	}
	return &p, nil
}

func (r *PostgresRepo) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.ErrNotFound
	}
	p, err := scanProfile(r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, userID))
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return p, err
}

func (r *PostgresRepo) GetProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.ErrNotFound
	}
	p, err := scanProfile(r.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE lower(email) = $1`, email))
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return nil, fmt.Errorf("query profile by email: %w", err)
	}
	return p, err
}

func (r *PostgresRepo) UpsertProfile(ctx context.Context, p *Profile) error {
	if p == nil || p.ID == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "profile id is required")
	}
	if p.AccountType == "" {
		p.AccountType = AccountNormal
	}
	const q = `
INSERT INTO profiles (id, email, full_name, account_type, is_first_login, is_active, updated_at,
	accepted_terms_at, terms_version, marketing_consent, ip_address)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE
SET email = EXCLUDED.email,
	full_name = EXCLUDED.full_name,
	account_type = EXCLUDED.account_type,
	is_first_login = EXCLUDED.is_first_login,
	is_active = EXCLUDED.is_active,
	updated_at = NOW(),
	accepted_terms_at = COALESCE(EXCLUDED.accepted_terms_at, profiles.accepted_terms_at),
	terms_version = CASE WHEN EXCLUDED.accepted_terms_at IS NULL THEN profiles.terms_version ELSE EXCLUDED.terms_version END,
	marketing_consent = CASE WHEN EXCLUDED.accepted_terms_at IS NULL THEN profiles.marketing_consent ELSE EXCLUDED.marketing_consent END,
	ip_address = CASE WHEN EXCLUDED.accepted_terms_at IS NULL THEN profiles.ip_address ELSE EXCLUDED.ip_address END`
	var acceptedAt sql.NullTime
	if p.AcceptedTermsAt != nil {
		acceptedAt = sql.NullTime{Time: *p.AcceptedTermsAt, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, q, p.ID, p.Email, p.FullName, string(p.AccountType), p.MustResetCredentials, p.IsActive,
		acceptedAt, p.TermsVersion, p.MarketingConsent, p.IPAddress)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (r *PostgresRepo) ClearMustReset(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE profiles SET is_first_login = FALSE, updated_at = NOW() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("clear must reset: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) ListMemberships(ctx context.Context, userID string) ([]Membership, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, organization_id, role FROM memberships WHERE user_id = $1 ORDER BY organization_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()

	var out []Membership
	for rows.Next() {
		var m Membership
		var role string
		if err := rows.Scan(&m.UserID, &m.TenantID, &role); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		m.Role = RoleType(role)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memberships: %w", err)
	}
	return out, nil
}

func (r *PostgresRepo) AddMembership(ctx context.Context, m Membership) error {
	if m.UserID == "" || m.TenantID == "" {
		return errors.Wrapf(errors.ErrInvalidRequest, "user id and tenant id are required")
	}
	if m.Role == "" {
		m.Role = RoleMember
	}
	const q = `
INSERT INTO memberships (user_id, organization_id, role)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, organization_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, q, m.UserID, m.TenantID, string(m.Role)); err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

func (r *PostgresRepo) ListOperationalRoles(ctx context.Context, userID string) ([]OperationalRole, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id, app, role FROM operational_roles WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("query operational roles: %w", err)
	}
	defer rows.Close()

	var out []OperationalRole
	for rows.Next() {
		var o OperationalRole
		var role string
		if err := rows.Scan(&o.UserID, &o.App, &role); err != nil {
			return nil, fmt.Errorf("scan operational role: %w", err)
		}
		o.Role = RoleType(role)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate operational roles: %w", err)
	}
	return out, nil
}

func (r *PostgresRepo) ListApplications(ctx context.Context) ([]Application, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, description, domain_url, api_url, is_free, is_active
FROM applications WHERE is_active = TRUE ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	defer rows.Close()

	var out []Application
	for rows.Next() {
		var a Application
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.DomainURL, &a.APIURL, &a.IsFree, &a.IsActive); err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return out, nil
}
