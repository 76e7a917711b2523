package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"parishdesk/internal/normalize"
)

type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("missing database dsn")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Profile is the identity-provider row for one authenticated actor. Rows are
// written by the surrounding platform; this service only reads them, except
// for the impersonation metadata column.
type Profile struct {
	ID         string
	Email      string
	Superadmin bool
	CreatedAt  time.Time
}

type Organization struct {
	ID   string
	Name string
	Slug string
}

// TenantMembership is the joined (membership, organization) row resolved for
// one request.
type TenantMembership struct {
	OrgID   string
	OrgSlug string
	Role    string
}

func (s *Store) GetProfile(ctx context.Context, profileID string) (Profile, error) {
	var p Profile
	row := s.db.QueryRowContext(ctx, `SELECT id, email, is_superadmin, created_at FROM profiles WHERE id = $1`, profileID)
	if err := row.Scan(&p.ID, &p.Email, &p.Superadmin, &p.CreatedAt); err != nil {
		return p, err
	}
	return p, nil
}

// LookupMembershipBySlug resolves a principal's membership inside the
// organization with the given slug in a single joined query, so an unknown
// slug and a missing membership are indistinguishable to the caller.
func (s *Store) LookupMembershipBySlug(ctx context.Context, profileID string, slug string) (TenantMembership, error) {
	var tm TenantMembership
	row := s.db.QueryRowContext(ctx, `SELECT o.id, o.slug, m.role
		FROM memberships m
		JOIN organizations o ON o.id = m.org_id
		WHERE m.profile_id = $1 AND o.slug = $2`, profileID, slug)
	if err := row.Scan(&tm.OrgID, &tm.OrgSlug, &tm.Role); err != nil {
		return tm, err
	}
	return tm, nil
}

func (s *Store) GetOrganizationBySlug(ctx context.Context, slug string) (Organization, error) {
	var org Organization
	row := s.db.QueryRowContext(ctx, `SELECT id, name, slug FROM organizations WHERE slug = $1`, slug)
	if err := row.Scan(&org.ID, &org.Name, &org.Slug); err != nil {
		return org, err
	}
	return org, nil
}

func (s *Store) GetMembershipRole(ctx context.Context, profileID string, orgID string) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT role FROM memberships WHERE profile_id = $1 AND org_id = $2`, profileID, orgID)
	var role string
	if err := row.Scan(&role); err != nil {
		return "", err
	}
	return role, nil
}

// GetImpersonationMeta returns the raw impersonation metadata stored on the
// grantor's profile, or nil when none is set.
func (s *Store) GetImpersonationMeta(ctx context.Context, grantorID string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx, `SELECT impersonation FROM profiles WHERE id = $1`, grantorID)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *Store) SetImpersonationMeta(ctx context.Context, grantorID string, raw []byte) error {
	_, err := s.db.ExecContext(ctx, `UPDATE profiles SET impersonation = $2 WHERE id = $1`, grantorID, raw)
	return err
}

func (s *Store) ClearImpersonationMeta(ctx context.Context, grantorID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE profiles SET impersonation = NULL WHERE id = $1`, grantorID)
	return err
}

func (s *Store) RecordAudit(ctx context.Context, actorID string, targetID string, action string, detail string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO audit_log (id, actor_id, target_id, action, detail) VALUES ($1,$2,$3,$4,$5)`,
		uuid.NewString(), actorID, nullIfEmpty(targetID), action, nullIfEmpty(detail))
	return err
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, actor_id, target_id, action, detail, created_at
		FROM audit_log
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var id, actorID, action string
		var targetID, detail sql.NullString
		var createdAt time.Time
		if err := rows.Scan(&id, &actorID, &targetID, &action, &detail, &createdAt); err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"id":         id,
			"actor_id":   actorID,
			"target_id":  targetID.String,
			"action":     action,
			"detail":     detail.String,
			"created_at": createdAt,
		})
	}
	return out, rows.Err()
}

func (s *Store) CreateOrganization(ctx context.Context, name string, slug string) (string, error) {
	canonical, err := normalize.OrgSlug(slug)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `INSERT INTO organizations (id, name, slug) VALUES ($1,$2,$3)`, id, name, canonical)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) CreateProfile(ctx context.Context, email string, superadmin bool) (string, error) {
	canonical, err := normalize.Email(email)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `INSERT INTO profiles (id, email, is_superadmin) VALUES ($1,$2,$3)`, id, canonical, superadmin)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) UpsertMembership(ctx context.Context, profileID string, orgID string, role string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO memberships (id, profile_id, org_id, role)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (profile_id, org_id) DO UPDATE SET role = EXCLUDED.role`,
		uuid.NewString(), profileID, orgID, role)
	return err
}

func (s *Store) HealthSummary(ctx context.Context) (map[string]string, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return nil, err
	}
	return map[string]string{"database": "ok"}, nil
}
