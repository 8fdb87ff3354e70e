package resourceowner

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"idserver/internal/oauth"
	"idserver/pkg/platform/sentinel"
)

// PostgresStore persists resource owners in PostgreSQL.
//
// Schema:
//
//	CREATE TABLE resource_owners (
//	    subject       TEXT PRIMARY KEY,
//	    password_hash TEXT NOT NULL,
//	    claims        JSONB NOT NULL DEFAULT '{}',
//	    two_factor    TEXT NOT NULL DEFAULT '',
//	    is_local      BOOLEAN NOT NULL DEFAULT TRUE,
//	    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed resource owner store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetBySubject(ctx context.Context, subject string) (*oauth.ResourceOwner, error) {
	var (
		owner     oauth.ResourceOwner
		claimsRaw []byte
		twoFactor string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT subject, password_hash, claims, two_factor, is_local, created_at
		FROM resource_owners WHERE subject = $1
	`, subject).Scan(&owner.Subject, &owner.PasswordHash, &claimsRaw, &twoFactor, &owner.IsLocal, &owner.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resource owner not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query resource owner: %w", err)
	}
	if err := json.Unmarshal(claimsRaw, &owner.Claims); err != nil {
		return nil, fmt.Errorf("decode owner claims: %w", err)
	}
	owner.TwoFactor = oauth.TwoFactorChannel(twoFactor)
	return &owner, nil
}

func (s *PostgresStore) Insert(ctx context.Context, owner *oauth.ResourceOwner) error {
	claims, err := json.Marshal(owner.Claims)
	if err != nil {
		return fmt.Errorf("encode owner claims: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resource_owners (subject, password_hash, claims, two_factor, is_local, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, owner.Subject, owner.PasswordHash, claims, string(owner.TwoFactor), owner.IsLocal, owner.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("resource owner already exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert resource owner: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateClaims(ctx context.Context, subject string, claims map[string]string) error {
	data, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("encode owner claims: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE resource_owners SET claims = $2 WHERE subject = $1
	`, subject, data)
	if err != nil {
		return fmt.Errorf("update owner claims: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update owner claims: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("resource owner not found: %w", sentinel.ErrNotFound)
	}
	return nil
}
