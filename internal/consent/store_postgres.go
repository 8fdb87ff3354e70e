package consent

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"idserver/internal/oauth"
)

// PostgresStore persists consents in PostgreSQL.
//
// Schema:
//
//	CREATE TABLE consents (
//	    id             TEXT PRIMARY KEY,
//	    subject        TEXT NOT NULL,
//	    client_id      TEXT NOT NULL,
//	    granted_scopes TEXT[] NOT NULL DEFAULT '{}',
//	    granted_claims TEXT[] NOT NULL DEFAULT '{}',
//	    granted_at     TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//	CREATE INDEX consents_subject_idx ON consents (subject);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed consent store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetConsentsForSubject(ctx context.Context, subject string) ([]*oauth.Consent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject, client_id, granted_scopes, granted_claims, granted_at
		FROM consents WHERE subject = $1
		ORDER BY granted_at
	`, subject)
	if err != nil {
		return nil, fmt.Errorf("query consents: %w", err)
	}
	defer rows.Close()

	var consents []*oauth.Consent
	for rows.Next() {
		var c oauth.Consent
		if err := rows.Scan(&c.ID, &c.Subject, &c.ClientID, pq.Array(&c.GrantedScopes), pq.Array(&c.GrantedClaims), &c.GrantedAt); err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		consents = append(consents, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	return consents, nil
}

func (s *PostgresStore) Insert(ctx context.Context, consent *oauth.Consent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consents (id, subject, client_id, granted_scopes, granted_claims, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, consent.ID, consent.Subject, consent.ClientID, pq.Array(consent.GrantedScopes), pq.Array(consent.GrantedClaims), consent.GrantedAt)
	if err != nil {
		return fmt.Errorf("insert consent: %w", err)
	}
	return nil
}
