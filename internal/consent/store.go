package consent

import (
	"context"

	"idserver/internal/oauth"
)

// Store is the narrow consent repository contract the matcher consumes.
type Store interface {
	GetConsentsForSubject(ctx context.Context, subject string) ([]*oauth.Consent, error)
	Insert(ctx context.Context, consent *oauth.Consent) error
}
