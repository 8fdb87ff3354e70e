package ownerauth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"idserver/internal/oauth"
	dErrors "idserver/pkg/domain-errors"
)

// OwnerStore is the resource owner lookup contract.
type OwnerStore interface {
	GetBySubject(ctx context.Context, subject string) (*oauth.ResourceOwner, error)
}

// AMRResolver maps a completed authentication to its authentication method
// reference values ("pwd", "mfa", ...). Pluggable so deployments can refine
// how methods are reported.
type AMRResolver interface {
	Resolve(owner *oauth.ResourceOwner) []string
}

// PasswordAMR is the default resolver: local password logins are "pwd", with
// "mfa" appended when the owner has a second factor configured.
type PasswordAMR struct{}

func (PasswordAMR) Resolve(owner *oauth.ResourceOwner) []string {
	amr := []string{"pwd"}
	if owner.TwoFactor != oauth.TwoFactorNone {
		amr = append(amr, "mfa")
	}
	return amr
}

// ErrBadCredentials is returned for unknown subjects and wrong passwords
// alike; callers map it to invalid_grant without distinguishing the two.
var ErrBadCredentials = dErrors.New(dErrors.CodeUnauthorized, "resource owner credentials are not correct")

// Service authenticates resource owners by credentials.
type Service struct {
	owners OwnerStore
	amr    AMRResolver
}

func NewService(owners OwnerStore, amr AMRResolver) *Service {
	if amr == nil {
		amr = PasswordAMR{}
	}
	return &Service{owners: owners, amr: amr}
}

// Authenticate verifies the password against the stored bcrypt hash and
// returns the owner with its AMR values.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*oauth.ResourceOwner, []string, error) {
	owner, err := s.owners.GetBySubject(ctx, username)
	if err != nil {
		// Burn a compare for unknown subjects to keep timing uniform.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$7EqJtq98hPqEX7fNZaFWoOhi5B0a1NtVQcGz4PqbRnIs1Tv5bIldW"), []byte(password))
		return nil, nil, ErrBadCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(owner.PasswordHash), []byte(password)) != nil {
		return nil, nil, ErrBadCredentials
	}
	return owner, s.amr.Resolve(owner), nil
}

// HashPassword produces the stored form of a password at registration time.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
