package oauth

import "time"

// TwoFactorChannel names how a confirmation code reaches the resource owner.
type TwoFactorChannel string

const (
	TwoFactorNone  TwoFactorChannel = ""
	TwoFactorSMS   TwoFactorChannel = "sms"
	TwoFactorEmail TwoFactorChannel = "email"
)

// ResourceOwner is an end user. Created at registration or first external
// login; looked up by subject or by credentials.
type ResourceOwner struct {
	Subject      string
	PasswordHash string

	// Claims maps standard OIDC claim names to values for this owner.
	Claims map[string]string

	TwoFactor TwoFactorChannel

	// IsLocal is false for accounts provisioned through an external IdP.
	IsLocal   bool
	CreatedAt time.Time
}

// Consent is a persisted grant of scopes and claims by a resource owner to a
// client. Read-only once created.
type Consent struct {
	ID            string
	Subject       string
	ClientID      string
	GrantedScopes []string
	GrantedClaims []string
	GrantedAt     time.Time
}

// ConfirmationCode is a one-time second-factor code dispatched to the owner.
type ConfirmationCode struct {
	Code      string
	Subject   string
	CreatedAt time.Time
	ExpiresIn time.Duration
}

// Valid reports whether the code may still be redeemed at the given instant.
func (c *ConfirmationCode) Valid(now time.Time) bool {
	return now.Before(c.CreatedAt.Add(c.ExpiresIn))
}
