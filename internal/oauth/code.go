package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"time"
)

// AuthorizationCode is a one-time code binding an authorization decision to a
// later token exchange. Consumed exactly once, then deleted.
type AuthorizationCode struct {
	Code        string
	ClientID    string
	RedirectURI string
	Scope       string
	CreatedAt   time.Time

	IDTokenPayload  Payload
	UserInfoPayload Payload

	// PKCE binding, captured only for clients that require it.
	CodeChallenge       string
	CodeChallengeMethod string
}

// ValidateForExchange enforces the token-endpoint checks on a looked-up code:
// issued to the authenticated client, exact redirect URI match, and inside the
// configured validity window.
func (c *AuthorizationCode) ValidateForExchange(clientID, redirectURI string, validity time.Duration, now time.Time) error {
	if c.ClientID != clientID {
		return errors.New("authorization code was issued to another client")
	}
	if c.RedirectURI != redirectURI {
		return errors.New("redirect_uri does not match the one used at authorization")
	}
	if now.After(c.CreatedAt.Add(validity)) {
		return errors.New("authorization code expired")
	}
	return nil
}

// VerifyPKCE checks a presented code_verifier against the stored challenge.
// Codes issued without a challenge accept any verifier; codes issued with one
// require it.
func (c *AuthorizationCode) VerifyPKCE(verifier string) bool {
	if c.CodeChallenge == "" {
		return true
	}
	if verifier == "" {
		return false
	}
	switch c.CodeChallengeMethod {
	case "S256":
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(computed), []byte(c.CodeChallenge)) == 1
	case "plain", "":
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(c.CodeChallenge)) == 1
	default:
		return false
	}
}
