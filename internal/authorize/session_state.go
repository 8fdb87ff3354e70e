package authorize

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
)

// ComputeSessionState derives the OIDC session-management session_state value:
// base64url(SHA-256(client_id + origin + session_id + salt)) + "." + salt.
// The relying party's iframe recomputes the hash with the salt it receives.
func ComputeSessionState(clientID, origin, sessionID string) (string, error) {
	salt, err := newSalt()
	if err != nil {
		return "", err
	}
	return sessionStateWithSalt(clientID, origin, sessionID, salt), nil
}

func sessionStateWithSalt(clientID, origin, sessionID, salt string) string {
	sum := sha256.Sum256([]byte(clientID + origin + sessionID + salt))
	return base64.RawURLEncoding.EncodeToString(sum[:]) + "." + salt
}

// OriginOf reduces a redirect URI to its origin (scheme://host[:port]) as the
// session-management iframe sees it.
func OriginOf(redirectURI string) string {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func newSalt() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session state salt: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
