package interactive

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"

	"idserver/internal/oauth"
)

// sessionVersion is the first byte of every sealed session token. It differs
// from the request code version so one can never be replayed as the other.
const sessionVersion = 0x02

// defaultSessionTTL bounds an authenticated session when no validity is
// configured.
const defaultSessionTTL = time.Hour

// ErrSessionExtraction covers every way a session token can fail to open:
// absence, tampering, wrong key, version mismatch or expiry.
var ErrSessionExtraction = oauth.NewError(oauth.ErrLoginRequired, "the session cannot be extracted from the cookie")

// sessionEnvelope is the plaintext sealed into a session token.
type sessionEnvelope struct {
	Subject  string   `json:"sub"`
	AMR      []string `json:"amr,omitempty"`
	IssuedAt int64    `json:"iat"`
}

// WithSessionTTL overrides how long sealed sessions stay valid.
func (c *Codec) WithSessionTTL(ttl time.Duration) *Codec {
	c.sessionTTL = ttl
	return c
}

// SealSession encrypts an authenticated subject and its methods into a session
// token the browser carries between authorization requests.
func (c *Codec) SealSession(subject string, amr []string) (string, error) {
	plaintext, err := json.Marshal(sessionEnvelope{
		Subject:  subject,
		AMR:      amr,
		IssuedAt: c.now().UTC().Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal session envelope: %w", err)
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate session token nonce: %w", err)
	}

	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, sessionVersion)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, []byte{sessionVersion})
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// OpenSession decrypts and validates a session token, returning the subject
// and the authentication methods recorded at login.
func (c *Codec) OpenSession(token string) (string, []string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", nil, ErrSessionExtraction
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", nil, err
	}
	if len(raw) < 1+aead.NonceSize()+aead.Overhead() {
		return "", nil, ErrSessionExtraction
	}
	if raw[0] != sessionVersion {
		return "", nil, ErrSessionExtraction
	}
	nonce := raw[1 : 1+aead.NonceSize()]
	ciphertext := raw[1+aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte{sessionVersion})
	if err != nil {
		return "", nil, ErrSessionExtraction
	}

	var sealed sessionEnvelope
	if err := json.Unmarshal(plaintext, &sealed); err != nil {
		return "", nil, ErrSessionExtraction
	}
	if sealed.Subject == "" {
		return "", nil, ErrSessionExtraction
	}
	if c.now().UTC().After(time.Unix(sealed.IssuedAt, 0).Add(c.sessionTTL)) {
		return "", nil, ErrSessionExtraction
	}
	return sealed.Subject, sealed.AMR, nil
}
