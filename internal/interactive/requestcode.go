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

// envelopeVersion is the first byte of every sealed request code. Bump it when
// the envelope layout changes so stale cookies fail cleanly instead of
// decrypting into garbage.
const envelopeVersion = 0x01

// requestCodeTTL bounds how long a sealed request survives the login and
// external-IdP round trips.
const requestCodeTTL = 5 * time.Minute

// ErrRequestExtraction is returned whenever a request code cannot be opened:
// wrong key, tampering, truncation, version mismatch or expiry. One opaque
// error for all of them.
var ErrRequestExtraction = oauth.NewError(oauth.ErrInvalidRequest, "the request cannot be extracted from the cookie")

// envelope is the plaintext sealed into a request code. Subject is empty until
// primary authentication succeeds; its presence is what entitles the holder to
// the post-login steps.
type envelope struct {
	Param    *oauth.AuthorizationParameter `json:"param"`
	Subject  string                        `json:"sub,omitempty"`
	AMR      []string                      `json:"amr,omitempty"`
	IssuedAt int64                         `json:"iat"`
}

// Codec seals authorization parameters into opaque, tamper-proof request codes
// that ride through login forms, cookies and external redirects. The same key
// also seals authenticated session tokens, under a different envelope version.
type Codec struct {
	key        []byte
	ttl        time.Duration
	sessionTTL time.Duration
	now        func() time.Time
}

// NewCodec builds a request code codec. The key must be exactly 32 bytes.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("request code key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &Codec{key: key, ttl: requestCodeTTL, sessionTTL: defaultSessionTTL, now: time.Now}, nil
}

// WithClock overrides the clock, for tests.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	c.now = now
	return c
}

// Seal encrypts an envelope into a request code string.
func (c *Codec) Seal(param *oauth.AuthorizationParameter, subject string, amr []string) (string, error) {
	plaintext, err := json.Marshal(envelope{
		Param:    param,
		Subject:  subject,
		AMR:      amr,
		IssuedAt: c.now().UTC().Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal request envelope: %w", err)
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate request code nonce: %w", err)
	}

	out := make([]byte, 0, 1+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, envelopeVersion)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, []byte{envelopeVersion})
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Open decrypts and validates a request code. Expired codes fail the same way
// tampered ones do.
func (c *Codec) Open(code string) (*envelope, error) {
	raw, err := base64.RawURLEncoding.DecodeString(code)
	if err != nil {
		return nil, ErrRequestExtraction
	}

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	if len(raw) < 1+aead.NonceSize()+aead.Overhead() {
		return nil, ErrRequestExtraction
	}
	if raw[0] != envelopeVersion {
		return nil, ErrRequestExtraction
	}
	nonce := raw[1 : 1+aead.NonceSize()]
	ciphertext := raw[1+aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte{envelopeVersion})
	if err != nil {
		return nil, ErrRequestExtraction
	}

	var sealed envelope
	if err := json.Unmarshal(plaintext, &sealed); err != nil {
		return nil, ErrRequestExtraction
	}
	if sealed.Param == nil {
		return nil, ErrRequestExtraction
	}
	if c.now().UTC().After(time.Unix(sealed.IssuedAt, 0).Add(c.ttl)) {
		return nil, ErrRequestExtraction
	}
	return &sealed, nil
}
