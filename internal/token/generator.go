package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"idserver/internal/oauth"
)

// Configuration is the slice of server configuration token issuance needs.
type Configuration interface {
	IssuerName() string
	TokenValidityPeriod() time.Duration
	AuthorizationCodeValidityPeriod() time.Duration
}

// AccessTokenClaims is the claim set carried by issued access tokens.
type AccessTokenClaims struct {
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
	jwt.RegisteredClaims
}

// Generator mints granted tokens: a signed JWT access token plus an opaque
// refresh token, stamped with the configured validity.
type Generator struct {
	signingKey []byte
	cfg        Configuration
	now        func() time.Time
}

// NewGenerator constructs a token generator. The signing key is the server's
// symmetric access-token key, distinct from the id-token key set.
func NewGenerator(signingKey []byte, cfg Configuration) *Generator {
	return &Generator{signingKey: signingKey, cfg: cfg, now: time.Now}
}

// WithClock overrides the clock, for tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate mints a new granted token for the client and scope, embedding the
// payload snapshots used later for idempotent reuse.
func (g *Generator) Generate(client *oauth.Client, scope string, userInfoPayload, idTokenPayload oauth.Payload) (*oauth.GrantedToken, error) {
	now := g.now().UTC()
	validity := g.cfg.TokenValidityPeriod()

	subject := client.ID
	if idTokenPayload != nil && idTokenPayload.Subject() != "" {
		subject = idTokenPayload.Subject()
	} else if userInfoPayload != nil && userInfoPayload.Subject() != "" {
		subject = userInfoPayload.Subject()
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessTokenClaims{
		ClientID: client.ID,
		Scope:    scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.cfg.IssuerName(),
			Subject:   subject,
			Audience:  []string{client.ID},
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}).SignedString(g.signingKey)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	// A refresh token only goes out to clients registered for the grant that
	// can redeem it.
	var refreshToken string
	if client.HasGrantType(oauth.GrantRefreshToken) {
		refreshToken, err = newRefreshToken()
		if err != nil {
			return nil, err
		}
	}

	return &oauth.GrantedToken{
		AccessToken:     accessToken,
		RefreshToken:    refreshToken,
		Scope:           scope,
		ClientID:        client.ID,
		ExpiresIn:       int(validity.Seconds()),
		CreatedAt:       now,
		IDTokenPayload:  idTokenPayload,
		UserInfoPayload: userInfoPayload,
	}, nil
}

// ValidateAccessToken parses and verifies an access token minted by Generate.
func (g *Generator) ValidateAccessToken(tokenString string) (*AccessTokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return g.signingKey, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*AccessTokenClaims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
