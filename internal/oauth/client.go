package oauth

import (
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// TokenEndpointAuthMethod names how a client proves its identity at the token
// endpoint. Values follow OIDC core registration metadata.
type TokenEndpointAuthMethod string

const (
	AuthMethodSecretBasic TokenEndpointAuthMethod = "client_secret_basic"
	AuthMethodSecretPost  TokenEndpointAuthMethod = "client_secret_post"
	AuthMethodSecretJWT   TokenEndpointAuthMethod = "client_secret_jwt"
	AuthMethodPrivateKey  TokenEndpointAuthMethod = "private_key_jwt"
	AuthMethodNone        TokenEndpointAuthMethod = "none"
)

// Client is a registered relying party. Immutable during a request; looked up
// by id through the client repository.
type Client struct {
	ID            string
	Secret        string
	RedirectURIs  []string
	AllowedScopes []string
	GrantTypes    []GrantType
	ResponseTypes []ResponseType

	TokenEndpointAuth TokenEndpointAuthMethod

	// JOSE preferences. Empty signing alg means the server default (RS256).
	// Encryption is opt-in; a set alg with an empty enc defaults to A128CBC-HS256.
	IDTokenSignedResponseAlg    string
	IDTokenEncryptedResponseAlg string
	IDTokenEncryptedResponseEnc string
	UserInfoSignedResponseAlg   string

	// JSONWebKeys holds the client's registered keys, used to verify
	// private_key_jwt assertions and to encrypt tokens addressed to the client.
	JSONWebKeys jwk.Set

	RequirePKCE bool
}

// HasGrantType reports whether the client is registered for the grant type.
func (c *Client) HasGrantType(gt GrantType) bool {
	for _, g := range c.GrantTypes {
		if g == gt {
			return true
		}
	}
	return false
}

// HasResponseType reports whether the client is registered for the response type.
func (c *Client) HasResponseType(rt ResponseType) bool {
	for _, r := range c.ResponseTypes {
		if r == rt {
			return true
		}
	}
	return false
}

// HasRedirectURI checks the exact-match rule for registered redirect URIs.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// IDTokenAlg returns the signing algorithm for id tokens, defaulting to RS256.
func (c *Client) IDTokenAlg() string {
	if c.IDTokenSignedResponseAlg == "" {
		return "RS256"
	}
	return c.IDTokenSignedResponseAlg
}

// IDTokenEnc returns the content-encryption algorithm when id-token encryption
// is configured, applying the A128CBC-HS256 default. Empty when encryption is off.
func (c *Client) IDTokenEnc() string {
	if c.IDTokenEncryptedResponseAlg == "" {
		return ""
	}
	if c.IDTokenEncryptedResponseEnc == "" {
		return "A128CBC-HS256"
	}
	return c.IDTokenEncryptedResponseEnc
}
