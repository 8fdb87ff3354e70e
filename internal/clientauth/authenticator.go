package clientauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"idserver/internal/oauth"
)

// AssertionTypeJWTBearer is the only client_assertion_type the server accepts.
const AssertionTypeJWTBearer = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// Instruction carries the credentials a token request presented, already
// lifted out of the transport (Authorization header vs body).
type Instruction struct {
	ClientIDFromHeader     string
	ClientSecretFromHeader string
	ClientIDFromBody       string
	ClientSecretFromBody   string
	ClientAssertion        string
	ClientAssertionType    string
}

// ClaimedClientID resolves the claimed client identity, preferring the header.
// It is the identity before verification; never trust it on its own.
func (i Instruction) ClaimedClientID() string {
	if i.ClientIDFromHeader != "" {
		return i.ClientIDFromHeader
	}
	return i.ClientIDFromBody
}

// ClientRepository is the lookup contract the authenticator consumes.
type ClientRepository interface {
	GetByID(ctx context.Context, id string) (*oauth.Client, error)
}

// errInvalidClient is the single failure every path collapses into, so a
// caller can never learn which part of the credentials mismatched.
var errInvalidClient = oauth.NewError(oauth.ErrInvalidClient, "client authentication failed")

type methodFunc func(a *Authenticator, client *oauth.Client, instruction Instruction) error

// methods dispatches on the client's registered token endpoint auth method.
var methods = map[oauth.TokenEndpointAuthMethod]methodFunc{
	oauth.AuthMethodSecretBasic: (*Authenticator).authenticateSecretBasic,
	oauth.AuthMethodSecretPost:  (*Authenticator).authenticateSecretPost,
	oauth.AuthMethodSecretJWT:   (*Authenticator).authenticateSecretJWT,
	oauth.AuthMethodPrivateKey:  (*Authenticator).authenticatePrivateKeyJWT,
	oauth.AuthMethodNone:        (*Authenticator).authenticateNone,
}

// Authenticator validates client credentials for the token endpoint.
type Authenticator struct {
	clients       ClientRepository
	tokenEndpoint string
}

// New constructs an authenticator. tokenEndpoint is the expected audience of
// client assertion JWTs.
func New(clients ClientRepository, tokenEndpoint string) *Authenticator {
	return &Authenticator{clients: clients, tokenEndpoint: tokenEndpoint}
}

// Authenticate resolves and verifies the client behind a token request.
// Every failure surfaces as the opaque invalid_client protocol error.
func (a *Authenticator) Authenticate(ctx context.Context, instruction Instruction) (*oauth.Client, error) {
	clientID := instruction.ClaimedClientID()
	if clientID == "" && instruction.ClientAssertion != "" {
		// With *_jwt methods the identity rides inside the assertion.
		var err error
		clientID, err = assertionIssuer(instruction.ClientAssertion)
		if err != nil {
			return nil, errInvalidClient
		}
	}
	if clientID == "" {
		return nil, errInvalidClient
	}

	client, err := a.clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, errInvalidClient
	}

	method := client.TokenEndpointAuth
	if method == "" {
		method = oauth.AuthMethodSecretBasic
	}
	authenticate, ok := methods[method]
	if !ok {
		return nil, errInvalidClient
	}
	if err := authenticate(a, client, instruction); err != nil {
		return nil, errInvalidClient
	}
	return client, nil
}

func (a *Authenticator) authenticateSecretBasic(client *oauth.Client, instruction Instruction) error {
	return compareSecret(client.Secret, instruction.ClientSecretFromHeader)
}

func (a *Authenticator) authenticateSecretPost(client *oauth.Client, instruction Instruction) error {
	return compareSecret(client.Secret, instruction.ClientSecretFromBody)
}

func (a *Authenticator) authenticateSecretJWT(client *oauth.Client, instruction Instruction) error {
	return a.verifyAssertion(client, instruction, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return []byte(client.Secret), nil
	})
}

func (a *Authenticator) authenticatePrivateKeyJWT(client *oauth.Client, instruction Instruction) error {
	return a.verifyAssertion(client, instruction, func(t *jwt.Token) (any, error) {
		switch t.Method.(type) {
		case *jwt.SigningMethodRSA, *jwt.SigningMethodRSAPSS, *jwt.SigningMethodECDSA:
		default:
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		kid, _ := t.Header["kid"].(string)
		return publicKeyFromSet(client.JSONWebKeys, kid)
	})
}

func (a *Authenticator) authenticateNone(client *oauth.Client, instruction Instruction) error {
	// Public client: presenting a secret for a secretless registration is
	// itself a mismatch.
	if instruction.ClientSecretFromHeader != "" || instruction.ClientSecretFromBody != "" {
		return errors.New("unexpected client secret")
	}
	return nil
}

func (a *Authenticator) verifyAssertion(client *oauth.Client, instruction Instruction, keyfunc jwt.Keyfunc) error {
	if instruction.ClientAssertionType != AssertionTypeJWTBearer || instruction.ClientAssertion == "" {
		return errors.New("missing client assertion")
	}
	_, err := jwt.Parse(instruction.ClientAssertion, keyfunc,
		jwt.WithAudience(a.tokenEndpoint),
		jwt.WithIssuer(client.ID),
		jwt.WithSubject(client.ID),
		jwt.WithExpirationRequired(),
	)
	return err
}

func compareSecret(stored, presented string) error {
	if stored == "" || presented == "" {
		return errors.New("missing client secret")
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) != 1 {
		return errors.New("client secret mismatch")
	}
	return nil
}

// assertionIssuer reads the iss claim without verifying the signature; the
// issuer only selects which client record to verify against.
func assertionIssuer(assertion string) (string, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(assertion, claims); err != nil {
		return "", err
	}
	iss, err := claims.GetIssuer()
	if err != nil || iss == "" {
		return "", errors.New("assertion has no issuer")
	}
	return iss, nil
}
