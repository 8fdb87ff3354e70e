package clientauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idserver/internal/oauth"
	clientstore "idserver/internal/store/client"
)

const tokenEndpoint = "https://auth.example.test/token"

func secretClient(method oauth.TokenEndpointAuthMethod) *oauth.Client {
	return &oauth.Client{
		ID:                "my-blog",
		Secret:            "blog-secret",
		TokenEndpointAuth: method,
	}
}

func assertionClaims(clientID string) jwt.MapClaims {
	return jwt.MapClaims{
		"iss": clientID,
		"sub": clientID,
		"aud": tokenEndpoint,
		"exp": time.Now().Add(time.Minute).Unix(),
	}
}

func TestAuthenticate_SecretBasic(t *testing.T) {
	a := New(clientstore.New(secretClient(oauth.AuthMethodSecretBasic)), tokenEndpoint)

	client, err := a.Authenticate(context.Background(), Instruction{
		ClientIDFromHeader:     "my-blog",
		ClientSecretFromHeader: "blog-secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "my-blog", client.ID)
}

func TestAuthenticate_SecretBasicRejectsBodySecret(t *testing.T) {
	// A basic-registered client must present the secret in the header.
	a := New(clientstore.New(secretClient(oauth.AuthMethodSecretBasic)), tokenEndpoint)

	_, err := a.Authenticate(context.Background(), Instruction{
		ClientIDFromBody:     "my-blog",
		ClientSecretFromBody: "blog-secret",
	})
	assert.ErrorIs(t, err, errInvalidClient)
}

func TestAuthenticate_SecretPost(t *testing.T) {
	a := New(clientstore.New(secretClient(oauth.AuthMethodSecretPost)), tokenEndpoint)

	client, err := a.Authenticate(context.Background(), Instruction{
		ClientIDFromBody:     "my-blog",
		ClientSecretFromBody: "blog-secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "my-blog", client.ID)
}

func TestAuthenticate_WrongSecret(t *testing.T) {
	a := New(clientstore.New(secretClient(oauth.AuthMethodSecretPost)), tokenEndpoint)

	_, err := a.Authenticate(context.Background(), Instruction{
		ClientIDFromBody:     "my-blog",
		ClientSecretFromBody: "not-the-secret",
	})
	assert.ErrorIs(t, err, errInvalidClient)
}

func TestAuthenticate_UnknownClient(t *testing.T) {
	a := New(clientstore.New(), tokenEndpoint)

	_, err := a.Authenticate(context.Background(), Instruction{
		ClientIDFromBody:     "nobody",
		ClientSecretFromBody: "whatever",
	})
	assert.ErrorIs(t, err, errInvalidClient)
}

func TestAuthenticate_NoCredentials(t *testing.T) {
	a := New(clientstore.New(secretClient(oauth.AuthMethodSecretBasic)), tokenEndpoint)

	_, err := a.Authenticate(context.Background(), Instruction{})
	assert.ErrorIs(t, err, errInvalidClient)
}

func TestAuthenticate_SecretJWT(t *testing.T) {
	a := New(clientstore.New(secretClient(oauth.AuthMethodSecretJWT)), tokenEndpoint)

	assertion, err := jwt.NewWithClaims(jwt.SigningMethodHS256, assertionClaims("my-blog")).
		SignedString([]byte("blog-secret"))
	require.NoError(t, err)

	client, err := a.Authenticate(context.Background(), Instruction{
		ClientAssertion:     assertion,
		ClientAssertionType: AssertionTypeJWTBearer,
	})
	require.NoError(t, err)
	assert.Equal(t, "my-blog", client.ID)
}

func TestAuthenticate_SecretJWTWrongKey(t *testing.T) {
	a := New(clientstore.New(secretClient(oauth.AuthMethodSecretJWT)), tokenEndpoint)

	assertion, err := jwt.NewWithClaims(jwt.SigningMethodHS256, assertionClaims("my-blog")).
		SignedString([]byte("some-other-secret"))
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), Instruction{
		ClientAssertion:     assertion,
		ClientAssertionType: AssertionTypeJWTBearer,
	})
	assert.ErrorIs(t, err, errInvalidClient)
}

func TestAuthenticate_SecretJWTWrongAudience(t *testing.T) {
	a := New(clientstore.New(secretClient(oauth.AuthMethodSecretJWT)), tokenEndpoint)

	claims := assertionClaims("my-blog")
	claims["aud"] = "https://somewhere-else.example.test/token"
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("blog-secret"))
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), Instruction{
		ClientAssertion:     assertion,
		ClientAssertionType: AssertionTypeJWTBearer,
	})
	assert.ErrorIs(t, err, errInvalidClient)
}

func TestAuthenticate_SecretJWTExpired(t *testing.T) {
	a := New(clientstore.New(secretClient(oauth.AuthMethodSecretJWT)), tokenEndpoint)

	claims := assertionClaims("my-blog")
	claims["exp"] = time.Now().Add(-time.Minute).Unix()
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("blog-secret"))
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), Instruction{
		ClientAssertion:     assertion,
		ClientAssertionType: AssertionTypeJWTBearer,
	})
	assert.ErrorIs(t, err, errInvalidClient)
}

func TestAuthenticate_SecretJWTMissingAssertionType(t *testing.T) {
	a := New(clientstore.New(secretClient(oauth.AuthMethodSecretJWT)), tokenEndpoint)

	assertion, err := jwt.NewWithClaims(jwt.SigningMethodHS256, assertionClaims("my-blog")).
		SignedString([]byte("blog-secret"))
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), Instruction{
		ClientIDFromBody: "my-blog",
		ClientAssertion:  assertion,
	})
	assert.ErrorIs(t, err, errInvalidClient)
}

func TestAuthenticate_PrivateKeyJWT(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	public, err := jwk.FromRaw(key.Public())
	require.NoError(t, err)
	require.NoError(t, public.Set(jwk.KeyIDKey, "client-key-1"))
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(public))

	registered := secretClient(oauth.AuthMethodPrivateKey)
	registered.Secret = ""
	registered.JSONWebKeys = set
	a := New(clientstore.New(registered), tokenEndpoint)

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, assertionClaims("my-blog"))
	tok.Header["kid"] = "client-key-1"
	assertion, err := tok.SignedString(key)
	require.NoError(t, err)

	client, err := a.Authenticate(context.Background(), Instruction{
		ClientAssertion:     assertion,
		ClientAssertionType: AssertionTypeJWTBearer,
	})
	require.NoError(t, err)
	assert.Equal(t, "my-blog", client.ID)
}

func TestAuthenticate_PrivateKeyJWTUnregisteredKey(t *testing.T) {
	registeredKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	public, err := jwk.FromRaw(registeredKey.Public())
	require.NoError(t, err)
	set := jwk.NewSet()
	require.NoError(t, set.AddKey(public))

	registered := secretClient(oauth.AuthMethodPrivateKey)
	registered.JSONWebKeys = set
	a := New(clientstore.New(registered), tokenEndpoint)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, assertionClaims("my-blog")).
		SignedString(otherKey)
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), Instruction{
		ClientAssertion:     assertion,
		ClientAssertionType: AssertionTypeJWTBearer,
	})
	assert.ErrorIs(t, err, errInvalidClient)
}

func TestAuthenticate_PrivateKeyJWTRejectsHMAC(t *testing.T) {
	// An HMAC assertion against a private_key_jwt registration would let the
	// public key double as a shared secret.
	registered := secretClient(oauth.AuthMethodPrivateKey)
	a := New(clientstore.New(registered), tokenEndpoint)

	assertion, err := jwt.NewWithClaims(jwt.SigningMethodHS256, assertionClaims("my-blog")).
		SignedString([]byte("blog-secret"))
	require.NoError(t, err)

	_, err = a.Authenticate(context.Background(), Instruction{
		ClientAssertion:     assertion,
		ClientAssertionType: AssertionTypeJWTBearer,
	})
	assert.ErrorIs(t, err, errInvalidClient)
}

func TestAuthenticate_None(t *testing.T) {
	public := &oauth.Client{ID: "spa-app", TokenEndpointAuth: oauth.AuthMethodNone}
	a := New(clientstore.New(public), tokenEndpoint)

	client, err := a.Authenticate(context.Background(), Instruction{ClientIDFromBody: "spa-app"})
	require.NoError(t, err)
	assert.Equal(t, "spa-app", client.ID)
}

func TestAuthenticate_NoneRejectsSecret(t *testing.T) {
	public := &oauth.Client{ID: "spa-app", TokenEndpointAuth: oauth.AuthMethodNone}
	a := New(clientstore.New(public), tokenEndpoint)

	_, err := a.Authenticate(context.Background(), Instruction{
		ClientIDFromBody:     "spa-app",
		ClientSecretFromBody: "should-not-be-here",
	})
	assert.ErrorIs(t, err, errInvalidClient)
}

func TestAuthenticate_DefaultsToSecretBasic(t *testing.T) {
	unregistered := &oauth.Client{ID: "legacy", Secret: "legacy-secret"}
	a := New(clientstore.New(unregistered), tokenEndpoint)

	client, err := a.Authenticate(context.Background(), Instruction{
		ClientIDFromHeader:     "legacy",
		ClientSecretFromHeader: "legacy-secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "legacy", client.ID)
}

func TestClaimedClientID_PrefersHeader(t *testing.T) {
	i := Instruction{ClientIDFromHeader: "from-header", ClientIDFromBody: "from-body"}
	assert.Equal(t, "from-header", i.ClaimedClientID())
}
