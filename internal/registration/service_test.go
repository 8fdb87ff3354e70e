package registration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idserver/internal/oauth"
	clientstore "idserver/internal/store/client"
)

func TestRegister_Defaults(t *testing.T) {
	store := clientstore.New()
	svc := NewService(store, nil)

	client, err := svc.Register(context.Background(), &Request{
		RedirectURIs: []string{"https://app.example.test/callback"},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, client.ID)
	assert.NotEmpty(t, client.Secret)
	assert.Equal(t, []oauth.GrantType{oauth.GrantAuthorizationCode}, client.GrantTypes)
	assert.Equal(t, []oauth.ResponseType{oauth.ResponseTypeCode}, client.ResponseTypes)
	assert.Equal(t, []string{"openid"}, client.AllowedScopes)
	assert.Equal(t, oauth.AuthMethodSecretBasic, client.TokenEndpointAuth)

	stored, err := store.GetByID(context.Background(), client.ID)
	require.NoError(t, err)
	assert.Equal(t, client, stored)
}

func TestRegister_PublicClientGetsNoSecret(t *testing.T) {
	svc := NewService(clientstore.New(), nil)

	client, err := svc.Register(context.Background(), &Request{
		RedirectURIs:            []string{"https://spa.example.test/callback"},
		TokenEndpointAuthMethod: string(oauth.AuthMethodNone),
	})
	require.NoError(t, err)
	assert.Empty(t, client.Secret)
}

func TestRegister_RequiresRedirectURI(t *testing.T) {
	svc := NewService(clientstore.New(), nil)

	_, err := svc.Register(context.Background(), &Request{})
	protocol, ok := oauth.AsProtocolError(err)
	require.True(t, ok)
	assert.Equal(t, oauth.ErrInvalidRedirectURI, protocol.Code)
}

func TestRegister_RejectsUnknownMetadata(t *testing.T) {
	svc := NewService(clientstore.New(), nil)
	base := Request{RedirectURIs: []string{"https://app.example.test/callback"}}

	badGrant := base
	badGrant.GrantTypes = []string{"implicit_v1"}
	_, err := svc.Register(context.Background(), &badGrant)
	protocol, ok := oauth.AsProtocolError(err)
	require.True(t, ok)
	assert.Equal(t, oauth.ErrInvalidClientMetadata, protocol.Code)

	badResponse := base
	badResponse.ResponseTypes = []string{"saml"}
	_, err = svc.Register(context.Background(), &badResponse)
	protocol, ok = oauth.AsProtocolError(err)
	require.True(t, ok)
	assert.Equal(t, oauth.ErrInvalidClientMetadata, protocol.Code)

	badAuth := base
	badAuth.TokenEndpointAuthMethod = "tls_client_auth"
	_, err = svc.Register(context.Background(), &badAuth)
	protocol, ok = oauth.AsProtocolError(err)
	require.True(t, ok)
	assert.Equal(t, oauth.ErrInvalidClientMetadata, protocol.Code)
}

func TestRegister_DistinctCredentials(t *testing.T) {
	svc := NewService(clientstore.New(), nil)
	req := &Request{RedirectURIs: []string{"https://app.example.test/callback"}}

	first, err := svc.Register(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Register(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, first.Secret, second.Secret)
}
