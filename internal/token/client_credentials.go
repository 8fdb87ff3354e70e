package token

import (
	"context"

	"idserver/internal/oauth"
)

// byClientCredentials issues a token for the client itself. No resource owner
// is involved, so no id token or userinfo payload is produced.
func (a *Actions) byClientCredentials(ctx context.Context, req *Request) (*oauth.GrantedToken, error) {
	client, err := a.authenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}
	if !client.HasGrantType(oauth.GrantClientCredentials) {
		return nil, oauth.NewError(oauth.ErrUnauthorizedClient, "client is not allowed to use the client_credentials grant")
	}

	scopes := client.AllowedScopes
	if req.Scope != "" {
		requested := oauth.ParseScopes(req.Scope)
		if !oauth.ScopesWithin(requested, client.AllowedScopes) {
			return nil, oauth.NewError(oauth.ErrInvalidScope, "requested scope exceeds the client registration")
		}
		scopes = requested
	}

	return a.mintOrReuse(ctx, client, oauth.JoinScopes(scopes), nil, nil, oauth.GrantClientCredentials)
}
