package token

import (
	"context"
	"errors"

	"idserver/internal/idtoken"
	"idserver/internal/oauth"
	"idserver/pkg/platform/audit"
	"idserver/pkg/platform/sentinel"
)

// byOwnerCredentials implements the resource owner password grant: the client
// forwards the owner's username and password and receives tokens directly,
// with no interactive step.
func (a *Actions) byOwnerCredentials(ctx context.Context, req *Request) (*oauth.GrantedToken, error) {
	if req.Username == "" || req.Password == "" {
		return nil, oauth.NewError(oauth.ErrInvalidRequest, "username and password are required")
	}
	if req.Scope == "" {
		return nil, oauth.NewError(oauth.ErrInvalidRequest, "scope is required")
	}

	client, err := a.authenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}
	if !client.HasGrantType(oauth.GrantPassword) {
		return nil, oauth.NewError(oauth.ErrUnauthorizedClient, "client is not allowed to use the password grant")
	}

	scopes := oauth.ParseScopes(req.Scope)
	if !oauth.ScopesWithin(scopes, client.AllowedScopes) {
		return nil, oauth.NewError(oauth.ErrInvalidScope, "requested scope exceeds the client registration")
	}

	owner, amr, err := a.owners.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		a.metrics.OwnerAuthFailures.Inc()
		a.emit(ctx, audit.Event{
			Subject:  req.Username,
			ClientID: client.ID,
			Action:   string(audit.EventOwnerAuthFailed),
			Reason:   "password grant credentials rejected",
		})
		return nil, oauth.NewError(oauth.ErrInvalidGrant, "resource owner credentials are not correct")
	}

	principal := &idtoken.Principal{Subject: owner.Subject, Claims: owner.Claims, AMR: amr}
	param := &oauth.AuthorizationParameter{ClientID: client.ID, Scope: oauth.JoinScopes(scopes)}

	now := a.now().UTC()
	userInfoPayload := a.builder.UserInfoPayload(principal, param)
	var idTokenPayload oauth.Payload
	if openidRequested(param.Scope) {
		idTokenPayload = a.builder.IDTokenPayload(principal, param, now)
	}

	return a.mintOrReuse(ctx, client, param.Scope, userInfoPayload, idTokenPayload, oauth.GrantPassword)
}

// mintOrReuse returns an existing unexpired token for the same (scope, client,
// payloads) tuple, or mints, signs and persists a fresh one.
func (a *Actions) mintOrReuse(ctx context.Context, client *oauth.Client, scope string, userInfoPayload, idTokenPayload oauth.Payload, grant oauth.GrantType) (*oauth.GrantedToken, error) {
	now := a.now().UTC()

	existing, err := a.tokens.GetToken(ctx, scope, client.ID, idTokenPayload, userInfoPayload, now)
	if err == nil {
		a.metrics.TokensReused.Inc()
		a.emit(ctx, audit.Event{
			Subject:  userInfoPayload.Subject(),
			ClientID: client.ID,
			Action:   string(audit.EventTokenReused),
			Scope:    scope,
		})
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, oauth.NewError(oauth.ErrServerError, "granted token lookup failed")
	}

	token, err := a.generator.Generate(client, scope, userInfoPayload, idTokenPayload)
	if err != nil {
		return nil, oauth.NewError(oauth.ErrServerError, "token generation failed")
	}
	if idTokenPayload != nil {
		token.IDToken, err = a.engine.GenerateIDToken(client, idTokenPayload)
		if err != nil {
			return nil, oauth.NewError(oauth.ErrServerError, "id token signing failed")
		}
	}
	if err := a.tokens.AddToken(ctx, token); err != nil {
		return nil, oauth.NewError(oauth.ErrServerError, "granted token persistence failed")
	}

	a.metrics.TokensIssued.WithLabelValues(string(grant)).Inc()
	a.emit(ctx, audit.Event{
		Subject:  userInfoPayload.Subject(),
		ClientID: client.ID,
		Action:   string(audit.EventTokenIssued),
		Scope:    scope,
	})
	return token, nil
}
