package token

import (
	"context"
	"errors"

	"idserver/internal/oauth"
	"idserver/pkg/platform/audit"
	"idserver/pkg/platform/sentinel"
)

// byRefreshToken rotates a refresh token: the presented token is retired and a
// fresh granted token with a new refresh token is minted for the same scope
// and identity.
func (a *Actions) byRefreshToken(ctx context.Context, req *Request) (*oauth.GrantedToken, error) {
	if req.RefreshToken == "" {
		return nil, oauth.NewError(oauth.ErrInvalidRequest, "refresh_token is required")
	}

	client, err := a.authenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}
	if !client.HasGrantType(oauth.GrantRefreshToken) {
		return nil, oauth.NewError(oauth.ErrUnauthorizedClient, "client is not allowed to use the refresh_token grant")
	}

	previous, err := a.tokens.GetByRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, oauth.NewError(oauth.ErrInvalidGrant, "refresh token is not correct")
		}
		return nil, oauth.NewError(oauth.ErrServerError, "refresh token lookup failed")
	}
	if previous.ClientID != client.ID {
		return nil, oauth.NewError(oauth.ErrInvalidGrant, "refresh token was issued to another client")
	}

	// Optional scope narrowing. A refresh can never widen the grant.
	scope := previous.Scope
	if req.Scope != "" {
		requested := oauth.ParseScopes(req.Scope)
		if !oauth.ScopesWithin(requested, oauth.ParseScopes(previous.Scope)) {
			return nil, oauth.NewError(oauth.ErrInvalidScope, "requested scope exceeds the original grant")
		}
		scope = oauth.JoinScopes(requested)
	}

	now := a.now().UTC()
	idTokenPayload := previous.IDTokenPayload
	if idTokenPayload != nil {
		idTokenPayload = idTokenPayload.Clone()
		a.builder.RefreshTimestamps(idTokenPayload, now)
	}

	token, err := a.generator.Generate(client, scope, previous.UserInfoPayload, idTokenPayload)
	if err != nil {
		return nil, oauth.NewError(oauth.ErrServerError, "token generation failed")
	}
	if idTokenPayload != nil {
		token.IDToken, err = a.engine.GenerateIDToken(client, idTokenPayload)
		if err != nil {
			return nil, oauth.NewError(oauth.ErrServerError, "id token signing failed")
		}
	}

	// Rotate: retire the old refresh token first so a crashed request cannot
	// leave two live refresh tokens for the same grant.
	if err := a.tokens.RemoveRefreshToken(ctx, req.RefreshToken); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, oauth.NewError(oauth.ErrServerError, "refresh token rotation failed")
	}
	if err := a.tokens.AddToken(ctx, token); err != nil {
		return nil, oauth.NewError(oauth.ErrServerError, "granted token persistence failed")
	}

	a.metrics.TokensIssued.WithLabelValues(string(oauth.GrantRefreshToken)).Inc()
	a.emit(ctx, audit.Event{
		Subject:  previous.UserInfoPayload.Subject(),
		ClientID: client.ID,
		Action:   string(audit.EventTokenRefreshed),
		Scope:    scope,
	})
	return token, nil
}
