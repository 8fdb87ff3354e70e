package token

import (
	"context"
	"errors"

	"idserver/internal/oauth"
	"idserver/pkg/platform/audit"
	"idserver/pkg/platform/sentinel"
)

// byAuthorizationCode exchanges a one-time authorization code for tokens. The
// code is consumed before any validation so that a failed exchange still burns
// it.
func (a *Actions) byAuthorizationCode(ctx context.Context, req *Request) (*oauth.GrantedToken, error) {
	if req.Code == "" {
		return nil, oauth.NewError(oauth.ErrInvalidRequest, "code is required")
	}
	if req.RedirectURI == "" {
		return nil, oauth.NewError(oauth.ErrInvalidRequest, "redirect_uri is required")
	}

	client, err := a.authenticateClient(ctx, req)
	if err != nil {
		return nil, err
	}
	if !client.HasGrantType(oauth.GrantAuthorizationCode) {
		return nil, oauth.NewError(oauth.ErrUnauthorizedClient, "client is not allowed to use the authorization_code grant")
	}
	if !client.HasResponseType(oauth.ResponseTypeCode) {
		return nil, oauth.NewError(oauth.ErrUnauthorizedClient, "client is not registered for the code response type")
	}

	code, err := a.codes.Consume(ctx, req.Code)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			a.emit(ctx, audit.Event{
				ClientID: client.ID,
				Action:   string(audit.EventAuthorizationCodeExchanged),
				Reason:   "unknown or already used code",
			})
			return nil, oauth.NewError(oauth.ErrInvalidGrant, "authorization code is not correct")
		}
		return nil, oauth.NewError(oauth.ErrServerError, "authorization code lookup failed")
	}

	if err := code.ValidateForExchange(client.ID, req.RedirectURI, a.cfg.AuthorizationCodeValidityPeriod(), a.now().UTC()); err != nil {
		return nil, oauth.NewError(oauth.ErrInvalidGrant, err.Error())
	}
	if !client.HasRedirectURI(req.RedirectURI) {
		return nil, oauth.NewError(oauth.ErrInvalidGrant, "redirect_uri is not registered for this client")
	}
	if client.RequirePKCE && code.CodeChallenge == "" {
		return nil, oauth.NewError(oauth.ErrInvalidGrant, "authorization code was issued without a PKCE challenge")
	}
	if !code.VerifyPKCE(req.CodeVerifier) {
		return nil, oauth.NewError(oauth.ErrInvalidGrant, "code_verifier does not match the challenge")
	}

	idTokenPayload := code.IDTokenPayload
	if idTokenPayload != nil {
		// The snapshot was stamped when the code was issued; the token the
		// client receives must be fresh.
		idTokenPayload = idTokenPayload.Clone()
		a.builder.RefreshTimestamps(idTokenPayload, a.now().UTC())
	}

	token, err := a.mintOrReuse(ctx, client, code.Scope, code.UserInfoPayload, idTokenPayload, oauth.GrantAuthorizationCode)
	if err != nil {
		return nil, err
	}

	a.metrics.CodesExchanged.Inc()
	a.emit(ctx, audit.Event{
		Subject:  code.UserInfoPayload.Subject(),
		ClientID: client.ID,
		Action:   string(audit.EventAuthorizationCodeExchanged),
		Scope:    code.Scope,
	})
	return token, nil
}
