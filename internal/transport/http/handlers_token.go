package httptransport

import (
	"net/http"

	"idserver/internal/clientauth"
	"idserver/internal/oauth"
	"idserver/internal/token"
)

// TokenHandler is the OAuth token endpoint.
type TokenHandler struct {
	actions *token.Actions
}

func NewTokenHandler(actions *token.Actions) *TokenHandler {
	return &TokenHandler{actions: actions}
}

// tokenResponse is the RFC 6749 token endpoint success shape.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

func (h *TokenHandler) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, oauth.NewError(oauth.ErrInvalidRequest, "malformed form body"))
		return
	}

	granted, err := h.actions.Execute(r.Context(), decodeTokenRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  granted.AccessToken,
		TokenType:    "Bearer",
		ExpiresIn:    granted.ExpiresIn,
		RefreshToken: granted.RefreshToken,
		Scope:        granted.Scope,
		IDToken:      granted.IDToken,
	})
}

// decodeTokenRequest lifts the form body and Authorization header into the
// grant request, leaving credential resolution to the client authenticator.
func decodeTokenRequest(r *http.Request) *token.Request {
	instruction := clientauth.Instruction{
		ClientIDFromBody:     r.PostFormValue("client_id"),
		ClientSecretFromBody: r.PostFormValue("client_secret"),
		ClientAssertion:      r.PostFormValue("client_assertion"),
		ClientAssertionType:  r.PostFormValue("client_assertion_type"),
	}
	if id, secret, ok := r.BasicAuth(); ok {
		instruction.ClientIDFromHeader = id
		instruction.ClientSecretFromHeader = secret
	}

	return &token.Request{
		GrantType:    r.PostFormValue("grant_type"),
		Username:     r.PostFormValue("username"),
		Password:     r.PostFormValue("password"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
		Scope:        r.PostFormValue("scope"),
		Auth:         instruction,
	}
}
