package httptransport

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"idserver/internal/oauth"
)

// sessionCookieName identifies the browser session for OIDC session
// management. The cookie is readable from script so the session-management
// iframe can compare session_state values.
const sessionCookieName = "idserver.session"

// authCookieName carries the sealed authenticated session. Unlike the
// session-management cookie it is opaque to script.
const authCookieName = "idserver.auth"

func ensureSessionCookie(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

func authSessionToken(r *http.Request) string {
	cookie, err := r.Cookie(authCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func setAuthSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// wireClaimRequest is the JSON shape of one member of the OIDC claims
// request parameter.
type wireClaimRequest struct {
	Essential bool     `json:"essential"`
	Value     string   `json:"value"`
	Values    []string `json:"values"`
}

type wireClaims struct {
	UserInfo map[string]*wireClaimRequest `json:"userinfo"`
	IDToken  map[string]*wireClaimRequest `json:"id_token"`
}

// parseClaimsParameter decodes the OIDC claims request parameter. Malformed
// input is treated as absent rather than failing the request.
func parseClaimsParameter(raw string) *oauth.ClaimsParameter {
	if raw == "" {
		return nil
	}
	var wire wireClaims
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil
	}
	if len(wire.UserInfo) == 0 && len(wire.IDToken) == 0 {
		return nil
	}
	return &oauth.ClaimsParameter{
		UserInfo: toClaimRequests(wire.UserInfo),
		IDToken:  toClaimRequests(wire.IDToken),
	}
}

func toClaimRequests(wire map[string]*wireClaimRequest) []oauth.ClaimRequest {
	if len(wire) == 0 {
		return nil
	}
	out := make([]oauth.ClaimRequest, 0, len(wire))
	for name, req := range wire {
		cr := oauth.ClaimRequest{Name: name}
		if req != nil {
			cr.Essential = req.Essential
			cr.Value = req.Value
			cr.Values = req.Values
		}
		out = append(out, cr)
	}
	return out
}
