package oauth

import (
	"sort"
	"strings"
)

// GrantType enumerates the token endpoint grant types the server supports.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantPassword          GrantType = "password"
	GrantRefreshToken      GrantType = "refresh_token"
	GrantClientCredentials GrantType = "client_credentials"
)

// ResponseType enumerates the authorization endpoint response types.
type ResponseType string

const (
	ResponseTypeCode    ResponseType = "code"
	ResponseTypeToken   ResponseType = "token"
	ResponseTypeIDToken ResponseType = "id_token"
)

// ResponseMode controls how authorization response parameters are delivered.
type ResponseMode string

const (
	ResponseModeNone     ResponseMode = ""
	ResponseModeQuery    ResponseMode = "query"
	ResponseModeFragment ResponseMode = "fragment"
	ResponseModeFormPost ResponseMode = "form_post"
)

// Prompt values from OIDC core.
const (
	PromptNone    = "none"
	PromptLogin   = "login"
	PromptConsent = "consent"
)

// ClaimRequest is one entry of the structured `claims` request parameter.
type ClaimRequest struct {
	Name      string
	Essential bool
	Value     string
	Values    []string
}

// ClaimsParameter carries the per-destination claim requests of an
// authorization request.
type ClaimsParameter struct {
	IDToken  []ClaimRequest
	UserInfo []ClaimRequest
}

// HasIDTokenClaims reports whether individual id-token claims were requested.
func (c *ClaimsParameter) HasIDTokenClaims() bool {
	return c != nil && len(c.IDToken) > 0
}

// HasUserInfoClaims reports whether individual userinfo claims were requested.
func (c *ClaimsParameter) HasUserInfoClaims() bool {
	return c != nil && len(c.UserInfo) > 0
}

// AuthorizationParameter is one request's decoded authorization parameters.
// Transient; may be sealed into an opaque request code to survive the
// login/consent redirect round trip.
type AuthorizationParameter struct {
	ClientID            string           `json:"client_id"`
	Scope               string           `json:"scope"`
	ResponseType        string           `json:"response_type"`
	RedirectURI         string           `json:"redirect_uri"`
	State               string           `json:"state"`
	Nonce               string           `json:"nonce"`
	Prompt              string           `json:"prompt,omitempty"`
	ResponseMode        ResponseMode     `json:"response_mode,omitempty"`
	Claims              *ClaimsParameter `json:"claims,omitempty"`
	CodeChallenge       string           `json:"code_challenge,omitempty"`
	CodeChallengeMethod string           `json:"code_challenge_method,omitempty"`
	SessionID           string           `json:"session_id,omitempty"`
	ProcessID           string           `json:"process_id,omitempty"`
}

// ResponseTypes parses the space-separated response_type value into the known
// set, ignoring unknown members.
func (p *AuthorizationParameter) ResponseTypes() []ResponseType {
	return ParseResponseTypes(p.ResponseType)
}

// Scopes parses the space-separated scope value.
func (p *AuthorizationParameter) Scopes() []string {
	return ParseScopes(p.Scope)
}

// ParseResponseTypes splits a response_type parameter into its recognised members.
func ParseResponseTypes(raw string) []ResponseType {
	var out []ResponseType
	for _, part := range strings.Fields(raw) {
		switch ResponseType(part) {
		case ResponseTypeCode, ResponseTypeToken, ResponseTypeIDToken:
			out = append(out, ResponseType(part))
		}
	}
	return out
}

// ContainsResponseType reports membership in a parsed response-type set.
func ContainsResponseType(set []ResponseType, rt ResponseType) bool {
	for _, r := range set {
		if r == rt {
			return true
		}
	}
	return false
}

// ParseScopes splits a space-separated scope string, dropping duplicates while
// preserving first-seen order.
func ParseScopes(raw string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range strings.Fields(raw) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// JoinScopes renders a scope list back into the wire format.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

// IntersectScopes returns requested ∩ allowed, sorted for a stable wire value.
func IntersectScopes(requested, allowed []string) []string {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, s := range allowed {
		allowedSet[s] = struct{}{}
	}
	var out []string
	for _, s := range requested {
		if _, ok := allowedSet[s]; ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// ScopesWithin reports whether every requested scope is in the allowed set.
func ScopesWithin(requested, allowed []string) bool {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, s := range allowed {
		allowedSet[s] = struct{}{}
	}
	for _, s := range requested {
		if _, ok := allowedSet[s]; !ok {
			return false
		}
	}
	return true
}
