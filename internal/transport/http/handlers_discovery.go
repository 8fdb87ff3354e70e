package httptransport

import (
	"context"
	"net/http"
	"strings"

	"idserver/internal/jose"
	"idserver/internal/oauth"
	"idserver/internal/platform/middleware"
)

// DiscoveryHandler serves the OIDC provider metadata and the public key set.
type DiscoveryHandler struct {
	issuer string
	engine *jose.Engine
}

func NewDiscoveryHandler(issuer string, engine *jose.Engine) *DiscoveryHandler {
	return &DiscoveryHandler{issuer: issuer, engine: engine}
}

// providerMetadata is the subset of OIDC discovery fields this server
// implements.
type providerMetadata struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	UserInfoEndpoint                 string   `json:"userinfo_endpoint"`
	RegistrationEndpoint             string   `json:"registration_endpoint"`
	JWKSURI                          string   `json:"jwks_uri"`
	ScopesSupported                  []string `json:"scopes_supported"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	ResponseModesSupported           []string `json:"response_modes_supported"`
	GrantTypesSupported              []string `json:"grant_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
	TokenEndpointAuthMethods         []string `json:"token_endpoint_auth_methods_supported"`
	CodeChallengeMethodsSupported    []string `json:"code_challenge_methods_supported"`
	ClaimsSupported                  []string `json:"claims_supported"`
}

func (h *DiscoveryHandler) handleConfiguration(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, providerMetadata{
		Issuer:                 h.issuer,
		AuthorizationEndpoint:  h.issuer + "/authorize",
		TokenEndpoint:          h.issuer + "/token",
		UserInfoEndpoint:       h.issuer + "/userinfo",
		RegistrationEndpoint:   h.issuer + "/register",
		JWKSURI:                h.issuer + "/.well-known/jwks.json",
		ScopesSupported:        []string{"openid", "profile", "email", "phone", "address"},
		ResponseTypesSupported: []string{"code", "token", "id_token", "code id_token", "id_token token", "code id_token token"},
		ResponseModesSupported: []string{"query", "fragment", "form_post"},
		GrantTypesSupported: []string{
			string(oauth.GrantAuthorizationCode),
			string(oauth.GrantPassword),
			string(oauth.GrantRefreshToken),
			string(oauth.GrantClientCredentials),
		},
		SubjectTypesSupported:            []string{"public"},
		IDTokenSigningAlgValuesSupported: []string{"RS256", "RS384", "RS512", "PS256", "ES256", "HS256"},
		TokenEndpointAuthMethods: []string{
			string(oauth.AuthMethodSecretBasic),
			string(oauth.AuthMethodSecretPost),
			string(oauth.AuthMethodSecretJWT),
			string(oauth.AuthMethodPrivateKey),
			string(oauth.AuthMethodNone),
		},
		CodeChallengeMethodsSupported: []string{"plain", "S256"},
		ClaimsSupported: []string{
			oauth.ClaimSubject, oauth.ClaimName, oauth.ClaimGivenName, oauth.ClaimFamilyName,
			oauth.ClaimEmail, oauth.ClaimEmailVerified, oauth.ClaimPhoneNumber, oauth.ClaimAddress,
		},
	})
}

func (h *DiscoveryHandler) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	keys, err := h.engine.PublicKeys()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

// UserInfoHandler serves the OIDC userinfo endpoint from the granted token's
// stored payload snapshot.
type UserInfoHandler struct {
	tokens UserInfoSource
}

// UserInfoSource resolves the payload behind a validated access token.
type UserInfoSource interface {
	GetByAccessToken(ctx context.Context, accessToken string) (*oauth.GrantedToken, error)
}

func NewUserInfoHandler(tokens UserInfoSource) *UserInfoHandler {
	return &UserInfoHandler{tokens: tokens}
}

func (h *UserInfoHandler) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	// RequireBearer already vetted the header shape.
	accessToken := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	granted, err := h.tokens.GetByAccessToken(r.Context(), accessToken)
	if err != nil {
		writeError(w, oauth.NewError(oauth.ErrInvalidGrant, "access token is not recognised"))
		return
	}

	payload := granted.UserInfoPayload
	if payload == nil {
		payload = oauth.Payload{oauth.ClaimSubject: middleware.Subject(r.Context())}
	}
	writeJSON(w, http.StatusOK, payload)
}
