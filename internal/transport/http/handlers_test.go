package httptransport

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idserver/internal/authorize"
	"idserver/internal/clientauth"
	"idserver/internal/consent"
	"idserver/internal/idtoken"
	"idserver/internal/interactive"
	"idserver/internal/jose"
	"idserver/internal/oauth"
	"idserver/internal/ownerauth"
	"idserver/internal/platform/metrics"
	"idserver/internal/registration"
	authorizationcode "idserver/internal/store/authorization-code"
	clientstore "idserver/internal/store/client"
	confirmationcode "idserver/internal/store/confirmation-code"
	grantedtoken "idserver/internal/store/granted-token"
	resourceowner "idserver/internal/store/resource-owner"
	"idserver/internal/token"
	auditmemory "idserver/pkg/platform/audit/store/memory"
	"idserver/pkg/platform/audit/publisher"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

type serverConfig struct{}

func (serverConfig) IssuerName() string                             { return "https://auth.example.test" }
func (serverConfig) TokenValidityPeriod() time.Duration             { return time.Hour }
func (serverConfig) AuthorizationCodeValidityPeriod() time.Duration { return 5 * time.Minute }

const (
	testClientID     = "my-blog"
	testClientSecret = "blog-secret-with-enough-entropy-0123456789"
	testRedirectURI  = "https://blog.example.test/callback"
	testPassword     = "S3cretPassword!"
)

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()

	cfg := serverConfig{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.New(prometheus.NewRegistry())
	auditPub := publisher.NewPublisher(auditmemory.NewInMemoryStore())

	clients := clientstore.New(&oauth.Client{
		ID:            testClientID,
		Secret:        testClientSecret,
		RedirectURIs:  []string{testRedirectURI},
		AllowedScopes: []string{"openid", "profile", "email"},
		GrantTypes: []oauth.GrantType{
			oauth.GrantAuthorizationCode,
			oauth.GrantPassword,
			oauth.GrantRefreshToken,
			oauth.GrantClientCredentials,
		},
		ResponseTypes: []oauth.ResponseType{
			oauth.ResponseTypeCode,
			oauth.ResponseTypeToken,
			oauth.ResponseTypeIDToken,
		},
		TokenEndpointAuth:        oauth.AuthMethodSecretPost,
		IDTokenSignedResponseAlg: "HS256",
	})

	hash, err := ownerauth.HashPassword(testPassword)
	require.NoError(t, err)
	owners := resourceowner.New(&oauth.ResourceOwner{
		Subject:      "alice",
		PasswordHash: hash,
		Claims: map[string]string{
			oauth.ClaimName:  "Alice Example",
			oauth.ClaimEmail: "alice@example.test",
		},
		IsLocal: true,
	})

	tokens := grantedtoken.New()
	codes := authorizationcode.New()
	consents := consent.NewService(consent.NewInMemoryStore())
	engine := jose.NewEngine(jwk.NewSet())
	builder := idtoken.NewBuilder(cfg)
	generator := token.NewGenerator([]byte("access-token-signing-key-32bytes"), cfg)
	ownerAuth := ownerauth.NewService(owners, ownerauth.PasswordAMR{})

	actions := token.NewActions(
		clientauth.New(clients, cfg.IssuerName()+"/token"),
		ownerAuth,
		tokens,
		codes,
		generator,
		builder,
		engine,
		cfg,
		auditPub,
		m,
	)

	responseGen := authorize.NewGenerator(tokens, codes, consents, generator, builder, engine, auditPub, m)

	codec, err := interactive.NewCodec([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	confirmation := interactive.NewConfirmation(confirmationcode.New(), nil, auditPub, m)
	flow := interactive.NewFlow(clients, owners, ownerAuth, consents, confirmation, codec, responseGen, auditPub, m)

	return NewRouter(Handlers{
		Authorize: NewAuthorizeHandler(flow, logger),
		Token:     NewTokenHandler(actions),
		Discovery: NewDiscoveryHandler(cfg.IssuerName(), engine),
		UserInfo:  NewUserInfoHandler(tokens),
		Register:  NewRegistrationHandler(registration.NewService(clients, auditPub)),
	}, generator, logger)
}

func postForm(t *testing.T, router chi.Router, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func passwordGrantForm() url.Values {
	return url.Values{
		"grant_type":    {"password"},
		"username":      {"alice"},
		"password":      {testPassword},
		"scope":         {"openid profile"},
		"client_id":     {testClientID},
		"client_secret": {testClientSecret},
	}
}

func TestTokenEndpoint_PasswordGrant(t *testing.T) {
	router := newTestRouter(t)

	rec := postForm(t, router, "/token", passwordGrantForm())

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.AccessToken)
	assert.NotEmpty(t, body.RefreshToken)
	assert.NotEmpty(t, body.IDToken)
	assert.Equal(t, "Bearer", body.TokenType)
	assert.Equal(t, 3600, body.ExpiresIn)
	assert.Equal(t, "openid profile", body.Scope)
}

func TestTokenEndpoint_InvalidClient(t *testing.T) {
	router := newTestRouter(t)

	form := passwordGrantForm()
	form.Set("client_secret", "wrong")
	rec := postForm(t, router, "/token", form)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	var body protocolErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_client", body.Error)
}

func TestTokenEndpoint_UnsupportedGrant(t *testing.T) {
	router := newTestRouter(t)

	rec := postForm(t, router, "/token", url.Values{"grant_type": {"urn:unknown"}})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body protocolErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_request", body.Error)
}

func TestUserInfo(t *testing.T) {
	router := newTestRouter(t)

	rec := postForm(t, router, "/token", passwordGrantForm())
	require.Equal(t, http.StatusOK, rec.Code)
	var granted tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &granted))

	req := httptest.NewRequest(http.MethodGet, "/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+granted.AccessToken)
	infoRec := httptest.NewRecorder()
	router.ServeHTTP(infoRec, req)

	require.Equal(t, http.StatusOK, infoRec.Code)
	var claims map[string]any
	require.NoError(t, json.Unmarshal(infoRec.Body.Bytes(), &claims))
	assert.Equal(t, "alice", claims["sub"])
	assert.Equal(t, "Alice Example", claims["name"])
}

func TestUserInfo_RequiresToken(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/userinfo", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestDiscovery(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/openid-configuration", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var metadata providerMetadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metadata))
	assert.Equal(t, "https://auth.example.test", metadata.Issuer)
	assert.Equal(t, "https://auth.example.test/token", metadata.TokenEndpoint)
	assert.Contains(t, metadata.CodeChallengeMethodsSupported, "S256")
}

var requestCodePattern = regexp.MustCompile(`name="request_code" value="([^"]+)"`)

func extractRequestCode(t *testing.T, body string) string {
	t.Helper()
	match := requestCodePattern.FindStringSubmatch(body)
	require.Len(t, match, 2, "page must carry the request code: %s", body)
	return match[1]
}

func TestAuthorize_InteractiveCodeFlow(t *testing.T) {
	router := newTestRouter(t)

	authorizeURL := "/authorize?" + url.Values{
		"client_id":     {testClientID},
		"response_type": {"code"},
		"scope":         {"openid profile"},
		"redirect_uri":  {testRedirectURI},
		"state":         {"state-1"},
		"nonce":         {"nonce-1"},
	}.Encode()
	req := httptest.NewRequest(http.MethodGet, authorizeURL, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	requestCode := extractRequestCode(t, rec.Body.String())

	loginRec := postForm(t, router, "/login", url.Values{
		"request_code": {requestCode},
		"username":     {"alice"},
		"password":     {testPassword},
	})
	require.Equal(t, http.StatusOK, loginRec.Code)
	page := loginRec.Body.String()
	assert.Contains(t, page, "asking for access")
	requestCode = extractRequestCode(t, page)

	consentRec := postForm(t, router, "/consent", url.Values{
		"request_code": {requestCode},
		"decision":     {"approve"},
	})
	require.Equal(t, http.StatusFound, consentRec.Code)

	location, err := url.Parse(consentRec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "blog.example.test", location.Host)
	assert.NotEmpty(t, location.Query().Get("code"))
	assert.Equal(t, "state-1", location.Query().Get("state"))
}

func TestAuthorize_DeniedConsent(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/authorize?"+url.Values{
		"client_id":     {testClientID},
		"response_type": {"code"},
		"scope":         {"openid"},
		"redirect_uri":  {testRedirectURI},
		"state":         {"state-123"},
	}.Encode(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	requestCode := extractRequestCode(t, rec.Body.String())

	loginRec := postForm(t, router, "/login", url.Values{
		"request_code": {requestCode},
		"username":     {"alice"},
		"password":     {testPassword},
	})
	requestCode = extractRequestCode(t, loginRec.Body.String())

	denyRec := postForm(t, router, "/consent", url.Values{
		"request_code": {requestCode},
		"decision":     {"deny"},
	})
	require.Equal(t, http.StatusFound, denyRec.Code)

	location, err := url.Parse(denyRec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "blog.example.test", location.Host)
	assert.Equal(t, "access_denied", location.Query().Get("error"))
	assert.Equal(t, "state-123", location.Query().Get("state"))
	assert.Empty(t, location.Query().Get("code"))
}

func authCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == authCookieName {
			return c
		}
	}
	t.Fatal("response must carry the authenticated session cookie")
	return nil
}

func TestAuthorize_SessionSkipsLogin(t *testing.T) {
	router := newTestRouter(t)

	query := url.Values{
		"client_id":     {testClientID},
		"response_type": {"code"},
		"scope":         {"openid"},
		"redirect_uri":  {testRedirectURI},
		"state":         {"state-456"},
	}
	req := httptest.NewRequest(http.MethodGet, "/authorize?"+query.Encode(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	requestCode := extractRequestCode(t, rec.Body.String())

	loginRec := postForm(t, router, "/login", url.Values{
		"request_code": {requestCode},
		"username":     {"alice"},
		"password":     {testPassword},
	})
	session := authCookie(t, loginRec)
	requestCode = extractRequestCode(t, loginRec.Body.String())

	consentRec := postForm(t, router, "/consent", url.Values{
		"request_code": {requestCode},
		"decision":     {"approve"},
	})
	require.Equal(t, http.StatusFound, consentRec.Code)

	// The second visit carries the session cookie, so prompt=none succeeds
	// without rendering any screen.
	query.Set("prompt", "none")
	again := httptest.NewRequest(http.MethodGet, "/authorize?"+query.Encode(), nil)
	again.AddCookie(session)
	againRec := httptest.NewRecorder()
	router.ServeHTTP(againRec, again)

	require.Equal(t, http.StatusFound, againRec.Code, againRec.Body.String())
	location, err := url.Parse(againRec.Header().Get("Location"))
	require.NoError(t, err)
	assert.NotEmpty(t, location.Query().Get("code"))
	assert.Equal(t, "state-456", location.Query().Get("state"))
	assert.Empty(t, location.Query().Get("error"))
}

func TestAuthorize_PromptNoneWithoutSession(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/authorize?"+url.Values{
		"client_id":     {testClientID},
		"response_type": {"code"},
		"scope":         {"openid"},
		"redirect_uri":  {testRedirectURI},
		"state":         {"state-789"},
		"prompt":        {"none"},
	}.Encode(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "login_required", location.Query().Get("error"))
	assert.Equal(t, "state-789", location.Query().Get("state"))
}

func TestAuthorize_WrongPasswordRerendersLogin(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/authorize?"+url.Values{
		"client_id":     {testClientID},
		"response_type": {"code"},
		"scope":         {"openid"},
		"redirect_uri":  {testRedirectURI},
	}.Encode(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	requestCode := extractRequestCode(t, rec.Body.String())

	loginRec := postForm(t, router, "/login", url.Values{
		"request_code": {requestCode},
		"username":     {"alice"},
		"password":     {"wrong"},
	})
	require.Equal(t, http.StatusOK, loginRec.Code)
	assert.Contains(t, loginRec.Body.String(), "credentials were not correct")
}

func TestAuthorize_UnknownClient(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/authorize?"+url.Values{
		"client_id":     {"nobody"},
		"response_type": {"code"},
		"scope":         {"openid"},
		"redirect_uri":  {testRedirectURI},
	}.Encode(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func postJSON(t *testing.T, router chi.Router, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegistration_IssuesUsableCredentials(t *testing.T) {
	router := newTestRouter(t)

	rec := postJSON(t, router, "/register", `{
		"client_name": "registered app",
		"redirect_uris": ["https://app.example.test/callback"],
		"grant_types": ["client_credentials"],
		"scope": "openid",
		"token_endpoint_auth_method": "client_secret_post"
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var registered clientRegistrationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &registered))
	require.NotEmpty(t, registered.ClientID)
	require.NotEmpty(t, registered.ClientSecret)
	assert.Equal(t, "client_secret_post", registered.TokenEndpointAuthMethod)

	tokenRec := postForm(t, router, "/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {registered.ClientID},
		"client_secret": {registered.ClientSecret},
	})
	require.Equal(t, http.StatusOK, tokenRec.Code, tokenRec.Body.String())
	var granted tokenResponse
	require.NoError(t, json.Unmarshal(tokenRec.Body.Bytes(), &granted))
	assert.NotEmpty(t, granted.AccessToken)
}

func TestRegistration_RequiresRedirectURI(t *testing.T) {
	router := newTestRouter(t)

	rec := postJSON(t, router, "/register", `{"client_name": "no redirects"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body protocolErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_redirect_uri", body.Error)
}

func TestRegistration_RejectsUnknownGrantType(t *testing.T) {
	router := newTestRouter(t)

	rec := postJSON(t, router, "/register", `{
		"redirect_uris": ["https://app.example.test/callback"],
		"grant_types": ["urn:ietf:params:oauth:grant-type:device_code"]
	}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body protocolErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid_client_metadata", body.Error)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

var _ UserInfoSource = (*grantedtoken.InMemoryStore)(nil)
