package httptransport

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"idserver/internal/interactive"
	"idserver/internal/oauth"
)

// AuthorizeHandler drives the interactive authorization flow: the authorize
// entry point plus the login, two-factor and consent form submissions.
type AuthorizeHandler struct {
	flow   *interactive.Flow
	logger *slog.Logger
}

func NewAuthorizeHandler(flow *interactive.Flow, logger *slog.Logger) *AuthorizeHandler {
	return &AuthorizeHandler{flow: flow, logger: logger}
}

var loginTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html>
<head><title>Sign in</title></head>
<body>
<h1>Sign in</h1>
{{if .Failed}}<p>The credentials were not correct.</p>{{end}}
<form method="post" action="/login">
<input type="hidden" name="request_code" value="{{.RequestCode}}"/>
<label>Username <input type="text" name="username" autocomplete="username"/></label>
<label>Password <input type="password" name="password" autocomplete="current-password"/></label>
<button type="submit">Sign in</button>
</form>
</body>
</html>`))

var twoFactorTemplate = template.Must(template.New("two_factor").Parse(`<!DOCTYPE html>
<html>
<head><title>Confirmation code</title></head>
<body>
<h1>Enter your confirmation code</h1>
<p>A code was sent via {{.Channel}}.</p>
{{if .Failed}}<p>The code was not correct.</p>{{end}}
<form method="post" action="/two-factor">
<input type="hidden" name="request_code" value="{{.RequestCode}}"/>
<label>Code <input type="text" name="code" inputmode="numeric" autocomplete="one-time-code"/></label>
<button type="submit">Confirm</button>
</form>
</body>
</html>`))

var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html>
<head><title>Consent</title></head>
<body>
<h1>{{.ClientID}} is asking for access</h1>
<ul>
{{- range .Scopes}}
<li>{{.}}</li>
{{- end}}
{{- range .Claims}}
<li>{{.}}</li>
{{- end}}
</ul>
<form method="post" action="/consent">
<input type="hidden" name="request_code" value="{{.RequestCode}}"/>
<button type="submit" name="decision" value="approve">Allow</button>
<button type="submit" name="decision" value="deny">Deny</button>
</form>
</body>
</html>`))

type loginPage struct {
	RequestCode string
	Failed      bool
}

type twoFactorPage struct {
	RequestCode string
	Channel     oauth.TwoFactorChannel
	Failed      bool
}

type consentPage struct {
	RequestCode string
	ClientID    string
	Scopes      []string
	Claims      []string
}

// handleAuthorize is the OIDC authorization endpoint. A valid authenticated
// session skips the login screen; without one a valid request lands on it.
// Requests that fail before the redirect URI is vetted never reach it.
func (h *AuthorizeHandler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	param := parseAuthorizationParameter(r.URL.Query())
	param.SessionID = ensureSessionCookie(w, r)

	result, err := h.flow.Begin(r.Context(), param, authSessionToken(r))
	if err != nil {
		writeError(w, err)
		return
	}
	h.step(w, r, result)
}

func (h *AuthorizeHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, oauth.NewError(oauth.ErrInvalidRequest, "malformed form body"))
		return
	}
	requestCode := r.PostFormValue("request_code")

	result, err := h.flow.Authenticate(r.Context(), requestCode,
		r.PostFormValue("username"), r.PostFormValue("password"))
	if err != nil {
		if _, ok := oauth.AsProtocolError(err); ok {
			writeError(w, err)
			return
		}
		// Wrong credentials re-render the login form.
		h.renderLogin(w, loginPage{RequestCode: requestCode, Failed: true})
		return
	}
	h.step(w, r, result)
}

func (h *AuthorizeHandler) handleTwoFactor(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, oauth.NewError(oauth.ErrInvalidRequest, "malformed form body"))
		return
	}
	requestCode := r.PostFormValue("request_code")

	result, err := h.flow.ConfirmTwoFactor(r.Context(), requestCode, r.PostFormValue("code"))
	if err != nil {
		if errors.Is(err, interactive.ErrConfirmationInvalid) {
			h.render(w, twoFactorTemplate, twoFactorPage{RequestCode: requestCode, Failed: true})
			return
		}
		writeError(w, err)
		return
	}
	h.step(w, r, result)
}

func (h *AuthorizeHandler) handleConsent(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, oauth.NewError(oauth.ErrInvalidRequest, "malformed form body"))
		return
	}
	requestCode := r.PostFormValue("request_code")

	var result *interactive.StepResult
	var err error
	if r.PostFormValue("decision") == "approve" {
		result, err = h.flow.ApproveConsent(r.Context(), requestCode)
	} else {
		result, err = h.flow.DenyConsent(r.Context(), requestCode)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	h.step(w, r, result)
}

// step renders whatever the flow asks for next.
func (h *AuthorizeHandler) step(w http.ResponseWriter, r *http.Request, result *interactive.StepResult) {
	if result.SessionToken != "" {
		setAuthSessionCookie(w, result.SessionToken)
	}
	switch result.State {
	case interactive.StateTwoFactorPending:
		h.render(w, twoFactorTemplate, twoFactorPage{
			RequestCode: result.RequestCode,
			Channel:     result.Channel,
		})
	case interactive.StateConsentPending:
		h.render(w, consentTemplate, consentPage{
			RequestCode: result.RequestCode,
			ClientID:    result.Prompt.ClientID,
			Scopes:      result.Prompt.Scopes,
			Claims:      result.Prompt.Claims,
		})
	case interactive.StateRedirecting:
		deliver(w, r, result.Redirect)
	default:
		h.renderLogin(w, loginPage{RequestCode: result.RequestCode})
	}
}

func (h *AuthorizeHandler) renderLogin(w http.ResponseWriter, page loginPage) {
	h.render(w, loginTemplate, page)
}

func (h *AuthorizeHandler) render(w http.ResponseWriter, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := tmpl.Execute(w, data); err != nil {
		h.logger.Error("render page", "template", tmpl.Name(), "error", err)
	}
}

// parseAuthorizationParameter lifts the authorize query string into the
// domain shape. The claims parameter is parsed leniently; a malformed value
// is treated as absent.
func parseAuthorizationParameter(q url.Values) *oauth.AuthorizationParameter {
	return &oauth.AuthorizationParameter{
		ClientID:            q.Get("client_id"),
		Scope:               q.Get("scope"),
		ResponseType:        q.Get("response_type"),
		RedirectURI:         q.Get("redirect_uri"),
		State:               q.Get("state"),
		Nonce:               q.Get("nonce"),
		Prompt:              q.Get("prompt"),
		ResponseMode:        oauth.ResponseMode(q.Get("response_mode")),
		Claims:              parseClaimsParameter(q.Get("claims")),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}
}
