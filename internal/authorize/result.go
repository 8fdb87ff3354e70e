package authorize

import (
	"net/url"

	"idserver/internal/oauth"
)

// Decision tells the caller what to do with the browser next.
type Decision int

const (
	// DecisionRedirectToClient delivers the authorization response to the
	// client's redirect URI.
	DecisionRedirectToClient Decision = iota

	// DecisionRequireConsent halts the flow on the consent screen; no code or
	// token leaves the server until the subject approves.
	DecisionRequireConsent
)

// Redirect is a fully assembled authorization response, still transport
// neutral. Mode query and fragment become a 302; form_post becomes an
// auto-submitting HTML form.
type Redirect struct {
	URI    string
	Mode   oauth.ResponseMode
	Params url.Values
}

// Location renders the redirect target for the 302 modes.
func (r *Redirect) Location() string {
	switch r.Mode {
	case oauth.ResponseModeFragment:
		return r.URI + "#" + r.Params.Encode()
	default:
		return r.URI + "?" + r.Params.Encode()
	}
}

// Response is the outcome of one authorization request.
type Response struct {
	Decision Decision
	Redirect *Redirect
}

// NewErrorRedirect assembles the RFC 6749 error delivery for a request whose
// redirect URI has already been vetted: error, error_description and the
// request's state travel to the client the same way a success would.
func NewErrorRedirect(param *oauth.AuthorizationParameter, perr *oauth.ProtocolError) *Redirect {
	params := url.Values{}
	params.Set("error", string(perr.Code))
	if perr.Description != "" {
		params.Set("error_description", perr.Description)
	}
	if param.State != "" {
		params.Set("state", param.State)
	}
	return &Redirect{
		URI:    param.RedirectURI,
		Mode:   responseMode(param, param.ResponseTypes()),
		Params: params,
	}
}
