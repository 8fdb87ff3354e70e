package interactive

import (
	"context"
	"errors"
	"time"

	"idserver/internal/authorize"
	"idserver/internal/idtoken"
	"idserver/internal/oauth"
	"idserver/internal/platform/metrics"
	dErrors "idserver/pkg/domain-errors"
	"idserver/pkg/email"
	"idserver/pkg/platform/audit"
	"idserver/pkg/platform/audit/publisher"
	"idserver/pkg/platform/sentinel"
)

// State is where an interactive authorization attempt currently stands. The
// browser only ever holds a request code; the state is re-derived from what
// the envelope contains and what the stores say.
type State string

const (
	StateUnauthenticated  State = "unauthenticated"
	StateTwoFactorPending State = "two_factor_pending"
	StateConsentPending   State = "consent_pending"
	StateRedirecting      State = "redirecting"
)

// ConsentPrompt is what the consent screen must show.
type ConsentPrompt struct {
	ClientID string
	Scopes   []string
	Claims   []string
}

// StepResult is the outcome of one interactive step: the next state, the
// request code to carry forward, and state-specific payload.
type StepResult struct {
	State       State
	RequestCode string

	// Channel is set alongside StateTwoFactorPending.
	Channel oauth.TwoFactorChannel

	// Prompt is set alongside StateConsentPending.
	Prompt *ConsentPrompt

	// Redirect is set alongside StateRedirecting.
	Redirect *authorize.Redirect

	// SessionToken is a sealed authenticated session, present once primary
	// authentication (and a second factor, when configured) has succeeded.
	// The transport stores it as a cookie so later authorization requests
	// can skip the login screen.
	SessionToken string
}

// ClientRepository resolves client registrations.
type ClientRepository interface {
	GetByID(ctx context.Context, id string) (*oauth.Client, error)
}

// OwnerRepository is the slice of resource-owner persistence the flow needs:
// lookups when resuming from an envelope, inserts when an external IdP
// delivers a first-time subject.
type OwnerRepository interface {
	GetBySubject(ctx context.Context, subject string) (*oauth.ResourceOwner, error)
	Insert(ctx context.Context, owner *oauth.ResourceOwner) error
}

// OwnerAuthenticator verifies primary credentials.
type OwnerAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (*oauth.ResourceOwner, []string, error)
}

// ConsentRecorder stores an approved consent screen decision.
type ConsentRecorder interface {
	Grant(ctx context.Context, subject, clientID string, scopes, claims []string) (*oauth.Consent, error)
}

// Flow drives the interactive login, second-factor, consent and redirect
// steps of an authorization request.
type Flow struct {
	clients      ClientRepository
	owners       OwnerRepository
	ownerAuth    OwnerAuthenticator
	consents     ConsentRecorder
	confirmation *Confirmation
	codec        *Codec
	generator    *authorize.Generator

	audit   *publisher.Publisher
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewFlow(
	clients ClientRepository,
	owners OwnerRepository,
	ownerAuth OwnerAuthenticator,
	consents ConsentRecorder,
	confirmation *Confirmation,
	codec *Codec,
	generator *authorize.Generator,
	auditPub *publisher.Publisher,
	m *metrics.Metrics,
) *Flow {
	return &Flow{
		clients:      clients,
		owners:       owners,
		ownerAuth:    ownerAuth,
		consents:     consents,
		confirmation: confirmation,
		codec:        codec,
		generator:    generator,
		audit:        auditPub,
		metrics:      m,
		now:          time.Now,
	}
}

// Begin validates a fresh authorization request. A valid session token lets
// the subject skip the login screen entirely; otherwise the request is sealed
// into a request code for the login page. After the redirect URI is vetted,
// protocol errors travel to the client as error redirects, so prompt=none
// without a session produces a login_required redirect instead of a page.
func (f *Flow) Begin(ctx context.Context, param *oauth.AuthorizationParameter, sessionToken string) (*StepResult, error) {
	if param == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "authorization parameter is required")
	}

	client, err := f.clients.GetByID(ctx, param.ClientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, oauth.NewError(oauth.ErrInvalidRequest, "unknown client")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "client lookup failed")
	}
	// Redirect URI must be vetted before anything is ever sent to it.
	if !client.HasRedirectURI(param.RedirectURI) {
		return nil, oauth.NewError(oauth.ErrInvalidRequest, "redirect_uri is not registered for this client")
	}

	if param.Prompt != oauth.PromptLogin && sessionToken != "" {
		if subject, amr, err := f.codec.OpenSession(sessionToken); err == nil {
			if owner, err := f.owners.GetBySubject(ctx, subject); err == nil {
				code, err := f.codec.Seal(param, subject, amr)
				if err != nil {
					return nil, dErrors.Wrap(err, dErrors.CodeInternal, "request sealing failed")
				}
				return f.resume(ctx, param, owner, amr, code)
			}
		}
	}

	if param.Prompt == oauth.PromptNone {
		return errorRedirect(param, oauth.NewError(oauth.ErrLoginRequired, "authentication is required and prompt=none forbids it"))
	}

	code, err := f.codec.Seal(param, "", nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "request sealing failed")
	}
	return &StepResult{State: StateUnauthenticated, RequestCode: code}, nil
}

// Authenticate runs the primary credential check. Owners with a second factor
// configured halt at StateTwoFactorPending; everyone else proceeds straight to
// consent or redirect.
func (f *Flow) Authenticate(ctx context.Context, requestCode, username, password string) (*StepResult, error) {
	sealed, err := f.codec.Open(requestCode)
	if err != nil {
		return nil, err
	}

	owner, amr, err := f.ownerAuth.Authenticate(ctx, username, password)
	if err != nil {
		f.metrics.OwnerAuthFailures.Inc()
		f.emit(ctx, audit.Event{
			Subject:  username,
			ClientID: sealed.Param.ClientID,
			Action:   string(audit.EventOwnerAuthFailed),
			Reason:   "interactive login rejected",
		})
		return nil, err
	}

	code, err := f.codec.Seal(sealed.Param, owner.Subject, amr)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "request sealing failed")
	}

	if owner.TwoFactor != oauth.TwoFactorNone {
		if err := f.confirmation.Send(ctx, owner); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "confirmation code dispatch failed")
		}
		return &StepResult{
			State:       StateTwoFactorPending,
			RequestCode: code,
			Channel:     owner.TwoFactor,
		}, nil
	}

	return f.resume(ctx, sealed.Param, owner, amr, code)
}

// ConfirmTwoFactor redeems the second-factor code and resumes the flow.
func (f *Flow) ConfirmTwoFactor(ctx context.Context, requestCode, confirmationCode string) (*StepResult, error) {
	sealed, err := f.codec.Open(requestCode)
	if err != nil {
		return nil, err
	}
	if sealed.Subject == "" {
		return nil, ErrRequestExtraction
	}
	if err := f.confirmation.Validate(ctx, sealed.Subject, confirmationCode); err != nil {
		return nil, err
	}

	owner, err := f.owners.GetBySubject(ctx, sealed.Subject)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resource owner lookup failed")
	}
	return f.resume(ctx, sealed.Param, owner, sealed.AMR, requestCode)
}

// FinishExternal completes an external-IdP round trip: the callback hands over
// the asserted subject and claims, first-time subjects are provisioned, and
// the flow resumes where the sealed request left it.
func (f *Flow) FinishExternal(ctx context.Context, requestCode, subject string, claims map[string]string) (*StepResult, error) {
	sealed, err := f.codec.Open(requestCode)
	if err != nil {
		return nil, err
	}

	owner, err := f.owners.GetBySubject(ctx, subject)
	if errors.Is(err, sentinel.ErrNotFound) {
		owner = &oauth.ResourceOwner{
			Subject:   subject,
			Claims:    fillNameClaims(claims),
			IsLocal:   false,
			CreatedAt: f.now().UTC(),
		}
		if err := f.owners.Insert(ctx, owner); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resource owner provisioning failed")
		}
		f.emit(ctx, audit.Event{
			Subject: subject,
			Action:  string(audit.EventOwnerCreated),
			Reason:  "external identity provider",
		})
	} else if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resource owner lookup failed")
	}

	amr := []string{"external"}
	code, err := f.codec.Seal(sealed.Param, owner.Subject, amr)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "request sealing failed")
	}
	return f.resume(ctx, sealed.Param, owner, amr, code)
}

// ApproveConsent records the consent screen decision and resumes the flow,
// which will now find the matching consent and redirect.
func (f *Flow) ApproveConsent(ctx context.Context, requestCode string) (*StepResult, error) {
	sealed, err := f.codec.Open(requestCode)
	if err != nil {
		return nil, err
	}
	if sealed.Subject == "" {
		return nil, ErrRequestExtraction
	}

	if _, err := f.consents.Grant(ctx, sealed.Subject, sealed.Param.ClientID, sealed.Param.Scopes(), userInfoClaimNames(sealed.Param)); err != nil {
		return nil, err
	}
	f.metrics.ConsentsGranted.Inc()
	f.emit(ctx, audit.Event{
		Subject:  sealed.Subject,
		ClientID: sealed.Param.ClientID,
		Action:   string(audit.EventConsentGranted),
		Scope:    sealed.Param.Scope,
	})

	owner, err := f.owners.GetBySubject(ctx, sealed.Subject)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "resource owner lookup failed")
	}
	return f.resume(ctx, sealed.Param, owner, sealed.AMR, requestCode)
}

// DenyConsent aborts the flow, delivering access_denied to the client's
// redirect URI. The URI inside the sealed request was vetted at Begin.
func (f *Flow) DenyConsent(ctx context.Context, requestCode string) (*StepResult, error) {
	sealed, err := f.codec.Open(requestCode)
	if err != nil {
		return nil, err
	}
	f.emit(ctx, audit.Event{
		Subject:  sealed.Subject,
		ClientID: sealed.Param.ClientID,
		Action:   string(audit.EventConsentDenied),
		Scope:    sealed.Param.Scope,
	})
	return errorRedirect(sealed.Param, oauth.NewError(oauth.ErrAccessDenied, "the resource owner denied the request"))
}

// resume invokes the response pipeline and maps its decision onto the next
// interactive state.
func (f *Flow) resume(ctx context.Context, param *oauth.AuthorizationParameter, owner *oauth.ResourceOwner, amr []string, requestCode string) (*StepResult, error) {
	client, err := f.clients.GetByID(ctx, param.ClientID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "client lookup failed")
	}

	principal := &idtoken.Principal{Subject: owner.Subject, Claims: owner.Claims, AMR: amr}
	response, err := f.generator.Execute(ctx, client, principal, param)
	if err != nil {
		// The redirect URI was vetted at Begin, so protocol errors surfaced
		// by the pipeline belong on the client's redirect URI.
		if perr, ok := oauth.AsProtocolError(err); ok && client.HasRedirectURI(param.RedirectURI) {
			return errorRedirect(param, perr)
		}
		return nil, err
	}

	sessionToken, err := f.codec.SealSession(owner.Subject, amr)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "session sealing failed")
	}

	switch response.Decision {
	case authorize.DecisionRequireConsent:
		return &StepResult{
			State:        StateConsentPending,
			RequestCode:  requestCode,
			SessionToken: sessionToken,
			Prompt: &ConsentPrompt{
				ClientID: param.ClientID,
				Scopes:   param.Scopes(),
				Claims:   userInfoClaimNames(param),
			},
		}, nil
	default:
		return &StepResult{
			State:        StateRedirecting,
			Redirect:     response.Redirect,
			SessionToken: sessionToken,
		}, nil
	}
}

// errorRedirect wraps a protocol error into the redirecting step result. The
// state parameter rides along via the sealed request.
func errorRedirect(param *oauth.AuthorizationParameter, perr *oauth.ProtocolError) (*StepResult, error) {
	return &StepResult{
		State:    StateRedirecting,
		Redirect: authorize.NewErrorRedirect(param, perr),
	}, nil
}

func (f *Flow) emit(ctx context.Context, event audit.Event) {
	if f.audit == nil {
		return
	}
	_ = f.audit.Emit(ctx, event)
}

func userInfoClaimNames(param *oauth.AuthorizationParameter) []string {
	if !param.Claims.HasUserInfoClaims() {
		return nil
	}
	names := make([]string, 0, len(param.Claims.UserInfo))
	for _, c := range param.Claims.UserInfo {
		names = append(names, c.Name)
	}
	return names
}

// fillNameClaims backfills given_name and family_name from the email address
// when an external provider asserts neither.
func fillNameClaims(claims map[string]string) map[string]string {
	if claims == nil {
		claims = map[string]string{}
	}
	if claims[oauth.ClaimGivenName] != "" || claims[oauth.ClaimFamilyName] != "" {
		return claims
	}
	addr := claims[oauth.ClaimEmail]
	if addr == "" {
		return claims
	}
	first, last := email.DeriveNameFromEmail(addr)
	claims[oauth.ClaimGivenName] = first
	claims[oauth.ClaimFamilyName] = last
	return claims
}
