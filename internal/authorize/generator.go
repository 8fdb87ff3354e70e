package authorize

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"idserver/internal/idtoken"
	"idserver/internal/jose"
	"idserver/internal/oauth"
	"idserver/internal/platform/metrics"
	"idserver/internal/token"
	dErrors "idserver/pkg/domain-errors"
	"idserver/pkg/platform/audit"
	"idserver/pkg/platform/audit/publisher"
	"idserver/pkg/platform/sentinel"
)

// TokenStore is the slice of granted-token persistence the generator needs for
// the implicit and hybrid flows.
type TokenStore interface {
	AddToken(ctx context.Context, tok *oauth.GrantedToken) error
	GetToken(ctx context.Context, scope, clientID string, idTokenPayload, userInfoPayload oauth.Payload, now time.Time) (*oauth.GrantedToken, error)
}

// CodeStore persists freshly minted authorization codes.
type CodeStore interface {
	AddAuthorizationCode(ctx context.Context, code *oauth.AuthorizationCode) error
}

// ConsentChecker answers whether the subject already granted what the request
// asks for. A nil consent with a nil error means the consent screen is due.
type ConsentChecker interface {
	ConfirmedConsent(ctx context.Context, subject string, param *oauth.AuthorizationParameter) (*oauth.Consent, error)
}

// Generator assembles authorization responses for the code, implicit and
// hybrid flows. It assumes the caller already authenticated the resource owner
// and resolved the client; missing inputs are treated as programming errors,
// not protocol errors.
type Generator struct {
	tokens    TokenStore
	codes     CodeStore
	consents  ConsentChecker
	generator *token.Generator
	builder   *idtoken.Builder
	engine    *jose.Engine

	audit   *publisher.Publisher
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

func NewGenerator(
	tokens TokenStore,
	codes CodeStore,
	consents ConsentChecker,
	generator *token.Generator,
	builder *idtoken.Builder,
	engine *jose.Engine,
	auditPub *publisher.Publisher,
	m *metrics.Metrics,
) *Generator {
	return &Generator{
		tokens:    tokens,
		codes:     codes,
		consents:  consents,
		generator: generator,
		builder:   builder,
		engine:    engine,
		audit:     auditPub,
		metrics:   m,
		tracer:    otel.Tracer("idserver/authorize"),
		now:       time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Execute runs the response pipeline for an authenticated authorization
// request: validate the request against the client registration, require
// consent, then attach code, access token, id token, state and session_state
// as the response types demand.
func (g *Generator) Execute(ctx context.Context, client *oauth.Client, principal *idtoken.Principal, param *oauth.AuthorizationParameter) (*Response, error) {
	if client == nil || principal == nil || param == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "authorization pipeline invoked without client, principal or parameters")
	}

	ctx, span := g.tracer.Start(ctx, "authorize.Execute",
		trace.WithAttributes(
			attribute.String("oauth.client_id", client.ID),
			attribute.String("oauth.response_type", param.ResponseType),
		))
	defer span.End()

	responseTypes := param.ResponseTypes()
	if len(responseTypes) == 0 {
		return nil, oauth.NewError(oauth.ErrInvalidRequest, "response_type is missing or unsupported")
	}
	for _, rt := range responseTypes {
		if !client.HasResponseType(rt) {
			return nil, oauth.NewError(oauth.ErrUnauthorizedClient, "client is not registered for the requested response type")
		}
	}
	if !client.HasRedirectURI(param.RedirectURI) {
		return nil, oauth.NewError(oauth.ErrInvalidRequest, "redirect_uri is not registered for this client")
	}

	scopes := param.Scopes()
	if !containsScope(scopes, "openid") {
		return nil, oauth.NewError(oauth.ErrInvalidScope, "the openid scope is required")
	}
	if !oauth.ScopesWithin(scopes, client.AllowedScopes) {
		return nil, oauth.NewError(oauth.ErrInvalidScope, "requested scope exceeds the client registration")
	}

	consent, err := g.consents.ConfirmedConsent(ctx, principal.Subject, param)
	if err != nil {
		return nil, err
	}
	if consent == nil {
		return &Response{Decision: DecisionRequireConsent}, nil
	}

	now := g.now().UTC()
	scope := oauth.JoinScopes(scopes)
	idTokenPayload := g.builder.IDTokenPayload(principal, param, now)
	userInfoPayload := g.builder.UserInfoPayload(principal, param)

	params := url.Values{}

	var accessToken string
	if oauth.ContainsResponseType(responseTypes, oauth.ResponseTypeToken) {
		// Clone so the hash finalization below does not reach into the
		// persisted snapshot.
		granted, err := g.mintOrReuse(ctx, client, scope, userInfoPayload.Clone(), idTokenPayload.Clone(), now)
		if err != nil {
			return nil, err
		}
		accessToken = granted.AccessToken
		params.Set("access_token", accessToken)
		params.Set("token_type", "Bearer")
		params.Set("expires_in", strconv.Itoa(granted.ExpiresIn))
	}

	var code string
	if oauth.ContainsResponseType(responseTypes, oauth.ResponseTypeCode) {
		code, err = g.issueCode(ctx, client, principal, param, scope, idTokenPayload, userInfoPayload, now)
		if err != nil {
			return nil, err
		}
		params.Set("code", code)
	}

	if oauth.ContainsResponseType(responseTypes, oauth.ResponseTypeIDToken) {
		if err := idtoken.FinalizeHashes(idTokenPayload, code, accessToken, client.IDTokenAlg()); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "id token hash computation failed")
		}
		signed, err := g.engine.GenerateIDToken(client, idTokenPayload)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "id token signing failed")
		}
		params.Set("id_token", signed)
	}

	if param.State != "" {
		params.Set("state", param.State)
	}
	if param.SessionID != "" {
		if origin := OriginOf(param.RedirectURI); origin != "" {
			sessionState, err := ComputeSessionState(client.ID, origin, param.SessionID)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "session state computation failed")
			}
			params.Set("session_state", sessionState)
		}
	}

	return &Response{
		Decision: DecisionRedirectToClient,
		Redirect: &Redirect{
			URI:    param.RedirectURI,
			Mode:   responseMode(param, responseTypes),
			Params: params,
		},
	}, nil
}

// mintOrReuse mirrors the token endpoint's idempotent issuance for the
// implicit and hybrid flows.
func (g *Generator) mintOrReuse(ctx context.Context, client *oauth.Client, scope string, userInfoPayload, idTokenPayload oauth.Payload, now time.Time) (*oauth.GrantedToken, error) {
	existing, err := g.tokens.GetToken(ctx, scope, client.ID, idTokenPayload, userInfoPayload, now)
	if err == nil {
		g.metrics.TokensReused.Inc()
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "granted token lookup failed")
	}

	granted, err := g.generator.Generate(client, scope, userInfoPayload, idTokenPayload)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "token generation failed")
	}
	if err := g.tokens.AddToken(ctx, granted); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "granted token persistence failed")
	}
	g.metrics.TokensIssued.WithLabelValues("implicit").Inc()
	return granted, nil
}

func (g *Generator) issueCode(ctx context.Context, client *oauth.Client, principal *idtoken.Principal, param *oauth.AuthorizationParameter, scope string, idTokenPayload, userInfoPayload oauth.Payload, now time.Time) (string, error) {
	if client.RequirePKCE && param.CodeChallenge == "" {
		return "", oauth.NewError(oauth.ErrInvalidRequest, "code_challenge is required for this client")
	}

	code := &oauth.AuthorizationCode{
		Code:        uuid.NewString(),
		ClientID:    client.ID,
		RedirectURI: param.RedirectURI,
		Scope:       scope,
		CreatedAt:   now,
		// Snapshot of the payloads as consented; timestamps and hashes are
		// recomputed at exchange time.
		IDTokenPayload:      idTokenPayload.Clone(),
		UserInfoPayload:     userInfoPayload.Clone(),
		CodeChallenge:       param.CodeChallenge,
		CodeChallengeMethod: param.CodeChallengeMethod,
	}
	if err := g.codes.AddAuthorizationCode(ctx, code); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "authorization code persistence failed")
	}

	g.metrics.CodesIssued.Inc()
	if g.audit != nil {
		_ = g.audit.Emit(ctx, audit.Event{
			Subject:  principal.Subject,
			ClientID: client.ID,
			Action:   string(audit.EventAuthorizationCodeGranted),
			Scope:    scope,
		})
	}
	return code.Code, nil
}

// responseMode honors an explicit response_mode and otherwise derives it from
// the flow: code alone travels in the query string, anything carrying a token
// or id token in the fragment.
func responseMode(param *oauth.AuthorizationParameter, responseTypes []oauth.ResponseType) oauth.ResponseMode {
	if param.ResponseMode != oauth.ResponseModeNone {
		return param.ResponseMode
	}
	if len(responseTypes) == 1 && responseTypes[0] == oauth.ResponseTypeCode {
		return oauth.ResponseModeQuery
	}
	return oauth.ResponseModeFragment
}

func containsScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}
