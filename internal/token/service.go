package token

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"idserver/internal/clientauth"
	"idserver/internal/idtoken"
	"idserver/internal/jose"
	"idserver/internal/oauth"
	"idserver/internal/platform/metrics"
	dErrors "idserver/pkg/domain-errors"
	"idserver/pkg/platform/audit"
	"idserver/pkg/platform/audit/publisher"
)

// TokenStore is the granted-token persistence contract the actions consume.
type TokenStore interface {
	AddToken(ctx context.Context, token *oauth.GrantedToken) error
	GetToken(ctx context.Context, scope, clientID string, idTokenPayload, userInfoPayload oauth.Payload, now time.Time) (*oauth.GrantedToken, error)
	GetByRefreshToken(ctx context.Context, refreshToken string) (*oauth.GrantedToken, error)
	RemoveRefreshToken(ctx context.Context, refreshToken string) error
}

// CodeStore is the authorization code contract; Consume must be an atomic
// delete-on-read so a code can never be exchanged twice.
type CodeStore interface {
	Consume(ctx context.Context, code string) (*oauth.AuthorizationCode, error)
}

// ClientAuthenticator validates token endpoint client credentials.
type ClientAuthenticator interface {
	Authenticate(ctx context.Context, instruction clientauth.Instruction) (*oauth.Client, error)
}

// OwnerAuthenticator validates resource owner credentials for the password grant.
type OwnerAuthenticator interface {
	Authenticate(ctx context.Context, username, password string) (*oauth.ResourceOwner, []string, error)
}

// Request is one decoded token endpoint request.
type Request struct {
	GrantType string

	// password grant
	Username string
	Password string

	// authorization_code grant
	Code         string
	RedirectURI  string
	CodeVerifier string

	// refresh_token grant
	RefreshToken string

	Scope string

	Auth clientauth.Instruction
}

// Actions executes token endpoint grants. One Execute call per request; all
// grants authenticate the client before trusting any grant parameter.
type Actions struct {
	clients   ClientAuthenticator
	owners    OwnerAuthenticator
	tokens    TokenStore
	codes     CodeStore
	generator *Generator
	builder   *idtoken.Builder
	engine    *jose.Engine
	cfg       Configuration

	audit   *publisher.Publisher
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// NewActions wires the token endpoint pipeline.
func NewActions(
	clients ClientAuthenticator,
	owners OwnerAuthenticator,
	tokens TokenStore,
	codes CodeStore,
	generator *Generator,
	builder *idtoken.Builder,
	engine *jose.Engine,
	cfg Configuration,
	auditPub *publisher.Publisher,
	m *metrics.Metrics,
) *Actions {
	return &Actions{
		clients:   clients,
		owners:    owners,
		tokens:    tokens,
		codes:     codes,
		generator: generator,
		builder:   builder,
		engine:    engine,
		cfg:       cfg,
		audit:     auditPub,
		metrics:   m,
		tracer:    otel.Tracer("idserver/token"),
		now:       time.Now,
	}
}

// WithClock overrides the clock, for tests.
func (a *Actions) WithClock(now func() time.Time) *Actions {
	a.now = now
	return a
}

// Execute dispatches on grant_type.
func (a *Actions) Execute(ctx context.Context, req *Request) (*oauth.GrantedToken, error) {
	if req == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "token request is required")
	}

	ctx, span := a.tracer.Start(ctx, "token.Execute",
		trace.WithAttributes(attribute.String("oauth.grant_type", req.GrantType)))
	defer span.End()

	switch oauth.GrantType(req.GrantType) {
	case oauth.GrantPassword:
		return a.byOwnerCredentials(ctx, req)
	case oauth.GrantAuthorizationCode:
		return a.byAuthorizationCode(ctx, req)
	case oauth.GrantRefreshToken:
		return a.byRefreshToken(ctx, req)
	case oauth.GrantClientCredentials:
		return a.byClientCredentials(ctx, req)
	default:
		return nil, oauth.NewError(oauth.ErrInvalidRequest, "unsupported grant_type")
	}
}

// authenticateClient runs client authentication with the failure bookkeeping
// every grant shares.
func (a *Actions) authenticateClient(ctx context.Context, req *Request) (*oauth.Client, error) {
	client, err := a.clients.Authenticate(ctx, req.Auth)
	if err != nil {
		a.metrics.ClientAuthFailures.Inc()
		a.emit(ctx, audit.Event{
			ClientID: req.Auth.ClaimedClientID(),
			Action:   string(audit.EventClientAuthFailed),
			Reason:   err.Error(),
		})
		return nil, err
	}
	return client, nil
}

func (a *Actions) emit(ctx context.Context, event audit.Event) {
	if a.audit == nil {
		return
	}
	_ = a.audit.Emit(ctx, event)
}

// openidRequested reports whether the scope list asks for an id token.
func openidRequested(scope string) bool {
	for _, s := range strings.Fields(scope) {
		if s == "openid" {
			return true
		}
	}
	return false
}
