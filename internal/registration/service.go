package registration

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"

	"idserver/internal/oauth"
	dErrors "idserver/pkg/domain-errors"
	"idserver/pkg/platform/audit"
	"idserver/pkg/platform/audit/publisher"
)

// Repository is the client persistence slice registration needs.
type Repository interface {
	Insert(ctx context.Context, client *oauth.Client) error
}

// Request carries the RFC 7591 client metadata the server accepts.
type Request struct {
	ClientName              string
	RedirectURIs            []string
	GrantTypes              []string
	ResponseTypes           []string
	Scope                   string
	TokenEndpointAuthMethod string
}

// Service registers relying parties at runtime. Credentials are generated
// server side; metadata the server does not implement is rejected rather than
// silently accepted.
type Service struct {
	clients Repository
	audit   *publisher.Publisher
}

func NewService(clients Repository, auditPub *publisher.Publisher) *Service {
	return &Service{clients: clients, audit: auditPub}
}

// Register validates the metadata, mints credentials and stores the client.
func (s *Service) Register(ctx context.Context, req *Request) (*oauth.Client, error) {
	if req == nil || len(req.RedirectURIs) == 0 {
		return nil, oauth.NewError(oauth.ErrInvalidRedirectURI, "at least one redirect_uri is required")
	}
	for _, uri := range req.RedirectURIs {
		if uri == "" {
			return nil, oauth.NewError(oauth.ErrInvalidRedirectURI, "redirect_uris must not contain empty entries")
		}
	}

	grants, err := parseGrantTypes(req.GrantTypes)
	if err != nil {
		return nil, err
	}
	responseTypes, err := parseResponseTypes(req.ResponseTypes)
	if err != nil {
		return nil, err
	}
	authMethod, err := parseAuthMethod(req.TokenEndpointAuthMethod)
	if err != nil {
		return nil, err
	}

	scopes := oauth.ParseScopes(req.Scope)
	if len(scopes) == 0 {
		scopes = []string{"openid"}
	}

	client := &oauth.Client{
		ID:                uuid.NewString(),
		RedirectURIs:      req.RedirectURIs,
		AllowedScopes:     scopes,
		GrantTypes:        grants,
		ResponseTypes:     responseTypes,
		TokenEndpointAuth: authMethod,
	}
	if authMethod != oauth.AuthMethodNone {
		secret, err := newClientSecret()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "client secret generation failed")
		}
		client.Secret = secret
	}

	if err := s.clients.Insert(ctx, client); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "client persistence failed")
	}

	if s.audit != nil {
		_ = s.audit.Emit(ctx, audit.Event{
			ClientID: client.ID,
			Action:   string(audit.EventClientRegistered),
			Reason:   req.ClientName,
		})
	}
	return client, nil
}

func parseGrantTypes(raw []string) ([]oauth.GrantType, error) {
	if len(raw) == 0 {
		return []oauth.GrantType{oauth.GrantAuthorizationCode}, nil
	}
	out := make([]oauth.GrantType, 0, len(raw))
	for _, gt := range raw {
		switch oauth.GrantType(gt) {
		case oauth.GrantAuthorizationCode, oauth.GrantPassword, oauth.GrantRefreshToken, oauth.GrantClientCredentials:
			out = append(out, oauth.GrantType(gt))
		default:
			return nil, oauth.NewError(oauth.ErrInvalidClientMetadata, fmt.Sprintf("unsupported grant type %q", gt))
		}
	}
	return out, nil
}

func parseResponseTypes(raw []string) ([]oauth.ResponseType, error) {
	if len(raw) == 0 {
		return []oauth.ResponseType{oauth.ResponseTypeCode}, nil
	}
	out := make([]oauth.ResponseType, 0, len(raw))
	for _, rt := range raw {
		switch oauth.ResponseType(rt) {
		case oauth.ResponseTypeCode, oauth.ResponseTypeToken, oauth.ResponseTypeIDToken:
			out = append(out, oauth.ResponseType(rt))
		default:
			return nil, oauth.NewError(oauth.ErrInvalidClientMetadata, fmt.Sprintf("unsupported response type %q", rt))
		}
	}
	return out, nil
}

func parseAuthMethod(raw string) (oauth.TokenEndpointAuthMethod, error) {
	switch oauth.TokenEndpointAuthMethod(raw) {
	case "":
		return oauth.AuthMethodSecretBasic, nil
	case oauth.AuthMethodSecretBasic, oauth.AuthMethodSecretPost, oauth.AuthMethodSecretJWT, oauth.AuthMethodPrivateKey, oauth.AuthMethodNone:
		return oauth.TokenEndpointAuthMethod(raw), nil
	default:
		return oauth.TokenEndpointAuthMethod(""), oauth.NewError(oauth.ErrInvalidClientMetadata, fmt.Sprintf("unsupported token endpoint auth method %q", raw))
	}
}

func newClientSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate client secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
