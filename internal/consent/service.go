package consent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"idserver/internal/oauth"
	dErrors "idserver/pkg/domain-errors"
)

// Service answers whether a subject has already granted what a request needs,
// and records new grants when the consent screen is approved.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// ConfirmedConsent returns the consent covering the request, or nil when the
// interactive consent screen is still required.
//
// When the request names individual userinfo claims, those drive the match;
// otherwise the requested scopes do. Either way the returned consent is
// trimmed to the requested subset.
func (s *Service) ConfirmedConsent(ctx context.Context, subject string, param *oauth.AuthorizationParameter) (*oauth.Consent, error) {
	if param == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "authorization parameter is required")
	}
	consents, err := s.store.GetConsentsForSubject(ctx, subject)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load consents")
	}
	if len(consents) == 0 {
		return nil, nil
	}

	if param.Claims.HasUserInfoClaims() {
		requested := make([]string, 0, len(param.Claims.UserInfo))
		for _, c := range param.Claims.UserInfo {
			requested = append(requested, c.Name)
		}
		return MatchByClaims(consents, param.ClientID, requested), nil
	}

	return MatchByScopes(consents, param.ClientID, param.Scopes()), nil
}

// Grant records an approved consent screen decision.
func (s *Service) Grant(ctx context.Context, subject, clientID string, scopes, claims []string) (*oauth.Consent, error) {
	record := &oauth.Consent{
		ID:            uuid.NewString(),
		Subject:       subject,
		ClientID:      clientID,
		GrantedScopes: append([]string(nil), scopes...),
		GrantedClaims: append([]string(nil), claims...),
		GrantedAt:     time.Now().UTC(),
	}
	if err := s.store.Insert(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store consent")
	}
	return record, nil
}
