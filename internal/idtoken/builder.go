package idtoken

import (
	"time"

	"idserver/internal/oauth"
)

// Configuration provides the issuer identity and token lifetime the builder
// stamps into every payload.
type Configuration interface {
	IssuerName() string
	TokenValidityPeriod() time.Duration
}

// Principal is the authenticated resource owner as seen by the token pipeline:
// a subject, its claim values, and how it authenticated.
type Principal struct {
	Subject string
	Claims  map[string]string
	AMR     []string
}

// Builder assembles id-token and userinfo payloads from an authenticated
// principal and the request's scope/claims parameters.
type Builder struct {
	cfg Configuration
}

func NewBuilder(cfg Configuration) *Builder {
	return &Builder{cfg: cfg}
}

// IDTokenPayload builds the id-token payload for a request: filtered by the
// requested individual claims when present, defaulted from scopes otherwise.
// Standard claims (iss, sub, aud, exp, iat, nonce) are always present.
func (b *Builder) IDTokenPayload(principal *Principal, param *oauth.AuthorizationParameter, now time.Time) oauth.Payload {
	var payload oauth.Payload
	if param.Claims.HasIDTokenClaims() {
		payload = b.filteredClaims(principal, requestedNames(param.Claims.IDToken))
	} else {
		payload = b.claimsForScopes(principal, param.Scopes())
	}

	payload[oauth.ClaimIssuer] = b.cfg.IssuerName()
	payload[oauth.ClaimSubject] = principal.Subject
	payload[oauth.ClaimAudience] = []string{param.ClientID}
	payload[oauth.ClaimAzp] = param.ClientID
	payload[oauth.ClaimExpiry] = now.Add(b.cfg.TokenValidityPeriod()).Unix()
	payload[oauth.ClaimIssuedAt] = now.Unix()
	payload[oauth.ClaimAuthTime] = now.Unix()
	if param.Nonce != "" {
		payload[oauth.ClaimNonce] = param.Nonce
	}
	if len(principal.AMR) > 0 {
		payload[oauth.ClaimAmr] = principal.AMR
	}
	return payload
}

// UserInfoPayload builds the userinfo payload: filtered by requested userinfo
// claims when present, defaulted from scopes otherwise. Only sub is mandatory.
func (b *Builder) UserInfoPayload(principal *Principal, param *oauth.AuthorizationParameter) oauth.Payload {
	var payload oauth.Payload
	if param.Claims.HasUserInfoClaims() {
		payload = b.filteredClaims(principal, requestedNames(param.Claims.UserInfo))
	} else {
		payload = b.claimsForScopes(principal, param.Scopes())
	}
	payload[oauth.ClaimSubject] = principal.Subject
	return payload
}

// RefreshTimestamps restamps iat/exp, used when a stored payload snapshot is
// turned into a token some time after it was captured (code exchange).
func (b *Builder) RefreshTimestamps(payload oauth.Payload, now time.Time) {
	payload[oauth.ClaimIssuedAt] = now.Unix()
	payload[oauth.ClaimExpiry] = now.Add(b.cfg.TokenValidityPeriod()).Unix()
}

func (b *Builder) claimsForScopes(principal *Principal, scopes []string) oauth.Payload {
	payload := oauth.Payload{}
	for _, scope := range scopes {
		for _, name := range oauth.ScopeClaims[scope] {
			if v, ok := principal.Claims[name]; ok {
				payload[name] = v
			}
		}
	}
	return payload
}

func (b *Builder) filteredClaims(principal *Principal, names []string) oauth.Payload {
	payload := oauth.Payload{}
	for _, name := range names {
		if v, ok := principal.Claims[name]; ok {
			payload[name] = v
		}
	}
	return payload
}

func requestedNames(requests []oauth.ClaimRequest) []string {
	names := make([]string, 0, len(requests))
	for _, r := range requests {
		names = append(names, r.Name)
	}
	return names
}
