package oauth

import "time"

// GrantedToken is an issued access token together with its refresh token and
// the payload snapshots used for idempotent reuse. Immutable once issued.
type GrantedToken struct {
	AccessToken  string
	RefreshToken string
	Scope        string
	ClientID     string
	ExpiresIn    int
	CreatedAt    time.Time

	// Payload snapshots captured at issuance. The fingerprint of these plus
	// (scope, client) identifies a reusable token.
	IDTokenPayload  Payload
	UserInfoPayload Payload

	// IDToken is the signed id token attached to the token response when the
	// grant carries one.
	IDToken string
}

// Expired reports whether the access token is past its validity window.
func (t *GrantedToken) Expired(now time.Time) bool {
	return now.After(t.CreatedAt.Add(time.Duration(t.ExpiresIn) * time.Second))
}
