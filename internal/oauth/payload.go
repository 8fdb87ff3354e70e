package oauth

import "encoding/json"

// Standard claim names used across id-token and userinfo payloads.
const (
	ClaimIssuer     = "iss"
	ClaimSubject    = "sub"
	ClaimAudience   = "aud"
	ClaimExpiry     = "exp"
	ClaimIssuedAt   = "iat"
	ClaimAuthTime   = "auth_time"
	ClaimNonce      = "nonce"
	ClaimAzp        = "azp"
	ClaimAmr        = "amr"
	ClaimCHash      = "c_hash"
	ClaimAtHash     = "at_hash"
	ClaimName          = "name"
	ClaimGivenName     = "given_name"
	ClaimFamilyName    = "family_name"
	ClaimEmail         = "email"
	ClaimEmailVerified = "email_verified"
	ClaimPhoneNumber   = "phone_number"
	ClaimAddress       = "address"
	ClaimRole          = "role"
)

// ScopeClaims maps each standard scope to the claims it unlocks.
var ScopeClaims = map[string][]string{
	"openid":  {ClaimSubject},
	"profile": {ClaimName, ClaimGivenName, ClaimFamilyName, ClaimRole},
	"email":   {ClaimEmail, ClaimEmailVerified},
	"phone":   {ClaimPhoneNumber},
	"address": {ClaimAddress},
}

// Payload is a claim-name to value mapping representing an id token or a
// userinfo response. Built per request; only persisted embedded inside a
// granted token or authorization code for idempotent reuse.
type Payload map[string]any

// Clone returns a shallow copy so finalization of one destination does not
// leak into another.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Subject returns the sub claim, empty when absent.
func (p Payload) Subject() string {
	s, _ := p[ClaimSubject].(string)
	return s
}

// volatileClaims are restamped or recomputed on every issuance and therefore
// carry no identity for reuse comparison.
var volatileClaims = map[string]struct{}{
	ClaimExpiry:   {},
	ClaimIssuedAt: {},
	ClaimAuthTime: {},
	ClaimCHash:    {},
	ClaimAtHash:   {},
}

// Fingerprint renders a canonical JSON form used to compare payloads for
// idempotent token reuse. Volatile claims are excluded so two requests for the
// same identity and claims match even when stamped at different times. Map
// iteration order does not matter because encoding/json sorts object keys.
func (p Payload) Fingerprint() string {
	if p == nil {
		return ""
	}
	stable := make(Payload, len(p))
	for k, v := range p {
		if _, ok := volatileClaims[k]; ok {
			continue
		}
		stable[k] = v
	}
	b, err := json.Marshal(stable)
	if err != nil {
		return ""
	}
	return string(b)
}
