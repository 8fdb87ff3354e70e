package consent

import (
	"idserver/internal/oauth"
)

// subsetOf reports whether every member of want is present in have.
func subsetOf(want, have []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, s := range have {
		set[s] = struct{}{}
	}
	for _, s := range want {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}

// MatchByClaims finds a consent for the client whose granted claims cover every
// requested claim. The returned copy has GrantedClaims trimmed to the request.
func MatchByClaims(consents []*oauth.Consent, clientID string, requested []string) *oauth.Consent {
	for _, c := range consents {
		if c.ClientID != clientID {
			continue
		}
		if !subsetOf(requested, c.GrantedClaims) {
			continue
		}
		matched := *c
		matched.GrantedClaims = append([]string(nil), requested...)
		return &matched
	}
	return nil
}

// MatchByScopes finds a consent for the client whose granted scopes cover every
// requested scope. The returned copy has GrantedScopes trimmed to the request.
func MatchByScopes(consents []*oauth.Consent, clientID string, requested []string) *oauth.Consent {
	for _, c := range consents {
		if c.ClientID != clientID {
			continue
		}
		if !subsetOf(requested, c.GrantedScopes) {
			continue
		}
		matched := *c
		matched.GrantedScopes = append([]string(nil), requested...)
		return &matched
	}
	return nil
}
