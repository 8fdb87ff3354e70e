package clientauth

import (
	"errors"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// publicKeyFromSet extracts the raw public key to hand to the JWT verifier.
// With a kid the lookup is exact; without one the first signing key wins.
func publicKeyFromSet(set jwk.Set, kid string) (any, error) {
	if set == nil || set.Len() == 0 {
		return nil, errors.New("client has no registered keys")
	}

	var key jwk.Key
	if kid != "" {
		found, ok := set.LookupKeyID(kid)
		if !ok {
			return nil, errors.New("no key matches kid")
		}
		key = found
	} else {
		for i := 0; i < set.Len(); i++ {
			candidate, _ := set.Key(i)
			if ku := candidate.KeyUsage(); ku != "" && ku != "sig" {
				continue
			}
			key = candidate
			break
		}
		if key == nil {
			return nil, errors.New("no signing key registered")
		}
	}

	public, err := key.PublicKey()
	if err != nil {
		return nil, err
	}
	var raw any
	if err := public.Raw(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}
