package jose

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// NewEphemeralKeys generates a fresh RSA signing and encryption key pair set.
// Meant for development and tests; production deployments load persisted keys
// so tokens survive restarts.
func NewEphemeralKeys() (jwk.Set, error) {
	set := jwk.NewSet()

	sig, err := newRSAKey("sig-1", jwk.ForSignature, jwa.RS256.String())
	if err != nil {
		return nil, err
	}
	if err := set.AddKey(sig); err != nil {
		return nil, err
	}

	enc, err := newRSAKey("enc-1", jwk.ForEncryption, jwa.RSA_OAEP.String())
	if err != nil {
		return nil, err
	}
	if err := set.AddKey(enc); err != nil {
		return nil, err
	}
	return set, nil
}

func newRSAKey(kid string, use jwk.KeyUsageType, alg string) (jwk.Key, error) {
	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key: %w", err)
	}
	key, err := jwk.FromRaw(raw)
	if err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyUsageKey, string(use)); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, alg); err != nil {
		return nil, err
	}
	return key, nil
}
