package jose

import (
	"errors"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"

	"idserver/internal/oauth"
)

// GenerateIDToken signs a payload following the client's JOSE preferences and,
// when the client registered an encryption algorithm, wraps the JWS into a JWE
// addressed to the client's keys (nested JWT).
func (e *Engine) GenerateIDToken(client *oauth.Client, payload oauth.Payload) (string, error) {
	alg := client.IDTokenAlg()

	var compact string
	var err error
	if strings.HasPrefix(alg, "HS") {
		// Symmetric signing uses the shared client secret as the key.
		key, kerr := jwk.FromRaw([]byte(client.Secret))
		if kerr != nil {
			return "", kerr
		}
		compact, err = SignWithKey(payload, alg, key)
	} else {
		compact, err = e.Sign(payload, alg)
	}
	if err != nil {
		return "", err
	}

	if client.IDTokenEncryptedResponseAlg == "" {
		return compact, nil
	}

	encrypted, err := e.Encrypt(compact, client.IDTokenEncryptedResponseAlg, client.IDTokenEnc(), client.JSONWebKeys)
	if err != nil {
		// A client that asked for encryption but registered no usable key
		// still gets the signed token. Algorithm errors stay fatal.
		if errors.Is(err, ErrEncryptionKeyNotFound) {
			return compact, nil
		}
		return "", err
	}
	return encrypted, nil
}
