package jose

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwe"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"

	"idserver/internal/oauth"
)

// Errors the engine reports. Callers translate these into protocol or domain
// errors at their own boundary.
var (
	ErrUnsupportedAlgorithm  = errors.New("unsupported algorithm")
	ErrSigningKeyNotFound    = errors.New("signing key not found")
	ErrEncryptionKeyNotFound = errors.New("encryption key not found")
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrInvalidToken          = errors.New("invalid token")
)

var signatureAlgs = map[string]jwa.SignatureAlgorithm{
	"HS256": jwa.HS256, "HS384": jwa.HS384, "HS512": jwa.HS512,
	"RS256": jwa.RS256, "RS384": jwa.RS384, "RS512": jwa.RS512,
	"PS256": jwa.PS256, "PS384": jwa.PS384, "PS512": jwa.PS512,
	"ES256": jwa.ES256, "ES384": jwa.ES384, "ES512": jwa.ES512,
}

var keyEncryptionAlgs = map[string]jwa.KeyEncryptionAlgorithm{
	"RSA1_5":   jwa.RSA1_5,
	"RSA-OAEP": jwa.RSA_OAEP,
	"A128KW":   jwa.A128KW,
	"A256KW":   jwa.A256KW,
}

var contentEncryptionAlgs = map[string]jwa.ContentEncryptionAlgorithm{
	"A128CBC-HS256": jwa.A128CBC_HS256,
	"A256CBC-HS512": jwa.A256CBC_HS512,
	"A128GCM":       jwa.A128GCM,
	"A256GCM":       jwa.A256GCM,
}

// SignatureAlgorithm resolves a JWS alg name, reporting support.
func SignatureAlgorithm(name string) (jwa.SignatureAlgorithm, bool) {
	alg, ok := signatureAlgs[name]
	return alg, ok
}

// Engine performs JWS signing/verification and JWE encryption/decryption over
// JSON payloads. Pure transforms over key material; safe for concurrent use.
type Engine struct {
	keys jwk.Set
}

// NewEngine builds an engine over the server's private key set. Keys carry a
// `use` of "sig" or "enc" and are selected by algorithm family.
func NewEngine(keys jwk.Set) *Engine {
	return &Engine{keys: keys}
}

// PublicKeys returns the public halves of the server key set for the JWKS
// endpoint.
func (e *Engine) PublicKeys() (jwk.Set, error) {
	return jwk.PublicSetOf(e.keys)
}

// Sign serializes the payload to JSON and produces a compact JWS using the
// server signing key matching the algorithm family.
func (e *Engine) Sign(payload oauth.Payload, alg string) (string, error) {
	key, err := e.lookupKey(alg, "sig")
	if err != nil {
		return "", err
	}
	return SignWithKey(payload, alg, key)
}

// SignWithKey signs a payload with an explicit key, used when the signing key
// belongs to a client (symmetric HS* algorithms) rather than the server.
func SignWithKey(payload oauth.Payload, alg string, key jwk.Key) (string, error) {
	sigAlg, ok := signatureAlgs[alg]
	if !ok {
		return "", fmt.Errorf("jws alg %q: %w", alg, ErrUnsupportedAlgorithm)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	signed, err := jws.Sign(data, jws.WithKey(sigAlg, key))
	if err != nil {
		return "", fmt.Errorf("sign payload: %w", err)
	}
	return string(signed), nil
}

// Verify checks a compact JWS against the given public key set and returns the
// decoded payload.
func (e *Engine) Verify(compact string, alg string, keys jwk.Set) (oauth.Payload, error) {
	sigAlg, ok := signatureAlgs[alg]
	if !ok {
		return nil, fmt.Errorf("jws alg %q: %w", alg, ErrUnsupportedAlgorithm)
	}
	for i := 0; i < keys.Len(); i++ {
		key, _ := keys.Key(i)
		raw, err := jws.Verify([]byte(compact), jws.WithKey(sigAlg, key))
		if err != nil {
			continue
		}
		var payload oauth.Payload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", ErrInvalidToken)
		}
		return payload, nil
	}
	return nil, ErrInvalidSignature
}

// VerifyOwn checks a compact JWS against the server's own public keys.
func (e *Engine) VerifyOwn(compact string, alg string) (oauth.Payload, error) {
	pub, err := e.PublicKeys()
	if err != nil {
		return nil, err
	}
	return e.Verify(compact, alg, pub)
}

// Encrypt wraps serialized content (typically a compact JWS, producing a
// nested JWT) in a compact JWE addressed to the recipient key set.
func (e *Engine) Encrypt(content string, alg, enc string, recipients jwk.Set) (string, error) {
	keyAlg, ok := keyEncryptionAlgs[alg]
	if !ok {
		return "", fmt.Errorf("jwe alg %q: %w", alg, ErrUnsupportedAlgorithm)
	}
	encAlg, ok := contentEncryptionAlgs[enc]
	if !ok {
		return "", fmt.Errorf("jwe enc %q: %w", enc, ErrUnsupportedAlgorithm)
	}
	key, err := lookupInSet(recipients, keyTypeForKeyAlg(keyAlg), "enc")
	if err != nil {
		return "", err
	}
	ciphertext, err := jwe.Encrypt([]byte(content), jwe.WithKey(keyAlg, key), jwe.WithContentEncryption(encAlg))
	if err != nil {
		return "", fmt.Errorf("encrypt content: %w", err)
	}
	return string(ciphertext), nil
}

// Decrypt undoes Encrypt using the server's private encryption keys.
func (e *Engine) Decrypt(compact string, alg string) (string, error) {
	keyAlg, ok := keyEncryptionAlgs[alg]
	if !ok {
		return "", fmt.Errorf("jwe alg %q: %w", alg, ErrUnsupportedAlgorithm)
	}
	key, err := lookupInSet(e.keys, keyTypeForKeyAlg(keyAlg), "enc")
	if err != nil {
		return "", err
	}
	plaintext, err := jwe.Decrypt([]byte(compact), jwe.WithKey(keyAlg, key))
	if err != nil {
		return "", fmt.Errorf("%v: %w", err, ErrInvalidToken)
	}
	return string(plaintext), nil
}

// DecodePayload extracts the unverified payload of a compact JWS. Used where
// the payload feeds a lookup and verification happens separately.
func DecodePayload(compact string) (oauth.Payload, error) {
	msg, err := jws.Parse([]byte(compact))
	if err != nil {
		return nil, fmt.Errorf("parse jws: %w", ErrInvalidToken)
	}
	var payload oauth.Payload
	if err := json.Unmarshal(msg.Payload(), &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", ErrInvalidToken)
	}
	return payload, nil
}

func (e *Engine) lookupKey(alg string, use string) (jwk.Key, error) {
	sigAlg, ok := signatureAlgs[alg]
	if !ok {
		return nil, fmt.Errorf("jws alg %q: %w", alg, ErrUnsupportedAlgorithm)
	}
	return lookupInSet(e.keys, keyTypeForSigAlg(sigAlg), use)
}

func lookupInSet(set jwk.Set, kty jwa.KeyType, use string) (jwk.Key, error) {
	if set == nil {
		return nil, errForUse(use)
	}
	for i := 0; i < set.Len(); i++ {
		key, _ := set.Key(i)
		if key.KeyType() != kty {
			continue
		}
		if ku := key.KeyUsage(); ku != "" && ku != use {
			continue
		}
		return key, nil
	}
	return nil, errForUse(use)
}

func errForUse(use string) error {
	if use == "enc" {
		return ErrEncryptionKeyNotFound
	}
	return ErrSigningKeyNotFound
}

func keyTypeForSigAlg(alg jwa.SignatureAlgorithm) jwa.KeyType {
	switch alg {
	case jwa.HS256, jwa.HS384, jwa.HS512:
		return jwa.OctetSeq
	case jwa.ES256, jwa.ES384, jwa.ES512:
		return jwa.EC
	default:
		return jwa.RSA
	}
}

func keyTypeForKeyAlg(alg jwa.KeyEncryptionAlgorithm) jwa.KeyType {
	switch alg {
	case jwa.A128KW, jwa.A256KW:
		return jwa.OctetSeq
	default:
		return jwa.RSA
	}
}
