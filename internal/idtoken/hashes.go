package idtoken

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
	"strings"

	"idserver/internal/oauth"
)

// FinalizeHashes injects the c_hash and at_hash claims OIDC requires for
// hybrid flow integrity: the base64url-encoded left half of the hash of the
// issued code / access token, using the hash matching the id-token signing
// algorithm. Empty inputs leave the corresponding claim absent.
func FinalizeHashes(payload oauth.Payload, authorizationCode, accessToken, signingAlg string) error {
	if signingAlg == "" || signingAlg == "none" {
		return nil
	}
	hashFn, err := hashForAlg(signingAlg)
	if err != nil {
		return err
	}
	if authorizationCode != "" {
		payload[oauth.ClaimCHash] = leftHalfHash(hashFn, authorizationCode)
	}
	if accessToken != "" {
		payload[oauth.ClaimAtHash] = leftHalfHash(hashFn, accessToken)
	}
	return nil
}

func hashForAlg(alg string) (func() hash.Hash, error) {
	switch {
	case strings.HasSuffix(alg, "256"):
		return sha256.New, nil
	case strings.HasSuffix(alg, "384"):
		return sha512.New384, nil
	case strings.HasSuffix(alg, "512"):
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("no hash for signing alg %q", alg)
	}
}

func leftHalfHash(hashFn func() hash.Hash, value string) string {
	h := hashFn()
	h.Write([]byte(value))
	sum := h.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}
