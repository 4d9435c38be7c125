// Package security provides the cryptographic building blocks used by the
// authentication validators: keyed-hash computation and timing-safe string
// comparison.
package security

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // sha1 is required for webhook provider compatibility
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
)

// Supported HMAC algorithm names.
const (
	AlgSHA1   = "sha1"
	AlgSHA256 = "sha256"
	AlgSHA384 = "sha384"
	AlgSHA512 = "sha512"
)

// hashFuncFor returns the hash constructor for the given algorithm name.
func hashFuncFor(algorithm string) (func() hash.Hash, error) {
	switch algorithm {
	case AlgSHA1:
		return sha1.New, nil
	case AlgSHA256:
		return sha256.New, nil
	case AlgSHA384:
		return sha512.New384, nil
	case AlgSHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("unsupported HMAC algorithm: %s", algorithm)
	}
}

// IsSupportedAlgorithm reports whether the algorithm name is a valid HMAC
// algorithm for signature validation.
func IsSupportedAlgorithm(algorithm string) bool {
	_, err := hashFuncFor(algorithm)
	return err == nil
}

// ComputeHMAC computes the HMAC of message with the given secret and
// algorithm, returning a lowercase hex digest.
func ComputeHMAC(message, secret []byte, algorithm string) (string, error) {
	fn, err := hashFuncFor(algorithm)
	if err != nil {
		return "", err
	}

	mac := hmac.New(fn, secret)
	mac.Write(message)

	return hex.EncodeToString(mac.Sum(nil)), nil
}
