package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
)

// equalityKey is the fixed key used for the keyed-hash equality construction.
// It is deliberately not secret: hashing both inputs with the same key yields
// fixed-length digests, so the comparison below runs in time independent of the
// input lengths and of any common prefix.
var equalityKey = []byte("agentgate.constant-time-equality.v1")

// ConstantTimeEqual compares two strings without leaking their length or the
// length of a common prefix through timing.
//
// A naive length check short-circuits and leaks length; a byte loop over the
// raw inputs leaks length through its iteration count. Instead both inputs are
// mapped to fixed-length HMAC-SHA256 digests under a fixed key and the digests
// are compared without early exit.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare(digest(a), digest(b)) == 1
}

// ConstantTimeEqualBytes is ConstantTimeEqual for byte slices.
func ConstantTimeEqualBytes(a, b []byte) bool {
	return subtle.ConstantTimeCompare(digestBytes(a), digestBytes(b)) == 1
}

func digest(s string) []byte {
	return digestBytes([]byte(s))
}

func digestBytes(b []byte) []byte {
	mac := hmac.New(sha256.New, equalityKey)
	mac.Write(b)
	return mac.Sum(nil)
}

// ConstantTimeEqualPadded is a reduced-guarantee fallback that avoids the
// keyed-hash construction. Both inputs are padded to a common length before a
// constant-time byte comparison, and the length difference is folded into the
// result so unequal lengths still compare as false. Unlike ConstantTimeEqual
// the running time still depends on max(len(a), len(b)); prefer
// ConstantTimeEqual wherever possible.
func ConstantTimeEqualPadded(a, b string) bool {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}

	paddedA := make([]byte, maxLen)
	paddedB := make([]byte, maxLen)
	copy(paddedA, a)
	copy(paddedB, b)

	result := subtle.ConstantTimeCompare(paddedA, paddedB)
	lengthsEqual := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))

	return result&lengthsEqual == 1
}
