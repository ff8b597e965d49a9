package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"io"
)

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ConstantTimeEqual compares two byte slices in constant time with respect
// to their contents. Unequal lengths short-circuit (length is not secret
// in any use in this package).
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
