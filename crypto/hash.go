package crypto

import (
	"hash"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
)

// Hasher is an incremental hash: add(bytes)... finalize() -> digest.
type Hasher struct {
	h hash.Hash
}

func newHasher(h hash.Hash, err error) (*Hasher, error) {
	if err != nil {
		return nil, err
	}
	return &Hasher{h: h}, nil
}

// NewBLAKE2s256 returns an incremental BLAKE2s-256 hasher.
func NewBLAKE2s256() (*Hasher, error) {
	return newHasher(blake2s.New256(nil))
}

// NewBLAKE2b512 returns an incremental BLAKE2b-512 hasher.
func NewBLAKE2b512() (*Hasher, error) {
	return newHasher(blake2b.New512(nil))
}

// Add feeds more data into the hash state.
func (h *Hasher) Add(data []byte) *Hasher {
	h.h.Write(data)
	return h
}

// Finalize returns the digest. The hasher must not be reused afterwards.
func (h *Hasher) Finalize() []byte {
	return h.h.Sum(nil)
}

// BLAKE2s256 is a one-shot convenience wrapper equivalent to
// NewBLAKE2s256().Add(parts...).Finalize().
func BLAKE2s256(parts ...[]byte) []byte {
	h, err := NewBLAKE2s256()
	if err != nil {
		// blake2s.New256 only fails for an invalid key, and we never pass one.
		panic("crypto: blake2s256 init: " + err.Error())
	}
	for _, p := range parts {
		h.Add(p)
	}
	return h.Finalize()
}

// BLAKE2b512 is a one-shot convenience wrapper equivalent to
// NewBLAKE2b512().Add(parts...).Finalize().
func BLAKE2b512(parts ...[]byte) []byte {
	h, err := NewBLAKE2b512()
	if err != nil {
		panic("crypto: blake2b512 init: " + err.Error())
	}
	for _, p := range parts {
		h.Add(p)
	}
	return h.Finalize()
}
