package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"sync/atomic"

	"golang.org/x/crypto/chacha20poly1305"
)

// Suite identifies the negotiated AEAD algorithm.
type Suite uint8

const (
	// SuiteAES256GCM selects AES-256 in GCM mode.
	SuiteAES256GCM Suite = 1
	// SuiteChaCha20Poly1305 selects ChaCha20-Poly1305 (RFC 8439).
	SuiteChaCha20Poly1305 Suite = 2
)

const (
	// IVSize is the fixed nonce size used by both supported AEADs.
	IVSize = 12
	// TagSize is the authentication tag length appended to every sealed message.
	TagSize = 16
	// CounterSize is the width of the wire-visible nonce counter.
	CounterSize = 8
)

var (
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")
	ErrDecryptionFailed   = errors.New("crypto: decryption failed")
	ErrInvalidIVSize      = errors.New("crypto: iv must be 12 bytes")
	ErrInvalidKeySize     = errors.New("crypto: invalid key size")
	ErrUnknownSuite       = errors.New("crypto: unknown AEAD suite")
)

// AEAD wraps an authenticated cipher with the automatic per-message nonce
// management required of the channel: a fixed 12-byte IV established at
// install time, XORed with a strictly increasing 64-bit big-endian
// counter. The counter is carried on the wire so the peer can reconstruct
// the same nonce without any shared mutable state beyond the IV itself.
type AEAD struct {
	suite Suite
	aead  cipher.AEAD
	iv    [IVSize]byte
	seq   atomic.Uint64
}

// NewAES256GCM constructs an AEAD using AES-256-GCM with the given 32-byte
// key and 12-byte IV.
func NewAES256GCM(key, iv []byte) (*AEAD, error) {
	if len(key) != 32 {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return newAEAD(SuiteAES256GCM, gcm, iv)
}

// NewChaCha20Poly1305 constructs an AEAD using ChaCha20-Poly1305 with the
// given 32-byte key and 12-byte IV.
func NewChaCha20Poly1305(key, iv []byte) (*AEAD, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKeySize
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return newAEAD(SuiteChaCha20Poly1305, aead, iv)
}

// New constructs an AEAD for the given suite.
func New(suite Suite, key, iv []byte) (*AEAD, error) {
	switch suite {
	case SuiteAES256GCM:
		return NewAES256GCM(key, iv)
	case SuiteChaCha20Poly1305:
		return NewChaCha20Poly1305(key, iv)
	default:
		return nil, ErrUnknownSuite
	}
}

func newAEAD(suite Suite, aead cipher.AEAD, iv []byte) (*AEAD, error) {
	if len(iv) != IVSize {
		return nil, ErrInvalidIVSize
	}
	a := &AEAD{suite: suite, aead: aead}
	copy(a.iv[:], iv)
	return a, nil
}

// Suite returns the negotiated AEAD algorithm.
func (a *AEAD) Suite() Suite { return a.suite }

func (a *AEAD) nonceFor(counter uint64) [IVSize]byte {
	var mask [IVSize]byte
	binary.BigEndian.PutUint64(mask[IVSize-CounterSize:], counter)
	nonce := a.iv
	for i := range nonce {
		nonce[i] ^= mask[i]
	}
	return nonce
}

// Seal encrypts and authenticates plaintext under the next nonce, returning
// counter(8) || ciphertext || tag(16). The counter is never reused for the
// lifetime of this AEAD instance.
func (a *AEAD) Seal(plaintext, additionalData []byte) []byte {
	counter := a.seq.Add(1) - 1
	nonce := a.nonceFor(counter)

	out := make([]byte, CounterSize, CounterSize+len(plaintext)+a.aead.Overhead())
	binary.BigEndian.PutUint64(out, counter)
	out = a.aead.Seal(out, nonce[:], plaintext, additionalData)
	return out
}

// Open decrypts and verifies a message produced by Seal.
func (a *AEAD) Open(sealed, additionalData []byte) ([]byte, error) {
	if len(sealed) < CounterSize+a.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	counter := binary.BigEndian.Uint64(sealed[:CounterSize])
	nonce := a.nonceFor(counter)

	plaintext, err := a.aead.Open(nil, nonce[:], sealed[CounterSize:], additionalData)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// Overhead returns the total per-message overhead (counter + tag).
func (a *AEAD) Overhead() int { return CounterSize + a.aead.Overhead() }
