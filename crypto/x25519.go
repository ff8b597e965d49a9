package crypto

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
)

// X25519KeyPair is a Diffie-Hellman keypair used for the optional
// key-agreement leg of the handshake: ephemeral on the client side
// (GenerateX25519), the host's persistent identity on the server side
// (X25519KeyPairFromPrivate). The hashed shared secret is the
// provisional session key that the SRP key is later folded into.
type X25519KeyPair struct {
	PublicKey  [32]byte
	PrivateKey [32]byte
}

var (
	ErrInvalidPublicKey = errors.New("crypto: invalid X25519 public key")
)

// GenerateX25519 generates a new ephemeral X25519 keypair.
func GenerateX25519() (X25519KeyPair, error) {
	var kp X25519KeyPair
	if _, err := io.ReadFull(rand.Reader, kp.PrivateKey[:]); err != nil {
		return X25519KeyPair{}, err
	}
	// Clamp private key per RFC 7748
	kp.PrivateKey[0] &= 248
	kp.PrivateKey[31] &= 127
	kp.PrivateKey[31] |= 64

	curve25519.ScalarBaseMult(&kp.PublicKey, &kp.PrivateKey)
	return kp, nil
}

// X25519KeyPairFromPrivate derives the matching public key for a stored
// private key, e.g. a host's persistent identity loaded from
// configuration. The private key is clamped in place, matching
// GenerateX25519, so a caller cannot accidentally load an unclamped
// scalar.
func X25519KeyPairFromPrivate(privateKey [32]byte) X25519KeyPair {
	kp := X25519KeyPair{PrivateKey: privateKey}
	kp.PrivateKey[0] &= 248
	kp.PrivateKey[31] &= 127
	kp.PrivateKey[31] |= 64

	curve25519.ScalarBaseMult(&kp.PublicKey, &kp.PrivateKey)
	return kp
}

// ECDH computes the shared secret using X25519. The result is raw keying
// material; the authenticator hashes it with BLAKE2s256 before using it
// as a session key, per spec.md's handshake formulas.
func ECDH(privateKey, peerPublicKey [32]byte) ([]byte, error) {
	// Check for low-order points (all zeros is invalid)
	var zero [32]byte
	if peerPublicKey == zero {
		return nil, ErrInvalidPublicKey
	}
	shared, err := curve25519.X25519(privateKey[:], peerPublicKey[:])
	if err != nil {
		return nil, err
	}
	return shared, nil
}
