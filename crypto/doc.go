// Package crypto provides the cryptographic primitives used to authenticate
// a session and encrypt the channel that follows it.
//
// It covers three concerns:
//   - SRP-6a password verification (srp.go), including the fabricated
//     verifiers used to make unknown-user rejection indistinguishable from
//     a wrong password.
//   - X25519 key agreement (x25519.go), whose BLAKE2s-256-hashed secret
//     is the provisional session key the SRP key is folded into, and
//     HKDF-SHA256 derivation of the ticket sealing key (kdf.go).
//   - AEAD message sealing with AES-256-GCM or ChaCha20-Poly1305, selected
//     by hardware capability (aead.go, aesni.go), and the BLAKE2 hashing
//     used throughout the handshake (hash.go).
package crypto
