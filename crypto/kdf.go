package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey derives a key of the specified length using HKDF-SHA256. salt
// can be nil (uses a zero salt), info provides domain separation.
func DeriveKey(secret, salt, info []byte, length int) ([]byte, error) {
	hk := hkdf.New(sha256.New, secret, salt, info)
	key := make([]byte, length)
	if _, err := io.ReadFull(hk, key); err != nil {
		return nil, err
	}
	return key, nil
}

// DeriveTicketSealKey derives the AEAD key a TicketStore seals resumption
// tickets with from the host's persistent X25519 private key: every
// raccessd instance configured with the same private key derives the
// same sealing key and can unseal tickets sealed before a restart or by
// a sibling instance. Redeeming a ticket still needs it in the issuing
// TicketStore's in-memory table. serverSecret must not be reused for
// any other derivation.
func DeriveTicketSealKey(serverSecret []byte) ([]byte, error) {
	return DeriveKey(serverSecret, nil, []byte("raccess-ticket-seal-key"), 32)
}
