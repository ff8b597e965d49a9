package auth

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/coreloop/raccess/crypto"
	"github.com/google/uuid"
)

var (
	ErrTicketExpired  = errors.New("auth: ticket expired")
	ErrTicketInvalid  = errors.New("auth: ticket invalid")
	ErrTicketNotFound = errors.New("auth: ticket not found")
)

const (
	// TicketLifetime is the fallback lifetime applied when a caller
	// constructs a TicketStore with ttl <= 0 (config.Ticket.TTLSeconds
	// always resolves to a positive value via applyDefaults, so the
	// fallback only matters for callers outside cmd/raccessd, e.g.
	// tests). A resumed session still only grants the session types the
	// account held at issue time; it does not re-run the SRP exchange.
	TicketLifetime = 24 * time.Hour
)

// Ticket lets a client skip the SRP exchange on reconnect, keeping only
// the ephemeral-key and AEAD-suite negotiation. It is optional: a server
// with resumption disabled never constructs a TicketStore, and
// ServerAuthenticator rejects IdentifyResume outright when none is set.
type Ticket struct {
	ID           uuid.UUID
	IssuedAt     int64
	ExpiresAt    int64
	Username     string
	SessionTypes uint32
	SessionKey   [32]byte
}

// TicketStore issues and validates resumption tickets. Tickets are kept
// server-side, keyed by ID, and additionally sealed with an AEAD before
// being handed to the client. Any store built from the same secret can
// Unseal a ticket, but Lookup only finds tickets this store issued and
// has not revoked, so a ticket from another instance, or from before a
// restart, fails ServerAuthenticator's resume check.
type TicketStore struct {
	mu      sync.RWMutex
	tickets map[uuid.UUID]*Ticket
	sealKey [32]byte
	ttl     time.Duration
}

// NewTicketStore creates a store whose sealing key is derived from
// serverSecret via HKDF-SHA256 (crypto.DeriveTicketSealKey), rather than
// drawn at random, so every raccessd instance sharing the same
// serverSecret (in practice, the host's configured private key) can
// Unseal tickets sealed by any of the others. The ticket table itself is
// in-memory and belongs to this store alone. ttl <= 0 falls back to
// TicketLifetime.
func NewTicketStore(serverSecret []byte, ttl time.Duration) (*TicketStore, error) {
	key, err := crypto.DeriveTicketSealKey(serverSecret)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = TicketLifetime
	}
	ts := &TicketStore{tickets: make(map[uuid.UUID]*Ticket), ttl: ttl}
	copy(ts.sealKey[:], key)
	return ts, nil
}

// Issue mints a ticket for a just-completed handshake.
func (ts *TicketStore) Issue(username string, sessionTypes uint32, sessionKey []byte) (*Ticket, error) {
	if len(sessionKey) != 32 {
		return nil, errors.New("auth: session key must be 32 bytes")
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ticket := &Ticket{
		ID:           id,
		IssuedAt:     now.Unix(),
		ExpiresAt:    now.Add(ts.ttl).Unix(),
		Username:     username,
		SessionTypes: sessionTypes,
	}
	copy(ticket.SessionKey[:], sessionKey)

	ts.mu.Lock()
	ts.tickets[id] = ticket
	ts.mu.Unlock()

	return ticket, nil
}

// Lookup retrieves and validates a previously issued ticket by ID.
func (ts *TicketStore) Lookup(id uuid.UUID) (*Ticket, error) {
	ts.mu.RLock()
	ticket, ok := ts.tickets[id]
	ts.mu.RUnlock()

	if !ok {
		return nil, ErrTicketNotFound
	}
	if time.Now().Unix() > ticket.ExpiresAt {
		ts.Revoke(id)
		return nil, ErrTicketExpired
	}
	return ticket, nil
}

// Revoke invalidates a ticket, e.g. once it has been redeemed. Tickets
// are single-use.
func (ts *TicketStore) Revoke(id uuid.UUID) {
	ts.mu.Lock()
	delete(ts.tickets, id)
	ts.mu.Unlock()
}

// Cleanup drops expired tickets and returns how many were removed.
func (ts *TicketStore) Cleanup() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now().Unix()
	removed := 0
	for id, ticket := range ts.tickets {
		if now > ticket.ExpiresAt {
			delete(ts.tickets, id)
			removed++
		}
	}
	return removed
}

// Seal encrypts a ticket for wire transmission:
// id(16) || iv(12) || sealed(...). A fresh random IV is drawn for every
// call so that reissuing the store's key never repeats a nonce.
func (ts *TicketStore) Seal(ticket *Ticket) ([]byte, error) {
	plain := make([]byte, 8+8+4+32+len(ticket.Username))
	binary.BigEndian.PutUint64(plain[0:8], uint64(ticket.IssuedAt))
	binary.BigEndian.PutUint64(plain[8:16], uint64(ticket.ExpiresAt))
	binary.BigEndian.PutUint32(plain[16:20], ticket.SessionTypes)
	copy(plain[20:52], ticket.SessionKey[:])
	copy(plain[52:], ticket.Username)

	iv, err := crypto.RandomBytes(crypto.IVSize)
	if err != nil {
		return nil, err
	}
	aead, err := crypto.NewChaCha20Poly1305(ts.sealKey[:], iv)
	if err != nil {
		return nil, err
	}

	idBytes, err := ticket.ID.MarshalBinary()
	if err != nil {
		return nil, err
	}
	sealed := aead.Seal(plain, idBytes)

	out := make([]byte, 0, 16+crypto.IVSize+len(sealed))
	out = append(out, idBytes...)
	out = append(out, iv...)
	out = append(out, sealed...)
	return out, nil
}

// Unseal decrypts and validates a ticket produced by Seal. It does not
// consult the in-memory table; callers that require single-use
// semantics should also call Lookup/Revoke by the decoded ID.
func (ts *TicketStore) Unseal(data []byte) (*Ticket, error) {
	if len(data) < 16+crypto.IVSize {
		return nil, ErrTicketInvalid
	}
	var id uuid.UUID
	if err := id.UnmarshalBinary(data[:16]); err != nil {
		return nil, ErrTicketInvalid
	}
	iv := data[16 : 16+crypto.IVSize]

	aead, err := crypto.NewChaCha20Poly1305(ts.sealKey[:], iv)
	if err != nil {
		return nil, err
	}

	plain, err := aead.Open(data[16+crypto.IVSize:], data[:16])
	if err != nil {
		return nil, ErrTicketInvalid
	}
	if len(plain) < 20 {
		return nil, ErrTicketInvalid
	}

	ticket := &Ticket{ID: id}
	ticket.IssuedAt = int64(binary.BigEndian.Uint64(plain[0:8]))
	ticket.ExpiresAt = int64(binary.BigEndian.Uint64(plain[8:16]))
	ticket.SessionTypes = binary.BigEndian.Uint32(plain[16:20])
	copy(ticket.SessionKey[:], plain[20:52])
	ticket.Username = string(plain[52:])

	if time.Now().Unix() > ticket.ExpiresAt {
		return nil, ErrTicketExpired
	}
	return ticket, nil
}

// Count returns the number of tickets currently tracked.
func (ts *TicketStore) Count() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.tickets)
}
