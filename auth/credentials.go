package auth

import (
	"sync/atomic"

	"github.com/coreloop/raccess/crypto"
)

// UserFlag is a bitmask of per-account attributes.
type UserFlag uint32

const (
	UserEnabled UserFlag = 1 << iota
)

// User is one SRP account: a username, its SRP group, salt and
// verifier, the session types it may request, and whether it is
// currently enabled.
type User struct {
	Name     string
	Group    int
	Salt     []byte
	Verifier []byte
	Sessions uint32
	Flags    UserFlag
}

// Enabled reports whether the account may authenticate.
func (u User) Enabled() bool { return u.Flags&UserEnabled != 0 }

// IsValid reports whether u names a real, loaded account rather than the
// zero value returned for an unknown username.
func (u User) IsValid() bool { return u.Name != "" && len(u.Verifier) > 0 }

// UserList is a read-only view over the account list, as seen by the
// authenticator. It is deliberately narrow: the authenticator only ever
// needs to look a username up and read the fleet-wide seed key used to
// fabricate verifiers for unknown accounts.
type UserList interface {
	Find(name string) User
	SeedKey() []byte
}

// CredentialStore is a UserList backed by an in-memory snapshot that can
// be swapped out atomically. Reads never block behind a writer: Reload
// builds the new snapshot off to the side and installs it with a single
// pointer swap, so an authenticator mid-handshake keeps using whichever
// snapshot it started with.
type CredentialStore struct {
	snapshot atomic.Pointer[credentialSnapshot]
}

type credentialSnapshot struct {
	users   map[string]User
	seedKey []byte
}

// NewCredentialStore builds a store with the given initial users. seedKey
// must be non-empty; it never leaves the process and is only used to
// derive fabricated verifiers.
func NewCredentialStore(users []User, seedKey []byte) *CredentialStore {
	cs := &CredentialStore{}
	cs.Reload(users, seedKey)
	return cs
}

// NewRandomSeedKey generates a fresh seed key suitable for a new
// CredentialStore.
func NewRandomSeedKey() ([]byte, error) {
	return crypto.RandomBytes(32)
}

// Reload atomically replaces the account list. Existing Find/SeedKey
// callers observe either the old or the new snapshot in full, never a
// mix.
func (cs *CredentialStore) Reload(users []User, seedKey []byte) {
	byName := make(map[string]User, len(users))
	for _, u := range users {
		byName[u.Name] = u
	}
	cs.snapshot.Store(&credentialSnapshot{users: byName, seedKey: seedKey})
}

// Find returns the named account, or the zero User if it does not exist.
func (cs *CredentialStore) Find(name string) User {
	snap := cs.snapshot.Load()
	if snap == nil {
		return User{}
	}
	return snap.users[name]
}

// SeedKey returns the fleet-wide key used to fabricate deterministic,
// unusable verifiers for unknown usernames.
func (cs *CredentialStore) SeedKey() []byte {
	snap := cs.snapshot.Load()
	if snap == nil {
		return nil
	}
	return snap.seedKey
}
