package auth

import (
	"math/big"
	"math/bits"
	"time"

	"github.com/coreloop/raccess/crypto"
	"github.com/coreloop/raccess/logging"
	"github.com/coreloop/raccess/taskrunner"
	"github.com/coreloop/raccess/wire"
)

const authTimeout = time.Minute

var log = logging.Get("auth")

// ServerVersion is reported to the client in SessionChallenge.
var ServerVersion = wire.Version{Major: 1, Minor: 0, Patch: 0}

// State is the coarse-grained lifecycle of an authentication attempt.
type State int

const (
	StateStopped State = iota
	StatePending
	StateSuccess
	StateFailed
)

// AnonymousAccess controls whether a client may skip SRP entirely.
type AnonymousAccess int

const (
	AnonymousAccessDisable AnonymousAccess = iota
	AnonymousAccessEnable
)

type internalState int

const (
	stateReadClientHello internalState = iota
	stateSendServerHello
	stateReadIdentify
	stateSendServerKeyExchange
	stateReadClientKeyExchange
	stateReadSessionResume
	stateSendSessionChallenge
	stateReadSessionResponse
)

// Delegate is notified once the authenticator reaches a terminal state.
type Delegate interface {
	OnComplete()
}

// ServerAuthenticator drives one client through the SRP-6a (or
// anonymous) handshake to a shared session key and negotiated session
// type. It is a single-threaded state machine: every method that
// touches its fields runs on runner's goroutine, reached either directly
// (Start, SetPrivateKey, ...) or via a Post from a wire.Channel callback.
type ServerAuthenticator struct {
	runner *taskrunner.TaskRunner

	channel  *wire.Channel
	userList UserList
	delegate Delegate

	state         State
	internalState internalState

	anonymousAccess AnonymousAccess
	sessionTypes    uint32

	hasKeyPair bool
	keyPair    crypto.X25519KeyPair

	encryptIV []byte
	decryptIV []byte

	identifyMethod wire.IdentifyMethod
	suite          crypto.Suite
	sessionKey     []byte

	userName string
	group    *crypto.SrpGroup
	salt     []byte
	verifier *big.Int
	b        *big.Int
	B        *big.Int
	A        *big.Int

	peerVersion wire.Version
	sessionType uint32

	cancelTimeout func()

	ticketStore *TicketStore
}

// New creates a ServerAuthenticator that schedules its callbacks on
// runner.
func New(runner *taskrunner.TaskRunner) *ServerAuthenticator {
	return &ServerAuthenticator{runner: runner}
}

// SetPrivateKey installs the host's persistent X25519 identity, enabling
// the optional ECDH leg of the handshake. Must be called before Start.
func (a *ServerAuthenticator) SetPrivateKey(privateKey [32]byte) bool {
	if a.state != StateStopped {
		return false
	}

	a.keyPair = crypto.X25519KeyPairFromPrivate(privateKey)
	a.hasKeyPair = true

	iv, err := crypto.RandomBytes(crypto.IVSize)
	if err != nil {
		log.Error("failed to generate encryption iv")
		return false
	}
	a.encryptIV = iv
	return true
}

// SetAnonymousAccess enables or disables anonymous (no-SRP) sessions.
// Enabling requires a private key to already be installed and at least
// one session type to be offered. Must be called before Start.
func (a *ServerAuthenticator) SetAnonymousAccess(access AnonymousAccess, sessionTypes uint32) bool {
	if a.state != StateStopped {
		return false
	}

	if access == AnonymousAccessEnable {
		if !a.hasKeyPair {
			log.Error("anonymous access requires a private key")
			return false
		}
		if sessionTypes == 0 {
			log.Error("anonymous access requires at least one session type")
			return false
		}
		a.sessionTypes = sessionTypes
	} else {
		a.sessionTypes = 0
	}

	a.anonymousAccess = access
	return true
}

// SetTicketStore enables ticket-based session resumption: a client that
// presents a previously issued, unexpired ticket (IdentifyResume) skips
// the SRP exchange entirely. Requires a private key to already be
// installed, since a resumed session's ticket travels under the
// ECDH-provisional AEAD layer rather than in the clear. Must be called
// before Start.
func (a *ServerAuthenticator) SetTicketStore(store *TicketStore) bool {
	if a.state != StateStopped {
		return false
	}
	if !a.hasKeyPair {
		log.Error("ticket resumption requires a private key")
		return false
	}
	a.ticketStore = store
	return true
}

// Start begins the handshake over channel. delegate.OnComplete is called
// exactly once, when State transitions to StateSuccess or StateFailed.
func (a *ServerAuthenticator) Start(channel *wire.Channel, userList UserList, delegate Delegate) {
	if a.state != StateStopped {
		log.Error("authenticator already started")
		return
	}

	a.channel = channel
	a.userList = userList
	a.delegate = delegate
	a.state = StatePending

	if a.anonymousAccess == AnonymousAccessEnable {
		if !a.hasKeyPair || a.sessionTypes == 0 {
			a.onFailed()
			return
		}
	} else if a.sessionTypes != 0 {
		a.onFailed()
		return
	}

	a.cancelTimeout = a.runner.PostDelayed(authTimeout, func() {
		a.onFailed()
	})

	channel.SetListener(a)
	channel.Resume()

	log.Infof("authentication started for %s", channel.PeerAddress())
}

// State returns the current lifecycle state.
func (a *ServerAuthenticator) State() State { return a.state }

// SessionType returns the single negotiated session type bit. Only
// meaningful once State is StateSuccess.
func (a *ServerAuthenticator) SessionType() uint32 { return a.sessionType }

// UserName returns the authenticated username, empty for anonymous
// sessions.
func (a *ServerAuthenticator) UserName() string { return a.userName }

// PeerVersion returns the client's reported build version.
func (a *ServerAuthenticator) PeerVersion() wire.Version { return a.peerVersion }

// TakeChannel hands the now-encrypted channel to the caller. Returns nil
// unless authentication succeeded; a second call also returns nil.
func (a *ServerAuthenticator) TakeChannel() *wire.Channel {
	if a.state != StateSuccess {
		return nil
	}
	ch := a.channel
	a.channel = nil
	return ch
}

// OnMessageReceived implements wire.Listener.
func (a *ServerAuthenticator) OnMessageReceived(t wire.MessageType, payload []byte) {
	a.runner.Post(func() {
		switch a.internalState {
		case stateReadClientHello:
			a.onClientHello(payload)
		case stateReadIdentify:
			a.onIdentify(payload)
		case stateReadClientKeyExchange:
			a.onClientKeyExchange(payload)
		case stateReadSessionResume:
			a.onSessionResume(payload)
		case stateReadSessionResponse:
			a.onSessionResponse(payload)
		}
	})
}

// OnMessageWritten implements wire.Listener.
func (a *ServerAuthenticator) OnMessageWritten(t wire.MessageType) {
	a.runner.Post(func() {
		switch a.internalState {
		case stateSendServerHello:
			if len(a.sessionKey) > 0 {
				if !a.onSessionKeyChanged() {
					return
				}
			}
			switch a.identifyMethod {
			case wire.IdentifySRP:
				a.internalState = stateReadIdentify
			case wire.IdentifyAnonymous:
				a.doSessionChallenge()
			case wire.IdentifyResume:
				a.internalState = stateReadSessionResume
			}

		case stateSendServerKeyExchange:
			a.internalState = stateReadClientKeyExchange

		case stateSendSessionChallenge:
			a.internalState = stateReadSessionResponse
		}
	})
}

// OnDisconnected implements wire.Listener.
func (a *ServerAuthenticator) OnDisconnected(err error) {
	a.runner.Post(func() {
		log.Warningf("network error: %v", err)
		a.onFailed()
	})
}

func (a *ServerAuthenticator) onClientHello(payload []byte) {
	var hello wire.ClientHello
	if err := wire.Unmarshal(payload, &hello); err != nil {
		a.onFailed()
		return
	}

	if hello.Encryption&crypto.MaskAES256GCM == 0 && hello.Encryption&crypto.MaskChaCha20Poly1305 == 0 {
		a.onFailed()
		return
	}

	a.identifyMethod = hello.Identify
	switch a.identifyMethod {
	case wire.IdentifySRP:
		// SRP is always supported.
	case wire.IdentifyAnonymous:
		if a.anonymousAccess != AnonymousAccessEnable {
			a.onFailed()
			return
		}
	case wire.IdentifyResume:
		if a.ticketStore == nil {
			a.onFailed()
			return
		}
	default:
		a.onFailed()
		return
	}

	var serverHello wire.ServerHello

	if a.hasKeyPair {
		if len(hello.IV) == 0 || len(hello.PublicKey) != 32 {
			a.onFailed()
			return
		}
		a.decryptIV = hello.IV

		var peerPublic [32]byte
		copy(peerPublic[:], hello.PublicKey)

		shared, err := crypto.ECDH(a.keyPair.PrivateKey, peerPublic)
		if err != nil {
			a.onFailed()
			return
		}
		a.sessionKey = crypto.BLAKE2s256(shared)
		serverHello.IV = a.encryptIV
	}

	suite, ok := crypto.SelectSuite(hello.Encryption)
	if !ok {
		a.onFailed()
		return
	}
	a.suite = suite
	serverHello.Encryption = uint32(a.suite)

	a.internalState = stateSendServerHello
	a.send(wire.MessageTypeServerHello, serverHello)
}

func (a *ServerAuthenticator) onIdentify(payload []byte) {
	var identify wire.SrpIdentify
	if err := wire.Unmarshal(payload, &identify); err != nil || identify.Username == "" {
		a.onFailed()
		return
	}
	a.userName = identify.Username

	user := a.userList.Find(a.userName)

	var group *crypto.SrpGroup
	var salt []byte
	var verifier *big.Int

	if user.IsValid() && user.Enabled() {
		if g, ok := crypto.SrpGroupByID(user.Group); ok {
			group = g
			salt = user.Salt
			verifier = new(big.Int).SetBytes(user.Verifier)
			a.sessionTypes = user.Sessions
		} else {
			log.Errorf("user %q has an invalid SRP group %d", user.Name, user.Group)
		}
	}

	if group == nil {
		// Unknown user, disabled account, or bad group: fabricate a
		// deterministic verifier so the handshake fails identically to a
		// wrong password instead of revealing that the account does not
		// exist.
		a.sessionTypes = 0
		group, _ = crypto.SrpGroupByID(crypto.DefaultSrpGroupID)

		salt = crypto.BLAKE2b512(a.userList.SeedKey(), []byte(a.userName))
		verifier = crypto.SrpCalcV(a.userName, a.userList.SeedKey(), salt, group)
	}

	a.group, a.salt, a.verifier = group, salt, verifier

	bBytes, err := crypto.RandomBytes(128) // 1024-bit private exponent.
	if err != nil {
		a.onFailed()
		return
	}
	a.b = new(big.Int).SetBytes(bBytes)
	a.B = crypto.SrpCalcB(a.b, group, verifier)

	iv, err := crypto.RandomBytes(crypto.IVSize)
	if err != nil {
		a.onFailed()
		return
	}
	a.encryptIV = iv

	a.internalState = stateSendServerKeyExchange
	a.send(wire.MessageTypeSrpServerKeyExch, wire.SrpServerKeyExchange{
		N:    group.N.Bytes(),
		G:    group.G.Bytes(),
		Salt: salt,
		B:    a.B.Bytes(),
		IV:   iv,
	})
}

func (a *ServerAuthenticator) onClientKeyExchange(payload []byte) {
	var exchange wire.SrpClientKeyExchange
	if err := wire.Unmarshal(payload, &exchange); err != nil || len(exchange.IV) == 0 {
		a.onFailed()
		return
	}

	a.A = new(big.Int).SetBytes(exchange.A)
	a.decryptIV = exchange.IV

	srpKey, err := a.createSrpKey()
	if err != nil {
		log.Errorf("srp key exchange failed: %v", err)
		a.onFailed()
		return
	}

	switch a.suite {
	case crypto.SuiteAES256GCM, crypto.SuiteChaCha20Poly1305:
		combined := append(append([]byte(nil), a.sessionKey...), srpKey...)
		a.sessionKey = crypto.BLAKE2s256(combined)
	default:
		a.onFailed()
		return
	}

	if !a.onSessionKeyChanged() {
		return
	}

	a.internalState = stateSendSessionChallenge
	a.doSessionChallenge()
}

// onSessionResume handles a SessionResumeRequest in place of the SRP
// legs: the ticket's stored session key takes the place of the SRP
// server key, combined with the ECDH-provisional key the same way
// onClientKeyExchange combines the provisional key with srpKey. The IV
// pair established during ClientHello/SetPrivateKey is reused rather
// than rotated, since only the key material changes.
func (a *ServerAuthenticator) onSessionResume(payload []byte) {
	var req wire.SessionResumeRequest
	if err := wire.Unmarshal(payload, &req); err != nil || len(req.Ticket) == 0 {
		a.onFailed()
		return
	}

	ticket, err := a.ticketStore.Unseal(req.Ticket)
	if err != nil {
		a.onFailed()
		return
	}
	if _, err := a.ticketStore.Lookup(ticket.ID); err != nil {
		a.onFailed()
		return
	}
	a.ticketStore.Revoke(ticket.ID) // tickets are single-use

	a.userName = ticket.Username
	a.sessionTypes = ticket.SessionTypes
	a.sessionKey = crypto.BLAKE2s256(a.sessionKey, ticket.SessionKey[:])

	if !a.onSessionKeyChanged() {
		return
	}

	a.internalState = stateSendSessionChallenge
	a.doSessionChallenge()
}

func (a *ServerAuthenticator) createSrpKey() ([]byte, error) {
	if err := crypto.SrpVerifyPublicValue(a.A, a.group); err != nil {
		return nil, err
	}
	u := crypto.SrpCalcU(a.A, a.B, a.group)
	serverKey := crypto.SrpCalcServerKey(a.A, a.verifier, u, a.b, a.group)
	return serverKey.Bytes(), nil
}

func (a *ServerAuthenticator) doSessionChallenge() {
	a.internalState = stateSendSessionChallenge
	a.send(wire.MessageTypeSessionChallenge, wire.SessionChallenge{
		SessionTypes: a.sessionTypes,
		Version:      ServerVersion,
	})
}

func (a *ServerAuthenticator) onSessionResponse(payload []byte) {
	a.channel.Pause()
	a.channel.SetListener(nil)

	var response wire.SessionResponse
	if err := wire.Unmarshal(payload, &response); err != nil {
		a.onFailed()
		return
	}
	a.peerVersion = response.Version

	if bits.OnesCount32(response.SessionType) != 1 {
		a.onFailed()
		return
	}
	if a.sessionTypes&response.SessionType == 0 {
		a.onFailed()
		return
	}
	a.sessionType = response.SessionType

	log.Infof("authentication completed successfully for %s", a.channel.PeerAddress())

	result := wire.SessionResult{Success: true}
	if a.ticketStore != nil {
		if sealed, err := a.issueResumptionTicket(); err != nil {
			log.Warningf("failed to issue resumption ticket for %s: %v", a.channel.PeerAddress(), err)
		} else {
			result.Ticket = sealed
		}
	}
	if payload, err := wire.Marshal(result); err != nil {
		log.Warningf("failed to marshal session result for %s: %v", a.channel.PeerAddress(), err)
	} else if err := a.channel.Send(wire.MessageTypeSessionResult, payload); err != nil {
		log.Warningf("failed to send session result to %s: %v", a.channel.PeerAddress(), err)
	}

	if a.cancelTimeout != nil {
		a.cancelTimeout()
	}
	a.state = StateSuccess
	a.delegate.OnComplete()
}

// issueResumptionTicket mints and seals a ticket for the just-completed
// handshake, binding the resumed session to the same username, session
// types and session key the client just authenticated with. A sealed
// ticket is opaque to the client; it is only meaningful back through
// TicketStore.Unseal.
func (a *ServerAuthenticator) issueResumptionTicket() ([]byte, error) {
	ticket, err := a.ticketStore.Issue(a.userName, a.sessionTypes, a.sessionKey)
	if err != nil {
		return nil, err
	}
	return a.ticketStore.Seal(ticket)
}

func (a *ServerAuthenticator) onFailed() {
	if a.channel == nil {
		return
	}

	log.Infof("authentication failed for %s", a.channel.PeerAddress())

	if a.cancelTimeout != nil {
		a.cancelTimeout()
	}

	a.channel.SetListener(nil)
	a.channel = nil
	a.state = StateFailed
	a.delegate.OnComplete()
}

func (a *ServerAuthenticator) onSessionKeyChanged() bool {
	encryptor, err := crypto.New(a.suite, a.sessionKey, a.encryptIV)
	if err != nil {
		a.onFailed()
		return false
	}
	decryptor, err := crypto.New(a.suite, a.sessionKey, a.decryptIV)
	if err != nil {
		a.onFailed()
		return false
	}

	a.channel.SetEncryptor(encryptor)
	a.channel.SetDecryptor(decryptor)
	return true
}

func (a *ServerAuthenticator) send(t wire.MessageType, msg interface{}) {
	payload, err := wire.Marshal(msg)
	if err != nil {
		a.onFailed()
		return
	}
	if err := a.channel.Send(t, payload); err != nil {
		a.onFailed()
	}
}
