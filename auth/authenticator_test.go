package auth

import (
	"math/big"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/coreloop/raccess/crypto"
	"github.com/coreloop/raccess/taskrunner"
	"github.com/coreloop/raccess/wire"
)

// fakeClient drives the client half of the handshake by hand, without
// depending on a real client implementation, so the server state
// machine can be exercised end to end.
type fakeClient struct {
	channel *wire.Channel

	// onServerHello, when set, runs on the channel's read goroutine as
	// ServerHello arrives and before the next frame is read, so the
	// client can install the AEAD pair the server switches to right
	// after writing ServerHello.
	onServerHello func(payload []byte)

	mu      sync.Mutex
	inbox   map[wire.MessageType]chan []byte
}

func newFakeClient(conn net.Conn) *fakeClient {
	fc := &fakeClient{
		channel: wire.NewChannel(conn),
		inbox:   make(map[wire.MessageType]chan []byte),
	}
	fc.channel.SetListener(fc)
	fc.channel.Resume()
	return fc
}

func (fc *fakeClient) OnMessageReceived(t wire.MessageType, payload []byte) {
	if t == wire.MessageTypeServerHello && fc.onServerHello != nil {
		fc.onServerHello(payload)
	}
	fc.mu.Lock()
	ch, ok := fc.inbox[t]
	if !ok {
		ch = make(chan []byte, 1)
		fc.inbox[t] = ch
	}
	fc.mu.Unlock()
	ch <- payload
}

func (fc *fakeClient) OnMessageWritten(wire.MessageType) {}
func (fc *fakeClient) OnDisconnected(error)              {}

func (fc *fakeClient) expect(t testing.TB, mt wire.MessageType) []byte {
	t.Helper()
	fc.mu.Lock()
	ch, ok := fc.inbox[mt]
	if !ok {
		ch = make(chan []byte, 1)
		fc.inbox[mt] = ch
	}
	fc.mu.Unlock()

	select {
	case payload := <-ch:
		return payload
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message type %v", mt)
		return nil
	}
}

type blockingDelegate struct {
	done chan struct{}
}

func newBlockingDelegate() *blockingDelegate {
	return &blockingDelegate{done: make(chan struct{})}
}

func (d *blockingDelegate) OnComplete() { close(d.done) }

func (d *blockingDelegate) wait(t testing.TB) {
	t.Helper()
	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("authenticator never completed")
	}
}

func newPipeAuthenticator(t testing.TB) (*ServerAuthenticator, *fakeClient, *wire.Channel) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
	})

	runner := taskrunner.New()
	t.Cleanup(runner.Stop)

	a := New(runner)
	client := newFakeClient(clientConn)
	serverChannel := wire.NewChannel(serverConn)

	return a, client, serverChannel
}

func testUser(t testing.TB, name, seed string, group *crypto.SrpGroup, sessions uint32) (User, []byte) {
	t.Helper()
	salt, err := crypto.RandomBytes(16)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	verifier := crypto.SrpCalcV(name, []byte(seed), salt, group)
	return User{
		Name:     name,
		Group:    group.ID,
		Salt:     salt,
		Verifier: verifier.Bytes(),
		Sessions: sessions,
		Flags:    UserEnabled,
	}, salt
}

// srpClientFinish drives the client side of an already-started SRP
// exchange: it reads SrpServerKeyExchange, computes A and the shared
// key, and returns the derived session key contribution plus the
// message to send back.
func srpClientFinish(t testing.TB, username, seed string, msg wire.SrpServerKeyExchange) (wire.SrpClientKeyExchange, []byte) {
	t.Helper()

	N := new(big.Int).SetBytes(msg.N)
	G := new(big.Int).SetBytes(msg.G)
	group := &crypto.SrpGroup{N: N, G: G}
	B := new(big.Int).SetBytes(msg.B)

	aBytes, err := crypto.RandomBytes(64)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	a := new(big.Int).SetBytes(aBytes)
	A := crypto.SrpCalcA(a, group)

	u := crypto.SrpCalcU(A, B, group)
	x := crypto.SrpCalcX(username, []byte(seed), msg.Salt)
	k := crypto.SrpMultiplier(group)

	clientKey := crypto.SrpCalcClientKey(B, k, x, a, u, group)

	iv, err := crypto.RandomBytes(crypto.IVSize)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}

	return wire.SrpClientKeyExchange{A: A.Bytes(), IV: iv}, clientKey.Bytes()
}

// provisionalKey computes on the client side the key a server holding
// hostPrivate derives from ClientHello: BLAKE2s-256 of the X25519 secret
// shared between the client's keypair and the host's.
func provisionalKey(t testing.TB, client crypto.X25519KeyPair, hostPrivate [32]byte) []byte {
	t.Helper()
	host := crypto.X25519KeyPairFromPrivate(hostPrivate)
	shared, err := crypto.ECDH(client.PrivateKey, host.PublicKey)
	if err != nil {
		t.Fatalf("ECDH: %v", err)
	}
	return crypto.BLAKE2s256(shared)
}

// installClientKeys mirrors the server's AEAD pair on the client: it
// seals under sealIV, the IV the server opens with, and opens under
// openIV, the IV the server seals with. Every test here offers only
// ChaCha20-Poly1305. It may run on the channel's read goroutine, so it
// reports failures with Errorf.
func installClientKeys(t testing.TB, ch *wire.Channel, key, sealIV, openIV []byte) {
	enc, err := crypto.New(crypto.SuiteChaCha20Poly1305, key, sealIV)
	if err != nil {
		t.Errorf("crypto.New (seal): %v", err)
		return
	}
	dec, err := crypto.New(crypto.SuiteChaCha20Poly1305, key, openIV)
	if err != nil {
		t.Errorf("crypto.New (open): %v", err)
		return
	}
	ch.SetEncryptor(enc)
	ch.SetDecryptor(dec)
}

// installOnServerHello makes client install the provisional AEAD pair as
// soon as ServerHello arrives, opening under the IV ServerHello carries.
func installOnServerHello(t testing.TB, client *fakeClient, key, clientIV []byte) {
	client.onServerHello = func(payload []byte) {
		var sh wire.ServerHello
		if err := wire.Unmarshal(payload, &sh); err != nil {
			t.Errorf("Unmarshal ServerHello: %v", err)
			return
		}
		installClientKeys(t, client.channel, key, clientIV, sh.IV)
	}
}

func TestAuthenticatorAnonymousSuccess(t *testing.T) {
	a, client, serverChannel := newPipeAuthenticator(t)

	var privateKey [32]byte
	copy(privateKey[:], []byte("host-persistent-private-key-3210"))
	if !a.SetPrivateKey(privateKey) {
		t.Fatalf("SetPrivateKey failed")
	}
	if !a.SetAnonymousAccess(AnonymousAccessEnable, 0b0001) {
		t.Fatalf("SetAnonymousAccess failed")
	}

	// A real client would already know the host's public key out of band
	// (e.g. distributed at pairing time); here it is derived from the
	// same private key so the client can compute the provisional session
	// key the server switches to after ServerHello.
	clientKeyPair, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	clientIV, err := crypto.RandomBytes(crypto.IVSize)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	installOnServerHello(t, client, provisionalKey(t, clientKeyPair, privateKey), clientIV)

	store := NewCredentialStore(nil, []byte("seed"))
	delegate := newBlockingDelegate()

	a.Start(serverChannel, store, delegate)

	if err := client.channel.Send(wire.MessageTypeClientHello, marshal(t, wire.ClientHello{
		Encryption: crypto.MaskChaCha20Poly1305,
		Identify:   wire.IdentifyAnonymous,
		PublicKey:  clientKeyPair.PublicKey[:],
		IV:         clientIV,
	})); err != nil {
		t.Fatalf("send ClientHello: %v", err)
	}

	client.expect(t, wire.MessageTypeServerHello)
	challenge := client.expect(t, wire.MessageTypeSessionChallenge)

	var sc wire.SessionChallenge
	if err := wire.Unmarshal(challenge, &sc); err != nil {
		t.Fatalf("Unmarshal SessionChallenge: %v", err)
	}
	if sc.SessionTypes != 0b0001 {
		t.Fatalf("unexpected session types: %b", sc.SessionTypes)
	}

	if err := client.channel.Send(wire.MessageTypeSessionResponse, marshal(t, wire.SessionResponse{
		Version:     wire.Version{Major: 1},
		SessionType: 0b0001,
	})); err != nil {
		t.Fatalf("send SessionResponse: %v", err)
	}

	delegate.wait(t)
	if a.State() != StateSuccess {
		t.Fatalf("expected StateSuccess, got %v", a.State())
	}
	if a.SessionType() != 0b0001 {
		t.Fatalf("unexpected negotiated session type: %b", a.SessionType())
	}
}

func TestAuthenticatorSrpCorrectPasswordSucceeds(t *testing.T) {
	a, client, serverChannel := newPipeAuthenticator(t)

	group, _ := crypto.SrpGroupByID(2048)
	user, _ := testUser(t, "alice", "correct horse battery staple", group, 0b0010)
	store := NewCredentialStore([]User{user}, []byte("fleet-seed"))
	delegate := newBlockingDelegate()

	a.Start(serverChannel, store, delegate)

	client.channel.Send(wire.MessageTypeClientHello, marshal(t, wire.ClientHello{
		Encryption: crypto.MaskChaCha20Poly1305,
		Identify:   wire.IdentifySRP,
	}))
	client.expect(t, wire.MessageTypeServerHello)

	client.channel.Send(wire.MessageTypeSrpIdentify, marshal(t, wire.SrpIdentify{Username: "alice"}))
	kexPayload := client.expect(t, wire.MessageTypeSrpServerKeyExch)

	var kex wire.SrpServerKeyExchange
	if err := wire.Unmarshal(kexPayload, &kex); err != nil {
		t.Fatalf("Unmarshal SrpServerKeyExchange: %v", err)
	}

	response, clientKey := srpClientFinish(t, "alice", "correct horse battery staple", kex)

	// With no host key there is no provisional key, so the session key is
	// BLAKE2s-256 of the SRP secret alone. The decryptor goes in before
	// ClientKeyExchange is sent, since the server answers with a sealed
	// SessionChallenge; the encryptor goes in after, since
	// ClientKeyExchange itself travels in the clear.
	sessionKey := crypto.BLAKE2s256(clientKey)
	dec, err := crypto.New(crypto.SuiteChaCha20Poly1305, sessionKey, kex.IV)
	if err != nil {
		t.Fatalf("crypto.New: %v", err)
	}
	client.channel.SetDecryptor(dec)
	client.channel.Send(wire.MessageTypeSrpClientKeyExch, marshal(t, response))
	enc, err := crypto.New(crypto.SuiteChaCha20Poly1305, sessionKey, response.IV)
	if err != nil {
		t.Fatalf("crypto.New: %v", err)
	}
	client.channel.SetEncryptor(enc)

	client.expect(t, wire.MessageTypeSessionChallenge)
	client.channel.Send(wire.MessageTypeSessionResponse, marshal(t, wire.SessionResponse{
		Version:     wire.Version{Major: 1},
		SessionType: 0b0010,
	}))

	delegate.wait(t)
	if a.State() != StateSuccess {
		t.Fatalf("expected StateSuccess, got %v", a.State())
	}
	if a.UserName() != "alice" {
		t.Fatalf("unexpected username: %q", a.UserName())
	}
}

func TestAuthenticatorAnonymousRejectedWhenDisabled(t *testing.T) {
	a, client, serverChannel := newPipeAuthenticator(t)

	store := NewCredentialStore(nil, []byte("seed"))
	delegate := newBlockingDelegate()

	a.Start(serverChannel, store, delegate)

	client.channel.Send(wire.MessageTypeClientHello, marshal(t, wire.ClientHello{
		Encryption: crypto.MaskChaCha20Poly1305,
		Identify:   wire.IdentifyAnonymous,
	}))

	delegate.wait(t)
	if a.State() != StateFailed {
		t.Fatalf("expected StateFailed, got %v", a.State())
	}
}

func TestAuthenticatorUnsupportedEncryptionRejected(t *testing.T) {
	a, client, serverChannel := newPipeAuthenticator(t)

	store := NewCredentialStore(nil, []byte("seed"))
	delegate := newBlockingDelegate()

	a.Start(serverChannel, store, delegate)

	client.channel.Send(wire.MessageTypeClientHello, marshal(t, wire.ClientHello{
		Encryption: 0,
		Identify:   wire.IdentifySRP,
	}))

	delegate.wait(t)
	if a.State() != StateFailed {
		t.Fatalf("expected StateFailed, got %v", a.State())
	}
}

func TestSetAnonymousAccessRequiresPrivateKey(t *testing.T) {
	a := New(taskrunner.New())
	if a.SetAnonymousAccess(AnonymousAccessEnable, 1) {
		t.Fatalf("expected failure without a private key installed")
	}
}

func TestSetAnonymousAccessRequiresSessionTypes(t *testing.T) {
	a := New(taskrunner.New())
	var key [32]byte
	a.SetPrivateKey(key)
	if a.SetAnonymousAccess(AnonymousAccessEnable, 0) {
		t.Fatalf("expected failure with zero session types")
	}
}

func TestAuthenticatorTicketIssuedAndResumed(t *testing.T) {
	var privateKey [32]byte
	copy(privateKey[:], []byte("host-persistent-private-key-3210"))

	ticketStore, err := NewTicketStore(privateKey[:], time.Hour)
	if err != nil {
		t.Fatalf("NewTicketStore: %v", err)
	}

	// First handshake: anonymous access, expect a ticket back in
	// SessionResult.
	a, client, serverChannel := newPipeAuthenticator(t)
	if !a.SetPrivateKey(privateKey) {
		t.Fatalf("SetPrivateKey failed")
	}
	if !a.SetAnonymousAccess(AnonymousAccessEnable, 0b0001) {
		t.Fatalf("SetAnonymousAccess failed")
	}
	if !a.SetTicketStore(ticketStore) {
		t.Fatalf("SetTicketStore failed")
	}

	clientKeyPair, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	clientIV, err := crypto.RandomBytes(crypto.IVSize)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	// An anonymous session's final key is its provisional key; the
	// ticket binds it, and the resumed session below folds it in.
	firstKey := provisionalKey(t, clientKeyPair, privateKey)
	installOnServerHello(t, client, firstKey, clientIV)

	store := NewCredentialStore(nil, []byte("seed"))
	delegate := newBlockingDelegate()
	a.Start(serverChannel, store, delegate)

	client.channel.Send(wire.MessageTypeClientHello, marshal(t, wire.ClientHello{
		Encryption: crypto.MaskChaCha20Poly1305,
		Identify:   wire.IdentifyAnonymous,
		PublicKey:  clientKeyPair.PublicKey[:],
		IV:         clientIV,
	}))

	client.expect(t, wire.MessageTypeServerHello)
	client.expect(t, wire.MessageTypeSessionChallenge)
	client.channel.Send(wire.MessageTypeSessionResponse, marshal(t, wire.SessionResponse{
		Version:     wire.Version{Major: 1},
		SessionType: 0b0001,
	}))

	resultPayload := client.expect(t, wire.MessageTypeSessionResult)
	delegate.wait(t)
	if a.State() != StateSuccess {
		t.Fatalf("expected StateSuccess, got %v", a.State())
	}

	var result wire.SessionResult
	if err := wire.Unmarshal(resultPayload, &result); err != nil {
		t.Fatalf("Unmarshal SessionResult: %v", err)
	}
	if !result.Success || len(result.Ticket) == 0 {
		t.Fatalf("expected a successful result carrying a resumption ticket, got %+v", result)
	}

	// Second handshake, against a fresh authenticator/channel pair
	// sharing the same ticket store, resumes using the ticket instead
	// of running SRP or re-establishing anonymous access.
	b, client2, serverChannel2 := newPipeAuthenticator(t)
	if !b.SetPrivateKey(privateKey) {
		t.Fatalf("SetPrivateKey failed")
	}
	if !b.SetTicketStore(ticketStore) {
		t.Fatalf("SetTicketStore failed")
	}

	clientKeyPair2, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	clientIV2, err := crypto.RandomBytes(crypto.IVSize)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	resumeKey := provisionalKey(t, clientKeyPair2, privateKey)
	installOnServerHello(t, client2, resumeKey, clientIV2)

	store2 := NewCredentialStore(nil, []byte("seed"))
	delegate2 := newBlockingDelegate()
	b.Start(serverChannel2, store2, delegate2)

	client2.channel.Send(wire.MessageTypeClientHello, marshal(t, wire.ClientHello{
		Encryption: crypto.MaskChaCha20Poly1305,
		Identify:   wire.IdentifyResume,
		PublicKey:  clientKeyPair2.PublicKey[:],
		IV:         clientIV2,
	}))

	hello2 := client2.expect(t, wire.MessageTypeServerHello)
	var sh2 wire.ServerHello
	if err := wire.Unmarshal(hello2, &sh2); err != nil {
		t.Fatalf("Unmarshal ServerHello: %v", err)
	}

	// SessionResumeRequest travels under the provisional key; the server
	// then folds the first session's key into it and seals everything
	// after, starting with SessionChallenge, under the result.
	resumedKey := crypto.BLAKE2s256(resumeKey, firstKey)
	dec2, err := crypto.New(crypto.SuiteChaCha20Poly1305, resumedKey, sh2.IV)
	if err != nil {
		t.Fatalf("crypto.New: %v", err)
	}
	client2.channel.SetDecryptor(dec2)
	client2.channel.Send(wire.MessageTypeSessionResumeReq, marshal(t, wire.SessionResumeRequest{
		Ticket: result.Ticket,
	}))
	enc2, err := crypto.New(crypto.SuiteChaCha20Poly1305, resumedKey, clientIV2)
	if err != nil {
		t.Fatalf("crypto.New: %v", err)
	}
	client2.channel.SetEncryptor(enc2)

	challenge := client2.expect(t, wire.MessageTypeSessionChallenge)
	var sc wire.SessionChallenge
	if err := wire.Unmarshal(challenge, &sc); err != nil {
		t.Fatalf("Unmarshal SessionChallenge: %v", err)
	}
	if sc.SessionTypes != 0b0001 {
		t.Fatalf("expected resumed session to carry the original session types, got %b", sc.SessionTypes)
	}

	client2.channel.Send(wire.MessageTypeSessionResponse, marshal(t, wire.SessionResponse{
		Version:     wire.Version{Major: 1},
		SessionType: 0b0001,
	}))

	delegate2.wait(t)
	if b.State() != StateSuccess {
		t.Fatalf("expected StateSuccess on resume, got %v", b.State())
	}

	// The ticket is single-use: resuming again with the same ticket
	// must fail.
	c, client3, serverChannel3 := newPipeAuthenticator(t)
	if !c.SetPrivateKey(privateKey) {
		t.Fatalf("SetPrivateKey failed")
	}
	if !c.SetTicketStore(ticketStore) {
		t.Fatalf("SetTicketStore failed")
	}

	clientKeyPair3, _ := crypto.GenerateX25519()
	clientIV3, _ := crypto.RandomBytes(crypto.IVSize)
	// The request is sealed properly, so the rejection comes from the
	// spent ticket and not from an unreadable frame.
	installOnServerHello(t, client3, provisionalKey(t, clientKeyPair3, privateKey), clientIV3)

	store3 := NewCredentialStore(nil, []byte("seed"))
	delegate3 := newBlockingDelegate()
	c.Start(serverChannel3, store3, delegate3)

	client3.channel.Send(wire.MessageTypeClientHello, marshal(t, wire.ClientHello{
		Encryption: crypto.MaskChaCha20Poly1305,
		Identify:   wire.IdentifyResume,
		PublicKey:  clientKeyPair3.PublicKey[:],
		IV:         clientIV3,
	}))
	client3.expect(t, wire.MessageTypeServerHello)
	client3.channel.Send(wire.MessageTypeSessionResumeReq, marshal(t, wire.SessionResumeRequest{
		Ticket: result.Ticket,
	}))

	delegate3.wait(t)
	if c.State() != StateFailed {
		t.Fatalf("expected StateFailed reusing an already-redeemed ticket, got %v", c.State())
	}
}

func marshal(t testing.TB, v interface{}) []byte {
	t.Helper()
	data, err := wire.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return data
}
