package wire

import "github.com/fxamacker/cbor/v2"

// IdentifyMethod selects how the client proves its identity.
type IdentifyMethod uint8

const (
	IdentifySRP       IdentifyMethod = 1
	IdentifyAnonymous IdentifyMethod = 2
	IdentifyResume    IdentifyMethod = 3
)

// Version is exchanged during the session challenge so both ends can log
// (and, eventually, gate features on) the peer's build.
type Version struct {
	Major uint16 `cbor:"1,keyasint"`
	Minor uint16 `cbor:"2,keyasint"`
	Patch uint16 `cbor:"3,keyasint"`
}

// ClientHello is the first message sent by the client. Encryption is a
// bitmask of crypto.MaskAES256GCM / crypto.MaskChaCha20Poly1305.
// PublicKey and IV carry the client's half of the ECDH leg, whose key the
// SRP key is later folded into: a server with a private key installed
// rejects a ClientHello without them, and a server without one ignores
// them.
type ClientHello struct {
	Encryption uint32         `cbor:"1,keyasint"`
	Identify   IdentifyMethod `cbor:"2,keyasint"`
	PublicKey  []byte         `cbor:"3,keyasint,omitempty"`
	IV         []byte         `cbor:"4,keyasint,omitempty"`
}

// ServerHello answers ClientHello with the negotiated AEAD suite and,
// when the server also has a keypair installed, its own IV for the ECDH
// leg.
type ServerHello struct {
	Encryption uint32 `cbor:"1,keyasint"`
	IV         []byte `cbor:"2,keyasint,omitempty"`
}

// SrpIdentify names the account the client is authenticating as.
type SrpIdentify struct {
	Username string `cbor:"1,keyasint"`
}

// SrpServerKeyExchange carries the group parameters, salt and server
// ephemeral. N, G and B are big-endian encodings of the corresponding
// math/big values; Salt is the account's stored salt, byte for byte.
type SrpServerKeyExchange struct {
	N    []byte `cbor:"1,keyasint"`
	G    []byte `cbor:"2,keyasint"`
	Salt []byte `cbor:"3,keyasint"`
	B    []byte `cbor:"4,keyasint"`
	IV   []byte `cbor:"5,keyasint"`
}

// SrpClientKeyExchange carries the client ephemeral.
type SrpClientKeyExchange struct {
	A  []byte `cbor:"1,keyasint"`
	IV []byte `cbor:"2,keyasint"`
}

// SessionChallenge tells the client which session types it may request.
type SessionChallenge struct {
	SessionTypes uint32  `cbor:"1,keyasint"`
	Version      Version `cbor:"2,keyasint"`
}

// SessionResponse is the client's final answer: exactly one session type
// bit, plus its own version.
type SessionResponse struct {
	Version     Version `cbor:"1,keyasint"`
	SessionType uint32  `cbor:"2,keyasint"`
}

// SessionResult is sent by the server when the handshake succeeds; a
// failed handshake ends without one. It optionally carries a freshly
// issued resumption ticket (sealed by auth.TicketStore).
type SessionResult struct {
	Success bool   `cbor:"1,keyasint"`
	Reason  string `cbor:"2,keyasint,omitempty"`
	Ticket  []byte `cbor:"3,keyasint,omitempty"`
}

// SessionResumeRequest is sent by the client instead of SrpIdentify when
// ClientHello.Identify is IdentifyResume: Ticket is the sealed blob a
// prior SessionResult handed back. The session it resumes must already
// be carrying the ECDH-provisional AEAD layer (ClientHello's PublicKey
// leg), since the ticket itself travels under that layer rather than in
// the clear.
type SessionResumeRequest struct {
	Ticket []byte `cbor:"1,keyasint"`
}

// Marshal encodes a handshake message to CBOR.
func Marshal(v interface{}) ([]byte, error) {
	return cbor.Marshal(v)
}

// Unmarshal decodes a handshake message from CBOR.
func Unmarshal(data []byte, v interface{}) error {
	return cbor.Unmarshal(data, v)
}
