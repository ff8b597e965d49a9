package wire

// MessageType identifies the payload carried by a Frame. Types below
// 0x40 belong to the authentication handshake; types at or above 0x40
// are exchanged once the channel is encrypted.
type MessageType uint8

const (
	MessageTypeClientHello        MessageType = 0x01
	MessageTypeServerHello        MessageType = 0x02
	MessageTypeSrpIdentify        MessageType = 0x03
	MessageTypeSrpServerKeyExch   MessageType = 0x04
	MessageTypeSrpClientKeyExch   MessageType = 0x05
	MessageTypeSessionChallenge   MessageType = 0x06
	MessageTypeSessionResponse    MessageType = 0x07
	MessageTypeSessionResult      MessageType = 0x08
	MessageTypeSessionResumeReq   MessageType = 0x09

	MessageTypeFileRequest MessageType = 0x40
	MessageTypeFileReply   MessageType = 0x41
	MessageTypeFilePacket  MessageType = 0x42
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeClientHello:
		return "CLIENT_HELLO"
	case MessageTypeServerHello:
		return "SERVER_HELLO"
	case MessageTypeSrpIdentify:
		return "SRP_IDENTIFY"
	case MessageTypeSrpServerKeyExch:
		return "SRP_SERVER_KEY_EXCHANGE"
	case MessageTypeSrpClientKeyExch:
		return "SRP_CLIENT_KEY_EXCHANGE"
	case MessageTypeSessionChallenge:
		return "SESSION_CHALLENGE"
	case MessageTypeSessionResponse:
		return "SESSION_RESPONSE"
	case MessageTypeSessionResult:
		return "SESSION_RESULT"
	case MessageTypeSessionResumeReq:
		return "SESSION_RESUME_REQUEST"
	case MessageTypeFileRequest:
		return "FILE_REQUEST"
	case MessageTypeFileReply:
		return "FILE_REPLY"
	case MessageTypeFilePacket:
		return "FILE_PACKET"
	default:
		return "UNKNOWN"
	}
}
