package wire

import (
	"bufio"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/coreloop/raccess/crypto"
)

var (
	ErrChannelClosed = errors.New("wire: channel closed")
	ErrChannelPaused = errors.New("wire: channel paused")
)

// Listener receives channel events. OnMessageReceived runs on the
// channel's read goroutine and OnMessageWritten on the goroutine that
// called Send; OnDisconnected runs on whichever of the two hit the
// error. Implementations that touch shared state must synchronize
// themselves.
type Listener interface {
	OnMessageReceived(t MessageType, payload []byte)
	OnMessageWritten(t MessageType)
	OnDisconnected(err error)
}

// Channel wraps a net.Conn with framing and optional per-message AEAD
// sealing. Before the handshake installs an encryptor/decryptor, frames
// are sent and received as plain CBOR; afterwards every frame payload is
// sealed and opened transparently.
//
// A Channel starts paused: nothing is read until Resume is called, so
// a listener can be installed race-free before the first message
// arrives.
type Channel struct {
	conn net.Conn

	// reader is the single bufio.Reader for the lifetime of the
	// connection. ReadFrame is called against it on every readLoop
	// iteration so bytes a fill() pulls in past one frame's boundary
	// stay buffered for the next frame instead of being discarded.
	reader *bufio.Reader

	listenerMu sync.Mutex
	listener   Listener

	encryptor atomic.Pointer[crypto.AEAD]
	decryptor atomic.Pointer[crypto.AEAD]

	paused  atomic.Bool
	closed  atomic.Bool
	resumed chan struct{}

	writeMu sync.Mutex
}

// NewChannel wraps an established connection. The channel is paused
// until Resume is called.
func NewChannel(conn net.Conn) *Channel {
	c := &Channel{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		resumed: make(chan struct{}),
	}
	c.paused.Store(true)
	return c
}

// SetListener installs the channel's event listener.
func (c *Channel) SetListener(l Listener) {
	c.listenerMu.Lock()
	c.listener = l
	c.listenerMu.Unlock()
}

// SetEncryptor installs the AEAD used to seal outgoing frames.
func (c *Channel) SetEncryptor(a *crypto.AEAD) { c.encryptor.Store(a) }

// SetDecryptor installs the AEAD used to open incoming frames.
func (c *Channel) SetDecryptor(a *crypto.AEAD) { c.decryptor.Store(a) }

// PeerAddress returns the remote address of the underlying connection.
func (c *Channel) PeerAddress() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// Resume starts the read loop on the first call and restarts delivery
// after a Pause. Calling it while delivery is running is a no-op.
func (c *Channel) Resume() {
	if !c.paused.CompareAndSwap(true, false) {
		return
	}
	select {
	case <-c.resumed:
		// The read loop is already running; clearing paused is enough.
	default:
		close(c.resumed)
		go c.readLoop()
	}
}

// Pause stops delivering OnMessageReceived events; frames already in
// flight are read but discarded. Used once the authenticator hands the
// channel over so the next owner can install its own listener cleanly.
func (c *Channel) Pause() {
	c.paused.Store(true)
}

// Send seals payload with the installed encryptor, if there is one, then
// frames it and writes it to the connection.
func (c *Channel) Send(t MessageType, payload []byte) error {
	if c.closed.Load() {
		return ErrChannelClosed
	}

	if enc := c.encryptor.Load(); enc != nil {
		payload = enc.Seal(payload, nil)
	}

	c.writeMu.Lock()
	err := WriteFrame(c.conn, Frame{Type: t, Payload: payload})
	c.writeMu.Unlock()

	if err != nil {
		c.fail(err)
		return err
	}

	c.notifyWritten(t)
	return nil
}

func (c *Channel) readLoop() {
	for {
		frame, err := ReadFrame(c.reader)
		if err != nil {
			c.fail(err)
			return
		}

		if c.paused.Load() {
			continue
		}

		payload := frame.Payload
		if dec := c.decryptor.Load(); dec != nil {
			plain, err := dec.Open(payload, nil)
			if err != nil {
				c.fail(err)
				return
			}
			payload = plain
		}

		c.listenerMu.Lock()
		l := c.listener
		c.listenerMu.Unlock()
		if l != nil {
			l.OnMessageReceived(frame.Type, payload)
		}
	}
}

func (c *Channel) notifyWritten(t MessageType) {
	c.listenerMu.Lock()
	l := c.listener
	c.listenerMu.Unlock()
	if l != nil {
		l.OnMessageWritten(t)
	}
}

func (c *Channel) fail(err error) {
	if c.closed.Swap(true) {
		return
	}
	c.listenerMu.Lock()
	l := c.listener
	c.listenerMu.Unlock()
	if l != nil {
		l.OnDisconnected(err)
	}
}

// Close closes the underlying connection.
func (c *Channel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}
