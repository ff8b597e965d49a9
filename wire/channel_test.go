package wire

import (
	"bytes"
	"net"
	"sync"
	"testing"
	"time"
)

type recordingListener struct {
	mu       sync.Mutex
	received []Frame
	written  []MessageType
	done     chan struct{}
}

func newRecordingListener() *recordingListener {
	return &recordingListener{done: make(chan struct{})}
}

func (l *recordingListener) OnMessageReceived(t MessageType, payload []byte) {
	l.mu.Lock()
	l.received = append(l.received, Frame{Type: t, Payload: append([]byte(nil), payload...)})
	l.mu.Unlock()
	select {
	case l.done <- struct{}{}:
	default:
	}
}

func (l *recordingListener) OnMessageWritten(t MessageType) {
	l.mu.Lock()
	l.written = append(l.written, t)
	l.mu.Unlock()
}

func (l *recordingListener) OnDisconnected(error) {}

func TestChannelSendReceivePlaintext(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	server := NewChannel(serverConn)
	listener := newRecordingListener()
	server.SetListener(listener)
	server.Resume()

	client := NewChannel(clientConn)
	client.Resume()

	if err := client.Send(MessageTypeClientHello, []byte("hello")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case <-listener.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message")
	}

	listener.mu.Lock()
	defer listener.mu.Unlock()
	if len(listener.received) != 1 {
		t.Fatalf("expected 1 received frame, got %d", len(listener.received))
	}
	if listener.received[0].Type != MessageTypeClientHello {
		t.Fatalf("unexpected message type: %v", listener.received[0].Type)
	}
	if !bytes.Equal(listener.received[0].Payload, []byte("hello")) {
		t.Fatalf("unexpected payload: %q", listener.received[0].Payload)
	}
}

func TestChannelPausedDropsMessages(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	server := NewChannel(serverConn)
	listener := newRecordingListener()
	server.SetListener(listener)
	server.Resume()
	server.Pause() // still drains the socket, just drops delivered frames

	client := NewChannel(clientConn)
	client.Resume()

	done := make(chan error, 1)
	go func() {
		done <- client.Send(MessageTypeClientHello, []byte("ignored"))
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Send: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("send should not block on a paused peer")
	}

	listener.mu.Lock()
	defer listener.mu.Unlock()
	if len(listener.received) != 0 {
		t.Fatalf("paused channel delivered %d frame(s)", len(listener.received))
	}
}
