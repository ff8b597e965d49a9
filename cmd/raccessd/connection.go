package main

import (
	"net"

	"github.com/coreloop/raccess/auth"
	"github.com/coreloop/raccess/filetransfer"
	"github.com/coreloop/raccess/logging"
	"github.com/coreloop/raccess/taskrunner"
	"github.com/coreloop/raccess/wire"
)

var log = logging.Get("raccessd")

// hostParams is the subset of the loaded configuration a connection
// needs to run the handshake and, once authenticated, the file
// transfer side of the protocol.
type hostParams struct {
	credentials         *auth.CredentialStore
	anonymousAccess     auth.AnonymousAccess
	sessionTypes        uint32
	privateKey          [32]byte
	hasPrivateKey       bool
	transferType        transfer.Type
	erasureDataShards   int
	erasureParityShards int
	ticketStore         *auth.TicketStore
}

// serveConnection authenticates one accepted connection and, once the
// handshake succeeds, wires the resulting encrypted channel to a file
// transfer engine acting as the passive (host) side of the protocol:
// requests the peer issues against the local filesystem are served by
// a LocalExecutor, requests this side issues are routed to the peer.
func serveConnection(conn net.Conn, params hostParams) {
	runner := taskrunner.New()

	channel := wire.NewChannel(conn)
	authenticator := auth.New(runner)

	if params.hasPrivateKey {
		authenticator.SetPrivateKey(params.privateKey)
	}
	if params.anonymousAccess == auth.AnonymousAccessEnable {
		authenticator.SetAnonymousAccess(auth.AnonymousAccessEnable, params.sessionTypes)
	}
	if params.ticketStore != nil {
		authenticator.SetTicketStore(params.ticketStore)
	}

	authenticator.Start(channel, params.credentials, &completionHandler{
		authenticator: authenticator,
		runner:        runner,
		params:        params,
	})
}

type completionHandler struct {
	authenticator *auth.ServerAuthenticator
	runner        *taskrunner.TaskRunner
	params        hostParams
}

func (h *completionHandler) OnComplete() {
	if h.authenticator.State() != auth.StateSuccess {
		h.runner.Stop()
		return
	}

	channel := h.authenticator.TakeChannel()
	log.Infof("session established with %s (session type %d)", channel.PeerAddress(), h.authenticator.SessionType())

	executor := transfer.NewLocalExecutor(transfer.PacketOptions{
		Compress:            true,
		ErasureDataShards:   h.params.erasureDataShards,
		ErasureParityShards: h.params.erasureParityShards,
	})
	consumer := transfer.NewConsumer(executor, channel)

	dispatch := &requestDispatch{channel: channel, executor: executor, consumer: consumer, runner: h.runner}
	channel.SetListener(dispatch)
	channel.Resume()

	ui := &engineLog{peer: channel.PeerAddress()}
	transfer.NewEngine(h.runner, ui, h.params.transferType, consumer)
}

// requestDispatch is the wire.Listener for an authenticated connection:
// inbound FileRequest frames are served locally, inbound FileReply
// frames are routed back to whichever Producer is waiting on them.
type requestDispatch struct {
	channel  *wire.Channel
	executor transfer.FilesystemExecutor
	consumer *transfer.Consumer
	runner   *taskrunner.TaskRunner
}

// OnMessageReceived is invoked directly from Channel's read goroutine
// (wire.Listener's contract requires implementations touching shared
// state to synchronize themselves), so the body runs on the connection's
// runner instead: d.consumer and the Engine driving it are only ever
// meant to be touched from there, same as auth.ServerAuthenticator.
func (d *requestDispatch) OnMessageReceived(t wire.MessageType, payload []byte) {
	d.runner.Post(func() {
		switch t {
		case wire.MessageTypeFileRequest:
			var req wire.FileRequest
			if err := wire.Unmarshal(payload, &req); err != nil {
				return
			}
			reply := d.executor.Execute(req)
			out, err := wire.Marshal(reply)
			if err != nil {
				return
			}
			_ = d.channel.Send(wire.MessageTypeFileReply, out)

		case wire.MessageTypeFileReply:
			d.consumer.OnFileReply(payload)
		}
	})
}

func (d *requestDispatch) OnMessageWritten(t wire.MessageType) {}

func (d *requestDispatch) OnDisconnected(err error) {
	log.Warningf("connection %s closed: %v", d.channel.PeerAddress(), err)
}

// engineLog is the minimal UI collaborator for a headless daemon: it has
// no operator to ask, so errors and progress are only logged;
// ErrorOccurred chooses no action for the error.
type engineLog struct {
	peer string
}

func (u *engineLog) Start() { log.Infof("transfer starting with %s", u.peer) }
func (u *engineLog) Stop()  { log.Infof("transfer finished with %s", u.peer) }

func (u *engineLog) SetCurrentItem(sourcePath, targetPath string) {
	log.Infof("transferring %s -> %s", sourcePath, targetPath)
}

func (u *engineLog) SetCurrentProgress(totalPercent, taskPercent int) {
	log.Debugf("progress: task %d%%, total %d%%", taskPercent, totalPercent)
}

func (u *engineLog) ErrorOccurred(err transfer.Error) {
	log.Errorf("transfer error: %v", err)
}
