package transfer

import (
	"bufio"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coreloop/raccess/taskrunner"
	"github.com/coreloop/raccess/wire"
)

// replyForwarder is the wire.Listener a real connection would install:
// it hands inbound FileReply frames to the Consumer that is waiting on
// them. Used here in place of the request/reply dispatch cmd/raccessd
// wires up for a live connection.
type replyForwarder struct {
	consumer *Consumer
}

func (f *replyForwarder) OnMessageReceived(t wire.MessageType, payload []byte) {
	if t == wire.MessageTypeFileReply {
		f.consumer.OnFileReply(payload)
	}
}
func (f *replyForwarder) OnMessageWritten(wire.MessageType) {}
func (f *replyForwarder) OnDisconnected(error)              {}

// runRemotePeer services FileRequest frames arriving on conn against
// exec until conn is closed, standing in for the peer on the other end
// of the wire that a real Engine talks to.
func runRemotePeer(t *testing.T, conn net.Conn, exec FilesystemExecutor) {
	t.Helper()
	go func() {
		br := bufio.NewReader(conn)
		for {
			frame, err := wire.ReadFrame(br)
			if err != nil {
				return
			}
			var req wire.FileRequest
			if err := wire.Unmarshal(frame.Payload, &req); err != nil {
				return
			}
			reply := exec.Execute(req)
			reply.ID = req.ID
			payload, err := wire.Marshal(reply)
			if err != nil {
				return
			}
			if err := wire.WriteFrame(conn, wire.Frame{Type: wire.MessageTypeFileReply, Payload: payload}); err != nil {
				return
			}
		}
	}()
}

type collectingUI struct {
	started bool
	stopped bool
	errs    []Error
	items   [][2]string
}

func (u *collectingUI) Start() { u.started = true }
func (u *collectingUI) Stop()  { u.stopped = true }
func (u *collectingUI) SetCurrentItem(sourcePath, targetPath string) {
	u.items = append(u.items, [2]string{sourcePath, targetPath})
}
func (u *collectingUI) SetCurrentProgress(totalPercent, taskPercent int) {}
func (u *collectingUI) ErrorOccurred(err Error)                          { u.errs = append(u.errs, err) }

func TestEngineDownloadsDirectoryTree(t *testing.T) {
	remoteRoot := t.TempDir()
	localRoot := t.TempDir()

	if err := os.MkdirAll(filepath.Join(remoteRoot, "docs"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(remoteRoot, "docs", "a.txt"), []byte("hello from remote"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	localConn, remoteConn := net.Pipe()
	defer localConn.Close()
	defer remoteConn.Close()

	localExec := NewLocalExecutor(PacketOptions{})
	remoteExec := NewLocalExecutor(PacketOptions{Compress: true})
	runRemotePeer(t, remoteConn, remoteExec)

	channel := wire.NewChannel(localConn)
	consumer := NewConsumer(localExec, channel)
	channel.SetListener(&replyForwarder{consumer: consumer})
	channel.Resume()

	runner := taskrunner.New()
	defer runner.Stop()

	ui := &collectingUI{}
	engine := NewEngine(runner, ui, Downloader, consumer)

	done := make(chan struct{})
	engine.Start(remoteRoot, localRoot, []Item{{Name: "docs", IsDirectory: true}}, func() {
		close(done)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("transfer did not finish in time")
	}

	if len(ui.errs) != 0 {
		t.Fatalf("unexpected errors: %+v", ui.errs)
	}
	if !ui.started || !ui.stopped {
		t.Fatalf("UI lifecycle not fully driven: started=%v stopped=%v", ui.started, ui.stopped)
	}

	got, err := os.ReadFile(filepath.Join(localRoot, "docs", "a.txt"))
	if err != nil {
		t.Fatalf("downloaded file missing: %v", err)
	}
	if string(got) != "hello from remote" {
		t.Fatalf("downloaded content = %q", got)
	}
}

func TestEngineStopDuringQueueBuildFinishesImmediately(t *testing.T) {
	remoteRoot := t.TempDir()
	localRoot := t.TempDir()

	// The remote peer only drains frames, never replies: the FileList
	// request the queue builder issues against sourceTarget (remote,
	// for a Downloader) never completes, so the builder is still in
	// flight when Stop runs.
	localConn, remoteConn := net.Pipe()
	defer localConn.Close()
	defer remoteConn.Close()
	go func() {
		br := bufio.NewReader(remoteConn)
		for {
			if _, err := wire.ReadFrame(br); err != nil {
				return
			}
		}
	}()

	localExec := NewLocalExecutor(PacketOptions{})

	channel := wire.NewChannel(localConn)
	consumer := NewConsumer(localExec, channel)
	channel.SetListener(&replyForwarder{consumer: consumer})
	channel.Resume()

	runner := taskrunner.New()
	defer runner.Stop()

	ui := &collectingUI{}
	engine := NewEngine(runner, ui, Downloader, consumer)

	called := false
	engine.Start(remoteRoot, localRoot, []Item{{Name: "missing.txt"}}, func() {
		called = true
	})
	engine.Stop()

	if !called {
		t.Fatal("Stop during queue build should invoke finish synchronously")
	}
}
