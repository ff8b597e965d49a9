package transfer

import (
	"net"
	"testing"

	"github.com/coreloop/raccess/wire"
)

// scriptedExecutor answers FileList requests from a fixed path->listing
// map, driving QueueBuilder without a real filesystem or peer.
type scriptedExecutor struct {
	listings map[string]*wire.FileList
}

func (s *scriptedExecutor) Execute(req wire.FileRequest) wire.FileReply {
	reply := wire.FileReply{ID: req.ID}
	if req.FileList == nil {
		reply.ErrorCode = wire.FileErrorInvalidRequest
		return reply
	}
	list, ok := s.listings[req.FileList.Path]
	if !ok {
		reply.ErrorCode = wire.FileErrorPathNotFound
		return reply
	}
	reply.FileList = list
	reply.ErrorCode = wire.FileErrorSuccess
	return reply
}

func newTestConsumer(exec FilesystemExecutor) *Consumer {
	server, _ := net.Pipe()
	return NewConsumer(exec, wire.NewChannel(server))
}

func TestQueueBuilderTopLevelFile(t *testing.T) {
	exec := &scriptedExecutor{listings: map[string]*wire.FileList{
		"/src": {Items: []wire.FileItem{{Name: "report.txt", Size: 42}}},
	}}
	consumer := newTestConsumer(exec)
	builder := NewQueueBuilder(consumer, wire.FileTaskTargetLocal)

	var gotCode wire.FileErrorCode
	builder.Start("/src", "/dst", []Item{{Name: "report.txt"}}, func(code wire.FileErrorCode) {
		gotCode = code
	})

	if gotCode != wire.FileErrorSuccess {
		t.Fatalf("callback code = %v, want Success", gotCode)
	}

	queue := builder.TakeQueue()
	if queue.Len() != 1 {
		t.Fatalf("queue length = %d, want 1", queue.Len())
	}
	front := queue.Front()
	if front.SourcePath != "/src/report.txt" || front.TargetPath != "/dst/report.txt" || front.Size != 42 {
		t.Fatalf("unexpected task: %+v", front)
	}
	if builder.TotalSize() != 42 {
		t.Fatalf("TotalSize() = %d, want 42", builder.TotalSize())
	}
}

func TestQueueBuilderNestedDirectory(t *testing.T) {
	exec := &scriptedExecutor{listings: map[string]*wire.FileList{
		"/src/docs": {Items: []wire.FileItem{
			{Name: "sub", IsDirectory: true},
			{Name: "a.txt", Size: 10},
		}},
		"/src/docs/sub": {Items: []wire.FileItem{
			{Name: "b.txt", Size: 20},
		}},
	}}
	consumer := newTestConsumer(exec)
	builder := NewQueueBuilder(consumer, wire.FileTaskTargetLocal)

	var gotCode wire.FileErrorCode
	builder.Start("/src", "/dst", []Item{{Name: "docs", IsDirectory: true}}, func(code wire.FileErrorCode) {
		gotCode = code
	})

	if gotCode != wire.FileErrorSuccess {
		t.Fatalf("callback code = %v, want Success", gotCode)
	}

	queue := builder.TakeQueue()
	// docs/ (dir task) and its direct file a.txt are queued from the
	// first listing; sub/ (dir task) and its file b.txt follow once the
	// nested listing comes back.
	if queue.Len() != 4 {
		t.Fatalf("queue length = %d, want 4: %+v", queue.Len(), queue)
	}
	if builder.TotalSize() != 30 {
		t.Fatalf("TotalSize() = %d, want 30", builder.TotalSize())
	}

	first := queue.Front()
	if !first.IsDir || first.SourcePath != "/src/docs" {
		t.Fatalf("first task = %+v, want docs dir task", first)
	}
}

func TestQueueBuilderPropagatesError(t *testing.T) {
	exec := &scriptedExecutor{listings: map[string]*wire.FileList{}}
	consumer := newTestConsumer(exec)
	builder := NewQueueBuilder(consumer, wire.FileTaskTargetLocal)

	var gotCode wire.FileErrorCode
	called := false
	builder.Start("/src", "/dst", []Item{{Name: "missing.txt"}}, func(code wire.FileErrorCode) {
		called = true
		gotCode = code
	})

	if !called {
		t.Fatal("callback was not invoked")
	}
	if gotCode != wire.FileErrorPathNotFound {
		t.Fatalf("callback code = %v, want PathNotFound", gotCode)
	}
}
