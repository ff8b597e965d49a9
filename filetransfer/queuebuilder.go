package transfer

import (
	"path"

	"github.com/coreloop/raccess/wire"
)

// Item is one entry the caller wants included in a transfer, named
// relative to the queue builder's source/target roots.
type Item struct {
	Name        string
	IsDirectory bool
}

type queueJobKind int

const (
	jobTopLevelFile queueJobKind = iota
	jobTopLevelDir
	jobListDirectory
)

type queueJob struct {
	kind      queueJobKind
	sourceDir string
	targetDir string
	name      string // set for jobTopLevel*; empty for jobListDirectory
}

// QueueBuilder walks a set of top-level items in preorder, producing a
// flat TaskList plus the summed byte size of every file task. Grounded
// on FileTransferQueueBuilder in the original client: directory items
// get an immediate directory-creation task followed by a remote
// listing to discover their children; file items discovered through a
// listing already carry a size, but top-level file items do not, so
// those get their own single-entry listing of their parent to learn
// it (the spec's "stat-like reply" — nested files skip this since the
// listing that discovered them already answered it).
type QueueBuilder struct {
	consumer *Consumer
	proxy    *ProducerProxy
	target   wire.FileTaskTarget

	pending   []queueJob
	current   queueJob
	tasks     TaskList
	totalSize int64

	callback func(wire.FileErrorCode)
	inFlight bool
}

// NewQueueBuilder builds a queue by issuing requests against target
// through consumer.
func NewQueueBuilder(consumer *Consumer, target wire.FileTaskTarget) *QueueBuilder {
	b := &QueueBuilder{consumer: consumer, target: target}
	b.proxy = NewProducerProxy(b)
	return b
}

// Start enumerates items rooted at sourcePath/targetPath. callback runs
// exactly once: with wire.FileErrorSuccess on completion, or the first
// error code that aborted the walk.
func (b *QueueBuilder) Start(sourcePath, targetPath string, items []Item, callback func(wire.FileErrorCode)) {
	b.callback = callback

	for _, item := range items {
		kind := jobTopLevelFile
		if item.IsDirectory {
			kind = jobTopLevelDir
		}
		b.pending = append(b.pending, queueJob{
			kind:      kind,
			sourceDir: sourcePath,
			targetDir: targetPath,
			name:      item.Name,
		})
	}

	b.doPendingJobs()
}

// Stop abandons the walk without invoking callback again.
func (b *QueueBuilder) Stop() {
	b.proxy.Detach()
	b.pending = nil
}

// TakeQueue hands over the built list, mirroring takeQueue()'s move
// semantics in the original: a builder is single-use.
func (b *QueueBuilder) TakeQueue() TaskList {
	taken := b.tasks
	b.tasks = TaskList{}
	return taken
}

func (b *QueueBuilder) TotalSize() int64 { return b.totalSize }

func (b *QueueBuilder) doPendingJobs() {
	if b.inFlight {
		return
	}
	if len(b.pending) == 0 {
		b.finish(wire.FileErrorSuccess)
		return
	}

	job := b.pending[0]
	b.pending = b.pending[1:]
	b.current = job

	switch job.kind {
	case jobTopLevelDir:
		sourcePath := path.Join(job.sourceDir, job.name)
		targetPath := path.Join(job.targetDir, job.name)
		b.tasks.Add(Task{SourcePath: sourcePath, TargetPath: targetPath, IsDir: true})

		b.inFlight = true
		b.current.sourceDir = sourcePath
		b.current.targetDir = targetPath
		b.current.kind = jobListDirectory
		b.consumer.DoRequest(b.proxy, b.target, wire.FileRequest{
			FileList: &wire.FileListRequest{Path: sourcePath},
		})

	case jobTopLevelFile:
		b.inFlight = true
		b.consumer.DoRequest(b.proxy, b.target, wire.FileRequest{
			FileList: &wire.FileListRequest{Path: job.sourceDir},
		})

	case jobListDirectory:
		b.inFlight = true
		b.consumer.DoRequest(b.proxy, b.target, wire.FileRequest{
			FileList: &wire.FileListRequest{Path: job.sourceDir},
		})
	}
}

// OnReply implements Producer.
func (b *QueueBuilder) OnReply(reply *PendingRequest) {
	b.inFlight = false

	if reply.Reply.ErrorCode != wire.FileErrorSuccess {
		b.finish(reply.Reply.ErrorCode)
		return
	}

	switch b.current.kind {
	case jobTopLevelFile:
		b.resolveTopLevelFileSize(reply.Reply.FileList)
	case jobListDirectory, jobTopLevelDir:
		b.expandDirectory(reply.Reply.FileList)
	}

	b.doPendingJobs()
}

func (b *QueueBuilder) resolveTopLevelFileSize(list *wire.FileList) {
	var size int64
	if list != nil {
		for _, entry := range list.Items {
			if entry.Name == b.current.name && !entry.IsDirectory {
				size = entry.Size
				break
			}
		}
	}

	sourcePath := path.Join(b.current.sourceDir, b.current.name)
	targetPath := path.Join(b.current.targetDir, b.current.name)
	b.tasks.Add(Task{SourcePath: sourcePath, TargetPath: targetPath, Size: size})
	b.totalSize += size
}

func (b *QueueBuilder) expandDirectory(list *wire.FileList) {
	if list == nil {
		return
	}

	// Preorder: children are appended after the directory's own task
	// but processed before whatever else was already pending, so a
	// deeply nested tree is walked depth-first rather than breadth-first.
	children := make([]queueJob, 0, len(list.Items))
	for _, entry := range list.Items {
		if entry.IsDirectory {
			children = append(children, queueJob{
				kind:      jobTopLevelDir,
				sourceDir: b.current.sourceDir,
				targetDir: b.current.targetDir,
				name:      entry.Name,
			})
			continue
		}

		sourcePath := path.Join(b.current.sourceDir, entry.Name)
		targetPath := path.Join(b.current.targetDir, entry.Name)
		b.tasks.Add(Task{SourcePath: sourcePath, TargetPath: targetPath, Size: entry.Size})
		b.totalSize += entry.Size
	}

	b.pending = append(children, b.pending...)
}

func (b *QueueBuilder) finish(code wire.FileErrorCode) {
	b.proxy.Detach()
	callback := b.callback
	b.callback = nil
	if callback != nil {
		callback(code)
	}
}
