package transfer

import (
	"time"

	"github.com/coreloop/raccess/taskrunner"
	"github.com/coreloop/raccess/wire"
)

// Type is the direction of a transfer: which side already holds the
// bytes being moved.
type Type int

const (
	Downloader Type = iota
	Uploader
)

// UI is the collaborator the engine reports progress and errors to —
// the spec's UiFacade. A caller drives setAction/setActionForErrorType
// in response to ErrorOccurred, from whatever thread its own UI runs
// on, then posts back onto the engine's runner.
type UI interface {
	Start()
	Stop()
	SetCurrentItem(sourcePath, targetPath string)
	SetCurrentProgress(totalPercent, taskPercent int)
	ErrorOccurred(err Error)
}

// FinishCallback runs exactly once per transfer: on completion, abort,
// or cancellation timeout, never more than once.
type FinishCallback func()

type role struct {
	engine  *Engine
	onReply func(e *Engine, req *PendingRequest)
}

func (r role) OnReply(req *PendingRequest) { r.onReply(r.engine, req) }

const cancelWatchdog = 5 * time.Second

// Engine drives a TaskList to completion over a Consumer, grounded on
// FileTransfer from the original client: request/reply pairs replace
// callback objects, but the state machine and error-recovery rules are
// unchanged.
type Engine struct {
	runner *taskrunner.TaskRunner
	ui     UI
	typ    Type

	consumer     *Consumer
	sourceProxy  *ProducerProxy
	targetProxy  *ProducerProxy
	sourceTarget wire.FileTaskTarget
	targetTarget wire.FileTaskTarget

	queueBuilder *QueueBuilder

	tasks     TaskList
	totalSize int64

	totalTransfered int64
	taskTransfered  int64
	taskPercent     int
	totalPercent    int

	actionMemory map[ErrorType]Action
	isCanceled   bool
	cancelStop   func()

	finish FinishCallback
}

// NewEngine builds a transfer engine of the given direction, routing
// its requests through consumer.
func NewEngine(runner *taskrunner.TaskRunner, ui UI, typ Type, consumer *Consumer) *Engine {
	e := &Engine{
		runner:       runner,
		ui:           ui,
		typ:          typ,
		consumer:     consumer,
		actionMemory: make(map[ErrorType]Action),
	}

	if typ == Downloader {
		e.sourceTarget = wire.FileTaskTargetRemote
		e.targetTarget = wire.FileTaskTargetLocal
	} else {
		e.sourceTarget = wire.FileTaskTargetLocal
		e.targetTarget = wire.FileTaskTargetRemote
	}

	e.sourceProxy = NewProducerProxy(role{engine: e, onReply: (*Engine).sourceReply})
	e.targetProxy = NewProducerProxy(role{engine: e, onReply: (*Engine).targetReply})
	return e
}

// Start builds the task queue rooted at sourcePath/targetPath and, once
// built, begins driving it. finish runs exactly once.
func (e *Engine) Start(sourcePath, targetPath string, items []Item, finish FinishCallback) {
	e.finish = finish
	e.ui.Start()

	e.queueBuilder = NewQueueBuilder(e.consumer, e.sourceTarget)
	e.queueBuilder.Start(sourcePath, targetPath, items, func(code wire.FileErrorCode) {
		if code == wire.FileErrorSuccess {
			e.tasks = e.queueBuilder.TakeQueue()
			e.totalSize = e.queueBuilder.TotalSize()
			e.queueBuilder = nil

			if e.tasks.Empty() {
				e.onFinished()
			} else {
				e.doFrontTask(false)
			}
			return
		}

		e.queueBuilder = nil
		e.onError(Error{Type: ErrorQueue, Code: code})
	})
}

// Stop cancels a transfer. During queue building it finishes
// immediately; during transfer it marks canceled and finishes forcibly
// after cancelWatchdog if the peer never honors CANCEL.
func (e *Engine) Stop() {
	if e.queueBuilder != nil {
		e.queueBuilder.Stop()
		e.queueBuilder = nil
		e.onFinished()
		return
	}

	e.isCanceled = true
	e.cancelStop = e.runner.PostDelayed(cancelWatchdog, func() { e.onFinished() })
}

// SetActionForErrorType memoizes a decision so future errors of this
// type resolve without asking the UI again.
func (e *Engine) SetActionForErrorType(errType ErrorType, action Action) {
	e.actionMemory[errType] = action
}

// SetAction applies a UI decision for the error currently blocking the
// front task.
func (e *Engine) SetAction(errType ErrorType, action Action) {
	switch action {
	case ActionAbort:
		e.onFinished()

	case ActionReplace, ActionReplaceAll:
		if action == ActionReplaceAll {
			e.SetActionForErrorType(errType, action)
		}
		e.doFrontTask(true)

	case ActionSkip, ActionSkipAll:
		if action == ActionSkipAll {
			e.SetActionForErrorType(errType, action)
		}
		e.doNextTask()
	}
}

func (e *Engine) doFrontTask(overwrite bool) {
	e.taskPercent = 0
	e.taskTransfered = 0

	front := e.tasks.Front()
	front.SetOverwrite(overwrite)

	e.ui.SetCurrentItem(front.SourcePath, front.TargetPath)

	if front.IsDir {
		e.consumer.DoRequest(e.targetProxy, e.targetTarget, wire.FileRequest{
			CreateDirectory: &wire.CreateDirectoryRequest{Path: front.TargetPath},
		})
		return
	}

	e.consumer.DoRequest(e.sourceProxy, e.sourceTarget, wire.FileRequest{
		Download: &wire.DownloadRequest{Path: front.SourcePath},
	})
}

func (e *Engine) doNextTask() {
	if e.isCanceled {
		e.tasks.Clear()
	} else if !e.tasks.Empty() {
		e.tasks.PopFront()
	}

	if e.tasks.Empty() {
		if e.cancelStop != nil {
			e.cancelStop()
			e.cancelStop = nil
		}
		e.onFinished()
		return
	}

	e.doFrontTask(false)
}

// sourceReply handles replies to requests issued against the source
// side: download and packet_request.
func (e *Engine) sourceReply(req *PendingRequest) {
	if e.tasks.Empty() {
		return
	}

	switch {
	case req.Request.Download != nil:
		if req.Reply.ErrorCode != wire.FileErrorSuccess {
			e.onError(Error{Type: ErrorOpenFile, Code: req.Reply.ErrorCode, Path: e.tasks.Front().SourcePath})
			return
		}
		front := e.tasks.Front()
		e.consumer.DoRequest(e.targetProxy, e.targetTarget, wire.FileRequest{
			Upload: &wire.UploadRequest{Path: front.TargetPath, Overwrite: front.Overwrite()},
		})

	case req.Request.PacketRequest != nil:
		if req.Reply.ErrorCode != wire.FileErrorSuccess {
			e.onError(Error{Type: ErrorReadFile, Code: req.Reply.ErrorCode, Path: e.tasks.Front().SourcePath})
			return
		}
		e.consumer.DoRequest(e.targetProxy, e.targetTarget, wire.FileRequest{
			Packet: req.Reply.Packet,
		})

	default:
		e.onError(Error{Type: ErrorOther, Code: wire.FileErrorUnknown})
	}
}

// targetReply handles replies to requests issued against the target
// side: create_directory, upload, and packet.
func (e *Engine) targetReply(req *PendingRequest) {
	if e.tasks.Empty() {
		return
	}

	switch {
	case req.Request.CreateDirectory != nil:
		if req.Reply.ErrorCode == wire.FileErrorSuccess || req.Reply.ErrorCode == wire.FileErrorPathAlreadyExists {
			e.doNextTask()
			return
		}
		e.onError(Error{Type: ErrorCreateDirectory, Code: req.Reply.ErrorCode, Path: e.tasks.Front().TargetPath})

	case req.Request.Upload != nil:
		if req.Reply.ErrorCode != wire.FileErrorSuccess {
			errType := ErrorCreateFile
			if req.Reply.ErrorCode == wire.FileErrorPathAlreadyExists {
				errType = ErrorAlreadyExists
			}
			e.onError(Error{Type: errType, Code: req.Reply.ErrorCode, Path: e.tasks.Front().TargetPath})
			return
		}
		e.consumer.DoRequest(e.sourceProxy, e.sourceTarget, wire.FileRequest{
			PacketRequest: &wire.FilePacketRequest{Flags: wire.FilePacketRequestFlagNone},
		})

	case req.Request.Packet != nil:
		if req.Reply.ErrorCode != wire.FileErrorSuccess {
			e.onError(Error{Type: ErrorWriteFile, Code: req.Reply.ErrorCode, Path: e.tasks.Front().TargetPath})
			return
		}

		e.accountProgress(req.Request.Packet)

		if req.Request.Packet.Flags&wire.FilePacketFlagLast != 0 {
			e.doNextTask()
			return
		}

		flags := wire.FilePacketRequestFlagNone
		if e.isCanceled {
			flags = wire.FilePacketRequestFlagCancel
		}
		e.consumer.DoRequest(e.sourceProxy, e.sourceTarget, wire.FileRequest{
			PacketRequest: &wire.FilePacketRequest{Flags: flags},
		})

	default:
		e.onError(Error{Type: ErrorOther, Code: wire.FileErrorUnknown})
	}
}

// accountProgress advances task/total progress by one packet's worth
// of bytes and reports it to the UI only when a displayed percentage
// actually changes, matching §4.F's rule against redundant updates.
func (e *Engine) accountProgress(sent *wire.FilePacket) {
	fullTaskSize := e.tasks.Front().Size
	if fullTaskSize == 0 || e.totalSize == 0 {
		return
	}

	packetSize := int64(kMaxFilePacketSize)
	if remaining := fullTaskSize - e.taskTransfered; packetSize > remaining {
		packetSize = remaining
	}

	e.taskTransfered += packetSize
	e.totalTransfered += packetSize

	taskPct := int(e.taskTransfered * 100 / fullTaskSize)
	totalPct := int(e.totalTransfered * 100 / e.totalSize)

	if taskPct != e.taskPercent || totalPct != e.totalPercent {
		e.taskPercent = taskPct
		e.totalPercent = totalPct
		e.ui.SetCurrentProgress(e.totalPercent, e.taskPercent)
	}
}

func (e *Engine) onError(err Error) {
	if action, ok := e.actionMemory[err.Type]; ok {
		e.SetAction(err.Type, action)
		return
	}
	e.ui.ErrorOccurred(err)
}

func (e *Engine) onFinished() {
	callback := e.finish
	e.finish = nil
	if callback == nil {
		return
	}

	e.sourceProxy.Detach()
	e.targetProxy.Detach()
	e.ui.Stop()
	callback()
}
