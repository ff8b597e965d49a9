package transfer

import (
	"io"
	"os"
	"path/filepath"

	"github.com/coreloop/raccess/wire"
)

// FilesystemExecutor runs one wire.FileRequest to completion and
// returns the matching wire.FileReply. Implementations must cover the
// full request taxonomy; an unrecognized request is
// wire.FileErrorInvalidRequest, never a panic.
type FilesystemExecutor interface {
	Execute(req wire.FileRequest) wire.FileReply
}

// LocalExecutor runs requests against the machine it's running on. It
// tracks at most one open download and one open upload at a time,
// mirroring the original FileWorker::Impl's single packetizer_ /
// depacketizer_ fields — the transfer engine only ever has one task
// active, so this is never a real constraint.
type LocalExecutor struct {
	download *packetizer
	upload   *depacketizer

	opts PacketOptions
}

// NewLocalExecutor returns an executor with no session in progress.
// opts controls the opportunistic per-packet compression/erasure coding
// applied to data this executor reads off disk for a download; an
// executor only ever reads or writes, so an upload session (fed by the
// peer) just reverses whatever the peer's own opts produced.
func NewLocalExecutor(opts PacketOptions) *LocalExecutor {
	return &LocalExecutor{opts: opts}
}

func (e *LocalExecutor) Execute(req wire.FileRequest) wire.FileReply {
	reply := wire.FileReply{ID: req.ID}

	switch {
	case req.DriveList != nil:
		reply.DriveList, reply.ErrorCode = e.driveList()
	case req.FileList != nil:
		reply.FileList, reply.ErrorCode = e.fileList(req.FileList.Path)
	case req.CreateDirectory != nil:
		reply.ErrorCode = e.createDirectory(req.CreateDirectory.Path)
	case req.Rename != nil:
		reply.ErrorCode = e.rename(req.Rename.OldName, req.Rename.NewName)
	case req.Remove != nil:
		reply.ErrorCode = e.remove(req.Remove.Path)
	case req.Download != nil:
		reply.ErrorCode = e.startDownload(req.Download.Path)
	case req.Upload != nil:
		reply.ErrorCode = e.startUpload(req.Upload.Path, req.Upload.Overwrite)
	case req.PacketRequest != nil:
		reply.Packet, reply.ErrorCode = e.packetRequest(req.PacketRequest.Flags)
	case req.Packet != nil:
		reply.ErrorCode = e.packet(*req.Packet)
	default:
		reply.ErrorCode = wire.FileErrorInvalidRequest
	}

	return reply
}

// driveList has no meaningful cross-platform equivalent to the
// original's Windows drive enumerator; it reports the user's home
// directory the same way the original falls back to TYPE_HOME_FOLDER,
// so a client always has at least one starting point to browse from.
func (e *LocalExecutor) driveList() (*wire.DriveList, wire.FileErrorCode) {
	list := &wire.DriveList{}

	if home, err := os.UserHomeDir(); err == nil {
		list.Items = append(list.Items, wire.DriveItem{
			Type:       wire.DriveItemHomeFolder,
			Path:       home,
			TotalSpace: -1,
			FreeSpace:  -1,
		})
	}

	if len(list.Items) == 0 {
		return list, wire.FileErrorNoDrivesFound
	}
	return list, wire.FileErrorSuccess
}

func (e *LocalExecutor) fileList(path string) (*wire.FileList, wire.FileErrorCode) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, wire.FileErrorPathNotFound
	}
	if !info.IsDir() {
		return nil, wire.FileErrorInvalidPathName
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, wire.FileErrorAccessDenied
	}

	list := &wire.FileList{}
	for _, entry := range entries {
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		list.Items = append(list.Items, wire.FileItem{
			Name:        entry.Name(),
			Size:        fi.Size(),
			ModTime:     fi.ModTime().Unix(),
			IsDirectory: entry.IsDir(),
		})
	}
	return list, wire.FileErrorSuccess
}

func (e *LocalExecutor) createDirectory(path string) wire.FileErrorCode {
	if _, err := os.Stat(path); err == nil {
		return wire.FileErrorPathAlreadyExists
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		return wire.FileErrorAccessDenied
	}
	return wire.FileErrorSuccess
}

func (e *LocalExecutor) rename(oldName, newName string) wire.FileErrorCode {
	if oldName == newName {
		return wire.FileErrorSuccess
	}
	if _, err := os.Stat(oldName); err != nil {
		return wire.FileErrorPathNotFound
	}
	if _, err := os.Stat(newName); err == nil {
		return wire.FileErrorPathAlreadyExists
	}
	if err := os.Rename(oldName, newName); err != nil {
		return wire.FileErrorAccessDenied
	}
	return wire.FileErrorSuccess
}

func (e *LocalExecutor) remove(path string) wire.FileErrorCode {
	if _, err := os.Stat(path); err != nil {
		return wire.FileErrorPathNotFound
	}
	if err := os.RemoveAll(path); err != nil {
		return wire.FileErrorAccessDenied
	}
	return wire.FileErrorSuccess
}

func (e *LocalExecutor) startDownload(path string) wire.FileErrorCode {
	p, err := newPacketizer(path, e.opts)
	if err != nil {
		return wire.FileErrorFileOpenError
	}
	e.download = p
	return wire.FileErrorSuccess
}

func (e *LocalExecutor) startUpload(path string, overwrite bool) wire.FileErrorCode {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return wire.FileErrorPathAlreadyExists
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return wire.FileErrorFileCreateError
	}

	d, err := newDepacketizer(path, overwrite)
	if err != nil {
		return wire.FileErrorFileCreateError
	}
	e.upload = d
	return wire.FileErrorSuccess
}

func (e *LocalExecutor) packetRequest(flags uint32) (*wire.FilePacket, wire.FileErrorCode) {
	if e.download == nil {
		return nil, wire.FileErrorUnknown
	}

	packet, err := e.download.next(flags&wire.FilePacketRequestFlagCancel != 0)
	if err != nil {
		e.download = nil
		return nil, wire.FileErrorFileReadError
	}
	if packet.Flags&wire.FilePacketFlagLast != 0 {
		e.download = nil
	}
	return packet, wire.FileErrorSuccess
}

func (e *LocalExecutor) packet(packet wire.FilePacket) wire.FileErrorCode {
	if e.upload == nil {
		return wire.FileErrorUnknown
	}

	data, err := readPacket(packet)
	if err != nil {
		e.upload = nil
		return wire.FileErrorFileWriteError
	}

	if err := e.upload.write(data); err != nil {
		e.upload = nil
		return wire.FileErrorFileWriteError
	}

	if packet.Flags&wire.FilePacketFlagLast != 0 {
		e.upload.close()
		e.upload = nil
	}
	return wire.FileErrorSuccess
}

// packetizer streams a source file out in kMaxFilePacketSize chunks,
// grounded on FilePacketizer::readNextPacket in the original worker.
type packetizer struct {
	file      *os.File
	remaining int64
	opts      PacketOptions
}

func newPacketizer(path string, opts PacketOptions) (*packetizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &packetizer{file: f, remaining: info.Size(), opts: opts}, nil
}

func (p *packetizer) next(cancel bool) (*wire.FilePacket, error) {
	defer func() {
		if cancel || p.remaining <= 0 {
			p.file.Close()
		}
	}()

	if cancel {
		return &wire.FilePacket{Flags: wire.FilePacketFlagLast}, nil
	}

	toRead := int64(kMaxFilePacketSize)
	if toRead > p.remaining {
		toRead = p.remaining
	}

	buf := make([]byte, toRead)
	if toRead > 0 {
		if _, err := io.ReadFull(p.file, buf); err != nil {
			return nil, err
		}
	}
	p.remaining -= toRead

	flags := uint32(wire.FilePacketFlagNone)
	if p.remaining <= 0 {
		flags = wire.FilePacketFlagLast
	}

	return buildPacket(buf, flags, p.opts)
}

// depacketizer writes inbound packets to a target file, grounded on
// FileDepacketizer::writeNextPacket.
type depacketizer struct {
	file *os.File
}

func newDepacketizer(path string, overwrite bool) (*depacketizer, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !overwrite {
		flags |= os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, err
	}
	return &depacketizer{file: f}, nil
}

func (d *depacketizer) write(data []byte) error {
	_, err := d.file.Write(data)
	return err
}

func (d *depacketizer) close() {
	_ = d.file.Close()
}
