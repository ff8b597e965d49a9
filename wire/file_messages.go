package wire

import "github.com/google/uuid"

// FileTaskTarget identifies which side of a connection a file operation
// runs against: the local filesystem, or the remote peer over the wire.
type FileTaskTarget uint8

const (
	FileTaskTargetLocal FileTaskTarget = iota
	FileTaskTargetRemote
)

func (t FileTaskTarget) String() string {
	if t == FileTaskTargetRemote {
		return "REMOTE"
	}
	return "LOCAL"
}

// FileErrorCode is the fixed vocabulary of filesystem-facing outcomes a
// FilesystemExecutor reports back on a FileReply.
type FileErrorCode uint8

const (
	FileErrorSuccess FileErrorCode = iota
	FileErrorInvalidRequest
	FileErrorPathNotFound
	FileErrorPathAlreadyExists
	FileErrorInvalidPathName
	FileErrorNoDrivesFound
	FileErrorAccessDenied
	FileErrorFileOpenError
	FileErrorFileCreateError
	FileErrorFileReadError
	FileErrorFileWriteError
	FileErrorUnknown
)

const (
	FilePacketFlagNone uint32 = 0
	FilePacketFlagLast uint32 = 1 << 0
)

const (
	FilePacketRequestFlagNone   uint32 = 0
	FilePacketRequestFlagCancel uint32 = 1 << 0
)

type DriveListRequest struct{}

type DriveItemType uint8

const (
	DriveItemFixed DriveItemType = iota
	DriveItemCDROM
	DriveItemRemovable
	DriveItemRAM
	DriveItemRemote
	DriveItemDesktopFolder
	DriveItemHomeFolder
)

type DriveItem struct {
	Type       DriveItemType `cbor:"1,keyasint"`
	Path       string        `cbor:"2,keyasint"`
	Name       string        `cbor:"3,keyasint"`
	TotalSpace int64         `cbor:"4,keyasint"`
	FreeSpace  int64         `cbor:"5,keyasint"`
}

type DriveList struct {
	Items []DriveItem `cbor:"1,keyasint"`
}

type FileListRequest struct {
	Path string `cbor:"1,keyasint"`
}

type FileItem struct {
	Name        string `cbor:"1,keyasint"`
	Size        int64  `cbor:"2,keyasint"`
	ModTime     int64  `cbor:"3,keyasint"`
	IsDirectory bool   `cbor:"4,keyasint"`
}

type FileList struct {
	Items []FileItem `cbor:"1,keyasint"`
}

type CreateDirectoryRequest struct {
	Path string `cbor:"1,keyasint"`
}

type RenameRequest struct {
	OldName string `cbor:"1,keyasint"`
	NewName string `cbor:"2,keyasint"`
}

type RemoveRequest struct {
	Path string `cbor:"1,keyasint"`
}

type DownloadRequest struct {
	Path string `cbor:"1,keyasint"`
}

type UploadRequest struct {
	Path      string `cbor:"1,keyasint"`
	Overwrite bool   `cbor:"2,keyasint"`
}

type FilePacketRequest struct {
	Flags uint32 `cbor:"1,keyasint"`
}

// FilePacket carries one chunk of file data. The sender alone decides on
// both transforms: Compressed is set only when LZ4 made the chunk
// smaller, and ErasureShards, when non-empty, means Data has been
// replaced by a Reed-Solomon shard set. A receiver reassembles the shards
// first and then, if Compressed is set, unwraps the result with LZ4.
type FilePacket struct {
	Data           []byte   `cbor:"1,keyasint"`
	Flags          uint32   `cbor:"2,keyasint"`
	Compressed     bool     `cbor:"3,keyasint"`
	OriginalSize   int64    `cbor:"4,keyasint"`
	ErasureShards  [][]byte `cbor:"5,keyasint,omitempty"`
	ErasureParity  int      `cbor:"6,keyasint,omitempty"`
	ErasureDataLen int      `cbor:"7,keyasint,omitempty"`

	// Hash is a SHA-256 digest of the packet's original, uncompressed
	// payload, checked on the receiving side after erasure reassembly
	// and decompression have undone their own transforms.
	Hash []byte `cbor:"8,keyasint,omitempty"`
}

// FileRequest is a tagged union of every operation a FilesystemExecutor
// supports. Exactly one of the pointer fields is set. ID correlates a
// reply to the request that produced it; Target says which side of the
// connection should execute it.
type FileRequest struct {
	ID     uuid.UUID      `cbor:"1,keyasint"`
	Target FileTaskTarget `cbor:"2,keyasint"`

	DriveList       *DriveListRequest       `cbor:"10,keyasint,omitempty"`
	FileList        *FileListRequest        `cbor:"11,keyasint,omitempty"`
	CreateDirectory *CreateDirectoryRequest `cbor:"12,keyasint,omitempty"`
	Rename          *RenameRequest          `cbor:"13,keyasint,omitempty"`
	Remove          *RemoveRequest          `cbor:"14,keyasint,omitempty"`
	Download        *DownloadRequest        `cbor:"15,keyasint,omitempty"`
	Upload          *UploadRequest          `cbor:"16,keyasint,omitempty"`
	PacketRequest   *FilePacketRequest      `cbor:"17,keyasint,omitempty"`
	Packet          *FilePacket             `cbor:"18,keyasint,omitempty"`
}

// FileReply answers a FileRequest with the same ID.
type FileReply struct {
	ID        uuid.UUID     `cbor:"1,keyasint"`
	ErrorCode FileErrorCode `cbor:"2,keyasint"`

	DriveList *DriveList `cbor:"10,keyasint,omitempty"`
	FileList  *FileList  `cbor:"11,keyasint,omitempty"`
	Packet    *FilePacket `cbor:"12,keyasint,omitempty"`
}
