package apx

import (
	"strings"
)

// Local role of a file, derived from its name extension. Distinct from the
// wire-level RmfType inside FileInfo.
type FileKind uint8

const (
	APX_UNKNOWN_FILE FileKind = iota
	APX_OUTDATA_FILE
	APX_INDATA_FILE
	APX_DEFINITION_FILE
	APX_USER_DATA_FILE
)

// FileDataHandler binds a file to the memory that backs it, typically the
// port data buffers of a NodeData instance. ReadFileData fills dest from
// the backing memory starting at offset, WriteFileData stores src at
// offset. Both are called from the same execution context as the file
// manager event sinks.
type FileDataHandler interface {
	ReadFileData(file *File, dest []byte, offset uint32) error
	WriteFileData(file *File, src []byte, offset uint32) error
}

// An addressable byte region published to or discovered from a peer.
// Address and Length are immutable once the file takes part in a
// connection. The file manager keeps borrowed references only, ownership
// stays with the embedder.
type File struct {
	fileInfo FileInfo
	kind     FileKind
	isOpen   bool
	handler  FileDataHandler
}

// NewFile creates a local file with an unassigned address. The file kind is
// derived from the name extension (.out / .in / .apx).
func NewFile(name string, length uint32, rmfType uint16) (*File, error) {
	if name == "" {
		return nil, ErrInvalidArgument
	}
	if len(name) > RMF_MAX_FILE_NAME {
		return nil, ErrNameTooLong
	}
	if length == 0 || length > APX_MAX_FILE_SIZE {
		return nil, ErrFileTooLarge
	}
	file := &File{
		fileInfo: FileInfo{
			Name:       name,
			Length:     length,
			Address:    RMF_INVALID_ADDRESS,
			RmfType:    rmfType,
			DigestType: RMF_DIGEST_TYPE_NONE,
		},
		kind: deriveFileKind(name),
	}
	return file, nil
}

func deriveFileKind(name string) FileKind {
	switch {
	case strings.HasSuffix(name, ".out"):
		return APX_OUTDATA_FILE
	case strings.HasSuffix(name, ".in"):
		return APX_INDATA_FILE
	case strings.HasSuffix(name, ".apx"):
		return APX_DEFINITION_FILE
	}
	return APX_USER_DATA_FILE
}

func (file *File) Name() string {
	return file.fileInfo.Name
}

func (file *File) Length() uint32 {
	return file.fileInfo.Length
}

func (file *File) Address() uint32 {
	return file.fileInfo.Address
}

func (file *File) Kind() FileKind {
	return file.kind
}

func (file *File) Info() FileInfo {
	return file.fileInfo
}

func (file *File) IsOpen() bool {
	return file.isOpen
}

func (file *File) Open() {
	file.isOpen = true
}

func (file *File) Close() {
	file.isOpen = false
}

// SetHandler installs the data handler that backs this file
func (file *File) SetHandler(handler FileDataHandler) {
	file.handler = handler
}

// setAddress is used by the file map when an address gets assigned and by
// the manager when a requested file is resolved by a FILE_INFO answer
func (file *File) setAddress(address uint32) {
	file.fileInfo.Address = address
}

// Read copies len(dest) bytes of file content starting at offset into dest
func (file *File) Read(dest []byte, offset uint32) error {
	if file.handler == nil {
		return ErrNullPtr
	}
	if offset+uint32(len(dest)) > file.fileInfo.Length {
		return ErrBufferBoundary
	}
	return file.handler.ReadFileData(file, dest, offset)
}

// Write stores src into the file content starting at offset
func (file *File) Write(src []byte, offset uint32) error {
	if file.handler == nil {
		return ErrNullPtr
	}
	if offset+uint32(len(src)) > file.fileInfo.Length {
		return ErrBufferBoundary
	}
	return file.handler.WriteFileData(file, src, offset)
}
