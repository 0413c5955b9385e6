package apx

import (
	"bytes"
	"encoding/binary"
)

// Remote file protocol ("rmf") framing and command codec.
//
// A message is a header followed by payload. The header comes in two forms
// selected by the destination address: a 2 byte form for addresses below
// RMF_DATA_LOW_MAX_ADDR and a 4 byte form for everything up to
// RMF_CMD_END_ADDR (data up to RMF_DATA_HIGH_MAX_ADDR, then the command
// channel). Both are big-endian. The top bit of the first
// byte selects the form, the next bit is the more-bit which signals that
// another fragment of the same logical write follows.
//
// Command messages are ordinary messages addressed to RMF_CMD_START_ADDR.
// Integers inside command payloads are little-endian, header addresses are
// big-endian. The asymmetry is part of the wire format.

const (
	RMF_LOW_ADDRESS_SIZE  = 2
	RMF_HIGH_ADDRESS_SIZE = 4

	RMF_DATA_LOW_MAX_ADDR  uint32 = 0x4000
	RMF_DATA_HIGH_MIN_ADDR uint32 = 0x4000
	RMF_DATA_HIGH_MAX_ADDR uint32 = 0x3FFFFBFF
	RMF_CMD_START_ADDR     uint32 = 0x3FFFFC00
	RMF_CMD_END_ADDR       uint32 = 0x3FFFFFFF
	RMF_INVALID_ADDRESS    uint32 = 0xFFFFFFFF

	RMF_MORE_BIT      uint8 = 0x40
	RMF_HIGH_ADDR_BIT uint8 = 0x80
)

// Command identifiers carried as the first u32 of a command payload
const (
	RMF_CMD_FILE_INFO uint32 = 1
	RMF_CMD_FILE_OPEN uint32 = 2
)

const (
	RMF_CMD_TYPE_LEN = 4
	// address + length + fileType + digestType + digest
	RMF_FILE_INFO_RECORD_SIZE   = 4 + 4 + 2 + 2 + RMF_DIGEST_SIZE
	RMF_CMD_FILE_INFO_BASE_SIZE = RMF_CMD_TYPE_LEN + RMF_FILE_INFO_RECORD_SIZE
	RMF_CMD_FILE_OPEN_LEN       = RMF_CMD_TYPE_LEN + 4
)

const RMF_DIGEST_SIZE = 24

// File types announced in FILE_INFO
const (
	RMF_FILE_TYPE_FIXED   uint16 = 0
	RMF_FILE_TYPE_DYNAMIC uint16 = 1
)

// Digest types announced in FILE_INFO
const (
	RMF_DIGEST_TYPE_NONE uint16 = 0
	RMF_DIGEST_TYPE_SHA1 uint16 = 1
)

// A single parsed message off the wire
type RemoteFileMsg struct {
	Address uint32
	Data    []byte
	MoreBit bool
}

// Static attributes of a file as exchanged in FILE_INFO commands
type FileInfo struct {
	Name       string
	Length     uint32
	Address    uint32
	RmfType    uint16
	DigestType uint16
	DigestData [RMF_DIGEST_SIZE]byte
}

// FILE_OPEN command payload
type CmdOpenFile struct {
	Address uint32
}

// HeaderLen returns the header size the given address encodes with
func HeaderLen(address uint32) int {
	if address < RMF_DATA_LOW_MAX_ADDR {
		return RMF_LOW_ADDRESS_SIZE
	}
	return RMF_HIGH_ADDRESS_SIZE
}

// PackHeader writes a message header for address at the start of buf and
// returns the number of bytes written
func PackHeader(buf []byte, address uint32, moreBit bool) (int, error) {
	if address < RMF_DATA_LOW_MAX_ADDR {
		if len(buf) < RMF_LOW_ADDRESS_SIZE {
			return 0, ErrBufferBoundary
		}
		value := uint16(address)
		if moreBit {
			value |= uint16(RMF_MORE_BIT) << 8
		}
		binary.BigEndian.PutUint16(buf, value)
		return RMF_LOW_ADDRESS_SIZE, nil
	}
	if address > RMF_CMD_END_ADDR {
		return 0, ErrPack
	}
	if len(buf) < RMF_HIGH_ADDRESS_SIZE {
		return 0, ErrBufferBoundary
	}
	value := address | uint32(RMF_HIGH_ADDR_BIT)<<24
	if moreBit {
		value |= uint32(RMF_MORE_BIT) << 24
	}
	binary.BigEndian.PutUint32(buf, value)
	return RMF_HIGH_ADDRESS_SIZE, nil
}

// UnpackMsg parses one message. Data references the tail of buf, no copy is
// made.
func UnpackMsg(buf []byte) (RemoteFileMsg, error) {
	var msg RemoteFileMsg
	if len(buf) < RMF_LOW_ADDRESS_SIZE {
		return msg, ErrUnpack
	}
	if buf[0]&RMF_HIGH_ADDR_BIT != 0 {
		if len(buf) < RMF_HIGH_ADDRESS_SIZE {
			return msg, ErrUnpack
		}
		value := binary.BigEndian.Uint32(buf)
		msg.Address = value & 0x3FFFFFFF
		msg.MoreBit = buf[0]&RMF_MORE_BIT != 0
		msg.Data = buf[RMF_HIGH_ADDRESS_SIZE:]
	} else {
		value := binary.BigEndian.Uint16(buf)
		msg.Address = uint32(value & 0x3FFF)
		msg.MoreBit = buf[0]&RMF_MORE_BIT != 0
		msg.Data = buf[RMF_LOW_ADDRESS_SIZE:]
	}
	return msg, nil
}

// DeserializeCmdType reads the command code of a command payload
func DeserializeCmdType(buf []byte) (uint32, error) {
	if len(buf) < RMF_CMD_TYPE_LEN {
		return 0, ErrUnpack
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// SerializeFileInfo writes a full FILE_INFO command payload (command code,
// record, NUL terminated name) and returns bytes written
func SerializeFileInfo(buf []byte, info *FileInfo) (int, error) {
	if info == nil {
		return 0, ErrNullPtr
	}
	if len(info.Name) > RMF_MAX_FILE_NAME {
		return 0, ErrNameTooLong
	}
	total := RMF_CMD_FILE_INFO_BASE_SIZE + len(info.Name) + 1
	if len(buf) < total {
		return 0, ErrBufferBoundary
	}
	binary.LittleEndian.PutUint32(buf[0:], RMF_CMD_FILE_INFO)
	binary.LittleEndian.PutUint32(buf[4:], info.Address)
	binary.LittleEndian.PutUint32(buf[8:], info.Length)
	binary.LittleEndian.PutUint16(buf[12:], info.RmfType)
	binary.LittleEndian.PutUint16(buf[14:], info.DigestType)
	copy(buf[16:16+RMF_DIGEST_SIZE], info.DigestData[:])
	nameOffset := RMF_CMD_FILE_INFO_BASE_SIZE
	copy(buf[nameOffset:], info.Name)
	buf[nameOffset+len(info.Name)] = 0
	return total, nil
}

// DeserializeFileInfo parses a FILE_INFO command payload including command
// code
func DeserializeFileInfo(buf []byte) (*FileInfo, error) {
	if len(buf) < RMF_CMD_FILE_INFO_BASE_SIZE+1 {
		return nil, ErrUnpack
	}
	cmdType := binary.LittleEndian.Uint32(buf[0:])
	if cmdType != RMF_CMD_FILE_INFO {
		return nil, ErrInvalidMsg
	}
	info := &FileInfo{}
	info.Address = binary.LittleEndian.Uint32(buf[4:])
	info.Length = binary.LittleEndian.Uint32(buf[8:])
	info.RmfType = binary.LittleEndian.Uint16(buf[12:])
	info.DigestType = binary.LittleEndian.Uint16(buf[14:])
	copy(info.DigestData[:], buf[16:16+RMF_DIGEST_SIZE])
	nameBytes := buf[RMF_CMD_FILE_INFO_BASE_SIZE:]
	end := bytes.IndexByte(nameBytes, 0)
	if end < 0 {
		return nil, ErrParse
	}
	if end > RMF_MAX_FILE_NAME {
		return nil, ErrNameTooLong
	}
	info.Name = string(nameBytes[:end])
	return info, nil
}

// SerializeFileOpen writes a FILE_OPEN command payload
func SerializeFileOpen(buf []byte, cmd *CmdOpenFile) (int, error) {
	if cmd == nil {
		return 0, ErrNullPtr
	}
	if len(buf) < RMF_CMD_FILE_OPEN_LEN {
		return 0, ErrBufferBoundary
	}
	binary.LittleEndian.PutUint32(buf[0:], RMF_CMD_FILE_OPEN)
	binary.LittleEndian.PutUint32(buf[4:], cmd.Address)
	return RMF_CMD_FILE_OPEN_LEN, nil
}

// DeserializeFileOpen parses a FILE_OPEN command payload
func DeserializeFileOpen(buf []byte) (*CmdOpenFile, error) {
	if len(buf) < RMF_CMD_FILE_OPEN_LEN {
		return nil, ErrUnpack
	}
	cmdType := binary.LittleEndian.Uint32(buf[0:])
	if cmdType != RMF_CMD_FILE_OPEN {
		return nil, ErrInvalidMsg
	}
	return &CmdOpenFile{Address: binary.LittleEndian.Uint32(buf[4:])}, nil
}
