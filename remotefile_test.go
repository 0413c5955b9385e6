package apx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPackHeaderLowForm(t *testing.T) {
	buf := make([]byte, 8)
	n, err := PackHeader(buf, 0x1234, false)
	assert.Nil(t, err)
	assert.Equal(t, RMF_LOW_ADDRESS_SIZE, n)
	assert.Equal(t, []byte{0x12, 0x34}, buf[:2])

	n, err = PackHeader(buf, 0x1234, true)
	assert.Nil(t, err)
	assert.Equal(t, RMF_LOW_ADDRESS_SIZE, n)
	assert.Equal(t, []byte{0x52, 0x34}, buf[:2])
}

func TestPackHeaderHighForm(t *testing.T) {
	buf := make([]byte, 8)
	n, err := PackHeader(buf, 0x12345, false)
	assert.Nil(t, err)
	assert.Equal(t, RMF_HIGH_ADDRESS_SIZE, n)
	assert.Equal(t, []byte{0x80, 0x01, 0x23, 0x45}, buf[:4])

	n, err = PackHeader(buf, 0x12345, true)
	assert.Nil(t, err)
	assert.Equal(t, []byte{0xC0, 0x01, 0x23, 0x45}, buf[:4])
}

// Header form switches exactly at the high-address boundary
func TestPackHeaderBoundary(t *testing.T) {
	buf := make([]byte, 8)
	n, err := PackHeader(buf, RMF_DATA_HIGH_MIN_ADDR-1, false)
	assert.Nil(t, err)
	assert.Equal(t, RMF_LOW_ADDRESS_SIZE, n)

	n, err = PackHeader(buf, RMF_DATA_HIGH_MIN_ADDR, false)
	assert.Nil(t, err)
	assert.Equal(t, RMF_HIGH_ADDRESS_SIZE, n)
}

func TestHeaderRoundTrip(t *testing.T) {
	addresses := []uint32{0, 1, 0x3FFF, 0x4000, 0x12345, RMF_CMD_START_ADDR, RMF_CMD_END_ADDR}
	payload := []byte{1, 2, 3}
	for _, address := range addresses {
		for _, moreBit := range []bool{false, true} {
			buf := make([]byte, 16)
			n, err := PackHeader(buf, address, moreBit)
			assert.Nil(t, err)
			copy(buf[n:], payload)
			msg, err := UnpackMsg(buf[:n+len(payload)])
			assert.Nil(t, err)
			assert.Equal(t, address, msg.Address)
			assert.Equal(t, moreBit, msg.MoreBit)
			assert.Equal(t, payload, msg.Data[:len(payload)])
		}
	}
}

func TestPackHeaderErrors(t *testing.T) {
	buf := make([]byte, 8)
	_, err := PackHeader(buf[:1], 0x100, false)
	assert.Equal(t, ErrBufferBoundary, err)
	_, err = PackHeader(buf[:3], 0x10000, false)
	assert.Equal(t, ErrBufferBoundary, err)
	_, err = PackHeader(buf, 0x40000000, false)
	assert.Equal(t, ErrPack, err)
}

func TestUnpackMsgTruncated(t *testing.T) {
	_, err := UnpackMsg([]byte{0x01})
	assert.Equal(t, ErrUnpack, err)
	_, err = UnpackMsg([]byte{0x80, 0x00, 0x01})
	assert.Equal(t, ErrUnpack, err)
}

func TestFileInfoRoundTrip(t *testing.T) {
	info := &FileInfo{
		Name:       "TestNode.out",
		Length:     42,
		Address:    0x1234,
		RmfType:    RMF_FILE_TYPE_FIXED,
		DigestType: RMF_DIGEST_TYPE_NONE,
	}
	for i := range info.DigestData {
		info.DigestData[i] = byte(i)
	}
	buf := make([]byte, 128)
	n, err := SerializeFileInfo(buf, info)
	assert.Nil(t, err)
	assert.Equal(t, RMF_CMD_FILE_INFO_BASE_SIZE+len(info.Name)+1, n)

	parsed, err := DeserializeFileInfo(buf[:n])
	assert.Nil(t, err)
	assert.Equal(t, info, parsed)
}

func TestFileInfoErrors(t *testing.T) {
	buf := make([]byte, 128)
	info := &FileInfo{Name: "x.out", Length: 1}
	_, err := SerializeFileInfo(buf[:10], info)
	assert.Equal(t, ErrBufferBoundary, err)

	n, err := SerializeFileInfo(buf, info)
	assert.Nil(t, err)
	_, err = DeserializeFileInfo(buf[:n-2])
	assert.NotNil(t, err)

	// Wrong command code
	buf[0] = 99
	_, err = DeserializeFileInfo(buf[:n])
	assert.Equal(t, ErrInvalidMsg, err)
}

func TestFileOpenRoundTrip(t *testing.T) {
	buf := make([]byte, 16)
	cmd := &CmdOpenFile{Address: 0x400}
	n, err := SerializeFileOpen(buf, cmd)
	assert.Nil(t, err)
	assert.Equal(t, RMF_CMD_FILE_OPEN_LEN, n)

	parsed, err := DeserializeFileOpen(buf[:n])
	assert.Nil(t, err)
	assert.Equal(t, cmd, parsed)

	cmdType, err := DeserializeCmdType(buf[:n])
	assert.Nil(t, err)
	assert.Equal(t, RMF_CMD_FILE_OPEN, cmdType)
}
