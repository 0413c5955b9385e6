package apx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeDataFiles(t *testing.T) {
	definition := []byte("APX/1.2\nN\"TestNode\"\n")
	nodeData, err := NewNodeData("TestNode", definition, 4, 2)
	assert.Nil(t, err)
	assert.Equal(t, "TestNode.apx", nodeData.DefinitionFile().Name())
	assert.Equal(t, "TestNode.out", nodeData.OutPortDataFile().Name())
	assert.Equal(t, "TestNode.in", nodeData.InPortDataFile().Name())
	assert.Equal(t, uint32(len(definition)), nodeData.DefinitionFile().Length())
	assert.Equal(t, APX_DEFINITION_FILE, nodeData.DefinitionFile().Kind())
}

func TestNodeDataPartialFiles(t *testing.T) {
	nodeData, err := NewNodeData("OutOnly", nil, 4, 0)
	assert.Nil(t, err)
	assert.Nil(t, nodeData.DefinitionFile())
	assert.NotNil(t, nodeData.OutPortDataFile())
	assert.Nil(t, nodeData.InPortDataFile())

	_, err = NewNodeData("", nil, 4, 0)
	assert.Equal(t, ErrInvalidArgument, err)
}

func TestNodeDataAttach(t *testing.T) {
	manager := newTestManager(t, 256)
	nodeData, err := NewNodeData("TestNode", []byte("APX/1.2\n"), 4, 2)
	assert.Nil(t, err)
	assert.Nil(t, nodeData.Attach(manager))

	// Definition and provide port data are local, require port data is
	// requested from the peer
	assert.Equal(t, 2, manager.localFileMap.Len())
	assert.Equal(t, 1, len(manager.requestedFileList))
	assert.Equal(t, "TestNode.in", manager.requestedFileList[0].Name())
}

func TestNodeDataOutPortWriteNotifies(t *testing.T) {
	manager := newTestManager(t, 256)
	transmit := newMockTransmit(256)
	manager.SetTransmitHandler(transmit)
	nodeData, err := NewNodeData("TestNode", nil, 4, 0)
	assert.Nil(t, err)
	assert.Nil(t, nodeData.Attach(manager))
	manager.OnConnected()
	manager.Run()
	transmit.sends = nil

	assert.Nil(t, nodeData.WriteOutPortData([]byte{0xAA, 0xBB}, 1))
	manager.Run()

	assert.Equal(t, 1, len(transmit.sends))
	msg, err := UnpackMsg(transmit.sends[0])
	assert.Nil(t, err)
	assert.Equal(t, nodeData.OutPortDataFile().Address()+1, msg.Address)
	assert.Equal(t, []byte{0xAA, 0xBB}, msg.Data)

	assert.Equal(t, ErrBufferBoundary, nodeData.WriteOutPortData([]byte{1, 2}, 3))
}

func TestNodeDataInPortWriteCallback(t *testing.T) {
	nodeData, err := NewNodeData("TestNode", nil, 0, 4)
	assert.Nil(t, err)
	var gotOffset, gotLength uint32
	calls := 0
	nodeData.SetPortWriteCallback(func(offset uint32, length uint32) {
		gotOffset = offset
		gotLength = length
		calls++
	})

	file := nodeData.InPortDataFile()
	assert.Nil(t, file.Write([]byte{1, 2}, 1))
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint32(1), gotOffset)
	assert.Equal(t, uint32(2), gotLength)

	read := make([]byte, 2)
	assert.Nil(t, nodeData.ReadInPortData(read, 1))
	assert.Equal(t, []byte{1, 2}, read)
}

func TestNodeDataDefinitionRead(t *testing.T) {
	definition := []byte("APX/1.2\nN\"TestNode\"\n")
	nodeData, err := NewNodeData("TestNode", definition, 0, 0)
	assert.Nil(t, err)
	dest := make([]byte, len(definition))
	assert.Nil(t, nodeData.DefinitionFile().Read(dest, 0))
	assert.Equal(t, definition, dest)
}
