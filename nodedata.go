package apx

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// PortWriteCallback is invoked when the peer writes into the require port
// data of a node, after the bytes have been stored
type PortWriteCallback func(offset uint32, length uint32)

// NodeData owns the dynamic byte buffers of one APX node: the definition
// text, the provide port data published to peers and the require port data
// written by peers. It creates the three standard files and backs them as
// their data handler.
//
// The definition blob is stored opaque, parsing it is the job of an upper
// layer.
type NodeData struct {
	name           string
	definitionData []byte
	outPortData    []byte
	inPortData     []byte

	definitionFile  *File
	outPortDataFile *File
	inPortDataFile  *File

	fileManager   *FileManager
	writeCallback PortWriteCallback
}

// NewNodeData creates the buffers and files for a node. Any of definition,
// outLen or inLen may be empty/zero, the corresponding file is then not
// created.
func NewNodeData(name string, definition []byte, outLen uint32, inLen uint32) (*NodeData, error) {
	if name == "" {
		return nil, ErrInvalidArgument
	}
	nodeData := &NodeData{name: name}
	if len(definition) > 0 {
		nodeData.definitionData = definition
		file, err := NewFile(fmt.Sprintf("%s.apx", name), uint32(len(definition)), RMF_FILE_TYPE_FIXED)
		if err != nil {
			return nil, err
		}
		file.SetHandler(nodeData)
		nodeData.definitionFile = file
	}
	if outLen > 0 {
		nodeData.outPortData = make([]byte, outLen)
		file, err := NewFile(fmt.Sprintf("%s.out", name), outLen, RMF_FILE_TYPE_FIXED)
		if err != nil {
			return nil, err
		}
		file.SetHandler(nodeData)
		nodeData.outPortDataFile = file
	}
	if inLen > 0 {
		nodeData.inPortData = make([]byte, inLen)
		file, err := NewFile(fmt.Sprintf("%s.in", name), inLen, RMF_FILE_TYPE_FIXED)
		if err != nil {
			return nil, err
		}
		file.SetHandler(nodeData)
		nodeData.inPortDataFile = file
	}
	return nodeData, nil
}

func (nodeData *NodeData) Name() string {
	return nodeData.name
}

// Attach hands the node files to a file manager: definition and provide
// port data become local files, require port data is requested from the
// peer
func (nodeData *NodeData) Attach(manager *FileManager) error {
	if manager == nil {
		return ErrNullPtr
	}
	nodeData.fileManager = manager
	if nodeData.definitionFile != nil {
		if err := manager.AttachLocalFile(nodeData.definitionFile); err != nil {
			return err
		}
	}
	if nodeData.outPortDataFile != nil {
		if err := manager.AttachLocalFile(nodeData.outPortDataFile); err != nil {
			return err
		}
	}
	if nodeData.inPortDataFile != nil {
		manager.RequestRemoteFile(nodeData.inPortDataFile)
	}
	return nil
}

// SetPortWriteCallback registers the callback run when require port data is
// written by the peer
func (nodeData *NodeData) SetPortWriteCallback(callback PortWriteCallback) {
	nodeData.writeCallback = callback
}

// WriteOutPortData updates provide port data and notifies the file manager
// so the change gets published
func (nodeData *NodeData) WriteOutPortData(src []byte, offset uint32) error {
	if nodeData.outPortDataFile == nil {
		return ErrInvalidState
	}
	if offset+uint32(len(src)) > uint32(len(nodeData.outPortData)) {
		return ErrBufferBoundary
	}
	copy(nodeData.outPortData[offset:], src)
	if nodeData.fileManager != nil {
		nodeData.fileManager.OnFileUpdate(nodeData.outPortDataFile, offset, uint32(len(src)))
	}
	return nil
}

// ReadInPortData copies require port data into dest
func (nodeData *NodeData) ReadInPortData(dest []byte, offset uint32) error {
	if offset+uint32(len(dest)) > uint32(len(nodeData.inPortData)) {
		return ErrBufferBoundary
	}
	copy(dest, nodeData.inPortData[offset:])
	return nil
}

// ReadFileData implements FileDataHandler
func (nodeData *NodeData) ReadFileData(file *File, dest []byte, offset uint32) error {
	source := nodeData.bufferFor(file)
	if source == nil {
		return ErrNotFound
	}
	if offset+uint32(len(dest)) > uint32(len(source)) {
		return ErrBufferBoundary
	}
	copy(dest, source[offset:])
	return nil
}

// WriteFileData implements FileDataHandler. Writes land here when the peer
// pushes data into a file of this node.
func (nodeData *NodeData) WriteFileData(file *File, src []byte, offset uint32) error {
	dest := nodeData.bufferFor(file)
	if dest == nil {
		return ErrNotFound
	}
	if offset+uint32(len(src)) > uint32(len(dest)) {
		return ErrBufferBoundary
	}
	copy(dest[offset:], src)
	if file == nodeData.inPortDataFile {
		log.Debugf("[NODEDATA][%s] require port data updated, offset=%d len=%d", nodeData.name, offset, len(src))
		if nodeData.writeCallback != nil {
			nodeData.writeCallback(offset, uint32(len(src)))
		}
	}
	return nil
}

func (nodeData *NodeData) bufferFor(file *File) []byte {
	switch file {
	case nodeData.definitionFile:
		return nodeData.definitionData
	case nodeData.outPortDataFile:
		return nodeData.outPortData
	case nodeData.inPortDataFile:
		return nodeData.inPortData
	}
	return nil
}

// DefinitionFile returns the node definition file, nil when absent
func (nodeData *NodeData) DefinitionFile() *File {
	return nodeData.definitionFile
}

// OutPortDataFile returns the provide port data file, nil when absent
func (nodeData *NodeData) OutPortDataFile() *File {
	return nodeData.outPortDataFile
}

// InPortDataFile returns the require port data file, nil when absent
func (nodeData *NodeData) InPortDataFile() *File {
	return nodeData.inPortDataFile
}
