package apx

import (
	log "github.com/sirupsen/logrus"
)

// Pending outbound large write, driven fragment by fragment by Run
type fileWriteJob struct {
	writeAddress uint32
	readOffset   uint32
	remain       uint32
	localFile    *File
}

// FileManager is the embedded remote file manager. It tracks the files this
// side publishes and the files discovered from the peer, coalesces write
// notifications, and runs the cooperative transmit scheduler.
//
// All methods must be called from a single execution context, or the
// embedder must provide its own mutual exclusion (see Client). Run never
// blocks, it yields only by returning.
type FileManager struct {
	messageQueue *msgQueue

	receiveBuf          []byte
	receiveBufOffset    uint32
	receiveStartAddress uint32

	localFileMap  *FileMap
	remoteFileMap *FileMap

	requestedFileList []*File

	transmitHandler          TransmitHandler
	transmitBuf              []byte
	transmitBufUsed          uint32
	transmitOptimalWriteSize uint32

	pendingWrite bool
	dropMessage  bool
	isConnected  bool
	curFile      *File

	queuedWriteNotify apxMsg
	pendingMsg        apxMsg
	fileWriteInfo     fileWriteJob

	optimizeWriteNotify bool
	// Minimum free transmit space required to attempt a data write
	fragmentationThreshold uint32
}

// NewFileManager creates a manager around caller-provided fixed storage:
// the message queue capacity and the receive buffer used for reassembling
// fragmented writes. The queue and the receive buffer are not resized after
// this call; the file maps still grow as files are inserted, and decoded
// FILE_INFO / FILE_OPEN commands are allocated per message.
func NewFileManager(queueCapacity uint16, receiveBuf []byte) (*FileManager, error) {
	if queueCapacity == 0 || receiveBuf == nil || len(receiveBuf) == 0 {
		return nil, ErrInvalidArgument
	}
	manager := &FileManager{
		messageQueue:           newMsgQueue(queueCapacity),
		receiveBuf:             receiveBuf,
		localFileMap:           NewFileMap(),
		remoteFileMap:          NewFileMap(),
		requestedFileList:      make([]*File, 0, APX_MAX_NUM_REQUEST_FILES),
		optimizeWriteNotify:    APX_OPTIMIZE_WRITE_NOTIFICATIONS,
		fragmentationThreshold: APX_FILE_WRITE_MSG_FRAGMENTATION_THRESHOLD,
	}
	manager.resetConnectionState()
	return manager, nil
}

// AttachLocalFile places a file this node publishes into the local map at
// the next free address for its kind
func (manager *FileManager) AttachLocalFile(localFile *File) error {
	if localFile == nil {
		return ErrNullPtr
	}
	return manager.localFileMap.AutoInsert(localFile)
}

// RequestRemoteFile registers interest in a file the peer is expected to
// announce. Duplicates by name and requests beyond the list capacity are
// silently ignored.
func (manager *FileManager) RequestRemoteFile(requestedFile *File) {
	if requestedFile == nil {
		return
	}
	if len(manager.requestedFileList) >= APX_MAX_NUM_REQUEST_FILES {
		return
	}
	for _, file := range manager.requestedFileList {
		if file.Name() == requestedFile.Name() {
			return
		}
	}
	manager.requestedFileList = append(manager.requestedFileList, requestedFile)
}

// SetTransmitHandler registers the transport below the manager and caches
// its optimal write size
func (manager *FileManager) SetTransmitHandler(handler TransmitHandler) {
	manager.transmitHandler = handler
	if handler != nil {
		manager.transmitOptimalWriteSize = handler.OptimalWriteSize()
	} else {
		manager.transmitOptimalWriteSize = 0
	}
}

// OnConnected marks the underlying transport up and queues one FILE_INFO
// announcement per local file
func (manager *FileManager) OnConnected() {
	manager.isConnected = true
	end := manager.localFileMap.Len()
	for i := 0; i < end; i++ {
		file := manager.localFileMap.Get(i)
		if file != nil {
			if manager.messageQueue.free() <= APX_MSG_QUEUE_WARN_THRESHOLD {
				log.Warnf("[FILEMANAGER] messageQueue fill warning for FILEINFO. Free before add: %d", manager.messageQueue.free())
			}
			manager.insertMsg(apxMsg{msgType: RMF_MSG_FILEINFO, file: file})
		}
	}
}

// OnDisconnected aborts all in-flight work and forgets the remote side
func (manager *FileManager) OnDisconnected() {
	manager.remoteFileMap.Clear()
	manager.resetConnectionState()
}

func (manager *FileManager) resetConnectionState() {
	manager.messageQueue.clear()
	manager.receiveBufOffset = 0
	manager.receiveStartAddress = RMF_INVALID_ADDRESS
	manager.transmitBuf = nil
	manager.transmitBufUsed = 0
	manager.queuedWriteNotify = invalidMsg
	manager.pendingMsg = invalidMsg
	manager.pendingWrite = false
	manager.dropMessage = false
	manager.isConnected = false
	manager.curFile = nil
	manager.fileWriteInfo = fileWriteJob{}
}

// OnMsgReceived parses one framed message from the transport and feeds it
// to the command or data path
func (manager *FileManager) OnMsgReceived(msgBuf []byte) {
	msg, err := UnpackMsg(msgBuf)
	if err != nil {
		log.Debugf("[FILEMANAGER][RX] unpack failed: %v", err)
		return
	}
	if msg.Address == RMF_CMD_START_ADDR {
		manager.parseCmdMsg(msg.Data)
	} else if msg.Address < RMF_CMD_START_ADDR {
		manager.parseDataMsg(msg.Address, msg.Data, msg.MoreBit)
	}
	// Addresses above the command channel are discarded
}

// OnFileUpdate notifies the manager that [offset, offset+length) of a local
// file changed and should be published. Calls are coalesced: sequential
// updates extend the queued notification, and with the optimizer enabled
// updates fully inside the queued range are absorbed. The file content is
// read at transmit time, so peers always observe the latest value.
func (manager *FileManager) OnFileUpdate(file *File, offset uint32, length uint32) {
	if file == nil || length == 0 || !manager.isConnected {
		return
	}
	msg := apxMsg{msgType: RMF_MSG_WRITE_NOTIFY, data1: offset, data2: length, file: file}
	if manager.queuedWriteNotify.msgType != RMF_MSG_WRITE_NOTIFY {
		manager.queuedWriteNotify = msg
		return
	}
	queued := &manager.queuedWriteNotify
	sequentialSize := queued.data2 + length
	if file == queued.file &&
		queued.data1+queued.data2 == offset &&
		sequentialSize <= manager.fragmentationThreshold-RMF_HIGH_ADDRESS_SIZE {
		// Sequential write to the same file, append to the queued notification
		queued.data2 = sequentialSize
		return
	}
	if manager.optimizeWriteNotify {
		if queued.file == file &&
			queued.data1 <= offset &&
			offset+length <= queued.data1+queued.data2 {
			// Written inside the queued range, a single read at transmit
			// time already covers it
			return
		}
	}
	if manager.messageQueue.free() <= APX_MSG_QUEUE_WARN_THRESHOLD {
		log.Warnf("[FILEMANAGER] messageQueue fill warning for WRITE_NOTIFY. Free before add: %d", manager.messageQueue.free())
	}
	manager.flushQueuedWriteNotify()
	manager.queuedWriteNotify = msg
}

// flushQueuedWriteNotify moves the held notification into the message
// queue. With the optimizer enabled an identical item already in the queue
// is not inserted twice.
func (manager *FileManager) flushQueuedWriteNotify() {
	if manager.optimizeWriteNotify {
		if !manager.messageQueue.exists(manager.queuedWriteNotify) {
			manager.insertMsg(manager.queuedWriteNotify)
		}
	} else {
		manager.insertMsg(manager.queuedWriteNotify)
	}
	manager.queuedWriteNotify = invalidMsg
}

func (manager *FileManager) insertMsg(msg apxMsg) {
	if err := manager.messageQueue.insert(msg); err != nil {
		// Embedders monitor queue pressure via the warning threshold
		log.Warnf("[FILEMANAGER] messageQueue overflow, dropping msgType %d", msg.msgType)
	}
}

// parseCmdMsg dispatches one message received on the command channel
func (manager *FileManager) parseCmdMsg(msgBuf []byte) {
	cmdType, err := DeserializeCmdType(msgBuf)
	if err != nil {
		log.Debugf("[FILEMANAGER][RX] command truncated: %v", err)
		return
	}
	switch cmdType {
	case RMF_CMD_FILE_INFO:
		fileInfo, err := DeserializeFileInfo(msgBuf)
		if err != nil {
			log.Debugf("[FILEMANAGER][RX] FILE_INFO deserialize failed: %v", err)
			return
		}
		manager.processRemoteFileInfo(fileInfo)
	case RMF_CMD_FILE_OPEN:
		cmdOpenFile, err := DeserializeFileOpen(msgBuf)
		if err != nil {
			log.Debugf("[FILEMANAGER][RX] FILE_OPEN deserialize failed: %v", err)
			return
		}
		manager.processOpenFile(cmdOpenFile)
	default:
		log.Debugf("[FILEMANAGER][RX] unsupported cmdType: %d", cmdType)
	}
}

// parseDataMsg runs the reception state machine for one data message.
// Unfragmented writes are delivered directly, fragmented ones are
// reassembled into the receive buffer. Oversized or non-contiguous
// reassemblies are consumed and dropped without surfacing an error.
func (manager *FileManager) parseDataMsg(address uint32, dataBuf []byte, moreBit bool) {
	dataLen := uint32(len(dataBuf))
	if manager.receiveStartAddress == RMF_INVALID_ADDRESS {
		// New reception
		remoteFile := manager.remoteFileMap.FindByAddress(address)
		if remoteFile == nil || !remoteFile.IsOpen() {
			return
		}
		offset := address - remoteFile.Address()
		if !moreBit {
			if err := remoteFile.Write(dataBuf, offset); err != nil {
				log.Warnf("[FILEMANAGER][RX] write to %s failed: %v", remoteFile.Name(), err)
			}
		} else if dataLen <= uint32(len(manager.receiveBuf)) {
			// Start of a multi message reception
			manager.curFile = remoteFile
			manager.receiveStartAddress = address
			copy(manager.receiveBuf, dataBuf)
			manager.receiveBufOffset = dataLen
		} else {
			manager.receiveStartAddress = address
			manager.dropMessage = true
			log.Debugf("[FILEMANAGER][RX] message too long (%d bytes), message dropped", dataLen)
		}
		return
	}
	// Continued reception
	var offset uint32
	if manager.dropMessage {
		offset = manager.receiveBufOffset
	} else {
		offset = address - manager.curFile.Address()
	}
	if offset != manager.receiveBufOffset {
		manager.dropMessage = true
		log.Debugf("[FILEMANAGER][RX] invalid offset (%d), message dropped", offset)
	} else if offset+dataLen <= uint32(len(manager.receiveBuf)) {
		copy(manager.receiveBuf[offset:], dataBuf)
		manager.receiveBufOffset = offset + dataLen
	} else {
		manager.dropMessage = true
		log.Debugf("[FILEMANAGER][RX] message too long (%d bytes), message dropped", dataLen)
	}
	if !moreBit {
		if !manager.dropMessage {
			startOffset := manager.receiveStartAddress - manager.curFile.Address()
			err := manager.curFile.Write(manager.receiveBuf[:manager.receiveBufOffset], startOffset)
			if err != nil {
				log.Warnf("[FILEMANAGER][RX] write to %s failed: %v", manager.curFile.Name(), err)
			}
		}
		manager.dropMessage = false
		manager.curFile = nil
		manager.receiveStartAddress = RMF_INVALID_ADDRESS
		manager.receiveBufOffset = 0
	}
}

// processRemoteFileInfo resolves a FILE_INFO announcement against the
// request list. On a name and length match the remote address and digest
// are adopted and a FILE_OPEN is queued.
func (manager *FileManager) processRemoteFileInfo(fileInfo *FileInfo) {
	removeIndex := -1
	var file *File
	for i, requested := range manager.requestedFileList {
		if requested.Name() == fileInfo.Name {
			if requested.Length() == fileInfo.Length {
				file = requested
				removeIndex = i
				break
			}
			log.Warnf("[FILEMANAGER][RX] unexpected size of file %s. Expected %d, got %d",
				fileInfo.Name, requested.Length(), fileInfo.Length)
		}
	}
	if removeIndex < 0 {
		return
	}
	log.Debugf("[FILEMANAGER] opening requested file: %s", fileInfo.Name)
	manager.removeRequestedAt(removeIndex)
	file.setAddress(fileInfo.Address)
	file.fileInfo.RmfType = fileInfo.RmfType
	file.fileInfo.DigestType = fileInfo.DigestType
	file.fileInfo.DigestData = fileInfo.DigestData
	if manager.messageQueue.free() <= APX_MSG_QUEUE_WARN_THRESHOLD {
		log.Warnf("[FILEMANAGER] messageQueue fill warning for FILE_OPEN. Free before add: %d", manager.messageQueue.free())
	}
	manager.insertMsg(apxMsg{msgType: RMF_MSG_FILE_OPEN, data1: file.Address(), file: file})
}

// processOpenFile reacts to the peer opening one of our local files by
// scheduling a full file push
func (manager *FileManager) processOpenFile(cmdOpenFile *CmdOpenFile) {
	localFile := manager.localFileMap.FindByAddress(cmdOpenFile.Address)
	if localFile == nil {
		return
	}
	if manager.messageQueue.free() <= APX_MSG_QUEUE_WARN_THRESHOLD {
		log.Warnf("[FILEMANAGER] messageQueue fill warning for FILE_SEND. Free before add: %d", manager.messageQueue.free())
	}
	manager.insertMsg(apxMsg{msgType: RMF_MSG_FILE_SEND, file: localFile})
}

// removeRequestedAt deletes one entry from the request list, preserving the
// relative order of the remaining entries
func (manager *FileManager) removeRequestedAt(removeIndex int) error {
	if removeIndex < 0 || removeIndex >= len(manager.requestedFileList) {
		return ErrInvalidArgument
	}
	copy(manager.requestedFileList[removeIndex:], manager.requestedFileList[removeIndex+1:])
	manager.requestedFileList = manager.requestedFileList[:len(manager.requestedFileList)-1]
	return nil
}
