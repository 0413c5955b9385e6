package apx

import (
	log "github.com/sirupsen/logrus"
)

// Run performs all outbound work that is currently possible. It drains the
// message queue into transmit buffers obtained from the transport,
// fragmenting large writes, and returns when there is no more work, no
// buffer space is available, or a parked item must wait for the next tick.
// Run never blocks.
func (manager *FileManager) Run() {
	if !manager.isConnected {
		return
	}
	if manager.pendingWrite {
		manager.setupTransmitBuf()
		result := manager.processPendingWrite()
		if result < 0 {
			log.Debugf("[FILEMANAGER] processPendingWrite returned %d", result)
		}
	}
	if manager.pendingMsg.msgType != RMF_MSG_INVALID {
		manager.setupTransmitBuf()
		result := manager.processPendingMessage()
		if result < 0 {
			log.Debugf("[FILEMANAGER] pendingMsg processing returned %d", result)
		} else if result > 0 {
			manager.transmitBufUsed += uint32(result)
			manager.transmitMsg()
		}
		// Otherwise the pending message could still not be processed
	}
	if manager.queuedWriteNotify.msgType == RMF_MSG_WRITE_NOTIFY {
		if manager.messageQueue.free() <= APX_MSG_QUEUE_WARN_THRESHOLD {
			log.Warnf("[FILEMANAGER] messageQueue fill warning for delayed WRITE_NOTIFY. Free before add: %d", manager.messageQueue.free())
		}
		manager.flushQueuedWriteNotify()
	}

	// Trigger a buffer refresh before draining the queue
	manager.transmitBuf = nil

	for !manager.pendingWrite && manager.pendingMsg.msgType == RMF_MSG_INVALID {
		result := manager.runEventLoop()
		if result > 0 {
			manager.transmitBufUsed += uint32(result)
			if manager.transmitBufUsed >= manager.transmitOptimalWriteSize {
				manager.transmitMsg()
			}
		} else if result < 0 {
			log.Debugf("[FILEMANAGER] runEventLoop returned %d", result)
			break
		} else {
			// No work performed this loop
			break
		}
	}
	// Transmit pending data if any
	if manager.transmitBufUsed > 0 {
		manager.transmitMsg()
	}
}

// runEventLoop pops one message into the pending slot and processes it.
// Returns 0 when no more messages can be processed, negative on error and
// the appended size on success.
func (manager *FileManager) runEventLoop() int32 {
	msg, ok := manager.messageQueue.remove()
	if !ok {
		return 0
	}
	manager.pendingMsg = msg
	if manager.transmitBuf == nil {
		manager.setupTransmitBuf()
	}
	return manager.processPendingMessage()
}

// setupTransmitBuf asks the transport for its currently available space and
// reserves it. A failed reservation leaves the buffer empty, work is then
// deferred to a later tick.
func (manager *FileManager) setupTransmitBuf() {
	manager.transmitBufUsed = 0
	if manager.transmitHandler == nil {
		manager.transmitBuf = nil
		return
	}
	avail := manager.transmitHandler.GetSendAvail()
	if avail <= 0 {
		manager.transmitBuf = nil
		return
	}
	manager.transmitBuf = manager.transmitHandler.GetSendBuffer(avail)
}

// transmitMsg commits the used part of the transmit buffer. The transport
// accepted the reservation, a rejected commit is unrecoverable.
func (manager *FileManager) transmitMsg() {
	result := manager.transmitHandler.Send(0, int32(manager.transmitBufUsed))
	manager.transmitBuf = nil
	manager.transmitBufUsed = 0
	if result < 0 {
		log.Panicf("[FILEMANAGER] transmit handler rejected a reserved send: %d", result)
	}
}

// processPendingMessage serializes the message held in the pending slot
// into the transmit buffer. A fully serialized message clears the slot and
// returns its size. A command that does not fit stays parked in the slot. A
// data write that does not fit converts into the file write job and clears
// the slot. Returns 0 when nothing was appended, negative on error.
func (manager *FileManager) processPendingMessage() int32 {
	if manager.transmitBuf == nil {
		return -1
	}
	sendAvail := uint32(len(manager.transmitBuf)) - manager.transmitBufUsed
	msgBuf := manager.transmitBuf[manager.transmitBufUsed:]

	switch manager.pendingMsg.msgType {
	case RMF_MSG_CONNECT:
		manager.pendingMsg = invalidMsg
		return 0

	case RMF_MSG_FILEINFO:
		file := manager.pendingMsg.file
		headerLen := uint32(RMF_HIGH_ADDRESS_SIZE)
		dataLen := uint32(RMF_CMD_FILE_INFO_BASE_SIZE + len(file.Name()) + 1)
		msgLen := headerLen + dataLen
		if msgLen > sendAvail {
			return 0
		}
		info := file.Info()
		n, err := SerializeFileInfo(msgBuf[headerLen:], &info)
		if err != nil || uint32(n) != dataLen {
			return -1
		}
		if hn, err := PackHeader(msgBuf, RMF_CMD_START_ADDR, false); err != nil || uint32(hn) != headerLen {
			return -1
		}
		manager.pendingMsg = invalidMsg
		return int32(msgLen)

	case RMF_MSG_FILE_OPEN:
		file := manager.pendingMsg.file
		headerLen := uint32(RMF_HIGH_ADDRESS_SIZE)
		dataLen := uint32(RMF_CMD_FILE_OPEN_LEN)
		msgLen := headerLen + dataLen
		// The remote map must know the file before any data arrives for it
		if manager.remoteFileMap.FindByAddress(file.Address()) == nil {
			if err := manager.remoteFileMap.Insert(file); err != nil {
				log.Warnf("[FILEMANAGER] could not map remote file %s: %v", file.Name(), err)
			}
		}
		file.Open()
		if msgLen > sendAvail {
			return 0
		}
		cmd := CmdOpenFile{Address: manager.pendingMsg.data1}
		n, err := SerializeFileOpen(msgBuf[headerLen:], &cmd)
		if err != nil || uint32(n) != dataLen {
			return -1
		}
		if hn, err := PackHeader(msgBuf, RMF_CMD_START_ADDR, false); err != nil || uint32(hn) != headerLen {
			return -1
		}
		manager.pendingMsg = invalidMsg
		return int32(msgLen)

	case RMF_MSG_WRITE_NOTIFY:
		offset := manager.pendingMsg.data1
		dataLen := manager.pendingMsg.data2
		file := manager.pendingMsg.file
		address := file.Address() + offset
		headerLen := uint32(HeaderLen(address))
		msgLen := headerLen + dataLen
		// Attempt to deliver the notification as one non-fragmented write
		if msgLen <= sendAvail {
			if hn, err := PackHeader(msgBuf, address, false); err != nil || uint32(hn) != headerLen {
				return -1
			}
			if err := file.Read(msgBuf[headerLen:msgLen], offset); err != nil {
				return -1
			}
			manager.pendingMsg = invalidMsg
			return int32(msgLen)
		}
		// Queue as pending write
		manager.pendingWrite = true
		manager.fileWriteInfo = fileWriteJob{
			localFile:    file,
			readOffset:   offset,
			writeAddress: address,
			remain:       dataLen,
		}
		manager.pendingMsg = invalidMsg
		if sendAvail >= manager.fragmentationThreshold*3 {
			// Very large write, get started despite fragmentation.
			// processPendingWrite takes care of the send itself.
			manager.processPendingWrite()
		}
		return 0

	case RMF_MSG_FILE_SEND:
		file := manager.pendingMsg.file
		file.Open()
		manager.pendingMsg = invalidMsg
		if sendAvail >= manager.fragmentationThreshold {
			moreBit := false
			headerLen := uint32(HeaderLen(file.Address()))
			msgLen := file.Length() + headerLen
			var dataLen uint32
			if msgLen > sendAvail {
				dataLen = sendAvail - headerLen
				msgLen = sendAvail
				moreBit = true
			} else {
				dataLen = file.Length()
			}
			return manager.genFileSendMsg(msgBuf, headerLen, file, 0, dataLen, msgLen, moreBit)
		}
		manager.pendingWrite = true
		manager.fileWriteInfo = fileWriteJob{
			localFile:    file,
			readOffset:   0,
			writeAddress: file.Address(),
			remain:       file.Length(),
		}
		return 0
	}
	manager.pendingMsg = invalidMsg
	return 0
}

// genFileSendMsg emits the first frame of a full file push and parks the
// remainder, if any, as the file write job
func (manager *FileManager) genFileSendMsg(msgBuf []byte, headerLen uint32, file *File, offset uint32, dataLen uint32, msgLen uint32, moreBit bool) int32 {
	if hn, err := PackHeader(msgBuf, file.Address(), moreBit); err != nil || uint32(hn) != headerLen {
		return -1
	}
	if err := file.Read(msgBuf[headerLen:headerLen+dataLen], offset); err != nil {
		return -1
	}
	if dataLen < file.Length() {
		manager.pendingWrite = true
		manager.fileWriteInfo = fileWriteJob{
			localFile:    file,
			readOffset:   dataLen,
			writeAddress: file.Address() + dataLen,
			remain:       file.Length() - dataLen,
		}
	}
	return int32(msgLen)
}

// processPendingWrite emits one fragment of the file write job, provided at
// least the fragmentation threshold of buffer space is available. It is
// responsible for flushing its own and any previously serialized data.
func (manager *FileManager) processPendingWrite() int32 {
	if manager.transmitBuf == nil {
		return -1
	}
	var retval int32
	sendAvail := uint32(len(manager.transmitBuf)) - manager.transmitBufUsed
	if sendAvail >= manager.fragmentationThreshold {
		job := &manager.fileWriteInfo
		log.Debugf("[FILEMANAGER] processPendingWrite, remain=%d, offset=%d, address=%08X",
			job.remain, job.readOffset, job.writeAddress)
		moreBit := false
		msgBuf := manager.transmitBuf[manager.transmitBufUsed:]
		headerLen := uint32(HeaderLen(job.writeAddress))
		msgLen := headerLen + job.remain
		var dataLen uint32
		if msgLen > sendAvail {
			dataLen = sendAvail - headerLen
			msgLen = sendAvail
			moreBit = true
		} else {
			dataLen = job.remain
		}
		hn, err := PackHeader(msgBuf, job.writeAddress, moreBit)
		if err != nil || uint32(hn) != headerLen {
			retval = -1
		} else if err := job.localFile.Read(msgBuf[headerLen:headerLen+dataLen], job.readOffset); err != nil {
			retval = -1
		} else {
			retval = int32(msgLen)
			job.remain -= dataLen
			if job.remain == 0 {
				manager.pendingWrite = false
				manager.fileWriteInfo = fileWriteJob{}
			} else {
				job.writeAddress += dataLen
				job.readOffset += dataLen
			}
		}
	}
	if retval > 0 {
		manager.transmitBufUsed += uint32(retval)
	}
	if manager.transmitBufUsed > 0 {
		// Responsible for flushing own and others pending send
		manager.transmitMsg()
	}
	return retval
}
