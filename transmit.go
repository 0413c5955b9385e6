package apx

// TransmitHandler is the four-operation interface between the file manager
// and the transport below it (TCP socket, SPI stream, in-memory pair).
//
// The manager asks for the currently reservable space, reserves a
// contiguous buffer, serializes one or more messages into it and commits
// with Send. A nil buffer or non-positive avail makes the manager defer the
// work to the next Run call, it is not an error. Send rejecting a commit
// after a successful reservation is a contract violation.
type TransmitHandler interface {
	// GetSendAvail returns the number of bytes currently reservable
	GetSendAvail() int32
	// GetSendBuffer reserves length contiguous bytes, nil when unavailable
	GetSendBuffer(length int32) []byte
	// Send commits length bytes of the reserved buffer starting at offset.
	// Negative return signals a transport error.
	Send(offset int32, length int32) int32
	// OptimalWriteSize returns the transfer size the transport performs
	// best at. The scheduler flushes whenever this much data accumulated.
	// Stream transports that frame each commit return 1 so every protocol
	// message is committed on its own.
	OptimalWriteSize() uint32
}

// MsgHandler receives whole protocol messages recovered from the transport
// framing. The file manager implements this.
type MsgHandler interface {
	OnMsgReceived(msgBuf []byte)
}
