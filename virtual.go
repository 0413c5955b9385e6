package apx

import "sync"

// Virtual transport used for testing and in-process examples. A pair of
// endpoints is connected back to back: every committed send is delivered to
// the peer's message handler as one framed unit, without any network.

type VirtualTransport struct {
	peer    *VirtualTransport
	handler MsgHandler
	sendBuf []byte
	// When true, committed sends queue up until Deliver is called
	deferDelivery bool
	mu            sync.Mutex
	queued        [][]byte
}

// NewVirtualTransportPair creates two connected endpoints, each with its
// own send buffer of the given size
func NewVirtualTransportPair(sendBufSize uint32) (*VirtualTransport, *VirtualTransport) {
	a := &VirtualTransport{sendBuf: make([]byte, sendBufSize)}
	b := &VirtualTransport{sendBuf: make([]byte, sendBufSize)}
	a.peer = b
	b.peer = a
	return a, b
}

// Subscribe registers the receiver of messages arriving at this endpoint
func (transport *VirtualTransport) Subscribe(handler MsgHandler) {
	transport.handler = handler
}

// Connect implements Transport, nothing to do for the in-memory pair
func (transport *VirtualTransport) Connect() error {
	return nil
}

func (transport *VirtualTransport) Close() error {
	return nil
}

// SetDeferDelivery makes committed sends queue up until Deliver is called,
// which lets tests drive both sides step by step
func (transport *VirtualTransport) SetDeferDelivery(defer_ bool) {
	transport.deferDelivery = defer_
}

// Deliver flushes queued sends to the peer
func (transport *VirtualTransport) Deliver() {
	transport.mu.Lock()
	queued := transport.queued
	transport.queued = nil
	transport.mu.Unlock()
	for _, msg := range queued {
		if transport.peer.handler != nil {
			transport.peer.handler.OnMsgReceived(msg)
		}
	}
}

// GetSendAvail implements TransmitHandler
func (transport *VirtualTransport) GetSendAvail() int32 {
	return int32(len(transport.sendBuf))
}

// GetSendBuffer implements TransmitHandler
func (transport *VirtualTransport) GetSendBuffer(length int32) []byte {
	if length <= 0 || int(length) > len(transport.sendBuf) {
		return nil
	}
	return transport.sendBuf[:length]
}

// Send implements TransmitHandler. The committed bytes are copied, the
// reserved buffer is immediately reusable.
func (transport *VirtualTransport) Send(offset int32, length int32) int32 {
	if offset < 0 || length < 0 || int(offset+length) > len(transport.sendBuf) {
		return -1
	}
	msg := make([]byte, length)
	copy(msg, transport.sendBuf[offset:offset+length])
	if transport.deferDelivery {
		transport.mu.Lock()
		transport.queued = append(transport.queued, msg)
		transport.mu.Unlock()
		return length
	}
	if transport.peer.handler != nil {
		transport.peer.handler.OnMsgReceived(msg)
	}
	return length
}

// OptimalWriteSize implements TransmitHandler. Each protocol message is
// delivered as its own unit, so flush after every message.
func (transport *VirtualTransport) OptimalWriteSize() uint32 {
	return 1
}
