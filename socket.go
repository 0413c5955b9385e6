package apx

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// TCP byte-stream transport. Each committed send travels as one unit
// prefixed with a big-endian u32 length, and each received unit is handed
// to the subscribed message handler in one piece. Because the remote file
// protocol headers carry no message length, the adapter advertises an
// optimal write size of 1 so the file manager flushes every message as its
// own framed unit.

const socketReadTimeout = 200 * time.Millisecond

type SocketTransport struct {
	address string
	conn    net.Conn
	handler MsgHandler
	sendBuf []byte

	mu            sync.Mutex
	wg            sync.WaitGroup
	stopChan      chan bool
	isRunning     bool
	errSubscriber bool
}

// NewSocketTransport prepares a client transport towards address, e.g.
// "localhost:5000", with an internal send buffer of the given size
func NewSocketTransport(address string, sendBufSize uint32) *SocketTransport {
	return &SocketTransport{
		address:  address,
		sendBuf:  make([]byte, sendBufSize),
		stopChan: make(chan bool),
	}
}

// Connect dials the server
func (transport *SocketTransport) Connect() error {
	conn, err := net.Dial("tcp", transport.address)
	if err != nil {
		return err
	}
	transport.conn = conn
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe registers the message handler and starts the reception routine
func (transport *SocketTransport) Subscribe(handler MsgHandler) {
	transport.mu.Lock()
	defer transport.mu.Unlock()
	transport.handler = handler
	if transport.isRunning {
		return
	}
	transport.wg.Add(1)
	transport.isRunning = true
	transport.errSubscriber = false
	go transport.handleReception()
}

// Recv reads one length-prefixed unit off the stream
func (transport *SocketTransport) Recv() ([]byte, error) {
	transport.conn.SetDeadline(time.Now().Add(socketReadTimeout))
	headerBytes := make([]byte, 4)
	if _, err := io.ReadFull(transport.conn, headerBytes); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(headerBytes)
	msgBytes := make([]byte, length)
	transport.conn.SetDeadline(time.Now().Add(socketReadTimeout))
	if _, err := io.ReadFull(transport.conn, msgBytes); err != nil {
		return nil, err
	}
	return msgBytes, nil
}

func (transport *SocketTransport) handleReception() {
	defer func() {
		transport.isRunning = false
		transport.wg.Done()
	}()
	for {
		select {
		case <-transport.stopChan:
			return
		default:
			msg, err := transport.Recv()
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// No message received, this is OK
			} else if err != nil {
				log.Errorf("[SOCKET] listening routine has closed because : %v", err)
				transport.errSubscriber = true
				return
			} else if transport.handler != nil {
				transport.handler.OnMsgReceived(msg)
			}
		}
	}
}

// GetSendAvail implements TransmitHandler
func (transport *SocketTransport) GetSendAvail() int32 {
	return int32(len(transport.sendBuf))
}

// GetSendBuffer implements TransmitHandler
func (transport *SocketTransport) GetSendBuffer(length int32) []byte {
	if length <= 0 || int(length) > len(transport.sendBuf) {
		return nil
	}
	return transport.sendBuf[:length]
}

// Send implements TransmitHandler, framing the committed bytes with a
// length prefix
func (transport *SocketTransport) Send(offset int32, length int32) int32 {
	if transport.conn == nil {
		return -1
	}
	if offset < 0 || length < 0 || int(offset+length) > len(transport.sendBuf) {
		return -1
	}
	unit := make([]byte, 4+length)
	binary.BigEndian.PutUint32(unit, uint32(length))
	copy(unit[4:], transport.sendBuf[offset:offset+length])
	if _, err := transport.conn.Write(unit); err != nil {
		// A dying stream is not a reservation contract violation. The
		// reception routine notices the broken connection and the embedder
		// tears the session down via OnDisconnected.
		log.Errorf("[SOCKET] send failed: %v", err)
	}
	return length
}

// OptimalWriteSize implements TransmitHandler
func (transport *SocketTransport) OptimalWriteSize() uint32 {
	return 1
}

// Close stops the reception routine and closes the connection
func (transport *SocketTransport) Close() error {
	transport.mu.Lock()
	defer transport.mu.Unlock()
	if transport.isRunning && !transport.errSubscriber {
		// The routine may exit on a stream error before reading stopChan
		done := make(chan struct{})
		go func() {
			transport.wg.Wait()
			close(done)
		}()
		select {
		case transport.stopChan <- true:
			<-done
		case <-done:
		}
	}
	if transport.conn != nil {
		return transport.conn.Close()
	}
	return nil
}
