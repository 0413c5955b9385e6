package apx

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Transport is what a Client needs from the layer below: the transmit
// handler operations plus connection management and message delivery
type Transport interface {
	TransmitHandler
	Subscribe(handler MsgHandler)
	Connect() error
	Close() error
}

const clientProcessPeriod = time.Millisecond

// Client ties a transport, a file manager and a node together and provides
// the mutual exclusion the single-context core asks the embedder for. All
// file manager access goes through the client mutex, including the
// reception path and the periodic Run driver.
type Client struct {
	mu          sync.Mutex
	transport   Transport
	fileManager *FileManager
	nodeData    *NodeData
	stopChan    chan bool
	wg          sync.WaitGroup
	isRunning   bool
}

// NewClient creates a client with a file manager sized from config
func NewClient(transport Transport, config *Config) (*Client, error) {
	if transport == nil {
		return nil, ErrNullPtr
	}
	if config == nil {
		config = DefaultConfig()
	}
	manager, err := NewFileManager(config.QueueSize, make([]byte, config.ReceiveBufferSize))
	if err != nil {
		return nil, err
	}
	manager.optimizeWriteNotify = config.OptimizeWriteNotifications
	manager.SetTransmitHandler(transport)
	client := &Client{
		transport:   transport,
		fileManager: manager,
		stopChan:    make(chan bool),
	}
	return client, nil
}

// AttachNode registers the node whose files this client exchanges. Must be
// called before Connect.
func (client *Client) AttachNode(nodeData *NodeData) error {
	if nodeData == nil {
		return ErrNullPtr
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	client.nodeData = nodeData
	return nodeData.Attach(client.fileManager)
}

// OnMsgReceived implements MsgHandler for the transport reception routine
func (client *Client) OnMsgReceived(msgBuf []byte) {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.fileManager.OnMsgReceived(msgBuf)
}

// Connect brings the transport up, announces local files and starts the
// periodic processing routine
func (client *Client) Connect() error {
	client.transport.Subscribe(client)
	if err := client.transport.Connect(); err != nil {
		return err
	}
	client.mu.Lock()
	client.fileManager.OnConnected()
	client.mu.Unlock()
	client.wg.Add(1)
	client.isRunning = true
	go client.process()
	log.Infof("[CLIENT] connected")
	return nil
}

// Disconnect stops processing, resets the session and closes the transport
func (client *Client) Disconnect() error {
	if client.isRunning {
		client.stopChan <- true
		client.wg.Wait()
		client.isRunning = false
	}
	client.mu.Lock()
	client.fileManager.OnDisconnected()
	client.mu.Unlock()
	return client.transport.Close()
}

func (client *Client) process() {
	defer client.wg.Done()
	ticker := time.NewTicker(clientProcessPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-client.stopChan:
			return
		case <-ticker.C:
			client.mu.Lock()
			client.fileManager.Run()
			client.mu.Unlock()
		}
	}
}

// WriteOutPortData publishes a provide port data change of the attached
// node
func (client *Client) WriteOutPortData(src []byte, offset uint32) error {
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.nodeData == nil {
		return ErrInvalidState
	}
	return client.nodeData.WriteOutPortData(src, offset)
}

// ReadInPortData reads require port data of the attached node
func (client *Client) ReadInPortData(dest []byte, offset uint32) error {
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.nodeData == nil {
		return ErrInvalidState
	}
	return client.nodeData.ReadInPortData(dest, offset)
}

// FileManager exposes the underlying manager for advanced embedders. The
// caller is responsible for not breaking the single-context contract.
func (client *Client) FileManager() *FileManager {
	return client.fileManager
}
