package apx

import (
	"gopkg.in/ini.v1"
)

// Init-time configuration of a client node, typically loaded from an ini
// style file:
//
//	[node]
//	name = VehicleNode
//
//	[connection]
//	server = localhost:5000
//	send_buffer = 4096
//
//	[filemanager]
//	queue_size = 32
//	receive_buffer = 4096
//	optimize_write_notifications = true
type Config struct {
	NodeName                   string
	ServerAddress              string
	SendBufferSize             uint32
	QueueSize                  uint16
	ReceiveBufferSize          uint32
	OptimizeWriteNotifications bool
}

// DefaultConfig returns a Config with usable defaults for small nodes
func DefaultConfig() *Config {
	return &Config{
		NodeName:                   "ApxNode",
		ServerAddress:              "localhost:5000",
		SendBufferSize:             4096,
		QueueSize:                  32,
		ReceiveBufferSize:          4096,
		OptimizeWriteNotifications: APX_OPTIMIZE_WRITE_NOTIFICATIONS,
	}
}

// ParseConfigFromFile loads a configuration file, filling missing keys with
// defaults
func ParseConfigFromFile(filePath string) (*Config, error) {
	iniFile, err := ini.Load(filePath)
	if err != nil {
		return nil, err
	}
	return parseConfig(iniFile)
}

// ParseConfigFromRaw loads configuration from raw ini bytes
func ParseConfigFromRaw(raw []byte) (*Config, error) {
	iniFile, err := ini.Load(raw)
	if err != nil {
		return nil, err
	}
	return parseConfig(iniFile)
}

func parseConfig(iniFile *ini.File) (*Config, error) {
	config := DefaultConfig()
	node := iniFile.Section("node")
	if key, err := node.GetKey("name"); err == nil {
		config.NodeName = key.String()
	}
	connection := iniFile.Section("connection")
	if key, err := connection.GetKey("server"); err == nil {
		config.ServerAddress = key.String()
	}
	if key, err := connection.GetKey("send_buffer"); err == nil {
		if value, err := key.Uint(); err == nil && value > 0 {
			config.SendBufferSize = uint32(value)
		}
	}
	fileManager := iniFile.Section("filemanager")
	if key, err := fileManager.GetKey("queue_size"); err == nil {
		if value, err := key.Uint(); err == nil && value > 0 {
			config.QueueSize = uint16(value)
		}
	}
	if key, err := fileManager.GetKey("receive_buffer"); err == nil {
		if value, err := key.Uint(); err == nil && value > 0 {
			config.ReceiveBufferSize = uint32(value)
		}
	}
	if key, err := fileManager.GetKey("optimize_write_notifications"); err == nil {
		if value, err := key.Bool(); err == nil {
			config.OptimizeWriteNotifications = value
		}
	}
	return config, nil
}
