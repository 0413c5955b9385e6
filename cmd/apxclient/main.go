package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	apx "github.com/apx-go/apx"
	log "github.com/sirupsen/logrus"
)

const DEFAULT_CONFIG_PATH = "apxclient.ini"

func main() {
	configPath := flag.String("c", DEFAULT_CONFIG_PATH, "configuration file path")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	config, err := apx.ParseConfigFromFile(*configPath)
	if err != nil {
		log.Warnf("could not load %v (%v), using defaults", *configPath, err)
		config = apx.DefaultConfig()
	}

	transport := apx.NewSocketTransport(config.ServerAddress, config.SendBufferSize)
	client, err := apx.NewClient(transport, config)
	if err != nil {
		fmt.Printf("error creating client : %v\n", err)
		os.Exit(1)
	}

	// A small demo node : one byte of provide port data, one byte of
	// require port data
	definition := []byte(fmt.Sprintf("APX/1.2\nN\"%s\"\n", config.NodeName))
	node, err := apx.NewNodeData(config.NodeName, definition, 1, 1)
	if err != nil {
		fmt.Printf("error creating node : %v\n", err)
		os.Exit(1)
	}
	node.SetPortWriteCallback(func(offset uint32, length uint32) {
		value := make([]byte, 1)
		node.ReadInPortData(value, 0)
		log.Infof("require port data updated : %v", value[0])
	})
	if err := client.AttachNode(node); err != nil {
		fmt.Printf("error attaching node : %v\n", err)
		os.Exit(1)
	}

	if err := client.Connect(); err != nil {
		fmt.Printf("could not connect to %v : %v\n", config.ServerAddress, err)
		os.Exit(1)
	}
	defer client.Disconnect()
	log.Infof("connected to %v as node %v", config.ServerAddress, config.NodeName)

	// Publish a counter on the provide port
	counter := uint8(0)
	for {
		time.Sleep(time.Second)
		counter++
		if err := client.WriteOutPortData([]byte{counter}, 0); err != nil {
			log.Errorf("write failed : %v", err)
		}
	}
}
