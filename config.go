package main

import (
	"log"
	"os"
)

// Process-level configuration from environment
var (
	HTTP_PORT int
	dataDir   string
	configDir string
	debugMode bool
)

func init() {
	debugMode = os.Getenv("DEBUG_MODE") == "true"

	// Check for high-port development mode
	if os.Getenv("HIGH_PORT_MODE") == "true" {
		log.Println("Running in HIGH_PORT_MODE - using non-privileged port")
		HTTP_PORT = 8080 // Instead of 80
	} else {
		HTTP_PORT = 80
	}

	dataDir = os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	configDir = os.Getenv("CONFIG_DIR")
	if configDir == "" {
		configDir = "./config"
	}

	log.Printf("Configuration: HTTP=%d, data=%s, config=%s, debug=%v",
		HTTP_PORT, dataDir, configDir, debugMode)
}
