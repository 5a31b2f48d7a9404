package client

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"sigs.k8s.io/yaml"
)

const requestTimeout = 30 * time.Second

// Config holds the information needed to connect to a SensorHub API server.
type Config struct {
	Service Service `json:"service"`
}

// Service describes how to reach the SensorHub API server.
type Service struct {
	// Server is the URL of the SensorHub API server.
	Server string `json:"server"`
}

// NewFromConfig returns a new SensorHub API client from the given config.
func NewFromConfig(config *Config) (*Client, error) {
	server := strings.TrimRight(config.Service.Server, "/")
	if server == "" {
		return nil, fmt.Errorf("client config: service.server must be set")
	}
	return &Client{
		server: server,
		http:   &http.Client{Timeout: requestTimeout},
	}, nil
}

// NewFromConfigFile returns a new SensorHub API client using the config read
// from the given file.
func NewFromConfigFile(filename string) (*Client, error) {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config: %v", err)
	}
	var config Config
	if err := yaml.Unmarshal(contents, &config); err != nil {
		return nil, fmt.Errorf("decoding config: %v", err)
	}
	return NewFromConfig(&config)
}

// WriteConfig writes a client config file using the given parameters.
func WriteConfig(filename string, server string) error {
	config := Config{Service: Service{Server: server}}
	contents, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("encoding config: %v", err)
	}
	if err := os.WriteFile(filename, contents, 0600); err != nil {
		return fmt.Errorf("writing config: %v", err)
	}
	return nil
}
