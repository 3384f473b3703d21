// Package config loads the proxy's JSON configuration record.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	sscipher "shadowtun/cipher"
)

// Tunnel selects the wire transport between local and server peers.
type Tunnel string

const (
	TunnelTCP Tunnel = "tcp"
	TunnelWS  Tunnel = "ws"
	TunnelWSS Tunnel = "wss"
)

// Config is the record both peers load at startup.
type Config struct {
	Server        string `json:"server"`
	ServerPort    int    `json:"server_port"`
	LocalAddress  string `json:"local_address"`
	LocalPort     int    `json:"local_port"`
	LocalHTTPPort int    `json:"local_http_port"`
	Password      string `json:"password"`
	Method        string `json:"method"`
	Timeout       int    `json:"timeout"`
	Tunnel        Tunnel `json:"tunnel"`
}

// Validate checks that Method names a registered cipher suite, Tunnel
// names a supported transport, and the required address fields are
// present, failing fast the way a misconfigured process should rather
// than discovering the problem on the first session.
func (c *Config) Validate() error {
	if _, err := sscipher.Lookup(c.Method); err != nil {
		return err
	}
	switch c.Tunnel {
	case "", TunnelTCP, TunnelWS, TunnelWSS:
	default:
		return fmt.Errorf("config: unsupported tunnel %q", c.Tunnel)
	}
	if c.Server == "" {
		return fmt.Errorf("config: server address required")
	}
	if c.Password == "" {
		return fmt.Errorf("config: password required")
	}
	return nil
}

// ServerAddr returns the server peer's dial address.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server, c.ServerPort)
}

// ListenAddr returns the local peer's SOCKS5 listen address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.LocalAddress, c.LocalPort)
}

// HTTPListenAddr returns the local peer's HTTP CONNECT listen address, or
// the empty string if local_http_port is unset.
func (c *Config) HTTPListenAddr() string {
	if c.LocalHTTPPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.LocalAddress, c.LocalHTTPPort)
}

// TimeoutDuration returns Timeout as a time.Duration, falling back to
// relay.DefaultTimeout's value (300s) when Timeout is zero or negative.
func (c *Config) TimeoutDuration() time.Duration {
	if c.Timeout <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// Load parses a Config from the file at path: open, read fully, unmarshal.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
