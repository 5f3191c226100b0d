package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/dougsko/siggen/pkg/engine"
	"github.com/dougsko/siggen/pkg/params"
	"github.com/dougsko/siggen/pkg/protocol"
	"github.com/dougsko/siggen/pkg/storage"
)

// SocketClient represents a client connection to the control socket
type SocketClient struct {
	socketPath string
	timeout    time.Duration
}

// NewSocketClient creates a new socket client
func NewSocketClient(socketPath string) *SocketClient {
	return &SocketClient{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// SetTimeout changes the per-command timeout
func (c *SocketClient) SetTimeout(d time.Duration) {
	c.timeout = d
}

// SendCommand sends a command and returns the response
func (c *SocketClient) SendCommand(cmd string) (*protocol.Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket: %w", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		return nil, fmt.Errorf("send error: %w", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		return nil, fmt.Errorf("no response received")
	}

	var response protocol.Response
	if err := json.Unmarshal(scanner.Bytes(), &response); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	return &response, nil
}

// call runs cmd and fails on an unsuccessful response
func (c *SocketClient) call(what, cmd string) (*protocol.Response, error) {
	resp, err := c.SendCommand(cmd)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%s error: %s", what, resp.Error)
	}
	return resp, nil
}

// decode converts one field of the response data into out
func decode(resp *protocol.Response, field string, out interface{}) error {
	raw, ok := resp.Data[field]
	if !ok {
		return fmt.Errorf("%s not found in response", field)
	}
	// Convert to JSON and back to parse properly
	data, _ := json.Marshal(raw)
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", field, err)
	}
	return nil
}

// GetStatus gets the current generator status
func (c *SocketClient) GetStatus() (*engine.Status, error) {
	resp, err := c.call("status", protocol.CmdStatus)
	if err != nil {
		return nil, err
	}
	var status engine.Status
	if err := decode(resp, "status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetParams returns every parameter in text form
func (c *SocketClient) GetParams() (map[string]string, error) {
	resp, err := c.call("params", protocol.CmdParams)
	if err != nil {
		return nil, err
	}
	var values map[string]string
	if err := decode(resp, "params", &values); err != nil {
		return nil, err
	}
	return values, nil
}

// Get returns the text form of one parameter
func (c *SocketClient) Get(key params.Key) (string, error) {
	resp, err := c.call("get", fmt.Sprintf("%s:%s", protocol.CmdGet, key))
	if err != nil {
		return "", err
	}
	var value string
	err = decode(resp, "value", &value)
	return value, err
}

// Set writes a parameter and returns the value that took effect
func (c *SocketClient) Set(key params.Key, value string) (string, error) {
	resp, err := c.call("set", fmt.Sprintf("%s:%s:%s", protocol.CmdSet, key, value))
	if err != nil {
		return "", err
	}
	var applied string
	err = decode(resp, "value", &applied)
	return applied, err
}

// Rebuild rebuilds the active waveform
func (c *SocketClient) Rebuild() error {
	_, err := c.call("rebuild", protocol.CmdRebuild)
	return err
}

// ListPresets returns the saved presets
func (c *SocketClient) ListPresets() ([]storage.Preset, error) {
	resp, err := c.call("preset", protocol.CmdPreset+":"+protocol.PresetList)
	if err != nil {
		return nil, err
	}
	var presets []storage.Preset
	if err := decode(resp, "presets", &presets); err != nil {
		return nil, err
	}
	return presets, nil
}

// SavePreset stores the current parameters under name
func (c *SocketClient) SavePreset(name string) error {
	_, err := c.call("preset", fmt.Sprintf("%s:%s:%s", protocol.CmdPreset, protocol.PresetSave, name))
	return err
}

// LoadPreset applies the preset called name
func (c *SocketClient) LoadPreset(name string) error {
	_, err := c.call("preset", fmt.Sprintf("%s:%s:%s", protocol.CmdPreset, protocol.PresetLoad, name))
	return err
}

// DeletePreset removes the preset called name
func (c *SocketClient) DeletePreset(name string) error {
	_, err := c.call("preset", fmt.Sprintf("%s:%s:%s", protocol.CmdPreset, protocol.PresetDelete, name))
	return err
}

// History returns recent parameter changes, newest first
func (c *SocketClient) History(limit int) ([]params.Change, error) {
	cmd := protocol.CmdHistory
	if limit > 0 {
		cmd = fmt.Sprintf("%s:%d", protocol.CmdHistory, limit)
	}
	resp, err := c.call("history", cmd)
	if err != nil {
		return nil, err
	}
	var changes []params.Change
	if raw, ok := resp.Data["history"]; !ok || raw == nil {
		return changes, nil
	}
	if err := decode(resp, "history", &changes); err != nil {
		return nil, err
	}
	return changes, nil
}

// Ping tests the connection
func (c *SocketClient) Ping() error {
	_, err := c.call("ping", protocol.CmdPing)
	return err
}

// IsConnected tests if the generator is reachable
func (c *SocketClient) IsConnected() bool {
	return c.Ping() == nil
}
