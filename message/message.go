// Package message provides the data structures that the registration relay
// and its providers exchange over their WebSocket connection.  Every frame is
// a JSON-encoded Command:
//
//	{
//	  "command": "get-version-info",
//	  "id": 42,
//	  "data": null
//	}
//
// Commands that expect an answer carry an ID, and the answer is a "response"
// command with the same ID.
package message

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Command names.
const (
	CmdRegister          = "register"
	CmdResponse          = "response"
	CmdPing              = "ping"
	CmdPong              = "pong"
	CmdGetVersionInfo    = "get-version-info"
	CmdGetValidationData = "get-validation-data"
)

// SoftwareName is the name of the operating system that we report.
const SoftwareName = "iPhone OS"

var (
	errNoID   = errors.New("command has no ID to respond to")
	errNoData = errors.New("command carries no data")
)

// Empty represents a command payload without fields.
type Empty struct{}

// Command represents a single frame.
type Command struct {
	Command string          `json:"command"`
	ID      *uint64         `json:"id"`
	Data    json.RawMessage `json:"data"`
}

// New returns a new command without ID.  If data is nil, the command carries
// no data.
func New(command string, data interface{}) (*Command, error) {
	c := &Command{Command: command}
	if data == nil {
		return c, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	c.Data = raw
	return c, nil
}

// Respond returns the response to the given command.
func (c *Command) Respond(data interface{}) (*Command, error) {
	if c.ID == nil {
		return nil, errNoID
	}
	r, err := New(CmdResponse, data)
	if err != nil {
		return nil, err
	}
	id := *c.ID
	r.ID = &id
	return r, nil
}

// Decode unmarshals the command's data into v.
func (c *Command) Decode(v interface{}) error {
	if len(c.Data) == 0 || string(c.Data) == "null" {
		return errNoData
	}
	return json.Unmarshal(c.Data, v)
}

// String implements the Stringer interface for Command.
func (c *Command) String() string {
	if c.ID == nil {
		return fmt.Sprintf("%s (no ID)", c.Command)
	}
	return fmt.Sprintf("%s (ID %d)", c.Command, *c.ID)
}

// Registration identifies a provider towards the relay.  The relay hands out
// the registration when a provider first connects, and the provider presents
// it again whenever it reconnects.
type Registration struct {
	Code   string `json:"code"`
	Secret string `json:"secret"`
}

// Valid returns true if both the code and the secret are set.
func (r *Registration) Valid() bool {
	return r.Code != "" && r.Secret != ""
}

// Versions describes the device that runs the provider.
type Versions struct {
	HardwareVersion string `json:"hardware_version"`
	SoftwareName    string `json:"software_name"`
	SoftwareVersion string `json:"software_version"`
	SoftwareBuildID string `json:"software_build_id"`
	UniqueDeviceID  string `json:"unique_device_id"`
	SerialNumber    string `json:"serial_number"`
}

// VersionInfo is the payload of the response to get-version-info.
type VersionInfo struct {
	Versions Versions `json:"versions"`
}

// ValidationData is the payload of the response to get-validation-data.
type ValidationData struct {
	Data string `json:"data"`
}

// NewValidationData returns the payload that carries the given validation
// data.
func NewValidationData(data []byte) *ValidationData {
	return &ValidationData{Data: base64.StdEncoding.EncodeToString(data)}
}

// Bytes returns the decoded validation data.
func (v *ValidationData) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(v.Data)
}
