package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Command represents a command sent to the generator
type Command struct {
	Type string                 `json:"type"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// Response represents a response from the generator
type Response struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Protocol commands
const (
	CmdPing    = "PING"
	CmdStatus  = "STATUS"
	CmdParams  = "PARAMS"
	CmdGet     = "GET"
	CmdSet     = "SET"
	CmdRebuild = "REBUILD"
	CmdPreset  = "PRESET"
	CmdHistory = "HISTORY"
	CmdHelp    = "HELP"
	CmdQuit    = "QUIT"
)

// Preset actions
const (
	PresetList   = "list"
	PresetSave   = "save"
	PresetLoad   = "load"
	PresetDelete = "delete"
)

// Help lists every command with a short usage line
var Help = []string{
	"PING                        check the connection",
	"STATUS                      generator and waveform status",
	"PARAMS                      all parameter values",
	"GET key                     one parameter value",
	"SET key value               write a parameter (value 'auto' unsets)",
	"REBUILD                     rebuild the active waveform",
	"PRESET list|save|load|delete [name]",
	"HISTORY [n]                 recent parameter changes",
	"HELP                        this text",
	"QUIT                        close the connection",
}

// ParseCommand parses a text command into a Command struct. Fields are
// separated by ':' or whitespace, so "SET:tx_freq:433.92M" and
// "set tx_freq 433.92M" are the same command.
func ParseCommand(text string) (*Command, error) {
	fields := splitFields(text)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := &Command{
		Type: strings.ToUpper(fields[0]),
		Args: make(map[string]interface{}),
	}
	args := fields[1:]

	switch cmd.Type {
	case CmdPing, CmdStatus, CmdParams, CmdRebuild, CmdHelp, CmdQuit:
		if len(args) > 0 {
			return nil, fmt.Errorf("%s takes no arguments", cmd.Type)
		}

	case CmdGet:
		// GET:tx_freq
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: GET key")
		}
		cmd.Args["key"] = strings.ToLower(args[0])

	case CmdSet:
		// SET:tx_freq:433.92M
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: SET key value")
		}
		cmd.Args["key"] = strings.ToLower(args[0])
		cmd.Args["value"] = args[1]

	case CmdPreset:
		// PRESET:save:beacon
		if len(args) == 0 {
			return nil, fmt.Errorf("usage: PRESET list|save|load|delete [name]")
		}
		action := strings.ToLower(args[0])
		cmd.Args["action"] = action
		switch action {
		case PresetList:
			if len(args) != 1 {
				return nil, fmt.Errorf("usage: PRESET list")
			}
		case PresetSave, PresetLoad, PresetDelete:
			if len(args) != 2 {
				return nil, fmt.Errorf("usage: PRESET %s name", action)
			}
			cmd.Args["name"] = args[1]
		default:
			return nil, fmt.Errorf("unknown preset action: %s", args[0])
		}

	case CmdHistory:
		// HISTORY:20
		if len(args) > 1 {
			return nil, fmt.Errorf("usage: HISTORY [n]")
		}
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid history limit: %s", args[0])
			}
			cmd.Args["limit"] = n
		}

	default:
		return nil, fmt.Errorf("unknown command: %s", fields[0])
	}

	return cmd, nil
}

// splitFields splits on ':' and whitespace. A value may itself contain
// ':' (a range), so SET keeps everything after the key as the value.
func splitFields(text string) []string {
	text = strings.TrimSpace(text)
	sep := func(r rune) bool {
		return r == ':' || r == ' ' || r == '\t'
	}

	var fields []string
	for len(text) > 0 {
		i := strings.IndexFunc(text, sep)
		if i < 0 {
			fields = append(fields, text)
			break
		}
		if i > 0 {
			fields = append(fields, text[:i])
		}
		text = text[i+1:]
		if len(fields) == 2 && strings.EqualFold(fields[0], CmdSet) {
			if v := strings.TrimSpace(text); v != "" {
				fields = append(fields, v)
			}
			break
		}
	}
	return fields
}

// String converts a Response to a JSON string
func (r *Response) String() string {
	data, _ := json.Marshal(r)
	return string(data)
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data map[string]interface{}) *Response {
	return &Response{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}
