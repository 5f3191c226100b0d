// Package control executes protocol commands against a running generator
// and serves them on a unix socket.
package control

import (
	"errors"
	"fmt"
	"time"

	"github.com/dougsko/siggen/pkg/engine"
	"github.com/dougsko/siggen/pkg/params"
	"github.com/dougsko/siggen/pkg/protocol"
	"github.com/dougsko/siggen/pkg/storage"
)

// DefaultHistoryLimit is the number of changes HISTORY returns without a limit
const DefaultHistoryLimit = 20

// ErrNoStorage is returned by preset and history commands without a database
var ErrNoStorage = errors.New("storage not configured")

// Presets is the persistence the dispatcher needs
type Presets interface {
	SavePreset(name string, values map[params.Key]any) error
	LoadPreset(name string) (*storage.Preset, error)
	ListPresets() ([]storage.Preset, error)
	DeletePreset(name string) error
	History(limit int) ([]params.Change, error)
}

// Dispatcher maps protocol commands to generator operations
type Dispatcher struct {
	gen     *engine.Generator
	presets Presets
	source  string
}

// NewDispatcher creates a dispatcher. presets may be nil; source tags the
// changes it makes in the history.
func NewDispatcher(gen *engine.Generator, presets Presets, source string) *Dispatcher {
	return &Dispatcher{
		gen:     gen,
		presets: presets,
		source:  source,
	}
}

// WithSource returns a dispatcher sharing d's generator that records
// under another source
func (d *Dispatcher) WithSource(source string) *Dispatcher {
	return &Dispatcher{gen: d.gen, presets: d.presets, source: source}
}

// Execute parses and runs one line. quit is true after QUIT.
func (d *Dispatcher) Execute(line string) (resp *protocol.Response, quit bool) {
	cmd, err := protocol.ParseCommand(line)
	if err != nil {
		return protocol.NewErrorResponse(fmt.Sprintf("parse error: %v", err)), false
	}
	return d.Handle(cmd), cmd.Type == protocol.CmdQuit
}

// Handle processes a single command
func (d *Dispatcher) Handle(cmd *protocol.Command) *protocol.Response {
	switch cmd.Type {
	case protocol.CmdPing:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"pong": time.Now().Unix(),
		})

	case protocol.CmdStatus:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"status": d.gen.Status(),
		})

	case protocol.CmdParams:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"params": engine.FormatParams(d.gen.Params()),
		})

	case protocol.CmdGet:
		return d.handleGet(cmd)

	case protocol.CmdSet:
		return d.handleSet(cmd)

	case protocol.CmdRebuild:
		if err := d.gen.ForceRebuild(); err != nil {
			return protocol.NewErrorResponse(err.Error())
		}
		return protocol.NewSuccessResponse(map[string]interface{}{
			"type":     d.gen.Graph().Type(),
			"rebuilds": d.gen.Graph().Rebuilds(),
		})

	case protocol.CmdPreset:
		return d.handlePreset(cmd)

	case protocol.CmdHistory:
		return d.handleHistory(cmd)

	case protocol.CmdHelp:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"help": protocol.Help,
		})

	case protocol.CmdQuit:
		return protocol.NewSuccessResponse(map[string]interface{}{
			"message": "goodbye",
		})

	default:
		return protocol.NewErrorResponse(fmt.Sprintf("unknown command: %s", cmd.Type))
	}
}

func argString(cmd *protocol.Command, name string) string {
	s, _ := cmd.Args[name].(string)
	return s
}

func (d *Dispatcher) handleGet(cmd *protocol.Command) *protocol.Response {
	key, err := params.ParseKey(argString(cmd, "key"))
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}
	v, err := d.gen.Get(key)
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"key":   key,
		"value": params.FormatValue(v),
	})
}

func (d *Dispatcher) handleSet(cmd *protocol.Command) *protocol.Response {
	key, err := params.ParseKey(argString(cmd, "key"))
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}
	v, err := params.ParseValue(key, argString(cmd, "value"))
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}
	if err := d.gen.SetFrom(d.source, key, v); err != nil {
		return protocol.NewErrorResponse(err.Error())
	}

	// report what the hardware settled on
	current, err := d.gen.Get(key)
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"key":   key,
		"value": params.FormatValue(current),
	})
}

func (d *Dispatcher) handlePreset(cmd *protocol.Command) *protocol.Response {
	if d.presets == nil {
		return protocol.NewErrorResponse(ErrNoStorage.Error())
	}
	name := argString(cmd, "name")

	switch argString(cmd, "action") {
	case protocol.PresetList:
		presets, err := d.presets.ListPresets()
		if err != nil {
			return protocol.NewErrorResponse(err.Error())
		}
		return protocol.NewSuccessResponse(map[string]interface{}{
			"presets": presets,
			"count":   len(presets),
		})

	case protocol.PresetSave:
		if err := d.presets.SavePreset(name, d.gen.Params()); err != nil {
			return protocol.NewErrorResponse(err.Error())
		}
		return protocol.NewSuccessResponse(map[string]interface{}{
			"saved": name,
		})

	case protocol.PresetLoad:
		if err := LoadPreset(d.gen, d.presets, name, d.source); err != nil {
			return protocol.NewErrorResponse(err.Error())
		}
		return protocol.NewSuccessResponse(map[string]interface{}{
			"loaded": name,
			"params": engine.FormatParams(d.gen.Params()),
		})

	case protocol.PresetDelete:
		if err := d.presets.DeletePreset(name); err != nil {
			return protocol.NewErrorResponse(err.Error())
		}
		return protocol.NewSuccessResponse(map[string]interface{}{
			"deleted": name,
		})

	default:
		return protocol.NewErrorResponse(fmt.Sprintf("unknown preset action: %v", cmd.Args["action"]))
	}
}

func (d *Dispatcher) handleHistory(cmd *protocol.Command) *protocol.Response {
	if d.presets == nil {
		return protocol.NewErrorResponse(ErrNoStorage.Error())
	}
	limit, ok := cmd.Args["limit"].(int)
	if !ok {
		limit = DefaultHistoryLimit
	}
	changes, err := d.presets.History(limit)
	if err != nil {
		return protocol.NewErrorResponse(err.Error())
	}
	return protocol.NewSuccessResponse(map[string]interface{}{
		"history": changes,
		"count":   len(changes),
	})
}

// LoadPreset applies the preset called name to gen
func LoadPreset(gen *engine.Generator, presets Presets, name, source string) error {
	p, err := presets.LoadPreset(name)
	if err != nil {
		return err
	}
	values, err := p.Decode()
	if err != nil {
		return err
	}
	return gen.Apply(source+":"+name, values)
}
