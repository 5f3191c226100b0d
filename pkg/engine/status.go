package engine

import (
	"time"

	"github.com/dougsko/siggen/pkg/hardware"
	"github.com/dougsko/siggen/pkg/params"
	"github.com/dougsko/siggen/pkg/waveform"
)

// Status is a point-in-time view of the generator
type Status struct {
	Running         bool               `json:"running"`
	Uptime          string             `json:"uptime,omitempty"`
	StartTime       time.Time          `json:"start_time,omitempty"`
	Type            waveform.Type      `json:"type"`
	Description     string             `json:"description"`
	SinkConnections int                `json:"sink_connections"`
	Connections     []waveform.Edge    `json:"connections"`
	Blocks          map[string]float64 `json:"blocks,omitempty"`
	Device          hardware.Info      `json:"device"`
	Params          map[string]string  `json:"params"`
}

// Status snapshots the generator state
func (g *Generator) Status() Status {
	t := g.graph.Type()
	st := Status{
		Running:         g.Running(),
		Type:            t,
		Description:     t.Description(),
		SinkConnections: g.graph.SinkConnections(),
		Connections:     g.graph.Connections(),
		Blocks:          g.graph.Describe(),
		Device:          g.sink.Info(),
		Params:          FormatParams(g.Params()),
	}
	if st.Running {
		g.runMutex.Lock()
		st.StartTime = g.startTime
		g.runMutex.Unlock()
		st.Uptime = time.Since(st.StartTime).Round(time.Second).String()
	}
	return st
}

// FormatParams renders a snapshot in text form keyed by name
func FormatParams(snap map[params.Key]any) map[string]string {
	out := make(map[string]string, len(snap))
	for k, v := range snap {
		out[string(k)] = params.FormatValue(v)
	}
	return out
}
