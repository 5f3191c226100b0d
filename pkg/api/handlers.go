package api

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/dougsko/siggen/pkg/control"
	"github.com/dougsko/siggen/pkg/engine"
	"github.com/dougsko/siggen/pkg/hardware"
	"github.com/dougsko/siggen/pkg/params"
	"github.com/dougsko/siggen/pkg/storage"
	"github.com/dougsko/siggen/pkg/waveform"
	"github.com/gin-gonic/gin"
)

// errBadValue marks request values that do not parse
var errBadValue = errors.New("invalid value")

// statusFor maps an error to the HTTP status reported for it
func statusFor(err error) int {
	var unknownKey *params.UnknownKeyError
	var readOnly *params.ReadOnlyKeyError
	var typeErr *params.TypeError
	var unknownType *waveform.UnknownWaveformError

	switch {
	case errors.As(err, &unknownKey), errors.Is(err, storage.ErrPresetNotFound):
		return http.StatusNotFound
	case errors.Is(err, params.ErrOutOfRange), errors.As(err, &unknownType),
		errors.As(err, &readOnly), errors.As(err, &typeErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, hardware.ErrHardware):
		return http.StatusBadGateway
	case errors.Is(err, errBadValue):
		return http.StatusBadRequest
	case errors.Is(err, control.ErrNoStorage):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func abort(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{
		"error": err.Error(),
	})
}

// handleGetStatus returns the generator status
func (s *Server) handleGetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.gen.Status())
}

// handleGetParams returns every parameter in text form
func (s *Server) handleGetParams(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"params": engine.FormatParams(s.gen.Params()),
	})
}

// handleGetParam returns one parameter
func (s *Server) handleGetParam(c *gin.Context) {
	key, err := params.ParseKey(c.Param("key"))
	if err != nil {
		abort(c, err)
		return
	}
	v, err := s.gen.Get(key)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, paramBody(key, v))
}

func paramBody(key params.Key, v any) gin.H {
	body := gin.H{
		"key":   key,
		"value": v,
		"text":  params.FormatValue(v),
	}
	if r, ok := v.(params.Range); ok {
		body["value"] = gin.H{"low": r.Low, "high": r.High}
	}
	return body
}

// handleSetParam writes one parameter. The value may be a JSON number,
// a string in any form the protocol accepts, or null for automatic.
func (s *Server) handleSetParam(c *gin.Context) {
	key, err := params.ParseKey(c.Param("key"))
	if err != nil {
		abort(c, err)
		return
	}

	var req struct {
		Value interface{} `json:"value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	v, err := decodeValue(key, req.Value)
	if err != nil {
		abort(c, err)
		return
	}
	if err := s.gen.SetFrom("http", key, v); err != nil {
		abort(c, err)
		return
	}

	current, err := s.gen.Get(key)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, paramBody(key, current))
}

// decodeValue converts a JSON value into the kind declared for key
func decodeValue(key params.Key, raw interface{}) (any, error) {
	d, _ := params.Lookup(key)
	if d.ReadOnly() {
		return nil, &params.ReadOnlyKeyError{Key: key}
	}

	switch x := raw.(type) {
	case nil:
		return nil, nil
	case string:
		v, err := params.ParseValue(key, x)
		if err != nil {
			var ro *params.ReadOnlyKeyError
			if errors.As(err, &ro) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", errBadValue, err)
		}
		return v, nil
	case float64:
		switch d.Kind {
		case params.KindFloat:
			return x, nil
		case params.KindInt:
			if x != math.Trunc(x) {
				return nil, fmt.Errorf("%w: %s expects an integer", errBadValue, key)
			}
			return int(x), nil
		}
	}
	return nil, &params.TypeError{Key: key, Want: d.Kind, Value: raw}
}

// handleRebuild rebuilds the active waveform
func (s *Server) handleRebuild(c *gin.Context) {
	if err := s.gen.ForceRebuild(); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"type":     s.gen.Graph().Type(),
		"rebuilds": s.gen.Graph().Rebuilds(),
	})
}

// handleGetMonitor returns the current level and spectrum measurements
func (s *Server) handleGetMonitor(c *gin.Context) {
	if s.monitor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "monitor not available",
		})
		return
	}
	c.JSON(http.StatusOK, s.monitor.Snapshot())
}

// handleGetHistory returns recent parameter changes
func (s *Server) handleGetHistory(c *gin.Context) {
	if s.presets == nil {
		abort(c, control.ErrNoStorage)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(control.DefaultHistoryLimit)))
	if err != nil || limit < 0 {
		limit = control.DefaultHistoryLimit
	}

	changes, err := s.presets.History(limit)
	if err != nil {
		abort(c, err)
		return
	}
	if changes == nil {
		changes = []params.Change{}
	}
	c.JSON(http.StatusOK, gin.H{
		"history": changes,
		"count":   len(changes),
	})
}

// handleListPresets returns the saved presets
func (s *Server) handleListPresets(c *gin.Context) {
	if s.presets == nil {
		abort(c, control.ErrNoStorage)
		return
	}
	presets, err := s.presets.ListPresets()
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"presets": presets,
		"count":   len(presets),
	})
}

// handleSavePreset stores the current parameters under a name
func (s *Server) handleSavePreset(c *gin.Context) {
	if s.presets == nil {
		abort(c, control.ErrNoStorage)
		return
	}

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.presets.SavePreset(req.Name, s.gen.Params()); err != nil {
		abort(c, err)
		return
	}
	preset, err := s.presets.LoadPreset(req.Name)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, preset)
}

// handleApplyPreset applies a saved preset
func (s *Server) handleApplyPreset(c *gin.Context) {
	if s.presets == nil {
		abort(c, control.ErrNoStorage)
		return
	}
	name := c.Param("name")
	if err := control.LoadPreset(s.gen, s.presets, name, "http"); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"applied": name,
		"params":  engine.FormatParams(s.gen.Params()),
	})
}

// handleDeletePreset removes a saved preset
func (s *Server) handleDeletePreset(c *gin.Context) {
	if s.presets == nil {
		abort(c, control.ErrNoStorage)
		return
	}
	name := c.Param("name")
	if err := s.presets.DeletePreset(name); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"deleted": name,
	})
}
