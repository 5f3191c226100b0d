// Package script drives the generator from Lua.
//
// A script sees these globals:
//
//	set(key, value)   write a parameter; value is a number, a string or nil
//	get(key)          read a parameter; ranges return low, high
//	params()          table of every parameter in text form
//	rebuild()         rebuild the active waveform
//	sleep(seconds)    pause, returning early with an error on cancellation
//	log(...)          write to the siggen log
package script

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dougsko/siggen/pkg/engine"
	"github.com/dougsko/siggen/pkg/logging"
	"github.com/dougsko/siggen/pkg/params"
	lua "github.com/yuin/gopher-lua"
)

// DefaultSource is the journal source of script writes
const DefaultSource = "script"

// Runner executes Lua scripts against a generator
type Runner struct {
	gen    *engine.Generator
	source string
}

// NewRunner creates a runner for gen
func NewRunner(gen *engine.Generator) *Runner {
	return &Runner{gen: gen, source: DefaultSource}
}

// WithSource returns a copy of r that journals writes under source
func (r *Runner) WithSource(source string) *Runner {
	c := *r
	c.source = source
	return &c
}

// RunFile executes the script at path until it returns or ctx is done
func (r *Runner) RunFile(ctx context.Context, path string) error {
	return r.run(ctx, path, func(L *lua.LState) error {
		return L.DoFile(path)
	})
}

// RunString executes code until it returns or ctx is done
func (r *Runner) RunString(ctx context.Context, code string) error {
	return r.run(ctx, "<string>", func(L *lua.LState) error {
		return L.DoString(code)
	})
}

func (r *Runner) run(ctx context.Context, name string, do func(*lua.LState) error) error {
	L := lua.NewState()
	defer L.Close()

	L.SetContext(ctx)
	r.register(L)

	logging.Debugf("script", "running %s", name)
	if err := do(L); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("script %s: %w", name, ctxErr)
		}
		return fmt.Errorf("script %s: %w", name, err)
	}
	logging.Debugf("script", "%s finished", name)
	return nil
}

func (r *Runner) register(L *lua.LState) {
	L.SetGlobal("set", L.NewFunction(r.luaSet))
	L.SetGlobal("get", L.NewFunction(r.luaGet))
	L.SetGlobal("params", L.NewFunction(r.luaParams))
	L.SetGlobal("rebuild", L.NewFunction(r.luaRebuild))
	L.SetGlobal("sleep", L.NewFunction(luaSleep))
	L.SetGlobal("log", L.NewFunction(luaLog))
}

func checkKey(L *lua.LState, n int) params.Key {
	key, err := params.ParseKey(L.CheckString(n))
	if err != nil {
		L.ArgError(n, err.Error())
	}
	return key
}

// toValue converts a Lua value into the kind declared for key
func toValue(L *lua.LState, key params.Key, lv lua.LValue) any {
	d, _ := params.Lookup(key)
	switch v := lv.(type) {
	case *lua.LNilType:
		return nil
	case lua.LString:
		parsed, err := params.ParseValue(key, string(v))
		if err != nil {
			L.RaiseError("%v", err)
		}
		return parsed
	case lua.LNumber:
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			L.RaiseError("%s: %v is not a finite number", key, f)
		}
		if d.Kind == params.KindInt {
			if f != math.Trunc(f) {
				L.RaiseError("%s expects an integer, got %v", key, f)
			}
			return int(f)
		}
		return f
	default:
		L.RaiseError("%s: unsupported value of type %s", key, lv.Type())
		return nil
	}
}

func (r *Runner) luaSet(L *lua.LState) int {
	key := checkKey(L, 1)
	v := toValue(L, key, L.Get(2))
	if err := r.gen.SetFrom(r.source, key, v); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func (r *Runner) luaGet(L *lua.LState) int {
	key := checkKey(L, 1)
	v, err := r.gen.Get(key)
	if err != nil {
		L.RaiseError("%v", err)
	}
	switch x := v.(type) {
	case nil:
		L.Push(lua.LNil)
	case float64:
		L.Push(lua.LNumber(x))
	case int:
		L.Push(lua.LNumber(x))
	case string:
		L.Push(lua.LString(x))
	case params.Range:
		L.Push(lua.LNumber(x.Low))
		L.Push(lua.LNumber(x.High))
		return 2
	default:
		L.Push(lua.LString(params.FormatValue(v)))
	}
	return 1
}

func (r *Runner) luaParams(L *lua.LState) int {
	t := L.NewTable()
	for name, text := range engine.FormatParams(r.gen.Params()) {
		L.SetField(t, name, lua.LString(text))
	}
	L.Push(t)
	return 1
}

func (r *Runner) luaRebuild(L *lua.LState) int {
	if err := r.gen.ForceRebuild(); err != nil {
		L.RaiseError("%v", err)
	}
	return 0
}

func luaSleep(L *lua.LState) int {
	seconds := float64(L.CheckNumber(1))
	if seconds <= 0 {
		return 0
	}
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()

	ctx := L.Context()
	if ctx == nil {
		<-timer.C
		return 0
	}
	select {
	case <-timer.C:
	case <-ctx.Done():
		L.RaiseError("%v", ctx.Err())
	}
	return 0
}

func luaLog(L *lua.LState) int {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.Get(i).String())
	}
	logging.Infof("script", "%s", strings.Join(parts, " "))
	return 0
}
