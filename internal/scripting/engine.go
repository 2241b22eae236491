package scripting

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM for simulation policy scripts.
// Single-goroutine access only (game loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given directory.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log}

	// Shared helpers first, then policy scripts
	for _, sub := range []string{"core", "kitchen"} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}

	return e, nil
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// --- Kitchen Bridge ---

// ServeContext describes a customer that just started waiting for service.
type ServeContext struct {
	Seat    int           // seat index in floor-plan order
	Waiting int           // customers currently waiting, this one included
	Active  int           // customers in the diner
	Clock   time.Duration // simulated time since start
}

// ServeResult is returned by the Lua serve_delay function.
type ServeResult struct {
	Serve bool
	Delay time.Duration
}

// HasServePolicy reports whether a serve_delay function is loaded.
func (e *Engine) HasServePolicy() bool {
	return e.vm.GetGlobal("serve_delay") != lua.LNil
}

// maxDelaySeconds is the first delay in seconds that no longer fits a Duration.
const maxDelaySeconds = float64(math.MaxInt64) / float64(time.Second)

// CalcServeDelay calls Lua serve_delay(ctx). The second result is false when
// no script answered and the caller should fall back to its default.
func (e *Engine) CalcServeDelay(ctx ServeContext) (ServeResult, bool) {
	fn := e.vm.GetGlobal("serve_delay")
	if fn == lua.LNil {
		return ServeResult{}, false
	}

	t := e.vm.NewTable()
	t.RawSetString("seat", lua.LNumber(ctx.Seat))
	t.RawSetString("waiting", lua.LNumber(ctx.Waiting))
	t.RawSetString("active", lua.LNumber(ctx.Active))
	t.RawSetString("clock", lua.LNumber(ctx.Clock.Seconds()))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua serve_delay error", zap.Error(err))
		return ServeResult{}, false
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	secs, ok := result.(lua.LNumber)
	if !ok {
		e.log.Error("lua serve_delay returned non-number", zap.String("type", result.Type().String()))
		return ServeResult{}, false
	}
	f := float64(secs)
	if math.IsNaN(f) {
		e.log.Error("lua serve_delay returned NaN")
		return ServeResult{}, false
	}
	// Negative, infinite or beyond the Duration range: never served.
	if f < 0 || f >= maxDelaySeconds {
		return ServeResult{Serve: false}, true
	}
	return ServeResult{
		Serve: true,
		Delay: time.Duration(f * float64(time.Second)),
	}, true
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}
