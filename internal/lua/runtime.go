// Package lua hosts the optional plan script on a single-threaded Lua VM.
package lua

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/dimplan/internal/daycycle"
	"github.com/dokzlo13/dimplan/internal/lua/modules"
	"github.com/dokzlo13/dimplan/internal/plan"
)

// LevelsHook is the global a script defines to observe evaluations:
//
//	function on_levels(levels, time) ... end
const LevelsHook = "on_levels"

// LuaWork represents work to be executed on the Lua VM
// All Lua execution MUST go through this to ensure thread safety
type LuaWork func(ctx context.Context)

// Runtime manages the Lua VM with single-threaded execution
type Runtime struct {
	L *lua.LState

	// Work queue for thread-safe Lua execution
	workQueue chan LuaWork

	// Shutdown signaling - closing this channel signals senders to stop
	closing   chan struct{}
	closeOnce sync.Once
}

// NewRuntime creates a new Lua runtime exposing the log and plan modules.
// Script edits to the plan go through editor.
func NewRuntime(p *plan.Plan, editor modules.Editor, clock func() time.Time) *Runtime {
	r := &Runtime{
		L:         lua.NewState(),
		workQueue: make(chan LuaWork, 100),
		closing:   make(chan struct{}),
	}

	r.L.PreloadModule("log", modules.NewLogModule().Loader)
	r.L.PreloadModule("plan", modules.NewPlanModule(p, editor, clock).Loader)

	return r
}

// Close signals the runtime to stop accepting new work and closes the Lua state.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)
	})
	// workQueue stays open to avoid send-on-closed-channel panics
	r.L.Close()
}

// Do queues work to be executed on the Lua VM (thread-safe, non-blocking)
// Returns false if the runtime is closing, queue is full, or context is cancelled.
func (r *Runtime) Do(ctx context.Context, work LuaWork) bool {
	select {
	case <-r.closing:
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	case <-ctx.Done():
		log.Warn().Msg("Context cancelled, dropping Lua work")
		return false
	case r.workQueue <- work:
		return true
	default:
		log.Warn().Msg("Lua work queue full, dropping work")
		return false
	}
}

// Run starts the Lua worker goroutine - this is the ONLY goroutine that touches Lua
// once a script is loaded. Exits when context is cancelled or runtime is closed.
func (r *Runtime) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drainQueue(ctx)
			return
		case <-r.closing:
			return
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		}
	}
}

// drainQueue processes any remaining work in the queue before exiting
func (r *Runtime) drainQueue(ctx context.Context) {
	for {
		select {
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		default:
			return
		}
	}
}

// executeWork runs a single work item with panic recovery
func (r *Runtime) executeWork(ctx context.Context, work LuaWork) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Lua work panicked - worker continuing")
		}
	}()
	r.L.SetContext(ctx)
	work(ctx)
}

// LoadScript reads and executes the script at path (must be called before Run)
func (r *Runtime) LoadScript(path string) error {
	log.Info().Str("path", path).Msg("Loading Lua script")

	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read Lua script: %w", err)
	}
	if err := r.Load(path, string(source)); err != nil {
		return err
	}

	log.Info().Bool("on_levels", r.hasLevelsHook()).Msg("Lua script loaded successfully")
	return nil
}

// Load executes source as a chunk called name (must be called before Run)
func (r *Runtime) Load(name, source string) error {
	fn, err := r.L.Load(strings.NewReader(source), name)
	if err != nil {
		return fmt.Errorf("failed to compile Lua chunk %s: %w", name, err)
	}
	r.L.Push(fn)
	if err := r.L.PCall(0, lua.MultRet, nil); err != nil {
		return fmt.Errorf("failed to execute Lua chunk %s: %w", name, err)
	}
	return nil
}

// HandleLevels queues a call to the script's on_levels hook, if any
func (r *Runtime) HandleLevels(ctx context.Context, at daycycle.TimeOfDay, levels map[string]plan.Level) bool {
	return r.Do(ctx, func(context.Context) {
		if err := r.callLevels(at, levels); err != nil {
			log.Error().Err(err).Str("time", at.String()).Msg("Lua on_levels failed")
		}
	})
}

// callLevels must run on the worker goroutine
func (r *Runtime) callLevels(at daycycle.TimeOfDay, levels map[string]plan.Level) error {
	fn, ok := r.L.GetGlobal(LevelsHook).(*lua.LFunction)
	if !ok {
		return nil
	}
	return r.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, modules.LevelsToTable(r.L, levels), lua.LString(at.String()))
}

func (r *Runtime) hasLevelsHook() bool {
	_, ok := r.L.GetGlobal(LevelsHook).(*lua.LFunction)
	return ok
}
