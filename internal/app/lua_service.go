package app

import (
	"context"
	"time"

	"github.com/dokzlo13/dimplan/internal/eventbus"
	luart "github.com/dokzlo13/dimplan/internal/lua"
	"github.com/dokzlo13/dimplan/internal/plan"
)

// LuaService wraps the Lua runtime and feeds it levels events.
type LuaService struct {
	script  string
	Runtime *luart.Runtime
}

// NewLuaService creates a new LuaService, or nil when no script is configured.
func NewLuaService(script string, p *plan.Plan, editor *PlanService, clock func() time.Time) *LuaService {
	if script == "" {
		return nil
	}
	return &LuaService{
		script:  script,
		Runtime: luart.NewRuntime(p, editor, clock),
	}
}

// LoadScript loads and executes the Lua script.
// Must be called before Start().
func (s *LuaService) LoadScript() error {
	return s.Runtime.LoadScript(s.script)
}

// Start begins the Lua worker goroutine and hooks it to levels events.
func (s *LuaService) Start(ctx context.Context, bus *eventbus.Bus) {
	// Start Lua worker goroutine - this is the ONLY goroutine that touches Lua
	go s.Runtime.Run(ctx)

	bus.Subscribe(eventbus.EventTypeLevels, func(e eventbus.Event) {
		at, levels, ok := eventbus.Levels(e)
		if !ok {
			return
		}
		s.Runtime.HandleLevels(ctx, at, levels)
	})
}

// Close closes the Lua runtime.
func (s *LuaService) Close() {
	if s.Runtime != nil {
		s.Runtime.Close()
	}
}
