package modules

import (
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/dimplan/internal/daycycle"
	"github.com/dokzlo13/dimplan/internal/plan"
)

// Editor applies plan edits so that they are persisted and announced.
type Editor interface {
	Define(id string, t daycycle.TimeOfDay, perc float64) error
	Undefine(id string, t daycycle.TimeOfDay) error
	Pin(id string, v float64) error
	Unpin(id string) error
	Remove(id string) error
}

// PlanModule provides plan.* functions to Lua.
//
// ERROR HANDLING CONVENTION:
// Functions that can fail return two values: (result, error_string).
// Malformed arguments such as an unparsable time raise a Lua error, and so
// do failed edits through the chainable channel methods.
//
//	local ch = plan.channel("0x20")
//	ch:define("06:00", 0):define("08:00", 100)
//
//	local ok, err = pcall(function() plan.channel("gone"):pin(10) end)
//
//	local ok, err = plan.pin("0x20", 35)
//	if not ok then log.warn("pin failed: " .. err) end
type PlanModule struct {
	plan   *plan.Plan
	editor Editor
	clock  func() time.Time
}

// NewPlanModule creates a new plan module
func NewPlanModule(p *plan.Plan, editor Editor, clock func() time.Time) *PlanModule {
	if clock == nil {
		clock = time.Now
	}
	return &PlanModule{plan: p, editor: editor, clock: clock}
}

// Loader is the module loader for Lua
func (m *PlanModule) Loader(L *lua.LState) int {
	m.registerChannelType(L)

	mod := L.NewTable()
	L.SetFuncs(mod, map[string]lua.LGFunction{
		"channel":   m.channel,
		"value":     m.value,
		"values":    m.values,
		"pin":       m.pin,
		"unpin":     m.unpin,
		"is_pinned": m.isPinned,
		"remove":    m.remove,
		"ids":       m.ids,
		"count":     m.count,
		"rebuild":   m.rebuild,
		"now":       m.now,
	})

	L.Push(mod)
	return 1
}

// channel returns a handle to a channel by id.
// The channel itself comes into existence with its first define.
// plan.channel(id) -> channel
func (m *PlanModule) channel(L *lua.LState) int {
	id := L.CheckString(1)
	if id == "" {
		L.ArgError(1, "channel id is required")
		return 0
	}
	m.pushChannel(L, id)
	return 1
}

// value evaluates a channel, nil when it has no value or does not exist
// plan.value(id, [time]) -> number|nil
func (m *PlanModule) value(L *lua.LState) int {
	id := L.CheckString(1)
	t := m.optTime(L, 2)

	v, ok, err := m.plan.Value(id, t)
	if err != nil || !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(v))
	return 1
}

// values evaluates every channel that has a value
// plan.values([time]) -> {id = number}
func (m *PlanModule) values(L *lua.LState) int {
	t := m.optTime(L, 1)

	levels, err := m.plan.Values(t)
	if err != nil {
		L.Push(lua.LNil)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(LevelsToTable(L, levels))
	return 1
}

// pin overrides a channel with a constant value
// plan.pin(id, value) -> ok, err
func (m *PlanModule) pin(L *lua.LState) int {
	id := L.CheckString(1)
	v := float64(L.CheckNumber(2))
	return pushResult(L, m.editor.Pin(id, v))
}

// unpin removes a channel override
// plan.unpin(id) -> ok, err
func (m *PlanModule) unpin(L *lua.LState) int {
	return pushResult(L, m.editor.Unpin(L.CheckString(1)))
}

// isPinned reports whether a channel is pinned
// plan.is_pinned(id) -> bool, err
func (m *PlanModule) isPinned(L *lua.LState) int {
	pinned, err := m.plan.IsPinned(L.CheckString(1))
	if err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LBool(pinned))
	return 1
}

// remove deletes a channel
// plan.remove(id) -> ok, err
func (m *PlanModule) remove(L *lua.LState) int {
	return pushResult(L, m.editor.Remove(L.CheckString(1)))
}

// ids lists channel ids in plan order
// plan.ids() -> {id, ...}
func (m *PlanModule) ids(L *lua.LState) int {
	tbl := L.NewTable()
	for _, id := range m.plan.IDs() {
		tbl.Append(lua.LString(id))
	}
	L.Push(tbl)
	return 1
}

// plan.count() -> number
func (m *PlanModule) count(L *lua.LState) int {
	L.Push(lua.LNumber(m.plan.Len()))
	return 1
}

// plan.rebuild()
func (m *PlanModule) rebuild(L *lua.LState) int {
	m.plan.RebuildAll()
	return 0
}

// now returns the current time of day
// plan.now() -> "HH:MM:SS"
func (m *PlanModule) now(L *lua.LState) int {
	L.Push(lua.LString(daycycle.Of(m.clock()).String()))
	return 1
}

// optTime reads an optional time argument, defaulting to now
func (m *PlanModule) optTime(L *lua.LState, n int) daycycle.TimeOfDay {
	if L.Get(n) == lua.LNil {
		return daycycle.Of(m.clock())
	}
	return CheckTime(L, n)
}

// CheckTime reads a time of day argument.
// Accepts "HH:MM[:SS]" strings or seconds since midnight.
func CheckTime(L *lua.LState, n int) daycycle.TimeOfDay {
	switch v := L.Get(n).(type) {
	case lua.LString:
		t, err := daycycle.Parse(string(v))
		if err != nil {
			L.ArgError(n, err.Error())
		}
		return t
	case lua.LNumber:
		t, err := daycycle.FromDuration(time.Duration(float64(v) * float64(time.Second)))
		if err != nil {
			L.ArgError(n, err.Error())
		}
		return t
	default:
		L.ArgError(n, "time must be \"HH:MM[:SS]\" or seconds since midnight")
		return 0
	}
}

func pushResult(L *lua.LState, err error) int {
	if err != nil {
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}
