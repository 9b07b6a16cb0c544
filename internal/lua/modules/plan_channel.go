package modules

import (
	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"
)

const channelTypeName = "plan.channel"

// ChannelUserdata is a handle to a plan channel by id.
// Edits go through the module's Editor.
type ChannelUserdata struct {
	id string
	m  *PlanModule
}

func (m *PlanModule) registerChannelType(L *lua.LState) {
	mt := L.NewTypeMetatable(channelTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		// Getters
		"id":        channelID,
		"color":     channelColor,
		"value":     channelValue,
		"is_pinned": channelIsPinned,

		// Chainable mutators, raising on failure
		"define":   channelDefine,
		"undefine": channelUndefine,
		"pin":      channelPin,
		"unpin":    channelUnpin,
		"rebuild":  channelRebuild,
	}))
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		ch, _ := checkChannel(L)
		L.Push(lua.LString(channelTypeName + "(" + ch.id + ")"))
		return 1
	}))
}

func (m *PlanModule) pushChannel(L *lua.LState, id string) {
	ud := L.NewUserData()
	ud.Value = &ChannelUserdata{id: id, m: m}
	L.SetMetatable(ud, L.GetTypeMetatable(channelTypeName))
	L.Push(ud)
}

func checkChannel(L *lua.LState) (*ChannelUserdata, *lua.LUserData) {
	ud := L.CheckUserData(1)
	if v, ok := ud.Value.(*ChannelUserdata); ok {
		return v, ud
	}
	L.ArgError(1, "plan.channel expected")
	return nil, nil
}

// channel:id() -> string
func channelID(L *lua.LState) int {
	ch, _ := checkChannel(L)
	L.Push(lua.LString(ch.id))
	return 1
}

// channel:color() -> string|nil
func channelColor(L *lua.LState) int {
	ch, _ := checkChannel(L)
	c, ok := ch.m.plan.Lookup(ch.id)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(c.Color()))
	return 1
}

// channel:value([time]) -> number|nil
func channelValue(L *lua.LState) int {
	ch, _ := checkChannel(L)
	t := ch.m.optTime(L, 2)

	v, ok, err := ch.m.plan.Value(ch.id, t)
	if err != nil || !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LNumber(v))
	return 1
}

// channel:is_pinned() -> bool
func channelIsPinned(L *lua.LState) int {
	ch, _ := checkChannel(L)
	pinned, _ := ch.m.plan.IsPinned(ch.id)
	L.Push(lua.LBool(pinned))
	return 1
}

// raiseEdit logs a failed edit and raises it as a Lua error
func raiseEdit(L *lua.LState, id, msg string, err error) {
	log.Error().Err(err).Str("channel", id).Msg(msg)
	L.RaiseError("%s: %s", id, err.Error())
}

// channel:define(time, perc) -> self
func channelDefine(L *lua.LState) int {
	ch, ud := checkChannel(L)
	t := CheckTime(L, 2)
	perc := float64(L.CheckNumber(3))

	if err := ch.m.editor.Define(ch.id, t, perc); err != nil {
		raiseEdit(L, ch.id, "Failed to define point", err)
	}
	L.Push(ud)
	return 1
}

// channel:undefine(time) -> self
func channelUndefine(L *lua.LState) int {
	ch, ud := checkChannel(L)
	t := CheckTime(L, 2)

	if err := ch.m.editor.Undefine(ch.id, t); err != nil {
		raiseEdit(L, ch.id, "Failed to undefine point", err)
	}
	L.Push(ud)
	return 1
}

// channel:pin(value) -> self
func channelPin(L *lua.LState) int {
	ch, ud := checkChannel(L)
	v := float64(L.CheckNumber(2))

	if err := ch.m.editor.Pin(ch.id, v); err != nil {
		raiseEdit(L, ch.id, "Failed to pin channel", err)
	}
	L.Push(ud)
	return 1
}

// channel:unpin() -> self
func channelUnpin(L *lua.LState) int {
	ch, ud := checkChannel(L)

	if err := ch.m.editor.Unpin(ch.id); err != nil {
		raiseEdit(L, ch.id, "Failed to unpin channel", err)
	}
	L.Push(ud)
	return 1
}

// channel:rebuild() -> self
func channelRebuild(L *lua.LState) int {
	ch, ud := checkChannel(L)
	if c, ok := ch.m.plan.Lookup(ch.id); ok {
		c.Rebuild()
	}
	L.Push(ud)
	return 1
}
