package modules

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/dimplan/internal/plan"
)

// LuaToGo converts a Lua value to a Go value
func LuaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case lua.LBool:
		return bool(val)
	case *lua.LTable:
		// Sequences become slices, everything else a map
		if n := val.MaxN(); n > 0 && n == countKeys(val) {
			arr := make([]any, 0, n)
			for i := 1; i <= n; i++ {
				arr = append(arr, LuaToGo(val.RawGetInt(i)))
			}
			return arr
		}

		obj := make(map[string]any)
		val.ForEach(func(k, v lua.LValue) {
			obj[lua.LVAsString(k)] = LuaToGo(v)
		})
		return obj
	case *lua.LNilType:
		return nil
	default:
		return v.String()
	}
}

func countKeys(tbl *lua.LTable) int {
	n := 0
	tbl.ForEach(func(_, _ lua.LValue) { n++ })
	return n
}

// LevelsToTable converts evaluated levels to a Lua table:
// {id = {value = number|nil, pinned = bool}}
func LevelsToTable(L *lua.LState, levels map[string]plan.Level) *lua.LTable {
	tbl := L.NewTable()
	for id, level := range levels {
		entry := L.NewTable()
		if level.OK {
			entry.RawSetString("value", lua.LNumber(level.Value))
		}
		entry.RawSetString("pinned", lua.LBool(level.Pinned))
		tbl.RawSetString(id, entry)
	}
	return tbl
}
