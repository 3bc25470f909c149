package script

import (
	"context"
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

const LanguageLua = "lua"

// LuaRunner runs Lua in a sandboxed state: no io, os, package or load*.
// The trigger data is the global table 'context'; the value returned by the
// chunk, or else the global 'result', becomes the result.
type LuaRunner struct{}

func (r *LuaRunner) Run(ctx context.Context, program Program) (map[string]any, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	L.SetContext(ctx)
	openSafeLibs(L)

	var logs []any

	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		logs = append(logs, L.CheckString(1))

		return 0
	}))
	L.SetGlobal("context", goToLua(L, program.Data))

	base := L.GetTop()

	if err := L.DoString(program.SourceCode); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("lua script aborted: %w", ctxErr)
		}

		return nil, fmt.Errorf("lua script failed: %w", err)
	}

	value := L.GetGlobal("result")
	if L.GetTop() > base {
		value = L.Get(-1)
	}

	result, err := luaToGo(value)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"language": LanguageLua,
		"result":   result,
		"logs":     logs,
	}, nil
}

func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)

	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil)

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case float64:
		return lua.LNumber(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		tbl := L.NewTable()
		for i, item := range val {
			L.SetTable(tbl, lua.LNumber(i+1), goToLua(L, item))
		}

		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range val {
			L.SetField(tbl, k, goToLua(L, item))
		}

		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

// maxResultDepth bounds how deeply nested a returned table may be.
const maxResultDepth = 32

var ErrUnconvertibleResult = errors.New("lua result cannot be converted")

// luaToGo converts a script result to plain Go values. Cyclic and overly
// nested tables are rejected instead of recursing forever.
func luaToGo(v lua.LValue) (any, error) {
	return convertLua(v, make(map[*lua.LTable]bool), 0)
}

func convertLua(v lua.LValue, active map[*lua.LTable]bool, depth int) (any, error) {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(val), nil
	case lua.LNumber:
		return float64(val), nil
	case lua.LString:
		return string(val), nil
	case *lua.LTable:
		if active[val] {
			return nil, fmt.Errorf("%w: table references itself", ErrUnconvertibleResult)
		}

		if depth >= maxResultDepth {
			return nil, fmt.Errorf("%w: tables nested deeper than %d", ErrUnconvertibleResult, maxResultDepth)
		}

		active[val] = true
		defer delete(active, val)

		if n := val.MaxN(); n > 0 && n == val.Len() {
			list := make([]any, 0, n)

			for i := 1; i <= n; i++ {
				item, err := convertLua(val.RawGetInt(i), active, depth+1)
				if err != nil {
					return nil, err
				}

				list = append(list, item)
			}

			return list, nil
		}

		m := make(map[string]any)

		var err error

		val.ForEach(func(key, value lua.LValue) {
			if err != nil {
				return
			}

			m[key.String()], err = convertLua(value, active, depth+1)
		})
		if err != nil {
			return nil, err
		}

		return m, nil
	default:
		return v.String(), nil
	}
}
