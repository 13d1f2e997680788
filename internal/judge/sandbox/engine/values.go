package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"dsajudge/internal/judge/model"

	lua "github.com/yuin/gopher-lua"
)

// luaArrayMarker is the metatable field that marks a table as an array of length n.
const luaArrayMarker = "__jsonarray"

var errCyclicTable = errors.New("cannot convert cyclic table to a value")

// toLua converts a JSON value into a Lua value.
func toLua(L *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case float64:
		return lua.LNumber(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case string:
		return lua.LString(x)
	case []any:
		return toLuaArray(L, x, false)
	case map[string]any:
		t := L.CreateTable(0, len(x))
		for k, item := range x {
			if item != nil {
				t.RawSetString(k, toLua(L, item))
			}
		}
		return t
	default:
		return lua.LString(fmt.Sprint(x))
	}
}

// toLuaArray builds a 1-based table. Arrays containing nil, and the top-level
// input when withLength is set, carry n and the array marker.
func toLuaArray(L *lua.LState, items []any, withLength bool) *lua.LTable {
	t := L.CreateTable(len(items), 1)
	holes := false
	for i, item := range items {
		if item == nil {
			holes = true
			continue
		}
		t.RawSetInt(i+1, toLua(L, item))
	}
	if holes || withLength {
		t.RawSetString("n", lua.LNumber(len(items)))
		mt := L.CreateTable(0, 1)
		mt.RawSetString(luaArrayMarker, lua.LTrue)
		t.Metatable = mt
	}
	return t
}

// MaxResultDepth bounds the nesting of a value returned by user code.
const MaxResultDepth = 512

func resultTooDeep() *CodeError {
	return &CodeError{Kind: model.FaultLimit, Message: "Result nesting too deep"}
}

// luaDecoder converts Lua values into the JSON value space.
// Functions, userdata and threads become nil, as do NaN and infinities.
type luaDecoder struct {
	ctx   context.Context
	seen  map[*lua.LTable]bool
	nodes int
}

func newLuaDecoder(ctx context.Context) *luaDecoder {
	return &luaDecoder{ctx: ctx, seen: map[*lua.LTable]bool{}}
}

func (d *luaDecoder) decode(v lua.LValue, depth int) (any, error) {
	switch x := v.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LBool:
		return bool(x), nil
	case lua.LNumber:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, nil
		}
		return f, nil
	case lua.LString:
		return string(x), nil
	case *lua.LTable:
		if depth >= MaxResultDepth {
			return nil, resultTooDeep()
		}
		if d.seen[x] {
			return nil, errCyclicTable
		}
		d.nodes++
		if d.nodes%1024 == 0 && d.ctx.Err() != nil {
			return nil, timeoutFault(d.ctx)
		}
		d.seen[x] = true
		defer delete(d.seen, x)
		return d.table(x, depth+1)
	default:
		return nil, nil
	}
}

func (d *luaDecoder) table(t *lua.LTable, depth int) (any, error) {
	if n, ok := markedLength(t); ok {
		out := make([]any, n)
		for i := 1; i <= n; i++ {
			item, err := d.decode(t.RawGetInt(i), depth)
			if err != nil {
				return nil, err
			}
			out[i-1] = item
		}
		return out, nil
	}

	count := 0
	sequence := true
	t.ForEach(func(k, _ lua.LValue) {
		count++
		if num, ok := k.(lua.LNumber); !ok || float64(num) != math.Trunc(float64(num)) || num < 1 {
			sequence = false
		}
	})
	if count == 0 {
		return []any{}, nil
	}
	if sequence && t.MaxN() == count {
		out := make([]any, count)
		for i := 1; i <= count; i++ {
			item, err := d.decode(t.RawGetInt(i), depth)
			if err != nil {
				return nil, err
			}
			out[i-1] = item
		}
		return out, nil
	}

	out := make(map[string]any, count)
	keys := make([]string, 0, count)
	values := make(map[string]lua.LValue, count)
	t.ForEach(func(k, item lua.LValue) {
		key := luaKey(k)
		if key == "" && k.Type() != lua.LTString {
			return
		}
		keys = append(keys, key)
		values[key] = item
	})
	sort.Strings(keys)
	for _, key := range keys {
		item, err := d.decode(values[key], depth)
		if err != nil {
			return nil, err
		}
		out[key] = item
	}
	return out, nil
}

// markedLength returns n for tables carrying the array marker.
func markedLength(t *lua.LTable) (int, bool) {
	mt, ok := t.Metatable.(*lua.LTable)
	if !ok || mt.RawGetString(luaArrayMarker) != lua.LTrue {
		return 0, false
	}
	n, ok := t.RawGetString("n").(lua.LNumber)
	if !ok || n < 0 {
		return 0, false
	}
	return int(n), true
}

func luaKey(k lua.LValue) string {
	switch x := k.(type) {
	case lua.LString:
		return string(x)
	case lua.LNumber:
		f := float64(x)
		if f == math.Trunc(f) && !math.IsInf(f, 0) {
			return strconv.FormatInt(int64(f), 10)
		}
		return strconv.FormatFloat(f, 'g', -1, 64)
	case lua.LBool:
		return strconv.FormatBool(bool(x))
	default:
		return ""
	}
}
