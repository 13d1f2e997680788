package engine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"dsajudge/internal/judge/model"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

const luaSourceName = "solution"

var (
	luaParsePosition   = regexp.MustCompile(`line:(\d+)\(column:(\d+)\) near '(.*?)':\s*(.*)`)
	luaRuntimePosition = regexp.MustCompile(`^` + luaSourceName + `:(\d+): ?`)
)

// luaDisabledGlobals are base library functions that reach the file system or load code.
var luaDisabledGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "module", "collectgarbage", "newproxy"}

// LuaEngine runs programs on gopher-lua.
type LuaEngine struct {
	limits Limits
}

// NewLuaEngine creates the Lua engine.
func NewLuaEngine(limits Limits) *LuaEngine {
	return &LuaEngine{limits: limits.WithDefaults()}
}

func (e *LuaEngine) Language() model.Language {
	return model.LanguageLua
}

// Compile parses source, a chunk that returns the wrapper function.
func (e *LuaEngine) Compile(source string) (Program, error) {
	chunk, err := parse.Parse(strings.NewReader(source), luaSourceName)
	if err != nil {
		return nil, luaSyntaxFault(err)
	}
	proto, err := lua.Compile(chunk, luaSourceName)
	if err != nil {
		return nil, luaSyntaxFault(err)
	}
	return &luaProgram{proto: proto, limits: e.limits}, nil
}

type luaProgram struct {
	proto  *lua.FunctionProto
	limits Limits
}

func (p *luaProgram) Invoke(ctx context.Context, sink *LogSink, input []any) (any, error) {
	if ctx.Err() != nil {
		return nil, timeoutFault(ctx)
	}

	L := lua.NewState(lua.Options{
		SkipOpenLibs:        true,
		CallStackSize:       p.limits.MaxCallStackSize,
		MinimizeStackMemory: true,
	})
	defer L.Close()
	if err := openSandboxLibs(L); err != nil {
		return nil, fmt.Errorf("open lua libs: %w", err)
	}
	L.SetContext(ctx)

	console := newLuaConsole(L, sink)
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		sink.Append(luaArgs(L, nil)...)
		return 0
	}))

	L.Push(L.NewFunctionFromProto(p.proto))
	if err := L.PCall(0, 1, nil); err != nil {
		return nil, p.fault(ctx, err)
	}
	wrapper := L.Get(-1)
	L.Pop(1)
	if wrapper.Type() != lua.LTFunction {
		return nil, fmt.Errorf("synthesized program did not return a function")
	}

	if input == nil {
		input = []any{}
	}
	inputTable := toLuaArray(L, input, true)

	if err := L.CallByParam(lua.P{Fn: wrapper, NRet: 1, Protect: true}, console, inputTable); err != nil {
		return nil, p.fault(ctx, err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	out, err := newLuaDecoder(ctx).decode(ret, 0)
	if err != nil {
		if ce, ok := AsCodeError(err); ok {
			return nil, ce
		}
		return nil, &CodeError{Kind: model.FaultRuntime, Message: err.Error()}
	}
	return out, nil
}

func (p *luaProgram) fault(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return timeoutFault(ctx)
	}
	apiErr, ok := err.(*lua.ApiError)
	if !ok {
		return &CodeError{Kind: model.FaultRuntime, Message: err.Error()}
	}

	ce := &CodeError{Kind: model.FaultRuntime, Message: "Error"}
	switch obj := apiErr.Object.(type) {
	case *lua.LTable:
		if tag, ok := obj.RawGetString("sandboxFault").(lua.LString); ok {
			ce.Kind = faultKind(string(tag))
		}
		if msg := obj.RawGetString("message"); msg != lua.LNil {
			ce.Message = msg.String()
		}
	case lua.LString:
		msg := string(obj)
		if m := luaRuntimePosition.FindStringSubmatch(msg); m != nil {
			ce.Line, _ = strconv.Atoi(m[1])
			msg = msg[len(m[0]):]
		}
		ce.Message = msg
		if strings.Contains(msg, "stack overflow") || strings.Contains(msg, "registry overflow") {
			ce.Kind = model.FaultLimit
		}
	case nil:
		ce.Message = apiErr.Error()
	default:
		if obj != lua.LNil {
			ce.Message = obj.String()
		}
	}
	return ce
}

func luaSyntaxFault(err error) *CodeError {
	ce := &CodeError{Kind: model.FaultParse, Message: strings.TrimSpace(err.Error())}
	if m := luaParsePosition.FindStringSubmatch(err.Error()); m != nil {
		ce.Line, _ = strconv.Atoi(m[1])
		ce.Column, _ = strconv.Atoi(m[2])
		ce.Message = fmt.Sprintf("SyntaxError: %s near '%s'", strings.TrimSpace(m[4]), m[3])
	}
	return ce
}

// openSandboxLibs loads base, table, string and math only.
func openSandboxLibs(L *lua.LState) error {
	libs := []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
	for _, lib := range libs {
		if err := L.CallByParam(lua.P{Fn: L.NewFunction(lib.fn), NRet: 0, Protect: true}, lua.LString(lib.name)); err != nil {
			return err
		}
	}
	for _, name := range luaDisabledGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	return nil
}

func newLuaConsole(L *lua.LState, sink *LogSink) *lua.LTable {
	console := L.NewTable()
	write := L.NewFunction(func(L *lua.LState) int {
		sink.Append(luaArgs(L, console)...)
		return 0
	})
	for _, name := range consoleMethods {
		console.RawSetString(name, write)
	}
	return console
}

// luaArgs formats the call arguments; a leading self argument (console:log) is skipped.
func luaArgs(L *lua.LState, self *lua.LTable) []string {
	top := L.GetTop()
	start := 1
	if self != nil && top >= 1 {
		if t, ok := L.Get(1).(*lua.LTable); ok && t == self {
			start = 2
		}
	}
	parts := make([]string, 0, top)
	for i := start; i <= top; i++ {
		v := L.Get(i)
		if v == lua.LNil {
			parts = append(parts, "")
			continue
		}
		parts = append(parts, L.ToStringMeta(v).String())
	}
	return parts
}
