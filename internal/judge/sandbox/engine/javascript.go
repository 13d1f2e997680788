package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"dsajudge/internal/judge/model"

	"github.com/dop251/goja"
)

const jsSourceName = "solution.js"

var (
	jsSyntaxPosition = regexp.MustCompile(`Line (\d+):(\d+) (.+?)(?: \(and \d+ more errors\))?$`)
	jsStackPosition  = regexp.MustCompile(regexp.QuoteMeta(jsSourceName) + `:(\d+):(\d+)`)
)

var consoleMethods = []string{"log", "info", "warn", "error", "debug"}

// jsResultGuard copies a result into plain arrays and objects, applying toJSON,
// before JSON.stringify sees it. It runs as interpretable code so the
// invocation deadline still applies, and it stops at MaxResultDepth.
// Builtins are captured before user code can replace them.
var jsResultGuard = goja.MustCompile("result_guard.js", `(function (tooDeep, maxDepth) {
	var isArray = Array.isArray, keys = Object.keys, create = Object.create;
	var Num = Number, Str = String, Bool = Boolean, TypeErr = TypeError;
	function walk(key, v, depth, ancestors) {
		if (v !== null && typeof v === "object" && typeof v.toJSON === "function") {
			v = v.toJSON(key);
		}
		if (v === null || typeof v !== "object") {
			return v;
		}
		if (v instanceof Num || v instanceof Str || v instanceof Bool) {
			return v;
		}
		if (depth >= maxDepth) {
			throw tooDeep;
		}
		for (var a = 0; a < ancestors.length; a++) {
			if (ancestors[a] === v) {
				throw new TypeErr("Converting circular structure to JSON");
			}
		}
		ancestors[ancestors.length] = v;
		var out, i;
		if (isArray(v)) {
			out = [];
			for (i = 0; i < v.length; i++) {
				out[i] = walk(Str(i), v[i], depth + 1, ancestors);
			}
		} else {
			out = create(null);
			var ks = keys(v);
			for (i = 0; i < ks.length; i++) {
				out[ks[i]] = walk(ks[i], v[ks[i]], depth + 1, ancestors);
			}
		}
		ancestors.length = ancestors.length - 1;
		return out;
	}
	return function (v) {
		return walk("", v, 0, []);
	};
})`, false)

// JavaScriptEngine runs programs on goja.
type JavaScriptEngine struct {
	limits Limits
}

// NewJavaScriptEngine creates the JavaScript engine.
func NewJavaScriptEngine(limits Limits) *JavaScriptEngine {
	return &JavaScriptEngine{limits: limits.WithDefaults()}
}

func (e *JavaScriptEngine) Language() model.Language {
	return model.LanguageJavaScript
}

// Compile parses source, which must be a single function expression.
func (e *JavaScriptEngine) Compile(source string) (Program, error) {
	prog, err := goja.Compile(jsSourceName, source, false)
	if err != nil {
		return nil, jsSyntaxFault(err)
	}
	return &jsProgram{prog: prog, limits: e.limits}, nil
}

type jsProgram struct {
	prog   *goja.Program
	limits Limits
}

func (p *jsProgram) Invoke(ctx context.Context, sink *LogSink, input []any) (result any, err error) {
	if ctx.Err() != nil {
		return nil, timeoutFault(ctx)
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(p.limits.MaxCallStackSize)
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	// goja surfaces some faults as panics carrying a JS exception.
	defer func() {
		if r := recover(); r != nil {
			if ex, ok := r.(*goja.Exception); ok {
				result, err = nil, p.fault(ctx, vm, ex)
				return
			}
			if ie, ok := r.(*goja.InterruptedError); ok {
				result, err = nil, p.fault(ctx, vm, ie)
				return
			}
			panic(r)
		}
	}()

	tooDeep := vm.NewObject()
	guard, err := newResultGuard(vm, tooDeep)
	if err != nil {
		return nil, err
	}

	fnValue, err := vm.RunProgram(p.prog)
	if err != nil {
		return nil, p.fault(ctx, vm, err)
	}
	fn, ok := goja.AssertFunction(fnValue)
	if !ok {
		return nil, fmt.Errorf("synthesized program is not a function")
	}

	if input == nil {
		input = []any{}
	}
	inputValue, err := jsonToValue(vm, input)
	if err != nil {
		return nil, fmt.Errorf("convert input: %w", err)
	}

	ret, err := fn(goja.Undefined(), newJSConsole(vm, sink), inputValue)
	if err != nil {
		return nil, p.fault(ctx, vm, err)
	}

	plain, err := guard(goja.Undefined(), ret)
	if err != nil {
		var ex *goja.Exception
		if errors.As(err, &ex) && ex.Value() != nil && ex.Value().SameAs(tooDeep) {
			return nil, resultTooDeep()
		}
		return nil, p.fault(ctx, vm, err)
	}

	out, err := valueToJSON(vm, plain)
	if err != nil {
		return nil, p.fault(ctx, vm, err)
	}
	return out, nil
}

func newResultGuard(vm *goja.Runtime, tooDeep *goja.Object) (goja.Callable, error) {
	factoryValue, err := vm.RunProgram(jsResultGuard)
	if err != nil {
		return nil, fmt.Errorf("load result guard: %w", err)
	}
	factory, ok := goja.AssertFunction(factoryValue)
	if !ok {
		return nil, errors.New("result guard is not a function")
	}
	guardValue, err := factory(goja.Undefined(), tooDeep, vm.ToValue(MaxResultDepth))
	if err != nil {
		return nil, fmt.Errorf("load result guard: %w", err)
	}
	guard, ok := goja.AssertFunction(guardValue)
	if !ok {
		return nil, errors.New("result guard is not a function")
	}
	return guard, nil
}

// fault classifies an error raised by the runtime.
func (p *jsProgram) fault(ctx context.Context, vm *goja.Runtime, err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return timeoutFault(ctx)
	}
	var overflow *goja.StackOverflowError
	if errors.As(err, &overflow) {
		return &CodeError{Kind: model.FaultLimit, Message: "Maximum call stack size exceeded"}
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		ce := &CodeError{Kind: model.FaultRuntime, Message: "Error"}
		if m := jsStackPosition.FindStringSubmatch(ex.String()); m != nil {
			ce.Line, _ = strconv.Atoi(m[1])
			ce.Column, _ = strconv.Atoi(m[2])
		}
		describeThrown(vm, ex.Value(), ce)
		return ce
	}
	if ctx.Err() != nil {
		return timeoutFault(ctx)
	}
	return &CodeError{Kind: model.FaultRuntime, Message: err.Error()}
}

// describeThrown reads message and fault tag off the thrown value.
// Property getters are user code, so any panic leaves the defaults in place.
func describeThrown(vm *goja.Runtime, v goja.Value, ce *CodeError) {
	defer func() { _ = recover() }()
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return
	}
	if tag := obj.Get("sandboxFault"); tag != nil && !goja.IsUndefined(tag) {
		ce.Kind = faultKind(tag.String())
	}
	if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) && !goja.IsNull(msg) {
		ce.Message = msg.String()
	}
}

func jsSyntaxFault(err error) *CodeError {
	ce := &CodeError{Kind: model.FaultParse, Message: err.Error()}
	if m := jsSyntaxPosition.FindStringSubmatch(err.Error()); m != nil {
		ce.Line, _ = strconv.Atoi(m[1])
		ce.Column, _ = strconv.Atoi(m[2])
		ce.Message = "SyntaxError: " + m[3]
	}
	return ce
}

func newJSConsole(vm *goja.Runtime, sink *LogSink) *goja.Object {
	console := vm.NewObject()
	write := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = formatJSArg(arg)
		}
		sink.Append(parts...)
		return goja.Undefined()
	}
	for _, name := range consoleMethods {
		_ = console.Set(name, write)
	}
	return console
}

// formatJSArg follows Array.prototype.join: null and undefined become empty strings.
func formatJSArg(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

// jsonToValue builds a native JS value from a Go JSON value through JSON.parse,
// so user code can mutate its input freely.
func jsonToValue(vm *goja.Runtime, v any) (goja.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	parse, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("parse"))
	if !ok {
		return nil, errors.New("JSON.parse is not callable")
	}
	return parse(goja.Undefined(), vm.ToValue(string(data)))
}

// valueToJSON serializes v with JSON.stringify and decodes it into Go.
// undefined, functions and symbols become nil.
func valueToJSON(vm *goja.Runtime, v goja.Value) (any, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	stringify, ok := goja.AssertFunction(vm.Get("JSON").ToObject(vm).Get("stringify"))
	if !ok {
		return nil, errors.New("JSON.stringify is not callable")
	}
	encoded, err := stringify(goja.Undefined(), v)
	if err != nil {
		return nil, err
	}
	if goja.IsUndefined(encoded) {
		return nil, nil
	}
	var out any
	dec := json.NewDecoder(strings.NewReader(encoded.String()))
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return out, nil
}
