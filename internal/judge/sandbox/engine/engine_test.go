package engine

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"dsajudge/internal/judge/model"
)

func invoke(t *testing.T, e Engine, source string, input []any) (any, error, []string) {
	t.Helper()
	prog, err := e.Compile(source)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	sink := NewLogSink(10)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := prog.Invoke(ctx, sink, input)
	return out, err, sink.Lines()
}

func wantFault(t *testing.T, err error, kind model.FaultKind, message string) *CodeError {
	t.Helper()
	ce, ok := AsCodeError(err)
	if !ok {
		t.Fatalf("expected *CodeError, got %T: %v", err, err)
	}
	if ce.Kind != kind {
		t.Fatalf("kind = %q, want %q (message %q)", ce.Kind, kind, ce.Message)
	}
	if message != "" && ce.Message != message {
		t.Fatalf("message = %q, want %q", ce.Message, message)
	}
	return ce
}

func TestJavaScriptInvokeReturnsJSONValues(t *testing.T) {
	e := NewJavaScriptEngine(Limits{})
	out, err, logs := invoke(t, e, `(function (console, input) {
  console.log("sum", input[0] + input[1], null, undefined);
  return {total: input[0] + input[1], parts: input, none: undefined};
})`, []any{2.0, 3.0})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	want := map[string]any{"total": 5.0, "parts": []any{2.0, 3.0}}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("out = %#v, want %#v", out, want)
	}
	if !reflect.DeepEqual(logs, []string{"sum 5  "}) {
		t.Fatalf("logs = %q", logs)
	}
}

func TestJavaScriptFaults(t *testing.T) {
	e := NewJavaScriptEngine(Limits{MaxCallStackSize: 64})

	_, err, _ := invoke(t, e, `(function () { throw new Error("boom"); })`, nil)
	wantFault(t, err, model.FaultRuntime, "boom")

	_, err, _ = invoke(t, e, `(function () { throw "plain"; })`, nil)
	wantFault(t, err, model.FaultRuntime, "Error")

	_, err, _ = invoke(t, e, `(function () { var e = new Error("gone"); e.sandboxFault = "method"; throw e; })`, nil)
	wantFault(t, err, model.FaultMethod, "gone")

	_, err, _ = invoke(t, e, `(function () { function f(n) { return f(n + 1) + 1; } return f(0); })`, nil)
	wantFault(t, err, model.FaultLimit, "")

	_, err, _ = invoke(t, e, `(function () { var a = {}; a.self = a; return a; })`, nil)
	wantFault(t, err, model.FaultRuntime, "")
}

func TestJavaScriptUndefinedResultIsNil(t *testing.T) {
	out, err, _ := invoke(t, NewJavaScriptEngine(Limits{}), `(function () { })`, nil)
	if err != nil || out != nil {
		t.Fatalf("expected nil result, got %#v, %v", out, err)
	}
}

func TestJavaScriptCompileFault(t *testing.T) {
	_, err := NewJavaScriptEngine(Limits{}).Compile("(function () {\n  return 1 +;\n})")
	ce := wantFault(t, err, model.FaultParse, "")
	if ce.Line != 2 {
		t.Fatalf("line = %d, want 2 (%q)", ce.Line, ce.Message)
	}
	if !strings.HasPrefix(ce.Message, "SyntaxError") {
		t.Fatalf("unexpected message %q", ce.Message)
	}
}

func TestJavaScriptFreshGlobalsPerInvocation(t *testing.T) {
	prog, err := NewJavaScriptEngine(Limits{}).Compile(`(function () {
  if (typeof leaked === "undefined") { leaked = 0; }
  leaked++;
  return leaked;
})`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	for i := 0; i < 2; i++ {
		out, err := prog.Invoke(context.Background(), NewLogSink(0), nil)
		if err != nil {
			t.Fatalf("invoke: %v", err)
		}
		if out != 1.0 {
			t.Fatalf("invocation %d saw state from a previous run: %v", i, out)
		}
	}
}

func TestJavaScriptInputIsolation(t *testing.T) {
	input := []any{[]any{1.0, 2.0}}
	_, err, _ := invoke(t, NewJavaScriptEngine(Limits{}), `(function (c, input) { input[0].push(3); return null; })`, input)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(input[0].([]any)) != 2 {
		t.Fatalf("user code mutated the caller's input: %v", input)
	}
}

func TestJavaScriptTimeout(t *testing.T) {
	prog, err := NewJavaScriptEngine(Limits{}).Compile(`(function () { for (;;) {} })`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = prog.Invoke(ctx, NewLogSink(0), nil)
	wantFault(t, err, model.FaultTimeout, "Execution timed out")
	if time.Since(start) > time.Second {
		t.Fatalf("interrupt took too long: %v", time.Since(start))
	}
}

func TestLuaInvoke(t *testing.T) {
	e := NewLuaEngine(Limits{})
	out, err, logs := invoke(t, e, `return function(console, input)
  console.log("sum", input[1] + input[2], nil)
  console:info("self call")
  print("printed")
  return {total = input[1] + input[2], list = {1, 2}, empty = {}}
end`, []any{2.0, 3.0})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	want := map[string]any{"total": 5.0, "list": []any{1.0, 2.0}, "empty": []any{}}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("out = %#v, want %#v", out, want)
	}
	if !reflect.DeepEqual(logs, []string{"sum 5 ", "self call", "printed"}) {
		t.Fatalf("logs = %q", logs)
	}
}

func TestLuaNilHolesSurvive(t *testing.T) {
	out, err, _ := invoke(t, NewLuaEngine(Limits{}), `return function(console, input)
  return input
end`, []any{nil, 1.0, nil})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !reflect.DeepEqual(out, []any{nil, 1.0, nil}) {
		t.Fatalf("out = %#v", out)
	}
}

func TestLuaFaults(t *testing.T) {
	e := NewLuaEngine(Limits{MaxCallStackSize: 64})

	_, err, _ := invoke(t, e, "return function()\n  error(\"boom\")\nend", nil)
	ce := wantFault(t, err, model.FaultRuntime, "boom")
	if ce.Line != 2 {
		t.Fatalf("line = %d, want 2", ce.Line)
	}

	_, err, _ = invoke(t, e, `return function() error({sandboxFault = "entry", message = "Function 'f' not found"}, 0) end`, nil)
	wantFault(t, err, model.FaultEntry, "Function 'f' not found")

	_, err, _ = invoke(t, e, `return function() error({}, 0) end`, nil)
	wantFault(t, err, model.FaultRuntime, "Error")

	_, err, _ = invoke(t, e, `return function() local function f(n) return f(n + 1) + 1 end return f(0) end`, nil)
	wantFault(t, err, model.FaultLimit, "")

	_, err, _ = invoke(t, e, `return function() local t = {} t.self = t return t end`, nil)
	wantFault(t, err, model.FaultRuntime, "")
}

func TestLuaSandboxedGlobals(t *testing.T) {
	out, err, _ := invoke(t, NewLuaEngine(Limits{}), `return function()
  return {os = os == nil, io = io == nil, dofile = dofile == nil, load = load == nil, require = require == nil}
end`, nil)
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	for name, missing := range out.(map[string]any) {
		if missing != true {
			t.Fatalf("%s should not be available", name)
		}
	}
}

func TestLuaCompileFault(t *testing.T) {
	_, err := NewLuaEngine(Limits{}).Compile("return function()\n  local = 1\nend")
	ce := wantFault(t, err, model.FaultParse, "")
	if ce.Line != 2 {
		t.Fatalf("line = %d, want 2 (%q)", ce.Line, ce.Message)
	}
}

func TestLuaTimeout(t *testing.T) {
	prog, err := NewLuaEngine(Limits{}).Compile("return function() while true do end end")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = prog.Invoke(ctx, NewLogSink(0), nil)
	wantFault(t, err, model.FaultTimeout, "Execution timed out")
}

func TestLogSinkTruncates(t *testing.T) {
	sink := NewLogSink(2)
	for i := 0; i < 5; i++ {
		sink.Append("line")
	}
	lines := sink.Lines()
	if len(lines) != 3 || !sink.Truncated() {
		t.Fatalf("unexpected lines %q", lines)
	}
	if !strings.Contains(lines[2], "truncated") {
		t.Fatalf("missing truncation marker: %q", lines[2])
	}
	if NewLogSink(1).Lines() == nil {
		t.Fatalf("lines must never be nil")
	}
}

func TestRegistry(t *testing.T) {
	r := NewDefaultRegistry(Limits{})
	if _, err := r.Get(model.LanguageLua); err != nil {
		t.Fatalf("lua: %v", err)
	}
	if _, err := r.Get("cobol"); err == nil {
		t.Fatalf("expected unsupported language")
	}
	if got := r.Languages(); !reflect.DeepEqual(got, []model.Language{model.LanguageJavaScript, model.LanguageLua}) {
		t.Fatalf("languages = %v", got)
	}
	if DefaultLimits().Timeout != 2*time.Second {
		t.Fatalf("unexpected default timeout")
	}
}
