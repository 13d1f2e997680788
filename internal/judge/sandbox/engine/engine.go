// Package engine embeds the interpreters that execute synthesized programs.
//
// An Engine compiles a program's source once. The resulting Program is
// invoked once per test case, each time on a fresh interpreter instance, so
// globals written by one test case are never visible to the next.
//
// Values cross the boundary in the JSON value space: nil, float64, string,
// bool, []any and map[string]any.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"dsajudge/internal/judge/model"
)

// ErrUnsupportedLanguage is returned by Registry.Get for unknown languages.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Engine compiles synthesized source for one language.
type Engine interface {
	Language() model.Language
	// Compile returns a *CodeError of kind parse when source does not compile.
	Compile(source string) (Program, error)
}

// Program is a compiled synthesized program.
type Program interface {
	// Invoke runs the program with (console, input) on a fresh interpreter.
	// Faults raised by user code are returned as *CodeError; the interpreter
	// is abandoned when ctx is done.
	Invoke(ctx context.Context, sink *LogSink, input []any) (any, error)
}

// CodeError is a fault raised while compiling or running untrusted code.
type CodeError struct {
	Kind model.FaultKind
	// Message is the diagnostic shown to the user as the test case's actual value.
	Message string
	// Line and Column are 1-based positions in the compiled source; zero means unknown.
	Line   int
	Column int
}

func (e *CodeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d, col %d)", e.Message, e.Line, e.Column)
	}
	return e.Message
}

// AsCodeError extracts a *CodeError from err.
func AsCodeError(err error) (*CodeError, bool) {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Limits bound a single invocation.
type Limits struct {
	// Timeout is the wall-clock budget of one invocation.
	Timeout time.Duration `yaml:"timeout"`
	// MaxCallStackSize bounds interpreter call depth.
	MaxCallStackSize int `yaml:"maxCallStackSize"`
	// MaxLogLines caps captured console lines per invocation.
	MaxLogLines int `yaml:"maxLogLines"`
}

// DefaultLimits returns the limits applied when none are configured.
func DefaultLimits() Limits {
	return Limits{
		Timeout:          2 * time.Second,
		MaxCallStackSize: 1024,
		MaxLogLines:      1000,
	}
}

// WithDefaults fills zero fields from DefaultLimits.
func (l Limits) WithDefaults() Limits {
	d := DefaultLimits()
	if l.Timeout <= 0 {
		l.Timeout = d.Timeout
	}
	if l.MaxCallStackSize <= 0 {
		l.MaxCallStackSize = d.MaxCallStackSize
	}
	if l.MaxLogLines <= 0 {
		l.MaxLogLines = d.MaxLogLines
	}
	return l
}

// Registry maps languages to engines.
type Registry struct {
	engines map[model.Language]Engine
}

// NewRegistry registers engines; a later engine for the same language wins.
func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[model.Language]Engine, len(engines))}
	for _, e := range engines {
		r.engines[e.Language()] = e
	}
	return r
}

// NewDefaultRegistry registers the JavaScript and Lua engines with limits.
func NewDefaultRegistry(limits Limits) *Registry {
	return NewRegistry(NewJavaScriptEngine(limits), NewLuaEngine(limits))
}

// Get returns the engine for lang.
func (r *Registry) Get(lang model.Language) (Engine, error) {
	e, ok := r.engines[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
	return e, nil
}

// Languages lists registered languages in sorted order.
func (r *Registry) Languages() []model.Language {
	out := make([]model.Language, 0, len(r.engines))
	for lang := range r.engines {
		out = append(out, lang)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// timeoutFault describes why an invocation was abandoned.
func timeoutFault(ctx context.Context) *CodeError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &CodeError{Kind: model.FaultTimeout, Message: "Execution timed out"}
	}
	return &CodeError{Kind: model.FaultTimeout, Message: "Execution canceled"}
}

// faultKind maps a glue-raised kind tag to a FaultKind; unknown tags are runtime faults.
func faultKind(tag string) model.FaultKind {
	switch model.FaultKind(tag) {
	case model.FaultEntry, model.FaultMethod, model.FaultCoercion:
		return model.FaultKind(tag)
	default:
		return model.FaultRuntime
	}
}
