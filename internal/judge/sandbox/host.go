package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dsajudge/internal/judge/model"
	"dsajudge/internal/judge/sandbox/engine"
	"dsajudge/internal/judge/sandbox/synth"
	appErr "dsajudge/pkg/errors"
	"dsajudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// Config holds host dependencies and settings.
type Config struct {
	Limits engine.Limits
	// Types resolves declared parameter types; nil means the default primitives.
	Types *synth.TypeRegistry
	// Engines defaults to JavaScript and Lua with Limits.
	Engines  *engine.Registry
	Reporter CaseReporter
}

// Host executes submissions in-process. It is safe for concurrent use;
// test cases of one run execute sequentially.
type Host struct {
	synth    *synth.Synthesizer
	engines  *engine.Registry
	limits   engine.Limits
	reporter CaseReporter
}

// NewHost creates a host.
func NewHost(cfg Config) *Host {
	limits := cfg.Limits.WithDefaults()
	engines := cfg.Engines
	if engines == nil {
		engines = engine.NewDefaultRegistry(limits)
	}
	return &Host{
		synth:    synth.New(cfg.Types),
		engines:  engines,
		limits:   limits,
		reporter: cfg.Reporter,
	}
}

// Synthesizer exposes the synthesizer, which also renders starter code.
func (h *Host) Synthesizer() *synth.Synthesizer {
	return h.synth
}

// Limits returns the effective per-invocation limits.
func (h *Host) Limits() engine.Limits {
	return h.limits
}

// Run executes code against cases. It never panics.
func (h *Host) Run(ctx context.Context, def model.ProblemDefinition, code string, cases []model.TestCase) (results []model.RunResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "sandbox run panicked",
				zap.String("problem_id", def.ID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			results = []model.RunResult{model.RunFailure(fmt.Sprint(r))}
		}
	}()

	fixtures, err := normalizeCases(cases)
	if err != nil {
		return h.fail(ctx, def, err)
	}
	prog, err := h.synth.Synthesize(def, code)
	if err != nil {
		return h.fail(ctx, def, err)
	}
	eng, err := h.engines.Get(prog.Language)
	if err != nil {
		return h.fail(ctx, def, appErr.Wrap(err, appErr.LanguageNotSupported))
	}

	compiled, err := eng.Compile(prog.Source)
	var parseFault *engine.CodeError
	if err != nil {
		ce, ok := engine.AsCodeError(err)
		if !ok {
			return h.fail(ctx, def, err)
		}
		parseFault = userPosition(ce, prog, code)
		logger.Info(ctx, "submission failed to compile",
			zap.String("problem_id", def.ID),
			zap.String("language", string(prog.Language)),
			zap.Int("line", parseFault.Line),
		)
	}

	results = make([]model.RunResult, 0, len(fixtures))
	for i, tc := range fixtures {
		var res model.RunResult
		if parseFault != nil {
			res = faultResult(tc, parseFault, []string{}, 0)
		} else {
			res = h.runCase(ctx, compiled, prog, code, tc)
		}
		results = append(results, res)
		logger.Debug(ctx, "test case finished",
			zap.String("problem_id", def.ID),
			zap.Int("case", i),
			zap.Bool("pass", res.Pass),
			zap.String("fault", string(res.Fault)),
			zap.Int64("duration_ms", res.DurationMs),
		)
		if h.reporter != nil {
			h.reporter.ReportCase(ctx, CaseReport{ProblemID: def.ID, Index: i, Total: len(fixtures), Result: res})
		}
	}

	logger.Info(ctx, "sandbox run finished",
		zap.String("problem_id", def.ID),
		zap.String("language", string(prog.Language)),
		zap.String("entry", prog.EntryName),
		zap.Int("cases", len(results)),
		zap.Int("passed", model.Passed(results)),
		zap.Duration("duration", time.Since(start)),
	)
	return results
}

func (h *Host) runCase(ctx context.Context, compiled engine.Program, prog *synth.Program, code string, tc model.TestCase) (res model.RunResult) {
	sink := engine.NewLogSink(h.limits.MaxLogLines)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "test case panicked", zap.Any("panic", r), zap.Stack("stack"))
			fault := &engine.CodeError{Kind: model.FaultRuntime, Message: fmt.Sprint(r)}
			res = faultResult(tc, fault, sink.Lines(), time.Since(start))
		}
	}()

	caseCtx, cancel := context.WithTimeout(ctx, h.limits.Timeout)
	defer cancel()

	actual, err := compiled.Invoke(caseCtx, sink, tc.Input)
	elapsed := time.Since(start)
	if err != nil {
		ce, ok := engine.AsCodeError(err)
		if !ok {
			logger.Warn(ctx, "engine failed outside user code", zap.Error(err))
			ce = &engine.CodeError{Kind: model.FaultRuntime, Message: err.Error()}
		}
		return faultResult(tc, userPosition(ce, prog, code), sink.Lines(), elapsed)
	}
	return model.RunResult{
		Pass:       Equal(actual, tc.Expected),
		Actual:     actual,
		Expected:   tc.Expected,
		Input:      tc.Input,
		Logs:       sink.Lines(),
		DurationMs: elapsed.Milliseconds(),
	}
}

func (h *Host) fail(ctx context.Context, def model.ProblemDefinition, err error) []model.RunResult {
	logger.Warn(ctx, "sandbox run could not execute",
		zap.String("problem_id", def.ID),
		zap.Int("code", int(appErr.GetCode(err))),
		zap.Error(err),
	)
	return []model.RunResult{model.RunFailure(err.Error())}
}

// normalizeCases copies cases into the JSON value space.
func normalizeCases(cases []model.TestCase) ([]model.TestCase, error) {
	out := make([]model.TestCase, len(cases))
	for i, tc := range cases {
		if err := tc.Normalize(); err != nil {
			return nil, appErr.Wrapf(err, appErr.TestCaseInvalid, "test case %d: %v", i, err)
		}
		out[i] = tc
	}
	return out, nil
}

// faultResult reports a contained fault: the diagnostic becomes the actual value.
func faultResult(tc model.TestCase, fault *engine.CodeError, logs []string, elapsed time.Duration) model.RunResult {
	return model.RunResult{
		Pass:       false,
		Actual:     diagnostic(fault),
		Expected:   tc.Expected,
		Input:      tc.Input,
		Logs:       logs,
		Fault:      fault.Kind,
		DurationMs: elapsed.Milliseconds(),
	}
}

func diagnostic(fault *engine.CodeError) string {
	if fault.Kind == model.FaultParse && fault.Line > 0 {
		return fmt.Sprintf("%s (line %d)", fault.Message, fault.Line)
	}
	return fault.Message
}

// userPosition maps a position in the synthesized source onto the submission.
// Positions inside generated glue are dropped.
func userPosition(fault *engine.CodeError, prog *synth.Program, code string) *engine.CodeError {
	out := *fault
	if out.Line <= 0 {
		return &out
	}
	line := out.Line - prog.UserLineOffset
	if line < 1 || line > strings.Count(code, "\n")+1 {
		out.Line, out.Column = 0, 0
		return &out
	}
	out.Line = line
	return &out
}
