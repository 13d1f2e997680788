package model

// FaultKind classifies why a test case did not produce a value.
type FaultKind string

const (
	FaultNone     FaultKind = ""
	FaultParse    FaultKind = "parse"
	FaultEntry    FaultKind = "entry"
	FaultMethod   FaultKind = "method"
	FaultCoercion FaultKind = "coercion"
	FaultRuntime  FaultKind = "runtime"
	FaultTimeout  FaultKind = "timeout"
	FaultLimit    FaultKind = "limit"
	// FaultSystem marks the synthetic result of a run that could not execute at all.
	FaultSystem FaultKind = "system"
)

// NotApplicable fills expected and input of a run-level synthetic result.
const NotApplicable = "N/A"

// RunFailurePrefix starts the actual value of a run-level synthetic result.
const RunFailurePrefix = "Error during test execution"

// RunResult is the outcome of one test case.
type RunResult struct {
	Pass       bool      `json:"pass"`
	Actual     any       `json:"actual"`
	Expected   any       `json:"expected"`
	Input      any       `json:"input"`
	Logs       []string  `json:"logs"`
	Fault      FaultKind `json:"fault,omitempty"`
	DurationMs int64     `json:"durationMs"`
}

// RunFailure builds the single synthetic result reported when a run cannot execute.
func RunFailure(message string) RunResult {
	actual := RunFailurePrefix
	if message != "" {
		actual += ": " + message
	}
	return RunResult{
		Pass:     false,
		Actual:   actual,
		Expected: NotApplicable,
		Input:    NotApplicable,
		Logs:     []string{},
		Fault:    FaultSystem,
	}
}

// Passed counts passing results.
func Passed(results []RunResult) int {
	n := 0
	for _, r := range results {
		if r.Pass {
			n++
		}
	}
	return n
}
