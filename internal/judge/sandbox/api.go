// Package sandbox runs untrusted submissions against a problem's test cases.
//
// The Host synthesizes one program per run, compiles it once and invokes it
// once per test case on a fresh interpreter. Faults raised by user code are
// contained in the failing test case's result; they never surface as Go
// errors or panics to the caller.
package sandbox

import (
	"context"

	"dsajudge/internal/judge/model"
)

// Runner executes one submission against a list of test cases.
type Runner interface {
	// Run returns one result per test case, in order. A run that cannot
	// execute at all returns exactly one result built by model.RunFailure.
	Run(ctx context.Context, def model.ProblemDefinition, code string, cases []model.TestCase) []model.RunResult
}

var _ Runner = (*Host)(nil)
