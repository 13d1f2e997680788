package sandbox

import (
	"context"

	"dsajudge/internal/judge/model"
)

// CaseReport carries the outcome of one finished test case.
type CaseReport struct {
	ProblemID string
	Index     int
	Total     int
	Result    model.RunResult
}

// CaseReporter observes test cases as they finish. Reports are delivered
// synchronously, in test-case order, before Run returns.
type CaseReporter interface {
	ReportCase(ctx context.Context, report CaseReport)
}

// CaseReporterFunc adapts a function to CaseReporter.
type CaseReporterFunc func(ctx context.Context, report CaseReport)

func (f CaseReporterFunc) ReportCase(ctx context.Context, report CaseReport) {
	f(ctx, report)
}
