// Package worker moves run requests to an isolated executor and back.
//
// A Worker answers every RunRequest with exactly one RunReply carrying the
// same uid. Requests reach it through an in-process Pool or through the
// message queue (QueueConsumer); callers use a Client over either Transport.
package worker

import (
	"context"
	"fmt"

	"dsajudge/internal/judge/model"
	"dsajudge/internal/judge/sandbox"
	appErr "dsajudge/pkg/errors"
	"dsajudge/pkg/utils/contextkey"
	"dsajudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// ProblemSource looks problems up by id.
type ProblemSource interface {
	Get(id string) (model.ProblemDefinition, error)
}

// Worker executes run requests on a sandbox runner.
type Worker struct {
	runner   sandbox.Runner
	problems ProblemSource
}

// New creates a worker. problems may be nil when every request carries its problem inline.
func New(runner sandbox.Runner, problems ProblemSource) (*Worker, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	return &Worker{runner: runner, problems: problems}, nil
}

// Handle runs req and returns its reply. It never panics.
func (w *Worker) Handle(ctx context.Context, req model.RunRequest) (reply model.RunReply) {
	if req.UID != "" {
		ctx = context.WithValue(ctx, contextkey.RunID, req.UID)
	}
	if req.Owner != "" {
		ctx = context.WithValue(ctx, contextkey.UserID, req.Owner)
	}
	reply.UID = req.UID
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "worker panicked", zap.Any("panic", r), zap.Stack("stack"))
			reply.Results = []model.RunResult{model.RunFailure(fmt.Sprint(r))}
		}
	}()

	def, err := w.resolve(req)
	if err != nil {
		logger.Warn(ctx, "run request rejected", zap.String("problem_id", req.ProblemID), zap.Error(err))
		reply.Results = []model.RunResult{model.RunFailure(err.Error())}
		return reply
	}
	cases := req.TestCases
	if len(cases) == 0 {
		cases = def.TestCases
	}
	reply.Results = w.runner.Run(ctx, def, req.Code, cases)
	return reply
}

func (w *Worker) resolve(req model.RunRequest) (model.ProblemDefinition, error) {
	if req.Problem != nil {
		return *req.Problem, nil
	}
	if req.ProblemID == "" {
		return model.ProblemDefinition{}, appErr.ValidationError("problemId", "required")
	}
	if w.problems == nil {
		return model.ProblemDefinition{}, appErr.ProblemMissing(req.ProblemID)
	}
	return w.problems.Get(req.ProblemID)
}
