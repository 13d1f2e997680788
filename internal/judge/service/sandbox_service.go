package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dsajudge/internal/judge/model"
	"dsajudge/internal/judge/repository"
	"dsajudge/internal/judge/sandbox"
	appErr "dsajudge/pkg/errors"
	"dsajudge/pkg/utils/contextkey"
	"dsajudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxCodeBytes caps submitted code when no limit is configured.
const DefaultMaxCodeBytes = 64 << 10

// ProblemCatalog is the read side of the problem catalog.
type ProblemCatalog interface {
	Get(id string) (model.ProblemDefinition, error)
	List() []model.Summary
	Search(query string) []model.Summary
}

// StarterRenderer renders starter code for a problem.
type StarterRenderer interface {
	StarterCode(def model.ProblemDefinition) (string, error)
}

// RunSubmitter hands a run to an isolated worker and waits for its reply.
type RunSubmitter interface {
	Submit(ctx context.Context, req model.RunRequest) (model.RunReply, error)
}

// Service serves problems, runs and drafts.
type Service struct {
	catalog      ProblemCatalog
	starter      StarterRenderer
	runner       sandbox.Runner
	submitter    RunSubmitter
	drafts       *repository.DraftRepository
	quota        *repository.RunQuota
	events       repository.RunEventPublisher
	maxCodeBytes int
	runTimeout   time.Duration
	eventTimeout time.Duration
}

// Config holds service dependencies and settings.
type Config struct {
	Catalog ProblemCatalog
	Starter StarterRenderer
	// Runner executes in-process; Submitter, when set, takes precedence and
	// executes on an isolated worker.
	Runner    sandbox.Runner
	Submitter RunSubmitter
	// Drafts, Quota and Events are optional.
	Drafts       *repository.DraftRepository
	Quota        *repository.RunQuota
	Events       repository.RunEventPublisher
	MaxCodeBytes int
	// RunTimeout bounds a whole run, including waiting for a worker.
	RunTimeout   time.Duration
	EventTimeout time.Duration
}

// NewService creates a new sandbox service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if cfg.Starter == nil {
		return nil, fmt.Errorf("starter renderer is required")
	}
	if cfg.Runner == nil && cfg.Submitter == nil {
		return nil, fmt.Errorf("runner or submitter is required")
	}
	maxCode := cfg.MaxCodeBytes
	if maxCode <= 0 {
		maxCode = DefaultMaxCodeBytes
	}
	eventTimeout := cfg.EventTimeout
	if eventTimeout <= 0 {
		eventTimeout = 2 * time.Second
	}
	return &Service{
		catalog:      cfg.Catalog,
		starter:      cfg.Starter,
		runner:       cfg.Runner,
		submitter:    cfg.Submitter,
		drafts:       cfg.Drafts,
		quota:        cfg.Quota,
		events:       cfg.Events,
		maxCodeBytes: maxCode,
		runTimeout:   cfg.RunTimeout,
		eventTimeout: eventTimeout,
	}, nil
}

// ListProblems lists problems, filtered by query when it is not empty.
func (s *Service) ListProblems(ctx context.Context, query string) []model.Summary {
	if strings.TrimSpace(query) == "" {
		return s.catalog.List()
	}
	return s.catalog.Search(query)
}

// GetProblem returns one problem definition.
func (s *Service) GetProblem(ctx context.Context, id string) (model.ProblemDefinition, error) {
	if id == "" {
		return model.ProblemDefinition{}, appErr.ValidationError("id", "required")
	}
	return s.catalog.Get(id)
}

// Starter returns the starter code of a problem.
func (s *Service) Starter(ctx context.Context, id string) (string, error) {
	def, err := s.GetProblem(ctx, id)
	if err != nil {
		return "", err
	}
	code, err := s.starter.StarterCode(def)
	if err != nil {
		return "", err
	}
	return code, nil
}

// RunInput is one run request from a user.
type RunInput struct {
	ProblemID string
	Owner     string
	Code      string
	// TestCases replaces the problem's fixtures when not empty.
	TestCases []model.TestCase
}

// RunCode executes code against the problem's test cases.
// Faults in user code are reported inside the results, never as an error.
func (s *Service) RunCode(ctx context.Context, in RunInput) (model.RunReply, error) {
	if strings.TrimSpace(in.Code) == "" {
		return model.RunReply{}, appErr.ValidationError("code", "required")
	}
	if len(in.Code) > s.maxCodeBytes {
		return model.RunReply{}, appErr.New(appErr.CodeTooLarge).WithMessagef("code exceeds %d bytes", s.maxCodeBytes)
	}
	def, err := s.GetProblem(ctx, in.ProblemID)
	if err != nil {
		return model.RunReply{}, err
	}
	if err := s.quota.Allow(ctx, in.Owner); err != nil {
		return model.RunReply{}, err
	}

	uid := uuid.NewString()
	ctx = context.WithValue(ctx, contextkey.RunID, uid)
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	start := time.Now()
	var reply model.RunReply
	if s.submitter != nil {
		reply, err = s.submitter.Submit(ctx, model.RunRequest{
			UID:       uid,
			ProblemID: def.ID,
			Problem:   &def,
			Code:      in.Code,
			TestCases: in.TestCases,
			Owner:     in.Owner,
		})
		if err != nil {
			logger.Error(ctx, "run on worker failed", zap.String("problem_id", def.ID), zap.Error(err))
			return model.RunReply{}, err
		}
	} else {
		cases := in.TestCases
		if len(cases) == 0 {
			cases = def.TestCases
		}
		reply = model.RunReply{UID: uid, Results: s.runner.Run(ctx, def, in.Code, cases)}
	}

	logger.Info(ctx, "run finished",
		zap.String("problem_id", def.ID),
		zap.Int("cases", len(reply.Results)),
		zap.Int("passed", model.Passed(reply.Results)),
		zap.Duration("duration", time.Since(start)),
	)
	s.publishRun(ctx, def, in.Owner, reply)
	return reply, nil
}

func (s *Service) publishRun(ctx context.Context, def model.ProblemDefinition, owner string, reply model.RunReply) {
	if s.events == nil {
		return
	}
	ctxEvent, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.eventTimeout)
	defer cancel()
	event := repository.RunEvent{
		UID:       reply.UID,
		ProblemID: def.ID,
		Owner:     owner,
		Language:  def.Language,
		Total:     len(reply.Results),
		Passed:    model.Passed(reply.Results),
	}
	if err := s.events.PublishRunFinished(ctxEvent, event); err != nil {
		logger.Warn(ctx, "publish run event failed", zap.Error(err))
	}
}

// SaveDraft stores the code of owner for a problem.
func (s *Service) SaveDraft(ctx context.Context, owner, problemID, code string) (repository.Draft, error) {
	if s.drafts == nil {
		return repository.Draft{}, appErr.New(appErr.DraftsDisabled)
	}
	if _, err := s.GetProblem(ctx, problemID); err != nil {
		return repository.Draft{}, err
	}
	return s.drafts.Save(ctx, owner, problemID, code)
}

// GetDraft loads the saved code of owner for a problem.
func (s *Service) GetDraft(ctx context.Context, owner, problemID string) (repository.Draft, error) {
	if s.drafts == nil {
		return repository.Draft{}, appErr.New(appErr.DraftsDisabled)
	}
	return s.drafts.Get(ctx, owner, problemID)
}

// DeleteDraft removes the saved code of owner for a problem.
func (s *Service) DeleteDraft(ctx context.Context, owner, problemID string) error {
	if s.drafts == nil {
		return appErr.New(appErr.DraftsDisabled)
	}
	return s.drafts.Delete(ctx, owner, problemID)
}
