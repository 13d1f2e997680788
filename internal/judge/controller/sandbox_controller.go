package controller

import (
	"dsajudge/internal/common/http/middleware"
	"dsajudge/internal/judge/model"
	"dsajudge/internal/judge/service"
	"dsajudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// SandboxController handles problem, run and draft endpoints.
type SandboxController struct {
	sandboxService *service.Service
}

// NewSandboxController creates a new controller.
func NewSandboxController(sandboxService *service.Service) *SandboxController {
	return &SandboxController{sandboxService: sandboxService}
}

// Register mounts the routes under api, normally /api/v1/problems.
func (h *SandboxController) Register(api gin.IRouter) {
	api.GET("", h.List)
	api.GET("/:id", h.Get)
	api.GET("/:id/starter", h.Starter)
	api.POST("/:id/run", h.Run)
	api.GET("/:id/draft", h.GetDraft)
	api.PUT("/:id/draft", h.SaveDraft)
	api.DELETE("/:id/draft", h.DeleteDraft)
}

// RunRequest is the body of a run.
type RunRequest struct {
	Code string `json:"code"`
	// TestCases replaces the problem's fixtures when present.
	TestCases []model.TestCase `json:"testCases,omitempty"`
}

// DraftRequest is the body of a draft save.
type DraftRequest struct {
	Code string `json:"code"`
}

// StarterResponse carries starter code.
type StarterResponse struct {
	ProblemID string         `json:"problemId"`
	Language  model.Language `json:"language"`
	Code      string         `json:"code"`
}

// List handles listing and searching problems.
func (h *SandboxController) List(c *gin.Context) {
	response.Success(c, h.sandboxService.ListProblems(c.Request.Context(), c.Query("q")))
}

// Get returns one problem definition.
func (h *SandboxController) Get(c *gin.Context) {
	def, err := h.sandboxService.GetProblem(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, def)
}

// Starter returns starter code for a problem.
func (h *SandboxController) Starter(c *gin.Context) {
	ctx := c.Request.Context()
	def, err := h.sandboxService.GetProblem(ctx, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	code, err := h.sandboxService.Starter(ctx, def.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, StarterResponse{ProblemID: def.ID, Language: def.Language, Code: code})
}

// Run executes submitted code against the problem's test cases.
func (h *SandboxController) Run(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	reply, err := h.sandboxService.RunCode(c.Request.Context(), service.RunInput{
		ProblemID: c.Param("id"),
		Owner:     middleware.UserID(c),
		Code:      req.Code,
		TestCases: req.TestCases,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, reply)
}

// GetDraft returns the caller's saved code.
func (h *SandboxController) GetDraft(c *gin.Context) {
	draft, err := h.sandboxService.GetDraft(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, draft)
}

// SaveDraft stores the caller's code.
func (h *SandboxController) SaveDraft(c *gin.Context) {
	var req DraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}
	draft, err := h.sandboxService.SaveDraft(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.Code)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, draft)
}

// DeleteDraft removes the caller's saved code.
func (h *SandboxController) DeleteDraft(c *gin.Context) {
	if err := h.sandboxService.DeleteDraft(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
