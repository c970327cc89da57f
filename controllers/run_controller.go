package controllers

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"jobpilot/models"
	"jobpilot/services"
	"jobpilot/utils"
)

// Runner is one application pass. A fresh Runner is built per request.
type Runner interface {
	Run(ctx context.Context) (*models.RunResult, error)
	ApplyOne(ctx context.Context, url string) (models.ApplicationOutcome, error)
}

// RunnerFactory builds a Runner wired to a new browser session.
type RunnerFactory func(ctx context.Context) (Runner, error)

// RunController exposes the on-demand trigger. Only one run may be in flight
// because every run drives the same browser profile.
type RunController struct {
	newRunner RunnerFactory
	sink      services.FailureSink
	running   atomic.Bool
	logger    *zap.Logger
}

func NewRunController(newRunner RunnerFactory, sink services.FailureSink, logger *zap.Logger) *RunController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunController{newRunner: newRunner, sink: sink, logger: logger.Named("run_controller")}
}

// ApplyRequest is the body of POST /api/apply.
type ApplyRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// RegisterRoutes mounts the endpoints on r. guards run in front of every
// endpoint, limit only in front of the ones that start a run.
func (rc *RunController) RegisterRoutes(r gin.IRouter, limit gin.HandlerFunc, guards ...gin.HandlerFunc) {
	api := r.Group("/api", guards...)
	api.GET("/failures", rc.ListFailures)
	api.GET("/status", rc.Status)

	trigger := api.Group("")
	if limit != nil {
		trigger.Use(limit)
	}
	trigger.POST("/run", rc.Run)
	trigger.POST("/apply", rc.Apply)
}

// Run runs a full pass synchronously and returns its statistics.
func (rc *RunController) Run(c *gin.Context) {
	if !rc.running.CompareAndSwap(false, true) {
		utils.ConflictError(c, "A run is already in progress")
		return
	}
	defer rc.running.Store(false)

	// The run is synchronous but must not be torn down by a client that
	// stops waiting.
	ctx := context.WithoutCancel(c.Request.Context())
	runner, err := rc.newRunner(ctx)
	if err != nil {
		rc.logger.Error("Failed to prepare run", zap.Error(err))
		utils.InternalServerError(c, "Failed to prepare run", err)
		return
	}

	result, err := runner.Run(ctx)
	if err != nil {
		rc.logger.Warn("Run ended early", zap.Error(err))
		utils.ErrorResponseWithData(c, statusFor(err), "Run ended early", err, result)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Run completed", result)
}

// Apply runs the workflow against one job URL.
func (rc *RunController) Apply(c *gin.Context) {
	var req ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ValidationError(c, err)
		return
	}
	if !rc.running.CompareAndSwap(false, true) {
		utils.ConflictError(c, "A run is already in progress")
		return
	}
	defer rc.running.Store(false)

	ctx := context.WithoutCancel(c.Request.Context())
	runner, err := rc.newRunner(ctx)
	if err != nil {
		utils.InternalServerError(c, "Failed to prepare run", err)
		return
	}
	outcome, err := runner.ApplyOne(ctx, req.URL)
	if err != nil {
		utils.ErrorResponseWithCode(c, statusFor(err), "Application could not start", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Application finished", outcome)
}

// ListFailures returns every failure stored in the sink.
func (rc *RunController) ListFailures(c *gin.Context) {
	failures, err := rc.sink.GetAll(c.Request.Context())
	if err != nil {
		utils.InternalServerError(c, "Failed to load failures", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Failures retrieved", failures)
}

func (rc *RunController) Status(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "ok", gin.H{"running": rc.running.Load()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrAuthenticationRequired), errors.Is(err, services.ErrAuthenticationTimeout):
		return http.StatusUnauthorized
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
