package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"caseflow-pipeline/internal/models"
	"caseflow-pipeline/internal/pkg/logger"
)

// Orchestrator is the surface the HTTP layer needs from the pipeline.
type Orchestrator interface {
	SubmitCase(ctx context.Context, req *models.SubmitCaseRequest) (*models.SubmitCaseResponse, error)
	GetCaseStatus(ctx context.Context, caseID string) (*models.CaseStatusResponse, error)
	GetCaseAudit(ctx context.Context, caseID string) ([]models.AuditEntry, error)
	ExportAudit(ctx context.Context, from, to time.Time) ([]models.AuditEntry, error)
	CancelCase(ctx context.Context, caseID string) error
	GetActiveCasesCount() int
	HealthCheck(ctx context.Context) error
	GetStats() map[string]interface{}
}

type CaseHandler struct {
	orchestrator Orchestrator
	logger       *logger.Logger
}

func NewCaseHandler(orchestrator Orchestrator, log *logger.Logger) *CaseHandler {
	return &CaseHandler{orchestrator: orchestrator, logger: log}
}

func (handler *CaseHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", handler.Health)
	router.GET("/stats", handler.Stats)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/cases", handler.SubmitCase)
		v1.GET("/cases/active", handler.ActiveCases)
		v1.GET("/cases/:id/status", handler.CaseStatus)
		v1.GET("/cases/:id/audit", handler.CaseAudit)
		v1.DELETE("/cases/:id", handler.CancelCase)
		v1.GET("/audit/export", handler.ExportAudit)
	}
}

func (handler *CaseHandler) SubmitCase(c *gin.Context) {
	var req models.SubmitCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	response, err := handler.orchestrator.SubmitCase(c.Request.Context(), &req)
	if err != nil {
		handler.logger.WithError(err).Error("Case submission failed")
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, response)
}

func (handler *CaseHandler) CaseStatus(c *gin.Context) {
	caseID := c.Param("id")

	status, err := handler.orchestrator.GetCaseStatus(c.Request.Context(), caseID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, status)
}

func (handler *CaseHandler) CaseAudit(c *gin.Context) {
	caseID := c.Param("id")

	entries, err := handler.orchestrator.GetCaseAudit(c.Request.Context(), caseID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"case_id": caseID, "entries": entries, "count": len(entries)})
}

func (handler *CaseHandler) CancelCase(c *gin.Context) {
	caseID := c.Param("id")

	if err := handler.orchestrator.CancelCase(c.Request.Context(), caseID); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"case_id": caseID, "status": "cancellation_requested"})
}

// ExportAudit streams audit entries in a time window for offline review.
// Defaults to the trailing 24 hours.
func (handler *CaseHandler) ExportAudit(c *gin.Context) {
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'from' timestamp, expected RFC3339"})
			return
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'to' timestamp, expected RFC3339"})
			return
		}
		to = parsed
	}

	entries, err := handler.orchestrator.ExportAudit(c.Request.Context(), from, to)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"from": from, "to": to, "entries": entries, "count": len(entries)})
}

func (handler *CaseHandler) ActiveCases(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"active_cases": handler.orchestrator.GetActiveCasesCount()})
}

func (handler *CaseHandler) Health(c *gin.Context) {
	if err := handler.orchestrator.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().UTC()})
}

func (handler *CaseHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, handler.orchestrator.GetStats())
}

func statusForError(err error) int {
	var pipelineErr *models.PipelineError
	if !errors.As(err, &pipelineErr) {
		return http.StatusInternalServerError
	}

	switch pipelineErr.Category {
	case models.CategoryValidation:
		return http.StatusBadRequest
	case models.CategoryNotFound:
		return http.StatusNotFound
	case models.CategoryTimeout:
		return http.StatusGatewayTimeout
	case models.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
