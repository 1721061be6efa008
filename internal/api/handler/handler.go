package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scholaris/paper-analysis-be/internal/api/dto"
	"github.com/scholaris/paper-analysis-be/internal/domain"
	"github.com/scholaris/paper-analysis-be/internal/health"
	"github.com/scholaris/paper-analysis-be/internal/queue"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger  *slog.Logger
	Queue   *queue.Manager
	Health  *health.Service
	Version string
}

// JobHandler handles analysis job HTTP requests
type JobHandler struct {
	logger *slog.Logger
	queue  *queue.Manager
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		queue:  deps.Queue,
	}
}

// respondError maps domain errors to HTTP status codes with a JSON body
func (h *JobHandler) respondError(c *gin.Context, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation failed",
			"field":   validationErr.Field,
			"message": validationErr.Message,
		})
		return
	}

	if errors.Is(err, domain.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	if errors.Is(err, domain.ErrPaperNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "paper not found"})
		return
	}

	if errors.Is(err, domain.ErrInvalidState) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var connErr *domain.ConnectivityError
	if errors.As(err, &connErr) {
		h.logger.Error("Dependency unavailable",
			slog.String("service", connErr.Service),
			slog.Any("error", connErr.Err),
		)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": connErr.Service + " unavailable"})
		return
	}

	h.logger.Error("Request failed", slog.Any("error", err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// toJobDTO converts a job record into its API representation
func toJobDTO(job *domain.Job) dto.JobDTO {
	out := dto.JobDTO{
		JobID:           job.JobID,
		JobType:         job.JobType,
		PaperID:         job.PaperID,
		Providers:       job.Providers,
		Status:          job.Status,
		Attempts:        job.Attempts,
		MaxAttempts:     job.MaxAttempts,
		ProviderResults: job.ProviderResults,
		CreatedAt:       job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       job.UpdatedAt.Format(time.RFC3339),
	}
	if job.ErrorMessage.Valid {
		out.ErrorMessage = job.ErrorMessage.String
	}
	if job.WorkerID.Valid {
		out.WorkerID = job.WorkerID.String
	}
	if job.StartedAt.Valid {
		out.StartedAt = job.StartedAt.Time.Format(time.RFC3339)
	}
	if job.CompletedAt.Valid {
		out.CompletedAt = job.CompletedAt.Time.Format(time.RFC3339)
	}
	return out
}
