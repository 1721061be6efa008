package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/scholaris/paper-analysis-be/internal/api/dto"
	"github.com/scholaris/paper-analysis-be/internal/storage"
)

// CreateJob handles POST /api/v1/analysis-jobs
// Submits a paper for analysis by one or more providers
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	job, err := h.queue.AddAnalysisJob(c.Request.Context(), req.PaperID, req.Providers)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toJobDTO(job))
}

// GetJob handles GET /api/v1/analysis-jobs/:job_id
// Retrieves detailed information about a specific job
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.queue.GetJob(c.Request.Context(), jobID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// ListJobs handles GET /api/v1/analysis-jobs
// Lists jobs with optional filtering and cursor pagination
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.JobFilter{
		PaperID:  req.PaperID,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	}

	jobs, hasMore, err := h.queue.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = toJobDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       jobResponse,
		NextCursor: nextCursor,
	})
}

// RetryJob handles POST /api/v1/analysis-jobs/:job_id/retry
// Re-admits a failed job into the queue
func (h *JobHandler) RetryJob(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.queue.RetryJob(c.Request.Context(), jobID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.logger.Info("Job retry accepted",
		slog.String("job_id", job.JobID),
		slog.Int("attempts", job.Attempts),
	)

	c.JSON(http.StatusOK, toJobDTO(job))
}

// QueueStatus handles GET /api/v1/analysis-jobs/queue/status
// Reports per-status job counts and broker reachability
func (h *JobHandler) QueueStatus(c *gin.Context) {
	status, err := h.queue.GetQueueStatus(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"queue":     status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
