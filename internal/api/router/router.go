package router

import (
	"github.com/gin-gonic/gin"

	"github.com/scholaris/paper-analysis-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	healthHandler := handler.NewHealthHandler(deps)
	r.GET("/health", healthHandler.GetHealth)

	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/analysis-jobs")
		{
			// POST /api/v1/analysis-jobs - Submit a paper for analysis
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/analysis-jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/analysis-jobs/queue/status - Queue depth and broker health
			jobs.GET("/queue/status", jobHandler.QueueStatus)

			// GET /api/v1/analysis-jobs/:job_id - Get job details
			jobs.GET("/:job_id", jobHandler.GetJob)

			// POST /api/v1/analysis-jobs/:job_id/retry - Re-admit a failed job
			jobs.POST("/:job_id/retry", jobHandler.RetryJob)
		}
	}

	return r
}
