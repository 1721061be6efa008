package dto

import "github.com/scholaris/paper-analysis-be/internal/domain"

type CreateJobRequest struct {
	PaperID   string   `json:"paper_id"`
	Providers []string `json:"providers"`
}

type ListJobsRequest struct {
	PaperID  string `form:"paper_id"`
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListJobsResponse struct {
	Jobs       []JobDTO `json:"jobs"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type JobDTO struct {
	JobID           string                   `json:"job_id"`
	JobType         string                   `json:"job_type"`
	PaperID         string                   `json:"paper_id"`
	Providers       []string                 `json:"providers"`
	Status          string                   `json:"status"`
	Attempts        int                      `json:"attempts"`
	MaxAttempts     int                      `json:"max_attempts"`
	ErrorMessage    string                   `json:"error_message,omitempty"`
	ProviderResults []domain.ProviderOutcome `json:"provider_results,omitempty"`
	WorkerID        string                   `json:"worker_id,omitempty"`
	StartedAt       string                   `json:"started_at,omitempty"`
	CompletedAt     string                   `json:"completed_at,omitempty"`
	CreatedAt       string                   `json:"created_at"`
	UpdatedAt       string                   `json:"updated_at"`
}
