package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/scholaris/paper-analysis-be/internal/domain"
)

// Storage handles all database operations on analysis job records. Both the
// API service (through the queue manager) and the worker share this layer;
// the broker lease is what keeps writers from stepping on each other.
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

const jobColumns = `
	job_id, job_type, paper_id, providers, status, attempts, max_attempts,
	error_message, provider_results, worker_id, started_at, completed_at,
	created_at, updated_at
`

// CreateJob inserts a new job record in PENDING state with attempts = 0
func (s *Storage) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO analysis_jobs (
			job_id, job_type, paper_id, providers, provider_fingerprint,
			status, attempts, max_attempts, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.JobID,
		job.JobType,
		job.PaperID,
		job.Providers,
		job.Providers.Fingerprint(),
		job.Status,
		job.Attempts,
		job.MaxAttempts,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrPaperNotFound, job.PaperID)
		}
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// isForeignKeyViolation reports whether err is a Postgres foreign key
// constraint violation (class 23503), here: a job referencing a missing paper
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

// GetJobByID retrieves a job by its ID
func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE job_id = $1`

	var job domain.Job
	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// FindActiveDuplicate looks up a non-terminal job for the same paper and
// provider set. Used for idempotent submission dedup.
func (s *Storage) FindActiveDuplicate(ctx context.Context, paperID, fingerprint string) (*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM analysis_jobs
		WHERE paper_id = $1
		  AND provider_fingerprint = $2
		  AND status IN ($3, $4)
		ORDER BY created_at DESC
		LIMIT 1
	`

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, paperID, fingerprint,
		domain.JobStatusPending, domain.JobStatusProcessing)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to look up duplicate job: %w", err)
	}

	return &job, nil
}

// ClaimJob transitions a leased job into PROCESSING and increments its
// attempt counter. Claimable states are PENDING, FAILED with retry budget
// left (a delayed redelivery of a failed attempt), and PROCESSING with
// retry budget left (a redelivery after the previous attempt's state write
// failed, or a broker requeue after a worker crash). The single-row
// conditional update is the claim; the broker lease guarantees only one
// worker tries at a time.
func (s *Storage) ClaimJob(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	query := `
		UPDATE analysis_jobs
		SET status = $1,
		    worker_id = $2,
		    attempts = attempts + 1,
		    started_at = NOW(),
		    completed_at = NULL,
		    updated_at = NOW()
		WHERE job_id = $3
		  AND (status = $4 OR (status IN ($5, $6) AND attempts < max_attempts))
		RETURNING ` + jobColumns

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query,
		domain.JobStatusProcessing, workerID, jobID,
		domain.JobStatusPending, domain.JobStatusFailed, domain.JobStatusProcessing)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - not claimable",
				slog.String("job_id", jobID),
				slog.String("worker_id", workerID),
			)
			return nil, domain.ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.Info("Job claimed",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
		slog.Int("attempts", job.Attempts),
	)

	return &job, nil
}

// CompleteJob marks a job COMPLETED and stores the per-provider outcomes.
// Failed providers keep their individual errors inside the outcomes; the
// job-level error stays empty.
func (s *Storage) CompleteJob(ctx context.Context, jobID string, outcomes []domain.ProviderOutcome) error {
	return s.finishJob(ctx, jobID, domain.JobStatusCompleted, outcomes, "")
}

// FailJob marks a job FAILED with a summary error and the per-provider
// outcomes of the attempt
func (s *Storage) FailJob(ctx context.Context, jobID string, outcomes []domain.ProviderOutcome, errorMsg string) error {
	return s.finishJob(ctx, jobID, domain.JobStatusFailed, outcomes, errorMsg)
}

func (s *Storage) finishJob(ctx context.Context, jobID, status string, outcomes []domain.ProviderOutcome, errorMsg string) error {
	var outcomesJSON []byte
	if outcomes != nil {
		var err error
		outcomesJSON, err = json.Marshal(outcomes)
		if err != nil {
			return fmt.Errorf("failed to marshal provider outcomes: %w", err)
		}
	}

	query := `
		UPDATE analysis_jobs
		SET status = $1,
		    provider_results = $2,
		    error_message = NULLIF($3, ''),
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $4
	`

	if _, err := s.db.ExecContext(ctx, query, status, outcomesJSON, errorMsg, jobID); err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", status),
	)

	return nil
}

// MarkSubmissionFailed flips a freshly created job to FAILED after a broker
// enqueue failure, so no pending row survives without a matching queue entry.
func (s *Storage) MarkSubmissionFailed(ctx context.Context, jobID, errorMsg string) error {
	query := `
		UPDATE analysis_jobs
		SET status = $1,
		    error_message = $2,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, domain.JobStatusFailed, errorMsg, jobID); err != nil {
		return fmt.Errorf("failed to mark job submission failed: %w", err)
	}

	return nil
}

// ResetForRetry prepares a failed job for an explicit operator retry:
// attempts + 1, error and timestamps cleared, status back to PENDING.
// Returns ErrInvalidState if the job is not FAILED.
func (s *Storage) ResetForRetry(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		UPDATE analysis_jobs
		SET status = $1,
		    attempts = attempts + 1,
		    error_message = NULL,
		    provider_results = NULL,
		    worker_id = NULL,
		    started_at = NULL,
		    completed_at = NULL,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = $3
		RETURNING ` + jobColumns

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, domain.JobStatusPending, jobID, domain.JobStatusFailed)
	if err == nil {
		return &job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to reset job for retry: %w", err)
	}

	// No row updated: distinguish missing job from illegal state
	if _, getErr := s.GetJobByID(ctx, jobID); getErr != nil {
		return nil, getErr
	}
	return nil, domain.ErrInvalidState
}

// CountByStatus returns the number of jobs per status
func (s *Storage) CountByStatus(ctx context.Context) (map[string]int, error) {
	query := `SELECT status, COUNT(*) AS count FROM analysis_jobs GROUP BY status`

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}

	return counts, rows.Err()
}

// JobFilter narrows a ListJobs query
type JobFilter struct {
	PaperID  string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is a keyset pagination cursor over (created_at, job_id)
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns up to PageSize+1 jobs matching the filter, newest first.
// The extra row tells the caller whether more pages exist.
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM analysis_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.PaperID != "" {
		query += fmt.Sprintf(" AND paper_id = $%d", argIdx)
		args = append(args, filter.PaperID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// GetPaper fetches the document text the providers analyze
func (s *Storage) GetPaper(ctx context.Context, paperID string) (*domain.Paper, error) {
	query := `SELECT paper_id, title, abstract, content_text FROM papers WHERE paper_id = $1`

	var paper domain.Paper
	if err := s.db.GetContext(ctx, &paper, query, paperID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("paper %s not found", paperID)
		}
		return nil, fmt.Errorf("failed to get paper: %w", err)
	}

	return &paper, nil
}
