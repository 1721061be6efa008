// Package queue owns job submission, validation, status projection, retry
// admission, and queue-level statistics. All writes to job records outside a
// worker's lease go through the Manager.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scholaris/paper-analysis-be/internal/domain"
	"github.com/scholaris/paper-analysis-be/internal/storage"
	"github.com/scholaris/paper-analysis-be/shared/rabbitmq"
)

// Config holds queue manager configuration
type Config struct {
	Logger                 *slog.Logger
	Storage                *storage.Storage
	RabbitClient           *rabbitmq.Client
	MaxAttempts            int
	DeduplicateSubmissions bool
}

// Manager mediates job submission and operator-facing job operations
type Manager struct {
	logger       *slog.Logger
	storage      *storage.Storage
	rabbitClient *rabbitmq.Client
	maxAttempts  int
	dedupe       bool
}

// NewManager creates a new queue manager
func NewManager(cfg *Config) *Manager {
	return &Manager{
		logger:       cfg.Logger,
		storage:      cfg.Storage,
		rabbitClient: cfg.RabbitClient,
		maxAttempts:  cfg.MaxAttempts,
		dedupe:       cfg.DeduplicateSubmissions,
	}
}

// AddAnalysisJob validates and persists a new analysis job and enqueues its
// broker message. When the record is created but the enqueue fails, the
// record is flipped to FAILED so no pending row survives without a matching
// broker entry, and a ConnectivityError is returned.
func (m *Manager) AddAnalysisJob(ctx context.Context, paperID string, providers []string) (*domain.Job, error) {
	normalized, err := validateSubmission(paperID, providers)
	if err != nil {
		return nil, err
	}

	if m.dedupe {
		existing, err := m.storage.FindActiveDuplicate(ctx, paperID, normalized.Fingerprint())
		if err == nil {
			m.logger.Info("Duplicate submission deduplicated",
				slog.String("paper_id", paperID),
				slog.String("job_id", existing.JobID),
			)
			return existing, nil
		}
		if !errors.Is(err, domain.ErrJobNotFound) {
			return nil, &domain.ConnectivityError{Service: "store", Err: err}
		}
	}

	now := time.Now().UTC()
	job := &domain.Job{
		JobID:       uuid.New().String(),
		JobType:     domain.JobTypeAnalysis,
		PaperID:     paperID,
		Providers:   normalized,
		Status:      domain.JobStatusPending,
		Attempts:    0,
		MaxAttempts: m.maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := m.storage.CreateJob(ctx, job); err != nil {
		if errors.Is(err, domain.ErrPaperNotFound) {
			return nil, err
		}
		return nil, &domain.ConnectivityError{Service: "store", Err: err}
	}

	if err := m.enqueue(ctx, job.JobID); err != nil {
		m.logger.Error("Failed to enqueue job, marking record failed",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
		if markErr := m.storage.MarkSubmissionFailed(ctx, job.JobID, "broker enqueue failed: "+err.Error()); markErr != nil {
			m.logger.Error("Failed to mark job failed after enqueue failure",
				slog.String("job_id", job.JobID),
				slog.Any("error", markErr),
			)
		}
		return nil, &domain.ConnectivityError{Service: "broker", Err: err}
	}

	m.logger.Info("Analysis job submitted",
		slog.String("job_id", job.JobID),
		slog.String("paper_id", paperID),
		slog.Any("providers", normalized),
	)

	return job, nil
}

// GetJob retrieves a job record by ID
func (m *Manager) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return m.storage.GetJobByID(ctx, jobID)
}

// ListJobs returns a page of jobs plus whether more pages follow
func (m *Manager) ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, bool, error) {
	jobs, err := m.storage.ListJobs(ctx, filter)
	if err != nil {
		return nil, false, err
	}

	hasMore := len(jobs) > filter.PageSize
	if hasMore {
		jobs = jobs[:filter.PageSize]
	}

	return jobs, hasMore, nil
}

// RetryJob re-admits a terminally failed job: attempts + 1, error cleared,
// status back to PENDING, fresh broker message. Only FAILED jobs qualify;
// anything else returns ErrInvalidState.
func (m *Manager) RetryJob(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := m.storage.ResetForRetry(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := m.enqueue(ctx, job.JobID); err != nil {
		m.logger.Error("Failed to re-enqueue retried job, marking record failed",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
		if markErr := m.storage.MarkSubmissionFailed(ctx, job.JobID, "broker enqueue failed on retry: "+err.Error()); markErr != nil {
			m.logger.Error("Failed to mark retried job failed",
				slog.String("job_id", job.JobID),
				slog.Any("error", markErr),
			)
		}
		return nil, &domain.ConnectivityError{Service: "broker", Err: err}
	}

	m.logger.Info("Job retry admitted",
		slog.String("job_id", job.JobID),
		slog.Int("attempts", job.Attempts),
	)

	return job, nil
}

// GetQueueStatus returns per-status job counts plus broker reachability
func (m *Manager) GetQueueStatus(ctx context.Context) (*domain.QueueStatus, error) {
	counts, err := m.storage.CountByStatus(ctx)
	if err != nil {
		return nil, &domain.ConnectivityError{Service: "store", Err: err}
	}

	return &domain.QueueStatus{
		Pending:    counts[domain.JobStatusPending],
		Processing: counts[domain.JobStatusProcessing],
		Completed:  counts[domain.JobStatusCompleted],
		Failed:     counts[domain.JobStatusFailed],
		IsHealthy:  m.IsHealthy(ctx),
	}, nil
}

// IsHealthy performs a bounded broker round-trip. This is a liveness check
// only, not the full composite health verdict.
func (m *Manager) IsHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := m.rabbitClient.RoundTrip(ctx); err != nil {
		m.logger.Warn("Broker round-trip failed",
			slog.Any("error", err),
		)
		return false
	}
	return true
}

// enqueue publishes a job reference message to the work queue
func (m *Manager) enqueue(ctx context.Context, jobID string) error {
	body, err := json.Marshal(domain.JobMessage{JobID: jobID})
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}

	return m.rabbitClient.PublishWithRetry(ctx, body, "application/json")
}

// validateSubmission checks the submission fields and returns the normalized
// provider list (lowercased, duplicates dropped, order preserved)
func validateSubmission(paperID string, providers []string) (domain.ProviderList, error) {
	if strings.TrimSpace(paperID) == "" {
		return nil, domain.NewValidationError("paper_id", "is required")
	}

	if len(providers) == 0 {
		return nil, domain.NewValidationError("providers", "must not be empty")
	}

	seen := make(map[string]bool, len(providers))
	normalized := make(domain.ProviderList, 0, len(providers))
	for _, p := range providers {
		id := strings.ToLower(strings.TrimSpace(p))
		if !domain.IsKnownProvider(id) {
			return nil, domain.NewValidationError("providers", fmt.Sprintf("unrecognized provider %q", p))
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		normalized = append(normalized, id)
	}

	return normalized, nil
}
