package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/scholaris/paper-analysis-be/internal/domain"
	"github.com/scholaris/paper-analysis-be/internal/provider"
)

// processJob runs one leased job end to end: claim, fan out to every
// requested provider concurrently, aggregate, and write the terminal or
// retry state. The returned error drives the broker settlement in the pool.
func (w *Worker) processJob(ctx context.Context, msg *domain.JobMessage) error {
	w.active.Add(1)
	defer w.active.Add(-1)

	job, err := w.storage.ClaimJob(ctx, msg.JobID, w.workerID)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			w.logger.Warn("Job not claimable, dropping delivery",
				slog.String("job_id", msg.JobID),
			)
			return fmt.Errorf("job not claimable: %w", err)
		}
		// Store unreachable; let the broker redeliver after the base delay
		return domain.NewRetryableError(
			fmt.Errorf("failed to claim job: %w", err),
			w.backoffBaseDelay,
		)
	}

	doc, err := w.loadDocument(ctx, job)
	if err != nil {
		return w.failAttempt(ctx, job, nil, fmt.Sprintf("failed to load document: %s", err))
	}

	outcomes := w.fanOut(ctx, job, doc)

	succeeded := 0
	for _, o := range outcomes {
		if o.Status == domain.JobStatusCompleted {
			succeeded++
		}
	}

	complete := succeeded > 0
	if w.completionPolicy == "all" {
		complete = succeeded == len(outcomes)
	}

	if complete {
		if err := w.storage.CompleteJob(ctx, job.JobID, outcomes); err != nil {
			w.logger.Error("Failed to record job completion",
				slog.String("job_id", job.JobID),
				slog.Any("error", err),
			)
			// Results are lost if we drop this; retry the whole job
			return domain.NewRetryableError(err, w.backoffBaseDelay)
		}

		w.processed.Add(1)
		w.emit(Event{
			Type:      EventJobCompleted,
			JobID:     job.JobID,
			PaperID:   job.PaperID,
			Timestamp: time.Now(),
		})

		w.logger.Info("Job completed",
			slog.String("job_id", job.JobID),
			slog.Int("providers_succeeded", succeeded),
			slog.Int("providers_total", len(outcomes)),
		)
		return nil
	}

	return w.failAttempt(ctx, job, outcomes, summarizeFailures(outcomes))
}

// failAttempt records a failed attempt and decides between a delayed
// redelivery and terminal failure
func (w *Worker) failAttempt(ctx context.Context, job *domain.Job, outcomes []domain.ProviderOutcome, summary string) error {
	if err := w.storage.FailJob(ctx, job.JobID, outcomes, summary); err != nil {
		w.logger.Error("Failed to record job failure",
			slog.String("job_id", job.JobID),
			slog.Any("error", err),
		)
	}

	w.failed.Add(1)
	terminal := job.Attempts >= job.MaxAttempts
	w.emit(Event{
		Type:      EventJobFailed,
		JobID:     job.JobID,
		PaperID:   job.PaperID,
		Error:     summary,
		Terminal:  terminal,
		Timestamp: time.Now(),
	})

	if !terminal {
		delay := w.backoffDelay(job.Attempts)
		w.logger.Info("Job attempt failed, scheduling retry",
			slog.String("job_id", job.JobID),
			slog.Int("attempts", job.Attempts),
			slog.Int("max_attempts", job.MaxAttempts),
			slog.Duration("delay", delay),
		)
		return domain.NewRetryableError(errors.New(summary), delay)
	}

	w.logger.Warn("Job failed terminally, explicit retry required",
		slog.String("job_id", job.JobID),
		slog.Int("attempts", job.Attempts),
	)
	return fmt.Errorf("%w: %s", domain.ErrMaxAttemptsExceeded, summary)
}

// backoffDelay computes the exponential redelivery delay for the attempt
// that just failed: base * 2^(attempts-1), capped.
func (w *Worker) backoffDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	shift := uint(attempts - 1)
	if shift > 16 {
		shift = 16
	}

	delay := w.backoffBaseDelay << shift
	if delay > w.backoffMaxDelay || delay <= 0 {
		delay = w.backoffMaxDelay
	}
	return delay
}

// loadDocument fetches the paper text handed to the providers
func (w *Worker) loadDocument(ctx context.Context, job *domain.Job) (provider.Document, error) {
	paper, err := w.storage.GetPaper(ctx, job.PaperID)
	if err != nil {
		return provider.Document{}, err
	}

	text := paper.Content.String
	if text == "" {
		text = paper.Abstract.String
	}

	return provider.Document{
		PaperID: paper.PaperID,
		Title:   paper.Title,
		Text:    text,
	}, nil
}

// fanOut calls every requested provider concurrently, each bounded by its
// own timeout, and joins the per-provider outcomes. A slow or failing
// provider never blocks or fails the others.
func (w *Worker) fanOut(ctx context.Context, job *domain.Job, doc provider.Document) []domain.ProviderOutcome {
	outcomes := make([]domain.ProviderOutcome, len(job.Providers))

	var wg sync.WaitGroup
	for i, name := range job.Providers {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			outcomes[i] = w.callProvider(ctx, name, doc)
		}(i, name)
	}
	wg.Wait()

	return outcomes
}

// callProvider runs a single bounded provider call and renders its outcome
func (w *Worker) callProvider(ctx context.Context, name string, doc provider.Document) domain.ProviderOutcome {
	outcome := domain.ProviderOutcome{Provider: name}
	start := time.Now()

	p, ok := w.registry.Get(name)
	if !ok {
		outcome.Status = domain.JobStatusFailed
		outcome.Error = fmt.Sprintf("provider %q is not registered", name)
		return outcome
	}

	callCtx, cancel := context.WithTimeout(ctx, w.providerTimeout)
	defer cancel()

	result, err := p.Analyze(callCtx, doc)
	outcome.LatencyMs = time.Since(start).Milliseconds()

	if err != nil {
		provErr := &domain.ProviderError{Provider: name, Err: err}
		if errors.Is(err, context.DeadlineExceeded) {
			provErr.Err = fmt.Errorf("analysis timed out after %s: %w", w.providerTimeout, err)
		}
		outcome.Status = domain.JobStatusFailed
		outcome.Error = provErr.Error()

		w.logger.Warn("Provider call failed",
			slog.String("provider", name),
			slog.String("paper_id", doc.PaperID),
			slog.Any("error", err),
		)
		return outcome
	}

	outcome.Status = domain.JobStatusCompleted
	outcome.Summary = result.Summary
	outcome.Model = result.Model
	return outcome
}

// summarizeFailures builds the job-level error message when no provider
// satisfied the completion policy
func summarizeFailures(outcomes []domain.ProviderOutcome) string {
	parts := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Status == domain.JobStatusFailed {
			parts = append(parts, o.Error)
		}
	}
	if len(parts) == 0 {
		return "completion policy not satisfied"
	}
	return fmt.Sprintf("%d provider(s) failed: %s", len(parts), strings.Join(parts, "; "))
}
