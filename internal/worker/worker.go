package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/scholaris/paper-analysis-be/internal/domain"
	"github.com/scholaris/paper-analysis-be/internal/provider"
	"github.com/scholaris/paper-analysis-be/shared/rabbitmq"
)

// JobStore is the slice of the job store the worker reads and writes.
// *storage.Storage satisfies it.
type JobStore interface {
	ClaimJob(ctx context.Context, jobID, workerID string) (*domain.Job, error)
	CompleteJob(ctx context.Context, jobID string, outcomes []domain.ProviderOutcome) error
	FailJob(ctx context.Context, jobID string, outcomes []domain.ProviderOutcome, errorMsg string) error
	GetPaper(ctx context.Context, paperID string) (*domain.Paper, error)
}

// ProviderSource resolves provider identifiers to clients. *provider.Registry
// satisfies it.
type ProviderSource interface {
	Get(name string) (provider.Provider, bool)
}

// Config holds worker configuration
type Config struct {
	Logger           *slog.Logger
	Storage          JobStore
	RabbitClient     *rabbitmq.Client
	Registry         ProviderSource
	Concurrency      int
	PrefetchCount    int
	ProviderTimeout  time.Duration
	BackoffBaseDelay time.Duration
	BackoffMaxDelay  time.Duration
	CompletionPolicy string
	StatsInterval    time.Duration
}

// Worker leases analysis jobs from the broker and fans each one out to its
// requested providers. One Worker runs a pool of Concurrency lease slots.
type Worker struct {
	logger           *slog.Logger
	storage          JobStore
	rabbitClient     *rabbitmq.Client
	registry         ProviderSource
	workerID         string
	concurrency      int
	prefetchCount    int
	providerTimeout  time.Duration
	backoffBaseDelay time.Duration
	backoffMaxDelay  time.Duration
	completionPolicy string
	statsInterval    time.Duration

	jobsChan chan *domain.JobMessage
	stopChan chan struct{}
	wg       sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
	active    atomic.Int64

	events chan Event
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	return &Worker{
		logger:           cfg.Logger,
		storage:          cfg.Storage,
		rabbitClient:     cfg.RabbitClient,
		registry:         cfg.Registry,
		workerID:         "worker-" + uuid.New().String()[:8],
		concurrency:      cfg.Concurrency,
		prefetchCount:    cfg.PrefetchCount,
		providerTimeout:  cfg.ProviderTimeout,
		backoffBaseDelay: cfg.BackoffBaseDelay,
		backoffMaxDelay:  cfg.BackoffMaxDelay,
		completionPolicy: cfg.CompletionPolicy,
		statsInterval:    cfg.StatsInterval,
		jobsChan:         make(chan *domain.JobMessage),
		stopChan:         make(chan struct{}),
		events:           make(chan Event, 64),
	}
}

// Start begins consuming and processing jobs. It returns after the consumer
// and pool are running; errors from individual jobs stay inside the pool.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.String("completion_policy", w.completionPolicy),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	go w.startMessageDispatcher(ctx, deliveries)

	// statsLoop emits on the events channel, so it must be in the WaitGroup:
	// Stop closes events only after every emitter has returned.
	w.wg.Add(1)
	go w.statsLoop(ctx)

	return nil
}

// Stop drains the worker: no new leases are taken and in-flight jobs run to
// completion. The caller bounds the wait; anything still in flight when the
// process exits is redelivered by the broker once the channel closes.
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker",
		slog.String("worker_id", w.workerID),
	)
	close(w.stopChan)
	w.wg.Wait()
	close(w.events)
	w.logger.Info("Worker stopped",
		slog.String("worker_id", w.workerID),
	)
}

// IsHealthy performs a bounded broker round-trip check
func (w *Worker) IsHealthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return w.rabbitClient.RoundTrip(ctx) == nil
}

// GetWorkerStats returns a snapshot of the process-local counters
func (w *Worker) GetWorkerStats() domain.WorkerStats {
	return domain.WorkerStats{
		Processed: w.processed.Load(),
		Failed:    w.failed.Load(),
		Active:    w.active.Load(),
	}
}

// statsLoop periodically emits a stats-tick event for observers
func (w *Worker) statsLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := w.GetWorkerStats()
			w.emit(Event{
				Type:      EventStatsTick,
				Stats:     &stats,
				Timestamp: time.Now(),
			})
		}
	}
}
