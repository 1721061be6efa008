package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/scholaris/paper-analysis-be/internal/domain"
)

// spawnWorkerPool spawns the configured number of lease-slot goroutines
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
		slog.String("worker_id", w.workerID),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}
}

// workerLoop is one lease slot: take a dispatched job, process it, settle the
// delivery. At most one job is in flight per slot, so PROCESSING jobs on this
// worker never exceed the configured concurrency.
func (w *Worker) workerLoop(ctx context.Context, slotNum int) {
	defer w.wg.Done()

	slotName := fmt.Sprintf("%s-%d", w.workerID, slotNum)
	w.logger.Info("Worker slot started",
		slog.String("slot", slotName),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker slot stopping - drain requested",
				slog.String("slot", slotName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker slot stopping - context canceled",
				slog.String("slot", slotName),
			)
			return

		case msg, ok := <-w.jobsChan:
			if !ok {
				return
			}

			err := w.processJob(ctx, msg)
			w.settleDelivery(ctx, slotName, msg, err)
		}
	}
}

// settleDelivery acks or nacks the broker delivery based on the processing
// outcome. A retryable failure becomes a delayed redelivery: the job message
// is re-published to the retry queue with the backoff TTL and the original
// delivery is acked, releasing the lease.
func (w *Worker) settleDelivery(ctx context.Context, slotName string, msg *domain.JobMessage, procErr error) {
	var channel *amqp.Channel
	if w.rabbitClient != nil {
		channel = w.rabbitClient.GetChannel()
	}
	if channel == nil {
		w.logger.Error("No RabbitMQ channel for ack/nack",
			slog.String("slot", slotName),
			slog.String("job_id", msg.JobID),
		)
		return
	}

	if procErr == nil {
		if ackErr := channel.Ack(msg.DeliveryTag, false); ackErr != nil {
			w.logger.Error("Failed to ACK message",
				slog.String("slot", slotName),
				slog.String("job_id", msg.JobID),
				slog.Any("error", ackErr),
			)
		}
		return
	}

	var retryable *domain.RetryableError
	if errors.As(procErr, &retryable) {
		body, err := json.Marshal(domain.JobMessage{JobID: msg.JobID})
		if err == nil {
			err = w.rabbitClient.PublishDelayed(ctx, body, "application/json", retryable.Delay)
		}
		if err != nil {
			w.logger.Error("Failed to schedule delayed redelivery, requeueing immediately",
				slog.String("job_id", msg.JobID),
				slog.Any("error", err),
			)
			if nackErr := channel.Nack(msg.DeliveryTag, false, true); nackErr != nil {
				w.logger.Error("Failed to NACK message",
					slog.String("job_id", msg.JobID),
					slog.Any("error", nackErr),
				)
			}
			return
		}

		if ackErr := channel.Ack(msg.DeliveryTag, false); ackErr != nil {
			w.logger.Error("Failed to ACK message after scheduling redelivery",
				slog.String("job_id", msg.JobID),
				slog.Any("error", ackErr),
			)
		}

		w.logger.Info("Job redelivery scheduled",
			slog.String("slot", slotName),
			slog.String("job_id", msg.JobID),
			slog.Duration("delay", retryable.Delay),
		)
		return
	}

	// Terminal or non-retryable: drop the message. The job record already
	// carries the failure.
	w.logger.Warn("Job processing failed terminally",
		slog.String("slot", slotName),
		slog.String("job_id", msg.JobID),
		slog.Any("error", procErr),
	)
	if nackErr := channel.Nack(msg.DeliveryTag, false, false); nackErr != nil {
		w.logger.Error("Failed to NACK message",
			slog.String("job_id", msg.JobID),
			slog.Any("error", nackErr),
		)
	}
}
