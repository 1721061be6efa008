package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/scholaris/paper-analysis-be/internal/domain"
)

// setupConsumer configures QoS and starts consuming from the work queue.
// Prefetch bounds how many unacknowledged leases this process holds at once.
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	channel := w.rabbitClient.GetChannel()
	if channel == nil {
		return nil, fmt.Errorf("rabbitmq channel is nil")
	}

	if err := channel.Qos(w.prefetchCount, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	w.logger.Info("RabbitMQ QoS configured",
		slog.Int("prefetch_count", w.prefetchCount),
	)

	deliveries, err := w.rabbitClient.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	return deliveries, nil
}

// startMessageDispatcher reads broker deliveries and hands them to the pool.
// Malformed messages are rejected without requeue; they would fail forever.
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started",
		slog.String("worker_id", w.workerID),
	)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Message dispatcher stopped - worker draining")
			return

		case <-ctx.Done():
			w.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}

			msg, err := parseJobMessage(delivery.Body)
			if err != nil {
				w.logger.Error("Rejecting malformed job message",
					slog.Any("error", err),
					slog.String("body", string(delivery.Body)),
				)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					w.logger.Error("Failed to NACK malformed message",
						slog.Any("error", nackErr),
					)
				}
				continue
			}
			msg.DeliveryTag = delivery.DeliveryTag

			select {
			case w.jobsChan <- msg:
				w.logger.Debug("Job dispatched to worker pool",
					slog.String("job_id", msg.JobID),
					slog.Uint64("delivery_tag", msg.DeliveryTag),
				)
			case <-w.stopChan:
				// Drain started while waiting for a free slot; leave the
				// message unacked so the broker redelivers it elsewhere.
				w.logger.Info("Message dispatcher stopped while dispatching job")
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.Any("error", nackErr),
					)
				}
				return
			case <-ctx.Done():
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					w.logger.Error("Failed to NACK message on shutdown",
						slog.Any("error", nackErr),
					)
				}
				return
			}
		}
	}
}

// parseJobMessage validates a broker message body
func parseJobMessage(body []byte) (*domain.JobMessage, error) {
	var msg domain.JobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	if _, err := uuid.Parse(msg.JobID); err != nil {
		return nil, fmt.Errorf("%w: job_id is not a UUID: %v", domain.ErrInvalidPayload, err)
	}

	return &msg, nil
}
