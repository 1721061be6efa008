package worker

import (
	"time"

	"github.com/scholaris/paper-analysis-be/internal/domain"
)

// EventType identifies a worker notification
type EventType string

const (
	// EventJobCompleted fires when a job reaches COMPLETED
	EventJobCompleted EventType = "job_completed"
	// EventJobFailed fires when a job attempt ends in FAILED
	EventJobFailed EventType = "job_failed"
	// EventStatsTick fires on the periodic stats interval
	EventStatsTick EventType = "stats_tick"
)

// Event is a worker notification consumed by external observers (logging,
// metrics, alert dispatch). The channel replaces any polling of worker state.
type Event struct {
	Type      EventType
	JobID     string
	PaperID   string
	Error     string
	Terminal  bool
	Stats     *domain.WorkerStats
	Timestamp time.Time
}

// Events returns the worker's notification channel. Closed on Stop.
func (w *Worker) Events() <-chan Event {
	return w.events
}

// emit delivers an event without ever blocking job processing; if no one is
// keeping up, events are dropped.
func (w *Worker) emit(e Event) {
	select {
	case w.events <- e:
	default:
	}
}
