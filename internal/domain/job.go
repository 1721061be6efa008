package domain

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Job status constants
const (
	JobStatusPending    = "PENDING"
	JobStatusProcessing = "PROCESSING"
	JobStatusCompleted  = "COMPLETED"
	JobStatusFailed     = "FAILED"
)

// JobTypeAnalysis is the only job type the pipeline currently carries.
const JobTypeAnalysis = "paper_analysis"

// Job represents an analysis job record in the database
type Job struct {
	JobID           string         `db:"job_id"`
	JobType         string         `db:"job_type"`
	PaperID         string         `db:"paper_id"`
	Providers       ProviderList   `db:"providers"`
	Status          string         `db:"status"`
	Attempts        int            `db:"attempts"`
	MaxAttempts     int            `db:"max_attempts"`
	ErrorMessage    sql.NullString `db:"error_message"`
	ProviderResults OutcomeList    `db:"provider_results"`
	WorkerID        sql.NullString `db:"worker_id"`
	StartedAt       sql.NullTime   `db:"started_at"`
	CompletedAt     sql.NullTime   `db:"completed_at"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

// OutcomeList is the per-provider outcome set stored as JSON in the
// provider_results column
type OutcomeList []ProviderOutcome

// Value implements driver.Valuer for sqlx writes
func (o OutcomeList) Value() (driver.Value, error) {
	if o == nil {
		return nil, nil
	}
	return json.Marshal(o)
}

// Scan implements sql.Scanner for sqlx reads
func (o *OutcomeList) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, o)
	case string:
		return json.Unmarshal([]byte(v), o)
	case nil:
		*o = nil
		return nil
	default:
		return fmt.Errorf("cannot scan provider results from %T", src)
	}
}

// ProviderOutcome records the result of a single provider call within a job.
// Every requested provider gets exactly one outcome per attempt, success or
// failure.
type ProviderOutcome struct {
	Provider  string `json:"provider"`
	Status    string `json:"status"` // COMPLETED or FAILED
	Summary   string `json:"summary,omitempty"`
	Error     string `json:"error,omitempty"`
	Model     string `json:"model,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// JobMessage represents a job reference delivered through RabbitMQ
type JobMessage struct {
	JobID       string `json:"job_id"`
	DeliveryTag uint64 `json:"-"`
}

// WorkerStats is a process-local counter snapshot. Reset on restart, not
// shared across worker processes.
type WorkerStats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
	Active    int64 `json:"active"`
}

// QueueStatus holds per-status job counts plus a broker reachability flag
type QueueStatus struct {
	Pending    int  `json:"pending"`
	Processing int  `json:"processing"`
	Completed  int  `json:"completed"`
	Failed     int  `json:"failed"`
	IsHealthy  bool `json:"is_healthy"`
}
