package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholaris/paper-analysis-be/internal/domain"
)

func TestBackoffDelay(t *testing.T) {
	w := &Worker{
		backoffBaseDelay: time.Second,
		backoffMaxDelay:  5 * time.Minute,
	}

	tests := []struct {
		name     string
		attempts int
		expected time.Duration
	}{
		{name: "first attempt", attempts: 1, expected: 1000 * time.Millisecond},
		{name: "second attempt", attempts: 2, expected: 2000 * time.Millisecond},
		{name: "third attempt", attempts: 3, expected: 4000 * time.Millisecond},
		{name: "tenth attempt capped", attempts: 10, expected: 5 * time.Minute},
		{name: "zero attempts treated as first", attempts: 0, expected: time.Second},
		{name: "huge attempt count does not overflow", attempts: 500, expected: 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, w.backoffDelay(tt.attempts))
		})
	}
}

func TestBackoffDelay_NeverExceedsMax(t *testing.T) {
	w := &Worker{
		backoffBaseDelay: 250 * time.Millisecond,
		backoffMaxDelay:  10 * time.Second,
	}

	for attempts := 1; attempts <= 64; attempts++ {
		delay := w.backoffDelay(attempts)
		assert.LessOrEqual(t, delay, 10*time.Second, "attempt %d", attempts)
		assert.Positive(t, delay, "attempt %d", attempts)
	}
}

func TestParseJobMessage(t *testing.T) {
	tests := []struct {
		name    string
		body    []byte
		wantErr bool
		wantID  string
	}{
		{
			name:   "valid message",
			body:   []byte(`{"job_id":"3f1c2d44-9a1b-4a6e-8a8f-f20a7a1cdd01"}`),
			wantID: "3f1c2d44-9a1b-4a6e-8a8f-f20a7a1cdd01",
		},
		{
			name:    "not json",
			body:    []byte(`job please`),
			wantErr: true,
		},
		{
			name:    "missing job id",
			body:    []byte(`{}`),
			wantErr: true,
		},
		{
			name:    "job id not a uuid",
			body:    []byte(`{"job_id":"42"}`),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := parseJobMessage(tt.body)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrInvalidPayload)
				assert.Nil(t, msg)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantID, msg.JobID)
		})
	}
}

func TestSummarizeFailures(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []domain.ProviderOutcome
		contains []string
	}{
		{
			name: "single failure",
			outcomes: []domain.ProviderOutcome{
				{Provider: "openai", Status: domain.JobStatusFailed, Error: "provider openai failed: rate limited"},
			},
			contains: []string{"1 provider(s) failed", "rate limited"},
		},
		{
			name: "mixed outcomes only reports failures",
			outcomes: []domain.ProviderOutcome{
				{Provider: "openai", Status: domain.JobStatusCompleted, Summary: "ok"},
				{Provider: "gemini", Status: domain.JobStatusFailed, Error: "provider gemini failed: 503"},
			},
			contains: []string{"1 provider(s) failed", "gemini"},
		},
		{
			name:     "no failures",
			outcomes: []domain.ProviderOutcome{{Provider: "openai", Status: domain.JobStatusCompleted}},
			contains: []string{"completion policy not satisfied"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary := summarizeFailures(tt.outcomes)
			for _, want := range tt.contains {
				assert.Contains(t, summary, want)
			}
		})
	}
}

func TestEmit_DropsWhenFull(t *testing.T) {
	w := &Worker{events: make(chan Event, 2)}

	for i := 0; i < 10; i++ {
		w.emit(Event{Type: EventStatsTick})
	}

	// Channel holds the first two; the rest were dropped without blocking
	assert.Len(t, w.events, 2)
}

func TestWorkerStats(t *testing.T) {
	w := &Worker{}
	w.processed.Add(7)
	w.failed.Add(2)
	w.active.Add(1)

	stats := w.GetWorkerStats()
	assert.Equal(t, domain.WorkerStats{Processed: 7, Failed: 2, Active: 1}, stats)
}

func TestRetryableErrorCarriesDelay(t *testing.T) {
	w := &Worker{
		backoffBaseDelay: time.Second,
		backoffMaxDelay:  time.Minute,
	}

	err := domain.NewRetryableError(errors.New("transient"), w.backoffDelay(2))

	var retryable *domain.RetryableError
	require.True(t, errors.As(err, &retryable))
	assert.Equal(t, 2*time.Second, retryable.Delay)
}
